package ledger

import (
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/wallet"
)

func TestSignCallAssignsIncreasingNonces(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	signer := NewSigner(w, 0)

	call := Call{Contract: "AccessControl", Method: "grantAccess", Args: json.RawMessage(`{}`)}
	first, err := signer.SignCall(call)
	require.NoError(t, err)
	second, err := signer.SignCall(call)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.Nonce)
	assert.Equal(t, uint64(2), second.Nonce)
	assert.Equal(t, w.Address.String(), first.Signature.SignerAddress)
}

func TestSignCallConcurrentNoncesAreUnique(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	signer := NewSigner(w, 100)

	const n = 50
	call := Call{Contract: "AccessControl", Method: "hasAccess", Args: json.RawMessage(`{}`)}
	nonces := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx, err := signer.SignCall(call)
			if err != nil {
				t.Error(err)
				return
			}
			nonces[i] = tx.Nonce
		}(i)
	}
	wg.Wait()

	sort.Slice(nonces, func(i, j int) bool { return nonces[i] < nonces[j] })
	for i := 0; i < n; i++ {
		assert.Equal(t, uint64(101+i), nonces[i])
	}
}

func TestSignedTxVerifies(t *testing.T) {
	w, err := wallet.Generate()
	require.NoError(t, err)
	signer := NewSigner(w, 0)

	call := Call{Contract: "AccessControl", Method: "revokeAccess", Args: json.RawMessage(`{"a":1}`)}
	tx, err := signer.SignCall(call)
	require.NoError(t, err)

	payload, err := json.Marshal(struct {
		Call  Call   `json:"call"`
		Nonce uint64 `json:"nonce"`
	}{tx.Call, tx.Nonce})
	require.NoError(t, err)
	assert.True(t, wallet.Verify(tx.Signature, w.PublicKey, payload))
}
