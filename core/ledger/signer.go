package ledger

import (
	"encoding/json"
	"sync"

	"medvault/core/wallet"
)

// Signer signs ledger submissions with the node wallet. The wallet is a
// single shared signing key, so the nonce counter and signing are guarded by
// one mutex: concurrent submissions from the same signer are serialized and
// each transaction gets a unique, strictly increasing nonce.
type Signer struct {
	mu     sync.Mutex
	wallet *wallet.Wallet
	nonce  uint64
}

func NewSigner(w *wallet.Wallet, startNonce uint64) *Signer {
	return &Signer{wallet: w, nonce: startNonce}
}

// Address returns the signer's ledger address.
func (s *Signer) Address() string {
	return s.wallet.Address.String()
}

// SignCall assigns the next nonce and signs the (call, nonce) payload.
func (s *Signer) SignCall(call Call) (SignedTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonce++
	payload, err := json.Marshal(struct {
		Call  Call   `json:"call"`
		Nonce uint64 `json:"nonce"`
	}{call, s.nonce})
	if err != nil {
		return SignedTx{}, err
	}
	sig, err := s.wallet.Sign(payload)
	if err != nil {
		return SignedTx{}, err
	}
	return SignedTx{Call: call, Nonce: s.nonce, Signature: sig}, nil
}
