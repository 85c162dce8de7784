package blob

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvault/core/fault"
)

func newTestStore(t *testing.T) (*EncryptedStore, *LocalStore) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "blob-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	local, err := NewLocalStore(filepath.Join(tmpDir, "blobs"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	return NewEncryptedStore(local), local
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	payloads := [][]byte{
		[]byte("lab result A"),
		[]byte(""),
		[]byte{0x00, 0xff, 0x10},
		make([]byte, 1<<16),
	}
	for _, p := range payloads {
		ref, err := store.Put(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, Algorithm, ref.Algorithm)
		assert.Len(t, ref.ContentAddress, 64)

		got, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestFreshKeyPerBlob(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ref1, err := store.Put(ctx, []byte("identical payload"))
	require.NoError(t, err)
	ref2, err := store.Put(ctx, []byte("identical payload"))
	require.NoError(t, err)

	// Same plaintext must not be linkable through key, nonce or address.
	assert.NotEqual(t, ref1.Key, ref2.Key)
	assert.NotEqual(t, ref1.IV, ref2.IV)
	assert.NotEqual(t, ref1.ContentAddress, ref2.ContentAddress)
}

func TestTamperedCiphertextFailsDecryption(t *testing.T) {
	store, local := newTestStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("sensitive payload"))
	require.NoError(t, err)

	stored, err := local.Get(ctx, ref.ContentAddress)
	require.NoError(t, err)

	// Flip one bit of the stored ciphertext back in place.
	tampered := make([]byte, len(stored))
	copy(tampered, stored)
	tampered[0] ^= 0x01
	require.NoError(t, local.db.Put([]byte("blob:"+ref.ContentAddress), tampered, nil))

	_, err = store.Get(ctx, ref)
	require.Error(t, err)
	assert.Equal(t, fault.DecryptionFailure, fault.KindOf(err))
}

func TestTamperedAuthTagFailsDecryption(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("sensitive payload"))
	require.NoError(t, err)

	tag, err := hex.DecodeString(ref.AuthTag)
	require.NoError(t, err)
	tag[len(tag)-1] ^= 0x80
	ref.AuthTag = hex.EncodeToString(tag)

	_, err = store.Get(ctx, ref)
	assert.Equal(t, fault.DecryptionFailure, fault.KindOf(err))
}

func TestWrongKeyFailsDecryption(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ref1, err := store.Put(ctx, []byte("record one"))
	require.NoError(t, err)
	ref2, err := store.Put(ctx, []byte("record two"))
	require.NoError(t, err)

	ref1.Key = ref2.Key
	_, err = store.Get(ctx, ref1)
	assert.Equal(t, fault.DecryptionFailure, fault.KindOf(err))
}

func TestGetUnknownAddress(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	ref.ContentAddress = "00000000000000000000000000000000" +
		"00000000000000000000000000000000"

	_, err = store.Get(ctx, ref)
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestGetRejectsMalformedRef(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)

	bad := ref
	bad.Key = "not-hex"
	_, err = store.Get(ctx, bad)
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))

	bad = ref
	bad.Algorithm = "aes-256-cbc"
	_, err = store.Get(ctx, bad)
	assert.Equal(t, fault.InvalidInput, fault.KindOf(err))
}

func TestContentAddressMatchesCiphertextDigest(t *testing.T) {
	store, local := newTestStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("payload"))
	require.NoError(t, err)

	stored, err := local.Get(ctx, ref.ContentAddress)
	require.NoError(t, err)
	assert.Equal(t, addressOf(stored), ref.ContentAddress)
}
