package blob

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"io"

	"medvault/core/fault"
	"medvault/types/ids"
)

const (
	// Algorithm is the only cipher the store produces or accepts.
	Algorithm = "aes-256-gcm"

	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

// BlobRef is everything needed to fetch and decrypt one blob. Key, IV and
// AuthTag are hex strings; the caller is responsible for safeguarding the key.
type BlobRef struct {
	ContentAddress string `json:"contentAddress"`
	Key            string `json:"key"`
	IV             string `json:"iv"`
	AuthTag        string `json:"authTag"`
	Algorithm      string `json:"algorithm"`
}

// EncryptedStore encrypts payloads before they reach the transport and
// addresses them by ciphertext digest. The transport never sees plaintext.
type EncryptedStore struct {
	transport Transport
}

// NewEncryptedStore wraps transport with per-blob authenticated encryption.
func NewEncryptedStore(transport Transport) *EncryptedStore {
	return &EncryptedStore{transport: transport}
}

// Put encrypts plaintext under a fresh key and nonce, persists the ciphertext
// and returns its ref. The content address is not returned unless the
// transport acknowledged the write. Fresh key material per blob means equal
// plaintexts get unlinkable ciphertexts and addresses.
func (s *EncryptedStore) Put(ctx context.Context, plaintext []byte) (BlobRef, error) {
	const op = "blob.Put"

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return BlobRef{}, fault.New(fault.BlobStoreUnavailable, op, err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return BlobRef{}, fault.New(fault.BlobStoreUnavailable, op, err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return BlobRef{}, fault.New(fault.BlobStoreUnavailable, op, err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	// The tag travels in the ref, not in the stored bytes.
	ciphertext := sealed[:len(sealed)-tagSize]
	authTag := sealed[len(sealed)-tagSize:]

	addr, err := s.transport.Put(ctx, ciphertext)
	if err != nil {
		return BlobRef{}, fault.New(fault.BlobStoreUnavailable, op, err)
	}

	return BlobRef{
		ContentAddress: addr,
		Key:            hex.EncodeToString(key),
		IV:             hex.EncodeToString(nonce),
		AuthTag:        hex.EncodeToString(authTag),
		Algorithm:      Algorithm,
	}, nil
}

// Get fetches the ciphertext at ref.ContentAddress, verifies the tag and
// decrypts. A tag that does not verify means tamper, corruption or a wrong
// key; no fallback plaintext is ever returned.
func (s *EncryptedStore) Get(ctx context.Context, ref BlobRef) ([]byte, error) {
	const op = "blob.Get"

	if ref.Algorithm != "" && ref.Algorithm != Algorithm {
		return nil, fault.Newf(fault.InvalidInput, op, "unsupported algorithm %q", ref.Algorithm)
	}
	key, err := hex.DecodeString(ref.Key)
	if err != nil || len(key) != keySize {
		return nil, fault.Newf(fault.InvalidInput, op, "ref key is not a %d-byte hex string", keySize)
	}
	nonce, err := hex.DecodeString(ref.IV)
	if err != nil || len(nonce) != nonceSize {
		return nil, fault.Newf(fault.InvalidInput, op, "ref iv is not a %d-byte hex string", nonceSize)
	}
	authTag, err := hex.DecodeString(ref.AuthTag)
	if err != nil || len(authTag) != tagSize {
		return nil, fault.Newf(fault.InvalidInput, op, "ref authTag is not a %d-byte hex string", tagSize)
	}

	ciphertext, err := s.transport.Get(ctx, ref.ContentAddress)
	if err != nil {
		if fault.Is(err, fault.NotFound) {
			return nil, fault.New(fault.NotFound, op, err)
		}
		return nil, fault.New(fault.BlobStoreUnavailable, op, err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fault.New(fault.DecryptionFailure, op, err)
	}

	sealed := append(bytes.Clone(ciphertext), authTag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fault.Newf(fault.DecryptionFailure, op, "auth tag mismatch for %s", ref.ContentAddress)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// addressOf derives the content address of ciphertext bytes.
func addressOf(data []byte) string {
	return ids.FromContent(data).String()
}
