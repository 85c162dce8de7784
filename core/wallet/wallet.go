package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"medvault/types/ids"
)

// Wallet holds the ledger signing key. The private key must never leave the
// process.
type Wallet struct {
	Address    ids.Address
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
	Algorithm  string // always "Ed25519"
}

// Signature contains all signature metadata attached to a ledger submission.
type Signature struct {
	Algorithm         string    `json:"algorithm"`
	Signature         string    `json:"signature"`
	SignedPayloadHash string    `json:"signedPayloadHash"`
	SignerAddress     string    `json:"signerAddress"`
	Timestamp         time.Time `json:"timestamp"`
}

// Generate creates a fresh Ed25519 wallet.
func Generate() (*Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return fromKey(priv, pub), nil
}

// FromPrivateKey rebuilds a wallet from a base64-encoded Ed25519 private key.
func FromPrivateKey(privB64 string) (*Wallet, error) {
	raw, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, errors.New("failed to decode signer private key: " + err.Error())
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.New("signer private key must be 64 bytes (base64-encoded)")
	}
	priv := ed25519.PrivateKey(raw)
	return fromKey(priv, priv.Public().(ed25519.PublicKey)), nil
}

func fromKey(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Wallet {
	return &Wallet{
		Address:    ids.FromPublicKey(pub),
		PublicKey:  pub,
		PrivateKey: priv,
		Algorithm:  "Ed25519",
	}
}

// Sign signs a payload hash and returns the signature envelope.
func (w *Wallet) Sign(payload []byte) (Signature, error) {
	if len(w.PrivateKey) != ed25519.PrivateKeySize {
		return Signature{}, errors.New("invalid Ed25519 private key size")
	}
	hash := sha256.Sum256(payload)
	sig := ed25519.Sign(w.PrivateKey, hash[:])
	return Signature{
		Algorithm:         w.Algorithm,
		Signature:         base64.StdEncoding.EncodeToString(sig),
		SignedPayloadHash: hex.EncodeToString(hash[:]),
		SignerAddress:     w.Address.String(),
		Timestamp:         time.Now().UTC(),
	}, nil
}

// Verify checks a signature envelope against a payload and public key.
func Verify(sig Signature, pub ed25519.PublicKey, payload []byte) bool {
	hash := sha256.Sum256(payload)
	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, hash[:], raw)
}
