package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Address is an opaque, cryptographically derived identifier for a patient,
// a doctor, or a piece of content. It is the hex form of a 32-byte digest.
type Address string

// Empty is the zero-value Address.
const Empty Address = ""

// FromPublicKey derives an actor address from raw public key bytes.
func FromPublicKey(pub []byte) Address {
	hash := sha256.Sum256(pub)
	return Address(hex.EncodeToString(hash[:]))
}

// FromContent derives a content address from raw data bytes.
func FromContent(data []byte) Address {
	hash := sha256.Sum256(data)
	return Address(hex.EncodeToString(hash[:]))
}

// Parse validates that s is a well-formed address (64 hex chars).
func Parse(s string) (Address, error) {
	if len(s) != 64 {
		return Empty, errors.New("address must be 64 hex characters")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return Empty, errors.New("address is not valid hex")
	}
	return Address(s), nil
}

// String converts an Address back to its plain string form.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Empty
}
