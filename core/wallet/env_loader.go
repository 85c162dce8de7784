package wallet

import (
	"errors"
	"os"
)

// EnvWalletLoader loads the signer wallet from the environment.
type EnvWalletLoader struct{}

func (l *EnvWalletLoader) LoadWallet() (*Wallet, error) {
	privKey := os.Getenv("MEDVAULT_SIGNER_PRIVKEY")
	if privKey == "" {
		return nil, errors.New("MEDVAULT_SIGNER_PRIVKEY not set in environment")
	}
	return FromPrivateKey(privKey)
}
