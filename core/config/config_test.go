package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "local", cfg.Ledger.Mode)
	assert.Equal(t, "local", cfg.Blob.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`

listenAddr: ":9090"
ledger:
  mode: chain
  endpoint: http://ledger:8545
blob:
  mode: gateway
  gatewayURL: http://gateway:5001
stalenessWindow: 10s
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "chain", cfg.Ledger.Mode)
	assert.Equal(t, "http://ledger:8545", cfg.Ledger.Endpoint)
	assert.Equal(t, 10*time.Second, cfg.StalenessWindow)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("MEDVAULT_LISTEN_ADDR", ":7070")
	t.Setenv("MEDVAULT_LEDGER_MODE", "local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, "local", cfg.Ledger.Mode)
}

func TestValidateRejectsChainWithoutEndpoint(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Mode = "chain"
	assert.Error(t, cfg.Validate())

	cfg.Ledger.Endpoint = "http://ledger:8545"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Mode = "floppy"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Blob.Mode = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}
