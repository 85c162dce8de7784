package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"medvault/api/server"
	"medvault/core/audit"
	"medvault/core/blob"
	"medvault/core/capability"
	"medvault/core/config"
	"medvault/core/ledger"
	"medvault/core/outbox"
	"medvault/core/records"
	"medvault/core/registry"
	"medvault/core/wallet"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid config: %v", err)
	}

	// Log to file as well as stdout
	if err := os.MkdirAll("logs", 0o755); err == nil {
		if logFile, err := os.OpenFile(filepath.Join("logs", "medvault-node.log"),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666); err == nil {
			log.SetOutput(io.MultiWriter(os.Stdout, logFile))
		}
	}

	fmt.Println("🚀 Starting MedVault Node")

	auditLogger := buildAuditLogger(cfg)

	capLedger, closer, err := buildCapabilityLedger(cfg, auditLogger)
	if err != nil {
		log.Fatalf("❌ Failed to initialize capability ledger: %v", err)
	}
	if closer != nil {
		defer closer()
	}

	transport, closeBlobs, err := buildBlobTransport(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize blob store: %v", err)
	}
	if closeBlobs != nil {
		defer closeBlobs()
	}
	blobs := blob.NewEncryptedStore(transport)

	reg, err := registry.New(filepath.Join(cfg.DataDir, "registry"))
	if err != nil {
		log.Fatalf("❌ Failed to initialize record registry: %v", err)
	}
	defer reg.Close()

	caps, err := outbox.New(filepath.Join(cfg.DataDir, "outbox"), capLedger, auditLogger, outbox.Options{
		MaxAttempts: cfg.OutboxMaxAttempts,
		DrainEvery:  cfg.OutboxDrainEvery,
	})
	if err != nil {
		log.Fatalf("❌ Failed to initialize capability outbox: %v", err)
	}
	defer caps.Close()
	caps.Start()

	svc := records.NewService(capLedger, blobs, reg, auditLogger, records.Options{
		RetryAttempts:   cfg.RetryAttempts,
		RetryBackoff:    cfg.RetryBackoff,
		StalenessWindow: cfg.StalenessWindow,
	})

	srv := server.NewServer(svc, caps, capLedger, reg, auditLogger, cfg.ListenAddr, cfg.JWTSecret, cfg.RequestTimeout)

	log.Printf("[API] Listening on %s (ledger=%s, blob=%s)", cfg.ListenAddr, cfg.Ledger.Mode, cfg.Blob.Mode)
	if err := srv.Start(); err != nil {
		log.Fatalf("❌ API server stopped: %v", err)
	}
}

func buildAuditLogger(cfg config.Config) audit.AuditLogger {
	if cfg.AuditLog == "" {
		return audit.NewStdoutAuditLogger()
	}
	return audit.NewFileAuditLogger(cfg.AuditLog)
}

// buildCapabilityLedger wires either the embedded event log or a signing
// client against an external ledger node.
func buildCapabilityLedger(cfg config.Config, auditLogger audit.AuditLogger) (capability.Ledger, func() error, error) {
	switch cfg.Ledger.Mode {
	case "chain":
		loader := &wallet.EnvWalletLoader{}
		w, err := loader.LoadWallet()
		if err != nil {
			return nil, nil, fmt.Errorf("ledger mode chain needs a signer wallet: %w", err)
		}
		signer := ledger.NewSigner(w, 0)
		client := ledger.NewHTTPClient(cfg.Ledger.Endpoint, signer, cfg.RequestTimeout)
		return capability.NewChainLedger(client, auditLogger), nil, nil
	default:
		local, err := capability.NewLocalLedger(filepath.Join(cfg.DataDir, "capabilities"), auditLogger)
		if err != nil {
			return nil, nil, err
		}
		return local, local.Close, nil
	}
}

func buildBlobTransport(cfg config.Config) (blob.Transport, func() error, error) {
	switch cfg.Blob.Mode {
	case "gateway":
		return blob.NewGatewayTransport(cfg.Blob.GatewayURL, cfg.RequestTimeout), nil, nil
	default:
		local, err := blob.NewLocalStore(filepath.Join(cfg.DataDir, "blobs"))
		if err != nil {
			return nil, nil, err
		}
		return local, local.Close, nil
	}
}
