package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/Mindburn-Labs/helm-bridge/pkg/artifacts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
	"github.com/Mindburn-Labs/helm-bridge/pkg/bootstrap"
	"github.com/Mindburn-Labs/helm-bridge/pkg/claim"
	"github.com/Mindburn-Labs/helm-bridge/pkg/config"
	"github.com/Mindburn-Labs/helm-bridge/pkg/governance"
	"github.com/Mindburn-Labs/helm-bridge/pkg/loader"
	"github.com/Mindburn-Labs/helm-bridge/pkg/observability"
	"github.com/Mindburn-Labs/helm-bridge/pkg/processor"
	"github.com/Mindburn-Labs/helm-bridge/pkg/receipts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/upgrade"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"
)

const (
	liteDBName     = "bridge.db"
	receiptKeyName = "receipt.key"
	jwtKeyName     = "jwt.key"
	jwtKeyID       = "bridge"
)

// node wires every bridge component for one deployment profile.
type node struct {
	cfg        *config.Config
	deployment *config.Deployment

	db        *sql.DB
	loader    *loader.Loader
	validator *loader.WasmValidator
	bootstrap *bootstrap.Service
	proc      *processor.Processor
	metrics   *observability.Metrics

	closers []func() error
}

// openNode opens storage and builds the processor. A nil otelCfg disables
// telemetry export.
func openNode(ctx context.Context, cfg *config.Config, otelCfg *observability.Config) (*node, error) {
	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	deployment, err := profile.Resolve()
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", cfg.ProfilePath, err)
	}

	n := &node{cfg: cfg, deployment: deployment, metrics: observability.NewMetrics()}
	if err := n.open(ctx, otelCfg); err != nil {
		_ = n.Close()
		return nil, err
	}
	return n, nil
}

func (n *node) open(ctx context.Context, otelCfg *observability.Config) error {
	var telemetry *observability.Provider
	if otelCfg != nil {
		otelCfg.Program = n.deployment.ProgramID.String()
		otelCfg.Chain = uint16(n.deployment.Chain)
		p, err := observability.New(ctx, otelCfg)
		if err != nil {
			return fmt.Errorf("observability: %w", err)
		}
		telemetry = p
		n.closers = append(n.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return p.Shutdown(sctx)
		})
	}

	db, err := openDB(ctx, n.cfg)
	if err != nil {
		return err
	}
	n.db = db
	n.closers = append(n.closers, db.Close)

	state := loader.NewSQLState(db)
	if err := state.Init(ctx); err != nil {
		return fmt.Errorf("failed to init loader state: %w", err)
	}
	rcptStore := receipts.NewSQLStore(db)
	if err := rcptStore.Init(ctx); err != nil {
		return fmt.Errorf("failed to init receipt store: %w", err)
	}
	cfgStore := bootstrap.NewSQLStore(db)
	if err := cfgStore.Init(ctx); err != nil {
		return fmt.Errorf("failed to init config store: %w", err)
	}
	claims, err := n.openClaims(ctx)
	if err != nil {
		return err
	}

	images, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("failed to init image store: %w", err)
	}

	n.validator = loader.NewWasmValidator(ctx, 0)
	n.closers = append(n.closers, func() error { return n.validator.Close(context.Background()) })
	n.loader = loader.NewLoader(state, images, n.validator)

	signer, err := loadOrGenerateSigner(n.cfg.DataDir)
	if err != nil {
		return err
	}

	d := n.deployment
	n.bootstrap = bootstrap.NewService(cfgStore, d.ProgramID, nil)
	n.proc, err = processor.New(processor.Deps{
		Verifier:  vaa.NewVerifier(d.GovernanceChain, d.GovernanceEmitter, d.GuardianSets...),
		Validator: governance.NewValidator(d.Chain),
		Guard:     claim.NewGuard(claims, d.ProgramID, nil),
		Executor:  upgrade.NewExecutor(d.ProgramID, n.loader),
		Receipts:  rcptStore,
		Signer:    signer,
		Telemetry: telemetry,
		Metrics:   n.metrics,
	})
	return err
}

func (n *node) openClaims(ctx context.Context) (claim.Store, error) {
	switch n.cfg.ClaimBackend {
	case "sql", "":
		s := claim.NewSQLStore(n.db)
		if err := s.Init(ctx); err != nil {
			return nil, fmt.Errorf("failed to init claim store: %w", err)
		}
		return s, nil
	case "redis":
		s := claim.NewRedisStore(n.cfg.RedisAddr, n.cfg.RedisPassword, 0)
		n.closers = append(n.closers, s.Close)
		log.Printf("[helm-bridge] claims: redis at %s", n.cfg.RedisAddr)
		return s, nil
	case "memory":
		log.Printf("[helm-bridge] claims: in-memory, replay protection ends with the process")
		return claim.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported claim backend: %s", n.cfg.ClaimBackend)
	}
}

// Close releases resources in reverse order of acquisition.
func (n *node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.LiteMode() {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		path := filepath.Join(cfg.DataDir, liteDBName)
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return db, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("DB ping failed: %w", err)
	}
	return db, nil
}

// loadOrGenerateSeed reads a hex ed25519 seed from dataDir/name, creating it
// on first use.
func loadOrGenerateSeed(dataDir, name string) ([]byte, error) {
	keyPath := filepath.Join(dataDir, name)
	if keyHex, err := os.ReadFile(keyPath); err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(keyHex)))
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid %s format", name)
		}
		return seed, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if os.Getenv("HELM_PRODUCTION") == "1" {
		return nil, fmt.Errorf("production mode requires %s to exist", keyPath)
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist %s: %w", name, err)
	}
	log.Printf("[helm-bridge] generated new key at %s", keyPath)
	return seed, nil
}

func loadOrGenerateSigner(dataDir string) (*receipts.Signer, error) {
	seed, err := loadOrGenerateSeed(dataDir, receiptKeyName)
	if err != nil {
		return nil, err
	}
	return receipts.NewSignerFromKey(ed25519.NewKeyFromSeed(seed)), nil
}

func loadKeySet(dataDir string) (*auth.InMemoryKeySet, error) {
	seed, err := loadOrGenerateSeed(dataDir, jwtKeyName)
	if err != nil {
		return nil, err
	}
	return auth.NewKeySetFromSeed(jwtKeyID, seed)
}
