// Package bootstrap manages the one-time configuration record of a deployment.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/pda"
)

// ConfigSeed derives the record's address.
const ConfigSeed = "config"

var (
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized")
)

// Config names the core bridge this program trusts for message verification.
type Config struct {
	Address           contracts.Address `json:"address"`
	CoreBridgeProgram contracts.Address `json:"core_bridge_program"`
	Payer             contracts.Address `json:"payer"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Store holds at most one Config per address.
type Store interface {
	// Create fails with ErrAlreadyInitialized when c.Address is taken.
	Create(ctx context.Context, c *Config) error
	Get(ctx context.Context, addr contracts.Address) (*Config, error)
}

// ConfigAddress returns where programID keeps its config record.
func ConfigAddress(programID contracts.Address) (contracts.Address, error) {
	addr, _, err := pda.FindProgramAddress([][]byte{[]byte(ConfigSeed)}, programID)
	if err != nil {
		return contracts.Address{}, fmt.Errorf("derive config address: %w", err)
	}
	return addr, nil
}

// Service creates and reads the config record of one program.
type Service struct {
	store     Store
	programID contracts.Address
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(store Store, programID contracts.Address, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     store,
		programID: programID,
		now:       now,
		logger:    slog.Default().With("component", "bootstrap"),
	}
}

// Initialize creates the config record. It succeeds exactly once per program.
func (s *Service) Initialize(ctx context.Context, payer, coreBridge contracts.Address) (*Config, error) {
	addr, err := ConfigAddress(s.programID)
	if err != nil {
		return nil, err
	}

	c := &Config{
		Address:           addr,
		CoreBridgeProgram: coreBridge,
		Payer:             payer,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "initialized", "config", addr.String(), "core_bridge", coreBridge.String())
	return c, nil
}

// Load reads the config record, failing with ErrNotInitialized if absent.
func (s *Service) Load(ctx context.Context) (*Config, error) {
	addr, err := ConfigAddress(s.programID)
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, addr)
}

// SQLStore implements Store on Postgres or SQLite.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS bridge_config (
	address TEXT PRIMARY KEY,
	core_bridge_program TEXT NOT NULL,
	payer TEXT NOT NULL,
	created_at TEXT NOT NULL
);`)
	return err
}

func (s *SQLStore) Create(ctx context.Context, c *Config) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bridge_config (address, core_bridge_program, payer, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`, c.Address.String(), c.CoreBridgeProgram.String(), c.Payer.String(), c.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrAlreadyInitialized
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, addr contracts.Address) (*Config, error) {
	var coreBridge, payer, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT core_bridge_program, payer, created_at FROM bridge_config WHERE address = $1`, addr.String(),
	).Scan(&coreBridge, &payer, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotInitialized
		}
		return nil, err
	}

	c := &Config{Address: addr}
	if c.CoreBridgeProgram, err = contracts.ParseAddress(coreBridge); err != nil {
		return nil, fmt.Errorf("corrupt core bridge address: %w", err)
	}
	if c.Payer, err = contracts.ParseAddress(payer); err != nil {
		return nil, fmt.Errorf("corrupt payer: %w", err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt creation timestamp: %w", err)
	}
	return c, nil
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.Mutex
	configs map[contracts.Address]Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[contracts.Address]Config)}
}

func (s *MemoryStore) Create(ctx context.Context, c *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[c.Address]; ok {
		return ErrAlreadyInitialized
	}
	s.configs[c.Address] = *c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, addr contracts.Address) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[addr]
	if !ok {
		return nil, ErrNotInitialized
	}
	return &c, nil
}
