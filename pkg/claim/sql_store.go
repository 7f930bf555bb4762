package claim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

// SQLStore implements Store using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS claims (
	address TEXT PRIMARY KEY,
	emitter_chain INTEGER NOT NULL,
	emitter_address TEXT NOT NULL,
	sequence BIGINT NOT NULL,
	payer TEXT NOT NULL,
	claimed_at TEXT NOT NULL,
	UNIQUE (emitter_chain, emitter_address, sequence)
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Create relies on the primary key: ON CONFLICT DO NOTHING leaves the
// existing row untouched and reports zero affected rows.
func (s *SQLStore) Create(ctx context.Context, r *Record) error {
	query := `
		INSERT INTO claims (address, emitter_chain, emitter_address, sequence, payer, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT DO NOTHING
	`
	// Sequence is stored bit-for-bit as a signed 64-bit value.
	res, err := s.db.ExecContext(ctx, query,
		r.Address.String(),
		int64(r.Key.Chain),
		r.Key.Emitter.String(),
		int64(r.Key.Sequence),
		r.Payer.String(),
		r.ClaimedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, addr contracts.Address) (*Record, error) {
	query := `SELECT address, emitter_chain, emitter_address, sequence, payer, claimed_at FROM claims WHERE address = $1`
	row := s.db.QueryRowContext(ctx, query, addr.String())

	var (
		address, emitter, payer, claimedAt string
		chain, seq                         int64
	)
	if err := row.Scan(&address, &chain, &emitter, &seq, &payer, &claimedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	r := &Record{
		Key: Key{
			Chain:    contracts.ChainID(chain),
			Sequence: contracts.Sequence(uint64(seq)),
		},
	}
	var err error
	if r.Address, err = contracts.ParseAddress(address); err != nil {
		return nil, fmt.Errorf("corrupt claim address: %w", err)
	}
	if r.Key.Emitter, err = contracts.ParseAddress(emitter); err != nil {
		return nil, fmt.Errorf("corrupt claim emitter: %w", err)
	}
	if r.Payer, err = contracts.ParseAddress(payer); err != nil {
		return nil, fmt.Errorf("corrupt claim payer: %w", err)
	}
	if r.ClaimedAt, err = time.Parse(time.RFC3339Nano, claimedAt); err != nil {
		return nil, fmt.Errorf("corrupt claim timestamp: %w", err)
	}
	return r, nil
}
