package receipts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Store persists receipts. Receipts are append-only.
type Store interface {
	Append(ctx context.Context, r *Receipt) error
	Get(ctx context.Context, id string) (*Receipt, error)
	// List returns the newest receipts first.
	List(ctx context.Context, limit int) ([]*Receipt, error)
}

// SQLStore keeps receipts as canonical JSON documents alongside the columns
// they are queried by. Issue times are stored as unix nanoseconds so that
// newest-first ordering is numeric.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS receipts (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	status TEXT NOT NULL,
	issued_at_ns BIGINT NOT NULL,
	document TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS receipts_issued_at_ns ON receipts (issued_at_ns);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLStore) Append(ctx context.Context, r *Receipt) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO receipts (id, message_id, status, issued_at_ns, document)
		VALUES ($1, $2, $3, $4, $5)
	`, r.ID, r.MessageID, string(r.Status), r.IssuedAt.UnixNano(), string(doc))
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Receipt, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM receipts WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(doc)
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]*Receipt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document FROM receipts ORDER BY issued_at_ns DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Receipt
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		r, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decode(doc string) (*Receipt, error) {
	var r Receipt
	if err := json.Unmarshal([]byte(doc), &r); err != nil {
		return nil, fmt.Errorf("corrupt receipt document: %w", err)
	}
	return &r, nil
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{receipts: make(map[string]*Receipt)}
}

func (s *MemoryStore) Append(ctx context.Context, r *Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.ID]; ok {
		return fmt.Errorf("receipt %s already recorded", r.ID)
	}
	cp := *r
	s.receipts[r.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, limit int) ([]*Receipt, error) {
	s.mu.RLock()
	out := make([]*Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		cp := *r
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
