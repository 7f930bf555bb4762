package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

// SQLState implements StateStore on Postgres or SQLite.
// Lamport amounts are stored bit-for-bit as signed 64-bit values.
type SQLState struct {
	db *sql.DB
}

func NewSQLState(db *sql.DB) *SQLState {
	return &SQLState{db: db}
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS loader_programs (
	id TEXT PRIMARY KEY,
	program_data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS loader_program_data (
	address TEXT PRIMARY KEY,
	program TEXT NOT NULL,
	upgrade_authority TEXT NOT NULL,
	image_ref TEXT NOT NULL,
	lamports BIGINT NOT NULL,
	generation BIGINT NOT NULL,
	deployed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS loader_buffers (
	address TEXT PRIMARY KEY,
	authority TEXT NOT NULL,
	image_ref TEXT NOT NULL,
	lamports BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS loader_balances (
	address TEXT PRIMARY KEY,
	lamports BIGINT NOT NULL
);
`

func (s *SQLState) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, stateSchema)
	return err
}

func (s *SQLState) Program(ctx context.Context, id contracts.Address) (*Program, error) {
	var programData string
	err := s.db.QueryRowContext(ctx,
		`SELECT program_data FROM loader_programs WHERE id = $1`, id.String(),
	).Scan(&programData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	pdAddr, err := contracts.ParseAddress(programData)
	if err != nil {
		return nil, fmt.Errorf("corrupt program data address: %w", err)
	}
	return &Program{ID: id, ProgramData: pdAddr}, nil
}

func (s *SQLState) ProgramData(ctx context.Context, addr contracts.Address) (*ProgramData, error) {
	query := `
		SELECT program, upgrade_authority, image_ref, lamports, generation, deployed_at
		FROM loader_program_data WHERE address = $1
	`
	var (
		program, authority, imageRef, deployedAt string
		lamports, generation                     int64
	)
	err := s.db.QueryRowContext(ctx, query, addr.String()).
		Scan(&program, &authority, &imageRef, &lamports, &generation, &deployedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load program data: %w", err)
	}

	pd := &ProgramData{
		Address:    addr,
		ImageRef:   imageRef,
		Lamports:   uint64(lamports),
		Generation: uint64(generation),
	}
	if pd.Program, err = contracts.ParseAddress(program); err != nil {
		return nil, fmt.Errorf("corrupt program address: %w", err)
	}
	if pd.UpgradeAuthority, err = contracts.ParseAddress(authority); err != nil {
		return nil, fmt.Errorf("corrupt upgrade authority: %w", err)
	}
	if pd.DeployedAt, err = time.Parse(time.RFC3339Nano, deployedAt); err != nil {
		return nil, fmt.Errorf("corrupt deployment timestamp: %w", err)
	}
	return pd, nil
}

func (s *SQLState) Buffer(ctx context.Context, addr contracts.Address) (*Buffer, error) {
	var (
		authority, imageRef string
		lamports            int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT authority, image_ref, lamports FROM loader_buffers WHERE address = $1`, addr.String(),
	).Scan(&authority, &imageRef, &lamports)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load buffer: %w", err)
	}

	b := &Buffer{Address: addr, ImageRef: imageRef, Lamports: uint64(lamports)}
	if b.Authority, err = contracts.ParseAddress(authority); err != nil {
		return nil, fmt.Errorf("corrupt buffer authority: %w", err)
	}
	return b, nil
}

func (s *SQLState) Balance(ctx context.Context, addr contracts.Address) (uint64, error) {
	var lamports int64
	err := s.db.QueryRowContext(ctx,
		`SELECT lamports FROM loader_balances WHERE address = $1`, addr.String(),
	).Scan(&lamports)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	return uint64(lamports), nil
}

func (s *SQLState) PutProgram(ctx context.Context, p *Program, pd *ProgramData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loader_programs (id, program_data) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET program_data = excluded.program_data
	`, p.ID.String(), p.ProgramData.String()); err != nil {
		return fmt.Errorf("failed to write program: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loader_program_data (address, program, upgrade_authority, image_ref, lamports, generation, deployed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			program = excluded.program,
			upgrade_authority = excluded.upgrade_authority,
			image_ref = excluded.image_ref,
			lamports = excluded.lamports,
			generation = excluded.generation,
			deployed_at = excluded.deployed_at
	`,
		pd.Address.String(),
		pd.Program.String(),
		pd.UpgradeAuthority.String(),
		pd.ImageRef,
		int64(pd.Lamports),
		int64(pd.Generation),
		pd.DeployedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("failed to write program data: %w", err)
	}

	return tx.Commit()
}

func (s *SQLState) PutBuffer(ctx context.Context, b *Buffer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loader_buffers (address, authority, image_ref, lamports) VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO UPDATE SET
			authority = excluded.authority,
			image_ref = excluded.image_ref,
			lamports = excluded.lamports
	`, b.Address.String(), b.Authority.String(), b.ImageRef, int64(b.Lamports))
	if err != nil {
		return fmt.Errorf("failed to write buffer: %w", err)
	}
	return nil
}

func (s *SQLState) CommitUpgrade(ctx context.Context, c Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	// Closing the buffer first makes a concurrent second upgrade from the same
	// buffer fail instead of crediting spill twice.
	res, err := tx.ExecContext(ctx, `DELETE FROM loader_buffers WHERE address = $1`, c.Buffer.String())
	if err != nil {
		return fmt.Errorf("failed to close buffer: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return ErrAccountNotFound
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE loader_program_data
		SET image_ref = $1, lamports = $2, generation = generation + 1, deployed_at = $3
		WHERE address = $4
	`, c.ImageRef, int64(c.ProgramDataLamports), c.DeployedAt.UTC().Format(time.RFC3339Nano), c.ProgramData.String())
	if err != nil {
		return fmt.Errorf("failed to replace image: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return ErrAccountNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO loader_balances (address, lamports) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET lamports = loader_balances.lamports + excluded.lamports
	`, c.Spill.String(), int64(c.SpillCredit)); err != nil {
		return fmt.Errorf("failed to credit spill: %w", err)
	}

	return tx.Commit()
}
