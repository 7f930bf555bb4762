// Package loader is a reference upgradeable program loader. It owns program
// images and their metadata records and performs signed upgrades.
package loader

import (
	"context"
	"errors"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

var ErrAccountNotFound = errors.New("account not found")

// Program is the executable account. Its image lives in the ProgramData record.
type Program struct {
	ID          contracts.Address `json:"id"`
	ProgramData contracts.Address `json:"program_data"`
}

// ProgramData holds the current image of a program and who may replace it.
// A zero UpgradeAuthority makes the program immutable.
type ProgramData struct {
	Address          contracts.Address `json:"address"`
	Program          contracts.Address `json:"program"`
	UpgradeAuthority contracts.Address `json:"upgrade_authority"`
	ImageRef         string            `json:"image_ref"`
	Lamports         uint64            `json:"lamports"`
	Generation       uint64            `json:"generation"`
	DeployedAt       time.Time         `json:"deployed_at"`
}

// Buffer is a staged image waiting to be deployed.
type Buffer struct {
	Address   contracts.Address `json:"address"`
	Authority contracts.Address `json:"authority"`
	ImageRef  string            `json:"image_ref"`
	Lamports  uint64            `json:"lamports"`
}

// Commit is the full effect of one upgrade. It is applied all or nothing.
type Commit struct {
	Program             contracts.Address
	ProgramData         contracts.Address
	Buffer              contracts.Address
	ImageRef            string
	ProgramDataLamports uint64
	Spill               contracts.Address
	SpillCredit         uint64
	DeployedAt          time.Time
}

// StateStore persists loader accounts.
type StateStore interface {
	Program(ctx context.Context, id contracts.Address) (*Program, error)
	ProgramData(ctx context.Context, addr contracts.Address) (*ProgramData, error)
	Buffer(ctx context.Context, addr contracts.Address) (*Buffer, error)
	Balance(ctx context.Context, addr contracts.Address) (uint64, error)

	PutProgram(ctx context.Context, p *Program, pd *ProgramData) error
	PutBuffer(ctx context.Context, b *Buffer) error
	// CommitUpgrade replaces the image, closes the buffer and credits spill.
	// It fails with ErrAccountNotFound if the buffer was already consumed.
	CommitUpgrade(ctx context.Context, c Commit) error
}
