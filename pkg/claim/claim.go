// Package claim provides replay protection for governance messages.
//
// Every processed message leaves a permanent claim record at an address
// derived from (emitter chain, emitter address, sequence). Stores expose a
// single write operation, an atomic insert-if-absent. Records are never
// updated or removed, so a message identity can be claimed at most once.
package claim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/pda"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

var (
	// ErrExists is returned by a Store when the record address is occupied.
	ErrExists = errors.New("claim: record already exists")
	// ErrNotFound is returned by a Store when no record lives at an address.
	ErrNotFound = errors.New("claim: record not found")
	// ErrAlreadyExecuted means the message was processed before. It is terminal.
	ErrAlreadyExecuted = errors.New("governance message already executed")
)

// Key is the unique identity of a message.
type Key struct {
	Chain    contracts.ChainID  `json:"emitter_chain"`
	Emitter  contracts.Address  `json:"emitter_address"`
	Sequence contracts.Sequence `json:"sequence"`
}

// KeyFor extracts the claim key from a verified message.
func KeyFor(msg *vaa.VAA) Key {
	chain, emitter := vaa.Emitter(msg)
	return Key{Chain: chain, Emitter: emitter, Sequence: contracts.Sequence(msg.Sequence)}
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%d", k.Chain, k.Emitter, k.Sequence)
}

// Seeds are the derivation seeds of the claim address: emitter, chain, sequence.
func (k Key) Seeds() [][]byte {
	chain := make([]byte, 2)
	binary.BigEndian.PutUint16(chain, uint16(k.Chain))
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, uint64(k.Sequence))
	return [][]byte{k.Emitter[:], chain, seq}
}

// Address derives the record address of k under programID.
func (k Key) Address(programID contracts.Address) (contracts.Address, error) {
	addr, _, err := pda.FindProgramAddress(k.Seeds(), programID)
	if err != nil {
		return contracts.Address{}, fmt.Errorf("derive claim address for %s: %w", k, err)
	}
	return addr, nil
}

// Record is the immutable marker left by a processed message.
type Record struct {
	Address   contracts.Address `json:"address"`
	Key       Key               `json:"key"`
	Payer     contracts.Address `json:"payer"`
	ClaimedAt time.Time         `json:"claimed_at"`
}

// Store persists claim records.
type Store interface {
	// Create inserts r unless its address is occupied, in which case it returns
	// ErrExists. The check and the insert are a single atomic step.
	Create(ctx context.Context, r *Record) error
	// Get returns the record at addr or ErrNotFound.
	Get(ctx context.Context, addr contracts.Address) (*Record, error)
}

// Guard turns message identities into claim records.
type Guard struct {
	store     Store
	programID contracts.Address
	now       func() time.Time
	logger    *slog.Logger
}

// NewGuard creates a guard writing to store. now defaults to time.Now.
func NewGuard(store Store, programID contracts.Address, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{
		store:     store,
		programID: programID,
		now:       now,
		logger:    slog.Default().With("component", "claim"),
	}
}

// Address returns where the record for key lives.
func (g *Guard) Address(key Key) (contracts.Address, error) {
	return key.Address(g.programID)
}

// Claim records key as processed, paid for by payer. A second claim of the
// same key fails with ErrAlreadyExecuted; other failures are storage errors.
func (g *Guard) Claim(ctx context.Context, key Key, payer contracts.Address) (*Record, error) {
	addr, err := g.Address(key)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Address:   addr,
		Key:       key,
		Payer:     payer,
		ClaimedAt: g.now().UTC(),
	}

	if err := g.store.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrExists) {
			g.logger.WarnContext(ctx, "replay rejected", "message", key.String(), "claim", addr.String())
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExecuted, key)
		}
		return nil, fmt.Errorf("create claim %s: %w", key, err)
	}

	g.logger.InfoContext(ctx, "message claimed", "message", key.String(), "claim", addr.String(), "payer", payer.String())
	return rec, nil
}

// Lookup returns the claim record for key, or ErrNotFound.
func (g *Guard) Lookup(ctx context.Context, key Key) (*Record, error) {
	addr, err := g.Address(key)
	if err != nil {
		return nil, err
	}
	return g.store.Get(ctx, addr)
}
