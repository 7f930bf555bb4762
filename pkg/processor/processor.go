// Package processor handles governance-authorized contract upgrades: it
// authenticates the message, validates the decree, claims the message and
// invokes the loader, then issues a signed receipt.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
	"github.com/Mindburn-Labs/helm-bridge/pkg/claim"
	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/governance"
	"github.com/Mindburn-Labs/helm-bridge/pkg/observability"
	"github.com/Mindburn-Labs/helm-bridge/pkg/receipts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/upgrade"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

// InstructionName is logged for every upgrade invocation.
const InstructionName = "LegacyUpgradeContract"

// Request carries the accounts of one upgrade instruction.
type Request struct {
	// VAA is the signed governance message.
	VAA []byte `json:"vaa"`
	// Payer funds the claim record.
	Payer contracts.Address `json:"payer"`
	// Buffer is the staged candidate implementation.
	Buffer contracts.Address `json:"buffer"`
	// Spill receives the lamports released by the upgrade.
	Spill contracts.Address `json:"spill"`
	// Claim, when set, must equal the claim address derived from the message.
	Claim *contracts.Address `json:"claim,omitempty"`
}

// Processor executes contract upgrade instructions for one program.
type Processor struct {
	verifier  *vaa.Verifier
	validator *governance.Validator
	guard     *claim.Guard
	executor  *upgrade.Executor
	receipts  receipts.Store
	signer    *receipts.Signer
	telemetry *observability.Provider
	metrics   *observability.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// Deps are the collaborators a Processor needs.
type Deps struct {
	Verifier  *vaa.Verifier
	Validator *governance.Validator
	Guard     *claim.Guard
	Executor  *upgrade.Executor
	Receipts  receipts.Store
	Signer    *receipts.Signer

	// Optional.
	Telemetry *observability.Provider
	Metrics   *observability.Metrics
	Now       func() time.Time
	Logger    *slog.Logger
}

func New(d Deps) (*Processor, error) {
	switch {
	case d.Verifier == nil:
		return nil, errors.New("processor: verifier is required")
	case d.Validator == nil:
		return nil, errors.New("processor: validator is required")
	case d.Guard == nil:
		return nil, errors.New("processor: claim guard is required")
	case d.Executor == nil:
		return nil, errors.New("processor: executor is required")
	case d.Receipts == nil || d.Signer == nil:
		return nil, errors.New("processor: receipt store and signer are required")
	}

	p := &Processor{
		verifier:  d.Verifier,
		validator: d.Validator,
		guard:     d.Guard,
		executor:  d.Executor,
		receipts:  d.Receipts,
		signer:    d.Signer,
		telemetry: d.Telemetry,
		metrics:   d.Metrics,
		now:       d.Now,
		logger:    d.Logger,
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "processor")
	if p.now == nil {
		p.now = time.Now
	}
	if p.telemetry == nil {
		// Disabled providers never fail.
		p.telemetry, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}
	return p, nil
}

// UpgradeContract replaces the program's executable with req.Buffer when the
// message carries a valid decree for it. The message is claimed before the
// loader runs, so a loader failure still consumes it; the returned receipt
// then has StatusFailed and the error is of kind PrivilegedOperationFailed.
func (p *Processor) UpgradeContract(ctx context.Context, req Request) (*receipts.Receipt, error) {
	start := p.now()
	p.logger.InfoContext(ctx, InstructionName,
		"request_id", auth.GetRequestID(ctx),
		"payer", req.Payer.String(),
		"buffer", req.Buffer.String(),
		"spill", req.Spill.String(),
	)

	ctx, finish := p.telemetry.TrackUpgrade(ctx, p.executor.ProgramID().String())
	rcpt, err := p.upgradeContract(ctx, req)
	finish(outcome(err), err)

	if p.metrics != nil {
		p.metrics.RecordUpgrade(outcome(err), p.now().Sub(start))
	}
	if err != nil {
		p.logger.WarnContext(ctx, "upgrade rejected", "kind", string(Kind(err)), "error", err)
	}
	return rcpt, err
}

func (p *Processor) upgradeContract(ctx context.Context, req Request) (*receipts.Receipt, error) {
	msg, err := p.verifier.Load(req.VAA)
	if err != nil {
		return nil, err
	}
	if err := p.verifier.RequireGovernance(msg); err != nil {
		return nil, err
	}
	key := claim.KeyFor(msg)
	observability.AddSpanEvent(ctx, "verified",
		observability.MessageOperation(uint16(key.Chain), key.Emitter.String(), uint64(key.Sequence))...)

	decree, err := p.validator.Validate(msg, req.Buffer)
	if err != nil {
		return nil, err
	}
	observability.AddSpanEvent(ctx, "validated", observability.AttrImplementation.String(decree.Implementation.String()))

	if req.Claim != nil {
		want, err := p.guard.Address(key)
		if err != nil {
			return nil, err
		}
		if *req.Claim != want {
			return nil, fmt.Errorf("%w: expected %s, got %s", ErrClaimAddressMismatch, want, *req.Claim)
		}
	}

	rec, err := p.guard.Claim(ctx, key, req.Payer)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.RecordClaim()
	}
	observability.AddSpanEvent(ctx, "claimed", observability.AttrClaim.String(rec.Address.String()))

	authority, execErr := p.executor.Execute(ctx, decree, req.Buffer, req.Spill)

	rcpt := &receipts.Receipt{
		ID:             receipts.NewID(),
		MessageID:      msg.MessageID(),
		Chain:          key.Chain,
		Emitter:        key.Emitter,
		Sequence:       key.Sequence,
		ClaimAddress:   rec.Address,
		Program:        p.executor.ProgramID(),
		Implementation: decree.Implementation,
		Authority:      authority.Address,
		Bump:           authority.Bump,
		Spill:          req.Spill,
		Payer:          req.Payer,
		Status:         receipts.StatusUpgraded,
		IssuedAt:       p.now().UTC(),
	}
	if execErr != nil {
		rcpt.Status = receipts.StatusFailed
		rcpt.Error = execErr.Error()
	}
	p.issue(ctx, rcpt)
	return rcpt, execErr
}

// issue signs and stores rcpt. The upgrade outcome is already final, so a
// storage failure is logged rather than returned.
func (p *Processor) issue(ctx context.Context, rcpt *receipts.Receipt) {
	if err := p.signer.Sign(rcpt); err != nil {
		p.logger.ErrorContext(ctx, "failed to sign receipt", "receipt", rcpt.ID, "error", err)
		return
	}
	if err := p.receipts.Append(ctx, rcpt); err != nil {
		p.logger.ErrorContext(ctx, "failed to record receipt", "receipt", rcpt.ID, "message", rcpt.MessageID, "error", err)
	}
}

// Claim returns the claim record of a message, or claim.ErrNotFound.
func (p *Processor) Claim(ctx context.Context, key claim.Key) (*claim.Record, error) {
	return p.guard.Lookup(ctx, key)
}

// ClaimAddress returns where the claim of key is recorded.
func (p *Processor) ClaimAddress(key claim.Key) (contracts.Address, error) {
	return p.guard.Address(key)
}

// Receipt returns a stored receipt by id.
func (p *Processor) Receipt(ctx context.Context, id string) (*receipts.Receipt, error) {
	return p.receipts.Get(ctx, id)
}

// Receipts lists the newest receipts.
func (p *Processor) Receipts(ctx context.Context, limit int) ([]*receipts.Receipt, error) {
	return p.receipts.List(ctx, limit)
}

// SignerKey is the hex public key receipts are signed with.
func (p *Processor) SignerKey() string {
	return p.signer.PublicKey()
}
