package upgrade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/governance"
)

// ErrPrivilegedOperationFailed wraps every failure after the candidate check:
// account derivation, instruction assembly and the loader invocation.
var ErrPrivilegedOperationFailed = errors.New("privileged operation failed")

// Instruction is the loader's upgrade instruction with every account it reads.
type Instruction struct {
	Program       contracts.Address `json:"program"`
	ProgramData   contracts.Address `json:"program_data"`
	Buffer        contracts.Address `json:"buffer"`
	Authority     contracts.Address `json:"authority"`
	Spill         contracts.Address `json:"spill"`
	Clock         contracts.Address `json:"clock"`
	Rent          contracts.Address `json:"rent"`
	SystemProgram contracts.Address `json:"system_program"`
}

// NewUpgradeInstruction builds the upgrade instruction for programID.
func NewUpgradeInstruction(programID, buffer, authority, spill contracts.Address) (Instruction, error) {
	programData, err := ProgramDataAddress(programID)
	if err != nil {
		return Instruction{}, err
	}
	return Instruction{
		Program:       programID,
		ProgramData:   programData,
		Buffer:        buffer,
		Authority:     authority,
		Spill:         spill,
		Clock:         contracts.SysvarClock,
		Rent:          contracts.SysvarRent,
		SystemProgram: contracts.SystemProgram,
	}, nil
}

// Invoker performs the privileged upgrade. signerSeeds prove that the caller
// controls ix.Authority.
type Invoker interface {
	InvokeSigned(ctx context.Context, ix Instruction, signerSeeds [][]byte) error
}

// Executor replaces the program's executable on behalf of validated decrees.
// Callers must have committed the replay claim before calling Execute.
type Executor struct {
	programID contracts.Address
	invoker   Invoker
	derive    func(contracts.Address) (Authority, error)
	logger    *slog.Logger
}

func NewExecutor(programID contracts.Address, invoker Invoker) *Executor {
	return &Executor{
		programID: programID,
		invoker:   invoker,
		derive:    DeriveAuthority,
		logger:    slog.Default().With("component", "upgrade"),
	}
}

// ProgramID returns the program this executor upgrades.
func (e *Executor) ProgramID() contracts.Address {
	return e.programID
}

// Authority returns the derived upgrade authority.
func (e *Executor) Authority() (Authority, error) {
	return e.derive(e.programID)
}

// Execute upgrades the program to candidate and sends residual lamports to spill.
// It returns the authority that signed the upgrade, also on failure once derived.
func (e *Executor) Execute(ctx context.Context, decree *governance.ContractUpgrade, candidate, spill contracts.Address) (Authority, error) {
	if decree.Implementation != candidate {
		return Authority{}, fmt.Errorf("%w: decree authorizes %s, candidate is %s", governance.ErrImplementationMismatch, decree.Implementation, candidate)
	}

	authority, err := e.derive(e.programID)
	if err != nil {
		return Authority{}, fmt.Errorf("%w: %w", ErrPrivilegedOperationFailed, err)
	}

	ix, err := NewUpgradeInstruction(e.programID, candidate, authority.Address, spill)
	if err != nil {
		return authority, fmt.Errorf("%w: %w", ErrPrivilegedOperationFailed, err)
	}

	if err := e.invoker.InvokeSigned(ctx, ix, authority.SignerSeeds()); err != nil {
		e.logger.ErrorContext(ctx, "upgrade failed",
			"program", e.programID.String(),
			"buffer", candidate.String(),
			"error", err,
		)
		return authority, fmt.Errorf("%w: %w", ErrPrivilegedOperationFailed, err)
	}

	e.logger.InfoContext(ctx, "program upgraded",
		"program", e.programID.String(),
		"buffer", candidate.String(),
		"authority", authority.Address.String(),
		"spill", spill.String(),
	)
	return authority, nil
}
