package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/artifacts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/pda"
	"github.com/Mindburn-Labs/helm-bridge/pkg/upgrade"
)

var (
	ErrSignerMismatch         = errors.New("signer seeds do not derive the authority")
	ErrInvalidArgument        = errors.New("invalid instruction account")
	ErrInvalidProgram         = errors.New("invalid program account")
	ErrImmutable              = errors.New("program is not upgradeable")
	ErrIncorrectAuthority     = errors.New("incorrect upgrade authority")
	ErrBufferAuthority        = errors.New("buffer authority does not match")
	ErrInvalidBuffer          = errors.New("invalid buffer account")
	ErrIncompatibleExecutable = errors.New("incompatible executable")
	ErrInsufficientFunds      = errors.New("insufficient funds for rent exemption")
)

// Rent parameters.
const (
	LamportsPerByteYear = 3480
	ExemptionYears      = 2
	AccountOverhead     = 128
	// ProgramDataHeader precedes the image in the program data record.
	ProgramDataHeader = 45
)

// RentExemptMinimum is the balance an account of size bytes must hold.
func RentExemptMinimum(size int) uint64 {
	return (uint64(size) + AccountOverhead) * LamportsPerByteYear * ExemptionYears
}

// Loader performs signed upgrades. It implements upgrade.Invoker.
type Loader struct {
	state     StateStore
	images    artifacts.Store
	validator ImageValidator
	now       func() time.Time
	logger    *slog.Logger

	// Serializes upgrades the way the runtime locks writable accounts.
	mu sync.Mutex
}

var _ upgrade.Invoker = (*Loader)(nil)

func NewLoader(state StateStore, images artifacts.Store, validator ImageValidator) *Loader {
	return &Loader{
		state:     state,
		images:    images,
		validator: validator,
		now:       time.Now,
		logger:    slog.Default().With("component", "loader"),
	}
}

// WithClock overrides the deployment timestamp source.
func (l *Loader) WithClock(now func() time.Time) *Loader {
	l.now = now
	return l
}

// State exposes the account store for inspection.
func (l *Loader) State() StateStore {
	return l.state
}

// Images exposes the image store.
func (l *Loader) Images() artifacts.Store {
	return l.images
}

// InvokeSigned executes the upgrade instruction. signerSeeds must derive
// ix.Authority under ix.Program.
func (l *Loader) InvokeSigned(ctx context.Context, ix upgrade.Instruction, signerSeeds [][]byte) error {
	signer, err := pda.CreateProgramAddress(signerSeeds, ix.Program)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignerMismatch, err)
	}
	if signer != ix.Authority {
		return fmt.Errorf("%w: derived %s, instruction names %s", ErrSignerMismatch, signer, ix.Authority)
	}

	if ix.Clock != contracts.SysvarClock || ix.Rent != contracts.SysvarRent || ix.SystemProgram != contracts.SystemProgram {
		return fmt.Errorf("%w: unexpected sysvar or system program", ErrInvalidArgument)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	program, err := l.state.Program(ctx, ix.Program)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%w: %s is not deployed", ErrInvalidProgram, ix.Program)
		}
		return err
	}
	if program.ProgramData != ix.ProgramData {
		return fmt.Errorf("%w: program data %s does not belong to %s", ErrInvalidProgram, ix.ProgramData, ix.Program)
	}

	pd, err := l.state.ProgramData(ctx, ix.ProgramData)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%w: missing program data %s", ErrInvalidProgram, ix.ProgramData)
		}
		return err
	}
	if pd.UpgradeAuthority.IsZero() {
		return ErrImmutable
	}
	if pd.UpgradeAuthority != ix.Authority {
		return fmt.Errorf("%w: expected %s", ErrIncorrectAuthority, pd.UpgradeAuthority)
	}

	buf, err := l.state.Buffer(ctx, ix.Buffer)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%w: %s", ErrInvalidBuffer, ix.Buffer)
		}
		return err
	}
	if buf.Authority != ix.Authority {
		return fmt.Errorf("%w: buffer %s has authority %s", ErrBufferAuthority, ix.Buffer, buf.Authority)
	}

	image, err := l.images.Get(ctx, buf.ImageRef)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBuffer, err)
	}
	if err := l.validator.Validate(ctx, image); err != nil {
		if errors.Is(err, ErrIncompatibleExecutable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrIncompatibleExecutable, err)
	}

	required := RentExemptMinimum(ProgramDataHeader + len(image))
	available := buf.Lamports + pd.Lamports
	if available < required {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, required, available)
	}

	commit := Commit{
		Program:             ix.Program,
		ProgramData:         ix.ProgramData,
		Buffer:              ix.Buffer,
		ImageRef:            buf.ImageRef,
		ProgramDataLamports: required,
		Spill:               ix.Spill,
		SpillCredit:         available - required,
		DeployedAt:          l.now().UTC(),
	}
	if err := l.state.CommitUpgrade(ctx, commit); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return fmt.Errorf("%w: %s was consumed concurrently", ErrInvalidBuffer, ix.Buffer)
		}
		return fmt.Errorf("commit upgrade: %w", err)
	}

	l.logger.InfoContext(ctx, "upgraded program",
		"program", ix.Program.String(),
		"image", buf.ImageRef,
		"spill", ix.Spill.String(),
		"spill_credit", commit.SpillCredit,
	)
	return nil
}

// Deploy installs image as programID with the given upgrade authority. The
// program data record is funded to exactly its rent-exempt minimum.
func (l *Loader) Deploy(ctx context.Context, programID, authority contracts.Address, image []byte) (*ProgramData, error) {
	if err := l.validator.Validate(ctx, image); err != nil {
		return nil, err
	}

	ref, err := l.images.Put(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	pdAddr, err := upgrade.ProgramDataAddress(programID)
	if err != nil {
		return nil, err
	}

	pd := &ProgramData{
		Address:          pdAddr,
		Program:          programID,
		UpgradeAuthority: authority,
		ImageRef:         ref,
		Lamports:         RentExemptMinimum(ProgramDataHeader + len(image)),
		Generation:       1,
		DeployedAt:       l.now().UTC(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.state.PutProgram(ctx, &Program{ID: programID, ProgramData: pdAddr}, pd); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "deployed program", "program", programID.String(), "image", ref)
	return pd, nil
}

// WriteBuffer stages image at addr under authority, funded with lamports.
// Staging does not validate the image; the upgrade does.
func (l *Loader) WriteBuffer(ctx context.Context, addr, authority contracts.Address, image []byte, lamports uint64) (*Buffer, error) {
	ref, err := l.images.Put(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	b := &Buffer{
		Address:   addr,
		Authority: authority,
		ImageRef:  ref,
		Lamports:  lamports,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.state.PutBuffer(ctx, b); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "staged buffer", "buffer", addr.String(), "image", ref, "lamports", lamports)
	return b, nil
}
