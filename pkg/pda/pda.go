// Package pda derives program-owned addresses: identities computed from a
// program id and a list of seeds that are guaranteed to have no private key,
// because the resulting 32 bytes are not a valid ed25519 point.
package pda

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

const (
	// MaxSeeds is the maximum number of seeds, bump included.
	MaxSeeds = 16
	// MaxSeedLength is the maximum length of a single seed.
	MaxSeedLength = 32

	marker = "ProgramDerivedAddress"
)

var (
	ErrMaxSeedLength = errors.New("pda: seed exceeds maximum length")
	ErrTooManySeeds  = errors.New("pda: too many seeds")
	ErrOnCurve       = errors.New("pda: derived address lies on the ed25519 curve")
	ErrNoViableBump  = errors.New("pda: unable to find a viable bump seed")
)

// CreateProgramAddress hashes seeds and programID into an address. It fails
// with ErrOnCurve when the result could have a private key.
func CreateProgramAddress(seeds [][]byte, programID contracts.Address) (contracts.Address, error) {
	if len(seeds) > MaxSeeds {
		return contracts.Address{}, ErrTooManySeeds
	}

	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return contracts.Address{}, fmt.Errorf("%w: seed %d is %d bytes", ErrMaxSeedLength, i, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(marker))

	var out contracts.Address
	copy(out[:], h.Sum(nil))

	if IsOnCurve(out) {
		return contracts.Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID contracts.Address) (contracts.Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return contracts.Address{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return contracts.Address{}, 0, err
		}
	}
	return contracts.Address{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether a decodes to a valid ed25519 point.
func IsOnCurve(a contracts.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}
