// Package contracts holds the identifiers shared by every bridge component:
// chain ids, 32-byte addresses and the well-known system accounts the
// upgrade loader expects.
package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/wormhole-foundation/wormhole/sdk/vaa"
)

// AddressLength is the size of every account, emitter and program address.
const AddressLength = 32

// ErrInvalidAddress is returned when an address string cannot be decoded.
var ErrInvalidAddress = errors.New("invalid address")

// ChainID identifies a deployment domain.
type ChainID uint16

// Sequence is the per-emitter monotonic message counter.
type Sequence uint64

// Address is a 32-byte account, emitter or program identifier.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address.
var ZeroAddress Address

// ParseAddress decodes a 64 character hex string, with or without a 0x prefix.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != AddressLength {
		return a, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is ParseAddress for compile-time constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes left-pads b into an Address. Inputs longer than 32 bytes are rejected.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) > AddressLength {
		return a, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(b))
	}
	copy(a[AddressLength-len(b):], b)
	return a, nil
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return a[:]
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// wellKnown derives a stable identifier for a named system account.
func wellKnown(name string) Address {
	return Address(sha256.Sum256([]byte("helm-bridge/system/" + name)))
}

var (
	// ChainIDSolana is the chain this deployment answers to by default.
	ChainIDSolana = ChainID(vaa.ChainIDSolana)
	// GovernanceChain is the chain governance decrees originate from.
	GovernanceChain = ChainID(vaa.GovernanceChain)
	// GovernanceEmitter is the emitter address of the governance contract.
	GovernanceEmitter = Address(vaa.GovernanceEmitter)

	SysvarClock       = wellKnown("sysvar/clock")
	SysvarRent        = wellKnown("sysvar/rent")
	SystemProgram     = wellKnown("system-program")
	UpgradeableLoader = wellKnown("upgradeable-loader")
)
