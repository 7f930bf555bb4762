// Package vaa decodes and verifies governance messages: payloads emitted on a
// source chain and attested by a quorum of a known guardian set.
//
// The wire format and signing digest are those of the Wormhole SDK. Guardians
// sign the double keccak256 of the body with secp256k1 keys and are identified
// by their 20-byte Ethereum addresses.
package vaa

import (
	"errors"
	"fmt"

	sdkvaa "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

const SupportedVersion = sdkvaa.SupportedVAAVersion

var (
	ErrMalformed          = errors.New("vaa: malformed message")
	ErrUnsupportedVersion = errors.New("vaa: unsupported version")
)

// VAA is an authenticated cross-chain message.
type VAA = sdkvaa.VAA

// Unmarshal decodes a message. It does not verify signatures.
func Unmarshal(data []byte) (*VAA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	if data[0] != SupportedVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}
	msg, err := sdkvaa.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, nil
}

// Emitter returns the emitter of msg in the bridge's own types.
func Emitter(msg *VAA) (contracts.ChainID, contracts.Address) {
	return contracts.ChainID(msg.EmitterChain), contracts.Address(msg.EmitterAddress)
}
