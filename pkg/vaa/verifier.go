package vaa

import (
	"errors"
	"fmt"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	sdkvaa "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

var (
	ErrUnknownGuardianSet       = errors.New("vaa: unknown guardian set")
	ErrNoQuorum                 = errors.New("vaa: no quorum")
	ErrInvalidSignature         = errors.New("vaa: invalid signature")
	ErrInvalidGovernanceEmitter = errors.New("vaa: invalid governance emitter")
)

// GuardianSet is the set of guardian addresses whose quorum authenticates a
// message.
type GuardianSet struct {
	Index uint32
	Keys  []ethcommon.Address
}

// Verifier authenticates messages against the configured guardian sets and
// checks governance messages against the configured governance emitter.
type Verifier struct {
	mu                sync.RWMutex
	sets              map[uint32]*GuardianSet
	governanceChain   contracts.ChainID
	governanceEmitter contracts.Address
}

func NewVerifier(governanceChain contracts.ChainID, governanceEmitter contracts.Address, sets ...*GuardianSet) *Verifier {
	v := &Verifier{
		sets:              make(map[uint32]*GuardianSet, len(sets)),
		governanceChain:   governanceChain,
		governanceEmitter: governanceEmitter,
	}
	for _, gs := range sets {
		v.sets[gs.Index] = gs
	}
	return v
}

// AddGuardianSet registers or replaces a guardian set.
func (v *Verifier) AddGuardianSet(gs *GuardianSet) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sets[gs.Index] = gs
}

// Load decodes raw and verifies its signatures.
func (v *Verifier) Load(raw []byte) (*VAA, error) {
	msg, err := Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	if err := v.Verify(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Verify checks that msg carries a quorum of valid, strictly ordered guardian
// signatures.
func (v *Verifier) Verify(msg *VAA) error {
	v.mu.RLock()
	gs, ok := v.sets[msg.GuardianSetIndex]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownGuardianSet, msg.GuardianSetIndex)
	}

	quorum := sdkvaa.CalculateQuorum(len(gs.Keys))
	if len(msg.Signatures) < quorum {
		return fmt.Errorf("%w: have %d signatures, need %d", ErrNoQuorum, len(msg.Signatures), quorum)
	}

	digest := msg.SigningDigest()
	last := -1
	for _, sig := range msg.Signatures {
		idx := int(sig.Index)
		if idx <= last {
			return fmt.Errorf("%w: guardian index %d out of order", ErrInvalidSignature, idx)
		}
		last = idx
		if idx >= len(gs.Keys) {
			return fmt.Errorf("%w: guardian index %d not in set %d", ErrInvalidSignature, idx, gs.Index)
		}

		pk, err := crypto.Ecrecover(digest.Bytes(), sig.Signature[:])
		if err != nil {
			return fmt.Errorf("%w: guardian %d: %v", ErrInvalidSignature, idx, err)
		}
		signer := ethcommon.BytesToAddress(crypto.Keccak256(pk[1:])[12:])
		if signer != gs.Keys[idx] {
			return fmt.Errorf("%w: guardian %d: recovered %s, expected %s", ErrInvalidSignature, idx, signer.Hex(), gs.Keys[idx].Hex())
		}
	}
	return nil
}

// RequireGovernance rejects messages not emitted by the governance emitter.
func (v *Verifier) RequireGovernance(msg *VAA) error {
	chain, emitter := Emitter(msg)
	if chain != v.governanceChain || emitter != v.governanceEmitter {
		return fmt.Errorf("%w: %s", ErrInvalidGovernanceEmitter, msg.MessageID())
	}
	return nil
}
