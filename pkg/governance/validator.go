package governance

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

var (
	ErrInvalidGovernanceAction   = errors.New("invalid governance action")
	ErrGovernanceForAnotherChain = errors.New("governance for another chain")
	ErrImplementationMismatch    = errors.New("implementation mismatch")
)

// Validator checks contract upgrade decrees addressed to one deployment.
// It never mutates state, so Validate can be repeated freely.
type Validator struct {
	Chain contracts.ChainID
}

func NewValidator(chain contracts.ChainID) *Validator {
	return &Validator{Chain: chain}
}

// Validate returns the decree carried by msg when it is a contract upgrade
// for this chain whose implementation is the staged candidate.
func (v *Validator) Validate(msg *vaa.VAA, candidate contracts.Address) (*ContractUpgrade, error) {
	payload, ok := Parse(msg.Payload)
	if !ok {
		return nil, ErrInvalidGovernanceAction
	}
	decree, ok := payload.(ContractUpgrade)
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidGovernanceAction, payload.Action())
	}

	if decree.Chain != v.Chain {
		return nil, fmt.Errorf("%w: decree targets %d, this deployment is %d", ErrGovernanceForAnotherChain, decree.Chain, v.Chain)
	}

	if decree.Implementation != candidate {
		return nil, fmt.Errorf("%w: decree authorizes %s, candidate is %s", ErrImplementationMismatch, decree.Implementation, candidate)
	}

	return &decree, nil
}
