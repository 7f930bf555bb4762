//go:build property
// +build property

package governance_test

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/governance"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

// TestForeignChainAlwaysRejected verifies decrees for any other chain never validate.
// Property: target != deployment => ErrGovernanceForAnotherChain, on every repetition.
func TestForeignChainAlwaysRejected(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	v := governance.NewValidator(contracts.ChainIDSolana)

	properties.Property("foreign decrees are rejected", prop.ForAll(
		func(target uint16, impl []byte) bool {
			if contracts.ChainID(target) == contracts.ChainIDSolana {
				return true
			}
			var addr contracts.Address
			copy(addr[:], impl)
			msg := &vaa.VAA{Payload: governance.ContractUpgrade{Chain: contracts.ChainID(target), Implementation: addr}.Encode()}

			_, err1 := v.Validate(msg, addr)
			_, err2 := v.Validate(msg, addr)
			return errors.Is(err1, governance.ErrGovernanceForAnotherChain) &&
				errors.Is(err2, governance.ErrGovernanceForAnotherChain)
		},
		gen.UInt16(),
		gen.SliceOfN(32, gen.UInt8()),
	))

	properties.TestingRun(t)
}
