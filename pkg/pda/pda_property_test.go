//go:build property
// +build property

package pda_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/pda"
)

// TestDerivationDeterminism verifies the same seeds always give the same address and bump.
// Property: Find(s, p) == Find(s, p), and the result is never on the curve.
func TestDerivationDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("derivation is deterministic and off-curve", prop.ForAll(
		func(seed string, program []byte) bool {
			if len(seed) > pda.MaxSeedLength {
				seed = seed[:pda.MaxSeedLength]
			}
			var programID contracts.Address
			copy(programID[:], program)

			a1, b1, err1 := pda.FindProgramAddress([][]byte{[]byte(seed)}, programID)
			a2, b2, err2 := pda.FindProgramAddress([][]byte{[]byte(seed)}, programID)
			if err1 != nil || err2 != nil {
				return false
			}
			return a1 == a2 && b1 == b2 && !pda.IsOnCurve(a1)
		},
		gen.AlphaString(),
		gen.SliceOfN(32, gen.UInt8()),
	))

	properties.TestingRun(t)
}
