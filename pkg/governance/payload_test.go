package governance

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

var implX = contracts.MustParseAddress("1111111111111111111111111111111111111111111111111111111111111111")

func TestParse_Variants(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{"contract upgrade", ContractUpgrade{Chain: 1, Implementation: implX}},
		{"register chain", RegisterChain{Chain: 0, EmitterChain: 2, EmitterAddress: implX}},
		{"recover chain id", RecoverChainID{EVMChainID: big.NewInt(5), NewChainID: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.payload.Encode())
			require.True(t, ok)
			assert.Equal(t, tt.payload.Action(), got.Action())
			assert.Equal(t, tt.payload.Encode(), got.Encode())
		})
	}
}

func TestContractUpgrade_EncodeLayout(t *testing.T) {
	raw := ContractUpgrade{Chain: 1, Implementation: implX}.Encode()
	require.Len(t, raw, headerLength+contracts.AddressLength)
	assert.Equal(t, moduleBytes(), raw[:32])
	assert.Equal(t, byte(ActionContractUpgrade), raw[32])
	assert.Equal(t, []byte{0, 1}, raw[33:35])
	assert.Equal(t, implX[:], raw[35:])
}

func TestParse_Unrecognized(t *testing.T) {
	valid := ContractUpgrade{Chain: 1, Implementation: implX}.Encode()

	tests := map[string][]byte{
		"empty":          nil,
		"short":          valid[:20],
		"trailing bytes": append(append([]byte{}, valid...), 0),
		"truncated body": valid[:len(valid)-1],
	}

	wrongModule := append([]byte{}, valid...)
	wrongModule[31] = 'X'
	tests["wrong module"] = wrongModule

	unknownAction := append([]byte{}, valid...)
	unknownAction[32] = 9
	tests["unknown action"] = unknownAction

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			p, ok := Parse(payload)
			assert.False(t, ok)
			assert.Nil(t, p)
		})
	}
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "ContractUpgrade", ActionContractUpgrade.String())
	assert.Equal(t, "Unknown", Action(0).String())
}
