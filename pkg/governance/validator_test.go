package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkvaa "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

func message(payload []byte) *vaa.VAA {
	return &vaa.VAA{
		Version:        vaa.SupportedVersion,
		EmitterChain:   sdkvaa.GovernanceChain,
		EmitterAddress: sdkvaa.GovernanceEmitter,
		Sequence:       42,
		Payload:        payload,
	}
}

func TestValidate(t *testing.T) {
	implY := contracts.MustParseAddress("2222222222222222222222222222222222222222222222222222222222222222")
	v := NewValidator(contracts.ChainIDSolana)

	tests := []struct {
		name      string
		payload   []byte
		candidate contracts.Address
		wantErr   error
	}{
		{"valid decree", ContractUpgrade{Chain: 1, Implementation: implX}.Encode(), implX, nil},
		{"another chain", ContractUpgrade{Chain: 2, Implementation: implX}.Encode(), implX, ErrGovernanceForAnotherChain},
		{"implementation mismatch", ContractUpgrade{Chain: 1, Implementation: implX}.Encode(), implY, ErrImplementationMismatch},
		{"register chain is not an upgrade", RegisterChain{EmitterChain: 2, EmitterAddress: implX}.Encode(), implX, ErrInvalidGovernanceAction},
		{"garbage payload", []byte("garbage"), implX, ErrInvalidGovernanceAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decree, err := v.Validate(message(tt.payload), tt.candidate)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, decree)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, implX, decree.Implementation)
			assert.Equal(t, contracts.ChainIDSolana, decree.Chain)
		})
	}
}

func TestValidate_ChainCheckedBeforeImplementation(t *testing.T) {
	implY := contracts.MustParseAddress("2222222222222222222222222222222222222222222222222222222222222222")
	v := NewValidator(contracts.ChainIDSolana)

	_, err := v.Validate(message(ContractUpgrade{Chain: 2, Implementation: implX}.Encode()), implY)
	require.ErrorIs(t, err, ErrGovernanceForAnotherChain)
}

func TestValidate_Repeatable(t *testing.T) {
	v := NewValidator(contracts.ChainIDSolana)
	msg := message(ContractUpgrade{Chain: 1, Implementation: implX}.Encode())
	before := append([]byte{}, msg.Payload...)

	d1, err1 := v.Validate(msg, implX)
	d2, err2 := v.Validate(msg, implX)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, d1, d2)
	assert.Equal(t, before, msg.Payload)
}
