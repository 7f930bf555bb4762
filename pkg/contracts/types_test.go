package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x0000000000000000000000000000000000000000000000000000000000000004")
	require.NoError(t, err)
	assert.Equal(t, GovernanceEmitter, a)
	assert.Equal(t, byte(4), a[31])

	_, err = ParseAddress("abcd")
	require.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ParseAddress("zz")
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressFromBytes(t *testing.T) {
	a, err := AddressFromBytes([]byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, byte(1), a[30])
	assert.Equal(t, byte(2), a[31])

	_, err = AddressFromBytes(make([]byte, 33))
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressJSON(t *testing.T) {
	type wrapper struct {
		A Address `json:"a"`
	}
	in := wrapper{A: SysvarClock}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.A, out.A)
}

func TestWellKnownDistinct(t *testing.T) {
	ids := map[Address]bool{SysvarClock: true, SysvarRent: true, SystemProgram: true, UpgradeableLoader: true}
	assert.Len(t, ids, 4)
	assert.False(t, SysvarClock.IsZero())
	assert.True(t, ZeroAddress.IsZero())
}
