// Package governance parses token bridge governance payloads and validates
// contract upgrade decrees against this deployment.
package governance

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

// Module is the governance module name, left-padded to 32 bytes on the wire.
const Module = "TokenBridge"

// Action identifies a governance decree kind.
type Action uint8

const (
	ActionRegisterChain   Action = 1
	ActionContractUpgrade Action = 2
	ActionRecoverChainID  Action = 3
)

func (a Action) String() string {
	switch a {
	case ActionRegisterChain:
		return "RegisterChain"
	case ActionContractUpgrade:
		return "ContractUpgrade"
	case ActionRecoverChainID:
		return "RecoverChainId"
	default:
		return "Unknown"
	}
}

// headerLength covers module, action and target chain.
const headerLength = 32 + 1 + 2

// Payload is a decoded governance decree. The set of variants is closed.
type Payload interface {
	Action() Action
	// TargetChain is the chain the decree is addressed to; zero means every chain.
	TargetChain() contracts.ChainID
	Encode() []byte
	isPayload()
}

// ContractUpgrade authorizes replacing the program with Implementation.
type ContractUpgrade struct {
	Chain          contracts.ChainID
	Implementation contracts.Address
}

// RegisterChain registers a foreign token bridge emitter.
type RegisterChain struct {
	Chain          contracts.ChainID
	EmitterChain   contracts.ChainID
	EmitterAddress contracts.Address
}

// RecoverChainID reassigns the chain id after a fork of the host chain.
type RecoverChainID struct {
	EVMChainID *big.Int
	NewChainID contracts.ChainID
}

func (ContractUpgrade) Action() Action { return ActionContractUpgrade }
func (RegisterChain) Action() Action   { return ActionRegisterChain }
func (RecoverChainID) Action() Action  { return ActionRecoverChainID }

func (d ContractUpgrade) TargetChain() contracts.ChainID { return d.Chain }
func (d RegisterChain) TargetChain() contracts.ChainID   { return d.Chain }
func (RecoverChainID) TargetChain() contracts.ChainID    { return 0 }

func (ContractUpgrade) isPayload() {}
func (RegisterChain) isPayload()   {}
func (RecoverChainID) isPayload()  {}

func moduleBytes() []byte {
	b := make([]byte, 32)
	copy(b[32-len(Module):], Module)
	return b
}

func header(action Action, chain contracts.ChainID) *bytes.Buffer {
	buf := new(bytes.Buffer)
	buf.Write(moduleBytes())
	buf.WriteByte(byte(action))
	_ = binary.Write(buf, binary.BigEndian, uint16(chain))
	return buf
}

func (d ContractUpgrade) Encode() []byte {
	body := vaa.BodyTokenBridgeUpgradeContract{
		Module:        Module,
		TargetChainID: vaa.ChainID(d.Chain),
		NewContract:   vaa.Address(d.Implementation),
	}
	b, err := body.Serialize()
	if err != nil {
		// Module is a constant shorter than 32 bytes.
		panic(err)
	}
	return b
}

func (d RegisterChain) Encode() []byte {
	buf := header(ActionRegisterChain, d.Chain)
	_ = binary.Write(buf, binary.BigEndian, uint16(d.EmitterChain))
	buf.Write(d.EmitterAddress[:])
	return buf.Bytes()
}

func (d RecoverChainID) Encode() []byte {
	buf := header(ActionRecoverChainID, 0)
	evm := make([]byte, 32)
	if d.EVMChainID != nil {
		d.EVMChainID.FillBytes(evm)
	}
	buf.Write(evm)
	_ = binary.Write(buf, binary.BigEndian, uint16(d.NewChainID))
	return buf.Bytes()
}

// Parse decodes a governance payload. It returns false when the module,
// action or length is not recognized; callers must treat that as a rejection.
func Parse(payload []byte) (Payload, bool) {
	if len(payload) < headerLength {
		return nil, false
	}
	if !bytes.Equal(payload[:32], moduleBytes()) {
		return nil, false
	}

	action := Action(payload[32])
	chain := contracts.ChainID(binary.BigEndian.Uint16(payload[33:35]))
	body := payload[headerLength:]

	switch action {
	case ActionContractUpgrade:
		if len(body) != contracts.AddressLength {
			return nil, false
		}
		d := ContractUpgrade{Chain: chain}
		copy(d.Implementation[:], body)
		return d, true
	case ActionRegisterChain:
		if len(body) != 2+contracts.AddressLength {
			return nil, false
		}
		d := RegisterChain{
			Chain:        chain,
			EmitterChain: contracts.ChainID(binary.BigEndian.Uint16(body[:2])),
		}
		copy(d.EmitterAddress[:], body[2:])
		return d, true
	case ActionRecoverChainID:
		if len(body) != 32+2 || chain != 0 {
			return nil, false
		}
		return RecoverChainID{
			EVMChainID: new(big.Int).SetBytes(body[:32]),
			NewChainID: contracts.ChainID(binary.BigEndian.Uint16(body[32:])),
		}, true
	default:
		return nil, false
	}
}
