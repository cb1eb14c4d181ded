// Package userop defines the UserOperation data model: the
// immutable pseudo-transaction tuple that the bundler validates, pools, and
// eventually includes in a handleOps bundle, along with the records derived
// from validating and pooling one.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UserOperation is the ERC-4337 intent tuple. All big.Int fields are
// treated as 256-bit unsigned values; nil is never a valid field value
// once a UserOperation has been decoded off the wire or an RPC request.
type UserOperation struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// Factory returns the factory address encoded in InitCode, and whether one
// is present. The first 20 bytes of a non-empty InitCode
// identify the factory contract.
func (op *UserOperation) Factory() (common.Address, bool) {
	if len(op.InitCode) < 20 {
		return common.Address{}, false
	}
	return common.BytesToAddress(op.InitCode[:20]), true
}

// Paymaster returns the paymaster address encoded in PaymasterAndData, and
// whether one is present.
func (op *UserOperation) Paymaster() (common.Address, bool) {
	if len(op.PaymasterAndData) < 20 {
		return common.Address{}, false
	}
	return common.BytesToAddress(op.PaymasterAndData[:20]), true
}

// EntityKind enumerates the three referenceable entities in an admission
// decision.
type EntityKind uint8

const (
	EntityFactory EntityKind = iota
	EntityPaymaster
	EntityAggregator
)

func (k EntityKind) String() string {
	switch k {
	case EntityFactory:
		return "factory"
	case EntityPaymaster:
		return "paymaster"
	case EntityAggregator:
		return "aggregator"
	default:
		return "unknown"
	}
}

// Entity identifies one of the three entity kinds a UserOperation may
// reference, plus its on-chain address.
type Entity struct {
	Kind    EntityKind
	Address common.Address
}

// Entities returns every entity referenced by op, derived from InitCode /
// PaymasterAndData and the aggregator discovered during simulation (if
// any). The sender itself is never an "entity" in the ERC-7562
// sense — it is level 0 and always present.
func (op *UserOperation) Entities(aggregator *common.Address) []Entity {
	var entities []Entity
	if addr, ok := op.Factory(); ok {
		entities = append(entities, Entity{Kind: EntityFactory, Address: addr})
	}
	if addr, ok := op.Paymaster(); ok {
		entities = append(entities, Entity{Kind: EntityPaymaster, Address: addr})
	}
	if aggregator != nil {
		entities = append(entities, Entity{Kind: EntityAggregator, Address: *aggregator})
	}
	return entities
}
