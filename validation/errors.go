// Package validation implements the admission pipeline that decides
// whether a UserOperation may enter the mempool: sanity checks performed
// without any RPC, sender/factory existence, reputation, simulation
// against the EntryPoint, ERC-7562 opcode/storage rules, and a prefund
// check, in that order.
package validation

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/tracer"
	"github.com/silius-bundler/silius-go/userop"
)

// SanityError reports a UserOperation field that failed a no-RPC check.
type SanityError struct {
	Field  string
	Reason string
}

func (e *SanityError) Error() string {
	return fmt.Sprintf("sanity check failed on %s: %s", e.Field, e.Reason)
}

// SimulationError wraps a reverted or otherwise rejected simulateValidation
// call, carrying the raw revert data alongside the decoded reason when one
// could be recognized.
type SimulationError struct {
	Reason string
	Data   []byte
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation rejected: %s", e.Reason)
}

// OpcodeViolationError reports an ERC-7562 forbidden-opcode hit, attributed
// to the entity whose call frame produced it.
type OpcodeViolationError struct {
	Entity common.Address
	Opcode tracer.Opcode
}

func (e *OpcodeViolationError) Error() string {
	return fmt.Sprintf("entity %s executed forbidden opcode %s", e.Entity, e.Opcode)
}

// StorageViolationError reports an ERC-7562 storage-access rule breach.
type StorageViolationError struct {
	Entity common.Address
	Addr   common.Address
	Slot   common.Hash
}

func (e *StorageViolationError) Error() string {
	return fmt.Sprintf("entity %s accessed disallowed storage %s/%s", e.Entity, e.Addr, e.Slot)
}

// CodeHashChangedError reports that an entity's observed bytecode is empty
// or otherwise unusable where non-empty code was required.
type CodeHashChangedError struct {
	Addr common.Address
}

func (e *CodeHashChangedError) Error() string {
	return fmt.Sprintf("code at %s changed or is empty", e.Addr)
}

// CallTargetError reports an ERC-7562 disallowed CALL target: a call into
// the EntryPoint other than depositTo, or a call into an address with no
// code.
type CallTargetError struct {
	Entity common.Address
	Target common.Address
}

func (e *CallTargetError) Error() string {
	return fmt.Sprintf("entity %s called disallowed target %s", e.Entity, e.Target)
}

// ExpiredError reports that the operation's validity window has already
// passed, or will pass within the expiration margin.
type ExpiredError struct{}

func (e *ExpiredError) Error() string { return "user operation expired or not yet valid" }

// InsufficientPrefundError reports that the sender (or its paymaster)
// cannot cover the simulated prefund.
type InsufficientPrefundError struct {
	Required  string
	Available string
}

func (e *InsufficientPrefundError) Error() string {
	return fmt.Sprintf("insufficient prefund: need %s, have %s", e.Required, e.Available)
}

// ReputationError reports that an entity's current status forbids
// admission.
type ReputationError struct {
	Addr   common.Address
	Status userop.ReputationStatus
}

func (e *ReputationError) Error() string {
	return fmt.Sprintf("entity %s is %s", e.Addr, e.Status)
}
