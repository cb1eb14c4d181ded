package userop

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CodeHash records the extcodehash observed for an address during
// simulation, used to detect storage/code drift before bundling.
type CodeHash struct {
	Address common.Address
	Hash    common.Hash
}

// StorageSlot is one (contract, slot) -> value triple read or written
// during simulateValidation.
type StorageSlot struct {
	Address common.Address
	Slot    common.Hash
	Value   common.Hash
}

// ValidationOutcome is produced by the validator for a given UserOperation,
// recording the prefund it can cover and the conditions under which it
// remains valid so a bundle never includes one that has expired.
type ValidationOutcome struct {
	PreOpGas    *big.Int
	Prefund     *big.Int
	SigFailed   bool
	ValidAfter  time.Time
	ValidUntil  time.Time
	CodeHashes  []CodeHash
	Entities    []Entity
	Aggregator  *common.Address
	StorageMap  []StorageSlot
	SimBlockNum uint64
}

// Expired reports whether the outcome's validity window has passed, using
// a configurable expiration margin.
func (o *ValidationOutcome) Expired(now time.Time, margin time.Duration) bool {
	if o.ValidUntil.IsZero() {
		return false
	}
	return !o.ValidUntil.After(now.Add(margin))
}

// MempoolEntry is one admitted UserOperation together with its validation
// outcome and bookkeeping fields.
type MempoolEntry struct {
	Hash        common.Hash
	Op          *UserOperation
	Outcome     *ValidationOutcome
	SubmittedAt time.Time
	EntryPoint  common.Address
}

// Factory, Paymaster and Aggregator are convenience accessors mirroring the
// secondary indices (byFactory, byPaymaster, byAggregator); the mempool
// package builds the actual indices, these just extract the keys from one
// entry.
func (e *MempoolEntry) Factory() (common.Address, bool)   { return e.Op.Factory() }
func (e *MempoolEntry) Paymaster() (common.Address, bool) { return e.Op.Paymaster() }
func (e *MempoolEntry) Aggregator() *common.Address       { return e.Outcome.Aggregator }

// ReputationStatus is the derived status of a ReputationEntry.
type ReputationStatus uint8

const (
	ReputationOk ReputationStatus = iota
	ReputationThrottled
	ReputationBanned
)

func (s ReputationStatus) String() string {
	switch s {
	case ReputationOk:
		return "ok"
	case ReputationThrottled:
		return "throttled"
	case ReputationBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// ReputationEntry is the per-entity reputation record.
type ReputationEntry struct {
	Address      common.Address
	OpsSeen      uint64
	OpsIncluded  uint64
	Stake        *big.Int
	UnstakeDelay time.Duration
}
