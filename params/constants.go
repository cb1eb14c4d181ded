// Package params collects the protocol-level constants shared by the
// validation, reputation, mempool and bundler packages. Grouping them here,
// rather than scattering magic numbers through each package, follows the
// same convention as go-ethereum's own params package.
package params

import "time"

// Sanity-check bounds for admission.
const (
	// CallGasMin is the minimum callGasLimit accepted from any UserOperation.
	CallGasMin uint64 = 21_000

	// Linear preVerificationGas estimate coefficients.
	PreVerificationGasFixed   uint64 = 21_000
	PreVerificationGasPerUo   uint64 = 18_300
	PreVerificationGasPerZero uint64 = 4
	PreVerificationGasPerByte uint64 = 16

	// MinPaymasterAndDataLen and MinInitCodeLen are the minimum lengths a
	// non-empty paymasterAndData/initCode must have (20-byte address prefix).
	MinPaymasterAndDataLen = 20
	MinInitCodeLen         = 20
)

// Reputation thresholds.
const (
	MinInclusionRateDenom uint64 = 10
	ThrottlingSlack       uint64 = 10
	BanSlack              uint64 = 50
	PenaltySeen           uint64 = 10

	// MaxMempoolEntriesPerEntityStaked is the per-entity cap for staked
	// entities (unstaked entities are instead bound by storage-access rules
	// enforced during validation).
	MaxMempoolEntriesPerEntityStaked = 10

	// ThrottledMaxInclude bounds how many times a Throttled entity may
	// appear across the whole mempool, checked at admission. Bundle
	// selection applies no separate per-bundle limit to Throttled entities.
	ThrottledMaxInclude = 4

	// ReputationAgingBlocks is the block interval at which opsSeen/
	// opsIncluded both decay by one.
	ReputationAgingBlocks uint64 = 24
)

// Validation timing.
const (
	ExpirationMargin = 10 * time.Second

	RPCDeadline        = 10 * time.Second
	BackoffBase        = 250 * time.Millisecond
	BackoffMax         = 5 * time.Second
	BackoffMaxAttempts = 5
)

// Bundle building.
const (
	BundleGasFactor    = 0.6
	MaxBundleSize      = 128
	MaxRebuildAttempts = 3

	// FeeBumpOnOrphan is a 12.5% fee bump for a bundle transaction that
	// has exceeded its submission deadline (two block times). The bundler
	// reports such a bundle as orphaned and does not resubmit it, so
	// nothing in this module applies the bump.
	FeeBumpOnOrphan = 0.125
)

// Scheduler.
const (
	MinBundleSize = 1
)

// Mempool replacement.
const ReplacementBumpNumerator = 110 // percent; both fee bounds must be >= old*110/100
