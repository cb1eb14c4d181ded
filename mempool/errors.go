package mempool

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/params"
)

// ReplacementError reports that a UserOperation collided with an existing
// (sender,nonce) entry but did not bump both fee bounds enough to replace
// it.
type ReplacementError struct {
	Sender common.Address
	Nonce  string
}

func (e *ReplacementError) Error() string {
	return fmt.Sprintf("replacement underpriced for %s nonce %s: both maxPriorityFeePerGas and maxFeePerGas must exceed the incumbent by %d%%", e.Sender, e.Nonce, params.ReplacementBumpNumerator-100)
}

// InFlightError reports that a (sender,nonce) pair is already being
// validated by a concurrent admission attempt.
type InFlightError struct {
	Sender common.Address
	Nonce  string
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("sender %s nonce %s already has an admission in flight", e.Sender, e.Nonce)
}

// UnknownHashError reports a lookup or removal against a hash the pool
// doesn't hold.
type UnknownHashError struct {
	Hash common.Hash
}

func (e *UnknownHashError) Error() string {
	return fmt.Sprintf("no mempool entry for hash %s", e.Hash)
}

// EntityCapError reports that admitting the operation would push one of
// its staked entities past params.MaxMempoolEntriesPerEntityStaked.
type EntityCapError struct {
	Entity common.Address
}

func (e *EntityCapError) Error() string {
	return fmt.Sprintf("entity %s has reached the staked per-entity mempool cap of %d", e.Entity, params.MaxMempoolEntriesPerEntityStaked)
}
