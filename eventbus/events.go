// Package eventbus carries the node-local notifications that flow between
// the chain watcher, the mempool, the bundle builder and the P2P layer:
// new block headers, newly admitted UserOperations, and submitted bundles.
// Each event type gets its own Feed so a subscriber only pays for the
// stream it actually wants.
package eventbus

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NewBlockEvent is posted whenever the chain watcher observes a new head.
type NewBlockEvent struct {
	Number    uint64
	Hash      common.Hash
	BaseFee   *big.Int
	Timestamp uint64
}

// NewUserOpEvent is posted when a UserOperation is admitted into the
// mempool, carrying its hash and originating EntryPoint.
type NewUserOpEvent struct {
	Hash       common.Hash
	EntryPoint common.Address
	Sender     common.Address
}

// RemovedUserOpEvent is posted when a UserOperation leaves the mempool
// without being bundled; the mempool posts it for entries that expire.
type RemovedUserOpEvent struct {
	Hash   common.Hash
	Reason string
}

// NewBundleSubmittedEvent is posted after a bundle's handleOps transaction
// has been broadcast to the chain (or to a block-building relay).
type NewBundleSubmittedEvent struct {
	TxHash     common.Hash
	EntryPoint common.Address
	NumOps     int
	Submitted  uint64 // block number observed at submission time
}

// BundleIncludedEvent is posted once a submitted bundle's transaction is
// observed mined, successfully or otherwise.
type BundleIncludedEvent struct {
	TxHash     common.Hash
	BlockNum   uint64
	Success    bool
	FailedOpAt int // index of the first FailedOp revert reason, -1 if none
}

// UserOpIncludedEvent is posted once per UserOperation in a mined bundle,
// carrying the on-chain location the JSON-RPC façade needs to answer
// eth_getUserOperationReceipt / eth_getUserOperationByHash after the op has
// left the mempool.
type UserOpIncludedEvent struct {
	Hash        common.Hash
	EntryPoint  common.Address
	Sender      common.Address
	Nonce       *big.Int
	Success     bool
	TxHash      common.Hash
	BlockNumber uint64
	BlockHash   common.Hash
}
