package bundler

import "github.com/ethereum/go-ethereum/common"

// EmptyBundleError is returned by Build when the mempool has fewer than
// MinBundleSize admissible UserOperations.
type EmptyBundleError struct{}

func (e *EmptyBundleError) Error() string { return "bundler: no admissible user operations" }

// BundleSubmissionError wraps an on-chain rejection of a handleOps
// transaction that isn't a decodable per-op FailedOp, e.g. a nonce or
// underpriced-transaction error from the node's txpool.
type BundleSubmissionError struct {
	Reason string
}

func (e *BundleSubmissionError) Error() string { return "bundler: submission failed: " + e.Reason }

// OrphanedBundleError reports that a submitted bundle transaction exceeded
// its submission deadline without being mined.
type OrphanedBundleError struct {
	TxHash common.Hash
}

func (e *OrphanedBundleError) Error() string {
	return "bundler: bundle orphaned: " + e.TxHash.Hex()
}
