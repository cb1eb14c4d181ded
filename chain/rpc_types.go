package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

type hexutilBytes = hexutil.Bytes
type hexutilUint64 = hexutil.Uint64

// sendBundleRequest mirrors the de facto eth_sendBundle schema used by
// block-building relays (Flashbots and its derivatives): a list of signed,
// RLP-encoded transactions plus the single block they must land in
// atomically and in order.
type sendBundleRequest struct {
	Txs         []hexutilBytes `json:"txs"`
	BlockNumber hexutilUint64  `json:"blockNumber"`
}

// sendBundleResponse carries the relay-assigned bundle hash back to the
// caller; SendBundle decodes it and discards it.
type sendBundleResponse struct {
	BundleHash string `json:"bundleHash"`
}

// isMethodNotFound reports whether err is a JSON-RPC "method not found"
// error, used to detect an endpoint with no bundle-relay extension.
func isMethodNotFound(err error) bool {
	if err == nil {
		return false
	}
	var rpcErr rpc.Error
	if e, ok := err.(rpc.Error); ok {
		rpcErr = e
		return rpcErr.ErrorCode() == -32601
	}
	return strings.Contains(err.Error(), "method not found") || strings.Contains(err.Error(), "method not supported")
}
