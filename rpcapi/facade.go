package rpcapi

import (
	"context"
	"math/big"

	"github.com/silius-bundler/silius-go/eventbus"
)

// NewFacade builds the eth/debug namespace dispatchers together with the
// inclusion-receipt index backing eth_getUserOperationReceipt and
// eth_getUserOperationByHash, and starts the index's bus subscriber in
// its own goroutine, stopped when ctx is done. This is the constructor
// cmd/silius uses; NewEthAPI/NewDebugAPI stay exported separately for
// tests that want to drive a receipt index of their own.
func NewFacade(ctx context.Context, chainID *big.Int, chain ChainReader, services []*EntryPointServices, rep ReputationManager, bus *eventbus.Bus) (*EthAPI, *DebugAPI) {
	receipts := newReceiptIndex()
	stop := make(chan struct{})
	go receipts.Start(stop, bus)
	go func() {
		<-ctx.Done()
		close(stop)
	}()

	eth := NewEthAPI(chainID, chain, services, receipts)
	debug := NewDebugAPI(services, rep)
	return eth, debug
}
