package rpcapi

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/eventbus"
)

// receiptIndexCap bounds the inclusion index so a long-running node
// doesn't grow it without limit; once the cap is reached the entry that
// was recorded first is evicted (lookups do not change the order).
const receiptIndexCap = 4096

// receiptIndex remembers the on-chain location of UserOperations that have
// left the mempool via inclusion, so eth_getUserOperationReceipt and
// eth_getUserOperationByHash keep answering for a bounded window after a
// bundle is mined. It is fed by eventbus.UserOpIncludedEvent rather than
// any persistent store, matching the façade's role as a thin, stateless
// dispatcher over the core packages.
type receiptIndex struct {
	mu      sync.RWMutex
	entries map[common.Hash]eventbus.UserOpIncludedEvent
	order   []common.Hash
}

func newReceiptIndex() *receiptIndex {
	return &receiptIndex{entries: make(map[common.Hash]eventbus.UserOpIncludedEvent)}
}

// Start subscribes to bus and runs until stop is closed or the
// subscription fails; NewFacade launches it in its own goroutine.
func (r *receiptIndex) Start(stop <-chan struct{}, bus *eventbus.Bus) {
	ch := make(chan eventbus.UserOpIncludedEvent, 64)
	sub := bus.SubscribeUserOpIncluded(ch)
	defer sub.Unsubscribe()
	for {
		select {
		case <-stop:
			return
		case ev := <-ch:
			r.record(ev)
		case err := <-sub.Err():
			_ = err
			return
		}
	}
}

func (r *receiptIndex) record(ev eventbus.UserOpIncludedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[ev.Hash]; !exists {
		r.order = append(r.order, ev.Hash)
		if len(r.order) > receiptIndexCap {
			evict := r.order[0]
			r.order = r.order[1:]
			delete(r.entries, evict)
		}
	}
	r.entries[ev.Hash] = ev
}

func (r *receiptIndex) get(hash common.Hash) (eventbus.UserOpIncludedEvent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.entries[hash]
	return ev, ok
}
