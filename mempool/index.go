package mempool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/userop"
)

// senderNonceKey identifies the (sender,nonce) slot the invariant "at most
// one entry per pair" is enforced against.
type senderNonceKey struct {
	sender common.Address
	nonce  string
}

func keyFor(sender common.Address, nonce *big.Int) senderNonceKey {
	n := nonce
	if n == nil {
		n = new(big.Int)
	}
	return senderNonceKey{sender: sender, nonce: n.String()}
}

// index holds every secondary lookup the orchestrator needs beyond the
// hash-keyed Store, generalizing FIFOTxSet's single hash map into the four
// views §3/§4.3 require. index itself does no locking; the pool holds one
// lock across index and store mutations, the way legacypool wraps pool.mu
// around index + underlying map edits.
type index struct {
	bySenderNonce map[senderNonceKey]common.Hash
	byFactory     map[common.Address]map[common.Hash]struct{}
	byPaymaster   map[common.Address]map[common.Hash]struct{}
	byAggregator  map[common.Address]map[common.Hash]struct{}
	inFlight      map[senderNonceKey]struct{}
}

func newIndex() *index {
	return &index{
		bySenderNonce: make(map[senderNonceKey]common.Hash),
		byFactory:     make(map[common.Address]map[common.Hash]struct{}),
		byPaymaster:   make(map[common.Address]map[common.Hash]struct{}),
		byAggregator:  make(map[common.Address]map[common.Hash]struct{}),
		inFlight:      make(map[senderNonceKey]struct{}),
	}
}

func (ix *index) insert(entry *userop.MempoolEntry) {
	key := keyFor(entry.Op.Sender, entry.Op.Nonce)
	ix.bySenderNonce[key] = entry.Hash
	if addr, ok := entry.Factory(); ok {
		addToSet(ix.byFactory, addr, entry.Hash)
	}
	if addr, ok := entry.Paymaster(); ok {
		addToSet(ix.byPaymaster, addr, entry.Hash)
	}
	if addr := entry.Aggregator(); addr != nil {
		addToSet(ix.byAggregator, *addr, entry.Hash)
	}
}

func (ix *index) remove(entry *userop.MempoolEntry) {
	key := keyFor(entry.Op.Sender, entry.Op.Nonce)
	if ix.bySenderNonce[key] == entry.Hash {
		delete(ix.bySenderNonce, key)
	}
	if addr, ok := entry.Factory(); ok {
		removeFromSet(ix.byFactory, addr, entry.Hash)
	}
	if addr, ok := entry.Paymaster(); ok {
		removeFromSet(ix.byPaymaster, addr, entry.Hash)
	}
	if addr := entry.Aggregator(); addr != nil {
		removeFromSet(ix.byAggregator, *addr, entry.Hash)
	}
}

func (ix *index) clear() {
	ix.bySenderNonce = make(map[senderNonceKey]common.Hash)
	ix.byFactory = make(map[common.Address]map[common.Hash]struct{})
	ix.byPaymaster = make(map[common.Address]map[common.Hash]struct{})
	ix.byAggregator = make(map[common.Address]map[common.Hash]struct{})
}

// entityCount returns the number of distinct entries referencing addr in
// any of the three entity roles, per the §3 invariant "count of entries
// involving E".
func (ix *index) entityCount(addr common.Address) int {
	seen := make(map[common.Hash]struct{})
	for h := range ix.byFactory[addr] {
		seen[h] = struct{}{}
	}
	for h := range ix.byPaymaster[addr] {
		seen[h] = struct{}{}
	}
	for h := range ix.byAggregator[addr] {
		seen[h] = struct{}{}
	}
	return len(seen)
}

func addToSet(m map[common.Address]map[common.Hash]struct{}, addr common.Address, hash common.Hash) {
	set, ok := m[addr]
	if !ok {
		set = make(map[common.Hash]struct{})
		m[addr] = set
	}
	set[hash] = struct{}{}
}

func removeFromSet(m map[common.Address]map[common.Hash]struct{}, addr common.Address, hash common.Hash) {
	set, ok := m[addr]
	if !ok {
		return
	}
	delete(set, hash)
	if len(set) == 0 {
		delete(m, addr)
	}
}
