package chain

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// codeCacheTTL bounds how long a GetCode result is trusted before a fresh
// lookup is required; long enough to avoid re-fetching within a single
// bundle-building pass, short enough that a freshly deployed contract is
// picked up within a couple of blocks.
const codeCacheTTL = 30 * time.Second

// cache holds latest-block reads the validator repeats across many
// UserOperations sharing the same factory/paymaster, generalizing the
// package-level code-hash map pattern into something instance-scoped and
// expiring.
type cache struct {
	mu         sync.Mutex
	codeByAddr map[common.Address]codeCacheEntry
}

type codeCacheEntry struct {
	code     []byte
	cachedAt time.Time
}

func newCache() *cache {
	return &cache{codeByAddr: make(map[common.Address]codeCacheEntry)}
}

func (c *cache) code(addr common.Address) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.codeByAddr[addr]
	if !ok || time.Since(entry.cachedAt) > codeCacheTTL {
		return nil, false
	}
	return entry.code, true
}

func (c *cache) setCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codeByAddr[addr] = codeCacheEntry{code: code, cachedAt: time.Now()}
}
