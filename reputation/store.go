package reputation

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/userop"
)

// store is the mutex-guarded in-memory table of per-entity reputation
// records. A real deployment may back this with the `reputation` table
// described for the optional persistent mempool (key=address,
// value=opsSeen||opsIncluded||status); the in-memory table here is the one
// concrete implementation this module ships, behind the same small surface
// a disk-backed one would need.
type store struct {
	mu      sync.RWMutex
	entries map[common.Address]*userop.ReputationEntry
}

func newStore() *store {
	return &store{entries: make(map[common.Address]*userop.ReputationEntry)}
}

func (s *store) get(addr common.Address) userop.ReputationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[addr]; ok {
		return *e
	}
	return userop.ReputationEntry{Address: addr, Stake: new(big.Int)}
}

func (s *store) set(entry userop.ReputationEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry
	if e.Stake == nil {
		e.Stake = new(big.Int)
	}
	s.entries[entry.Address] = &e
}

func (s *store) all() []userop.ReputationEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]userop.ReputationEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

func (s *store) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[common.Address]*userop.ReputationEntry)
}

// mutate applies fn to addr's entry under the write lock, creating one
// first if none exists.
func (s *store) mutate(addr common.Address, fn func(*userop.ReputationEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[addr]
	if !ok {
		e = &userop.ReputationEntry{Address: addr, Stake: new(big.Int)}
		s.entries[addr] = e
	}
	fn(e)
}
