package reputation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/userop"
)

func TestStoreGetMissingReturnsZeroValue(t *testing.T) {
	s := newStore()
	addr := common.HexToAddress("0x1")

	e := s.get(addr)
	if e.Address != addr {
		t.Errorf("Address = %v, want %v", e.Address, addr)
	}
	if e.OpsSeen != 0 || e.OpsIncluded != 0 {
		t.Errorf("expected zero counters for unseen entity, got %+v", e)
	}
	if e.Stake == nil || e.Stake.Sign() != 0 {
		t.Errorf("expected zero stake for unseen entity, got %v", e.Stake)
	}
}

func TestStoreSetAndGet(t *testing.T) {
	s := newStore()
	addr := common.HexToAddress("0x2")
	s.set(userop.ReputationEntry{Address: addr, OpsSeen: 5, OpsIncluded: 3, Stake: big.NewInt(10)})

	e := s.get(addr)
	if e.OpsSeen != 5 || e.OpsIncluded != 3 {
		t.Errorf("got %+v, want OpsSeen=5 OpsIncluded=3", e)
	}
}

func TestStoreMutateCreatesEntry(t *testing.T) {
	s := newStore()
	addr := common.HexToAddress("0x3")

	s.mutate(addr, func(e *userop.ReputationEntry) { e.OpsSeen++ })
	s.mutate(addr, func(e *userop.ReputationEntry) { e.OpsSeen++ })

	e := s.get(addr)
	if e.OpsSeen != 2 {
		t.Errorf("OpsSeen = %d, want 2", e.OpsSeen)
	}
}

func TestStoreAllAndClear(t *testing.T) {
	s := newStore()
	s.set(userop.ReputationEntry{Address: common.HexToAddress("0x1")})
	s.set(userop.ReputationEntry{Address: common.HexToAddress("0x2")})

	if len(s.all()) != 2 {
		t.Fatalf("len(all()) = %d, want 2", len(s.all()))
	}

	s.clear()
	if len(s.all()) != 0 {
		t.Fatalf("len(all()) after clear = %d, want 0", len(s.all()))
	}
}
