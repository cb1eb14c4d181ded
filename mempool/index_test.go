package mempool

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/userop"
)

func entryFor(sender, factory, paymaster common.Address, nonce int64) *userop.MempoolEntry {
	op := &userop.UserOperation{Sender: sender, Nonce: big.NewInt(nonce)}
	if factory != (common.Address{}) {
		op.InitCode = append(factory.Bytes(), 0x01)
	}
	if paymaster != (common.Address{}) {
		op.PaymasterAndData = append(paymaster.Bytes(), 0x01)
	}
	return &userop.MempoolEntry{
		Hash:    common.BytesToHash([]byte{byte(nonce), sender[0]}),
		Op:      op,
		Outcome: &userop.ValidationOutcome{},
	}
}

func TestIndexInsertAndEntityCount(t *testing.T) {
	ix := newIndex()
	factory := common.HexToAddress("0xf1")
	sender := common.HexToAddress("0x1")

	e1 := entryFor(sender, factory, common.Address{}, 0)
	ix.insert(e1)

	if got := ix.entityCount(factory); got != 1 {
		t.Fatalf("entityCount = %d, want 1", got)
	}

	sender2 := common.HexToAddress("0x2")
	e2 := entryFor(sender2, factory, common.Address{}, 0)
	ix.insert(e2)
	if got := ix.entityCount(factory); got != 2 {
		t.Fatalf("entityCount after second insert = %d, want 2", got)
	}
}

func TestIndexRemove(t *testing.T) {
	ix := newIndex()
	factory := common.HexToAddress("0xf1")
	sender := common.HexToAddress("0x1")
	e1 := entryFor(sender, factory, common.Address{}, 0)

	ix.insert(e1)
	ix.remove(e1)

	if got := ix.entityCount(factory); got != 0 {
		t.Fatalf("entityCount after remove = %d, want 0", got)
	}
	if _, ok := ix.bySenderNonce[keyFor(sender, big.NewInt(0))]; ok {
		t.Fatal("bySenderNonce entry should have been removed")
	}
}

func TestIndexEntityCountUnionsRoles(t *testing.T) {
	ix := newIndex()
	both := common.HexToAddress("0xab")
	sender := common.HexToAddress("0x1")

	// both acts as factory AND paymaster on the same entry; it should still
	// count once per entry, not twice.
	e := entryFor(sender, both, both, 0)
	ix.insert(e)

	if got := ix.entityCount(both); got != 1 {
		t.Fatalf("entityCount = %d, want 1 (deduped across roles)", got)
	}
}

func TestIndexClear(t *testing.T) {
	ix := newIndex()
	factory := common.HexToAddress("0xf1")
	sender := common.HexToAddress("0x1")
	ix.insert(entryFor(sender, factory, common.Address{}, 0))

	ix.clear()
	if got := ix.entityCount(factory); got != 0 {
		t.Fatalf("entityCount after clear = %d, want 0", got)
	}
	if len(ix.bySenderNonce) != 0 {
		t.Fatal("bySenderNonce should be empty after clear")
	}
}
