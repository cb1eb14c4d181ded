package mempool

import (
	"math/big"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/silius-bundler/silius-go/userop"
)

// Store is the persistence boundary for admitted entries, kept small
// enough that an in-memory map and a disk-backed pebble instance both
// satisfy it without either implementation leaking into the pool's
// indexing logic. Mirrors the hash-keyed get/put/remove/iterate surface
// FIFOTxSet exposes over an in-memory map, generalized to a swappable
// backend.
type Store interface {
	Put(entry *userop.MempoolEntry) error
	Get(hash common.Hash) (*userop.MempoolEntry, bool, error)
	Delete(hash common.Hash) error
	All() ([]*userop.MempoolEntry, error)
	Clear() error
	Close() error
}

// memStore is the default Store: a mutex-guarded map, adequate for a
// single-process bundler that doesn't need the mempool to survive a
// restart.
type memStore struct {
	mu      sync.RWMutex
	entries map[common.Hash]*userop.MempoolEntry
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() Store {
	return &memStore{entries: make(map[common.Hash]*userop.MempoolEntry)}
}

func (s *memStore) Put(entry *userop.MempoolEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Hash] = entry
	return nil
}

func (s *memStore) Get(hash common.Hash) (*userop.MempoolEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[hash]
	return e, ok, nil
}

func (s *memStore) Delete(hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, hash)
	return nil
}

func (s *memStore) All() ([]*userop.MempoolEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*userop.MempoolEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[common.Hash]*userop.MempoolEntry)
	return nil
}

func (s *memStore) Close() error { return nil }

// pebbleStore persists entries across restarts, for an operator who wants
// the mempool to survive a bundler crash. Values are RLP-encoded the way
// go-ethereum's own rawdb stores headers and bodies; keys are the raw
// userOpHash bytes.
type pebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (creating if necessary) a pebble-backed Store at
// dir.
func OpenPebbleStore(dir string) (Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &pebbleStore{db: db}, nil
}

// persistRecord is the RLP-encodable projection of a MempoolEntry:
// time.Time and *common.Address aren't RLP types on their own, so they're
// flattened to a unix timestamp and a presence flag + fixed array here.
type persistRecord struct {
	Op          userop.UserOperation
	EntryPoint  common.Address
	SubmittedAt int64

	PreOpGas  *big.Int
	Prefund   *big.Int
	SigFailed bool

	ValidAfter int64
	ValidUntil int64

	CodeHashAddrs []common.Address
	CodeHashes    []common.Hash

	EntityKinds []uint8
	EntityAddrs []common.Address

	HasAggregator bool
	Aggregator    common.Address

	StorageAddrs []common.Address
	StorageSlots []common.Hash
	StorageVals  []common.Hash

	SimBlockNum uint64
}

func nonNilBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func toPersistRecord(e *userop.MempoolEntry) *persistRecord {
	r := &persistRecord{
		Op:          *e.Op,
		EntryPoint:  e.EntryPoint,
		SubmittedAt: e.SubmittedAt.Unix(),
	}
	if o := e.Outcome; o != nil {
		r.PreOpGas = nonNilBig(o.PreOpGas)
		r.Prefund = nonNilBig(o.Prefund)
		r.SigFailed = o.SigFailed
		r.ValidAfter = o.ValidAfter.Unix()
		r.ValidUntil = o.ValidUntil.Unix()
		r.SimBlockNum = o.SimBlockNum
		for _, ch := range o.CodeHashes {
			r.CodeHashAddrs = append(r.CodeHashAddrs, ch.Address)
			r.CodeHashes = append(r.CodeHashes, ch.Hash)
		}
		for _, ent := range o.Entities {
			r.EntityKinds = append(r.EntityKinds, uint8(ent.Kind))
			r.EntityAddrs = append(r.EntityAddrs, ent.Address)
		}
		if o.Aggregator != nil {
			r.HasAggregator = true
			r.Aggregator = *o.Aggregator
		}
		for _, s := range o.StorageMap {
			r.StorageAddrs = append(r.StorageAddrs, s.Address)
			r.StorageSlots = append(r.StorageSlots, s.Slot)
			r.StorageVals = append(r.StorageVals, s.Value)
		}
	}
	return r
}

func fromPersistRecord(r *persistRecord) *userop.MempoolEntry {
	op := r.Op
	outcome := &userop.ValidationOutcome{
		PreOpGas:    r.PreOpGas,
		Prefund:     r.Prefund,
		SigFailed:   r.SigFailed,
		ValidAfter:  time.Unix(r.ValidAfter, 0),
		ValidUntil:  time.Unix(r.ValidUntil, 0),
		SimBlockNum: r.SimBlockNum,
	}
	for i := range r.CodeHashAddrs {
		outcome.CodeHashes = append(outcome.CodeHashes, userop.CodeHash{Address: r.CodeHashAddrs[i], Hash: r.CodeHashes[i]})
	}
	for i := range r.EntityAddrs {
		outcome.Entities = append(outcome.Entities, userop.Entity{Kind: userop.EntityKind(r.EntityKinds[i]), Address: r.EntityAddrs[i]})
	}
	if r.HasAggregator {
		agg := r.Aggregator
		outcome.Aggregator = &agg
	}
	for i := range r.StorageAddrs {
		outcome.StorageMap = append(outcome.StorageMap, userop.StorageSlot{Address: r.StorageAddrs[i], Slot: r.StorageSlots[i], Value: r.StorageVals[i]})
	}
	return &userop.MempoolEntry{
		Op:          &op,
		Outcome:     outcome,
		SubmittedAt: time.Unix(r.SubmittedAt, 0),
		EntryPoint:  r.EntryPoint,
	}
}

func (s *pebbleStore) Put(entry *userop.MempoolEntry) error {
	hash := entry.Hash
	rec := toPersistRecord(entry)
	data, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return err
	}
	return s.db.Set(hash.Bytes(), data, pebble.Sync)
}

func (s *pebbleStore) Get(hash common.Hash) (*userop.MempoolEntry, bool, error) {
	data, closer, err := s.db.Get(hash.Bytes())
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	var rec persistRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, false, err
	}
	entry := fromPersistRecord(&rec)
	entry.Hash = hash
	return entry, true, nil
}

func (s *pebbleStore) Delete(hash common.Hash) error {
	return s.db.Delete(hash.Bytes(), pebble.Sync)
}

func (s *pebbleStore) All() ([]*userop.MempoolEntry, error) {
	iter, err := s.db.NewIter(nil)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*userop.MempoolEntry
	for iter.First(); iter.Valid(); iter.Next() {
		var rec persistRecord
		if err := rlp.DecodeBytes(iter.Value(), &rec); err != nil {
			return nil, err
		}
		entry := fromPersistRecord(&rec)
		entry.Hash = common.BytesToHash(iter.Key())
		out = append(out, entry)
	}
	return out, iter.Error()
}

func (s *pebbleStore) Clear() error {
	entries, err := s.All()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := s.Delete(e.Hash); err != nil {
			return err
		}
	}
	return nil
}

func (s *pebbleStore) Close() error { return s.db.Close() }
