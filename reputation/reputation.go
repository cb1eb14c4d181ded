// Package reputation tracks per-entity opsSeen/opsIncluded counters and
// derives each entity's admission status from them, the way the EntryPoint
// itself expects a bundler to self-police factories, paymasters and
// aggregators that repeatedly fail simulation or go unincluded.
package reputation

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/silius-bundler/silius-go/eventbus"
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
)

// Manager owns the reputation store and the per-block aging loop. It
// implements the Status half of validation.ReputationView directly; the
// EntityCount half (how many mempool entries currently reference an
// entity) is mempool state, not reputation state, and is supplied by an
// adapter in the mempool package.
type Manager struct {
	cfg   Config
	store *store

	blocksSeen uint64

	mu         sync.Mutex
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New returns a ready-to-use Manager. Start must be called for per-block
// aging to run.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg, store: newStore()}
}

// Status derives the entity's current ReputationStatus from its stored
// opsSeen/opsIncluded counters.
func (m *Manager) Status(addr common.Address) userop.ReputationStatus {
	e := m.store.get(addr)
	return statusFor(e.OpsSeen, e.OpsIncluded)
}

// IsStaked reports whether addr clears this manager's configured staking
// minima.
func (m *Manager) IsStaked(addr common.Address) bool {
	e := m.store.get(addr)
	return m.cfg.IsStaked(e.Stake, e.UnstakeDelay)
}

// RecordSeen increments addr's opsSeen, called once per admission attempt
// for every entity the UserOperation references.
func (m *Manager) RecordSeen(addr common.Address) {
	m.store.mutate(addr, func(e *userop.ReputationEntry) { e.OpsSeen++ })
	opsSeenGauge.Inc(1)
}

// Penalize increments addr's opsSeen by PENALTY_SEEN without touching
// opsIncluded, for an entity whose UserOperation failed simulation.
func (m *Manager) Penalize(addr common.Address) {
	m.store.mutate(addr, func(e *userop.ReputationEntry) { e.OpsSeen += params.PenaltySeen })
	opsSeenGauge.Inc(int64(params.PenaltySeen))
	penalizedMeter.Mark(1)
}

// RecordIncluded increments both opsSeen and opsIncluded for every entity
// in a successfully broadcast bundle.
func (m *Manager) RecordIncluded(addrs []common.Address) {
	for _, addr := range addrs {
		m.store.mutate(addr, func(e *userop.ReputationEntry) {
			e.OpsSeen++
			e.OpsIncluded++
		})
	}
	opsSeenGauge.Inc(int64(len(addrs)))
	opsIncludedGauge.Inc(int64(len(addrs)))
}

// SetReputation overwrites or creates entries wholesale, for
// debug_setReputation.
func (m *Manager) SetReputation(entries []userop.ReputationEntry) {
	for _, e := range entries {
		m.store.set(e)
	}
}

// DumpReputation returns every tracked entry, for debug_dumpReputation.
func (m *Manager) DumpReputation() []userop.ReputationEntry {
	return m.store.all()
}

// ClearState drops every tracked entity, for debug_clearState.
func (m *Manager) ClearState() {
	m.store.clear()
}

// Start subscribes to new block heads and ages every entity's counters by
// one every REPUTATION_AGING_BLOCKS (24) blocks, mirroring the
// rejournal-ticker background loop pattern used elsewhere in this
// codebase's block-driven workers, adapted here to a block-count trigger
// rather than a wall-clock one.
func (m *Manager) Start(ctx context.Context, bus *eventbus.Bus) {
	m.mu.Lock()
	if m.shutdownCh != nil {
		m.mu.Unlock()
		return
	}
	m.shutdownCh = make(chan struct{})
	m.mu.Unlock()

	heads := make(chan eventbus.NewBlockEvent, 16)
	sub := bus.SubscribeNewBlock(heads)

	m.wg.Add(1)
	go m.loop(ctx, sub, heads)
}

// Stop unwinds the subscription started by Start and waits for the aging
// loop to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	ch := m.shutdownCh
	m.shutdownCh = nil
	m.mu.Unlock()
	if ch == nil {
		return
	}
	close(ch)
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context, sub interface{ Unsubscribe() }, heads <-chan eventbus.NewBlockEvent) {
	defer m.wg.Done()
	defer sub.Unsubscribe()
	defer log.Info("reputation: aging loop stopped")

	m.mu.Lock()
	shutdownCh := m.shutdownCh
	m.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdownCh:
			return
		case <-heads:
			m.onNewBlock()
		}
	}
}

func (m *Manager) onNewBlock() {
	m.mu.Lock()
	m.blocksSeen++
	due := m.blocksSeen >= params.ReputationAgingBlocks
	if due {
		m.blocksSeen = 0
	}
	m.mu.Unlock()
	if due {
		m.age()
	}
}

func (m *Manager) age() {
	for _, e := range m.store.all() {
		m.store.mutate(e.Address, func(entry *userop.ReputationEntry) {
			if entry.OpsSeen > 0 {
				entry.OpsSeen--
				opsSeenGauge.Dec(1)
			}
			if entry.OpsIncluded > 0 {
				entry.OpsIncluded--
				opsIncludedGauge.Dec(1)
			}
		})
	}
}
