// Package mempool implements the per-EntryPoint UserOperation admission
// façade: validation, the content-addressed index with its secondary
// views, the in-flight sender-nonce guard, and the replacement rule.
package mempool

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/silius-bundler/silius-go/eventbus"
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
	"github.com/silius-bundler/silius-go/validation"
)

// ChainReader is the subset of *chain.Client the pool needs: everything
// validation.ChainReader needs plus a base fee hint for the sanity check.
type ChainReader interface {
	validation.ChainReader
	SuggestBaseFee(ctx context.Context) (*big.Int, error)
}

// ReputationManager is the subset of *reputation.Manager the pool drives
// directly, kept as an interface so tests can substitute a stub.
type ReputationManager interface {
	Status(addr common.Address) userop.ReputationStatus
	IsStaked(addr common.Address) bool
	RecordSeen(addr common.Address)
	Penalize(addr common.Address)
	RecordIncluded(addrs []common.Address)
}

// reputationView adapts a ReputationManager (entity status) and the
// pool's own index (live entity counts) into the single
// validation.ReputationView the validator needs, resolving the
// UoPool/reputation/validator dependency triangle via explicit
// composition rather than a shared mutable cyclic reference.
type reputationView struct {
	rep  ReputationManager
	pool *Pool
}

func (v reputationView) Status(addr common.Address) userop.ReputationStatus { return v.rep.Status(addr) }
func (v reputationView) EntityCount(addr common.Address) int {
	v.pool.mu.RLock()
	defer v.pool.mu.RUnlock()
	return v.pool.index.entityCount(addr)
}

// Pool is the per-EntryPoint UoPool orchestrator.
type Pool struct {
	entryPoint common.Address
	chainID    *big.Int

	cr  ChainReader
	rep ReputationManager
	bus *eventbus.Bus
	cfg validation.Config

	mu    sync.RWMutex
	store Store
	index *index
}

// New returns a ready-to-use Pool for one EntryPoint.
func New(entryPoint common.Address, chainID *big.Int, cr ChainReader, rep ReputationManager, bus *eventbus.Bus, cfg validation.Config, store Store) *Pool {
	if store == nil {
		store = NewMemStore()
	}
	cfg.EntryPoint = entryPoint
	return &Pool{
		entryPoint: entryPoint,
		chainID:    chainID,
		cr:         cr,
		rep:        rep,
		bus:        bus,
		cfg:        cfg,
		store:      store,
		index:      newIndex(),
	}
}

// AddUserOperation runs the validator against op and, on admission,
// inserts (or replaces) its mempool entry. Returns the userOpHash.
func (p *Pool) AddUserOperation(ctx context.Context, op *userop.UserOperation) (common.Hash, error) {
	key := keyFor(op.Sender, op.Nonce)

	p.mu.Lock()
	if _, busy := p.index.inFlight[key]; busy {
		p.mu.Unlock()
		return common.Hash{}, &InFlightError{Sender: op.Sender, Nonce: nonceString(op.Nonce)}
	}
	p.index.inFlight[key] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.index.inFlight, key)
		p.mu.Unlock()
	}()

	baseFee, err := p.cr.SuggestBaseFee(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	validationStart := time.Now()
	view := reputationView{rep: p.rep, pool: p}
	outcome, err := validation.Validate(ctx, op, p.cr, view, p.cfg, baseFee, time.Now())
	MetricsAdmissionCost(validationStart)

	entities := op.Entities(nil)
	penalize := false
	var penalizeAddr common.Address
	if err != nil {
		penalize, penalizeAddr = classifyFailure(op, err)
	}
	for _, e := range entities {
		p.rep.RecordSeen(e.Address)
	}
	if penalize {
		p.rep.Penalize(penalizeAddr)
	}
	if err != nil {
		opsRejectedMeter.Mark(1)
		return common.Hash{}, err
	}

	hash := userop.Hash(op, p.entryPoint, p.chainID)
	entry := &userop.MempoolEntry{
		Hash:        hash,
		Op:          op,
		Outcome:     outcome,
		SubmittedAt: time.Now(),
		EntryPoint:  p.entryPoint,
	}

	if err := p.admit(entry); err != nil {
		opsRejectedMeter.Mark(1)
		return common.Hash{}, err
	}
	pendingOpsGauge.Inc(1)

	if p.bus != nil {
		p.bus.PublishNewUserOp(eventbus.NewUserOpEvent{Hash: hash, EntryPoint: p.entryPoint, Sender: op.Sender})
	}
	return hash, nil
}

// admit enforces the one-entry-per-(sender,nonce) invariant and the
// replacement rule, then commits entry to the index and store.
func (p *Pool) admit(entry *userop.MempoolEntry) error {
	key := keyFor(entry.Op.Sender, entry.Op.Nonce)

	p.mu.Lock()
	defer p.mu.Unlock()

	if existingHash, ok := p.index.bySenderNonce[key]; ok {
		existing, found, _ := p.store.Get(existingHash)
		if found {
			if err := checkReplacement(existing.Op, entry.Op); err != nil {
				return err
			}
			p.index.remove(existing)
			_ = p.store.Delete(existing.Hash)
		}
	}

	if err := p.checkEntityCaps(entry); err != nil {
		return err
	}

	if err := p.store.Put(entry); err != nil {
		return err
	}
	p.index.insert(entry)
	return nil
}

// checkEntityCaps enforces the §3 MempoolEntry invariant that a staked
// entity may back at most MaxMempoolEntriesPerEntityStaked entries across
// the whole mempool; unstaked entities are instead bound by the
// storage-access rules validation already enforced. Must be called with
// p.mu held, after any replaced incumbent has been removed from the
// index so its own slot doesn't count against the entity it shares.
func (p *Pool) checkEntityCaps(entry *userop.MempoolEntry) error {
	for _, e := range entry.Op.Entities(entry.Outcome.Aggregator) {
		if !p.rep.IsStaked(e.Address) {
			continue
		}
		if p.index.entityCount(e.Address) >= params.MaxMempoolEntriesPerEntityStaked {
			return &EntityCapError{Entity: e.Address}
		}
	}
	return nil
}

// checkReplacement enforces the §3 MempoolEntry invariant: both fee
// bounds on the new op must be at least ReplacementBumpNumerator (110)
// percent of the incumbent's, rounded up.
func checkReplacement(old, incoming *userop.UserOperation) error {
	if !bumpedEnough(old.MaxPriorityFeePerGas, incoming.MaxPriorityFeePerGas) || !bumpedEnough(old.MaxFeePerGas, incoming.MaxFeePerGas) {
		return &ReplacementError{Sender: incoming.Sender, Nonce: nonceString(incoming.Nonce)}
	}
	return nil
}

func bumpedEnough(old, incoming *big.Int) bool {
	if old == nil {
		old = new(big.Int)
	}
	if incoming == nil {
		incoming = new(big.Int)
	}
	required := ceilPercent(old, params.ReplacementBumpNumerator)
	return incoming.Cmp(required) >= 0
}

func ceilPercent(v *big.Int, numerator int64) *big.Int {
	scaled := new(big.Int).Mul(v, big.NewInt(numerator))
	hundred := big.NewInt(100)
	q, r := new(big.Int).QuoRem(scaled, hundred, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func nonceString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// classifyFailure decides whether a validation failure counts as an
// "invalid simulation" for reputation-penalty purposes, and which entity
// it's attributed to. Sanity-field errors are the caller's fault, not an
// entity's, and reputation errors are already a rejection on existing
// status, so neither adds a fresh penalty; every other validator error
// reflects an entity behaving badly during simulation.
func classifyFailure(op *userop.UserOperation, err error) (bool, common.Address) {
	switch e := err.(type) {
	case *validation.SanityError:
		return false, common.Address{}
	case *validation.ReputationError:
		return false, common.Address{}
	case *validation.OpcodeViolationError:
		return true, e.Entity
	case *validation.StorageViolationError:
		return true, e.Entity
	case *validation.CallTargetError:
		return true, e.Entity
	case *validation.CodeHashChangedError:
		return true, e.Addr
	default:
		return true, op.Sender
	}
}

// GetAll returns every admitted entry, in no particular order.
func (p *Pool) GetAll() []*userop.MempoolEntry {
	entries, err := p.store.All()
	if err != nil {
		log.Error("mempool: store.All failed", "err", err)
		return nil
	}
	return entries
}

// GetByHash looks up a single entry.
func (p *Pool) GetByHash(hash common.Hash) (*userop.MempoolEntry, bool) {
	entry, ok, err := p.store.Get(hash)
	if err != nil {
		log.Error("mempool: store.Get failed", "err", err)
		return nil, false
	}
	return entry, ok
}

// RemoveUserOperation evicts hash from the pool without bundling it,
// e.g. on expiry or a failed re-validation during bundling.
func (p *Pool) RemoveUserOperation(hash common.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok, err := p.store.Get(hash)
	if err != nil {
		return err
	}
	if !ok {
		return &UnknownHashError{Hash: hash}
	}
	p.index.remove(entry)
	if err := p.store.Delete(hash); err != nil {
		return err
	}
	pendingOpsGauge.Dec(1)
	return nil
}

// ClearState evicts every entry, for debug_clearState.
func (p *Pool) ClearState() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index.clear()
	if err := p.store.Clear(); err != nil {
		return err
	}
	pendingOpsGauge.Update(0)
	return nil
}

// EntityCount reports how many current entries reference addr in any
// entity role.
func (p *Pool) EntityCount(addr common.Address) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.index.entityCount(addr)
}

// OnNewBlock removes entries whose validity window has passed.
func (p *Pool) OnNewBlock(ctx context.Context, head eventbus.NewBlockEvent) {
	now := time.Unix(int64(head.Timestamp), 0)
	for _, entry := range p.GetAll() {
		if entry.Outcome != nil && entry.Outcome.Expired(now, params.ExpirationMargin) {
			_ = p.RemoveUserOperation(entry.Hash)
			if p.bus != nil {
				p.bus.PublishRemovedUserOp(eventbus.RemovedUserOpEvent{Hash: entry.Hash, Reason: "expired"})
			}
		}
	}
}

// GetUserOperationsForBundle returns admissible entries ordered for
// inclusion: maxPriorityFeePerGas desc, tie-broken by maxFeePerGas desc
// then earlier submission time, skipping a second op from the same
// sender and a second appearance of a Throttled entity.
func (p *Pool) GetUserOperationsForBundle() []*userop.MempoolEntry {
	entries := p.GetAll()
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Op, entries[j].Op
		if cmp := a.MaxPriorityFeePerGas.Cmp(b.MaxPriorityFeePerGas); cmp != 0 {
			return cmp > 0
		}
		if cmp := a.MaxFeePerGas.Cmp(b.MaxFeePerGas); cmp != 0 {
			return cmp > 0
		}
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})

	seenSender := make(map[common.Address]struct{})
	seenThrottled := make(map[common.Address]struct{})

	var out []*userop.MempoolEntry
	for _, entry := range entries {
		if _, dup := seenSender[entry.Op.Sender]; dup {
			continue
		}
		skip := false
		if entry.Outcome != nil {
			for _, ent := range entry.Outcome.Entities {
				if p.rep.Status(ent.Address) != userop.ReputationThrottled {
					continue
				}
				if _, already := seenThrottled[ent.Address]; already {
					skip = true
					break
				}
			}
		}
		if skip {
			continue
		}
		seenSender[entry.Op.Sender] = struct{}{}
		if entry.Outcome != nil {
			for _, ent := range entry.Outcome.Entities {
				if p.rep.Status(ent.Address) == userop.ReputationThrottled {
					seenThrottled[ent.Address] = struct{}{}
				}
			}
		}
		out = append(out, entry)
	}
	return out
}
