// Package bundler assembles admitted UserOperations into handleOps
// transactions: candidate selection and ordering (delegated to the
// mempool's GetUserOperationsForBundle), a light re-validation pass against
// current chain state, a cumulative gas envelope, aggregator grouping, and
// submission with per-op retry on a decoded FailedOp revert.
package bundler

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"

	"github.com/silius-bundler/silius-go/chain"
	"github.com/silius-bundler/silius-go/eventbus"
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
)

// ChainReader is the subset of *chain.Client the bundle builder needs:
// current chain state for the light re-validation and gas envelope, plus
// transaction signing inputs and broadcast.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	GetCode(ctx context.Context, addr common.Address, number *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	GetTransactionCount(ctx context.Context, addr common.Address) (uint64, error)
	GetStakeInfo(ctx context.Context, entryPoint, addr common.Address) (chain.StakeInfo, error)
	SuggestBaseFee(ctx context.Context) (*big.Int, error)
	SendRawTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, txHash common.Hash, pollInterval time.Duration) (*types.Receipt, error)
	ChainID() *big.Int
}

// Pool is the subset of *mempool.Pool the builder drives.
type Pool interface {
	GetUserOperationsForBundle() []*userop.MempoolEntry
	RemoveUserOperation(hash common.Hash) error
}

// ReputationManager is the subset of *reputation.Manager the builder writes
// back to on inclusion or per-op drop.
type ReputationManager interface {
	RecordIncluded(addrs []common.Address)
	Penalize(addr common.Address)
}

// Config carries the bundle builder's policy knobs and the bundler's own
// signing key.
type Config struct {
	EntryPoint  common.Address
	Beneficiary common.Address
	Signer      *ecdsa.PrivateKey

	BundleGasFactor    float64
	MaxBundleSize      int
	MaxRebuildAttempts int
	MinBundleSize      int
	MinAggregatorStake *big.Int

	SubmitDeadline time.Duration
	PollInterval   time.Duration
}

// DefaultConfig fills in the package's protocol defaults around a signer
// key, beneficiary defaulting to the signer's own address.
func DefaultConfig(entryPoint common.Address, signer *ecdsa.PrivateKey) Config {
	return Config{
		EntryPoint:         entryPoint,
		Beneficiary:        crypto.PubkeyToAddress(signer.PublicKey),
		Signer:             signer,
		BundleGasFactor:    params.BundleGasFactor,
		MaxBundleSize:      params.MaxBundleSize,
		MaxRebuildAttempts: params.MaxRebuildAttempts,
		MinBundleSize:      params.MinBundleSize,
		SubmitDeadline:     24 * time.Second, // ~2 block times at a 12s block
		PollInterval:       2 * time.Second,
	}
}

// Builder assembles and submits handleOps bundles for one EntryPoint.
type Builder struct {
	cr   ChainReader
	pool Pool
	rep  ReputationManager
	bus  *eventbus.Bus
	cfg  Config
}

// New returns a ready-to-use Builder, filling in any zero-valued knobs from
// the package defaults.
func New(cr ChainReader, pool Pool, rep ReputationManager, bus *eventbus.Bus, cfg Config) *Builder {
	if cfg.BundleGasFactor == 0 {
		cfg.BundleGasFactor = params.BundleGasFactor
	}
	if cfg.MaxBundleSize == 0 {
		cfg.MaxBundleSize = params.MaxBundleSize
	}
	if cfg.MaxRebuildAttempts == 0 {
		cfg.MaxRebuildAttempts = params.MaxRebuildAttempts
	}
	if cfg.MinBundleSize == 0 {
		cfg.MinBundleSize = params.MinBundleSize
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Builder{cr: cr, pool: pool, rep: rep, bus: bus, cfg: cfg}
}

// Build selects candidates, re-validates them against current chain state,
// assembles one handleOps transaction within the gas envelope, and submits
// it, retrying with the offending op excluded on a decoded FailedOp revert
// up to MaxRebuildAttempts times.
func (b *Builder) Build(ctx context.Context) (*types.Transaction, error) {
	defer MetricsBuildCost(time.Now())

	candidates := b.pool.GetUserOperationsForBundle()
	if len(candidates) < b.cfg.MinBundleSize {
		return nil, &EmptyBundleError{}
	}

	for attempt := 0; attempt < b.cfg.MaxRebuildAttempts; attempt++ {
		selected, err := b.selectBundle(ctx, candidates)
		if err != nil {
			return nil, err
		}
		if len(selected) == 0 {
			return nil, &EmptyBundleError{}
		}

		tx, receipt, err := b.submit(ctx, selected)
		if err == nil {
			b.onIncluded(selected, receipt)
			return tx, nil
		}

		var failedOp *chain.FailedOp
		if errors.As(err, &failedOp) && failedOp.OpIndex >= 0 && int(failedOp.OpIndex) < len(selected) {
			bad := selected[failedOp.OpIndex]
			b.dropAndPenalize(bad, failedOp.Reason)
			candidates = removeEntry(candidates, bad.Hash)
			log.Warn("bundler: dropped op on FailedOp, retrying", "hash", bad.Hash, "reason", failedOp.Reason, "attempt", attempt+1)
			continue
		}
		return nil, err
	}
	return nil, &BundleSubmissionError{Reason: "exhausted rebuild attempts"}
}

// selectBundle runs the light re-validation and gas-envelope accumulation
// over candidates, in the order GetUserOperationsForBundle already gave
// them (priority-fee descending).
func (b *Builder) selectBundle(ctx context.Context, candidates []*userop.MempoolEntry) ([]*userop.MempoolEntry, error) {
	envelope, err := b.gasEnvelope(ctx)
	if err != nil {
		return nil, err
	}

	aggregatorOK := make(map[common.Address]bool)
	cumulative := new(big.Int)
	var selected []*userop.MempoolEntry

	for _, entry := range candidates {
		if len(selected) >= b.cfg.MaxBundleSize {
			break
		}
		if agg := entry.Outcome.Aggregator; agg != nil {
			ok, cached := aggregatorOK[*agg]
			if !cached {
				ok = b.aggregatorStaked(ctx, *agg)
				aggregatorOK[*agg] = ok
			}
			if !ok {
				continue
			}
		}

		if err := b.revalidate(ctx, entry); err != nil {
			log.Debug("bundler: dropping stale candidate", "hash", entry.Hash, "err", err)
			_ = b.pool.RemoveUserOperation(entry.Hash)
			continue
		}

		cost := entryGasCost(entry)
		projected := new(big.Int).Add(cumulative, cost)
		if projected.Cmp(envelope) > 0 {
			if len(selected) == 0 {
				continue // a single oversized op can't ever fit; skip it, don't stall the bundle
			}
			break
		}
		cumulative = projected
		selected = append(selected, entry)
	}
	return selected, nil
}

// gasEnvelope returns the block gas target scaled by BundleGasFactor.
func (b *Builder) gasEnvelope(ctx context.Context) (*big.Int, error) {
	head, err := b.cr.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, err
	}
	target := new(big.Int).SetUint64(head.GasLimit)
	scaled := new(big.Int).Mul(target, big.NewInt(int64(b.cfg.BundleGasFactor*1_000_000)))
	scaled.Div(scaled, big.NewInt(1_000_000))
	return scaled, nil
}

// entryGasCost approximates the gas a UserOperation will cost inside the
// batch: the pre-op gas the EntryPoint reported during simulation plus its
// own call execution.
func entryGasCost(entry *userop.MempoolEntry) *big.Int {
	cost := new(big.Int)
	if entry.Outcome != nil && entry.Outcome.PreOpGas != nil {
		cost.Add(cost, entry.Outcome.PreOpGas)
	}
	if entry.Op.CallGasLimit != nil {
		cost.Add(cost, entry.Op.CallGasLimit)
	}
	return cost
}

// revalidate re-checks the invariants that can silently go stale between
// admission and bundling: every codeHash observed during simulation must
// still match, and every storage slot read must still hold the value
// simulation saw. Anything else (opcode rules, prefund) was already
// enforced at admission and isn't re-run here.
func (b *Builder) revalidate(ctx context.Context, entry *userop.MempoolEntry) error {
	if entry.Outcome == nil {
		return errors.New("bundler: missing validation outcome")
	}
	for _, ch := range entry.Outcome.CodeHashes {
		code, err := b.cr.GetCode(ctx, ch.Address, nil)
		if err != nil {
			return err
		}
		if crypto.Keccak256Hash(code) != ch.Hash {
			return &staleCodeHashError{Addr: ch.Address}
		}
	}
	for _, slot := range entry.Outcome.StorageMap {
		val, err := b.cr.StorageAt(ctx, slot.Address, slot.Slot)
		if err != nil {
			return err
		}
		if val != slot.Value {
			return &staleStorageError{Addr: slot.Address, Slot: slot.Slot}
		}
	}
	return nil
}

type staleCodeHashError struct{ Addr common.Address }

func (e *staleCodeHashError) Error() string { return "bundler: code hash changed for " + e.Addr.Hex() }

type staleStorageError struct {
	Addr common.Address
	Slot common.Hash
}

func (e *staleStorageError) Error() string {
	return "bundler: storage slot changed for " + e.Addr.Hex() + "/" + e.Slot.Hex()
}

// aggregatorStaked reports whether agg meets MinAggregatorStake. A nil
// threshold means any aggregator is accepted.
func (b *Builder) aggregatorStaked(ctx context.Context, agg common.Address) bool {
	if b.cfg.MinAggregatorStake == nil {
		return true
	}
	info, err := b.cr.GetStakeInfo(ctx, b.cfg.EntryPoint, agg)
	if err != nil {
		log.Warn("bundler: failed to read aggregator stake", "aggregator", agg, "err", err)
		return false
	}
	if info.Stake == nil {
		return false
	}
	return info.Stake.Cmp(b.cfg.MinAggregatorStake) >= 0
}

// submit builds, signs and broadcasts a handleOps transaction over
// selected, then waits for it to mine or hit SubmitDeadline.
func (b *Builder) submit(ctx context.Context, selected []*userop.MempoolEntry) (*types.Transaction, *types.Receipt, error) {
	ops := make([]*userop.UserOperation, len(selected))
	for i, entry := range selected {
		ops[i] = entry.Op
	}

	calldata, err := chain.EncodeHandleOps(ops, b.cfg.Beneficiary)
	if err != nil {
		return nil, nil, err
	}

	tx, err := b.buildTx(ctx, ops, calldata)
	if err != nil {
		return nil, nil, err
	}

	if err := b.cr.SendRawTransaction(ctx, tx); err != nil {
		var failedOp *chain.FailedOp
		if errors.As(err, &failedOp) {
			return nil, nil, failedOp
		}
		if fo, ok := chain.DecodeRevert(revertData(err)); ok {
			return nil, nil, fo
		}
		return nil, nil, &BundleSubmissionError{Reason: err.Error()}
	}

	bundlesSubmittedMeter.Mark(1)
	if b.bus != nil {
		head, _ := b.cr.BlockNumber(ctx)
		b.bus.PublishBundleSubmitted(eventbus.NewBundleSubmittedEvent{
			TxHash: tx.Hash(), EntryPoint: b.cfg.EntryPoint, NumOps: len(selected), Submitted: head,
		})
	}

	deadline := b.cfg.SubmitDeadline
	if deadline == 0 {
		deadline = 24 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	receipt, err := b.cr.WaitMined(waitCtx, tx.Hash(), b.cfg.PollInterval)
	if err != nil {
		bundlesOrphanedMeter.Mark(1)
		return nil, nil, &OrphanedBundleError{TxHash: tx.Hash()}
	}

	if b.bus != nil {
		failedAt := -1
		success := receipt.Status == types.ReceiptStatusSuccessful
		b.bus.PublishBundleIncluded(eventbus.BundleIncludedEvent{
			TxHash: tx.Hash(), BlockNum: receipt.BlockNumber.Uint64(), Success: success, FailedOpAt: failedAt,
		})
	}
	return tx, receipt, nil
}

// buildTx assembles the EIP-1559 handleOps transaction: maxFeePerGas is
// the greater of baseFee*1.25 and the median over the batch's
// maxFeePerGas, maxPriorityFeePerGas is the median over the batch's tip.
func (b *Builder) buildTx(ctx context.Context, ops []*userop.UserOperation, calldata []byte) (*types.Transaction, error) {
	baseFee, err := b.cr.SuggestBaseFee(ctx)
	if err != nil {
		return nil, err
	}
	signerAddr := crypto.PubkeyToAddress(b.cfg.Signer.PublicKey)
	nonce, err := b.cr.GetTransactionCount(ctx, signerAddr)
	if err != nil {
		return nil, err
	}

	tip := medianTip(ops)
	maxFee := new(big.Int).Mul(baseFee, big.NewInt(125))
	maxFee.Div(maxFee, big.NewInt(100))
	if batchMax := medianMaxFee(ops); batchMax.Cmp(maxFee) > 0 {
		maxFee = batchMax
	}

	gasLimit := uint64(0)
	for _, op := range ops {
		gasLimit += op.CallGasLimit.Uint64() + op.VerificationGasLimit.Uint64() + op.PreVerificationGas.Uint64()
	}
	gasLimit = gasLimit + gasLimit/5 // headroom for the handleOps loop overhead itself

	chainID := b.cr.ChainID()
	inner := &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &b.cfg.EntryPoint,
		Value:     new(big.Int),
		Data:      calldata,
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignNewTx(b.cfg.Signer, signer, inner)
}

func medianTip(ops []*userop.UserOperation) *big.Int {
	return medianOf(ops, func(op *userop.UserOperation) *big.Int { return op.MaxPriorityFeePerGas })
}

func medianMaxFee(ops []*userop.UserOperation) *big.Int {
	return medianOf(ops, func(op *userop.UserOperation) *big.Int { return op.MaxFeePerGas })
}

func medianOf(ops []*userop.UserOperation, field func(*userop.UserOperation) *big.Int) *big.Int {
	vals := make([]*big.Int, 0, len(ops))
	for _, op := range ops {
		v := field(op)
		if v == nil {
			v = new(big.Int)
		}
		vals = append(vals, v)
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i].Cmp(vals[j]) < 0 })
	if len(vals) == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(vals[len(vals)/2])
}

// onIncluded increments opsIncluded for every entity across the bundled
// batch and evicts the included ops from the mempool.
func (b *Builder) onIncluded(selected []*userop.MempoolEntry, receipt *types.Receipt) {
	var entities []common.Address
	success := receipt != nil && receipt.Status == types.ReceiptStatusSuccessful
	if success {
		bundlesIncludedMeter.Mark(1)
	} else {
		bundlesFailedMeter.Mark(1)
	}
	for _, entry := range selected {
		entities = append(entities, entry.Op.Sender)
		for _, e := range entry.Outcome.Entities {
			entities = append(entities, e.Address)
		}
		if b.bus != nil && receipt != nil {
			b.bus.PublishUserOpIncluded(eventbus.UserOpIncludedEvent{
				Hash:        entry.Hash,
				EntryPoint:  b.cfg.EntryPoint,
				Sender:      entry.Op.Sender,
				Nonce:       entry.Op.Nonce,
				Success:     success,
				TxHash:      receipt.TxHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				BlockHash:   receipt.BlockHash,
			})
		}
		_ = b.pool.RemoveUserOperation(entry.Hash)
	}
	b.rep.RecordIncluded(entities)
}

// dropAndPenalize evicts bad from the mempool and penalizes the entity the
// FailedOp revert is attributed to (the sender, absent a more specific
// entity reason the revert string can't disambiguate).
func (b *Builder) dropAndPenalize(bad *userop.MempoolEntry, _ string) {
	_ = b.pool.RemoveUserOperation(bad.Hash)
	b.rep.Penalize(bad.Op.Sender)
}

func removeEntry(entries []*userop.MempoolEntry, hash common.Hash) []*userop.MempoolEntry {
	out := make([]*userop.MempoolEntry, 0, len(entries))
	for _, e := range entries {
		if e.Hash != hash {
			out = append(out, e)
		}
	}
	return out
}

// revertData extracts revert data from an RPC error, when the endpoint's
// error type carries it (go-ethereum's rpc.Error / DataError convention).
func revertData(err error) []byte {
	type dataError interface {
		ErrorData() interface{}
	}
	var de dataError
	if errors.As(err, &de) {
		if data, ok := de.ErrorData().(string); ok {
			return common.FromHex(data)
		}
	}
	return nil
}
