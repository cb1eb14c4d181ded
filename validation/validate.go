package validation

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/chain"
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/tracer"
	"github.com/silius-bundler/silius-go/userop"
)

// ChainReader is the subset of *chain.Client the validator needs, kept as
// an interface so tests can drive it with a stub rather than a dialed
// node.
type ChainReader interface {
	GetCode(ctx context.Context, addr common.Address, number *big.Int) ([]byte, error)
	GetBalance(ctx context.Context, addr common.Address, number *big.Int) (*big.Int, error)
	GetDeposit(ctx context.Context, entryPoint, addr common.Address) (*big.Int, error)
	TraceValidation(ctx context.Context, entryPoint common.Address, calldata []byte) (map[common.Address]tracer.Frame, *chain.ValidationResult, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// ReputationView answers the two reputation questions the pipeline needs
// without the validator owning the reputation store itself.
type ReputationView interface {
	Status(addr common.Address) userop.ReputationStatus
	EntityCount(addr common.Address) int
}

// Config carries the policy knobs the pipeline otherwise has no way to
// derive from the UserOperation or chain state alone.
type Config struct {
	EntryPoint           common.Address
	MaxVerificationGas   *big.Int
	MinPriorityFeePerGas *big.Int
	MinStake             *big.Int
	MinUnstakeDelay      time.Duration

	// AllowBelowBaseFee lets a bundler operator accept a maxFeePerGas below
	// the current base fee, e.g. to pool ops ahead of an expected fee drop.
	AllowBelowBaseFee bool
	// PermissiveSigFailed admits an operation whose signature failed
	// simulateValidation's own check rather than rejecting it outright,
	// matching bundlers that let the EntryPoint's own signature check at
	// execution time be the final word.
	PermissiveSigFailed bool
}

// Validate runs the full six-step admission pipeline against op and
// returns the ValidationOutcome to store alongside it in the mempool. now
// and baseFee are passed in rather than read internally so the pipeline
// stays a pure function of its inputs.
func Validate(ctx context.Context, op *userop.UserOperation, cr ChainReader, rep ReputationView, cfg Config, baseFee *big.Int, now time.Time) (*userop.ValidationOutcome, error) {
	if err := sanityCheck(op, cfg, baseFee); err != nil {
		return nil, err
	}

	factory, hasFactory := op.Factory()
	paymaster, hasPaymaster := op.Paymaster()

	if err := checkExistence(ctx, cr, op.Sender, factory, hasFactory); err != nil {
		return nil, err
	}

	for _, entity := range op.Entities(nil) {
		if err := checkReputation(rep, entity.Address); err != nil {
			return nil, err
		}
	}

	calldata, err := chain.EncodeSimulateValidation(op)
	if err != nil {
		return nil, err
	}
	frames, result, err := cr.TraceValidation(ctx, cfg.EntryPoint, calldata)
	if err != nil {
		return nil, &SimulationError{Reason: err.Error()}
	}
	if result.SigFailed && !cfg.PermissiveSigFailed {
		return nil, &SimulationError{Reason: "signature check failed"}
	}

	validAfter := time.Unix(int64(result.ValidAfter), 0)
	validUntil := time.Unix(int64(result.ValidUntil), 0)
	if result.ValidUntil != 0 && !validUntil.After(now.Add(params.ExpirationMargin)) {
		return nil, &ExpiredError{}
	}

	stakes := stakeTable{op.Sender: result.SenderInfo}
	if hasFactory {
		stakes[factory] = result.FactoryInfo
	}
	if hasPaymaster {
		stakes[paymaster] = result.PaymasterInfo
	}
	staked := stakes.stakedFunc(cfg)

	codeHashes := make([]userop.CodeHash, 0)
	storageMap := make([]userop.StorageSlot, 0)
	entities := op.Entities(result.Aggregator)

	collect := func(entity common.Address, level tracer.Level) error {
		frame, ok := frames[entity]
		if !ok {
			return nil
		}
		violations := tracer.CheckRules(frame, level, op.Sender, cfg.EntryPoint, staked, isAssociatedSlot)
		if v, isErr := firstViolationError(violations); isErr {
			return v
		}
		for addr, hash := range frame.CodeHashes {
			codeHashes = append(codeHashes, userop.CodeHash{Address: addr, Hash: hash})
		}
		for _, ev := range frame.Events {
			if ev.Storage != nil {
				storageMap = append(storageMap, userop.StorageSlot{
					Address: ev.Storage.Address,
					Slot:    ev.Storage.Slot,
					Value:   ev.Storage.Value,
				})
			}
		}
		return nil
	}

	if err := collect(op.Sender, tracer.LevelAccount); err != nil {
		return nil, err
	}
	for _, entity := range entities {
		if err := collect(entity.Address, levelFor(entity.Kind)); err != nil {
			return nil, err
		}
	}

	if err := checkPrefund(ctx, cr, op, cfg, result, hasPaymaster, paymaster, staked); err != nil {
		return nil, err
	}

	simBlockNum, err := cr.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	return &userop.ValidationOutcome{
		PreOpGas:    result.PreOpGas,
		Prefund:     result.Prefund,
		SigFailed:   result.SigFailed,
		ValidAfter:  validAfter,
		ValidUntil:  validUntil,
		CodeHashes:  codeHashes,
		Entities:    entities,
		Aggregator:  result.Aggregator,
		StorageMap:  storageMap,
		SimBlockNum: simBlockNum,
	}, nil
}

func checkExistence(ctx context.Context, cr ChainReader, sender, factory common.Address, hasFactory bool) error {
	senderCode, err := cr.GetCode(ctx, sender, nil)
	if err != nil {
		return err
	}
	if !hasFactory {
		if len(senderCode) == 0 {
			return &SanityError{Field: "sender", Reason: "no code and no initCode"}
		}
		return nil
	}
	if len(senderCode) != 0 {
		return &SanityError{Field: "initCode", Reason: "sender already deployed"}
	}
	factoryCode, err := cr.GetCode(ctx, factory, nil)
	if err != nil {
		return err
	}
	if len(factoryCode) == 0 {
		return &CodeHashChangedError{Addr: factory}
	}
	return nil
}

func checkReputation(rep ReputationView, addr common.Address) error {
	if rep == nil {
		return nil
	}
	status := rep.Status(addr)
	switch status {
	case userop.ReputationBanned:
		return &ReputationError{Addr: addr, Status: status}
	case userop.ReputationThrottled:
		if rep.EntityCount(addr) >= params.ThrottledMaxInclude {
			return &ReputationError{Addr: addr, Status: status}
		}
	}
	return nil
}

func checkPrefund(ctx context.Context, cr ChainReader, op *userop.UserOperation, cfg Config, result *chain.ValidationResult, hasPaymaster bool, paymaster common.Address, staked tracer.StakeChecker) error {
	prefund := result.Prefund
	if prefund == nil {
		prefund = new(big.Int)
	}
	if !hasPaymaster {
		balance, err := cr.GetBalance(ctx, op.Sender, nil)
		if err != nil {
			return err
		}
		deposit, err := cr.GetDeposit(ctx, cfg.EntryPoint, op.Sender)
		if err != nil {
			return err
		}
		available := new(big.Int).Add(balance, deposit)
		if prefund.Cmp(available) > 0 {
			return &InsufficientPrefundError{Required: prefund.String(), Available: available.String()}
		}
		return nil
	}
	if !staked(paymaster) {
		return &ReputationError{Addr: paymaster, Status: userop.ReputationThrottled}
	}
	deposit, err := cr.GetDeposit(ctx, cfg.EntryPoint, paymaster)
	if err != nil {
		return err
	}
	if prefund.Cmp(deposit) > 0 {
		return &InsufficientPrefundError{Required: prefund.String(), Available: deposit.String()}
	}
	return nil
}

func levelFor(kind userop.EntityKind) tracer.Level {
	switch kind {
	case userop.EntityFactory:
		return tracer.LevelFactory
	case userop.EntityPaymaster:
		return tracer.LevelPaymaster
	default:
		return tracer.LevelAccount
	}
}

func firstViolationError(violations []tracer.Violation) (error, bool) {
	if len(violations) == 0 {
		return nil, false
	}
	v := violations[0]
	switch v.Kind {
	case tracer.ViolationStorageAccess:
		var slot common.Hash
		if v.Slot != nil {
			slot = *v.Slot
		}
		var addr common.Address
		if v.Addr != nil {
			addr = *v.Addr
		}
		return &StorageViolationError{Entity: v.Entity, Addr: addr, Slot: slot}, true
	case tracer.ViolationEmptyCode:
		addr := v.Entity
		if v.Addr != nil {
			addr = *v.Addr
		}
		return &CodeHashChangedError{Addr: addr}, true
	case tracer.ViolationCallTarget:
		var target common.Address
		if v.Addr != nil {
			target = *v.Addr
		}
		return &CallTargetError{Entity: v.Entity, Target: target}, true
	default:
		return &OpcodeViolationError{Entity: v.Entity, Opcode: v.Opcode}, true
	}
}

// stakeTable adapts the per-entity StakeInfo the EntryPoint returns from
// simulateValidation into the tracer.StakeChecker predicate CheckRules
// needs, applying the bundler's configured minimums.
type stakeTable map[common.Address]chain.StakeInfo

func (t stakeTable) stakedFunc(cfg Config) tracer.StakeChecker {
	return func(addr common.Address) bool {
		info, ok := t[addr]
		if !ok || info.Stake == nil {
			return false
		}
		if cfg.MinStake != nil && info.Stake.Cmp(cfg.MinStake) < 0 {
			return false
		}
		if time.Duration(info.UnstakeDelaySec)*time.Second < cfg.MinUnstakeDelay {
			return false
		}
		return true
	}
}
