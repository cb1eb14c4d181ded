package validation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/silius-bundler/silius-go/chain"
	"github.com/silius-bundler/silius-go/tracer"
	"github.com/silius-bundler/silius-go/userop"
)

type fakeChain struct {
	codes    map[common.Address][]byte
	balances map[common.Address]*big.Int
	deposits map[common.Address]*big.Int
	frames   map[common.Address]tracer.Frame
	result   *chain.ValidationResult
	traceErr error
	blockNum uint64
}

func (f *fakeChain) GetCode(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	return f.codes[addr], nil
}

func (f *fakeChain) GetBalance(_ context.Context, addr common.Address, _ *big.Int) (*big.Int, error) {
	if b, ok := f.balances[addr]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) GetDeposit(_ context.Context, _, addr common.Address) (*big.Int, error) {
	if d, ok := f.deposits[addr]; ok {
		return d, nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) TraceValidation(_ context.Context, _ common.Address, _ []byte) (map[common.Address]tracer.Frame, *chain.ValidationResult, error) {
	if f.traceErr != nil {
		return nil, nil, f.traceErr
	}
	return f.frames, f.result, nil
}

func (f *fakeChain) BlockNumber(_ context.Context) (uint64, error) {
	return f.blockNum, nil
}

type fakeReputation struct {
	statuses map[common.Address]userop.ReputationStatus
	counts   map[common.Address]int
}

func (r *fakeReputation) Status(addr common.Address) userop.ReputationStatus {
	return r.statuses[addr]
}

func (r *fakeReputation) EntityCount(addr common.Address) int {
	return r.counts[addr]
}

func cleanResult(sender common.Address) *chain.ValidationResult {
	return &chain.ValidationResult{
		PreOpGas:   big.NewInt(50_000),
		Prefund:    big.NewInt(1_000_000),
		ValidAfter: 0,
		ValidUntil: uint64(time.Now().Add(time.Hour).Unix()),
		SenderInfo: chain.StakeInfo{Stake: big.NewInt(0), UnstakeDelaySec: 0},
	}
}

func TestValidateAdmitsCleanOp(t *testing.T) {
	op := validOp()
	cr := &fakeChain{
		codes:    map[common.Address][]byte{op.Sender: {0x60, 0x00}},
		balances: map[common.Address]*big.Int{op.Sender: big.NewInt(10_000_000)},
		frames: map[common.Address]tracer.Frame{
			op.Sender: {Entity: op.Sender, Events: []tracer.Event{{Opcode: tracer.SLOAD, Storage: &tracer.StorageAccess{Address: op.Sender, Slot: common.Hash{1}}}}},
		},
		result: cleanResult(op.Sender),
	}
	rep := &fakeReputation{}

	outcome, err := Validate(context.Background(), op, cr, rep, testConfig(), big.NewInt(1_000_000_000), time.Now())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	require.False(t, outcome.SigFailed)
}

func TestValidateRejectsUndeployedSenderWithoutInitCode(t *testing.T) {
	op := validOp()
	cr := &fakeChain{codes: map[common.Address][]byte{}}
	rep := &fakeReputation{}

	_, err := Validate(context.Background(), op, cr, rep, testConfig(), big.NewInt(1_000_000_000), time.Now())
	require.Error(t, err)
	var sErr *SanityError
	require.ErrorAs(t, err, &sErr)
	require.Equal(t, "sender", sErr.Field)
}

func TestValidateRejectsBannedPaymaster(t *testing.T) {
	op := validOp()
	paymaster := common.HexToAddress("0x2222222222222222222222222222222222222222")
	op.PaymasterAndData = append(paymaster.Bytes(), 0x01)

	cr := &fakeChain{codes: map[common.Address][]byte{op.Sender: {0x60, 0x00}}}
	rep := &fakeReputation{statuses: map[common.Address]userop.ReputationStatus{paymaster: userop.ReputationBanned}}

	_, err := Validate(context.Background(), op, cr, rep, testConfig(), big.NewInt(1_000_000_000), time.Now())
	require.Error(t, err)
	var repErr *ReputationError
	require.ErrorAs(t, err, &repErr)
	require.Equal(t, paymaster, repErr.Addr)
}

func TestValidateRejectsExpiredOp(t *testing.T) {
	op := validOp()
	result := cleanResult(op.Sender)
	result.ValidUntil = uint64(time.Now().Add(-time.Hour).Unix())

	cr := &fakeChain{
		codes:  map[common.Address][]byte{op.Sender: {0x60, 0x00}},
		frames: map[common.Address]tracer.Frame{},
		result: result,
	}
	rep := &fakeReputation{}

	_, err := Validate(context.Background(), op, cr, rep, testConfig(), big.NewInt(1_000_000_000), time.Now())
	require.Error(t, err)
	var expErr *ExpiredError
	require.ErrorAs(t, err, &expErr)
}

func TestValidateRejectsForbiddenOpcode(t *testing.T) {
	op := validOp()
	cr := &fakeChain{
		codes: map[common.Address][]byte{op.Sender: {0x60, 0x00}},
		frames: map[common.Address]tracer.Frame{
			op.Sender: {Entity: op.Sender, Events: []tracer.Event{{Opcode: tracer.TIMESTAMP}}},
		},
		result: cleanResult(op.Sender),
	}
	rep := &fakeReputation{}

	_, err := Validate(context.Background(), op, cr, rep, testConfig(), big.NewInt(1_000_000_000), time.Now())
	require.Error(t, err)
	var opErr *OpcodeViolationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, tracer.TIMESTAMP, opErr.Opcode)
}

func TestValidateRejectsInsufficientPrefund(t *testing.T) {
	op := validOp()
	result := cleanResult(op.Sender)
	result.Prefund = big.NewInt(1_000_000_000)

	cr := &fakeChain{
		codes:    map[common.Address][]byte{op.Sender: {0x60, 0x00}},
		balances: map[common.Address]*big.Int{op.Sender: big.NewInt(1)},
		frames:   map[common.Address]tracer.Frame{},
		result:   result,
	}
	rep := &fakeReputation{}

	_, err := Validate(context.Background(), op, cr, rep, testConfig(), big.NewInt(1_000_000_000), time.Now())
	require.Error(t, err)
	var prefundErr *InsufficientPrefundError
	require.ErrorAs(t, err, &prefundErr)
}
