package rpcapi

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/silius-bundler/silius-go/bundler"
	"github.com/silius-bundler/silius-go/eventbus"
	"github.com/silius-bundler/silius-go/mempool"
	"github.com/silius-bundler/silius-go/params"
	"github.com/silius-bundler/silius-go/userop"
	"github.com/silius-bundler/silius-go/validation"
)

var testEntryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

func TestToRPCErrorMapsKnownTypes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"sanity", &validation.SanityError{Field: "sender", Reason: "bad"}, params.RPCInvalidUserOp},
		{"opcode", &validation.OpcodeViolationError{Entity: testEntryPoint}, params.RPCBannedOpcodeOrStorage},
		{"expired", &validation.ExpiredError{}, params.RPCExpiredOrNotYetValid},
		{"reputation", &validation.ReputationError{Addr: testEntryPoint}, params.RPCPaymasterThrottledBan},
		{"entity cap", &mempool.EntityCapError{Entity: testEntryPoint}, params.RPCPaymasterThrottledBan},
		{"empty bundle", &bundler.EmptyBundleError{}, params.RPCInvalidUserOp},
		{"unknown", errBoom, params.RPCInvalidUserOp},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			wrapped := toRPCError(c.err)
			rpcErr, ok := wrapped.(interface{ ErrorCode() int })
			require.True(t, ok, "must implement rpc.Error")
			require.Equal(t, c.code, rpcErr.ErrorCode())
		})
	}
}

func newTestServices(pool *fakePool, sched *fakeScheduler) []*EntryPointServices {
	return []*EntryPointServices{
		{
			EntryPoint: testEntryPoint,
			Pool:       pool,
			Scheduler:  sched,
			Config: validation.Config{
				EntryPoint:           testEntryPoint,
				MaxVerificationGas:   big.NewInt(5_000_000),
				MinPriorityFeePerGas: big.NewInt(1),
			},
		},
	}
}

func TestEthSendUserOperationSuccess(t *testing.T) {
	pool := newFakePool()
	pool.addHash = common.HexToHash("0xdead")
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	receipts := newReceiptIndex()

	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), receipts)

	hash, err := api.SendUserOperation(context.Background(), FromUserOperation(sampleOp()), testEntryPoint)
	require.NoError(t, err)
	require.Equal(t, pool.addHash, hash)
	require.NotNil(t, pool.lastAdded)
}

func TestEthSendUserOperationUnknownEntryPoint(t *testing.T) {
	pool := newFakePool()
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), newReceiptIndex())

	_, err := api.SendUserOperation(context.Background(), FromUserOperation(sampleOp()), common.HexToAddress("0x999"))
	require.Error(t, err)
}

func TestEthSendUserOperationPropagatesError(t *testing.T) {
	pool := newFakePool()
	pool.addErr = &validation.SanityError{Field: "sender", Reason: "bad"}
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), newReceiptIndex())

	_, err := api.SendUserOperation(context.Background(), FromUserOperation(sampleOp()), testEntryPoint)
	require.Error(t, err)
	rpcErr, ok := err.(interface{ ErrorCode() int })
	require.True(t, ok)
	require.Equal(t, params.RPCInvalidUserOp, rpcErr.ErrorCode())
}

func TestEthChainId(t *testing.T) {
	pool := newFakePool()
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), newReceiptIndex())

	id, err := api.ChainId()
	require.NoError(t, err)
	require.Equal(t, uint64(1337), uint64(id))
}

func TestEthSupportedEntryPoints(t *testing.T) {
	pool := newFakePool()
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), newReceiptIndex())

	eps, err := api.SupportedEntryPoints()
	require.NoError(t, err)
	require.Equal(t, []common.Address{testEntryPoint}, eps)
}

func TestEthGetUserOperationReceiptNilWhenUnknown(t *testing.T) {
	pool := newFakePool()
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), newReceiptIndex())

	receipt, err := api.GetUserOperationReceipt(common.HexToHash("0xabc"))
	require.NoError(t, err)
	require.Nil(t, receipt)
}

func TestEthGetUserOperationReceiptAfterInclusion(t *testing.T) {
	pool := newFakePool()
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	idx := newReceiptIndex()
	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), idx)

	hash := common.HexToHash("0xabc")
	idx.record(eventbus.UserOpIncludedEvent{
		Hash:        hash,
		EntryPoint:  testEntryPoint,
		Sender:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:       sampleOp().Nonce,
		Success:     true,
		TxHash:      common.HexToHash("0xbeef"),
		BlockNumber: 42,
		BlockHash:   common.HexToHash("0xf00d"),
	})

	receipt, err := api.GetUserOperationReceipt(hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.True(t, receipt.Success)
	require.Equal(t, common.HexToHash("0xbeef"), receipt.TxHash)
}

func TestEthGetUserOperationByHashPending(t *testing.T) {
	pool := newFakePool()
	op := sampleOp()
	hash := common.HexToHash("0x01")
	pool.entries[hash] = &userop.MempoolEntry{Hash: hash, Op: op, EntryPoint: testEntryPoint}
	sched := &fakeScheduler{}
	chainReader := newFakeChainReader()
	api := NewEthAPI(chainReader.chainID, chainReader, newTestServices(pool, sched), newReceiptIndex())

	res, err := api.GetUserOperationByHash(hash)
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, op.Sender, res.UserOperation.Sender)
}

func TestDebugClearStateResetsPoolAndReputation(t *testing.T) {
	pool := newFakePool()
	hash := common.HexToHash("0x1")
	pool.entries[hash] = &userop.MempoolEntry{Hash: hash, Op: sampleOp(), EntryPoint: testEntryPoint}
	sched := &fakeScheduler{}
	rep := &fakeReputation{entries: []userop.ReputationEntry{{Address: testEntryPoint, Stake: big.NewInt(1)}}}

	api := NewDebugAPI(newTestServices(pool, sched), rep)
	require.NoError(t, api.ClearState())
	require.True(t, pool.cleared)
	require.True(t, rep.cleared)
}

func TestDebugSetBundlingModeValidatesInput(t *testing.T) {
	pool := newFakePool()
	sched := &fakeScheduler{}
	api := NewDebugAPI(newTestServices(pool, sched), &fakeReputation{})

	require.NoError(t, api.SetBundlingMode("manual"))
	require.Equal(t, bundler.ModeManual, sched.mode)

	require.Error(t, api.SetBundlingMode("bogus"))
}

func TestDebugSendBundleNow(t *testing.T) {
	pool := newFakePool()
	sched := &fakeScheduler{}
	api := NewDebugAPI(newTestServices(pool, sched), &fakeReputation{})

	require.NoError(t, api.SendBundleNow())
	require.True(t, sched.sendCalled)
}

func TestEstimateUserOperationGasFillsDefaultsAndReturnsFloors(t *testing.T) {
	chainReader := newFakeChainReader()
	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	chainReader.code[sender] = []byte{0x60, 0x00}
	chainReader.deposit = big.NewInt(1_000_000_000_000)

	op := &userop.UserOperation{
		Sender:           sender,
		Nonce:            big.NewInt(0),
		CallData:         []byte{},
		PaymasterAndData: []byte{},
		Signature:        []byte{},
	}

	est, err := estimateUserOperationGas(context.Background(), chainReader, op, testEntryPoint, big.NewInt(5_000_000), big.NewInt(1))
	require.NoError(t, err)
	require.NotNil(t, est)
	require.NotNil(t, est.PreVerificationGas)
	require.NotNil(t, est.VerificationGasLimit)
	require.NotNil(t, est.CallGasLimit)
}

func TestReceiptIndexEvictsOldest(t *testing.T) {
	idx := newReceiptIndex()
	for i := 0; i < receiptIndexCap+10; i++ {
		idx.record(eventbus.UserOpIncludedEvent{Hash: common.BigToHash(big.NewInt(int64(i)))})
	}
	require.Equal(t, receiptIndexCap, len(idx.entries))
	_, ok := idx.get(common.BigToHash(big.NewInt(0)))
	require.False(t, ok)
	_, ok = idx.get(common.BigToHash(big.NewInt(int64(receiptIndexCap + 9))))
	require.True(t, ok)
}
