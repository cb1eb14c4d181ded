package validation

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/silius-bundler/silius-go/userop"
)

func validOp() *userop.UserOperation {
	return &userop.UserOperation{
		Sender:               common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:                big.NewInt(0),
		CallData:             []byte{0x01, 0x02},
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(200_000),
		PreVerificationGas:   big.NewInt(100_000),
		MaxFeePerGas:         big.NewInt(3_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
		Signature:            []byte{0x01},
	}
}

func testConfig() Config {
	return Config{
		EntryPoint:           common.HexToAddress("0x5ff137d4b0fdcd49dca30c7cf57e578a026d2789"),
		MaxVerificationGas:   big.NewInt(1_500_000),
		MinPriorityFeePerGas: big.NewInt(100_000_000),
		MinStake:             big.NewInt(1e17),
		MinUnstakeDelay:      0,
	}
}

func TestSanityCheckAcceptsValidOp(t *testing.T) {
	err := sanityCheck(validOp(), testConfig(), big.NewInt(1_000_000_000))
	require.NoError(t, err)
}

func TestSanityCheckRejectsZeroSender(t *testing.T) {
	op := validOp()
	op.Sender = common.Address{}
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "sender")
}

func TestSanityCheckRejectsLowCallGasLimit(t *testing.T) {
	op := validOp()
	op.CallGasLimit = big.NewInt(1_000)
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "callGasLimit")
}

func TestSanityCheckRejectsLowPreVerificationGas(t *testing.T) {
	op := validOp()
	op.PreVerificationGas = big.NewInt(1)
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "preVerificationGas")
}

func TestSanityCheckRejectsExcessiveVerificationGas(t *testing.T) {
	op := validOp()
	op.VerificationGasLimit = big.NewInt(10_000_000)
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "verificationGasLimit")
}

func TestSanityCheckRejectsPriorityFeeAboveMaxFee(t *testing.T) {
	op := validOp()
	op.MaxPriorityFeePerGas = big.NewInt(4_000_000_000)
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "maxPriorityFeePerGas")
}

func TestSanityCheckRejectsPriorityFeeBelowMinimum(t *testing.T) {
	op := validOp()
	op.MaxPriorityFeePerGas = big.NewInt(1)
	op.MaxFeePerGas = big.NewInt(3_000_000_000)
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "maxPriorityFeePerGas")
}

func TestSanityCheckRejectsFeeBelowBaseFee(t *testing.T) {
	op := validOp()
	op.MaxFeePerGas = big.NewInt(200_000_000)
	op.MaxPriorityFeePerGas = big.NewInt(150_000_000)
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "maxFeePerGas")
}

func TestSanityCheckAllowsFeeBelowBaseFeeWhenConfigured(t *testing.T) {
	op := validOp()
	op.MaxFeePerGas = big.NewInt(200_000_000)
	op.MaxPriorityFeePerGas = big.NewInt(100_000_000)
	cfg := testConfig()
	cfg.AllowBelowBaseFee = true
	err := sanityCheck(op, cfg, big.NewInt(1_000_000_000))
	require.NoError(t, err)
}

func TestSanityCheckRejectsShortPaymasterAndData(t *testing.T) {
	op := validOp()
	op.PaymasterAndData = []byte{0x01, 0x02, 0x03}
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "paymasterAndData")
}

func TestSanityCheckRejectsShortInitCode(t *testing.T) {
	op := validOp()
	op.InitCode = []byte{0x01}
	err := sanityCheck(op, testConfig(), big.NewInt(1_000_000_000))
	requireSanityField(t, err, "initCode")
}

func requireSanityField(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	sErr, ok := err.(*SanityError)
	require.True(t, ok, "expected *SanityError, got %T", err)
	require.Equal(t, field, sErr.Field)
}
