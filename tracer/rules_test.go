package tracer

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	factoryAddr    = common.HexToAddress("0x1111111111111111111111111111111111111F")
	senderAddr     = common.HexToAddress("0x2222222222222222222222222222222222222A")
	entryPointAddr = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
)

func noStake(common.Address) bool              { return false }
func noAssociatedSlot(common.Address, common.Hash) bool { return false }

func TestCheckRulesFlagsForbiddenOpcode(t *testing.T) {
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{{Depth: 1, Opcode: NUMBER}},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Len(t, violations, 2) // NUMBER forbidden, plus "no CREATE2 seen"
	require.Equal(t, ViolationForbiddenOpcode, violations[0].Kind)
	require.Equal(t, NUMBER, violations[0].Opcode)
}

func TestCheckRulesAllowsOwnStorage(t *testing.T) {
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: SSTORE, Storage: &StorageAccess{Address: factoryAddr, Slot: common.Hash{1}, Write: true}},
			{Opcode: CREATE2, Created: &senderAddr},
		},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Empty(t, violations)
}

func TestCheckRulesRejectsUnstakedExternalStorage(t *testing.T) {
	other := common.HexToAddress("0x3333333333333333333333333333333333333B")
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: SLOAD, Storage: &StorageAccess{Address: other, Slot: common.Hash{1}}},
			{Opcode: CREATE2, Created: &senderAddr},
		},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Len(t, violations, 1)
	require.Equal(t, ViolationStorageAccess, violations[0].Kind)
}

func TestCheckRulesAllowsStakedExternalStorage(t *testing.T) {
	other := common.HexToAddress("0x3333333333333333333333333333333333333B")
	staked := func(a common.Address) bool { return a == other }
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: SLOAD, Storage: &StorageAccess{Address: other, Slot: common.Hash{1}}},
			{Opcode: CREATE2, Created: &senderAddr},
		},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, staked, noAssociatedSlot)
	require.Empty(t, violations)
}

func TestCheckRulesGasAllowedBeforeCall(t *testing.T) {
	target := common.HexToAddress("0x4444444444444444444444444444444444444C")
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: GAS},
			{Opcode: CALL, CallTarget: &target},
			{Opcode: CREATE2, Created: &senderAddr},
		},
		CodeHashes: map[common.Address]common.Hash{target: {1}},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Empty(t, violations)
}

func TestCheckRulesGasRejectedWhenNotFollowedByCall(t *testing.T) {
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: GAS},
			{Opcode: SSTORE, Storage: &StorageAccess{Address: factoryAddr, Slot: common.Hash{1}}},
			{Opcode: CREATE2, Created: &senderAddr},
		},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Len(t, violations, 1)
	require.Equal(t, ViolationUnaccompaniedGas, violations[0].Kind)
}

func TestCheckRulesRejectsCallToEntryPointExceptDeposit(t *testing.T) {
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: CALL, CallTarget: &entryPointAddr, Selector: [4]byte{0xde, 0xad, 0xbe, 0xef}},
			{Opcode: CREATE2, Created: &senderAddr},
		},
		CodeHashes: map[common.Address]common.Hash{entryPointAddr: {1}},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Len(t, violations, 1)
	require.Equal(t, ViolationCallTarget, violations[0].Kind)
}

func TestCheckRulesAllowsDepositToEntryPoint(t *testing.T) {
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: CALL, CallTarget: &entryPointAddr, Selector: entryPointDepositSelector},
			{Opcode: CREATE2, Created: &senderAddr},
		},
		CodeHashes: map[common.Address]common.Hash{entryPointAddr: {1}},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Empty(t, violations)
}

func TestCheckRulesRequiresExactlyOneCreate2InFactory(t *testing.T) {
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: CREATE2, Created: &senderAddr},
			{Opcode: CREATE2, Created: &senderAddr},
		},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Len(t, violations, 1)
	require.Equal(t, ViolationExtraCreate2, violations[0].Kind)
}

func TestCheckRulesRejectsCreate2NotYieldingSender(t *testing.T) {
	other := common.HexToAddress("0x3333333333333333333333333333333333333B")
	frame := Frame{
		Entity: factoryAddr,
		Events: []Event{
			{Opcode: CREATE2, Created: &other},
		},
	}
	violations := CheckRules(frame, LevelFactory, senderAddr, entryPointAddr, noStake, noAssociatedSlot)
	require.Len(t, violations, 1)
	require.Equal(t, ViolationExtraCreate2, violations[0].Kind)
	require.Equal(t, &other, violations[0].Addr)
}
