package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// balanceOfSelector is keccak256("balanceOf(address)")[:4], the EntryPoint's
// view of an address's deposited, gas-spendable ether.
var balanceOfSelector = [4]byte{0x70, 0xa0, 0x82, 0x31}

// GetDeposit returns addr's current deposit balance held by entryPoint,
// used by the prefund check to determine whether a sender or paymaster can
// cover a UserOperation without relying on its on-chain account balance
// alone.
func (c *Client) GetDeposit(ctx context.Context, entryPoint, addr common.Address) (*big.Int, error) {
	data := make([]byte, 4+32)
	copy(data[:4], balanceOfSelector[:])
	copy(data[4+12:], addr.Bytes())

	out, err := c.Call(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return new(big.Int), nil
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// getDepositInfoSelector is keccak256("getDepositInfo(address)")[:4].
var getDepositInfoSelector = [4]byte{0x52, 0x87, 0xce, 0x12}

// GetStakeInfo returns addr's stake and unstakeDelaySec as reported by
// entryPoint.getDepositInfo, used where a full StakeInfo (rather than just
// the depositTo balance GetDeposit reads) is needed, e.g. to enforce a
// minimum stake on an aggregator before its ops are bundled. The
// DepositInfo tuple (deposit, staked, stake, unstakeDelaySec, withdrawTime)
// has no dynamic members, so the EntryPoint returns it as five front-aligned
// 32-byte words; decoded by direct offset rather than a generated binding.
func (c *Client) GetStakeInfo(ctx context.Context, entryPoint, addr common.Address) (StakeInfo, error) {
	data := make([]byte, 4+32)
	copy(data[:4], getDepositInfoSelector[:])
	copy(data[4+12:], addr.Bytes())

	out, err := c.Call(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return StakeInfo{}, err
	}
	const wordLen = 32
	if len(out) < 5*wordLen {
		return StakeInfo{}, nil
	}
	stake := new(big.Int).SetBytes(out[2*wordLen : 3*wordLen])
	unstakeDelaySec := new(big.Int).SetBytes(out[3*wordLen : 4*wordLen]).Uint64()
	return StakeInfo{Stake: stake, UnstakeDelaySec: unstakeDelaySec}, nil
}
