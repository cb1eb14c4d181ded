package validation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// associatedSlotWindow bounds how far a storage slot may sit past
// keccak256(sender) and still count as one of the sender's "associated
// slots" under ERC-7562 — covering the small run of slots a mapping or
// array keyed by the sender's own address typically occupies.
const associatedSlotWindow = 128

// isAssociatedSlot reports whether slot is derivable from sender's address
// the way ERC-7562 permits an account to touch its own mapping/array
// entries during validation without being staked: slot falls within a
// short run starting at keccak256(sender).
func isAssociatedSlot(sender common.Address, slot common.Hash) bool {
	base := crypto.Keccak256Hash(common.LeftPadBytes(sender.Bytes(), 32))
	baseInt := new(big.Int).SetBytes(base.Bytes())
	slotInt := new(big.Int).SetBytes(slot.Bytes())

	diff := new(big.Int).Sub(slotInt, baseInt)
	if diff.Sign() < 0 {
		return false
	}
	return diff.Cmp(big.NewInt(associatedSlotWindow)) <= 0
}
