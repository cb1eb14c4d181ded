package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Pack encodes op the way the EntryPoint contract does before hashing it:
// the three variable-length fields are replaced by their own keccak256, so
// that the resulting packed value has a fixed 10-word layout.
//
//	pack(op) = abi.encode(
//	    sender, nonce, keccak256(initCode), keccak256(callData),
//	    callGasLimit, verificationGasLimit, preVerificationGas,
//	    maxFeePerGas, maxPriorityFeePerGas, keccak256(paymasterAndData),
//	)
//
// Signature is never part of pack(op) — it is authenticated separately by
// the account/paymaster's own validateUserOp, not folded into userOpHash.
func Pack(op *UserOperation) []byte {
	addrTy, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)

	args := abi.Arguments{
		{Type: addrTy}, {Type: uint256Ty}, {Type: bytes32Ty}, {Type: bytes32Ty},
		{Type: uint256Ty}, {Type: uint256Ty}, {Type: uint256Ty},
		{Type: uint256Ty}, {Type: uint256Ty}, {Type: bytes32Ty},
	}
	packed, err := args.Pack(
		op.Sender,
		normalize(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		normalize(op.CallGasLimit),
		normalize(op.VerificationGasLimit),
		normalize(op.PreVerificationGas),
		normalize(op.MaxFeePerGas),
		normalize(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		// Every argument above has a fixed, already-validated shape; a
		// packing failure here means a field was left nil by the caller.
		panic("userop: Pack called on a UserOperation with a nil numeric field: " + err.Error())
	}
	return packed
}

func normalize(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Hash computes userOpHash = keccak256(keccak256(pack(op)) ++ entryPoint ++
// chainId), the primary key of a UserOperation and its identity across
// bundler peers.
func Hash(op *UserOperation, entryPoint common.Address, chainID *big.Int) common.Hash {
	inner := crypto.Keccak256(Pack(op))

	addrTy, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	bytes32Ty, _ := abi.NewType("bytes32", "", nil)
	args := abi.Arguments{{Type: bytes32Ty}, {Type: addrTy}, {Type: uint256Ty}}

	outer, err := args.Pack(common.BytesToHash(inner), entryPoint, normalize(chainID))
	if err != nil {
		panic("userop: Hash failed to encode outer tuple: " + err.Error())
	}
	return crypto.Keccak256Hash(outer)
}
