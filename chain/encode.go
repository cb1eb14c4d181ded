package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/userop"
)

// EncodeHandleOps ABI-encodes a call to
// EntryPoint.handleOps((address,uint256,bytes,bytes,uint256,uint256,uint256,uint256,uint256,bytes,bytes)[],address)
// for the given batch of UserOperations and the beneficiary that collects
// the bundler's fee.
func EncodeHandleOps(ops []*userop.UserOperation, beneficiary common.Address) ([]byte, error) {
	parsed, err := handleOpsABI()
	if err != nil {
		return nil, err
	}
	tuples := make([]userOpTuple, len(ops))
	for i, op := range ops {
		tuples[i] = packUserOpTuple(op)
	}
	return parsed.Pack("handleOps", tuples, beneficiary)
}

func handleOpsABI() (abi.ABI, error) {
	const handleOpsJSON = `[{
		"name": "handleOps",
		"type": "function",
		"inputs": [
			{
				"name": "ops",
				"type": "tuple[]",
				"components": [
					{"name": "sender", "type": "address"},
					{"name": "nonce", "type": "uint256"},
					{"name": "initCode", "type": "bytes"},
					{"name": "callData", "type": "bytes"},
					{"name": "callGasLimit", "type": "uint256"},
					{"name": "verificationGasLimit", "type": "uint256"},
					{"name": "preVerificationGas", "type": "uint256"},
					{"name": "maxFeePerGas", "type": "uint256"},
					{"name": "maxPriorityFeePerGas", "type": "uint256"},
					{"name": "paymasterAndData", "type": "bytes"},
					{"name": "signature", "type": "bytes"}
				]
			},
			{"name": "beneficiary", "type": "address"}
		]
	}]`
	return abi.JSON(strings.NewReader(handleOpsJSON))
}
