package userop

import (
	"encoding/binary"
	"errors"
	"math/big"

	ssz "github.com/ferranbt/fastssz"
)

// Wire-format bounds for the SSZ projection. UserOperations carrying
// fields larger than these are rejected before encoding; the bundler never
// needs calldata/initCode/signature beyond a few tens of KB in practice.
const (
	maxInitCodeLen         = 16 * 1024
	maxCallDataLen         = 64 * 1024
	maxPaymasterAndDataLen = 8 * 1024
	maxSignatureLen        = 4 * 1024

	sszFixedLen = 20 + 32*6 + 4*4 // Sender + 6 uint256 words (Nonce and five gas/fee fields) + 4 u32 offsets
)

// SSZUserOp is the SSZ-encodable projection of UserOperation used on the
// P2P wire (the pebble-backed store persists RLP records instead). 256-bit integer
// fields are carried as big-endian 32-byte
// strings, matching the convention fastssz generates for "uint256"-shaped
// consensus-layer fields. Marshal/Unmarshal below follow the same fixed-
// region-then-offsets layout sszgen produces for a struct with four
// variable-length fields; we hand-write it here rather than vendor
// generated code, since fastssz is used for its wire format, not its
// codegen tool.
type SSZUserOp struct {
	Sender               [20]byte
	Nonce                [32]byte
	InitCode             []byte `ssz-max:"16384"`
	CallData             []byte `ssz-max:"65536"`
	CallGasLimit         [32]byte
	VerificationGasLimit [32]byte
	PreVerificationGas   [32]byte
	MaxFeePerGas         [32]byte
	MaxPriorityFeePerGas [32]byte
	PaymasterAndData     []byte `ssz-max:"8192"`
	Signature            []byte `ssz-max:"4096"`
}

func bigToBytes32(v *big.Int) [32]byte {
	var out [32]byte
	if v == nil {
		return out
	}
	b := v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func bytes32ToBig(b [32]byte) *big.Int {
	return new(big.Int).SetBytes(b[:])
}

// ToSSZ projects a UserOperation into its wire form. Returns an error if
// any variable-length field exceeds the wire bound.
func ToSSZ(op *UserOperation) (*SSZUserOp, error) {
	if len(op.InitCode) > maxInitCodeLen {
		return nil, errFieldTooLong("initCode", len(op.InitCode), maxInitCodeLen)
	}
	if len(op.CallData) > maxCallDataLen {
		return nil, errFieldTooLong("callData", len(op.CallData), maxCallDataLen)
	}
	if len(op.PaymasterAndData) > maxPaymasterAndDataLen {
		return nil, errFieldTooLong("paymasterAndData", len(op.PaymasterAndData), maxPaymasterAndDataLen)
	}
	if len(op.Signature) > maxSignatureLen {
		return nil, errFieldTooLong("signature", len(op.Signature), maxSignatureLen)
	}
	return &SSZUserOp{
		Sender:               op.Sender,
		Nonce:                bigToBytes32(op.Nonce),
		InitCode:             append([]byte(nil), op.InitCode...),
		CallData:             append([]byte(nil), op.CallData...),
		CallGasLimit:         bigToBytes32(op.CallGasLimit),
		VerificationGasLimit: bigToBytes32(op.VerificationGasLimit),
		PreVerificationGas:   bigToBytes32(op.PreVerificationGas),
		MaxFeePerGas:         bigToBytes32(op.MaxFeePerGas),
		MaxPriorityFeePerGas: bigToBytes32(op.MaxPriorityFeePerGas),
		PaymasterAndData:     append([]byte(nil), op.PaymasterAndData...),
		Signature:            append([]byte(nil), op.Signature...),
	}, nil
}

// FromSSZ reconstructs a UserOperation from its wire form.
func FromSSZ(w *SSZUserOp) *UserOperation {
	return &UserOperation{
		Sender:               w.Sender,
		Nonce:                bytes32ToBig(w.Nonce),
		InitCode:             append([]byte(nil), w.InitCode...),
		CallData:             append([]byte(nil), w.CallData...),
		CallGasLimit:         bytes32ToBig(w.CallGasLimit),
		VerificationGasLimit: bytes32ToBig(w.VerificationGasLimit),
		PreVerificationGas:   bytes32ToBig(w.PreVerificationGas),
		MaxFeePerGas:         bytes32ToBig(w.MaxFeePerGas),
		MaxPriorityFeePerGas: bytes32ToBig(w.MaxPriorityFeePerGas),
		PaymasterAndData:     append([]byte(nil), w.PaymasterAndData...),
		Signature:            append([]byte(nil), w.Signature...),
	}
}

// SizeSSZ returns the encoded length: the fixed region plus the four
// variable-length tails.
func (w *SSZUserOp) SizeSSZ() int {
	return sszFixedLen + len(w.InitCode) + len(w.CallData) + len(w.PaymasterAndData) + len(w.Signature)
}

// MarshalSSZTo appends the SSZ encoding of w to dst and returns the result,
// implementing ssz.Marshaler.
func (w *SSZUserOp) MarshalSSZTo(dst []byte) ([]byte, error) {
	offset := uint32(sszFixedLen)
	buf := dst
	buf = append(buf, w.Sender[:]...)
	buf = append(buf, w.Nonce[:]...)
	buf = appendOffset(buf, offset)
	offset += uint32(len(w.InitCode))
	buf = appendOffset(buf, offset)
	offset += uint32(len(w.CallData))
	buf = append(buf, w.CallGasLimit[:]...)
	buf = append(buf, w.VerificationGasLimit[:]...)
	buf = append(buf, w.PreVerificationGas[:]...)
	buf = append(buf, w.MaxFeePerGas[:]...)
	buf = append(buf, w.MaxPriorityFeePerGas[:]...)
	buf = appendOffset(buf, offset)
	offset += uint32(len(w.PaymasterAndData))
	buf = appendOffset(buf, offset)

	buf = append(buf, w.InitCode...)
	buf = append(buf, w.CallData...)
	buf = append(buf, w.PaymasterAndData...)
	buf = append(buf, w.Signature...)
	return buf, nil
}

// MarshalSSZ implements ssz.Marshaler.
func (w *SSZUserOp) MarshalSSZ() ([]byte, error) {
	return w.MarshalSSZTo(make([]byte, 0, w.SizeSSZ()))
}

func appendOffset(buf []byte, offset uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], offset)
	return append(buf, tmp[:]...)
}

var errSSZShortBuffer = errors.New("userop: ssz buffer shorter than fixed region")

// UnmarshalSSZ implements ssz.Unmarshaler.
func (w *SSZUserOp) UnmarshalSSZ(buf []byte) error {
	if len(buf) < sszFixedLen {
		return errSSZShortBuffer
	}
	copy(w.Sender[:], buf[0:20])
	copy(w.Nonce[:], buf[20:52])
	initCodeOff := binary.LittleEndian.Uint32(buf[52:56])
	callDataOff := binary.LittleEndian.Uint32(buf[56:60])
	copy(w.CallGasLimit[:], buf[60:92])
	copy(w.VerificationGasLimit[:], buf[92:124])
	copy(w.PreVerificationGas[:], buf[124:156])
	copy(w.MaxFeePerGas[:], buf[156:188])
	copy(w.MaxPriorityFeePerGas[:], buf[188:220])
	paymasterOff := binary.LittleEndian.Uint32(buf[220:224])
	signatureOff := binary.LittleEndian.Uint32(buf[224:228])

	if int(initCodeOff) > len(buf) || int(callDataOff) > len(buf) ||
		int(paymasterOff) > len(buf) || int(signatureOff) > len(buf) ||
		initCodeOff > callDataOff || callDataOff > paymasterOff || paymasterOff > signatureOff {
		return errors.New("userop: malformed ssz offsets")
	}
	w.InitCode = append([]byte(nil), buf[initCodeOff:callDataOff]...)
	w.CallData = append([]byte(nil), buf[callDataOff:paymasterOff]...)
	w.PaymasterAndData = append([]byte(nil), buf[paymasterOff:signatureOff]...)
	w.Signature = append([]byte(nil), buf[signatureOff:]...)
	return nil
}

// HashTreeRootWith implements ssz.HashRoot so HashTreeRoot can be computed
// via fastssz's shared hasher pool instead of a bespoke merkleization.
func (w *SSZUserOp) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(w.Sender[:])
	hh.PutBytes(w.Nonce[:])
	hh.PutBytes(w.CallGasLimit[:])
	hh.PutBytes(w.VerificationGasLimit[:])
	hh.PutBytes(w.PreVerificationGas[:])
	hh.PutBytes(w.MaxFeePerGas[:])
	hh.PutBytes(w.MaxPriorityFeePerGas[:])
	putByteList(hh, w.InitCode, maxInitCodeLen)
	putByteList(hh, w.CallData, maxCallDataLen)
	putByteList(hh, w.PaymasterAndData, maxPaymasterAndDataLen)
	putByteList(hh, w.Signature, maxSignatureLen)
	hh.Merkleize(indx)
	return nil
}

// putByteList merkleizes a variable-length byte field the way fastssz's
// generated code does: the bytes are chunked into the hasher, then mixed
// in with their length so two lists of different size never collide.
func putByteList(hh *ssz.Hasher, data []byte, limit int) {
	elemIndx := hh.Index()
	hh.PutBytes(data)
	hh.MerkleizeWithMixin(elemIndx, uint64(len(data)), uint64((limit+31)/32))
}

// HashTreeRoot computes the SSZ merkle root. Gossip deduplication keys on
// userOpHash, not on this root.
func (w *SSZUserOp) HashTreeRoot() ([32]byte, error) {
	return ssz.HashWithDefaultHasher(w)
}

func errFieldTooLong(field string, got, max int) error {
	return &FieldTooLongError{Field: field, Got: got, Max: max}
}

// FieldTooLongError is returned by ToSSZ when a variable-length field
// exceeds its wire bound.
type FieldTooLongError struct {
	Field    string
	Got, Max int
}

func (e *FieldTooLongError) Error() string {
	return "userop: field " + e.Field + " exceeds wire bound"
}
