package p2pnet

import (
	"encoding/binary"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/silius-bundler/silius-go/userop"
)

// Hand-rolled fixed/variable-length encodings for the request/response
// message types, following the same length-prefixed-fields convention as
// userop.SSZUserOp rather than a generated binding -- these messages
// never cross a consensus boundary that needs strict SSZ merkleization,
// only the snappy-framed wire transport §4.7 names.

var errTruncated = errors.New("p2pnet: message truncated")

func putUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func takeUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, errTruncated
	}
	return binary.LittleEndian.Uint64(buf[:8]), buf[8:], nil
}

func putStringList(buf []byte, list []string) []byte {
	buf = putUint64(buf, uint64(len(list)))
	for _, s := range list {
		buf = putUint64(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

func takeStringList(buf []byte) ([]string, []byte, error) {
	n, rest, err := takeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		l, r, err := takeUint64(rest)
		if err != nil {
			return nil, nil, err
		}
		if uint64(len(r)) < l {
			return nil, nil, errTruncated
		}
		out = append(out, string(r[:l]))
		rest = r[l:]
	}
	return out, rest, nil
}

func putHashList(buf []byte, list []common.Hash) []byte {
	buf = putUint64(buf, uint64(len(list)))
	for _, h := range list {
		buf = append(buf, h.Bytes()...)
	}
	return buf
}

func takeHashList(buf []byte) ([]common.Hash, []byte, error) {
	n, rest, err := takeUint64(buf)
	if err != nil {
		return nil, nil, err
	}
	out := make([]common.Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(rest) < common.HashLength {
			return nil, nil, errTruncated
		}
		out = append(out, common.BytesToHash(rest[:common.HashLength]))
		rest = rest[common.HashLength:]
	}
	return out, rest, nil
}

func encodeStatus(m StatusMsg) []byte {
	buf := putUint64(nil, m.ChainID)
	buf = putStringList(buf, m.MempoolIDs)
	buf = putUint64(buf, m.FinalizedBlock)
	return buf
}

func decodeStatus(buf []byte) (StatusMsg, error) {
	chainID, rest, err := takeUint64(buf)
	if err != nil {
		return StatusMsg{}, err
	}
	mempoolIDs, rest, err := takeStringList(rest)
	if err != nil {
		return StatusMsg{}, err
	}
	finalized, _, err := takeUint64(rest)
	if err != nil {
		return StatusMsg{}, err
	}
	return StatusMsg{ChainID: chainID, MempoolIDs: mempoolIDs, FinalizedBlock: finalized}, nil
}

func encodeMetadata(m MetadataMsg) []byte {
	buf := putUint64(nil, m.SeqNo)
	return putStringList(buf, m.MempoolIDs)
}

func decodeMetadata(buf []byte) (MetadataMsg, error) {
	seqNo, rest, err := takeUint64(buf)
	if err != nil {
		return MetadataMsg{}, err
	}
	mempoolIDs, _, err := takeStringList(rest)
	if err != nil {
		return MetadataMsg{}, err
	}
	return MetadataMsg{SeqNo: seqNo, MempoolIDs: mempoolIDs}, nil
}

func encodeHashesRequest(m HashesRequest) []byte {
	return putUint64(nil, m.Offset)
}

func decodeHashesRequest(buf []byte) (HashesRequest, error) {
	offset, _, err := takeUint64(buf)
	if err != nil {
		return HashesRequest{}, err
	}
	return HashesRequest{Offset: offset}, nil
}

func encodeHashesResponse(m HashesResponse) []byte {
	buf := putUint64(nil, m.NextOffset)
	return putHashList(buf, m.Hashes)
}

func decodeHashesResponse(buf []byte) (HashesResponse, error) {
	next, rest, err := takeUint64(buf)
	if err != nil {
		return HashesResponse{}, err
	}
	hashes, _, err := takeHashList(rest)
	if err != nil {
		return HashesResponse{}, err
	}
	return HashesResponse{NextOffset: next, Hashes: hashes}, nil
}

func encodeOpsByHashRequest(m OpsByHashRequest) []byte {
	return putHashList(nil, m.Hashes)
}

func decodeOpsByHashRequest(buf []byte) (OpsByHashRequest, error) {
	hashes, _, err := takeHashList(buf)
	if err != nil {
		return OpsByHashRequest{}, err
	}
	return OpsByHashRequest{Hashes: hashes}, nil
}

func encodeOpsByHashResponse(m OpsByHashResponse) []byte {
	var entries [][]byte
	for _, op := range m.Ops {
		w, err := userop.ToSSZ(op)
		if err != nil {
			continue // oversized op, drop silently rather than fail the whole response
		}
		enc, err := w.MarshalSSZ()
		if err != nil {
			continue
		}
		entries = append(entries, enc)
	}
	buf := putUint64(nil, uint64(len(entries)))
	for _, enc := range entries {
		buf = putUint64(buf, uint64(len(enc)))
		buf = append(buf, enc...)
	}
	return buf
}

func decodeOpsByHashResponse(buf []byte) (OpsByHashResponse, error) {
	n, rest, err := takeUint64(buf)
	if err != nil {
		return OpsByHashResponse{}, err
	}
	ops := make([]*userop.UserOperation, 0, n)
	for i := uint64(0); i < n; i++ {
		l, r, err := takeUint64(rest)
		if err != nil {
			return OpsByHashResponse{}, err
		}
		if uint64(len(r)) < l {
			return OpsByHashResponse{}, errTruncated
		}
		var w userop.SSZUserOp
		if err := w.UnmarshalSSZ(r[:l]); err != nil {
			return OpsByHashResponse{}, err
		}
		ops = append(ops, userop.FromSSZ(&w))
		rest = r[l:]
	}
	return OpsByHashResponse{Ops: ops}, nil
}
