package p2pnet

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	libp2pprotocol "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/golang/snappy"

	"github.com/silius-bundler/silius-go/userop"
)

// Protocol IDs for the four request/response methods §4.7 names. Every
// stream carries a single request followed by a single response, each
// framed as a uvarint length prefix over the snappy-compressed payload --
// the same length-prefixed-snappy shape the consensus-layer req/resp
// protocols use, adapted here to this package's own hand-rolled message
// encodings rather than a generated SSZ binding.
const (
	protocolStatus          = libp2pprotocol.ID("/silius/req/status/1/ssz_snappy")
	protocolPooledOpHashes  = libp2pprotocol.ID("/silius/req/pooled_user_op_hashes/1/ssz_snappy")
	protocolPooledOpsByHash = libp2pprotocol.ID("/silius/req/pooled_user_ops_by_hash/1/ssz_snappy")
	protocolMetadata        = libp2pprotocol.ID("/silius/req/metadata/1/ssz_snappy")

	maxFrameLen = 10 * 1024 * 1024
)

// StatusMsg is exchanged on first connection; a chain-id mismatch ends the
// handshake with a disconnect.
type StatusMsg struct {
	ChainID        uint64
	MempoolIDs     []string
	FinalizedBlock uint64
}

// MetadataMsg answers the bare metadata() call: the peer's gossip
// sequence number and the mempool-ids it currently serves.
type MetadataMsg struct {
	SeqNo      uint64
	MempoolIDs []string
}

// HashesRequest is pooled_user_op_hashes(offset).
type HashesRequest struct {
	Offset uint64
}

// HashesResponse pages through a peer's local mempool by hash.
type HashesResponse struct {
	NextOffset uint64
	Hashes     []common.Hash
}

// OpsByHashRequest is pooled_user_ops_by_hash([hash]).
type OpsByHashRequest struct {
	Hashes []common.Hash
}

// OpsByHashResponse carries the full UserOperations a peer had for the
// requested hashes (a requested hash the peer no longer has is simply
// omitted, not erred).
type OpsByHashResponse struct {
	Ops []*userop.UserOperation
}

// Handlers supplies the local answers to every inbound request; Server
// wires these to the protocol's stream handlers.
type Handlers struct {
	Status          func() StatusMsg
	Metadata        func() MetadataMsg
	PooledOpHashes  func(offset uint64) HashesResponse
	PooledOpsByHash func(hashes []common.Hash) OpsByHashResponse
}

// Server registers the four request/response protocol handlers on a
// libp2p host and exposes client methods to call them on a peer, scoring
// and throttling callers via the shared peerSet.
type Server struct {
	host     libp2phost.Host
	handlers Handlers
	peers    *peerSet
}

// NewServer registers h's stream handlers for every §4.7 request/response
// method.
func NewServer(h libp2phost.Host, handlers Handlers, peers *peerSet) *Server {
	s := &Server{host: h, handlers: handlers, peers: peers}
	h.SetStreamHandler(protocolStatus, s.handleStatus)
	h.SetStreamHandler(protocolMetadata, s.handleMetadata)
	h.SetStreamHandler(protocolPooledOpHashes, s.handlePooledOpHashes)
	h.SetStreamHandler(protocolPooledOpsByHash, s.handlePooledOpsByHash)
	return s
}

func (s *Server) throttledOrRecord(id libp2ppeer.ID) bool {
	pi := s.peers.getOrCreate(id)
	if pi.Throttled() {
		return true
	}
	pi.RecordRequest()
	return false
}

func (s *Server) handleStatus(stream libp2pnetwork.Stream) {
	defer stream.Close()
	if s.throttledOrRecord(stream.Conn().RemotePeer()) {
		return
	}
	var req StatusMsg
	if err := readFramed(stream, &req, decodeStatus); err != nil {
		log.Debug("p2pnet: status read failed", "err", err)
		return
	}
	resp := s.handlers.Status()
	if err := writeFramed(stream, encodeStatus(resp)); err != nil {
		log.Debug("p2pnet: status write failed", "err", err)
		return
	}
	if req.ChainID != resp.ChainID {
		log.Warn("p2pnet: disconnecting peer on chain-id mismatch", "peer", stream.Conn().RemotePeer(), "theirs", req.ChainID, "ours", resp.ChainID)
		_ = stream.Conn().Close()
	}
}

func (s *Server) handleMetadata(stream libp2pnetwork.Stream) {
	defer stream.Close()
	if s.throttledOrRecord(stream.Conn().RemotePeer()) {
		return
	}
	resp := s.handlers.Metadata()
	if err := writeFramed(stream, encodeMetadata(resp)); err != nil {
		log.Debug("p2pnet: metadata write failed", "err", err)
	}
}

func (s *Server) handlePooledOpHashes(stream libp2pnetwork.Stream) {
	defer stream.Close()
	if s.throttledOrRecord(stream.Conn().RemotePeer()) {
		return
	}
	var req HashesRequest
	if err := readFramed(stream, &req, decodeHashesRequest); err != nil {
		log.Debug("p2pnet: pooled_user_op_hashes read failed", "err", err)
		return
	}
	resp := s.handlers.PooledOpHashes(req.Offset)
	if err := writeFramed(stream, encodeHashesResponse(resp)); err != nil {
		log.Debug("p2pnet: pooled_user_op_hashes write failed", "err", err)
	}
}

func (s *Server) handlePooledOpsByHash(stream libp2pnetwork.Stream) {
	defer stream.Close()
	if s.throttledOrRecord(stream.Conn().RemotePeer()) {
		return
	}
	var req OpsByHashRequest
	if err := readFramed(stream, &req, decodeOpsByHashRequest); err != nil {
		log.Debug("p2pnet: pooled_user_ops_by_hash read failed", "err", err)
		return
	}
	resp := s.handlers.PooledOpsByHash(req.Hashes)
	if err := writeFramed(stream, encodeOpsByHashResponse(resp)); err != nil {
		log.Debug("p2pnet: pooled_user_ops_by_hash write failed", "err", err)
	}
}

// RequestStatus opens a status stream to peer and exchanges ours for
// theirs.
func (s *Server) RequestStatus(ctx context.Context, peer libp2ppeer.ID, ours StatusMsg) (*StatusMsg, error) {
	stream, err := s.host.NewStream(ctx, peer, protocolStatus)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := writeFramed(stream, encodeStatus(ours)); err != nil {
		return nil, err
	}
	var resp StatusMsg
	if err := readFramed(stream, &resp, decodeStatus); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestMetadata calls a peer's bare metadata() method.
func (s *Server) RequestMetadata(ctx context.Context, peer libp2ppeer.ID) (*MetadataMsg, error) {
	stream, err := s.host.NewStream(ctx, peer, protocolMetadata)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var resp MetadataMsg
	if err := readFramed(stream, &resp, decodeMetadata); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestPooledUserOpHashes requests one page of a peer's mempool, for
// anti-entropy sync on new-peer connect.
func (s *Server) RequestPooledUserOpHashes(ctx context.Context, peer libp2ppeer.ID, offset uint64) (*HashesResponse, error) {
	stream, err := s.host.NewStream(ctx, peer, protocolPooledOpHashes)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := writeFramed(stream, encodeHashesRequest(HashesRequest{Offset: offset})); err != nil {
		return nil, err
	}
	var resp HashesResponse
	if err := readFramed(stream, &resp, decodeHashesResponse); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestPooledUserOpsByHash fetches the full UserOperations for hashes
// this node doesn't yet have, the second anti-entropy round-trip.
func (s *Server) RequestPooledUserOpsByHash(ctx context.Context, peer libp2ppeer.ID, hashes []common.Hash) (*OpsByHashResponse, error) {
	stream, err := s.host.NewStream(ctx, peer, protocolPooledOpsByHash)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if err := writeFramed(stream, encodeOpsByHashRequest(OpsByHashRequest{Hashes: hashes})); err != nil {
		return nil, err
	}
	var resp OpsByHashResponse
	if err := readFramed(stream, &resp, decodeOpsByHashResponse); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- framing ---

// writeFramed writes a uvarint length prefix over payload's snappy
// encoding, then the compressed bytes.
func writeFramed(w io.Writer, payload []byte) error {
	compressed := snappy.Encode(nil, payload)
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(compressed)))
	if _, err := w.Write(lenBuf[:n]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}

// readFramed reads one length-prefixed snappy frame and decodes it with
// decode.
func readFramed[T any](r io.Reader, out *T, decode func([]byte) (T, error)) error {
	br := bufio.NewReader(r)
	length, err := binary.ReadUvarint(br)
	if err != nil {
		return err
	}
	if length > maxFrameLen {
		return errFrameTooLarge
	}
	compressed := make([]byte, length)
	if _, err := io.ReadFull(br, compressed); err != nil {
		return err
	}
	payload, err := snappy.Decode(nil, compressed)
	if err != nil {
		return err
	}
	decoded, err := decode(payload)
	if err != nil {
		return err
	}
	*out = decoded
	return nil
}

var errFrameTooLarge = errors.New("p2pnet: request/response frame exceeds maximum length")
