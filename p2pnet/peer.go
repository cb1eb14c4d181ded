package p2pnet

import (
	"sync"
	"time"

	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
)

// Scoring thresholds. A peer that delivers an invalid gossip message or
// request/response payload loses points; one at or below disconnectScore
// is dropped, and one at or below throttleScore has its requests refused.
const (
	scoreInitial         = 0
	scoreInvalidDelivery = -10
	scoreValidDelivery   = 1
	throttleScore        = -20
	disconnectScore      = -50

	requestThrottleWindow = time.Second
	requestThrottleMax    = 20
)

// peerInfo wraps a libp2p peer ID with the extra bookkeeping the overlay
// needs beyond what the transport tracks itself: negotiated metadata,
// score, and request-rate throttling. The wrapper-around-a-bare-peer-
// handle idiom (here a peer.ID instead of an embedded *eth.Peer) follows
// shibaone-bor's eth/peer.go ethPeer pattern.
type peerInfo struct {
	id libp2ppeer.ID

	mu         sync.Mutex
	score      int
	seqNo      uint64
	mempoolIDs []string
	chainID    uint64

	windowStart time.Time
	windowCount int
}

func newPeerInfo(id libp2ppeer.ID) *peerInfo {
	return &peerInfo{id: id, score: scoreInitial, windowStart: time.Now()}
}

// Score returns the peer's current score.
func (p *peerInfo) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

// RewardValidDelivery bumps the peer's score for a message that passed
// full validation.
func (p *peerInfo) RewardValidDelivery() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score += scoreValidDelivery
}

// PenalizeInvalidDelivery drops the peer's score for a gossip message or
// response that failed validation.
func (p *peerInfo) PenalizeInvalidDelivery() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.score += scoreInvalidDelivery
}

// ShouldDisconnect reports whether the peer's score has fallen far enough
// that it should be dropped.
func (p *peerInfo) ShouldDisconnect() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score <= disconnectScore
}

// Throttled reports whether the peer is either below throttleScore or has
// exceeded its request budget for the current window.
func (p *peerInfo) Throttled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.score <= throttleScore {
		return true
	}
	now := time.Now()
	if now.Sub(p.windowStart) > requestThrottleWindow {
		p.windowStart = now
		p.windowCount = 0
	}
	return p.windowCount >= requestThrottleMax
}

// RecordRequest counts one serviced request against the peer's rate
// window; call only after Throttled has already let the request through.
func (p *peerInfo) RecordRequest() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.windowCount++
}

// setMetadata records the peer's negotiated status/metadata fields.
func (p *peerInfo) setMetadata(chainID, seqNo uint64, mempoolIDs []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chainID = chainID
	p.seqNo = seqNo
	p.mempoolIDs = append([]string(nil), mempoolIDs...)
}

func (p *peerInfo) hasMempool(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.mempoolIDs {
		if m == id {
			return true
		}
	}
	return false
}

// peerSet tracks every connected peer's peerInfo, analogous to go-
// ethereum's protocol-level peer sets keyed by peer identity.
type peerSet struct {
	mu    sync.RWMutex
	peers map[libp2ppeer.ID]*peerInfo
}

func newPeerSet() *peerSet {
	return &peerSet{peers: make(map[libp2ppeer.ID]*peerInfo)}
}

func (s *peerSet) getOrCreate(id libp2ppeer.ID) *peerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[id]
	if !ok {
		p = newPeerInfo(id)
		s.peers[id] = p
	}
	return p
}

func (s *peerSet) get(id libp2ppeer.ID) (*peerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

func (s *peerSet) remove(id libp2ppeer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, id)
}

func (s *peerSet) all() []*peerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*peerInfo, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	return out
}

func (s *peerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}
