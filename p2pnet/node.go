package p2pnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	libp2phost "github.com/libp2p/go-libp2p/core/host"
	libp2pnetwork "github.com/libp2p/go-libp2p/core/network"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	multiaddr "github.com/multiformats/go-multiaddr"

	"github.com/silius-bundler/silius-go/userop"
)

// Config carries everything a Node needs to join the overlay for one set
// of mempool-ids.
type Config struct {
	Identity      *Identity
	ListenAddr    string // libp2p tcp multiaddr, e.g. "/ip4/0.0.0.0/tcp/4337"
	DiscoveryAddr string // discv5 udp address, e.g. "0.0.0.0:4337"
	Bootnodes     []*enode.Node
}

// Node owns the node's whole P2P surface: discv5 discovery, the libp2p
// host, gossip topics (one per mempool-id), the request/response server,
// and anti-entropy sync, which runs against a peer when SyncNewPeer is
// called for it; a new connection alone does not start a sync.
type Node struct {
	cfg    Config
	host   libp2phost.Host
	disc   *Discovery
	peers  *peerSet
	gossip *GossipRouter
	rr     *Server
	onOp   func(*userop.UserOperation)

	mu    sync.Mutex
	known map[common.Hash]struct{}
}

// hashSet adapts Node's own known-hash bookkeeping to the KnownHashes
// interface AntiEntropySync needs.
type hashSet struct {
	n *Node
}

func (h hashSet) Has(hash common.Hash) bool {
	h.n.mu.Lock()
	defer h.n.mu.Unlock()
	_, ok := h.n.known[hash]
	return ok
}

// MarkKnown records hash as already present in the local mempool, so
// future anti-entropy rounds don't re-fetch it.
func (n *Node) MarkKnown(hash common.Hash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.known[hash] = struct{}{}
}

// NewNode constructs the libp2p host and discv5 listener and wires the
// gossip/request-response/anti-entropy surfaces together, but does not yet
// join any gossip topic -- call JoinMempool for each mempool-id the node
// serves.
func NewNode(ctx context.Context, cfg Config, handlers Handlers, onOp func(*userop.UserOperation)) (*Node, error) {
	priv, err := libp2pcrypto.UnmarshalSecp256k1PrivateKey(gethcrypto.FromECDSA(cfg.Identity.PrivateKey()))
	if err != nil {
		return nil, fmt.Errorf("p2pnet: converting node key for libp2p: %w", err)
	}
	listenAddr, err := multiaddr.NewMultiaddr(cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	h, err := libp2p.New(libp2p.Identity(priv), libp2p.ListenAddrs(listenAddr))
	if err != nil {
		return nil, err
	}

	peers := newPeerSet()
	gossip, err := NewGossipRouter(ctx, h, peers)
	if err != nil {
		h.Close()
		return nil, err
	}
	rr := NewServer(h, handlers, peers)

	n := &Node{cfg: cfg, host: h, peers: peers, gossip: gossip, rr: rr, onOp: onOp, known: make(map[common.Hash]struct{})}

	disc, err := StartDiscovery(ctx, cfg.Identity, cfg.Identity.LocalNode(enode.OpenDB(""), "0.0.0.0", 0, 0), DiscoveryConfig{
		ListenAddr: cfg.DiscoveryAddr,
		Bootnodes:  cfg.Bootnodes,
	})
	if err != nil {
		h.Close()
		return nil, err
	}
	n.disc = disc

	h.Network().Notify(&connectNotifiee{n: n})
	return n, nil
}

// Host returns the underlying libp2p host, for callers that need to dial
// or inspect connections directly.
func (n *Node) Host() libp2phost.Host { return n.host }

// Discovered yields nodes discv5 has found that match this node's
// chain-id and mempool-id filter; callers dial the ones they want to
// connect to over libp2p.
func (n *Node) Discovered() <-chan *enode.Node { return n.disc.Found() }

// PeerCount returns the number of peers currently tracked for scoring.
func (n *Node) PeerCount() int { return n.peers.len() }

// JoinMempool subscribes the node to mempoolID's gossip topic, validating
// incoming messages through validate before they are allowed to
// propagate or reach onOp.
func (n *Node) JoinMempool(ctx context.Context, mempoolID string, entryPoint common.Address, validate Validator) error {
	return n.gossip.Join(ctx, mempoolID, entryPoint, validate, n.onOp)
}

// Publish gossips op to mempoolID's topic.
func (n *Node) Publish(ctx context.Context, mempoolID string, entryPoint common.Address, op *userop.UserOperation) error {
	return n.gossip.Publish(ctx, mempoolID, entryPoint, op)
}

// SyncNewPeer runs AntiEntropySync against peer using this node's own
// known-hash set and validator.
func (n *Node) SyncNewPeer(ctx context.Context, peer libp2ppeer.ID, validate Validator) {
	if err := AntiEntropySync(ctx, n.rr, peer, hashSet{n: n}, validate); err != nil {
		log.Debug("p2pnet: anti-entropy sync failed", "peer", peer, "err", err)
	}
}

// DisconnectBadPeers closes connections to every peer whose score has
// fallen to or below the disconnect threshold.
func (n *Node) DisconnectBadPeers() {
	for _, p := range n.peers.all() {
		if p.ShouldDisconnect() {
			log.Info("p2pnet: disconnecting low-score peer", "peer", p.id, "score", p.Score())
			_ = n.host.Network().ClosePeer(p.id)
			n.peers.remove(p.id)
		}
	}
}

// Close shuts down the libp2p host and discv5 listener.
func (n *Node) Close() error {
	if n.disc != nil {
		n.disc.Close()
	}
	return n.host.Close()
}

// connectNotifiee registers every newly connected peer with the peerSet
// so its score starts at the default and is visible to scoring/throttling
// immediately, the way a protocol manager registers a peer the moment its
// connection handshakes (shibaone-bor's eth/peer.go wrapper is the
// reference for the registration idiom, generalized from an RLPx peer to
// a libp2p one here).
type connectNotifiee struct {
	libp2pnetwork.NoopNotifiee
	n *Node
}

func (c *connectNotifiee) Connected(_ libp2pnetwork.Network, conn libp2pnetwork.Conn) {
	c.n.peers.getOrCreate(conn.RemotePeer())
}

func (c *connectNotifiee) Disconnected(_ libp2pnetwork.Network, conn libp2pnetwork.Conn) {
	c.n.peers.remove(conn.RemotePeer())
}
