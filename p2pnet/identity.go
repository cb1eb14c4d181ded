// Package p2pnet implements the libp2p-based overlay that propagates
// admitted UserOperations between bundlers: discv5 discovery filtered by
// chain-id and mempool-id, one gossip topic per mempool-id, a
// length-prefixed snappy-framed request/response protocol, peer scoring,
// and anti-entropy sync against newly connected peers.
package p2pnet

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"net"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
)

// enrChainID and enrMempoolIDs are the custom ENR keys a node advertises
// alongside its endpoint, letting discovery filter candidates before ever
// dialing them.
const (
	enrChainID    = "silius_chainid"
	enrMempoolIDs = "silius_mempools"
)

// Identity is a node's secp256k1 key pair plus the ENR fields it
// advertises over discv5. The key is either freshly generated or derived
// deterministically from a seed (the node operator's P2P_PRIVATE_SEED),
// so a node can keep the same identity across restarts without persisting
// a keyfile.
type Identity struct {
	key        *ecdsa.PrivateKey
	chainID    uint64
	mempoolIDs []string
}

// NewIdentity returns a fresh Identity with a randomly generated node key.
func NewIdentity(chainID uint64, mempoolIDs []string) (*Identity, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return &Identity{key: key, chainID: chainID, mempoolIDs: mempoolIDs}, nil
}

// NewIdentityFromSeed derives a node key deterministically from seed,
// so an operator who sets P2P_PRIVATE_SEED keeps the same node identity
// (and therefore the same ENR/peer ID) across restarts.
func NewIdentityFromSeed(seed []byte, chainID uint64, mempoolIDs []string) (*Identity, error) {
	digest := sha256.Sum256(seed)
	key, err := crypto.ToECDSA(digest[:])
	if err != nil {
		return nil, err
	}
	return &Identity{key: key, chainID: chainID, mempoolIDs: mempoolIDs}, nil
}

// PrivateKey returns the node's secp256k1 key.
func (id *Identity) PrivateKey() *ecdsa.PrivateKey { return id.key }

// ID returns the enode ID derived from the node's public key.
func (id *Identity) ID() enode.ID {
	return enode.PubkeyToIDV4(&id.key.PublicKey)
}

// ChainID returns the chain-id this node advertises.
func (id *Identity) ChainID() uint64 { return id.chainID }

// MempoolIDs returns the mempool-ids this node advertises.
func (id *Identity) MempoolIDs() []string {
	out := make([]string, len(id.mempoolIDs))
	copy(out, id.mempoolIDs)
	return out
}

// LocalNode builds an *enode.LocalNode seeded with this identity's
// chain-id and mempool-id ENR entries, for use with discover.ListenV5.
func (id *Identity) LocalNode(db *enode.DB, ip string, udpPort, tcpPort int) *enode.LocalNode {
	ln := enode.NewLocalNode(db, id.key)
	ln.Set(enr.WithEntry(enrChainID, id.chainID))
	ln.Set(enr.WithEntry(enrMempoolIDs, id.mempoolIDs))
	ln.SetFallbackUDP(udpPort)
	ln.SetFallbackIP(parseIP(ip))
	_ = tcpPort
	return ln
}

// nodeChainID and nodeMempoolIDs read back the custom ENR entries this
// package writes, returning ok=false if a record predates them or was
// produced by an unrelated application.
func nodeChainID(n *enode.Node) (uint64, bool) {
	var v uint64
	if err := n.Record().Load(enr.WithEntry(enrChainID, &v)); err != nil {
		return 0, false
	}
	return v, true
}

func nodeMempoolIDs(n *enode.Node) ([]string, bool) {
	var v []string
	if err := n.Record().Load(enr.WithEntry(enrMempoolIDs, &v)); err != nil {
		return nil, false
	}
	return v, true
}

func parseIP(s string) net.IP {
	if s == "" {
		return net.IPv4zero
	}
	if ip := net.ParseIP(s); ip != nil {
		return ip
	}
	return net.IPv4zero
}
