package p2pnet

import (
	"context"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/p2p/discover"
	"github.com/ethereum/go-ethereum/p2p/enode"
)

// DiscoveryConfig carries the listener address and bootstrap set a
// Discovery instance needs to join the overlay.
type DiscoveryConfig struct {
	ListenAddr string // udp address, e.g. "0.0.0.0:4337"
	Bootnodes  []*enode.Node
}

// Discovery wraps a discv5 UDP listener, filtering the nodes it surfaces
// to RandomNodes/Lookup down to ones advertising this node's chain-id and
// at least one shared mempool-id. shibaone-bor's p2p/discover/v5_udp.go
// (discover.Config, discover.ListenV5, *UDPv5.RandomNodes) is the
// reference for the transport itself; the chain-id/mempool-id filter is
// this package's own addition on top of it.
type Discovery struct {
	id   *Identity
	conn *net.UDPConn
	v5   *discover.UDPv5
	ln   *enode.LocalNode

	foundCh chan *enode.Node
}

// StartDiscovery opens a discv5 listener bound to cfg.ListenAddr using id's
// key and ENR entries, and begins filling foundCh with newly discovered
// peers that match id's chain-id and share at least one mempool-id.
func StartDiscovery(ctx context.Context, id *Identity, ln *enode.LocalNode, cfg DiscoveryConfig) (*Discovery, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	v5cfg := discover.Config{
		PrivateKey: id.key,
		Bootnodes:  cfg.Bootnodes,
		Log:        log.Root(),
	}
	v5, err := discover.ListenV5(conn, ln, v5cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	d := &Discovery{id: id, conn: conn, v5: v5, ln: ln, foundCh: make(chan *enode.Node, 64)}
	go d.scanLoop(ctx)
	return d, nil
}

// Close shuts down the discv5 listener.
func (d *Discovery) Close() {
	d.v5.Close()
	d.conn.Close()
}

// Self returns this node's own record.
func (d *Discovery) Self() *enode.Node { return d.v5.Self() }

// Found yields nodes that pass the chain-id/mempool-id filter as they are
// discovered.
func (d *Discovery) Found() <-chan *enode.Node { return d.foundCh }

func (d *Discovery) scanLoop(ctx context.Context) {
	iter := d.v5.RandomNodes()
	defer iter.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !iter.Next() {
				return
			}
			n := iter.Node()
			if !d.matches(n) {
				continue
			}
			select {
			case d.foundCh <- n:
			default:
				log.Debug("p2pnet: dropping discovered node, found channel full", "id", n.ID())
			}
		}
	}
}

// matches reports whether n advertises the same chain-id as this node and
// at least one overlapping mempool-id.
func (d *Discovery) matches(n *enode.Node) bool {
	chainID, ok := nodeChainID(n)
	if !ok || chainID != d.id.chainID {
		return false
	}
	theirs, ok := nodeMempoolIDs(n)
	if !ok {
		return false
	}
	mine := make(map[string]struct{}, len(d.id.mempoolIDs))
	for _, m := range d.id.mempoolIDs {
		mine[m] = struct{}{}
	}
	for _, m := range theirs {
		if _, shared := mine[m]; shared {
			return true
		}
	}
	return false
}
