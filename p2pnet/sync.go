package p2pnet

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
)

// KnownHashes reports which userOpHashes the local mempool already has, so
// AntiEntropySync only fetches the ones it's missing.
type KnownHashes interface {
	Has(hash common.Hash) bool
}

// RequestResponder is the subset of *Server the anti-entropy sync drives,
// kept as an interface so the sync loop can be tested without a real
// libp2p host.
type RequestResponder interface {
	RequestPooledUserOpHashes(ctx context.Context, peer libp2ppeer.ID, offset uint64) (*HashesResponse, error)
	RequestPooledUserOpsByHash(ctx context.Context, peer libp2ppeer.ID, hashes []common.Hash) (*OpsByHashResponse, error)
}

// antiEntropyPageLimit bounds how many pages AntiEntropySync will walk
// before giving up, so a misbehaving peer that never advances
// nextOffset can't wedge the sync loop forever.
const antiEntropyPageLimit = 1000

// AntiEntropySync runs the §4.7 new-peer reconciliation: page through
// peer's pooled_user_op_hashes, fetch the ones known is missing via
// pooled_user_ops_by_hash, and feed each fetched UserOperation through
// validate (the same admission pipeline gossiped ops go through, so
// dedup-by-hash and every admission invariant apply uniformly).
func AntiEntropySync(ctx context.Context, srv RequestResponder, peer libp2ppeer.ID, known KnownHashes, validate Validator) error {
	var offset uint64
	for page := 0; page < antiEntropyPageLimit; page++ {
		resp, err := srv.RequestPooledUserOpHashes(ctx, peer, offset)
		if err != nil {
			return err
		}

		var missing []common.Hash
		for _, h := range resp.Hashes {
			if !known.Has(h) {
				missing = append(missing, h)
			}
		}

		if len(missing) > 0 {
			opsResp, err := srv.RequestPooledUserOpsByHash(ctx, peer, missing)
			if err != nil {
				return err
			}
			for _, op := range opsResp.Ops {
				if _, err := validate.AddUserOperation(ctx, op); err != nil {
					log.Debug("p2pnet: anti-entropy op rejected", "peer", peer, "err", err)
				}
			}
		}

		if resp.NextOffset <= offset || len(resp.Hashes) == 0 {
			return nil
		}
		offset = resp.NextOffset
	}
	log.Warn("p2pnet: anti-entropy sync hit page limit", "peer", peer)
	return nil
}
