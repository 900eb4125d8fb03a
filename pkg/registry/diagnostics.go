package registry

import (
	"sort"
	"time"

	"github.com/carverauto/astreg/pkg/models"
)

// Stats snapshots occupancy. With includePeers every indexed peer, including
// delete-pending ones, is listed with its reference count.
func (r *Registry) Stats(includePeers bool) models.RegistryStats {
	now := r.now()

	stats := models.RegistryStats{
		GeneratedAt:  now.UTC(),
		PeerCapacity: r.pool.PeerCapacity(),
		PeersInUse:   r.pool.PeersInUse(),
		ASTCapacity:  r.pool.ASTCapacity(),
		ASTInUse:     r.pool.ASTInUse(),
		Scopes:       make([]models.ScopeStats, 0, len(r.scopes)),
	}

	for _, sc := range r.scopes {
		sc.mu.RLock()

		ss := models.ScopeStats{
			PdevID:     sc.id,
			ASTEntries: sc.astEntries(),
			ASTByType:  make(map[string]int),
		}

		for _, chain := range sc.astByMAC {
			for _, h := range chain {
				if rec, ok := r.pool.ast(h); ok {
					ss.ASTByType[rec.typ.String()]++
				}
			}
		}

		stats.ASTFreePending += sc.freePendingCount()

		r.forEachIndexedPeerLocked(sc, func(rec *peerRecord, s uint64) {
			if s&flagDelete != 0 {
				ss.DeletePendingPeers++
			} else {
				ss.ActivePeers++
			}

			if includePeers {
				stats.Peers = append(stats.Peers, peerStats(rec, s, now))
			}
		})

		sc.mu.RUnlock()

		stats.Scopes = append(stats.Scopes, ss)
	}

	sortPeerStats(stats.Peers)

	return stats
}

// StuckPeers lists delete-pending peers that have held references for longer
// than threshold.
func (r *Registry) StuckPeers(threshold time.Duration) []models.PeerStats {
	now := r.now()

	var stuck []models.PeerStats

	for _, sc := range r.scopes {
		sc.mu.RLock()

		r.forEachIndexedPeerLocked(sc, func(rec *peerRecord, s uint64) {
			if s&flagDelete == 0 || stateRefs(s) == 0 {
				return
			}

			if at := rec.deleteAt.Load(); at != 0 && now.Sub(time.Unix(0, at)) >= threshold {
				stuck = append(stuck, peerStats(rec, s, now))
			}
		})

		sc.mu.RUnlock()
	}

	sortPeerStats(stuck)

	return stuck
}

func (r *Registry) forEachIndexedPeerLocked(sc *scope, fn func(rec *peerRecord, state uint64)) {
	for _, chain := range sc.peersByMAC {
		for _, h := range chain {
			rec, ok := r.pool.livePeer(h)
			if !ok {
				continue
			}

			fn(rec, rec.state.Load())
		}
	}
}

func peerStats(rec *peerRecord, s uint64, now time.Time) models.PeerStats {
	ps := models.PeerStats{
		PeerID:          rec.id,
		MAC:             rec.mac,
		VdevID:          rec.vdev,
		PdevID:          rec.pdev,
		RefCount:        stateRefs(s),
		DeletePending:   s&flagDelete != 0,
		ASTCount:        len(rec.asts),
		MappedAt:        rec.mappedAt.UTC(),
		LastActivity:    time.Unix(0, rec.lastActive.Load()).UTC(),
		InactiveSeconds: rec.inactive.Load(),
	}

	if at := rec.deleteAt.Load(); ps.DeletePending && at != 0 {
		ps.PendingForMs = now.Sub(time.Unix(0, at)).Milliseconds()
	}

	return ps
}

func sortPeerStats(peers []models.PeerStats) {
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].PdevID != peers[j].PdevID {
			return peers[i].PdevID < peers[j].PdevID
		}

		if peers[i].PeerID != peers[j].PeerID {
			return peers[i].PeerID < peers[j].PeerID
		}

		return peers[i].MappedAt.Before(peers[j].MappedAt)
	})
}
