package registry

// tryAcquire takes a reference on an ACTIVE peer of generation gen. It fails
// for stale handles, delete-pending peers and a saturated count.
func tryAcquire(rec *peerRecord, gen uint32) bool {
	for {
		s := rec.state.Load()
		if stateGen(s) != gen || s&flagLive == 0 || s&flagDelete != 0 {
			return false
		}

		if s&refMask == refMask {
			return false
		}

		if rec.state.CompareAndSwap(s, s+1) {
			return true
		}
	}
}

type releaseResult uint8

const (
	releaseOK releaseResult = iota
	// releaseReclaim: this release dropped the last reference of a
	// delete-pending peer and the caller now owns its reclamation.
	releaseReclaim
	releaseStale
	releaseUnderflow
)

func releaseRef(rec *peerRecord, gen uint32) releaseResult {
	for {
		s := rec.state.Load()
		if stateGen(s) != gen || s&flagLive == 0 {
			return releaseStale
		}

		if stateRefs(s) == 0 {
			return releaseUnderflow
		}

		ns := s - 1
		claim := stateRefs(ns) == 0 && ns&flagDelete != 0 && ns&flagClaim == 0

		if claim {
			ns |= flagClaim
		}

		if rec.state.CompareAndSwap(s, ns) {
			if claim {
				return releaseReclaim
			}

			return releaseOK
		}
	}
}

type deleteResult uint8

const (
	deleteMarked deleteResult = iota
	// deleteReclaim: no references were outstanding and the caller owns the
	// reclamation.
	deleteReclaim
	deleteAlreadyPending
	deleteStale
)

// markDelete moves an ACTIVE peer to DELETE_PENDING.
func markDelete(rec *peerRecord, gen uint32) deleteResult {
	for {
		s := rec.state.Load()
		if stateGen(s) != gen || s&flagLive == 0 {
			return deleteStale
		}

		if s&flagDelete != 0 {
			return deleteAlreadyPending
		}

		ns := s | flagDelete
		claim := stateRefs(s) == 0

		if claim {
			ns |= flagClaim
		}

		if rec.state.CompareAndSwap(s, ns) {
			if claim {
				return deleteReclaim
			}

			return deleteMarked
		}
	}
}

// isActive reports whether gen names a live peer that is not delete-pending.
func isActive(rec *peerRecord, gen uint32) bool {
	s := rec.state.Load()

	return stateGen(s) == gen && s&flagLive != 0 && s&flagDelete == 0
}
