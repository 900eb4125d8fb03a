package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/carverauto/astreg/pkg/models"
)

// PeerRef is one counted reference on a peer. The peer's storage stays valid
// until Release; releasing twice is an invariant violation.
type PeerRef struct {
	reg      *Registry
	h        PeerHandle
	rec      *peerRecord
	released atomic.Bool
}

func (p *PeerRef) Handle() PeerHandle { return p.h }
func (p *PeerRef) ID() models.PeerID { return p.rec.id }
func (p *PeerRef) MAC() models.MACAddress { return p.rec.mac }
func (p *PeerRef) VdevID() models.VdevID { return p.rec.vdev }
func (p *PeerRef) PdevID() models.PdevID { return p.rec.pdev }
func (p *PeerRef) Info() PeerInfo { return p.rec.info() }
func (p *PeerRef) RefCount() int { return stateRefs(p.rec.state.Load()) }
func (p *PeerRef) InactiveSeconds() uint32 { return p.rec.inactive.Load() }
func (p *PeerRef) DeletePending() bool { return p.rec.state.Load()&flagDelete != 0 }

// Security returns the cipher state for the unicast or the group direction.
func (p *PeerRef) Security(unicast bool) SecurityInfo {
	p.rec.secMu.Lock()
	defer p.rec.secMu.Unlock()

	return p.rec.sec[secIndex(unicast)]
}

// MarkActive records datapath activity on the peer.
func (p *PeerRef) MarkActive() {
	p.rec.lastActive.Store(p.reg.now().UnixNano())
	p.rec.inactive.Store(0)
}

func (p *PeerRef) Release() {
	if !p.released.CompareAndSwap(false, true) {
		_ = p.reg.violation(fmt.Errorf("%w: double release of peer %d (%s)", ErrInvariantViolation, p.rec.id, p.h))
		return
	}

	p.reg.releaseHandle(p.h)
}

// ASTRef is a copy of an AST entry together with a reference on the peer that
// owned it at lookup time. Release drops the peer reference.
type ASTRef struct {
	info     ASTInfo
	peer     *PeerRef
	released atomic.Bool
}

func (a *ASTRef) Info() ASTInfo { return a.info }
func (a *ASTRef) Peer() *PeerRef { return a.peer }
func (a *ASTRef) Type() models.ASTType { return a.info.Type }
func (a *ASTRef) NextHop() bool { return a.info.NextHop }
func (a *ASTRef) PdevID() models.PdevID { return a.info.PdevID }
func (a *ASTRef) PeerID() models.PeerID { return a.info.PeerID }
func (a *ASTRef) MAC() models.MACAddress { return a.info.MAC }

func (a *ASTRef) Release() {
	if !a.released.CompareAndSwap(false, true) {
		_ = a.peer.reg.violation(fmt.Errorf("%w: double release of AST %s", ErrInvariantViolation, a.info.MAC))
		return
	}

	a.peer.Release()
}

// Acquire takes a reference through a handle kept from an earlier lookup. It
// fails once the peer is delete-pending or its slot has been reused.
func (r *Registry) Acquire(h PeerHandle) (*PeerRef, bool) {
	rec := r.pool.peerAt(h)
	if rec == nil || !tryAcquire(rec, h.gen) {
		return nil, false
	}

	return &PeerRef{reg: r, h: h, rec: rec}, true
}

func (r *Registry) releaseHandle(h PeerHandle) {
	rec := r.pool.peerAt(h)
	if rec == nil {
		_ = r.violation(fmt.Errorf("%w: release of out-of-range %s", ErrInvariantViolation, h))
		return
	}

	switch releaseRef(rec, h.gen) {
	case releaseOK:
	case releaseReclaim:
		r.reclaim(h, rec)
	case releaseStale:
		_ = r.violation(fmt.Errorf("%w: release of stale %s", ErrInvariantViolation, h))
	case releaseUnderflow:
		_ = r.violation(fmt.Errorf("%w: release of %s with no outstanding references", ErrInvariantViolation, h))
	}
}

func secIndex(unicast bool) int {
	if unicast {
		return 0
	}

	return 1
}
