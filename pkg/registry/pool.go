package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/astreg/pkg/models"
)

// Peer state word: generation in the high 32 bits, then the delete,
// reclaim-claimed and live flags, then a 29-bit reference count.
const (
	genShift = 32

	refMask    uint64 = 1<<29 - 1
	flagLive   uint64 = 1 << 29
	flagClaim  uint64 = 1 << 30
	flagDelete uint64 = 1 << 31
)

func stateGen(s uint64) uint32 { return uint32(s >> genShift) }

func stateRefs(s uint64) int { return int(s & refMask) }

// nextGen skips zero so the zero handle never matches a slot.
func nextGen(g uint32) uint32 {
	g++
	if g == 0 {
		g = 1
	}

	return g
}

// PeerHandle names a peer slot at one generation. A handle outlives its peer
// harmlessly: every dereference checks the generation first.
type PeerHandle struct {
	idx uint32
	gen uint32
}

func (h PeerHandle) IsZero() bool { return h.gen == 0 }

func (h PeerHandle) String() string { return fmt.Sprintf("peer#%d/%d", h.idx, h.gen) }

// ASTHandle names an AST slot at one generation.
type ASTHandle struct {
	idx uint32
	gen uint32
}

func (h ASTHandle) IsZero() bool { return h.gen == 0 }

func (h ASTHandle) String() string { return fmt.Sprintf("ast#%d/%d", h.idx, h.gen) }

type peerRecord struct {
	state atomic.Uint64

	// Identity is written before the handle is published and is immutable
	// until reclaim.
	id       models.PeerID
	mac      models.MACAddress
	vdev     models.VdevID
	pdev     models.PdevID
	mappedAt time.Time

	fwIndex    atomic.Uint32 // hw peer id << 16 | ast hash
	deleteAt   atomic.Int64
	lastActive atomic.Int64
	inactive   atomic.Uint32

	// Guarded by the owning scope lock.
	asts []ASTHandle

	secMu sync.Mutex
	sec   [2]SecurityInfo
}

type astRecord struct {
	gen atomic.Uint32

	// Guarded by the owning scope lock.
	live        bool
	mac         models.MACAddress
	pdev        models.PdevID
	vdev        models.VdevID
	typ         models.ASTType
	peer        PeerHandle
	peerID      models.PeerID
	astHash     uint16
	mapped      bool
	nextHop     bool
	freePending bool
	createdAt   time.Time
}

// Pool owns fixed-capacity peer and AST storage. Slots are recycled LIFO and
// every recycle bumps the slot generation.
type Pool struct {
	peers []peerRecord
	asts  []astRecord

	peerMu   sync.Mutex
	peerFree []uint32

	astMu   sync.Mutex
	astFree []uint32

	now func() time.Time
}

func NewPool(maxPeers, maxAST int) *Pool {
	p := &Pool{
		peers:    make([]peerRecord, maxPeers),
		asts:     make([]astRecord, maxAST),
		peerFree: make([]uint32, 0, maxPeers),
		astFree:  make([]uint32, 0, maxAST),
		now:      time.Now,
	}

	for i := maxPeers - 1; i >= 0; i-- {
		p.peers[i].state.Store(uint64(1) << genShift)
		p.peers[i].id = models.InvalidPeerID
		p.peerFree = append(p.peerFree, uint32(i))
	}

	for i := maxAST - 1; i >= 0; i-- {
		p.asts[i].gen.Store(1)
		p.astFree = append(p.astFree, uint32(i))
	}

	return p
}

func (p *Pool) PeerCapacity() int { return len(p.peers) }

func (p *Pool) ASTCapacity() int { return len(p.asts) }

func (p *Pool) PeersInUse() int {
	p.peerMu.Lock()
	defer p.peerMu.Unlock()

	return len(p.peers) - len(p.peerFree)
}

func (p *Pool) ASTInUse() int {
	p.astMu.Lock()
	defer p.astMu.Unlock()

	return len(p.asts) - len(p.astFree)
}

// AllocatePeer takes a free slot and initializes it ACTIVE with no references.
// The handle is not reachable from any index until the caller publishes it.
func (p *Pool) AllocatePeer(id models.PeerID, mac models.MACAddress, vdev models.VdevID, pdev models.PdevID) (PeerHandle, error) {
	p.peerMu.Lock()

	n := len(p.peerFree)
	if n == 0 {
		p.peerMu.Unlock()

		return PeerHandle{}, fmt.Errorf("%w: peer pool full (%d)", ErrCapacityExceeded, len(p.peers))
	}

	idx := p.peerFree[n-1]
	p.peerFree = p.peerFree[:n-1]
	p.peerMu.Unlock()

	rec := &p.peers[idx]
	gen := stateGen(rec.state.Load())
	now := p.now()

	rec.id = id
	rec.mac = mac
	rec.vdev = vdev
	rec.pdev = pdev
	rec.mappedAt = now
	rec.fwIndex.Store(0)
	rec.deleteAt.Store(0)
	rec.lastActive.Store(now.UnixNano())
	rec.inactive.Store(0)
	rec.asts = nil
	rec.sec = [2]SecurityInfo{}

	rec.state.Store(uint64(gen)<<genShift | flagLive)

	return PeerHandle{idx: idx, gen: gen}, nil
}

// ReclaimPeer returns a DELETE_PENDING peer with no references to the free
// list and bumps its generation. Stale handles and outstanding references are
// invariant violations.
func (p *Pool) ReclaimPeer(h PeerHandle) error {
	if int(h.idx) >= len(p.peers) {
		return fmt.Errorf("%w: reclaim of out-of-range %s", ErrInvariantViolation, h)
	}

	rec := &p.peers[h.idx]
	s := rec.state.Load()

	switch {
	case stateGen(s) != h.gen || s&flagLive == 0:
		return fmt.Errorf("%w: reclaim of stale %s", ErrInvariantViolation, h)
	case s&flagDelete == 0:
		return fmt.Errorf("%w: reclaim of active peer %d", ErrInvariantViolation, rec.id)
	case stateRefs(s) != 0:
		return fmt.Errorf("%w: reclaim of peer %d with %d outstanding references", ErrInvariantViolation, rec.id, stateRefs(s))
	}

	if !rec.state.CompareAndSwap(s, uint64(nextGen(h.gen))<<genShift) {
		return fmt.Errorf("%w: peer %d state changed during reclaim", ErrInvariantViolation, rec.id)
	}

	rec.id = models.InvalidPeerID
	rec.asts = nil

	p.peerMu.Lock()
	p.peerFree = append(p.peerFree, h.idx)
	p.peerMu.Unlock()

	return nil
}

// AllocateAST takes a free AST slot bound to peer. The entry inherits the
// peer's vdev and pdev. The caller holds the peer's scope lock.
func (p *Pool) AllocateAST(mac models.MACAddress, peer PeerHandle, typ models.ASTType) (ASTHandle, error) {
	prec, ok := p.livePeer(peer)
	if !ok {
		return ASTHandle{}, fmt.Errorf("%w: %s", ErrNotFound, peer)
	}

	p.astMu.Lock()

	n := len(p.astFree)
	if n == 0 {
		p.astMu.Unlock()

		return ASTHandle{}, fmt.Errorf("%w: AST pool full (%d)", ErrCapacityExceeded, len(p.asts))
	}

	idx := p.astFree[n-1]
	p.astFree = p.astFree[:n-1]
	p.astMu.Unlock()

	rec := &p.asts[idx]
	rec.live = true
	rec.mac = mac
	rec.pdev = prec.pdev
	rec.vdev = prec.vdev
	rec.typ = typ
	rec.peer = peer
	rec.peerID = prec.id
	rec.astHash = 0
	rec.mapped = false
	rec.nextHop = false
	rec.freePending = false
	rec.createdAt = p.now()

	return ASTHandle{idx: idx, gen: rec.gen.Load()}, nil
}

// ReclaimAST releases an AST slot. The caller has already unlinked it from
// every index.
func (p *Pool) ReclaimAST(h ASTHandle) error {
	rec, ok := p.ast(h)
	if !ok {
		return fmt.Errorf("%w: reclaim of stale %s", ErrInvariantViolation, h)
	}

	rec.live = false
	rec.peer = PeerHandle{}
	rec.peerID = models.InvalidPeerID
	rec.gen.Store(nextGen(h.gen))

	p.astMu.Lock()
	p.astFree = append(p.astFree, h.idx)
	p.astMu.Unlock()

	return nil
}

func (p *Pool) peerAt(h PeerHandle) *peerRecord {
	if int(h.idx) >= len(p.peers) {
		return nil
	}

	return &p.peers[h.idx]
}

// livePeer returns the record when h still names a live slot. Delete-pending
// peers are live until reclaimed.
func (p *Pool) livePeer(h PeerHandle) (*peerRecord, bool) {
	rec := p.peerAt(h)
	if rec == nil {
		return nil, false
	}

	s := rec.state.Load()
	if stateGen(s) != h.gen || s&flagLive == 0 {
		return nil, false
	}

	return rec, true
}

func (p *Pool) ast(h ASTHandle) (*astRecord, bool) {
	if int(h.idx) >= len(p.asts) {
		return nil, false
	}

	rec := &p.asts[h.idx]
	if rec.gen.Load() != h.gen || !rec.live {
		return nil, false
	}

	return rec, true
}
