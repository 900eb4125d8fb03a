package registry

import (
	"fmt"

	"github.com/carverauto/astreg/pkg/models"
)

// FindByID returns a reference on the ACTIVE peer bound to id.
func (r *Registry) FindByID(id models.PeerID) (*PeerRef, bool) {
	h, ok := r.ids.load(id)
	if !ok {
		return nil, false
	}

	return r.Acquire(h)
}

// FindByMAC returns a reference on the ACTIVE peer with mac on pdev.
func (r *Registry) FindByMAC(mac models.MACAddress, pdev models.PdevID) (*PeerRef, bool) {
	sc, err := r.scope(pdev)
	if err != nil {
		return nil, false
	}

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	for _, h := range sc.peersByMAC[mac] {
		if ref, ok := r.Acquire(h); ok {
			return ref, true
		}
	}

	return nil, false
}

// FindAST returns the first entry for mac on pdev whose owner is ACTIVE.
func (r *Registry) FindAST(mac models.MACAddress, pdev models.PdevID) (*ASTRef, bool) {
	sc, err := r.scope(pdev)
	if err != nil {
		return nil, false
	}

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	for _, h := range sc.astByMAC[mac] {
		if ref, ok := r.acquireASTLocked(h); ok {
			return ref, true
		}
	}

	return nil, false
}

// FindASTByVdev returns the entry for mac on one interface.
func (r *Registry) FindASTByVdev(mac models.MACAddress, vdev models.VdevID) (*ASTRef, bool) {
	vd, err := r.lookupVdev(vdev)
	if err != nil {
		return nil, false
	}

	sc := r.scopes[vd.pdev]

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	h, _, ok := sc.findAST(r.pool, vdev, mac)
	if !ok {
		return nil, false
	}

	return r.acquireASTLocked(h)
}

// FindASTSoc searches every pdev in order.
func (r *Registry) FindASTSoc(mac models.MACAddress) (*ASTRef, bool) {
	for i := range r.scopes {
		if ref, ok := r.FindAST(mac, models.PdevID(i)); ok {
			return ref, true
		}
	}

	return nil, false
}

func (r *Registry) acquireASTLocked(h ASTHandle) (*ASTRef, bool) {
	rec, ok := r.pool.ast(h)
	if !ok {
		return nil, false
	}

	peer, ok := r.Acquire(rec.peer)
	if !ok {
		return nil, false
	}

	return &ASTRef{info: rec.info(), peer: peer}, true
}

// PeerASTList returns the peer's entries in the order they were added.
func (r *Registry) PeerASTList(ref *PeerRef) []ASTInfo {
	sc := r.scopes[ref.PdevID()]

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	out := make([]ASTInfo, 0, len(ref.rec.asts))

	for _, h := range ref.rec.asts {
		if rec, ok := r.pool.ast(h); ok {
			out = append(out, rec.info())
		}
	}

	return out
}

// PeerASTFind looks mac up in the peer's own list.
func (r *Registry) PeerASTFind(ref *PeerRef, mac models.MACAddress) (ASTInfo, bool) {
	sc := r.scopes[ref.PdevID()]

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	for _, h := range ref.rec.asts {
		if rec, ok := r.pool.ast(h); ok && rec.mac == mac {
			return rec.info(), true
		}
	}

	return ASTInfo{}, false
}

// Exists reports whether id is bound to an ACTIVE peer without taking a
// reference. The answer may be stale by the time it is used.
func (r *Registry) Exists(id models.PeerID) bool {
	h, ok := r.ids.load(id)
	if !ok {
		return false
	}

	rec := r.pool.peerAt(h)

	return rec != nil && isActive(rec, h.gen)
}

// PeerMACByID copies the MAC of the ACTIVE peer bound to id.
func (r *Registry) PeerMACByID(id models.PeerID) (models.MACAddress, bool) {
	ref, ok := r.FindByID(id)
	if !ok {
		return models.MACAddress{}, false
	}
	defer ref.Release()

	return ref.MAC(), true
}

// ScopeView reads one pdev's indices without taking references. It is only
// valid inside the LockScope callback.
type ScopeView struct {
	reg *Registry
	sc  *scope
}

// LockScope runs fn with pdev's read lock held. fn must not call back into
// the registry or release references.
func (r *Registry) LockScope(pdev models.PdevID, fn func(ScopeView)) error {
	sc, err := r.scope(pdev)
	if err != nil {
		return err
	}

	sc.mu.RLock()
	defer sc.mu.RUnlock()

	fn(ScopeView{reg: r, sc: sc})

	return nil
}

func (v ScopeView) PdevID() models.PdevID { return v.sc.id }

// PeerByMAC returns the ACTIVE peer with mac.
func (v ScopeView) PeerByMAC(mac models.MACAddress) (PeerInfo, bool) {
	for _, h := range v.sc.peersByMAC[mac] {
		if rec := v.reg.pool.peerAt(h); rec != nil && isActive(rec, h.gen) {
			return rec.info(), true
		}
	}

	return PeerInfo{}, false
}

// AST returns the first entry for mac regardless of its owner's state.
func (v ScopeView) AST(mac models.MACAddress) (ASTInfo, bool) {
	for _, h := range v.sc.astByMAC[mac] {
		if rec, ok := v.reg.pool.ast(h); ok {
			return rec.info(), true
		}
	}

	return ASTInfo{}, false
}

func (v ScopeView) ASTByVdev(vdev models.VdevID, mac models.MACAddress) (ASTInfo, bool) {
	_, rec, ok := v.sc.findAST(v.reg.pool, vdev, mac)
	if !ok {
		return ASTInfo{}, false
	}

	return rec.info(), true
}

// ForEachPeer visits every indexed peer, delete-pending ones included.
func (v ScopeView) ForEachPeer(fn func(info PeerInfo, deletePending bool)) {
	for _, chain := range v.sc.peersByMAC {
		for _, h := range chain {
			rec, ok := v.reg.pool.livePeer(h)
			if !ok {
				continue
			}

			fn(rec.info(), rec.state.Load()&flagDelete != 0)
		}
	}
}

func (v ScopeView) String() string {
	return fmt.Sprintf("pdev %d: %d MACs, %d AST addresses", v.sc.id, len(v.sc.peersByMAC), len(v.sc.astByMAC))
}
