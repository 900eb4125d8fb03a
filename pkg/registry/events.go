package registry

import (
	"fmt"
	"time"

	"github.com/carverauto/astreg/pkg/models"
)

// Apply routes a decoded firmware payload to its handler. Events for one pdev
// must be applied in arrival order.
func (r *Registry) Apply(payload interface{}) error {
	var (
		kind string
		err  error
	)

	switch ev := payload.(type) {
	case *models.PeerMapEvent:
		kind, err = "peer_map", r.OnPeerMap(ev)
	case *models.PeerUnmapEvent:
		kind, err = "peer_unmap", r.OnPeerUnmap(ev)
	case *models.ASTMapEvent:
		kind, err = "ast_map", r.OnASTMap(ev)
	case *models.ASTUnmapEvent:
		kind, err = "ast_unmap", r.OnASTUnmap(ev)
	case *models.ASTUpdateEvent:
		kind, err = "ast_update", r.OnASTUpdate(ev)
	case *models.SecurityIndicationEvent:
		kind, err = "sec_ind", r.OnSecurityIndication(ev)
	case *models.PeerInactivityEvent:
		kind, err = "inactivity", r.OnInactivityUpdate(ev)
	default:
		return fmt.Errorf("%w: %T", models.ErrUnknownEventType, payload)
	}

	r.metrics.recordEvent(kind, err)

	return err
}

// ApplyOn applies a payload taken from pdev's queue. A payload naming a vdev
// or peer of another radio is rejected: applying it here would race that
// radio's own queue.
func (r *Registry) ApplyOn(pdev models.PdevID, payload interface{}) error {
	if err := r.checkEventPdev(pdev, payload); err != nil {
		return err
	}

	return r.Apply(payload)
}

func (r *Registry) checkEventPdev(pdev models.PdevID, payload interface{}) error {
	var (
		vdev    models.VdevID
		peer    models.PeerID
		hasVdev bool
	)

	switch ev := payload.(type) {
	case *models.PeerMapEvent:
		vdev, peer, hasVdev = ev.VdevID, ev.PeerID, true
	case *models.PeerUnmapEvent:
		vdev, peer, hasVdev = ev.VdevID, ev.PeerID, true
	case *models.ASTMapEvent:
		vdev, peer, hasVdev = ev.VdevID, ev.PeerID, true
	case *models.ASTUpdateEvent:
		vdev, peer, hasVdev = ev.VdevID, ev.PeerID, true
	case *models.ASTUnmapEvent:
		if vd, err := r.lookupVdev(ev.VdevID); err == nil && vd.pdev != pdev {
			return fmt.Errorf("%w: vdev %d is on pdev %d, not %d", ErrPdevMismatch, ev.VdevID, vd.pdev, pdev)
		}

		return nil
	case *models.SecurityIndicationEvent:
		peer = ev.PeerID
	case *models.PeerInactivityEvent:
		peer = ev.PeerID
	default:
		return nil
	}

	if hasVdev {
		if vd, err := r.lookupVdev(vdev); err == nil && vd.pdev != pdev {
			return fmt.Errorf("%w: vdev %d is on pdev %d, not %d", ErrPdevMismatch, vdev, vd.pdev, pdev)
		}
	}

	// Unknown vdevs and unbound peers are left for the handler to report.
	ref, ok := r.FindByID(peer)
	if !ok {
		return nil
	}

	owner := ref.PdevID()
	ref.Release()

	if owner != pdev {
		return fmt.Errorf("%w: peer %d is on pdev %d, not %d", ErrPdevMismatch, peer, owner, pdev)
	}

	return nil
}

// OnPeerMap handles the firmware binding a peer ID. A WDS map carries an AST
// address for an existing peer instead.
func (r *Registry) OnPeerMap(ev *models.PeerMapEvent) error {
	if ev.IsWDS {
		return r.OnASTMap(&models.ASTMapEvent{
			PeerID:  ev.PeerID,
			VdevID:  ev.VdevID,
			MAC:     ev.MAC,
			ASTHash: ev.ASTHash,
			Type:    models.ASTTypeWDS,
		})
	}

	return r.createPeer(peerSpec{
		id:      ev.PeerID,
		mac:     ev.MAC,
		vdev:    ev.VdevID,
		fwIndex: packFWIndex(ev.HWPeerID, ev.ASTHash),
	})
}

// OnPeerUnmap handles the firmware retiring a peer ID. A WDS unmap retires
// only the AST address.
func (r *Registry) OnPeerUnmap(ev *models.PeerUnmapEvent) error {
	if ev.IsWDS {
		return r.OnASTUnmap(&models.ASTUnmapEvent{VdevID: ev.VdevID, MAC: ev.MAC})
	}

	return r.deletePeer(ev.PeerID, &ev.MAC)
}

// OnASTMap records that the firmware installed mac behind the peer. A missing
// entry is created; a dynamic entry owned by another peer roams.
func (r *Registry) OnASTMap(ev *models.ASTMapEvent) error {
	if err := validKeyMAC(ev.MAC); err != nil {
		return err
	}

	typ := ev.Type
	if typ == models.ASTTypeNone {
		typ = models.ASTTypeWDS
	}

	if !typ.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidASTType, typ)
	}

	ref, ok := r.FindByID(ev.PeerID)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotFound, ev.PeerID)
	}
	defer ref.Release()

	return r.mapAST(ref, ev, typ)
}

func (r *Registry) mapAST(ref *PeerRef, ev *models.ASTMapEvent, typ models.ASTType) error {
	sc := r.scopes[ref.PdevID()]

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !isActive(ref.rec, ref.h.gen) {
		return fmt.Errorf("%w: peer %d", ErrNotFound, ev.PeerID)
	}

	h, rec, found := sc.lookupAST(r.pool, ev.MAC)
	if found {
		if rec.peer != ref.h {
			if rec.typ.IsStatic() {
				return fmt.Errorf("%w: static AST %s owned by peer %d", ErrDuplicateIdentity, ev.MAC, rec.peerID)
			}

			r.moveASTLocked(h, rec, ref.h, ref.rec)
			r.metrics.recordRoam()
		}

		rec.astHash = ev.ASTHash
		rec.mapped = true

		return nil
	}

	h, err := r.pool.AllocateAST(ev.MAC, ref.h, typ)
	if err != nil {
		r.metrics.recordCapacityRejection(capacityAST)
		return err
	}

	rec, _ = r.pool.ast(h)
	rec.astHash = ev.ASTHash
	rec.mapped = true

	sc.addAST(ev.MAC, h)
	ref.rec.asts = append(ref.rec.asts, h)

	return nil
}

// OnASTUnmap records that the firmware no longer holds mac. It completes a
// pending local delete, or removes an entry the firmware aged out itself.
func (r *Registry) OnASTUnmap(ev *models.ASTUnmapEvent) error {
	vd, err := r.lookupVdev(ev.VdevID)
	if err != nil {
		return err
	}

	sc := r.scopes[vd.pdev]
	key := astKey{vdev: ev.VdevID, mac: ev.MAC}

	var done []completion

	sc.mu.Lock()

	if h, ok := sc.popFreePending(key); ok {
		done, err = r.freeASTLocked(h, done)
	} else if h, rec, found := sc.findAST(r.pool, ev.VdevID, ev.MAC); found {
		if r.isOwnEntry(rec) {
			err = fmt.Errorf("%w: %s is peer %d's own address", ErrStaticAST, ev.MAC, rec.peerID)
		} else {
			r.unlinkASTLocked(sc, h, rec)
			done, err = r.freeASTLocked(h, done)
		}
	} else {
		err = fmt.Errorf("%w: AST %s on vdev %d", ErrNotFound, ev.MAC, ev.VdevID)
	}

	sc.mu.Unlock()

	r.deliver(done)

	return err
}

// OnASTUpdate re-points mac at PeerID and refreshes its type and next-hop
// flag.
func (r *Registry) OnASTUpdate(ev *models.ASTUpdateEvent) error {
	ref, ok := r.FindByID(ev.PeerID)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotFound, ev.PeerID)
	}
	defer ref.Release()

	sc := r.scopes[ref.PdevID()]

	sc.mu.Lock()
	defer sc.mu.Unlock()

	h, rec, found := sc.lookupAST(r.pool, ev.MAC)
	if !found {
		return fmt.Errorf("%w: AST %s on pdev %d", ErrNotFound, ev.MAC, ref.PdevID())
	}

	return r.updateASTLocked(h, rec, ref, ev.Type, ev.NextHop)
}

func (r *Registry) updateASTLocked(h ASTHandle, rec *astRecord, owner *PeerRef, typ models.ASTType, nextHop bool) error {
	if rec.typ.IsStatic() {
		return fmt.Errorf("%w: %s is %s", ErrStaticAST, rec.mac, rec.typ)
	}

	if typ != models.ASTTypeNone && (!typ.Valid() || typ == models.ASTTypeSelf) {
		return fmt.Errorf("%w: %d", ErrInvalidASTType, typ)
	}

	if rec.peer != owner.h {
		r.moveASTLocked(h, rec, owner.h, owner.rec)
		r.metrics.recordRoam()
	}

	if typ != models.ASTTypeNone {
		rec.typ = typ
	}

	rec.nextHop = nextHop

	return nil
}

// OnSecurityIndication stores the cipher state for one direction of a peer.
func (r *Registry) OnSecurityIndication(ev *models.SecurityIndicationEvent) error {
	ref, ok := r.FindByID(ev.PeerID)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotFound, ev.PeerID)
	}
	defer ref.Release()

	ref.rec.secMu.Lock()
	ref.rec.sec[secIndex(ev.Unicast)] = SecurityInfo{
		Type:       ev.SecType,
		MichaelKey: ev.MichaelKey,
		RxPN:       ev.RxPN,
	}
	ref.rec.secMu.Unlock()

	return nil
}

// OnInactivityUpdate records how long the firmware has seen no traffic from
// the peer.
func (r *Registry) OnInactivityUpdate(ev *models.PeerInactivityEvent) error {
	ref, ok := r.FindByID(ev.PeerID)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotFound, ev.PeerID)
	}
	defer ref.Release()

	last := r.now().Add(-time.Duration(ev.InactiveSeconds) * time.Second)

	ref.rec.inactive.Store(ev.InactiveSeconds)
	ref.rec.lastActive.Store(last.UnixNano())

	return nil
}

// isOwnEntry reports whether rec is the AST entry created with its peer.
func (r *Registry) isOwnEntry(rec *astRecord) bool {
	if rec.typ == models.ASTTypeSelf {
		return true
	}

	owner, ok := r.pool.livePeer(rec.peer)

	return ok && rec.typ == models.ASTTypeStatic && owner.mac == rec.mac
}

// unlinkASTLocked removes an entry from the hash index and its owner's list.
func (r *Registry) unlinkASTLocked(sc *scope, h ASTHandle, rec *astRecord) {
	sc.removeAST(rec.mac, h)

	if owner, ok := r.pool.livePeer(rec.peer); ok {
		owner.asts = removeHandle(owner.asts, h)
	}
}

func (r *Registry) freeASTLocked(h ASTHandle, done []completion) ([]completion, error) {
	rec, ok := r.pool.ast(h)
	if !ok {
		return done, r.violation(fmt.Errorf("%w: free of stale %s", ErrInvariantViolation, h))
	}

	rec.freePending = false
	info := rec.info()

	if err := r.pool.ReclaimAST(h); err != nil {
		return done, r.violation(err)
	}

	return append(done, completion{ast: &info, astStatus: models.ASTFreeSuccess}), nil
}
