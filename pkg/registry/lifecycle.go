package registry

import (
	"fmt"

	"github.com/carverauto/astreg/pkg/models"
)

type peerSpec struct {
	id      models.PeerID
	mac     models.MACAddress
	vdev    models.VdevID
	fwIndex uint32
}

// CreatePeer binds id to mac on vdev and creates the peer's own AST entry:
// SELF when mac is the vdev's address, STATIC otherwise. Mapping an identity
// that is already bound re-validates it.
func (r *Registry) CreatePeer(id models.PeerID, mac models.MACAddress, vdev models.VdevID, hwPeerID, astHash uint16) error {
	return r.createPeer(peerSpec{id: id, mac: mac, vdev: vdev, fwIndex: packFWIndex(hwPeerID, astHash)})
}

func (r *Registry) createPeer(spec peerSpec) error {
	if !r.ids.inRange(spec.id) {
		return fmt.Errorf("%w: %d", ErrInvalidPeerID, spec.id)
	}

	if err := validKeyMAC(spec.mac); err != nil {
		return err
	}

	vd, err := r.lookupVdev(spec.vdev)
	if err != nil {
		return err
	}

	if ref, ok := r.FindByID(spec.id); ok {
		bound := ref.Info()
		same := bound.MAC == spec.mac && bound.VdevID == spec.vdev

		if same {
			ref.rec.fwIndex.Store(spec.fwIndex)
		}

		ref.Release()

		if !same {
			return fmt.Errorf("%w: peer %d is bound to %s on vdev %d", ErrDuplicateIdentity, spec.id, bound.MAC, bound.VdevID)
		}

		r.logger.Debug().Uint16("peer_id", uint16(spec.id)).Str("mac", spec.mac.String()).Msg("peer map re-validated")

		return nil
	}

	astType := models.ASTTypeStatic
	if spec.mac == vd.selfMAC {
		astType = models.ASTTypeSelf
	}

	sc := r.scopes[vd.pdev]

	sc.mu.Lock()
	err = r.createPeerLocked(sc, spec, astType)
	sc.mu.Unlock()

	if err != nil {
		return err
	}

	r.logger.Info().
		Uint16("peer_id", uint16(spec.id)).
		Str("mac", spec.mac.String()).
		Uint8("vdev_id", uint8(spec.vdev)).
		Uint8("pdev_id", uint8(vd.pdev)).
		Str("ast_type", astType.String()).
		Msg("peer mapped")

	return nil
}

func (r *Registry) createPeerLocked(sc *scope, spec peerSpec, astType models.ASTType) error {
	for _, h := range sc.peersByMAC[spec.mac] {
		if rec := r.pool.peerAt(h); rec != nil && isActive(rec, h.gen) {
			return fmt.Errorf("%w: %s already bound to peer %d", ErrDuplicateIdentity, spec.mac, rec.id)
		}
	}

	existingH, existing, hasExisting := sc.lookupAST(r.pool, spec.mac)
	if hasExisting && existing.typ.IsStatic() {
		return fmt.Errorf("%w: static AST %s owned by peer %d", ErrDuplicateIdentity, spec.mac, existing.peerID)
	}

	h, err := r.pool.AllocatePeer(spec.id, spec.mac, spec.vdev, sc.id)
	if err != nil {
		r.metrics.recordCapacityRejection(capacityPeer)
		return err
	}

	rec := r.pool.peerAt(h)
	rec.fwIndex.Store(spec.fwIndex)

	var astH ASTHandle
	if !hasExisting {
		astH, err = r.pool.AllocateAST(spec.mac, h, astType)
		if err != nil {
			r.discardPeer(h, rec)
			r.metrics.recordCapacityRejection(capacityAST)

			return err
		}
	}

	if err := r.adjustVdevPeers(spec.vdev, 1); err != nil {
		r.discardUnpublished(h, rec, astH)
		return err
	}

	if !r.ids.bind(spec.id, h, r.pool) {
		_ = r.adjustVdevPeers(spec.vdev, -1)
		r.discardUnpublished(h, rec, astH)

		return fmt.Errorf("%w: %w: peer %d", ErrDuplicateIdentity, ErrSlotOccupied, spec.id)
	}

	if hasExisting {
		// An address learned behind another peer now associates directly.
		r.moveASTLocked(existingH, existing, h, rec)
		existing.typ = astType
		existing.nextHop = false
	} else {
		sc.addAST(spec.mac, astH)
		rec.asts = append(rec.asts, astH)
	}

	sc.addPeer(spec.mac, h)

	return nil
}

// discardUnpublished frees a peer and AST entry that no index references yet.
func (r *Registry) discardUnpublished(h PeerHandle, rec *peerRecord, astH ASTHandle) {
	if !astH.IsZero() {
		if err := r.pool.ReclaimAST(astH); err != nil {
			_ = r.violation(err)
		}
	}

	r.discardPeer(h, rec)
}

func (r *Registry) discardPeer(h PeerHandle, rec *peerRecord) {
	if markDelete(rec, h.gen) != deleteReclaim {
		_ = r.violation(fmt.Errorf("%w: unpublished peer %d acquired", ErrInvariantViolation, rec.id))
		return
	}

	if err := r.pool.ReclaimPeer(h); err != nil {
		_ = r.violation(err)
	}
}

// DeletePeer moves the peer to DELETE_PENDING. Further lookups fail; the
// peer is reclaimed once every outstanding reference is released. Deleting a
// delete-pending peer is a no-op.
func (r *Registry) DeletePeer(id models.PeerID) error {
	return r.deletePeer(id, nil)
}

func (r *Registry) deletePeer(id models.PeerID, expectMAC *models.MACAddress) error {
	if !r.ids.inRange(id) {
		return fmt.Errorf("%w: %d", ErrInvalidPeerID, id)
	}

	h, ok := r.ids.load(id)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotFound, id)
	}

	ref, ok := r.Acquire(h)
	if !ok {
		if rec, live := r.pool.livePeer(h); live && rec.state.Load()&flagDelete != 0 {
			return nil
		}

		return fmt.Errorf("%w: peer %d", ErrNotFound, id)
	}

	defer ref.Release()

	if expectMAC != nil && !expectMAC.IsZero() && ref.MAC() != *expectMAC {
		return fmt.Errorf("%w: peer %d is %s, event names %s", ErrIdentityMismatch, id, ref.MAC(), *expectMAC)
	}

	r.markPeerDeleted(h, ref.rec)

	return nil
}

func (r *Registry) markPeerDeleted(h PeerHandle, rec *peerRecord) {
	switch markDelete(rec, h.gen) {
	case deleteMarked:
	case deleteReclaim:
		r.reclaim(h, rec)
		return
	case deleteAlreadyPending, deleteStale:
		return
	}

	rec.deleteAt.Store(r.now().UnixNano())

	sc := r.scopes[rec.pdev]

	sc.mu.Lock()
	dropped, done := r.unlinkPeerASTsLocked(sc, rec, nil)
	sc.mu.Unlock()

	r.deliver(done)

	r.logger.Info().
		Uint16("peer_id", uint16(rec.id)).
		Str("mac", rec.mac.String()).
		Int("ast_removed", dropped).
		Int("refs", stateRefs(rec.state.Load())).
		Msg("peer delete pending")
}

// unlinkPeerASTsLocked removes every entry owned by rec from the index.
// Entries the firmware also holds are sent a WDS delete and wait in
// free-pending until the firmware answers or the peer is reclaimed; the rest
// are freed at once.
func (r *Registry) unlinkPeerASTsLocked(sc *scope, rec *peerRecord, done []completion) (int, []completion) {
	n := 0

	for _, ah := range rec.asts {
		arec, ok := r.pool.ast(ah)
		if !ok {
			continue
		}

		sc.removeAST(arec.mac, ah)
		n++

		if r.fw != nil && arec.typ.NeedsFirmwareCleanup() {
			done, _ = r.releaseASTLocked(sc, ah, arec, done)
			continue
		}

		if err := r.pool.ReclaimAST(ah); err != nil {
			_ = r.violation(err)
		}
	}

	rec.asts = nil

	return n, done
}

// dropFreePendingLocked releases free-pending entries owned by h. Their
// waiters learn the peer went first.
func (r *Registry) dropFreePendingLocked(sc *scope, h PeerHandle) []completion {
	var done []completion

	for key, queue := range sc.freePending {
		kept := queue[:0]

		for _, ah := range queue {
			arec, ok := r.pool.ast(ah)
			if !ok || arec.peer != h {
				if ok {
					kept = append(kept, ah)
				}

				continue
			}

			info := arec.info()

			if err := r.pool.ReclaimAST(ah); err != nil {
				_ = r.violation(err)
				continue
			}

			done = append(done, completion{ast: &info, astStatus: models.ASTFreeDeleted})
		}

		if len(kept) == 0 {
			delete(sc.freePending, key)
		} else {
			sc.freePending[key] = kept
		}
	}

	return done
}

// reclaim runs exactly once per peer, by whoever observed the last reference
// go away on a delete-pending peer.
func (r *Registry) reclaim(h PeerHandle, rec *peerRecord) {
	sc := r.scopes[rec.pdev]
	info := rec.info()

	sc.mu.Lock()
	r.ids.unbind(rec.id, h)
	sc.removePeer(rec.mac, h)
	_, done := r.unlinkPeerASTsLocked(sc, rec, nil)
	done = append(done, r.dropFreePendingLocked(sc, h)...)

	if err := r.adjustVdevPeers(rec.vdev, -1); err != nil {
		r.logger.Warn().Err(err).Uint16("peer_id", uint16(info.ID)).Msg("vdev gone before peer reclaim")
	}
	sc.mu.Unlock()

	if err := r.pool.ReclaimPeer(h); err != nil {
		_ = r.violation(err)
		return
	}

	r.metrics.recordReclaim()

	r.logger.Debug().
		Uint16("peer_id", uint16(info.ID)).
		Str("mac", info.MAC.String()).
		Msg("peer reclaimed")

	done = append(done, completion{peer: &info})
	r.deliver(done)
}

// moveASTLocked re-points an AST entry at a new owner. Both peers belong to
// the locked scope.
func (r *Registry) moveASTLocked(ah ASTHandle, arec *astRecord, to PeerHandle, toRec *peerRecord) {
	if from, ok := r.pool.livePeer(arec.peer); ok {
		from.asts = removeHandle(from.asts, ah)
	}

	arec.peer = to
	arec.peerID = toRec.id
	arec.vdev = toRec.vdev
	toRec.asts = append(toRec.asts, ah)
}
