package registry

import (
	"fmt"

	"github.com/carverauto/astreg/pkg/models"
)

// ASTRequest is a host-initiated AST change.
type ASTRequest struct {
	PeerID  models.PeerID     `json:"peer_id"`
	MAC     models.MACAddress `json:"mac"`
	Type    models.ASTType    `json:"type"`
	NextHop bool              `json:"next_hop"`
}

// AddAST installs mac behind the peer. Adding an entry the peer already owns
// re-validates it; a dynamic entry owned by another peer roams; a static one
// is a conflict. WDS-class entries are programmed into the firmware.
func (r *Registry) AddAST(req ASTRequest) error {
	if err := validKeyMAC(req.MAC); err != nil {
		return err
	}

	if !req.Type.Valid() || req.Type == models.ASTTypeNone || req.Type == models.ASTTypeSelf {
		return fmt.Errorf("%w: %s", ErrInvalidASTType, req.Type)
	}

	ref, ok := r.FindByID(req.PeerID)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotFound, req.PeerID)
	}
	defer ref.Release()

	return r.addAST(ref, req)
}

// addAST runs under a reference taken before the scope lock, so the owner may
// have gone delete-pending in between.
func (r *Registry) addAST(ref *PeerRef, req ASTRequest) error {
	sc := r.scopes[ref.PdevID()]

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if !isActive(ref.rec, ref.h.gen) {
		return fmt.Errorf("%w: peer %d", ErrNotFound, req.PeerID)
	}

	if h, rec, found := sc.lookupAST(r.pool, req.MAC); found {
		if rec.peer == ref.h {
			return nil
		}

		if rec.typ.IsStatic() || req.Type.IsStatic() {
			return fmt.Errorf("%w: AST %s owned by peer %d", ErrDuplicateIdentity, req.MAC, rec.peerID)
		}

		r.moveASTLocked(h, rec, ref.h, ref.rec)
		rec.typ = req.Type
		rec.nextHop = req.NextHop
		r.metrics.recordRoam()

		return r.programFirmware(rec, r.fwUpdate)
	}

	h, err := r.pool.AllocateAST(req.MAC, ref.h, req.Type)
	if err != nil {
		r.metrics.recordCapacityRejection(capacityAST)
		return err
	}

	rec, _ := r.pool.ast(h)
	rec.nextHop = req.NextHop

	if err := r.programFirmware(rec, r.fwAdd); err != nil {
		if rerr := r.pool.ReclaimAST(h); rerr != nil {
			_ = r.violation(rerr)
		}

		return err
	}

	sc.addAST(req.MAC, h)
	ref.rec.asts = append(ref.rec.asts, h)

	r.logger.Debug().
		Str("mac", req.MAC.String()).
		Uint16("peer_id", uint16(req.PeerID)).
		Str("ast_type", req.Type.String()).
		Msg("AST entry added")

	return nil
}

// UpdateAST re-points an existing dynamic entry at req.PeerID.
func (r *Registry) UpdateAST(req ASTRequest) error {
	ref, ok := r.FindByID(req.PeerID)
	if !ok {
		return fmt.Errorf("%w: peer %d", ErrNotFound, req.PeerID)
	}
	defer ref.Release()

	sc := r.scopes[ref.PdevID()]

	sc.mu.Lock()
	defer sc.mu.Unlock()

	h, rec, found := sc.lookupAST(r.pool, req.MAC)
	if !found {
		return fmt.Errorf("%w: AST %s on pdev %d", ErrNotFound, req.MAC, ref.PdevID())
	}

	if err := r.updateASTLocked(h, rec, ref, req.Type, req.NextHop); err != nil {
		return err
	}

	return r.programFirmware(rec, r.fwUpdate)
}

// DeleteAST removes mac from vdev. Entries the firmware also holds wait in
// free-pending until its AST unmap arrives; the rest are freed at once. The
// peer's own entry goes only with the peer.
func (r *Registry) DeleteAST(vdev models.VdevID, mac models.MACAddress) error {
	vd, err := r.lookupVdev(vdev)
	if err != nil {
		return err
	}

	sc := r.scopes[vd.pdev]

	sc.mu.Lock()
	done, err := r.deleteASTLocked(sc, vdev, mac, nil)
	sc.mu.Unlock()

	r.deliver(done)

	return err
}

// FlushPeerAST deletes every entry the peer owns except its own address and
// returns how many were removed.
func (r *Registry) FlushPeerAST(id models.PeerID) (int, error) {
	ref, ok := r.FindByID(id)
	if !ok {
		return 0, fmt.Errorf("%w: peer %d", ErrNotFound, id)
	}
	defer ref.Release()

	sc := r.scopes[ref.PdevID()]

	var (
		done []completion
		n    int
	)

	sc.mu.Lock()

	owned := append([]ASTHandle(nil), ref.rec.asts...)
	for _, h := range owned {
		rec, ok := r.pool.ast(h)
		if !ok || r.isOwnEntry(rec) {
			continue
		}

		var err error

		done, err = r.deleteASTLocked(sc, rec.vdev, rec.mac, done)
		if err != nil {
			r.logger.Warn().Err(err).Str("mac", rec.mac.String()).Msg("AST flush skipped entry")
			continue
		}

		n++
	}

	sc.mu.Unlock()

	r.deliver(done)

	return n, nil
}

func (r *Registry) deleteASTLocked(sc *scope, vdev models.VdevID, mac models.MACAddress, done []completion) ([]completion, error) {
	h, rec, found := sc.findAST(r.pool, vdev, mac)
	if !found {
		return done, fmt.Errorf("%w: AST %s on vdev %d", ErrNotFound, mac, vdev)
	}

	if r.isOwnEntry(rec) {
		return done, fmt.Errorf("%w: %s is peer %d's own address", ErrStaticAST, mac, rec.peerID)
	}

	r.unlinkASTLocked(sc, h, rec)

	return r.releaseASTLocked(sc, h, rec, done)
}

// releaseASTLocked frees an unlinked entry, or parks it in free-pending when
// the firmware must confirm the delete first.
func (r *Registry) releaseASTLocked(sc *scope, h ASTHandle, rec *astRecord, done []completion) ([]completion, error) {
	if r.fw == nil || !rec.typ.NeedsFirmwareCleanup() {
		return r.freeASTLocked(h, done)
	}

	rec.freePending = true

	if err := r.fw.DeleteWDSEntry(rec.info()); err != nil {
		r.logger.Warn().Err(err).Str("mac", rec.mac.String()).Msg("firmware WDS delete failed, freeing locally")

		return r.freeASTLocked(h, done)
	}

	sc.pushFreePending(astKey{vdev: rec.vdev, mac: rec.mac}, h)

	return done, nil
}

func (r *Registry) fwAdd(info ASTInfo) error    { return r.fw.AddWDSEntry(info) }
func (r *Registry) fwUpdate(info ASTInfo) error { return r.fw.UpdateWDSEntry(info) }

func (r *Registry) programFirmware(rec *astRecord, op func(ASTInfo) error) error {
	if r.fw == nil || !rec.typ.NeedsFirmwareCleanup() {
		return nil
	}

	if err := op(rec.info()); err != nil {
		return fmt.Errorf("firmware rejected WDS change for %s: %w", rec.mac, err)
	}

	return nil
}

// SetASTType changes the type of a dynamic entry in place.
func (r *Registry) SetASTType(vdev models.VdevID, mac models.MACAddress, typ models.ASTType) error {
	if !typ.Valid() || typ == models.ASTTypeNone || typ.IsStatic() {
		return fmt.Errorf("%w: %s", ErrInvalidASTType, typ)
	}

	vd, err := r.lookupVdev(vdev)
	if err != nil {
		return err
	}

	sc := r.scopes[vd.pdev]

	sc.mu.Lock()
	defer sc.mu.Unlock()

	_, rec, found := sc.findAST(r.pool, vdev, mac)
	if !found {
		return fmt.Errorf("%w: AST %s on vdev %d", ErrNotFound, mac, vdev)
	}

	if rec.typ.IsStatic() {
		return fmt.Errorf("%w: %s is %s", ErrStaticAST, mac, rec.typ)
	}

	rec.typ = typ

	return r.programFirmware(rec, r.fwUpdate)
}
