package registry

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrDuplicateIdentity  = errors.New("duplicate identity")
	ErrInvariantViolation = errors.New("registry invariant violation")
	ErrSlotOccupied       = errors.New("peer id slot occupied")
	ErrInvalidPeerID      = errors.New("peer id out of range")
	ErrInvalidMAC         = errors.New("MAC address not usable as a peer or AST key")
	ErrInvalidASTType     = errors.New("invalid AST type")
	ErrUnknownVdev        = errors.New("unknown vdev")
	ErrUnknownPdev        = errors.New("unknown pdev")
	ErrVdevBusy           = errors.New("vdev still has peers")
	ErrStaticAST          = errors.New("static AST entry cannot be re-pointed")
	ErrIdentityMismatch   = errors.New("event identity does not match bound peer")
	ErrInvalidConfig      = errors.New("invalid registry config")
	ErrPdevMismatch       = errors.New("event queued on the wrong pdev")
)
