package fwevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
	"github.com/carverauto/astreg/pkg/registry"
)

const (
	AdminEventType = "com.carverauto.astreg.admin.result"

	adminSource = "astreg/admin"
)

var (
	errAdminNotStarted   = errors.New("admin responder not started")
	ErrUnknownAdminOp    = errors.New("unknown admin operation")
	ErrMalformedAdminReq = errors.New("malformed admin request")
)

// AdminOp names a control-plane change to the registry.
type AdminOp string

const (
	AdminAddAST       AdminOp = "add_ast"
	AdminUpdateAST    AdminOp = "update_ast"
	AdminDeleteAST    AdminOp = "delete_ast"
	AdminSetASTType   AdminOp = "set_ast_type"
	AdminFlushPeerAST AdminOp = "flush_peer_ast"
	AdminDeletePeer   AdminOp = "delete_peer"
)

// AdminTarget is the part of the registry operators may change directly.
type AdminTarget interface {
	AddAST(req registry.ASTRequest) error
	UpdateAST(req registry.ASTRequest) error
	DeleteAST(vdev models.VdevID, mac models.MACAddress) error
	SetASTType(vdev models.VdevID, mac models.MACAddress, typ models.ASTType) error
	FlushPeerAST(id models.PeerID) (int, error)
	DeletePeer(id models.PeerID) error
}

// AdminRequest is the body of an admin request. Fields a given op does not
// use are ignored.
type AdminRequest struct {
	Op      AdminOp           `json:"op"`
	PeerID  models.PeerID     `json:"peer_id"`
	VdevID  models.VdevID     `json:"vdev_id"`
	MAC     models.MACAddress `json:"mac"`
	Type    models.ASTType    `json:"type"`
	NextHop bool              `json:"next_hop,omitempty"`
}

// AdminResult is the data of the reply CloudEvent.
type AdminResult struct {
	Op      AdminOp `json:"op"`
	OK      bool    `json:"ok"`
	Error   string  `json:"error,omitempty"`
	Removed int     `json:"removed,omitempty"`
}

// AdminResponder applies operator requests to the registry over NATS
// request/reply.
type AdminResponder struct {
	nc      *nats.Conn
	subject string
	target  AdminTarget
	logger  logger.Logger
	sub     *nats.Subscription
}

func NewAdminResponder(nc *nats.Conn, subject string, target AdminTarget, log logger.Logger) *AdminResponder {
	return &AdminResponder{
		nc:      nc,
		subject: subject,
		target:  target,
		logger:  log,
	}
}

// Start subscribes to the admin subject.
func (a *AdminResponder) Start() error {
	sub, err := a.nc.Subscribe(a.subject, a.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", a.subject, err)
	}

	a.sub = sub

	a.logger.Info().Str("subject", a.subject).Msg("Admin responder listening")

	return nil
}

func (a *AdminResponder) Stop() error {
	if a.sub == nil {
		return errAdminNotStarted
	}

	return a.sub.Unsubscribe()
}

func (a *AdminResponder) handle(msg *nats.Msg) {
	var (
		req    AdminRequest
		result AdminResult
	)

	if err := json.Unmarshal(msg.Data, &req); err != nil {
		result.Error = fmt.Errorf("%w: %w", ErrMalformedAdminReq, err).Error()
	} else {
		result = a.apply(&req)
	}

	if !result.OK {
		a.logger.Warn().Str("op", string(req.Op)).Str("error", result.Error).Msg("Admin request rejected")
	}

	payload, err := json.Marshal(a.envelope(result))
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to marshal admin result")
		return
	}

	if err := msg.Respond(payload); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to respond to admin request")
	}
}

func (a *AdminResponder) apply(req *AdminRequest) AdminResult {
	result := AdminResult{Op: req.Op}

	var err error

	switch req.Op {
	case AdminAddAST:
		err = a.target.AddAST(req.astRequest())
	case AdminUpdateAST:
		err = a.target.UpdateAST(req.astRequest())
	case AdminDeleteAST:
		err = a.target.DeleteAST(req.VdevID, req.MAC)
	case AdminSetASTType:
		err = a.target.SetASTType(req.VdevID, req.MAC, req.Type)
	case AdminFlushPeerAST:
		result.Removed, err = a.target.FlushPeerAST(req.PeerID)
	case AdminDeletePeer:
		err = a.target.DeletePeer(req.PeerID)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAdminOp, req.Op)
	}

	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.OK = true

	a.logger.Info().
		Str("op", string(req.Op)).
		Uint16("peer_id", uint16(req.PeerID)).
		Str("mac", req.MAC.String()).
		Msg("Admin request applied")

	return result
}

func (r *AdminRequest) astRequest() registry.ASTRequest {
	return registry.ASTRequest{
		PeerID:  r.PeerID,
		MAC:     r.MAC,
		Type:    r.Type,
		NextHop: r.NextHop,
	}
}

func (a *AdminResponder) envelope(result AdminResult) models.CloudEvent {
	now := time.Now().UTC()

	return models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          adminSource,
		Type:            AdminEventType,
		DataContentType: "application/json",
		Subject:         a.subject,
		Time:            &now,
		Data:            result,
	}
}
