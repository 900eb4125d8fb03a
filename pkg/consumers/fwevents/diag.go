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
)

const (
	DiagEventType = "com.carverauto.astreg.diag.dump"

	diagSource = "astreg/registry"
)

var errDiagNotStarted = errors.New("diagnostics responder not started")

// StatsSource is the part of the registry the responder reads.
type StatsSource interface {
	Stats(includePeers bool) models.RegistryStats
	StuckPeers(threshold time.Duration) []models.PeerStats
}

// DiagRequest is the optional body of a dump request.
type DiagRequest struct {
	IncludePeers   bool            `json:"include_peers"`
	StuckThreshold models.Duration `json:"stuck_threshold,omitempty"`
}

// DiagDump is the data of the reply CloudEvent.
type DiagDump struct {
	Stats models.RegistryStats `json:"stats"`
	Stuck []models.PeerStats   `json:"stuck,omitempty"`
}

// DiagResponder answers registry dump requests over NATS request/reply.
type DiagResponder struct {
	nc      *nats.Conn
	subject string
	source  StatsSource
	logger  logger.Logger
	sub     *nats.Subscription
}

func NewDiagResponder(nc *nats.Conn, subject string, source StatsSource, log logger.Logger) *DiagResponder {
	return &DiagResponder{
		nc:      nc,
		subject: subject,
		source:  source,
		logger:  log,
	}
}

// Start subscribes to the dump subject.
func (d *DiagResponder) Start() error {
	sub, err := d.nc.Subscribe(d.subject, d.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", d.subject, err)
	}

	d.sub = sub

	d.logger.Info().Str("subject", d.subject).Msg("Diagnostics responder listening")

	return nil
}

func (d *DiagResponder) Stop() error {
	if d.sub == nil {
		return errDiagNotStarted
	}

	return d.sub.Unsubscribe()
}

func (d *DiagResponder) handle(msg *nats.Msg) {
	var req DiagRequest

	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			d.logger.Warn().Err(err).Msg("Ignoring malformed diagnostics request body")
		}
	}

	payload, err := json.Marshal(d.dump(&req))
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to marshal diagnostics dump")
		return
	}

	if err := msg.Respond(payload); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to respond to diagnostics request")
	}
}

func (d *DiagResponder) dump(req *DiagRequest) models.CloudEvent {
	dump := DiagDump{Stats: d.source.Stats(req.IncludePeers)}

	if req.StuckThreshold > 0 {
		dump.Stuck = d.source.StuckPeers(time.Duration(req.StuckThreshold))
	}

	now := time.Now().UTC()

	return models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          diagSource,
		Type:            DiagEventType,
		DataContentType: "application/json",
		Subject:         d.subject,
		Time:            &now,
		Data:            dump,
	}
}
