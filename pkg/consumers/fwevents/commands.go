package fwevents

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
	"github.com/carverauto/astreg/pkg/registry"
)

const (
	commandSource = "astreg/registry"

	CommandWDSAdd    = "com.carverauto.astreg.wds.add"
	CommandWDSUpdate = "com.carverauto.astreg.wds.update"
	CommandWDSDelete = "com.carverauto.astreg.wds.delete"

	NotifyPeerReclaimed = "com.carverauto.astreg.peer.reclaimed"
	NotifyASTFreed      = "com.carverauto.astreg.ast.freed"
)

// FirmwareCommands sends WDS table commands to the firmware agent as core
// NATS publishes on <prefix>.<pdev>.wds.<op>. Publishing only buffers, so it
// is safe under the registry's scope lock.
type FirmwareCommands struct {
	nc     *nats.Conn
	prefix string
}

var _ registry.FirmwareOps = (*FirmwareCommands)(nil)

func NewFirmwareCommands(nc *nats.Conn, prefix string) *FirmwareCommands {
	return &FirmwareCommands{nc: nc, prefix: prefix}
}

func (f *FirmwareCommands) AddWDSEntry(info registry.ASTInfo) error {
	return f.send(CommandWDSAdd, "add", info)
}

func (f *FirmwareCommands) UpdateWDSEntry(info registry.ASTInfo) error {
	return f.send(CommandWDSUpdate, "update", info)
}

func (f *FirmwareCommands) DeleteWDSEntry(info registry.ASTInfo) error {
	return f.send(CommandWDSDelete, "delete", info)
}

func (f *FirmwareCommands) send(eventType, op string, info registry.ASTInfo) error {
	subject := fmt.Sprintf("%s.%d.wds.%s", f.prefix, info.PdevID, op)

	data, err := marshalCloudEvent(eventType, subject, info)
	if err != nil {
		return err
	}

	if err := f.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}

	return nil
}

// ASTFreedNotice is the data of an AST freed notification.
type ASTFreedNotice struct {
	AST    registry.ASTInfo `json:"ast"`
	Status string           `json:"status"`
}

// Notifications republishes registry completions on <prefix>.peer.reclaimed
// and <prefix>.ast.freed.
type Notifications struct {
	nc     *nats.Conn
	prefix string
	logger logger.Logger
}

var _ registry.Notifier = (*Notifications)(nil)

func NewNotifications(nc *nats.Conn, prefix string, log logger.Logger) *Notifications {
	return &Notifications{nc: nc, prefix: prefix, logger: log}
}

func (n *Notifications) PeerReclaimed(info registry.PeerInfo) {
	n.logger.Debug().
		Uint16("peer_id", uint16(info.ID)).
		Str("mac", info.MAC.String()).
		Msg("Peer reclaimed")

	n.publish(NotifyPeerReclaimed, n.prefix+".peer.reclaimed", info)
}

func (n *Notifications) ASTFreed(info registry.ASTInfo, status models.ASTFreeStatus) {
	n.logger.Debug().
		Str("mac", info.MAC.String()).
		Str("type", info.Type.String()).
		Str("status", status.String()).
		Msg("AST entry freed")

	n.publish(NotifyASTFreed, n.prefix+".ast.freed", ASTFreedNotice{AST: info, Status: status.String()})
}

func (n *Notifications) publish(eventType, subject string, data interface{}) {
	payload, err := marshalCloudEvent(eventType, subject, data)
	if err == nil {
		err = n.nc.Publish(subject, payload)
	}

	if err != nil {
		n.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish registry notification")
	}
}

func marshalCloudEvent(eventType, subject string, data interface{}) ([]byte, error) {
	now := time.Now().UTC()

	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          commandSource,
		Type:            eventType,
		DataContentType: "application/json",
		Subject:         subject,
		Time:            &now,
		Data:            data,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", eventType, err)
	}

	return payload, nil
}
