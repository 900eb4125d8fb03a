package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownEventType = errors.New("unknown firmware event type")
	ErrEmptyEventData   = errors.New("firmware event has no data")
)

// FirmwareEventType names the already-decoded firmware notification carried by
// a FirmwareEvent envelope.
type FirmwareEventType string

const (
	EventPeerMap            FirmwareEventType = "com.carverauto.astreg.peer.map"
	EventPeerUnmap          FirmwareEventType = "com.carverauto.astreg.peer.unmap"
	EventASTMap             FirmwareEventType = "com.carverauto.astreg.ast.map"
	EventASTUnmap           FirmwareEventType = "com.carverauto.astreg.ast.unmap"
	EventASTUpdate          FirmwareEventType = "com.carverauto.astreg.ast.update"
	EventSecurityIndication FirmwareEventType = "com.carverauto.astreg.peer.sec_ind"
	EventPeerInactivity     FirmwareEventType = "com.carverauto.astreg.peer.inactivity"
)

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// FirmwareEvent is the inbound envelope. PdevID is the radio the event was
// raised on and decides which ordered queue applies it.
type FirmwareEvent struct {
	SpecVersion string            `json:"specversion"`
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	Type        FirmwareEventType `json:"type"`
	Time        *time.Time        `json:"time,omitempty"`
	PdevID      PdevID            `json:"pdev_id"`
	Data        json.RawMessage   `json:"data"`
}

// PeerMapEvent: the firmware bound peer_id to mac. With IsWDS set the mac is a
// WDS AST address mapped onto an existing peer.
type PeerMapEvent struct {
	PeerID   PeerID     `json:"peer_id"`
	HWPeerID uint16     `json:"hw_peer_id"`
	VdevID   VdevID     `json:"vdev_id"`
	MAC      MACAddress `json:"mac"`
	ASTHash  uint16     `json:"ast_hash"`
	IsWDS    bool       `json:"is_wds"`
}

// PeerUnmapEvent: the firmware retired peer_id. With IsWDS set it retires the
// WDS AST address only.
type PeerUnmapEvent struct {
	PeerID PeerID     `json:"peer_id"`
	VdevID VdevID     `json:"vdev_id"`
	MAC    MACAddress `json:"mac"`
	IsWDS  bool       `json:"is_wds"`
}

type ASTMapEvent struct {
	PeerID  PeerID     `json:"peer_id"`
	VdevID  VdevID     `json:"vdev_id"`
	MAC     MACAddress `json:"mac"`
	ASTHash uint16     `json:"ast_hash"`
	Type    ASTType    `json:"type"`
}

type ASTUnmapEvent struct {
	VdevID VdevID     `json:"vdev_id"`
	MAC    MACAddress `json:"mac"`
}

type ASTUpdateEvent struct {
	PeerID  PeerID     `json:"peer_id"`
	VdevID  VdevID     `json:"vdev_id"`
	MAC     MACAddress `json:"mac"`
	Type    ASTType    `json:"type"`
	NextHop bool       `json:"next_hop"`
}

type SecurityIndicationEvent struct {
	PeerID     PeerID    `json:"peer_id"`
	SecType    SecType   `json:"sec_type"`
	Unicast    bool      `json:"unicast"`
	MichaelKey [2]uint32 `json:"michael_key"`
	RxPN       [4]uint32 `json:"rx_pn"`
}

type PeerInactivityEvent struct {
	PeerID          PeerID `json:"peer_id"`
	InactiveSeconds uint32 `json:"inactive_seconds"`
}

// NewFirmwareEvent wraps payload in an envelope with a fresh event ID.
func NewFirmwareEvent(source string, pdev PdevID, eventType FirmwareEventType, payload interface{}) (*FirmwareEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	now := time.Now().UTC()

	return &FirmwareEvent{
		SpecVersion: "1.0",
		ID:          uuid.New().String(),
		Source:      source,
		Type:        eventType,
		Time:        &now,
		PdevID:      pdev,
		Data:        data,
	}, nil
}

// Decode unmarshals Data into the payload struct matching Type.
func (e *FirmwareEvent) Decode() (interface{}, error) {
	if len(e.Data) == 0 {
		return nil, ErrEmptyEventData
	}

	var payload interface{}

	switch e.Type {
	case EventPeerMap:
		payload = &PeerMapEvent{}
	case EventPeerUnmap:
		payload = &PeerUnmapEvent{}
	case EventASTMap:
		payload = &ASTMapEvent{}
	case EventASTUnmap:
		payload = &ASTUnmapEvent{}
	case EventASTUpdate:
		payload = &ASTUpdateEvent{}
	case EventSecurityIndication:
		payload = &SecurityIndicationEvent{}
	case EventPeerInactivity:
		payload = &PeerInactivityEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, e.Type)
	}

	if err := json.Unmarshal(e.Data, payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", e.Type, err)
	}

	return payload, nil
}
