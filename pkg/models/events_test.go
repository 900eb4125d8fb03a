package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirmwareEventDecode(t *testing.T) {
	mac := MustParseMAC("02:00:00:00:00:05")

	event, err := NewFirmwareEvent("fw/pdev0", 0, EventASTMap, ASTMapEvent{
		PeerID: 5, VdevID: 1, MAC: mac, ASTHash: 0x33, Type: ASTTypeWDS,
	})
	require.NoError(t, err)

	assert.Equal(t, "1.0", event.SpecVersion)
	assert.NotEmpty(t, event.ID)
	require.NotNil(t, event.Time)
	assert.WithinDuration(t, time.Now(), *event.Time, time.Minute)
	assert.Contains(t, string(event.Data), `"type":"wds"`)

	payload, err := event.Decode()
	require.NoError(t, err)

	ast, ok := payload.(*ASTMapEvent)
	require.True(t, ok)
	assert.Equal(t, PeerID(5), ast.PeerID)
	assert.Equal(t, mac, ast.MAC)
	assert.Equal(t, ASTTypeWDS, ast.Type)
}

func TestFirmwareEventDecodeErrors(t *testing.T) {
	_, err := (&FirmwareEvent{Type: EventPeerMap}).Decode()
	require.ErrorIs(t, err, ErrEmptyEventData)

	_, err = (&FirmwareEvent{Type: "com.example.other", Data: json.RawMessage(`{}`)}).Decode()
	require.ErrorIs(t, err, ErrUnknownEventType)

	_, err = (&FirmwareEvent{Type: EventPeerMap, Data: json.RawMessage(`{"mac":"zz"}`)}).Decode()
	require.Error(t, err)
}

func TestFirmwareEventEnvelopeJSON(t *testing.T) {
	raw := `{"specversion":"1.0","id":"e1","source":"fw","type":"com.carverauto.astreg.peer.unmap",` +
		`"pdev_id":2,"data":{"peer_id":9,"vdev_id":3,"mac":"02:00:00:00:00:09"}}`

	var event FirmwareEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, PdevID(2), event.PdevID)

	payload, err := event.Decode()
	require.NoError(t, err)
	assert.Equal(t, &PeerUnmapEvent{PeerID: 9, VdevID: 3, MAC: MustParseMAC("02:00:00:00:00:09")}, payload)
}
