package fwevents

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/astreg/pkg/ingest"
	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
	"github.com/carverauto/astreg/pkg/registry"
)

// fakeMsg overrides the parts of jetstream.Msg the consumer touches.
type fakeMsg struct {
	jetstream.Msg

	data      []byte
	delivered uint64
	acked     int
	naked     int
	termed    int
}

func (m *fakeMsg) Data() []byte    { return m.data }
func (m *fakeMsg) Subject() string { return "astreg.fw.0.peer.map" }
func (m *fakeMsg) Ack() error      { m.acked++; return nil }
func (m *fakeMsg) Term() error     { m.termed++; return nil }

func (m *fakeMsg) NakWithDelay(time.Duration) error {
	m.naked++
	return nil
}

func (m *fakeMsg) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{
		NumDelivered: m.delivered,
		Sequence:     jetstream.SequencePair{Stream: 7, Consumer: 7},
	}, nil
}

type submitFunc func(ctx context.Context, ev *models.FirmwareEvent, result ingest.ResultFunc) error

func (f submitFunc) Submit(ctx context.Context, ev *models.FirmwareEvent, result ingest.ResultFunc) error {
	return f(ctx, ev, result)
}

func envelopeBytes(t *testing.T, pdev models.PdevID, typ models.FirmwareEventType, payload interface{}) []byte {
	t.Helper()

	ev, err := models.NewFirmwareEvent("test", pdev, typ, payload)
	require.NoError(t, err)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	return data
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"queue full", fmt.Errorf("%w: pdev 0", ingest.ErrQueueFull), true},
		{"dispatcher stopped", ingest.ErrDispatcherStopped, true},
		{"deadline", context.DeadlineExceeded, true},
		{"duplicate identity", registry.ErrDuplicateIdentity, false},
		{"capacity", registry.ErrCapacityExceeded, false},
		{"unknown pdev", ingest.ErrUnknownPdev, false},
		{"malformed", ErrMalformedEvent, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, Retryable(tc.err))
		})
	}
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	t.Parallel()

	_, err := decodeEnvelope([]byte("{not json"))
	require.ErrorIs(t, err, ErrMalformedEvent)

	_, err = decodeEnvelope([]byte(`{"type": "com.carverauto.astreg.peer.map"}`))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestSettleOutcomes(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	c := &Consumer{cfg: &cfg, logger: logger.NewTestLogger()}

	tests := []struct {
		name      string
		err       error
		delivered uint64
		ack       int
		nak       int
		term      int
	}{
		{"applied", nil, 1, 1, 0, 0},
		{"rejected by registry", registry.ErrDuplicateIdentity, 1, 1, 0, 0},
		{"transient", ingest.ErrDispatcherStopped, 1, 0, 1, 0},
		{"transient budget spent", ingest.ErrDispatcherStopped, 3, 0, 0, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			msg := &fakeMsg{delivered: tc.delivered}
			c.settle(msg, tc.err)

			assert.Equal(t, tc.ack, msg.acked, "acks")
			assert.Equal(t, tc.nak, msg.naked, "naks")
			assert.Equal(t, tc.term, msg.termed, "terms")
		})
	}
}

func TestHandleMessageSettlesFromWorker(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	c := &Consumer{cfg: &cfg, logger: logger.NewTestLogger()}

	var got *models.FirmwareEvent

	p := NewProcessor(submitFunc(func(_ context.Context, ev *models.FirmwareEvent, result ingest.ResultFunc) error {
		got = ev
		result(ingest.Result{Event: ev, Err: registry.ErrUnknownVdev})

		return nil
	}), logger.NewTestLogger())

	msg := &fakeMsg{
		delivered: 1,
		data: envelopeBytes(t, 1, models.EventPeerUnmap, models.PeerUnmapEvent{
			PeerID: 3, VdevID: 9, MAC: models.MustParseMAC("02:00:00:00:00:03"),
		}),
	}

	c.handleMessage(context.Background(), msg, p)

	require.NotNil(t, got)
	assert.Equal(t, models.PdevID(1), got.PdevID)
	assert.Equal(t, 1, msg.acked)
}

func TestHandleMessageSubmitFailureIsRetried(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	c := &Consumer{cfg: &cfg, logger: logger.NewTestLogger()}

	errFull := fmt.Errorf("%w: pdev 0", ingest.ErrQueueFull)

	p := NewProcessor(submitFunc(func(context.Context, *models.FirmwareEvent, ingest.ResultFunc) error {
		return errFull
	}), logger.NewTestLogger())

	msg := &fakeMsg{
		delivered: 1,
		data:      envelopeBytes(t, 0, models.EventASTUnmap, models.ASTUnmapEvent{VdevID: 0}),
	}

	c.handleMessage(context.Background(), msg, p)
	assert.Equal(t, 1, msg.naked)

	bad := &fakeMsg{delivered: 1, data: []byte("garbage")}
	c.handleMessage(context.Background(), bad, p)
	assert.Equal(t, 1, bad.acked)
}
