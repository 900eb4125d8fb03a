package fwevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/astreg/pkg/ingest"
	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
)

const tracerName = "astreg.fwevents"

var ErrMalformedEvent = errors.New("malformed firmware event")

// Submitter queues an envelope for ordered application.
type Submitter interface {
	Submit(ctx context.Context, ev *models.FirmwareEvent, result ingest.ResultFunc) error
}

// SettleFunc receives the final outcome of one message.
type SettleFunc func(err error)

// Processor turns JetStream messages into dispatcher submissions.
type Processor struct {
	submitter Submitter
	logger    logger.Logger
	tracer    trace.Tracer
}

func NewProcessor(submitter Submitter, log logger.Logger) *Processor {
	return &Processor{
		submitter: submitter,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}
}

// Process decodes msg and submits it. On a nil return settle is called
// exactly once from the pdev worker; on an error return it is not called.
func (p *Processor) Process(ctx context.Context, msg jetstream.Msg, settle SettleFunc) error {
	ev, err := decodeEnvelope(msg.Data())
	if err != nil {
		return err
	}

	ctx, span := p.tracer.Start(ctx, "fwevents.process", trace.WithAttributes(
		attribute.String("messaging.subject", msg.Subject()),
		attribute.String("event.id", ev.ID),
		attribute.String("event.type", string(ev.Type)),
		attribute.Int("pdev_id", int(ev.PdevID)),
	))

	err = p.submitter.Submit(ctx, ev, func(res ingest.Result) {
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
		}

		span.SetAttributes(attribute.Int64("ingest.latency_us", res.Latency.Microseconds()))
		span.End()

		settle(res.Err)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()

		return err
	}

	return nil
}

func decodeEnvelope(data []byte) (*models.FirmwareEvent, error) {
	var ev models.FirmwareEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	if ev.Type == "" || len(ev.Data) == 0 {
		return nil, fmt.Errorf("%w: missing type or data", ErrMalformedEvent)
	}

	return &ev, nil
}

// Retryable reports whether a failed event may succeed on redelivery. Registry
// rejections are deterministic for a given event and are not retried.
func Retryable(err error) bool {
	return errors.Is(err, ingest.ErrQueueFull) ||
		errors.Is(err, ingest.ErrDispatcherStopped) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
