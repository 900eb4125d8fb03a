// Package ingest applies firmware events to the registry with one ordered
// queue per radio. Events for a pdev are applied strictly in submission order;
// different pdevs proceed in parallel.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
)

const (
	DefaultQueueDepth = 256

	tracerName = "astreg.ingest"
)

var (
	ErrQueueFull         = errors.New("pdev queue full")
	ErrUnknownPdev       = errors.New("no queue for pdev")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Applier applies one decoded firmware payload taken from pdev's queue.
type Applier interface {
	ApplyOn(pdev models.PdevID, payload interface{}) error
}

// Result reports how one event was applied.
type Result struct {
	Event   *models.FirmwareEvent
	Err     error
	Latency time.Duration
}

// ResultFunc is called from the pdev's worker once the event is applied, or
// with ErrDispatcherStopped if the dispatcher shut down first.
type ResultFunc func(Result)

type job struct {
	ctx      context.Context
	event    *models.FirmwareEvent
	result   ResultFunc
	enqueued time.Time
}

type Dispatcher struct {
	applier Applier
	logger  logger.Logger
	tracer  trace.Tracer
	queues  []chan job

	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	stopped bool
}

func NewDispatcher(applier Applier, numPdevs, queueDepth int, log logger.Logger) *Dispatcher {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}

	d := &Dispatcher{
		applier: applier,
		logger:  log.WithComponent("ingest"),
		tracer:  otel.Tracer(tracerName),
		queues:  make([]chan job, numPdevs),
		done:    make(chan struct{}),
	}

	for i := range d.queues {
		d.queues[i] = make(chan job, queueDepth)
	}

	return d
}

// Submit enqueues ev on its pdev's queue, waiting for room until ctx ends.
func (d *Dispatcher) Submit(ctx context.Context, ev *models.FirmwareEvent, result ResultFunc) error {
	q, err := d.queueFor(ev)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case q <- job{ctx: ctx, event: ev, result: result, enqueued: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherStopped
	}
}

// TrySubmit enqueues without waiting.
func (d *Dispatcher) TrySubmit(ev *models.FirmwareEvent, result ResultFunc) error {
	q, err := d.queueFor(ev)
	if err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrDispatcherStopped
	}

	select {
	case q <- job{ctx: context.Background(), event: ev, result: result, enqueued: time.Now()}:
		return nil
	default:
		return fmt.Errorf("%w: pdev %d", ErrQueueFull, ev.PdevID)
	}
}

func (d *Dispatcher) queueFor(ev *models.FirmwareEvent) (chan job, error) {
	if int(ev.PdevID) >= len(d.queues) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPdev, ev.PdevID)
	}

	return d.queues[ev.PdevID], nil
}

// Run starts one worker per pdev and blocks until ctx is done or Stop is
// called. Events still queued at that point are failed with
// ErrDispatcherStopped. Cancellation is a normal shutdown and returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info().Int("pdevs", len(d.queues)).Msg("Starting firmware event dispatcher")

	g, gctx := errgroup.WithContext(ctx)

	for i, q := range d.queues {
		g.Go(func() error {
			d.worker(gctx, i, q)
			return nil
		})
	}

	err := g.Wait()

	d.Stop()
	d.drain()

	d.logger.Info().Msg("Firmware event dispatcher stopped")

	return err
}

func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

// QueueDepth reports how many events wait on pdev's queue.
func (d *Dispatcher) QueueDepth(pdev models.PdevID) int {
	if int(pdev) >= len(d.queues) {
		return 0
	}

	return len(d.queues[pdev])
}

func (d *Dispatcher) worker(ctx context.Context, pdev int, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case j := <-q:
			if d.stopping() {
				d.fail(j)
				continue
			}

			d.process(pdev, j)
		}
	}
}

func (d *Dispatcher) stopping() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

func (*Dispatcher) fail(j job) {
	if j.result != nil {
		j.result(Result{Event: j.event, Err: ErrDispatcherStopped, Latency: time.Since(j.enqueued)})
	}
}

func (d *Dispatcher) process(pdev int, j job) {
	_, span := d.tracer.Start(j.ctx, "ingest.apply", trace.WithAttributes(
		attribute.String("event.type", string(j.event.Type)),
		attribute.String("event.id", j.event.ID),
		attribute.Int("pdev_id", pdev),
	))

	payload, err := j.event.Decode()
	if err == nil {
		err = d.applier.ApplyOn(models.PdevID(pdev), payload)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		d.logger.Debug().
			Err(err).
			Str("event_id", j.event.ID).
			Str("type", string(j.event.Type)).
			Int("pdev_id", pdev).
			Msg("firmware event rejected")
	}

	span.End()

	if j.result != nil {
		j.result(Result{Event: j.event, Err: err, Latency: time.Since(j.enqueued)})
	}
}

func (d *Dispatcher) drain() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	// Workers have exited and Submit is locked out, so len is stable.
	for _, q := range d.queues {
		for len(q) > 0 {
			d.fail(<-q)
		}
	}
}
