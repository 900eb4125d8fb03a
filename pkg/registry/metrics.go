package registry

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName                = "astreg.registry"
	metricEventsTotal        = "astreg_registry_events_total"
	metricViolationsTotal    = "astreg_registry_invariant_violations_total"
	metricCapacityTotal      = "astreg_registry_capacity_rejections_total"
	metricReclaimsTotal      = "astreg_registry_peer_reclaims_total"
	metricRoamsTotal         = "astreg_registry_ast_roams_total"
	metricPeersActive        = "astreg_registry_peers_active"
	metricPeersDeletePending = "astreg_registry_peers_delete_pending"
	metricASTEntries         = "astreg_registry_ast_entries"
	metricASTFreePending     = "astreg_registry_ast_free_pending"

	capacityPeer = "peer"
	capacityAST  = "ast"
)

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	instruments struct {
		events     metric.Int64Counter
		violations metric.Int64Counter
		capacity   metric.Int64Counter
		reclaims   metric.Int64Counter
		roams      metric.Int64Counter

		peersActive        metric.Int64ObservableGauge
		peersDeletePending metric.Int64ObservableGauge
		astEntries         metric.Int64ObservableGauge
		astFreePending     metric.Int64ObservableGauge
	}
)

func initMeter() {
	meter := otel.Meter(meterName)

	var err error

	if instruments.events, err = meter.Int64Counter(
		metricEventsTotal,
		metric.WithDescription("Firmware events applied to the registry, by type and outcome"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.violations, err = meter.Int64Counter(
		metricViolationsTotal,
		metric.WithDescription("Reference or lifecycle invariant violations detected"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.capacity, err = meter.Int64Counter(
		metricCapacityTotal,
		metric.WithDescription("Allocations rejected because a pool was full"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.reclaims, err = meter.Int64Counter(
		metricReclaimsTotal,
		metric.WithDescription("Peers returned to the pool"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.roams, err = meter.Int64Counter(
		metricRoamsTotal,
		metric.WithDescription("AST entries re-pointed at a different peer"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.peersActive, err = meter.Int64ObservableGauge(
		metricPeersActive,
		metric.WithDescription("Active peers per pdev"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.peersDeletePending, err = meter.Int64ObservableGauge(
		metricPeersDeletePending,
		metric.WithDescription("Delete-pending peers per pdev"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.astEntries, err = meter.Int64ObservableGauge(
		metricASTEntries,
		metric.WithDescription("Indexed AST entries per pdev"),
	); err != nil {
		otel.Handle(err)
	}

	if instruments.astFreePending, err = meter.Int64ObservableGauge(
		metricASTFreePending,
		metric.WithDescription("AST entries waiting for firmware delete confirmation"),
	); err != nil {
		otel.Handle(err)
	}
}

type registryMetrics struct {
	registration metric.Registration
}

func newRegistryMetrics(r *Registry) *registryMetrics {
	meterOnce.Do(initMeter)

	m := &registryMetrics{}

	if instruments.peersActive == nil || instruments.peersDeletePending == nil ||
		instruments.astEntries == nil || instruments.astFreePending == nil {
		return m
	}

	reg, err := otel.Meter(meterName).RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			for _, ss := range r.Stats(false).Scopes {
				attrs := metric.WithAttributes(attribute.Int("pdev_id", int(ss.PdevID)))
				o.ObserveInt64(instruments.peersActive, int64(ss.ActivePeers), attrs)
				o.ObserveInt64(instruments.peersDeletePending, int64(ss.DeletePendingPeers), attrs)
				o.ObserveInt64(instruments.astEntries, int64(ss.ASTEntries), attrs)
			}

			o.ObserveInt64(instruments.astFreePending, int64(r.freePendingTotal()))

			return nil
		},
		instruments.peersActive,
		instruments.peersDeletePending,
		instruments.astEntries,
		instruments.astFreePending,
	)
	if err != nil {
		otel.Handle(err)
		return m
	}

	m.registration = reg

	return m
}

func (m *registryMetrics) close() error {
	if m == nil || m.registration == nil {
		return nil
	}

	return m.registration.Unregister()
}

func (*registryMetrics) recordEvent(kind string, err error) {
	if instruments.events == nil {
		return
	}

	instruments.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", kind),
		attribute.String("outcome", outcomeOf(err)),
	))
}

func (*registryMetrics) recordViolation() {
	if instruments.violations != nil {
		instruments.violations.Add(context.Background(), 1)
	}
}

func (*registryMetrics) recordCapacityRejection(pool string) {
	if instruments.capacity != nil {
		instruments.capacity.Add(context.Background(), 1, metric.WithAttributes(attribute.String("pool", pool)))
	}
}

func (*registryMetrics) recordReclaim() {
	if instruments.reclaims != nil {
		instruments.reclaims.Add(context.Background(), 1)
	}
}

func (*registryMetrics) recordRoam() {
	if instruments.roams != nil {
		instruments.roams.Add(context.Background(), 1)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateIdentity):
		return "duplicate"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, ErrInvariantViolation):
		return "violation"
	default:
		return "error"
	}
}

func (r *Registry) freePendingTotal() int {
	n := 0

	for _, sc := range r.scopes {
		sc.mu.RLock()
		n += sc.freePendingCount()
		sc.mu.RUnlock()
	}

	return n
}

// Close unregisters the registry's metric callbacks.
func (r *Registry) Close() error {
	return r.metrics.close()
}
