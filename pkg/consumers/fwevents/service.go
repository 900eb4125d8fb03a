package fwevents

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/astreg/pkg/ingest"
	"github.com/carverauto/astreg/pkg/lifecycle"
	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/natsutil"
)

const connectionName = "astreg-fwevents"

// Service wires NATS to the ordered dispatcher: a pull consumer feeding
// firmware events in, plus request/reply responders for diagnostics dumps and
// operator changes.
type Service struct {
	cfg        *Config
	dispatcher *ingest.Dispatcher
	stats      StatsSource
	admin      AdminTarget
	logger     logger.Logger

	nc        *nats.Conn
	consumer  *Consumer
	processor *Processor
	diag      *DiagResponder
	adminResp *AdminResponder

	cancel        context.CancelFunc
	wg            sync.WaitGroup
	dispatcherErr error
}

var _ lifecycle.Service = (*Service)(nil)

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithConn hands the service an established connection. The service takes
// ownership and drains it on Stop.
func WithConn(nc *nats.Conn) ServiceOption {
	return func(s *Service) { s.nc = nc }
}

// WithAdmin serves operator requests against target on the admin subject.
func WithAdmin(target AdminTarget) ServiceOption {
	return func(s *Service) { s.admin = target }
}

func NewService(
	cfg *Config, dispatcher *ingest.Dispatcher, stats StatsSource, log logger.Logger, opts ...ServiceOption) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewTestLogger()
	}

	log = log.WithComponent("fwevents")

	s := &Service{
		cfg:        cfg,
		dispatcher: dispatcher,
		stats:      stats,
		logger:     log,
		processor:  NewProcessor(dispatcher, log),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) Start(ctx context.Context) error {
	nc := s.nc
	if nc == nil {
		var err error

		nc, err = natsutil.Connect(&s.cfg.NATS, connectionName, s.logger)
		if err != nil {
			return err
		}
	}

	if err := s.startWithConn(ctx, nc); err != nil {
		nc.Close()
		s.nc = nil

		return err
	}

	return nil
}

func (s *Service) startWithConn(ctx context.Context, nc *nats.Conn) error {
	js, err := natsutil.JetStream(nc, s.cfg.NATS.Domain)
	if err != nil {
		return err
	}

	if s.cfg.CreateStream {
		_, err = natsutil.EnsureStream(ctx, js, s.cfg.StreamName, natsutil.FirmwareSubjectFilter(s.cfg.SubjectPrefix))
	} else {
		_, err = js.Stream(ctx, s.cfg.StreamName)
	}

	if err != nil {
		return fmt.Errorf("failed to get stream %s: %w", s.cfg.StreamName, err)
	}

	consumer, err := NewConsumer(ctx, js, s.cfg, s.logger)
	if err != nil {
		return err
	}

	if s.cfg.DiagSubject != "" && s.stats != nil {
		s.diag = NewDiagResponder(nc, s.cfg.DiagSubject, s.stats, s.logger)
		if err := s.diag.Start(); err != nil {
			return err
		}
	}

	if s.cfg.AdminSubject != "" && s.admin != nil {
		s.adminResp = NewAdminResponder(nc, s.cfg.AdminSubject, s.admin, s.logger)
		if err := s.adminResp.Start(); err != nil {
			return err
		}
	}

	s.nc = nc
	s.consumer = consumer

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)

	go func() {
		defer s.wg.Done()

		s.dispatcherErr = s.dispatcher.Run(runCtx)
	}()

	go func() {
		defer s.wg.Done()

		s.consumer.ProcessMessages(runCtx, s.processor)
	}()

	s.logger.Info().
		Str("stream", s.cfg.StreamName).
		Str("consumer", s.cfg.ConsumerName).
		Msg("Firmware event consumer started")

	return nil
}

// Stop ends fetching, fails events still queued so they are redelivered
// later, and drains the NATS connection.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}

	s.cancel()
	s.dispatcher.Stop()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	var errs []error

	select {
	case <-done:
		errs = append(errs, s.dispatcherErr)
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for consumer shutdown: %w", ctx.Err()))
	}

	if s.diag != nil {
		if err := s.diag.Stop(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}

	if s.adminResp != nil {
		if err := s.adminResp.Stop(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}

	if err := s.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, err)
	}

	s.logger.Info().Msg("Firmware event consumer stopped")

	return errors.Join(errs...)
}
