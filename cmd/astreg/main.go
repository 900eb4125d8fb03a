/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/carverauto/astreg/pkg/config"
	"github.com/carverauto/astreg/pkg/consumers/fwevents"
	"github.com/carverauto/astreg/pkg/ingest"
	"github.com/carverauto/astreg/pkg/lifecycle"
	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
	"github.com/carverauto/astreg/pkg/natsutil"
	"github.com/carverauto/astreg/pkg/registry"
)

const (
	serviceName     = "astreg"
	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "/etc/astreg/astreg.json", "Path to config file")
	flag.Parse()

	if err := run(context.Background(), *configPath); err != nil {
		log.Fatalf("astreg failed: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg := defaultConfig()

	if err := config.NewConfig(nil).LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, serviceName, cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Printf("Failed to shutdown logger: %v", err)
		}
	}()

	if safe, err := models.FilterSensitiveFields(&cfg); err == nil {
		mainLogger.Info().Interface("config", safe).Msg("Loaded configuration")
	}

	shutdownTelemetry := initTelemetry(ctx, &cfg, mainLogger)
	defer shutdownTelemetry()

	nc, err := natsutil.Connect(&cfg.Consumer.NATS, serviceName, mainLogger)
	if err != nil {
		return err
	}

	var opts []registry.Option

	if cfg.Consumer.CommandPrefix != "" {
		opts = append(opts, registry.WithFirmwareOps(fwevents.NewFirmwareCommands(nc, cfg.Consumer.CommandPrefix)))
	}

	if cfg.Consumer.NotifyPrefix != "" {
		opts = append(opts, registry.WithNotifier(fwevents.NewNotifications(nc, cfg.Consumer.NotifyPrefix, mainLogger)))
	}

	reg, err := registry.New(&cfg.Registry, mainLogger, opts...)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create registry: %w", err)
	}

	defer func() {
		if err := reg.Close(); err != nil {
			mainLogger.Warn().Err(err).Msg("Failed to unregister registry metrics")
		}
	}()

	for _, v := range cfg.Vdevs {
		if err := reg.AttachVdev(v.VdevID, v.PdevID, v.MAC); err != nil {
			nc.Close()
			return fmt.Errorf("failed to attach vdev %d: %w", v.VdevID, err)
		}
	}

	dispatcher := ingest.NewDispatcher(reg, cfg.Registry.NumPdevs, cfg.QueueDepth, mainLogger)

	svc, err := fwevents.NewService(&cfg.Consumer, dispatcher, reg, mainLogger,
		fwevents.WithConn(nc), fwevents.WithAdmin(reg))
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create firmware event service: %w", err)
	}

	audit := &auditor{
		source:    reg,
		interval:  time.Duration(cfg.AuditInterval),
		threshold: time.Duration(cfg.StuckThreshold),
		logger:    mainLogger,
	}

	return lifecycle.RunService(ctx, &lifecycle.ServerOptions{
		ServiceName:     serviceName,
		Service:         svc,
		Logger:          mainLogger,
		ShutdownTimeout: shutdownTimeout,
		Background:      []func(context.Context) error{audit.Run},
	})
}

// initTelemetry starts OTLP metric and trace export when configured. The
// returned func flushes traces; metrics flush with ShutdownLogger.
func initTelemetry(ctx context.Context, cfg *Config, log logger.Logger) func() {
	_, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{ServiceName: serviceName, OTel: cfg.OTel})

	switch {
	case err == nil:
		log.Info().Msg("OTel metrics export enabled")
	case errors.Is(err, logger.ErrOTelMetricsDisabled):
		log.Debug().Msg("OTel metrics export disabled")
	default:
		log.Warn().Err(err).Msg("Failed to initialize OTel metrics")
	}

	tp, err := logger.InitializeTracing(ctx, logger.TracingConfig{ServiceName: serviceName, Logger: log, OTel: cfg.OTel})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing")

		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}
