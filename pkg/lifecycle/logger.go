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

package lifecycle

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/carverauto/astreg/pkg/logger"
)

// LoggerImpl implements the logger.Logger interface without using global state
type LoggerImpl struct {
	logger zerolog.Logger
}

var _ logger.Logger = (*LoggerImpl)(nil)

// NewLoggerImpl builds an injectable logger from config with the ASTREG_LOG_*
// environment applied on top. When OTel log export is enabled the JSON stream
// is mirrored to the collector.
func NewLoggerImpl(ctx context.Context, config *logger.Config) (*LoggerImpl, error) {
	return newLoggerImpl(ctx, config, nil)
}

func newLoggerImpl(ctx context.Context, config *logger.Config, out io.Writer) (*LoggerImpl, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	config = config.FromEnv()

	level, err := logger.Level(config)
	if err != nil {
		return nil, err
	}

	output, err := logger.Output(ctx, config, out)
	if err != nil {
		return nil, err
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return &LoggerImpl{logger: zlog}, nil
}

func (l *LoggerImpl) Debug() *zerolog.Event {
	return l.logger.Debug()
}

func (l *LoggerImpl) Info() *zerolog.Event {
	return l.logger.Info()
}

func (l *LoggerImpl) Warn() *zerolog.Event {
	return l.logger.Warn()
}

func (l *LoggerImpl) Error() *zerolog.Event {
	return l.logger.Error()
}

func (l *LoggerImpl) WithComponent(component string) logger.Logger {
	return &LoggerImpl{logger: l.logger.With().Str("component", component).Logger()}
}

// CreateComponentLogger creates a logger whose lines carry component.
func CreateComponentLogger(ctx context.Context, component string, config *logger.Config) (logger.Logger, error) {
	loggerImpl, err := NewLoggerImpl(ctx, config)
	if err != nil {
		return nil, err
	}

	return loggerImpl.WithComponent(component), nil
}

// ShutdownLogger flushes any pending OTel log records.
func ShutdownLogger() error {
	return logger.Shutdown()
}
