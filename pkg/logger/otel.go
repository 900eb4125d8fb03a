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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	log "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

var (
	ErrOTelLoggingDisabled  = errors.New("OTel logging is disabled")
	ErrOTelEndpointRequired = errors.New("OTel endpoint is required when enabled")
)

const (
	maxAttributeValueLength = 4096
	truncatedKeysAttribute  = "otel.truncated_keys"
	ellipsis                = "..."
)

// OTelWriter mirrors zerolog's JSON lines into OTLP log records. Each distinct
// component field gets its own instrumentation scope.
type OTelWriter struct {
	provider *sdklog.LoggerProvider
	ctx      context.Context

	mu     sync.Mutex
	scopes map[string]log.Logger
}

type OTelConfig struct {
	Enabled      bool              `json:"enabled" yaml:"enabled"`
	Endpoint     string            `json:"endpoint" yaml:"endpoint"`
	Headers      map[string]string `json:"headers" yaml:"headers" sensitive:"true"`
	ServiceName  string            `json:"service_name" yaml:"service_name"`
	BatchTimeout Duration          `json:"batch_timeout" yaml:"batch_timeout"`
	Insecure     bool              `json:"insecure" yaml:"insecure"`
	TLS          *TLSConfig        `json:"tls,omitempty" yaml:"tls,omitempty"`
}

type TLSConfig struct {
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
	CAFile   string `json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
}

//nolint:gochecknoglobals // shut down from ShutdownOTEL
var otelProvider *sdklog.LoggerProvider

func (t *otlpTarget) logOptions() []otlploggrpc.Option {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(t.endpoint)}

	switch {
	case t.insecure:
		opts = append(opts, otlploggrpc.WithInsecure())
	case t.creds != nil:
		opts = append(opts, otlploggrpc.WithTLSCredentials(t.creds))
	}

	if len(t.headers) > 0 {
		opts = append(opts, otlploggrpc.WithHeaders(t.headers))
	}

	return opts
}

func NewOTELWriter(ctx context.Context, config OTelConfig) (*OTelWriter, error) {
	if !config.Enabled {
		return nil, ErrOTelLoggingDisabled
	}

	if config.Endpoint == "" {
		return nil, ErrOTelEndpointRequired
	}

	target, err := config.target()
	if err != nil {
		return nil, err
	}

	exporter, err := otlploggrpc.New(ctx, target.logOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	res, err := newResource(ctx, config.ServiceName, "")
	if err != nil {
		return nil, err
	}

	batchTimeout := time.Duration(config.BatchTimeout)
	if batchTimeout == 0 {
		batchTimeout = defaultBatchTimeout
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter, sdklog.WithExportTimeout(batchTimeout))),
	)

	otelProvider = provider
	global.SetLoggerProvider(provider)

	return &OTelWriter{
		provider: provider,
		ctx:      ctx,
		scopes:   make(map[string]log.Logger),
	}, nil
}

func (w *OTelWriter) Write(p []byte) (int, error) {
	if w.provider == nil {
		return len(p), nil
	}

	record, scope, ok := decodeRecord(p)
	if !ok {
		return len(p), nil
	}

	w.scope(scope).Emit(w.ctx, record)

	return len(p), nil
}

func (w *OTelWriter) scope(name string) log.Logger {
	w.mu.Lock()
	defer w.mu.Unlock()

	l, ok := w.scopes[name]
	if !ok {
		l = w.provider.Logger(name)
		w.scopes[name] = l
	}

	return l
}

// decodeRecord turns one zerolog JSON line into an OTel record and the scope
// it belongs to. Lines that are not JSON objects are dropped.
func decodeRecord(p []byte) (log.Record, string, bool) {
	entry := make(map[string]interface{})

	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()

	if err := dec.Decode(&entry); err != nil {
		return log.Record{}, "", false
	}

	var record log.Record

	if ts, ok := entry[zerolog.TimestampFieldName].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			record.SetTimestamp(parsed)
			delete(entry, zerolog.TimestampFieldName)
		}
	}

	if level, ok := entry[zerolog.LevelFieldName].(string); ok {
		record.SetSeverity(mapZerologLevelToOTEL(level))
		record.SetSeverityText(level)
		delete(entry, zerolog.LevelFieldName)
	}

	if message, ok := entry[zerolog.MessageFieldName].(string); ok {
		record.SetBody(log.StringValue(message))
		delete(entry, zerolog.MessageFieldName)
	}

	scope := defaultServiceName
	if component, ok := entry["component"].(string); ok && component != "" {
		scope = component
		delete(entry, "component")
	}

	attrs, truncated := entryAttributes(entry)
	record.AddAttributes(attrs...)

	if len(truncated) > 0 {
		record.AddAttributes(log.String(truncatedKeysAttribute, strings.Join(truncated, ",")))
	}

	return record, scope, true
}

// entryAttributes converts the remaining fields in key order. Integral numbers
// such as peer_id or pdev stay numeric so collectors can filter on them.
func entryAttributes(entry map[string]interface{}) ([]log.KeyValue, []string) {
	keys := make([]string, 0, len(entry))
	for key := range entry {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	attrs := make([]log.KeyValue, 0, len(keys))

	var truncated []string

	for _, key := range keys {
		kv, cut := attributeFor(key, entry[key])
		attrs = append(attrs, kv)

		if cut {
			truncated = append(truncated, key)
		}
	}

	return attrs, truncated
}

func attributeFor(key string, value interface{}) (log.KeyValue, bool) {
	switch v := value.(type) {
	case nil:
		return log.String(key, "null"), false
	case bool:
		return log.Bool(key, v), false
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return log.Int64(key, i), false
		}

		if f, err := v.Float64(); err == nil {
			return log.Float64(key, f), false
		}

		return log.String(key, v.String()), false
	case string:
		s, cut := truncateString(v, maxAttributeValueLength)

		return log.String(key, s), cut
	default:
		text := fmt.Sprintf("%v", v)
		if raw, err := json.Marshal(v); err == nil {
			text = string(raw)
		}

		s, cut := truncateString(text, maxAttributeValueLength)

		return log.String(key, s), cut
	}
}

// truncateString cuts value to limit bytes without splitting a UTF-8 rune.
func truncateString(value string, limit int) (string, bool) {
	if len(value) <= limit {
		return value, false
	}

	cut := max(limit-len(ellipsis), 0)

	truncated := value[:cut]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	return truncated + ellipsis, true
}

func mapZerologLevelToOTEL(level string) log.Severity {
	switch strings.ToLower(level) {
	case "trace":
		return log.SeverityTrace
	case "debug":
		return log.SeverityDebug
	case "info":
		return log.SeverityInfo
	case "warn", "warning":
		return log.SeverityWarn
	case "error":
		return log.SeverityError
	case "fatal", "panic":
		return log.SeverityFatal
	default:
		return log.SeverityInfo
	}
}

// ShutdownOTEL flushes the log and metric pipelines.
func ShutdownOTEL() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error

	if otelProvider != nil {
		errs = append(errs, otelProvider.Shutdown(ctx))
		otelProvider = nil
	}

	errs = append(errs, shutdownMeterProvider(ctx))

	return errors.Join(errs...)
}
