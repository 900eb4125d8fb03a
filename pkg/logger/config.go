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
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultServiceName  = "astreg"
	defaultBatchTimeout = 5 * time.Second

	EnvLogLevel     = "ASTREG_LOG_LEVEL"
	EnvLogDebug     = "ASTREG_LOG_DEBUG"
	EnvOTelEndpoint = "ASTREG_OTEL_LOGS_ENDPOINT"
	EnvOTelHeaders  = "ASTREG_OTEL_LOGS_HEADERS"
)

// DefaultConfig logs JSON at info level to stdout with OTLP export off.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Output: "stdout",
		OTel: OTelConfig{
			ServiceName:  defaultServiceName,
			BatchTimeout: Duration(defaultBatchTimeout),
		},
	}
}

// WithEnv returns a copy of c with the ASTREG_LOG_* and ASTREG_OTEL_LOGS_*
// variables from lookup applied on top. Setting the OTLP endpoint enables
// log export.
func (c *Config) WithEnv(lookup func(string) (string, bool)) *Config {
	out := *c

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		out.Level = strings.ToLower(v)
	}

	if v, ok := lookup(EnvLogDebug); ok {
		if debug, err := strconv.ParseBool(v); err == nil {
			out.Debug = debug
		}
	}

	if v, ok := lookup(EnvOTelEndpoint); ok && v != "" {
		out.OTel.Endpoint = v
		out.OTel.Enabled = true
	}

	if v, ok := lookup(EnvOTelHeaders); ok && v != "" {
		out.OTel.Headers = parseHeaders(v, c.OTel.Headers)
	}

	if out.OTel.ServiceName == "" {
		out.OTel.ServiceName = defaultServiceName
	}

	return &out
}

// FromEnv applies the process environment.
func (c *Config) FromEnv() *Config {
	return c.WithEnv(os.LookupEnv)
}

// parseHeaders reads "k1=v1,k2=v2" over a copy of base.
func parseHeaders(s string, base map[string]string) map[string]string {
	headers := make(map[string]string, len(base))
	for k, v := range base {
		headers[k] = v
	}

	for _, pair := range strings.Split(s, ",") {
		if k, v, ok := strings.Cut(pair, "="); ok {
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}

	return headers
}
