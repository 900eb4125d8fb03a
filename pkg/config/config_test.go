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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
)

var errNoVdevs = errors.New("no vdevs")

type testRegistry struct {
	MaxPeers         int  `json:"max_peers"`
	StrictInvariants bool `json:"strict_invariants"`
}

type testTarget struct {
	ServiceName string                 `json:"service_name"`
	Registry    testRegistry           `json:"registry"`
	Audit       models.Duration        `json:"audit_interval"`
	Timeout     time.Duration          `json:"timeout"`
	Subjects    []string               `json:"subjects"`
	Vdevs       []models.VdevConfig    `json:"vdevs"`
	SelfMAC     models.MACAddress      `json:"self_mac"`
	Security    *models.SecurityConfig `json:"security,omitempty"`
	Logging     *logger.Config         `json:"logging,omitempty"`
}

func (t *testTarget) Validate() error {
	if len(t.Vdevs) == 0 {
		return errNoVdevs
	}

	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "astreg.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := writeConfig(t, `{
		"service_name": "astreg",
		"registry": {"max_peers": 64},
		"audit_interval": "30s",
		"vdevs": [{"vdev_id": 1, "pdev_id": 0, "mac": "02:00:00:00:00:01"}],
		"security": {"mode": "mtls", "cert_dir": "/etc/astreg/certs",
			"tls": {"cert_file": "client.pem", "key_file": "client-key.pem", "ca_file": "/abs/root.pem"}}
	}`)

	var cfg testTarget
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, 64, cfg.Registry.MaxPeers)
	assert.Equal(t, models.Duration(30*time.Second), cfg.Audit)
	require.Len(t, cfg.Vdevs, 1)
	assert.Equal(t, models.MustParseMAC("02:00:00:00:00:01"), cfg.Vdevs[0].MAC)

	require.NotNil(t, cfg.Security)
	assert.Equal(t, "/etc/astreg/certs/client.pem", cfg.Security.TLS.CertFile)
	assert.Equal(t, "/etc/astreg/certs/client-key.pem", cfg.Security.TLS.KeyFile)
	assert.Equal(t, "/abs/root.pem", cfg.Security.TLS.CAFile)
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := writeConfig(t, `{"service_name": "astreg"}`)

	var cfg testTarget
	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	require.ErrorIs(t, err, errNoVdevs)
}

func TestLoadAndValidateRejectsUnknownSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	var cfg testTarget
	err := NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg)
	require.ErrorIs(t, err, errInvalidConfigSource)
}

func TestLoadAndValidateRejectsUnknownKeys(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := writeConfig(t, `{"service_name": "astreg", "registry": {"max_peer": 64}}`)

	var cfg testTarget
	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)

	require.ErrorContains(t, err, "max_peer")
}

func TestFileLoaderExpandsEnvironment(t *testing.T) {
	env := map[string]string{"NATS_HOST": "nats.lab", "MAX_PEERS": "128"}
	loader := &FileConfigLoader{lookup: func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}}

	path := writeConfig(t, `{
		"service_name": "astreg-${NATS_HOST}",
		"registry": {"max_peers": ${MAX_PEERS}},
		"subjects": ["astreg.fw.$literal"]
	}`)

	var cfg testTarget
	require.NoError(t, loader.Load(context.Background(), path, &cfg))

	assert.Equal(t, "astreg-nats.lab", cfg.ServiceName)
	assert.Equal(t, 128, cfg.Registry.MaxPeers)
	assert.Equal(t, []string{"astreg.fw.$literal"}, cfg.Subjects)

	path = writeConfig(t, `{"service_name": "${UNSET_ONE}-${UNSET_TWO}"}`)

	err := loader.Load(context.Background(), path, &cfg)
	require.ErrorIs(t, err, errUnsetVariable)
	assert.ErrorContains(t, err, "UNSET_ONE, UNSET_TWO")
}

func TestFileLoaderRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, `{"service_name": "astreg"} {"service_name": "again"}`)

	var cfg testTarget
	err := (&FileConfigLoader{}).Load(context.Background(), path, &cfg)
	require.ErrorIs(t, err, errTrailingData)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	var cfg testTarget
	err := NewConfig(nil).LoadAndValidate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), &cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvConfigLoaderOverrides(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "")
	t.Setenv("ASTREG_CONFIG_JSON", `{"service_name": "from-json", "registry": {"max_peers": 8}}`)
	t.Setenv("ASTREG_REGISTRY_MAX_PEERS", "128")
	t.Setenv("ASTREG_REGISTRY_STRICT_INVARIANTS", "true")
	t.Setenv("ASTREG_AUDIT_INTERVAL", "1m")
	t.Setenv("ASTREG_TIMEOUT", "5s")
	t.Setenv("ASTREG_SUBJECTS", "astreg.fw.>, astreg.diag.*")
	t.Setenv("ASTREG_SELF_MAC", "02:00:00:00:00:0a")
	t.Setenv("ASTREG_VDEVS", `[{"vdev_id": 2, "pdev_id": 1, "mac": "02:00:00:00:00:02"}]`)

	var cfg testTarget
	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, "from-json", cfg.ServiceName)
	assert.Equal(t, 128, cfg.Registry.MaxPeers)
	assert.True(t, cfg.Registry.StrictInvariants)
	assert.Equal(t, models.Duration(time.Minute), cfg.Audit)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"astreg.fw.>", "astreg.diag.*"}, cfg.Subjects)
	assert.Equal(t, models.MustParseMAC("02:00:00:00:00:0a"), cfg.SelfMAC)
	require.Len(t, cfg.Vdevs, 1)
	assert.Equal(t, models.PdevID(1), cfg.Vdevs[0].PdevID)

	assert.Nil(t, cfg.Security, "pointer sections stay nil without matching variables")
	assert.Nil(t, cfg.Logging)
}

func TestEnvConfigLoaderAllocatesNestedPointer(t *testing.T) {
	t.Setenv("TEST_LOGGING_LEVEL", "debug")
	t.Setenv("TEST_SECURITY_MODE", "mtls")
	t.Setenv("TEST_SECURITY_CERT_DIR", "/certs")

	var cfg testTarget
	require.NoError(t, NewEnvConfigLoader(nil, "TEST_").Load(context.Background(), "", &cfg))

	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "debug", cfg.Logging.Level)
	require.NotNil(t, cfg.Security)
	assert.Equal(t, models.SecurityModeMTLS, cfg.Security.Mode)
	assert.Equal(t, "/certs", cfg.Security.CertDir)
}

func TestEnvConfigLoaderReportsBadValues(t *testing.T) {
	t.Setenv("BAD_REGISTRY_MAX_PEERS", "lots")
	t.Setenv("BAD_SELF_MAC", "not-a-mac")

	var cfg testTarget
	err := NewEnvConfigLoader(nil, "BAD_").Load(context.Background(), "", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BAD_REGISTRY_MAX_PEERS")
	assert.Contains(t, err.Error(), "BAD_SELF_MAC")
}

func TestEnvConfigLoaderRejectsNonStruct(t *testing.T) {
	var n int
	require.ErrorIs(t, NewEnvConfigLoader(nil, "X_").Load(context.Background(), "", &n), ErrDstMustBePointerToStruct)

	var cfg testTarget
	require.ErrorIs(t, NewEnvConfigLoader(nil, "X_").Load(context.Background(), "", cfg), ErrDstMustBeNonNilPointer)
}

func TestNormalizeTLSPaths(t *testing.T) {
	tls := models.TLSConfig{CertFile: "a.pem", KeyFile: "/abs/b.pem"}
	NormalizeTLSPaths(&tls, "/certs")

	assert.Equal(t, "/certs/a.pem", tls.CertFile)
	assert.Equal(t, "/abs/b.pem", tls.KeyFile)
	assert.Empty(t, tls.CAFile)

	NormalizeTLSPaths(&tls, "/certs")
	assert.Equal(t, "/certs/a.pem", tls.CertFile)
}
