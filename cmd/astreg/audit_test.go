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
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
)

type fixedStuck struct {
	peers     []models.PeerStats
	threshold time.Duration
}

func (f *fixedStuck) StuckPeers(threshold time.Duration) []models.PeerStats {
	f.threshold = threshold
	return f.peers
}

func TestAuditorLogsStuckPeers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	src := &fixedStuck{peers: []models.PeerStats{{
		PeerID:        5,
		MAC:           models.MustParseMAC("aa:bb:cc:00:01:02"),
		RefCount:      1,
		DeletePending: true,
		PendingForMs:  45000,
	}}}

	a := &auditor{
		source:    src,
		interval:  time.Hour,
		threshold: 30 * time.Second,
		logger:    logger.NewWriterLogger(&buf, zerolog.InfoLevel),
	}

	assert.Equal(t, 1, a.check())
	assert.Equal(t, 30*time.Second, src.threshold)
	assert.Contains(t, buf.String(), `"peer_id":5`)
	assert.Contains(t, buf.String(), `"mac":"AA:BB:CC:00:01:02"`)
	assert.Contains(t, buf.String(), "Peer stuck in delete pending")
}

func TestAuditorRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	a := &auditor{
		source:    &fixedStuck{},
		interval:  time.Millisecond,
		threshold: time.Second,
		logger:    logger.NewTestLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Run(ctx))
}
