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
	"time"

	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
)

type stuckSource interface {
	StuckPeers(threshold time.Duration) []models.PeerStats
}

// auditor periodically logs delete-pending peers whose references have
// outlived the threshold.
type auditor struct {
	source    stuckSource
	interval  time.Duration
	threshold time.Duration
	logger    logger.Logger
}

func (a *auditor) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.check()
		}
	}
}

func (a *auditor) check() int {
	stuck := a.source.StuckPeers(a.threshold)

	for i := range stuck {
		p := &stuck[i]

		a.logger.Warn().
			Uint16("peer_id", uint16(p.PeerID)).
			Str("mac", p.MAC.String()).
			Uint8("pdev_id", uint8(p.PdevID)).
			Int("ref_count", p.RefCount).
			Int64("pending_for_ms", p.PendingForMs).
			Msg("Peer stuck in delete pending")
	}

	return len(stuck)
}
