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
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/astreg/pkg/consumers/fwevents"
	"github.com/carverauto/astreg/pkg/ingest"
	"github.com/carverauto/astreg/pkg/logger"
	"github.com/carverauto/astreg/pkg/models"
	"github.com/carverauto/astreg/pkg/registry"
)

const (
	defaultAuditInterval  = time.Minute
	defaultStuckThreshold = 30 * time.Second
)

var (
	errNoVdevs        = errors.New("at least one vdev is required")
	errVdevPdevRange  = errors.New("vdev pdev_id outside num_pdevs")
	errDuplicateVdev  = errors.New("duplicate vdev_id")
	errInvalidAudit   = errors.New("audit_interval and stuck_threshold must be positive")
	errInvalidQueueSz = errors.New("queue_depth must not be negative")
)

// Config is the astreg daemon configuration file.
type Config struct {
	Registry       registry.Config     `json:"registry"`
	QueueDepth     int                 `json:"queue_depth"`
	Vdevs          []models.VdevConfig `json:"vdevs"`
	Consumer       fwevents.Config     `json:"consumer"`
	Logging        *logger.Config      `json:"logging,omitempty"`
	OTel           *logger.OTelConfig  `json:"otel,omitempty"`
	AuditInterval  models.Duration     `json:"audit_interval"`
	StuckThreshold models.Duration     `json:"stuck_threshold"`
}

func defaultConfig() Config {
	return Config{
		Registry:       *registry.DefaultConfig(),
		QueueDepth:     ingest.DefaultQueueDepth,
		Consumer:       fwevents.DefaultConfig(),
		AuditInterval:  models.Duration(defaultAuditInterval),
		StuckThreshold: models.Duration(defaultStuckThreshold),
	}
}

func (c *Config) Validate() error {
	var errs []error

	c.Registry.ApplyDefaults()

	if err := c.Registry.Validate(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Consumer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("consumer: %w", err))
	}

	if c.QueueDepth < 0 {
		errs = append(errs, errInvalidQueueSz)
	}

	if c.AuditInterval <= 0 || c.StuckThreshold <= 0 {
		errs = append(errs, errInvalidAudit)
	}

	if len(c.Vdevs) == 0 {
		errs = append(errs, errNoVdevs)
	}

	seen := make(map[models.VdevID]struct{}, len(c.Vdevs))

	for i := range c.Vdevs {
		v := &c.Vdevs[i]

		if err := v.Validate(); err != nil {
			errs = append(errs, err)
		}

		if int(v.PdevID) >= c.Registry.NumPdevs {
			errs = append(errs, fmt.Errorf("vdev %d: %w", v.VdevID, errVdevPdevRange))
		}

		if _, dup := seen[v.VdevID]; dup {
			errs = append(errs, fmt.Errorf("vdev %d: %w", v.VdevID, errDuplicateVdev))
		}

		seen[v.VdevID] = struct{}{}
	}

	return errors.Join(errs...)
}
