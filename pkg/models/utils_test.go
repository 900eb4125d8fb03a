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

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterSensitiveFields(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected map[string]interface{}
		wantErr  bool
	}{
		{
			name: "NATSConfig drops token",
			input: &NATSConfig{
				URL:       "nats://127.0.0.1:4222",
				CredsFile: "/etc/astreg/nats.creds",
				Token:     "s3cret",
			},
			expected: map[string]interface{}{
				"url":        "nats://127.0.0.1:4222",
				"domain":     "",
				"creds_file": "/etc/astreg/nats.creds",
				"security":   nil,
			},
		},
		{
			name: "vdev bindings render MACs as text",
			input: struct {
				Vdevs []VdevConfig `json:"vdevs"`
			}{
				Vdevs: []VdevConfig{{VdevID: 1, PdevID: 0, MAC: MustParseMAC("02:00:00:00:00:01")}},
			},
			expected: map[string]interface{}{
				"vdevs": []interface{}{
					map[string]interface{}{
						"vdev_id": VdevID(1),
						"pdev_id": PdevID(0),
						"mac":     "02:00:00:00:00:01",
					},
				},
			},
		},
		{
			name: "nested struct with sensitive fields",
			input: struct {
				Name string `json:"name"`
				Auth struct {
					Username string `json:"username"`
					Password string `json:"password" sensitive:"true"`
				} `json:"auth"`
				internal string
			}{
				Name: "astreg",
				Auth: struct {
					Username string `json:"username"`
					Password string `json:"password" sensitive:"true"`
				}{Username: "admin", Password: "secret"},
				internal: "hidden",
			},
			expected: map[string]interface{}{
				"name": "astreg",
				"auth": map[string]interface{}{"username": "admin"},
			},
		},
		{
			name:     "nil input",
			input:    nil,
			expected: map[string]interface{}{},
		},
		{
			name:    "non-struct input",
			input:   "not a struct",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := FilterSensitiveFields(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
