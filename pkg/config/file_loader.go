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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var (
	errUnsetVariable = errors.New("config references unset environment variable")
	errTrailingData  = errors.New("unexpected data after JSON document")
)

//nolint:gochecknoglobals // compiled once
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FileConfigLoader loads configuration from a local JSON file. ${NAME}
// references are replaced from the environment before decoding. Unknown keys
// and unset variables fail the load.
type FileConfigLoader struct {
	lookup func(string) (string, bool)
}

func (f *FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	expanded, err := f.expand(data)
	if err != nil {
		return fmt.Errorf("failed to expand '%s': %w", path, err)
	}

	dec := json.NewDecoder(strings.NewReader(expanded))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, errTrailingData)
	}

	return nil
}

func (f *FileConfigLoader) expand(data []byte) (string, error) {
	lookup := f.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var missing []string

	out := envRef.ReplaceAllStringFunc(string(data), func(ref string) string {
		name := envRef.FindStringSubmatch(ref)[1]

		value, ok := lookup(name)
		if !ok {
			missing = append(missing, name)
		}

		return value
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", errUnsetVariable, strings.Join(missing, ", "))
	}

	return out, nil
}
