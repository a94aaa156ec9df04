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

package devicestate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/carverauto/camprov/pkg/fsutil"
	"github.com/carverauto/camprov/pkg/models"
)

const fileMode = 0o644

// Marshal renders cfg with the on-disk key order; property keys are sorted.
func Marshal(cfg *models.DeviceConfig) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")

	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode device config: %w", err)
	}

	return buf.Bytes(), nil
}

// Write atomically replaces path with cfg, verifies it by reading it back and
// hands it to owner.
func Write(path string, cfg *models.DeviceConfig, owner *models.ExecutionUser) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := fsutil.WriteVerified(path, data, fileMode); err != nil {
		return fmt.Errorf("write device config: %w", err)
	}

	got, err := Load(path)
	if err != nil {
		return err
	}

	if got.Serial != cfg.Serial || got.Pipeline != cfg.Pipeline {
		return fmt.Errorf("write device config: %w: %s", fsutil.ErrVerifyMismatch, path)
	}

	return fsutil.ChownTo(path, owner)
}

// Load reads a device config file, keeping property numbers as json.Number.
func Load(path string) (*models.DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var cfg models.DeviceConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, &ParseError{What: "device config " + path, Err: err}
	}

	if cfg.Properties == nil {
		return nil, &ParseError{What: "device config " + path, Err: errors.New("missing properties")}
	}

	return &cfg, nil
}
