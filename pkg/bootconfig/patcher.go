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

// Package bootconfig applies the I2C baud-rate tuning to the firmware boot config.
//
// The patch is idempotent: presence of the marker key on an active line is the only
// signal that it was applied. The first application keeps a copy of the original file,
// and that copy is never replaced by later runs.
package bootconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/fsutil"
	"github.com/carverauto/camprov/pkg/logger"
)

var (
	// ErrAnchorNotFound is returned when no active anchor line exists to extend.
	ErrAnchorNotFound = errors.New("anchor line not found in boot config")
	// ErrPatchNotVerified is returned when the rewritten file does not carry the marker.
	ErrPatchNotVerified = errors.New("boot config patch could not be verified")
)

// Result describes what Apply did.
type Result struct {
	Applied        bool
	BackupPath     string
	BackupCreated  bool
	RebootRequired bool
}

// Patcher edits one boot config file.
type Patcher struct {
	cfg    config.BootConfig
	logger logger.Logger
}

// NewPatcher creates a Patcher for cfg.
func NewPatcher(cfg config.BootConfig, log logger.Logger) *Patcher {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Patcher{cfg: cfg, logger: log}
}

// BackupPath is where the pre-patch copy lives.
func (p *Patcher) BackupPath() string {
	return p.cfg.Path + p.cfg.BackupSuffix
}

// Apply patches the file unless the marker is already present.
func (p *Patcher) Apply(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(p.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("stat boot config: %w", err)
	}

	original, err := os.ReadFile(p.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read boot config: %w", err)
	}

	content := string(original)

	if HasMarker(content, p.cfg.Marker) {
		p.logger.Info().
			Str("path", p.cfg.Path).
			Str("marker", p.cfg.Marker).
			Msg("Boot config already tuned, nothing to do")

		return &Result{Applied: false, BackupPath: p.BackupPath()}, nil
	}

	patched, ok := ExtendAnchor(content, p.cfg.Anchor, p.cfg.Parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrAnchorNotFound, p.cfg.Anchor, p.cfg.Path)
	}

	res := &Result{BackupPath: p.BackupPath()}

	created, err := p.backup(original, info.Mode().Perm())
	if err != nil {
		return nil, err
	}

	res.BackupCreated = created

	if err := fsutil.WriteAtomic(p.cfg.Path, []byte(patched), info.Mode().Perm()); err != nil {
		return nil, fmt.Errorf("write boot config: %w", err)
	}

	written, err := os.ReadFile(p.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read back boot config: %w", err)
	}

	if !HasMarker(string(written), p.cfg.Marker) {
		return nil, fmt.Errorf("%w: %s", ErrPatchNotVerified, p.cfg.Path)
	}

	res.Applied = true
	res.RebootRequired = true

	p.logger.Info().
		Str("path", p.cfg.Path).
		Str("parameter", p.cfg.Parameter).
		Str("backup", res.BackupPath).
		Msg("Applied boot config tuning")

	return res, nil
}

// backup writes the pre-patch copy once. It reports whether a new copy was made.
func (p *Patcher) backup(original []byte, perm os.FileMode) (bool, error) {
	path := p.BackupPath()

	if _, err := os.Stat(path); err == nil {
		p.logger.Info().Str("backup", path).Msg("Keeping existing boot config backup")

		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat boot config backup: %w", err)
	}

	if err := fsutil.WriteVerified(path, original, perm); err != nil {
		return false, fmt.Errorf("write boot config backup: %w", err)
	}

	return true, nil
}

// HasMarker reports whether an active (uncommented) line mentions marker.
func HasMarker(content, marker string) bool {
	for _, line := range strings.Split(content, "\n") {
		if isComment(line) {
			continue
		}

		if strings.Contains(line, marker) {
			return true
		}
	}

	return false
}

// ExtendAnchor appends ",param" to the first active line that is the anchor,
// with or without existing comma-separated parameters.
func ExtendAnchor(content, anchor, param string) (string, bool) {
	lines := strings.Split(content, "\n")

	for i, line := range lines {
		if isComment(line) {
			continue
		}

		body := strings.TrimRight(line, " \t\r")
		trimmed := strings.TrimSpace(body)

		if trimmed != anchor && !strings.HasPrefix(trimmed, anchor+",") {
			continue
		}

		lines[i] = body + "," + param + line[len(body):]

		return strings.Join(lines, "\n"), true
	}

	return content, false
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}
