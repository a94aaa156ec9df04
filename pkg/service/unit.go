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

// Package service renders the systemd unit for the camera application and drives
// systemctl to install, enable and start it.
package service

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/models"
)

// ErrInvalidUnit is returned when a descriptor cannot be rendered into a valid unit.
var ErrInvalidUnit = errors.New("invalid service unit")

const unitTemplate = `[Unit]
Description={{.Description}}
After={{.After}}

[Service]
Type=simple
User={{.User}}
WorkingDirectory={{.WorkingDirectory}}
ExecStart={{.ExecStart}}
Restart={{.Restart}}
RestartSec={{.RestartSec}}

[Install]
WantedBy={{.WantedBy}}
`

var unitTmpl = template.Must(template.New("unit").Option("missingkey=error").Parse(unitTemplate))

type unitData struct {
	*models.ServiceUnitDescriptor
	After      string
	Restart    string
	RestartSec int
	WantedBy   string
}

// Render produces the unit file text for d.
func Render(d *models.ServiceUnitDescriptor) ([]byte, error) {
	if err := validateDescriptor(d); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	err := unitTmpl.Execute(&buf, unitData{
		ServiceUnitDescriptor: d,
		After:                 models.UnitAfter,
		Restart:               models.UnitRestartPolicy,
		RestartSec:            models.UnitRestartSeconds,
		WantedBy:              models.UnitWantedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("render unit %s: %w", d.Name, err)
	}

	return buf.Bytes(), nil
}

func validateDescriptor(d *models.ServiceUnitDescriptor) error {
	if d == nil {
		return fmt.Errorf("%w: no descriptor", ErrInvalidUnit)
	}

	if !strings.HasSuffix(d.Name, ".service") || strings.ContainsRune(d.Name, '/') {
		return fmt.Errorf("%w: name %q must be a bare *.service file name", ErrInvalidUnit, d.Name)
	}

	fields := []struct {
		key, value string
	}{
		{"Description", d.Description},
		{"User", d.User},
		{"WorkingDirectory", d.WorkingDirectory},
		{"ExecStart", d.ExecStart},
	}

	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidUnit, f.key)
		}

		// one directive per line; an embedded newline would inject directives
		if strings.ContainsAny(f.value, "\r\n") {
			return fmt.Errorf("%w: %s contains a line break", ErrInvalidUnit, f.key)
		}
	}

	if !filepath.IsAbs(d.WorkingDirectory) {
		return fmt.Errorf("%w: WorkingDirectory %q must be absolute", ErrInvalidUnit, d.WorkingDirectory)
	}

	return nil
}

// ExecStart builds the command line for the configured launch mode.
func ExecStart(cfg config.ServiceConfig, repoRoot string) (string, error) {
	switch cfg.Mode {
	case config.ServiceModeDirect, "":
		return joinCommand(cfg.Python, filepath.Join(repoRoot, cfg.Entrypoint)), nil
	case config.ServiceModeGunicorn:
		g := cfg.Gunicorn

		return joinCommand(
			g.Binary,
			"--workers", "1",
			"--worker-class", "gthread",
			"--threads", strconv.Itoa(g.Threads),
			"--bind", g.Bind,
			"--timeout", strconv.Itoa(int(time.Duration(g.Timeout)/time.Second)),
			g.App,
		), nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidUnit, cfg.Mode)
	}
}

// NewDescriptor assembles the unit for env from the service section.
func NewDescriptor(cfg config.ServiceConfig, env *models.HostEnvironment) (*models.ServiceUnitDescriptor, error) {
	root := env.RepoRoot()
	if root == "" {
		return nil, fmt.Errorf("%w: repository location is unknown", ErrInvalidUnit)
	}

	execStart, err := ExecStart(cfg, root)
	if err != nil {
		return nil, err
	}

	d := &models.ServiceUnitDescriptor{
		Name:             cfg.Name,
		Description:      cfg.Description,
		User:             env.User.Name,
		WorkingDirectory: root,
		ExecStart:        execStart,
	}

	if err := validateDescriptor(d); err != nil {
		return nil, err
	}

	return d, nil
}

// joinCommand quotes arguments for systemd's command-line parser.
func joinCommand(argv ...string) string {
	out := make([]string, len(argv))

	for i, a := range argv {
		if a == "" || strings.ContainsAny(a, " \t\"'\\") {
			a = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(a) + `"`
		}

		out[i] = a
	}

	return strings.Join(out, " ")
}
