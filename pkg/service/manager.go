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

package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/fsutil"
	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
)

const (
	systemctl = "systemctl"
	unitMode  = 0o644
)

// Result records which side effects Apply performed.
type Result struct {
	UnitPath  string
	Written   bool
	Reloaded  bool
	Enabled   bool
	Started   bool
	Restarted bool
}

// Manager installs units and drives them through systemctl.
type Manager struct {
	runner  execx.Runner
	unitDir string
	timeout time.Duration
	logger  logger.Logger
}

// NewManager creates a Manager writing units under unitDir.
func NewManager(runner execx.Runner, unitDir string, timeout time.Duration, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Manager{
		runner:  runner,
		unitDir: unitDir,
		timeout: timeout,
		logger:  log,
	}
}

// UnitPath is where the unit named name is installed.
func (m *Manager) UnitPath(name string) string {
	return filepath.Join(m.unitDir, name)
}

// Apply performs each gated side effect. Writing the unit is followed by a
// daemon-reload; enabling and starting are independent of writing and of each other.
func (m *Manager) Apply(ctx context.Context, d *models.ServiceUnitDescriptor, dec models.ServiceDecisions) (*Result, error) {
	res := &Result{}

	if d != nil {
		res.UnitPath = m.UnitPath(d.Name)
	}

	if !dec.Write && !dec.Enable && !dec.Start {
		m.logger.Info().Msg("Service setup declined, nothing to do")
		return res, nil
	}

	if err := validateDescriptor(d); err != nil {
		return res, err
	}

	if err := execx.RequireTools(m.runner, systemctl); err != nil {
		return res, err
	}

	if dec.Write {
		if err := m.write(ctx, d); err != nil {
			return res, err
		}

		res.Written = true

		if err := m.systemctl(ctx, "daemon-reload"); err != nil {
			return res, err
		}

		res.Reloaded = true
	}

	if dec.Enable {
		if err := m.systemctl(ctx, "enable", d.Name); err != nil {
			return res, err
		}

		res.Enabled = true

		m.logger.Info().Str("unit", d.Name).Msg("Enabled service at boot")
	}

	if dec.Start {
		restarted, err := m.start(ctx, d.Name)
		if err != nil {
			return res, err
		}

		res.Started = true
		res.Restarted = restarted
	}

	return res, nil
}

func (m *Manager) write(ctx context.Context, d *models.ServiceUnitDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Render(d)
	if err != nil {
		return err
	}

	path := m.UnitPath(d.Name)

	if err := fsutil.WriteVerified(path, data, unitMode); err != nil {
		return fmt.Errorf("install unit: %w", err)
	}

	m.logger.Info().Str("path", path).Msg("Wrote service unit")

	return nil
}

// start starts the unit, or restarts it when it is already running so a
// changed unit takes effect.
func (m *Manager) start(ctx context.Context, name string) (bool, error) {
	active, err := m.isActive(ctx, name)
	if err != nil {
		return false, err
	}

	verb := "start"
	if active {
		verb = "restart"
	}

	if err := m.systemctl(ctx, verb, name); err != nil {
		return false, err
	}

	m.logger.Info().Str("unit", name).Str("action", verb).Msg("Service running")

	return active, nil
}

func (m *Manager) isActive(ctx context.Context, name string) (bool, error) {
	_, err := m.runner.Run(ctx, execx.Command{
		Name:    systemctl,
		Args:    []string{"is-active", "--quiet", name},
		Timeout: m.timeout,
	})
	if err == nil {
		return true, nil
	}

	var cmdErr *execx.CommandError
	if errors.As(err, &cmdErr) && !errors.Is(err, execx.ErrCommandTimeout) {
		return false, nil
	}

	return false, fmt.Errorf("systemctl is-active %s: %w", name, err)
}

func (m *Manager) systemctl(ctx context.Context, args ...string) error {
	_, err := m.runner.Run(ctx, execx.Command{
		Name:    systemctl,
		Args:    args,
		Timeout: m.timeout,
	})
	if err != nil {
		return fmt.Errorf("systemctl %s: %w", args[0], err)
	}

	return nil
}
