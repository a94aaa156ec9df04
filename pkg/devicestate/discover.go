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

// Package devicestate discovers the attached camera and writes the devicestate.json
// file the camera application starts from.
package devicestate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
)

var errNoCommand = errors.New("discovery command is empty")

// Discoverer reads the first camera's serial and live properties through the vendor CLI.
// Only the first enumerated device is used.
type Discoverer struct {
	runner      execx.Runner
	listCommand []string
	dumpCommand []string
	timeout     time.Duration
	logger      logger.Logger
}

// NewDiscoverer creates a Discoverer. The serial is appended to dumpCommand.
func NewDiscoverer(runner execx.Runner, listCommand, dumpCommand []string, timeout time.Duration, log logger.Logger) *Discoverer {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Discoverer{
		runner:      runner,
		listCommand: listCommand,
		dumpCommand: dumpCommand,
		timeout:     timeout,
		logger:      log,
	}
}

// RequiredTools names the executables discovery depends on.
func (d *Discoverer) RequiredTools() []string {
	var tools []string

	for _, cmd := range [][]string{d.listCommand, d.dumpCommand} {
		if len(cmd) > 0 && !slices.Contains(tools, cmd[0]) {
			tools = append(tools, cmd[0])
		}
	}

	return tools
}

// Discover returns the descriptor of the first camera, or ErrNoDevice.
func (d *Discoverer) Discover(ctx context.Context) (*models.CameraDescriptor, error) {
	if err := execx.RequireTools(d.runner, d.RequiredTools()...); err != nil {
		return nil, err
	}

	listing, err := d.run(ctx, d.listCommand)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}

	serial, err := ParseSerial(string(listing.Stdout))
	if err != nil {
		return nil, err
	}

	d.logger.Info().Uint64("serial", serial).Msg("Found camera")

	dump, err := d.run(ctx, append(append([]string(nil), d.dumpCommand...), strconv.FormatUint(serial, 10)))
	if err != nil {
		return nil, fmt.Errorf("read properties of %d: %w", serial, err)
	}

	props, err := ParseProperties(dump.Stdout)
	if err != nil {
		return nil, err
	}

	d.logger.Info().Uint64("serial", serial).Int("properties", len(props)).Msg("Read camera properties")

	return &models.CameraDescriptor{Serial: serial, Properties: props}, nil
}

func (d *Discoverer) run(ctx context.Context, argv []string) (*execx.Result, error) {
	if len(argv) == 0 {
		return nil, errNoCommand
	}

	return d.runner.Run(ctx, execx.Command{
		Name:    argv[0],
		Args:    argv[1:],
		Timeout: d.timeout,
	})
}
