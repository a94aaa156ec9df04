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
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/carverauto/camprov/pkg/models"
)

const pipelineSlot = "{0}"

var (
	// ErrInvalidConfig wraps every structural validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	framerateRe = regexp.MustCompile(`^([1-9][0-9]*)/([1-9][0-9]*)$`)
)

// Validate checks structural invariants. It does not check for a repository URL;
// commands that need one report that themselves.
func (c *Config) Validate() error {
	var errs []error

	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.InstallDir) == "" {
		add("install_dir must not be empty")
	}

	if !c.Boot.Skip {
		for name, v := range map[string]string{
			"boot.path": c.Boot.Path, "boot.marker": c.Boot.Marker, "boot.anchor": c.Boot.Anchor,
			"boot.parameter": c.Boot.Parameter, "boot.backup_suffix": c.Boot.BackupSuffix,
		} {
			if strings.TrimSpace(v) == "" {
				add("%s must not be empty", name)
			}
		}
	}

	for i, d := range c.Packages.Drivers {
		if strings.TrimSpace(d.URL) == "" {
			add("packages.drivers[%d] has no url", i)
		}
	}

	errs = append(errs, c.Camera.validate()...)
	errs = append(errs, c.Service.validate()...)

	if c.Timeouts.Command <= 0 || c.Timeouts.Install <= 0 || c.Timeouts.Download <= 0 {
		add("timeouts must be positive")
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

func (c *CameraConfig) validate() []error {
	var errs []error

	if n := strings.Count(c.Pipeline, pipelineSlot); n != 1 {
		errs = append(errs, fmt.Errorf("camera.pipeline must contain exactly one %s slot, found %d", pipelineSlot, n))
	}

	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("camera geometry must be positive, got %dx%d", c.Width, c.Height))
	}

	if !framerateRe.MatchString(c.Framerate) {
		errs = append(errs, fmt.Errorf("camera.framerate %q must be N/D", c.Framerate))
	}

	if c.TriggerMode != "" {
		if _, ok := NormalizeTriggerMode(c.TriggerMode); !ok {
			errs = append(errs, fmt.Errorf("camera.trigger_mode %q must be On or Off", c.TriggerMode))
		}
	}

	if len(c.ListCommand) == 0 || len(c.DumpCommand) == 0 {
		errs = append(errs, errors.New("camera list_command and dump_command are required"))
	}

	if c.RebootOnMissing && len(c.RebootCommand) == 0 {
		errs = append(errs, errors.New("camera.reboot_command is required when reboot_on_missing_camera is set"))
	}

	if c.RebootDelay < 0 {
		errs = append(errs, errors.New("camera.reboot_delay must not be negative"))
	}

	if strings.TrimSpace(c.OutputFile) == "" {
		errs = append(errs, errors.New("camera.output_file must not be empty"))
	}

	return errs
}

func (s *ServiceConfig) validate() []error {
	var errs []error

	if !strings.HasSuffix(s.Name, ".service") || len(s.Name) == len(".service") {
		errs = append(errs, fmt.Errorf("service.name %q must end in .service", s.Name))
	}

	switch s.Mode {
	case ServiceModeDirect:
		if s.Python == "" || s.Entrypoint == "" {
			errs = append(errs, errors.New("service python and entrypoint are required in direct mode"))
		}
	case ServiceModeGunicorn:
		g := s.Gunicorn
		if g.Binary == "" || g.App == "" {
			errs = append(errs, errors.New("service.gunicorn binary and app are required"))
		}

		if g.Threads <= 0 {
			errs = append(errs, fmt.Errorf("service.gunicorn.threads must be positive, got %d", g.Threads))
		}

		if g.Timeout <= 0 {
			errs = append(errs, errors.New("service.gunicorn.timeout must be positive"))
		}

		if err := validateBind(g.Bind); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("service.mode %q must be %s or %s", s.Mode, ServiceModeDirect, ServiceModeGunicorn))
	}

	return errs
}

func validateBind(bind string) error {
	_, portStr, err := net.SplitHostPort(bind)
	if err != nil {
		return fmt.Errorf("service.gunicorn.bind %q: %w", bind, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("service.gunicorn.bind %q has an invalid port", bind)
	}

	return nil
}

// NormalizeTriggerMode maps case-insensitive on/off to the driver's spelling.
func NormalizeTriggerMode(mode string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "on":
		return models.TriggerModeOn, true
	case "off":
		return models.TriggerModeOff, true
	default:
		return "", false
	}
}
