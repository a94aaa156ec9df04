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

// Package config holds camprov options, their compiled-in defaults and the file/env loaders.
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/carverauto/camprov/pkg/logger"
)

const (
	// EnvPrefix prefixes every environment override, e.g. CAMPROV_REPO_URL.
	EnvPrefix = "CAMPROV_"

	ServiceModeDirect   = "direct"
	ServiceModeGunicorn = "gunicorn"
)

// ConfigLoader fills dst from a source identified by path.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Config is the full set of options for one provisioning run.
// It is built once before the pipeline starts and not mutated afterwards.
type Config struct {
	RepoURL        string         `json:"repo_url" yaml:"repo_url"`
	InstallDir     string         `json:"install_dir" yaml:"install_dir"`
	NonInteractive bool           `json:"non_interactive" yaml:"non_interactive"`
	LockFile       string         `json:"lock_file" yaml:"lock_file"`
	Host           HostConfig     `json:"host" yaml:"host"`
	Boot           BootConfig     `json:"boot" yaml:"boot"`
	Packages       PackageConfig  `json:"packages" yaml:"packages"`
	Camera         CameraConfig   `json:"camera" yaml:"camera"`
	Service        ServiceConfig  `json:"service" yaml:"service"`
	Timeouts       TimeoutConfig  `json:"timeouts" yaml:"timeouts"`
	Logging        *logger.Config `json:"logging" yaml:"logging"`
}

// HostConfig is the supported OS identity. Version matches by prefix.
type HostConfig struct {
	Platform         string `json:"platform" yaml:"platform"`
	Version          string `json:"version" yaml:"version"`
	Arch             string `json:"arch" yaml:"arch"`
	AllowUnsupported bool   `json:"allow_unsupported_os" yaml:"allow_unsupported_os"`
}

// BootConfig locates the I2C baud-rate tuning in the firmware config file.
type BootConfig struct {
	Skip         bool   `json:"skip" yaml:"skip"`
	Path         string `json:"path" yaml:"path"`
	Marker       string `json:"marker" yaml:"marker"`
	Anchor       string `json:"anchor" yaml:"anchor"`
	Parameter    string `json:"parameter" yaml:"parameter"`
	BackupSuffix string `json:"backup_suffix" yaml:"backup_suffix"`
}

// PackageConfig lists what the provisioner installs, in install order.
type PackageConfig struct {
	Skip    bool            `json:"skip" yaml:"skip"`
	Base    []string        `json:"base" yaml:"base"`
	Drivers []DriverPackage `json:"drivers" yaml:"drivers"`
	Media   []string        `json:"media" yaml:"media"`
	Pip     []string        `json:"pip" yaml:"pip"`
}

// DriverPackage is a vendor .deb fetched over HTTP. SHA256 is verified when set.
type DriverPackage struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// CameraConfig drives device discovery and the devicestate.json defaults.
type CameraConfig struct {
	ListCommand []string `json:"list_command" yaml:"list_command"`
	DumpCommand []string `json:"dump_command" yaml:"dump_command"`

	// TriggerMode is "On" or "Off"; empty asks the operator.
	TriggerMode  string  `json:"trigger_mode" yaml:"trigger_mode"`
	ExposureTime float64 `json:"exposure_time" yaml:"exposure_time"`
	Gain         float64 `json:"gain" yaml:"gain"`

	Pipeline   string `json:"pipeline" yaml:"pipeline"`
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
	Framerate  string `json:"framerate" yaml:"framerate"`
	OutputFile string `json:"output_file" yaml:"output_file"`

	RebootOnMissing bool     `json:"reboot_on_missing_camera" yaml:"reboot_on_missing_camera"`
	RebootDelay     Duration `json:"reboot_delay" yaml:"reboot_delay"`
	RebootCommand   []string `json:"reboot_command" yaml:"reboot_command"`
}

// ServiceConfig describes the systemd unit. Nil decisions are asked.
type ServiceConfig struct {
	Create *bool `json:"create" yaml:"create"`
	Enable *bool `json:"enable" yaml:"enable"`
	Start  *bool `json:"start" yaml:"start"`

	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	UnitDir     string `json:"unit_dir" yaml:"unit_dir"`
	Mode        string `json:"mode" yaml:"mode"`
	Python      string `json:"python" yaml:"python"`
	Entrypoint  string `json:"entrypoint" yaml:"entrypoint"`

	Gunicorn GunicornConfig `json:"gunicorn" yaml:"gunicorn"`
}

// GunicornConfig is used when Mode is gunicorn.
type GunicornConfig struct {
	Binary  string   `json:"binary" yaml:"binary"`
	App     string   `json:"app" yaml:"app"`
	Bind    string   `json:"bind" yaml:"bind"`
	Threads int      `json:"threads" yaml:"threads"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// TimeoutConfig bounds external commands.
type TimeoutConfig struct {
	Command  Duration `json:"command" yaml:"command"`
	Install  Duration `json:"install" yaml:"install"`
	Download Duration `json:"download" yaml:"download"`
}

// Load builds a Config from defaults, then the optional file at path, then CAMPROV_ environment overrides.
// Callers apply flag overrides afterwards and then call Validate.
func Load(ctx context.Context, path string, log logger.Logger) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := (&FileConfigLoader{logger: log}).Load(ctx, path, cfg); err != nil {
			return nil, err
		}
	}

	if err := NewEnvConfigLoader(log, EnvPrefix).Load(ctx, "", cfg); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	return cfg, nil
}

// ExpandHome resolves a leading "~" against home.
func ExpandHome(path, home string) string {
	if home == "" {
		return path
	}

	if path == "~" {
		return home
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}

	return path
}

// Bool returns a pointer to v, for the tri-state service decisions.
func Bool(v bool) *bool {
	return &v
}

func (t TimeoutConfig) CommandTimeout() time.Duration  { return time.Duration(t.Command) }
func (t TimeoutConfig) InstallTimeout() time.Duration  { return time.Duration(t.Install) }
func (t TimeoutConfig) DownloadTimeout() time.Duration { return time.Duration(t.Download) }
