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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/carverauto/camprov/pkg/logger"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "~/code", cfg.InstallDir)
	assert.Equal(t, DefaultPipeline, cfg.Camera.Pipeline)
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, 480, cfg.Camera.Height)
	assert.Equal(t, "30/1", cfg.Camera.Framerate)
	assert.Len(t, cfg.Packages.Drivers, 3)
	assert.Equal(t, 2*time.Minute, cfg.Timeouts.CommandTimeout())
	assert.Equal(t, 30*time.Minute, cfg.Timeouts.InstallTimeout())
	assert.Equal(t, 5*time.Minute, cfg.Timeouts.DownloadTimeout())
	assert.Nil(t, cfg.Service.Create)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "camprov.yaml", `
repo_url: https://example.com/org/ThermalCam.git
camera:
  trigger_mode: "On"
  reboot_delay: 3s
timeouts:
  command: 30s
service:
  create: false
  mode: gunicorn
`)

	cfg, err := Load(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/org/ThermalCam.git", cfg.RepoURL)
	assert.Equal(t, "On", cfg.Camera.TriggerMode)
	assert.Equal(t, Duration(3*time.Second), cfg.Camera.RebootDelay)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.CommandTimeout())
	require.NotNil(t, cfg.Service.Create)
	assert.False(t, *cfg.Service.Create)
	assert.Nil(t, cfg.Service.Enable)
	assert.Equal(t, ServiceModeGunicorn, cfg.Service.Mode)

	// untouched defaults survive the overlay
	assert.Equal(t, 640, cfg.Camera.Width)
	assert.Equal(t, "/boot/firmware/config.txt", cfg.Boot.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "camprov.json", `{"install_dir": "/opt/apps", "timeouts": {"install": 60000000000}}`)

	cfg, err := Load(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/apps", cfg.InstallDir)
	assert.Equal(t, time.Minute, cfg.Timeouts.InstallTimeout())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	for name, content := range map[string]string{
		"bad.yaml": "camera:\n  trigger: On\n",
		"bad.json": `{"repo": "x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(context.Background(), writeFile(t, name, content), nil)
			require.Error(t, err)
		})
	}
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(context.Background(), writeFile(t, "empty.yml", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Camera, cfg.Camera)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMPROV_REPO_URL", "git@github.com:org/ThermalCam.git")
	t.Setenv("CAMPROV_CAMERA_TRIGGER_MODE", "Off")
	t.Setenv("CAMPROV_CAMERA_WIDTH", "1280")
	t.Setenv("CAMPROV_CAMERA_GAIN", "2.5")
	t.Setenv("CAMPROV_TIMEOUTS_INSTALL", "45m")
	t.Setenv("CAMPROV_SERVICE_ENABLE", "false")
	t.Setenv("CAMPROV_PACKAGES_PIP", "flask-sock, adafruit-blinka")
	t.Setenv("CAMPROV_LOGGING_LEVEL", "debug")

	cfg, err := Load(context.Background(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, "git@github.com:org/ThermalCam.git", cfg.RepoURL)
	assert.Equal(t, "Off", cfg.Camera.TriggerMode)
	assert.Equal(t, 1280, cfg.Camera.Width)
	assert.InDelta(t, 2.5, cfg.Camera.Gain, 0.0001)
	assert.Equal(t, 45*time.Minute, cfg.Timeouts.InstallTimeout())
	require.NotNil(t, cfg.Service.Enable)
	assert.False(t, *cfg.Service.Enable)
	assert.Nil(t, cfg.Service.Start)
	assert.Equal(t, []string{"flask-sock", "adafruit-blinka"}, cfg.Packages.Pip)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeFile(t, "camprov.yaml", "install_dir: /srv/file\n")
	t.Setenv("CAMPROV_INSTALL_DIR", "/srv/env")

	cfg, err := Load(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/env", cfg.InstallDir)
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("CAMPROV_CAMERA_HEIGHT", "tall")
	t.Setenv("CAMPROV_TIMEOUTS_COMMAND", "soon")

	_, err := Load(context.Background(), "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAMPROV_CAMERA_HEIGHT")
	assert.Contains(t, err.Error(), "CAMPROV_TIMEOUTS_COMMAND")
}

func TestEnvConfigJSON(t *testing.T) {
	t.Setenv("CAMPROV_CONFIG_JSON", `{"repo_url": "https://example.com/a/B.git", "install_dir": "/json"}`)
	t.Setenv("CAMPROV_INSTALL_DIR", "/env")

	cfg, err := Load(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a/B.git", cfg.RepoURL)
	assert.Equal(t, "/env", cfg.InstallDir)
}

func TestEnvLoaderRejectsNonPointer(t *testing.T) {
	l := NewEnvConfigLoader(nil, EnvPrefix)

	require.ErrorIs(t, l.Load(context.Background(), "", Config{}), ErrDstMustBeNonNilPointer)

	s := "x"
	require.ErrorIs(t, l.Load(context.Background(), "", &s), ErrDstMustBePointerToStruct)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"two pipeline slots", func(c *Config) { c.Camera.Pipeline = "a ! {0} ! {0}" }, "exactly one {0} slot"},
		{"no pipeline slot", func(c *Config) { c.Camera.Pipeline = "tcambin ! appsink" }, "found 0"},
		{"zero width", func(c *Config) { c.Camera.Width = 0 }, "geometry"},
		{"bad framerate", func(c *Config) { c.Camera.Framerate = "30" }, "N/D"},
		{"zero denominator", func(c *Config) { c.Camera.Framerate = "30/0" }, "N/D"},
		{"bad trigger", func(c *Config) { c.Camera.TriggerMode = "sometimes" }, "trigger_mode"},
		{"bad mode", func(c *Config) { c.Service.Mode = "fork" }, "service.mode"},
		{"bad unit name", func(c *Config) { c.Service.Name = "thermalcam" }, ".service"},
		{"bad bind", func(c *Config) {
			c.Service.Mode = ServiceModeGunicorn
			c.Service.Gunicorn.Bind = "0.0.0.0:99999"
		}, "invalid port"},
		{"no threads", func(c *Config) {
			c.Service.Mode = ServiceModeGunicorn
			c.Service.Gunicorn.Threads = 0
		}, "threads"},
		{"driver without url", func(c *Config) { c.Packages.Drivers[0].URL = "" }, "drivers[0]"},
		{"empty anchor", func(c *Config) { c.Boot.Anchor = " " }, "boot.anchor"},
		{"zero timeout", func(c *Config) { c.Timeouts.Download = 0 }, "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateSkippedBootIgnoresEmptyFields(t *testing.T) {
	cfg := Default()
	cfg.Boot = BootConfig{Skip: true}

	require.NoError(t, cfg.Validate())
}

func TestNormalizeTriggerMode(t *testing.T) {
	mode, ok := NormalizeTriggerMode(" on ")
	assert.True(t, ok)
	assert.Equal(t, "On", mode)

	mode, ok = NormalizeTriggerMode("OFF")
	assert.True(t, ok)
	assert.Equal(t, "Off", mode)

	_, ok = NormalizeTriggerMode("yes")
	assert.False(t, ok)
}

func TestDurationDecoding(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"1m30s"`), &d))
	assert.Equal(t, Duration(90*time.Second), d)

	require.NoError(t, json.Unmarshal([]byte(`1000000000`), &d))
	assert.Equal(t, Duration(time.Second), d)

	require.Error(t, json.Unmarshal([]byte(`true`), &d))
	require.Error(t, json.Unmarshal([]byte(`"later"`), &d))

	var holder struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("d: 2s"), &holder))
	assert.Equal(t, Duration(2*time.Second), holder.D)

	require.NoError(t, yaml.Unmarshal([]byte("d: 5000"), &holder))
	assert.Equal(t, Duration(5000), holder.D)

	out, err := json.Marshal(Duration(10 * time.Second))
	require.NoError(t, err)
	assert.JSONEq(t, `"10s"`, string(out))
}

func TestExpandHome(t *testing.T) {
	assert.Equal(t, "/home/pi/code", ExpandHome("~/code", "/home/pi"))
	assert.Equal(t, "/home/pi", ExpandHome("~", "/home/pi"))
	assert.Equal(t, "/opt/code", ExpandHome("/opt/code", "/home/pi"))
	assert.Equal(t, "~/code", ExpandHome("~/code", ""))
}
