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
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/models"
)

func TestParseSerial(t *testing.T) {
	serial, err := ParseSerial("Model: DMK 33UX250   Serial: 12345   Type: v4l2\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), serial)
}

func TestParseSerialTakesFirstDevice(t *testing.T) {
	serial, err := ParseSerial("Model: A Serial: 111 Type: aravis\nModel: B Serial: 222 Type: aravis\n")
	require.NoError(t, err)
	assert.Equal(t, uint64(111), serial)
}

func TestParseSerialNoDevice(t *testing.T) {
	for _, out := range []string{"", "  \n\t", "No devices found.\n"} {
		_, err := ParseSerial(out)
		require.ErrorIs(t, err, ErrNoDevice, "%q", out)
	}
}

func TestParseSerialMalformed(t *testing.T) {
	_, err := ParseSerial("Model: DMK Serial: abc\n")

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "Serial: abc")
	assert.NotErrorIs(t, err, ErrNoDevice)
}

func TestParseSerialOverflow(t *testing.T) {
	_, err := ParseSerial("Serial: 99999999999999999999999")

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseProperties(t *testing.T) {
	props, err := ParseProperties([]byte(`{"ExposureAuto": "On", "ExposureTime": 33333.5, "Gain": 3, "TriggerSoftware": null, "Offsets": [1, 2], "Nested": {"a": 1}, "Denoise": true}`))
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"ExposureAuto": "On",
		"ExposureTime": json.Number("33333.5"),
		"Gain":         json.Number("3"),
		"Denoise":      true,
	}, props)
}

func TestParsePropertiesWrapped(t *testing.T) {
	props, err := ParseProperties([]byte("warning: something\n{\"serial\": \"42\", \"properties\": {\"GainAuto\": \"Continuous\"}}\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"GainAuto": "Continuous"}, props)
}

func TestParsePropertiesPreservesPrecision(t *testing.T) {
	props, err := ParseProperties([]byte(`{"ExposureTime": 12345678901234567890}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), props["ExposureTime"])
}

func TestParsePropertiesEmpty(t *testing.T) {
	for _, in := range []string{"", "{}", `{"properties": {}}`, `{"a": [1], "b": null}`} {
		_, err := ParseProperties([]byte(in))
		require.ErrorIs(t, err, ErrEmptyProperties, in)
	}
}

func TestParsePropertiesMalformed(t *testing.T) {
	var perr *ParseError

	_, err := ParseProperties([]byte("not json"))
	require.ErrorAs(t, err, &perr)

	_, err = ParseProperties([]byte(`{"a": }`))
	require.ErrorAs(t, err, &perr)
}

func defaultSettings(trigger string) Settings {
	return SettingsFromConfig(config.Default().Camera, trigger)
}

func TestSynthesizeOverridesWin(t *testing.T) {
	desc := &models.CameraDescriptor{
		Serial: 7,
		Properties: map[string]interface{}{
			"TriggerMode":  "On",
			"ExposureAuto": "On",
			"GainAuto":     "On",
			"ExposureTime": json.Number("1"),
			"Gain":         json.Number("9"),
			"BalanceWhite": "Auto",
		},
	}

	s := defaultSettings(models.TriggerModeOff)
	s.ExposureTime = 5000
	s.Gain = 1.5

	cfg, err := Synthesize(desc, s)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"TriggerMode":  "Off",
		"ExposureAuto": "Off",
		"GainAuto":     "Off",
		"ExposureTime": 5000.0,
		"Gain":         1.5,
		"BalanceWhite": "Auto",
	}, cfg.Properties)

	assert.Equal(t, "On", desc.Properties["ExposureAuto"], "descriptor must not be modified")
	assert.Equal(t, uint64(7), cfg.Serial)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
	assert.Equal(t, "30/1", cfg.Framerate)
	assert.Equal(t, config.DefaultPipeline, cfg.Pipeline)
}

func TestSynthesizeRejectsInvalidSettings(t *testing.T) {
	desc := &models.CameraDescriptor{Serial: 1, Properties: map[string]interface{}{"a": "b"}}

	tests := map[string]func(*Settings){
		"two slots":     func(s *Settings) { s.Pipeline = "{0} ! {0}" },
		"no slot":       func(s *Settings) { s.Pipeline = "tcambin ! appsink" },
		"zero height":   func(s *Settings) { s.Height = 0 },
		"bad framerate": func(s *Settings) { s.Framerate = "thirty" },
		"bad trigger":   func(s *Settings) { s.TriggerMode = "on" },
		"negative gain": func(s *Settings) { s.Gain = -1 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			s := defaultSettings(models.TriggerModeOn)
			mutate(&s)

			_, err := Synthesize(desc, s)
			require.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devicestate.json")

	cfg, err := Synthesize(&models.CameraDescriptor{
		Serial:     12345,
		Properties: map[string]interface{}{"Zeta": "z", "Alpha": json.Number("1.25")},
	}, defaultSettings(models.TriggerModeOn))
	require.NoError(t, err)

	require.NoError(t, Write(path, cfg, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "12345", string(raw["serial"]), "serial is a JSON number")
	assert.Equal(t, `"30/1"`, string(raw["framerate"]))

	// stable key order: top-level fields in declaration order, properties sorted
	assert.Less(t, indexOf(data, `"pipeline"`), indexOf(data, `"serial"`))
	assert.Less(t, indexOf(data, `"serial"`), indexOf(data, `"height"`))
	assert.Less(t, indexOf(data, `"width"`), indexOf(data, `"framerate"`))
	assert.Less(t, indexOf(data, `"Alpha"`), indexOf(data, `"Zeta"`))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), got.Serial)
	assert.Equal(t, json.Number("1.25"), got.Properties["Alpha"])
	assert.Equal(t, "On", got.Properties["TriggerMode"])

	again, err := Marshal(cfg)
	require.NoError(t, err)
	assert.Equal(t, data, again, "output is deterministic")
}

func indexOf(data []byte, s string) int {
	return strings.Index(string(data), s)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devicestate.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"serial": "x"}`), 0o644))

	var perr *ParseError

	_, err := Load(path)
	require.ErrorAs(t, err, &perr)
}

func newDiscoverer(t *testing.T) (*Discoverer, *execx.MockRunner) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	runner := execx.NewMockRunner(ctrl)
	runner.EXPECT().LookPath("tcam-ctl").Return("/usr/bin/tcam-ctl", nil).AnyTimes()

	cam := config.Default().Camera

	return NewDiscoverer(runner, cam.ListCommand, cam.DumpCommand, 10*time.Second, nil), runner
}

func TestDiscoverEndToEnd(t *testing.T) {
	d, runner := newDiscoverer(t)

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c execx.Command) (*execx.Result, error) {
			assert.Equal(t, "tcam-ctl", c.Name)
			assert.Equal(t, []string{"-l"}, c.Args)
			assert.Equal(t, 10*time.Second, c.Timeout)

			return &execx.Result{Stdout: []byte("Model: DMK 33UX250 Serial: 42 Type: v4l2\n")}, nil
		}),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c execx.Command) (*execx.Result, error) {
			assert.Equal(t, []string{"--save-json", "42"}, c.Args)

			return &execx.Result{Stdout: []byte(`{"ExposureAuto":"On"}`)}, nil
		}),
	)

	desc, err := d.Discover(context.Background())
	require.NoError(t, err)

	cfg, err := Synthesize(desc, defaultSettings(models.TriggerModeOn))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "devicestate.json")
	require.NoError(t, Write(path, cfg, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out struct {
		Serial     json.Number            `json:"serial"`
		Properties map[string]interface{} `json:"properties"`
	}

	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, json.Number("42"), out.Serial)
	assert.Equal(t, "On", out.Properties["TriggerMode"])
	assert.Equal(t, "Off", out.Properties["ExposureAuto"])
}

func TestDiscoverNoDeviceSkipsDump(t *testing.T) {
	d, runner := newDiscoverer(t)

	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&execx.Result{}, nil).Times(1)

	_, err := d.Discover(context.Background())
	require.ErrorIs(t, err, ErrNoDevice)
}

func TestDiscoverDumpFailure(t *testing.T) {
	d, runner := newDiscoverer(t)

	gomock.InOrder(
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(&execx.Result{Stdout: []byte("Serial: 9")}, nil),
		runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, &execx.CommandError{
			Command: "tcam-ctl --save-json 9", ExitCode: 1, Err: errors.New("exit status 1"),
		}),
	)

	_, err := d.Discover(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyProperties)
	assert.Contains(t, err.Error(), "read properties of 9")

	var cmdErr *execx.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
}

func TestDiscoverMissingTool(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := execx.NewMockRunner(ctrl)
	runner.EXPECT().LookPath("tcam-ctl").Return("", errors.New("not found"))

	cam := config.Default().Camera
	d := NewDiscoverer(runner, cam.ListCommand, cam.DumpCommand, time.Second, nil)

	assert.Equal(t, []string{"tcam-ctl"}, d.RequiredTools())

	_, err := d.Discover(context.Background())
	require.ErrorIs(t, err, execx.ErrToolMissing)
}
