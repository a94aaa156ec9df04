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
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/models"
)

const pipelineSlot = "{0}"

// ErrInvalidSettings is returned when synthesis inputs break the file's invariants.
var ErrInvalidSettings = errors.New("invalid device settings")

var framerateRe = regexp.MustCompile(`^[1-9][0-9]*/[1-9][0-9]*$`)

// Settings are the operator inputs and defaults merged into the device config.
type Settings struct {
	TriggerMode  string
	ExposureTime float64
	Gain         float64

	Pipeline  string
	Width     int
	Height    int
	Framerate string
}

// SettingsFromConfig takes the camera section and the resolved trigger mode.
func SettingsFromConfig(c config.CameraConfig, triggerMode string) Settings {
	return Settings{
		TriggerMode:  triggerMode,
		ExposureTime: c.ExposureTime,
		Gain:         c.Gain,
		Pipeline:     c.Pipeline,
		Width:        c.Width,
		Height:       c.Height,
		Framerate:    c.Framerate,
	}
}

// Overrides are the operational properties that always replace live values.
func (s Settings) Overrides() map[string]interface{} {
	return map[string]interface{}{
		models.PropertyTriggerMode:  s.TriggerMode,
		models.PropertyExposureAuto: models.TriggerModeOff,
		models.PropertyGainAuto:     models.TriggerModeOff,
		models.PropertyExposureTime: s.ExposureTime,
		models.PropertyGain:         s.Gain,
	}
}

// Validate checks the invariants of the generated file.
func (s Settings) Validate() error {
	if n := strings.Count(s.Pipeline, pipelineSlot); n != 1 {
		return fmt.Errorf("%w: pipeline must contain exactly one %s slot, found %d", ErrInvalidSettings, pipelineSlot, n)
	}

	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: geometry must be positive, got %dx%d", ErrInvalidSettings, s.Width, s.Height)
	}

	if !framerateRe.MatchString(s.Framerate) {
		return fmt.Errorf("%w: framerate %q must be N/D", ErrInvalidSettings, s.Framerate)
	}

	if s.TriggerMode != models.TriggerModeOn && s.TriggerMode != models.TriggerModeOff {
		return fmt.Errorf("%w: trigger mode %q must be %s or %s", ErrInvalidSettings, s.TriggerMode, models.TriggerModeOn, models.TriggerModeOff)
	}

	if s.ExposureTime < 0 || s.Gain < 0 {
		return fmt.Errorf("%w: exposure time and gain must not be negative", ErrInvalidSettings)
	}

	return nil
}

// Synthesize builds the device config: live properties overlaid by the operational
// overrides, which win on shared keys. The descriptor is not modified.
func Synthesize(desc *models.CameraDescriptor, s Settings) (*models.DeviceConfig, error) {
	if desc == nil {
		return nil, ErrNoDevice
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	props := make(map[string]interface{}, len(desc.Properties)+5)
	maps.Copy(props, desc.Properties)
	maps.Copy(props, s.Overrides())

	return &models.DeviceConfig{
		Pipeline:   s.Pipeline,
		Serial:     desc.Serial,
		Height:     s.Height,
		Width:      s.Width,
		Framerate:  s.Framerate,
		Properties: props,
	}, nil
}
