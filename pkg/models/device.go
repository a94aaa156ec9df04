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

package models

// Trigger modes understood by the camera driver.
const (
	TriggerModeOn  = "On"
	TriggerModeOff = "Off"
)

// Property names the provisioner always sets, regardless of what the camera reports.
const (
	PropertyTriggerMode  = "TriggerMode"
	PropertyExposureAuto = "ExposureAuto"
	PropertyGainAuto     = "GainAuto"
	PropertyExposureTime = "ExposureTime"
	PropertyGain         = "Gain"
)

// CameraDescriptor is what discovery learns about the first attached camera.
type CameraDescriptor struct {
	Serial     uint64                 `json:"serial"`
	Properties map[string]interface{} `json:"properties"`
}

// DeviceConfig is the devicestate.json artifact consumed by the camera application.
// Field order matches the on-disk key order.
type DeviceConfig struct {
	Pipeline   string                 `json:"pipeline"`
	Serial     uint64                 `json:"serial"`
	Height     int                    `json:"height"`
	Width      int                    `json:"width"`
	Framerate  string                 `json:"framerate"`
	Properties map[string]interface{} `json:"properties"`
}
