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
	"time"

	"github.com/carverauto/camprov/pkg/logger"
)

// DefaultPipeline is the GStreamer template; {0} receives the caps string.
const DefaultPipeline = "tcambin name=tcam0 ! {0} ! videoconvert ! appsink name=sink"

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		InstallDir: "~/code",
		LockFile:   "/run/camprov.lock",
		Host: HostConfig{
			Platform: "debian",
			Version:  "12",
			Arch:     "aarch64",
		},
		Boot: BootConfig{
			Path:         "/boot/firmware/config.txt",
			Marker:       "i2c_arm_baudrate",
			Anchor:       "dtparam=i2c_arm=on",
			Parameter:    "i2c_arm_baudrate=10000",
			BackupSuffix: ".camprov.bak",
		},
		Packages: PackageConfig{
			Base: []string{
				"git", "build-essential", "pkg-config", "dpkg-dev", "unzip", "wget",
				"i2c-tools", "python3-dev", "python3-pip", "python3-setuptools",
			},
			Drivers: []DriverPackage{
				{
					Name: "tiscamera",
					URL:  "https://github.com/TheImagingSource/tiscamera/releases/download/v-tiscamera-1.1.1/tiscamera_1.1.1.4142_arm64_ubuntu_2004.deb",
				},
				{
					Name: "tcamdutils",
					URL:  "https://github.com/TheImagingSource/tiscamera/releases/download/v-tiscamera-1.1.1/tcamdutils_1.0.0.560_arm64.deb",
				},
				{
					Name: "tiscamera-tcamprop",
					URL:  "https://github.com/TheImagingSource/tiscamera/releases/download/v-tiscamera-1.1.1/tiscamera-tcamprop_1.1.1.4142_arm64_ubuntu_2004.deb",
				},
			},
			Media: []string{
				"gstreamer1.0-tools", "gstreamer1.0-plugins-base", "gstreamer1.0-plugins-good",
				"gstreamer1.0-plugins-bad", "gir1.2-gstreamer-1.0", "python3-gi", "python3-gst-1.0",
				"python3-opencv", "python3-numpy", "python3-scipy", "python3-flask",
				"python3-flask-cors", "gunicorn",
			},
			Pip: []string{"adafruit-blinka", "adafruit-circuitpython-tmp117"},
		},
		Camera: CameraConfig{
			ListCommand:     []string{"tcam-ctl", "-l"},
			DumpCommand:     []string{"tcam-ctl", "--save-json"},
			ExposureTime:    10000,
			Gain:            0,
			Pipeline:        DefaultPipeline,
			Width:           640,
			Height:          480,
			Framerate:       "30/1",
			OutputFile:      "devicestate.json",
			RebootOnMissing: true,
			RebootDelay:     Duration(10 * time.Second),
			RebootCommand:   []string{"systemctl", "reboot"},
		},
		Service: ServiceConfig{
			Name:        "thermalcam.service",
			Description: "Thermal camera measurement service",
			UnitDir:     "/etc/systemd/system",
			Mode:        ServiceModeDirect,
			Python:      "/usr/bin/python3",
			Entrypoint:  "main.py",
			Gunicorn: GunicornConfig{
				Binary:  "/usr/bin/gunicorn",
				App:     "main:app",
				Bind:    "0.0.0.0:5000",
				Threads: 8,
				Timeout: Duration(120 * time.Second),
			},
		},
		Timeouts: TimeoutConfig{
			Command:  Duration(2 * time.Minute),
			Install:  Duration(30 * time.Minute),
			Download: Duration(5 * time.Minute),
		},
		Logging: logger.DefaultConfig(),
	}
}
