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

package cli

import (
	"fmt"
	"io"
)

// PrintUsage writes the command help.
func PrintUsage(w io.Writer) {
	_, _ = fmt.Fprint(w, `Usage: camprov [subcommand] [options]

Provisions a Raspberry Pi camera host: boot config, packages and TIS drivers,
the application repository, devicestate.json and its systemd service.

Subcommands:
  run           full provisioning run (default)
  patch-boot    only apply the boot config change
  devicestate   only discover the camera and write devicestate.json
  render-unit   print the systemd unit without installing it
  version       print the version
  help          show this help message

Options:
  -config string          path to a JSON or YAML config file
  -repo string            application repository URL (CAMPROV_REPO_URL)
  -install-dir string     parent directory for the checkout (default "~/code")
  -non-interactive        answer every question with its default (alias -yes)
  -allow-unsupported-os   continue on an unsupported OS without asking
  -skip-boot              leave the boot config alone
  -skip-packages          skip apt, driver and pip installation
  -trigger On|Off         hardware trigger mode
  -exposure float         exposure time written to devicestate.json
  -gain float             gain written to devicestate.json
  -create-service bool    write the systemd unit
  -enable bool            enable the unit at boot
  -start bool             start (or restart) the unit now
  -log-level string       trace, debug, info, warn or error
  -output string          devicestate: file to write instead of <repo>/devicestate.json

Examples:
  # Interactive provisioning
  sudo camprov -repo https://github.com/example/ThermalCam.git

  # Unattended, hardware-triggered, service installed but not started
  sudo camprov -repo https://github.com/example/ThermalCam.git -yes -trigger On -start=false

  # Regenerate devicestate.json after swapping the camera
  sudo camprov devicestate -output /home/pi/code/ThermalCam/devicestate.json
`)
}
