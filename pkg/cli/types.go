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

// CmdConfig holds the parsed command line. Pointer fields are nil when the flag
// was not given, so the config file value (or a prompt) applies.
type CmdConfig struct {
	SubCmd string
	Help   bool
	Args   []string

	ConfigFile         string
	RepoURL            string
	InstallDir         string
	NonInteractive     bool
	AllowUnsupportedOS bool
	SkipBoot           bool
	SkipPackages       bool
	LogLevel           string

	Trigger  string
	Exposure *float64
	Gain     *float64
	Output   string

	CreateService *bool
	Enable        *bool
	Start         *bool
}
