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

// Package cli parses the camprov command line and dispatches subcommands.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Subcommand names.
const (
	CmdRun         = "run"
	CmdPatchBoot   = "patch-boot"
	CmdDeviceState = "devicestate"
	CmdRenderUnit  = "render-unit"
	CmdVersion     = "version"
	CmdHelp        = "help"
)

// SubcommandHandler defines the interface for parsing subcommand flags.
type SubcommandHandler interface {
	Parse(args []string, cfg *CmdConfig) error
}

// optionalBool is a boolean flag that remembers whether it was set.
type optionalBool struct {
	dst **bool
}

func (o optionalBool) String() string {
	if o.dst == nil || *o.dst == nil {
		return ""
	}

	return strconv.FormatBool(**o.dst)
}

func (o optionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}

	*o.dst = &v

	return nil
}

func (optionalBool) IsBoolFlag() bool { return true }

func optionalFloat(dst **float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}

		*dst = &v

		return nil
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { PrintUsage(stderr) }

	return fs
}

// registerCommon adds the flags every provisioning subcommand accepts.
func registerCommon(fs *flag.FlagSet, cfg *CmdConfig) {
	fs.StringVar(&cfg.ConfigFile, "config", "", "path to a JSON or YAML config file")
	fs.StringVar(&cfg.RepoURL, "repo", "", "application repository URL")
	fs.StringVar(&cfg.InstallDir, "install-dir", "", "parent directory for the checkout")
	fs.BoolVar(&cfg.NonInteractive, "non-interactive", false, "answer every question with its default")
	fs.BoolVar(&cfg.NonInteractive, "yes", false, "alias for -non-interactive")
	fs.BoolVar(&cfg.AllowUnsupportedOS, "allow-unsupported-os", false, "continue on an unsupported OS without asking")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "log level")
	fs.StringVar(&cfg.Trigger, "trigger", "", "hardware trigger mode (On or Off)")
	fs.Func("exposure", "exposure time", optionalFloat(&cfg.Exposure))
	fs.Func("gain", "gain", optionalFloat(&cfg.Gain))
}

func parseSet(fs *flag.FlagSet, args []string, cfg *CmdConfig) error {
	err := fs.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		cfg.Help = true
		return nil
	}

	if err != nil {
		return fmt.Errorf("parsing %s flags: %w", fs.Name(), err)
	}

	if fs.NArg() > 0 {
		return fmt.Errorf("%w for %s: %s", errUnexpectedArgs, fs.Name(), strings.Join(fs.Args(), " "))
	}

	return nil
}

// RunHandler handles flags for the full provisioning run.
type RunHandler struct {
	Stderr io.Writer
}

// Parse processes the command-line arguments for the run subcommand.
func (h RunHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := newFlagSet(CmdRun, h.Stderr)
	registerCommon(fs, cfg)
	fs.BoolVar(&cfg.SkipBoot, "skip-boot", false, "leave the boot config alone")
	fs.BoolVar(&cfg.SkipPackages, "skip-packages", false, "skip package and driver installation")
	fs.Var(optionalBool{&cfg.CreateService}, "create-service", "write the systemd unit")
	fs.Var(optionalBool{&cfg.Enable}, "enable", "enable the unit at boot")
	fs.Var(optionalBool{&cfg.Start}, "start", "start the unit now")

	return parseSet(fs, args, cfg)
}

// PatchBootHandler handles flags for the patch-boot subcommand.
type PatchBootHandler struct {
	Stderr io.Writer
}

// Parse processes the command-line arguments for the patch-boot subcommand.
func (h PatchBootHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := newFlagSet(CmdPatchBoot, h.Stderr)
	fs.StringVar(&cfg.ConfigFile, "config", "", "path to a JSON or YAML config file")
	fs.BoolVar(&cfg.NonInteractive, "non-interactive", false, "answer every question with its default")
	fs.BoolVar(&cfg.NonInteractive, "yes", false, "alias for -non-interactive")
	fs.BoolVar(&cfg.AllowUnsupportedOS, "allow-unsupported-os", false, "continue on an unsupported OS without asking")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "log level")

	return parseSet(fs, args, cfg)
}

// DeviceStateHandler handles flags for the devicestate subcommand.
type DeviceStateHandler struct {
	Stderr io.Writer
}

// Parse processes the command-line arguments for the devicestate subcommand.
func (h DeviceStateHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := newFlagSet(CmdDeviceState, h.Stderr)
	registerCommon(fs, cfg)
	fs.StringVar(&cfg.Output, "output", "", "file to write instead of <repo>/devicestate.json")

	return parseSet(fs, args, cfg)
}

// RenderUnitHandler handles flags for the render-unit subcommand.
type RenderUnitHandler struct {
	Stderr io.Writer
}

// Parse processes the command-line arguments for the render-unit subcommand.
func (h RenderUnitHandler) Parse(args []string, cfg *CmdConfig) error {
	fs := newFlagSet(CmdRenderUnit, h.Stderr)
	fs.StringVar(&cfg.ConfigFile, "config", "", "path to a JSON or YAML config file")
	fs.StringVar(&cfg.RepoURL, "repo", "", "application repository URL")
	fs.StringVar(&cfg.InstallDir, "install-dir", "", "parent directory for the checkout")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "log level")

	return parseSet(fs, args, cfg)
}

type noFlags struct{}

func (noFlags) Parse(args []string, cfg *CmdConfig) error {
	cfg.Args = args
	return nil
}

// ParseFlags parses args (without the program name). A leading flag or no
// arguments at all selects the run subcommand.
func ParseFlags(args []string, stderr io.Writer) (*CmdConfig, error) {
	cfg := &CmdConfig{SubCmd: CmdRun}

	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cfg.SubCmd = args[0]
		args = args[1:]
	}

	subcommands := map[string]SubcommandHandler{
		CmdRun:         RunHandler{Stderr: stderr},
		CmdPatchBoot:   PatchBootHandler{Stderr: stderr},
		CmdDeviceState: DeviceStateHandler{Stderr: stderr},
		CmdRenderUnit:  RenderUnitHandler{Stderr: stderr},
		CmdVersion:     noFlags{},
		CmdHelp:        noFlags{},
	}

	handler, ok := subcommands[cfg.SubCmd]
	if !ok {
		return cfg, fmt.Errorf("%w %q", errUnknownSubcommand, cfg.SubCmd)
	}

	if err := handler.Parse(args, cfg); err != nil {
		return cfg, err
	}

	if cfg.SubCmd == CmdHelp {
		cfg.Help = true
	}

	return cfg, nil
}
