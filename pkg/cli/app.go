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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/carverauto/camprov/pkg/bootconfig"
	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/devicestate"
	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/hostcheck"
	"github.com/carverauto/camprov/pkg/lifecycle"
	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
	"github.com/carverauto/camprov/pkg/pipeline"
	"github.com/carverauto/camprov/pkg/prompt"
	"github.com/carverauto/camprov/pkg/provision"
	"github.com/carverauto/camprov/pkg/repo"
	"github.com/carverauto/camprov/pkg/service"
	"github.com/carverauto/camprov/pkg/version"
)

// Exit codes.
const (
	ExitOK    = 0
	ExitError = 1
)

// Main parses args, runs the selected subcommand and returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	console := prompt.NewConsole(stderr)

	cmd, err := ParseFlags(args, stderr)
	if err != nil {
		console.Error("%v", err)
		return ExitError
	}

	if cmd.Help {
		PrintUsage(stdout)
		return ExitOK
	}

	if err := Execute(ctx, cmd, stdout, stderr); err != nil {
		console.Error("%v", err)
		return ExitError
	}

	return ExitOK
}

// Execute runs a parsed command.
func Execute(ctx context.Context, cmd *CmdConfig, stdout, stderr io.Writer) error {
	if cmd.SubCmd == CmdVersion {
		_, _ = fmt.Fprintln(stdout, "camprov", version.GetFullVersion())
		return nil
	}

	cfg, err := LoadConfig(ctx, cmd)
	if err != nil {
		return err
	}

	log, runID, err := lifecycle.CreateRunLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if cmd.SubCmd == CmdRenderUnit {
		return renderUnit(cfg, hostcheck.NewDiscoverer(log), stdout)
	}

	console := prompt.NewConsole(stdout)

	var prompter prompt.Prompter = prompt.NewTerminalPrompter()
	if cfg.NonInteractive || !prompt.IsInputFromTerminal() {
		prompter = prompt.NewDefaults(log)
	}

	runner := execx.NewExecRunner(
		lifecycle.CreateComponentLogger(log, "exec"),
		execx.WithDefaultTimeout(cfg.Timeouts.CommandTimeout()),
		execx.WithStream(stderr),
	)

	st := &pipeline.State{
		Config:        cfg,
		Runner:        runner,
		Prompter:      prompter,
		Console:       console,
		Logger:        log,
		AskInstallDir: askInstallDir(cfg, cmd),
		DevicePath:    cmd.Output,
	}

	stages, err := Stages(cmd.SubCmd, cfg, Deps{
		Runner:   runner,
		Prompter: prompter,
		Console:  console,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	log.Info().Str("subcommand", cmd.SubCmd).Str("version", version.GetVersion()).Msg("Starting camprov")

	report, err := pipeline.New(stages, lifecycle.CreateComponentLogger(log, "pipeline"),
		pipeline.WithLockFile(cfg.LockFile),
		pipeline.WithRunID(runID),
	).Run(ctx, st)

	if report != nil {
		for _, line := range report.Summary() {
			console.Println("  " + line)
		}
	}

	if err != nil {
		return err
	}

	if report.Deferred() {
		console.Warning("Provisioning paused; run camprov again after the reboot")
		return nil
	}

	console.Success("Provisioning finished")

	if st.Boot != nil && st.Boot.RebootRequired {
		console.Warning("Reboot to apply the %s change", cfg.Boot.Path)
	}

	return nil
}

// LoadConfig loads the config file and environment, applies the flags and validates.
func LoadConfig(ctx context.Context, cmd *CmdConfig) (*config.Config, error) {
	cfg, err := config.Load(ctx, cmd.ConfigFile, nil)
	if err != nil {
		return nil, err
	}

	ApplyOverrides(cfg, cmd)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// askInstallDir reports whether the operator should pick the install directory.
// A directory from the flag, the config file or the environment is used as is.
func askInstallDir(cfg *config.Config, cmd *CmdConfig) bool {
	if cfg.NonInteractive || cmd.InstallDir != "" {
		return false
	}

	return cfg.InstallDir == config.Default().InstallDir
}

// ApplyOverrides copies the flags that were given onto cfg.
func ApplyOverrides(cfg *config.Config, cmd *CmdConfig) {
	if cmd.RepoURL != "" {
		cfg.RepoURL = cmd.RepoURL
	}

	if cmd.InstallDir != "" {
		cfg.InstallDir = cmd.InstallDir
	}

	if cmd.NonInteractive {
		cfg.NonInteractive = true
	}

	if cmd.AllowUnsupportedOS {
		cfg.Host.AllowUnsupported = true
	}

	if cmd.SkipBoot {
		cfg.Boot.Skip = true
	}

	if cmd.SkipPackages {
		cfg.Packages.Skip = true
	}

	if cmd.Trigger != "" {
		cfg.Camera.TriggerMode = cmd.Trigger
	}

	if cmd.Exposure != nil {
		cfg.Camera.ExposureTime = *cmd.Exposure
	}

	if cmd.Gain != nil {
		cfg.Camera.Gain = *cmd.Gain
	}

	if cmd.CreateService != nil {
		cfg.Service.Create = cmd.CreateService
	}

	if cmd.Enable != nil {
		cfg.Service.Enable = cmd.Enable
	}

	if cmd.Start != nil {
		cfg.Service.Start = cmd.Start
	}

	if cmd.LogLevel != "" {
		if cfg.Logging == nil {
			cfg.Logging = logger.DefaultConfig()
		}

		cfg.Logging.Level = cmd.LogLevel
	}
}

// Deps are the shared collaborators the stages are built from.
type Deps struct {
	Runner   execx.Runner
	Prompter prompt.Prompter
	Console  *prompt.Console
	Logger   logger.Logger
}

// Stages assembles the pipeline for a subcommand.
func Stages(subcmd string, cfg *config.Config, d Deps) ([]pipeline.Stage, error) {
	component := func(name string) logger.Logger {
		return lifecycle.CreateComponentLogger(d.Logger, name)
	}

	host := pipeline.HostStage(
		hostcheck.NewDiscoverer(component("hostcheck")),
		hostcheck.NewGate(cfg.Host, d.Prompter, d.Console, component("hostcheck")),
		hostcheck.RequirePrivilege,
	)

	camera := pipeline.DeviceStage(devicestate.NewDiscoverer(
		d.Runner, cfg.Camera.ListCommand, cfg.Camera.DumpCommand, cfg.Timeouts.CommandTimeout(), component("devicestate"),
	), nil)

	switch subcmd {
	case CmdRun:
		stages := []pipeline.Stage{host, pipeline.BootStage(bootconfig.NewPatcher(cfg.Boot, component("bootconfig")))}
		stages = append(stages, pipeline.PackageStages(provision.New(d.Runner, cfg.Packages, cfg.Timeouts, component("provision")))...)

		return append(stages,
			pipeline.RepoStage(func(owner *models.ExecutionUser) pipeline.RepoMaterializer {
				return repo.New(d.Runner, owner, cfg.Timeouts.DownloadTimeout(), component("repo"))
			}),
			camera,
			pipeline.ServiceStage(service.NewManager(d.Runner, cfg.Service.UnitDir, cfg.Timeouts.CommandTimeout(), component("service"))),
		), nil
	case CmdPatchBoot:
		return []pipeline.Stage{host, pipeline.BootStage(bootconfig.NewPatcher(cfg.Boot, component("bootconfig")))}, nil
	case CmdDeviceState:
		return []pipeline.Stage{host, locateStage(), camera}, nil
	default:
		return nil, fmt.Errorf("%w %q", errUnknownSubcommand, subcmd)
	}
}

// locateStage points the environment at an existing checkout so devicestate
// can run on its own.
func locateStage() pipeline.Stage {
	return pipeline.NewStage("locate", func(_ context.Context, st *pipeline.State) error {
		if st.DevicePath != "" || filepath.IsAbs(st.Config.Camera.OutputFile) {
			return pipeline.ErrSkipped
		}

		if strings.TrimSpace(st.Config.RepoURL) == "" {
			return errDeviceOutput
		}

		name, err := repo.DeriveName(st.Config.RepoURL)
		if err != nil {
			return err
		}

		st.Env.InstallDir = config.ExpandHome(st.Config.InstallDir, st.Env.User.HomeDir)
		st.Env.RepoName = name

		if _, err := os.Stat(st.Env.RepoRoot()); err != nil {
			return fmt.Errorf("repository checkout: %w", err)
		}

		return nil
	})
}

type userResolver interface {
	ExecutionUser() (*models.ExecutionUser, error)
}

func renderUnit(cfg *config.Config, users userResolver, stdout io.Writer) error {
	if strings.TrimSpace(cfg.RepoURL) == "" {
		return repo.ErrRepoURLRequired
	}

	name, err := repo.DeriveName(cfg.RepoURL)
	if err != nil {
		return err
	}

	u, err := users.ExecutionUser()
	if err != nil {
		return err
	}

	installDir, err := filepath.Abs(config.ExpandHome(cfg.InstallDir, u.HomeDir))
	if err != nil {
		return fmt.Errorf("resolve install directory: %w", err)
	}

	d, err := service.NewDescriptor(cfg.Service, &models.HostEnvironment{
		User:       *u,
		InstallDir: installDir,
		RepoName:   name,
	})
	if err != nil {
		return err
	}

	unit, err := service.Render(d)
	if err != nil {
		return err
	}

	_, err = stdout.Write(unit)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("write unit: %w", err)
	}

	return nil
}
