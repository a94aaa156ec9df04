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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/carverauto/camprov/pkg/bootconfig"
	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/devicestate"
	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/models"
	"github.com/carverauto/camprov/pkg/repo"
	"github.com/carverauto/camprov/pkg/service"
)

// Stage names, in run order.
const (
	StageHost        = "host"
	StageBoot        = "boot"
	StagePackages    = "packages"
	StageDrivers     = "drivers"
	StageMedia       = "media"
	StageRepo        = "repo"
	StageDeviceState = "devicestate"
	StageService     = "service"
)

var errNoEnvironment = errors.New("host environment has not been discovered")

// HostDiscoverer reads the host environment.
type HostDiscoverer interface {
	Discover(ctx context.Context) (*models.HostEnvironment, error)
}

// CompatibilityGate decides whether provisioning may continue on a host.
type CompatibilityGate interface {
	Check(ctx context.Context, id models.OSIdentity) error
}

// BootPatcher applies the boot config change.
type BootPatcher interface {
	Apply(ctx context.Context) (*bootconfig.Result, error)
}

// Installer installs the host's packages.
type Installer interface {
	InstallBase(ctx context.Context) error
	InstallDrivers(ctx context.Context) error
	InstallMedia(ctx context.Context) error
}

// RepoMaterializer clones or updates the application repository.
type RepoMaterializer interface {
	Materialize(ctx context.Context, url, parent string) (*repo.Result, error)
}

// CameraDiscoverer finds the attached camera.
type CameraDiscoverer interface {
	Discover(ctx context.Context) (*models.CameraDescriptor, error)
}

// ServiceApplier installs and drives the service unit.
type ServiceApplier interface {
	Apply(ctx context.Context, d *models.ServiceUnitDescriptor, dec models.ServiceDecisions) (*service.Result, error)
}

// HostStage discovers the environment, gates on OS compatibility and then checks
// privileges with requirePrivilege, which may be nil to skip the check.
func HostStage(d HostDiscoverer, g CompatibilityGate, requirePrivilege func() error) Stage {
	return NewStage(StageHost, func(ctx context.Context, st *State) error {
		env, err := d.Discover(ctx)
		if err != nil {
			return err
		}

		if err := g.Check(ctx, env.OS); err != nil {
			return err
		}

		if requirePrivilege != nil {
			if err := requirePrivilege(); err != nil {
				return err
			}
		}

		st.Env = env

		return nil
	})
}

// BootStage patches the boot config.
func BootStage(p BootPatcher) Stage {
	return NewStage(StageBoot, func(ctx context.Context, st *State) error {
		if st.Config.Boot.Skip {
			return ErrSkipped
		}

		res, err := p.Apply(ctx)
		if err != nil {
			return err
		}

		st.Boot = res

		if res.Applied {
			st.console().Success("Updated %s (backup at %s)", st.Config.Boot.Path, res.BackupPath)
			st.console().Warning("A reboot is required for %s to take effect", st.Config.Boot.Parameter)
		} else {
			st.console().Info("%s already configured", st.Config.Boot.Path)
		}

		return nil
	})
}

// PackageStages installs base packages, camera drivers and media packages.
func PackageStages(i Installer) []Stage {
	step := func(name, what string, install func(context.Context) error, skip func(*config.PackageConfig) bool) Stage {
		return NewStage(name, func(ctx context.Context, st *State) error {
			if st.Config.Packages.Skip || skip(&st.Config.Packages) {
				return ErrSkipped
			}

			st.console().Info("Installing %s", what)

			if err := install(ctx); err != nil {
				return err
			}

			st.console().Success("Installed %s", what)

			return nil
		})
	}

	return []Stage{
		step(StagePackages, "base packages", i.InstallBase, func(p *config.PackageConfig) bool { return len(p.Base) == 0 }),
		step(StageDrivers, "camera drivers", i.InstallDrivers, func(p *config.PackageConfig) bool { return len(p.Drivers) == 0 }),
		step(StageMedia, "media packages", i.InstallMedia, func(p *config.PackageConfig) bool { return len(p.Media) == 0 && len(p.Pip) == 0 }),
	}
}

// RepoStage materializes the repository under the install directory. newRepo
// receives the execution user so the checkout belongs to them.
func RepoStage(newRepo func(owner *models.ExecutionUser) RepoMaterializer) Stage {
	return NewStage(StageRepo, func(ctx context.Context, st *State) error {
		if st.Env == nil {
			return errNoEnvironment
		}

		if strings.TrimSpace(st.Config.RepoURL) == "" {
			return repo.ErrRepoURLRequired
		}

		dir, err := installDir(ctx, st)
		if err != nil {
			return err
		}

		res, err := newRepo(&st.Env.User).Materialize(ctx, st.Config.RepoURL, dir)
		if err != nil {
			return err
		}

		st.Repo = res
		st.Env.InstallDir = filepath.Dir(res.Path)
		st.Env.RepoName = filepath.Base(res.Path)

		st.console().Success("Repository %s at %s", res.Action, res.Path)

		return nil
	})
}

func installDir(ctx context.Context, st *State) (string, error) {
	dir := st.Config.InstallDir

	if st.AskInstallDir {
		answer, err := st.Prompter.Input(ctx, "Install directory", dir)
		if err != nil {
			return "", fmt.Errorf("asking for install directory: %w", err)
		}

		dir = answer
	}

	dir = config.ExpandHome(strings.TrimSpace(dir), st.Env.User.HomeDir)
	if dir == "" {
		return "", fmt.Errorf("%w: install directory is empty", config.ErrInvalidConfig)
	}

	return dir, nil
}

// DeviceStage discovers the camera and writes devicestate.json. When no camera is
// attached it schedules a reboot (if configured) and defers the rest of the run.
// sleep may be nil.
func DeviceStage(c CameraDiscoverer, sleep func(context.Context, time.Duration) error) Stage {
	if sleep == nil {
		sleep = sleepContext
	}

	return NewStage(StageDeviceState, func(ctx context.Context, st *State) error {
		cam := st.Config.Camera

		trigger, err := triggerMode(ctx, st)
		if err != nil {
			return err
		}

		settings := devicestate.SettingsFromConfig(cam, trigger)
		if err := settings.Validate(); err != nil {
			return err
		}

		desc, err := c.Discover(ctx)
		if errors.Is(err, devicestate.ErrNoDevice) {
			return noDevice(ctx, st, sleep)
		}

		if err != nil {
			return err
		}

		cfg, err := devicestate.Synthesize(desc, settings)
		if err != nil {
			return err
		}

		path, err := devicePath(st)
		if err != nil {
			return err
		}

		var owner *models.ExecutionUser
		if st.Env != nil {
			owner = &st.Env.User
		}

		if err := devicestate.Write(path, cfg, owner); err != nil {
			return err
		}

		st.Device = cfg
		st.DevicePath = path

		st.console().Success("Wrote %s for camera %d", path, cfg.Serial)

		return nil
	})
}

func triggerMode(ctx context.Context, st *State) (string, error) {
	if mode := st.Config.Camera.TriggerMode; mode != "" {
		normalized, ok := config.NormalizeTriggerMode(mode)
		if !ok {
			return "", fmt.Errorf("%w: trigger mode %q", config.ErrInvalidConfig, mode)
		}

		return normalized, nil
	}

	hw, err := st.Prompter.Confirm(ctx, "Use hardware trigger mode?", false)
	if err != nil {
		return "", fmt.Errorf("asking for trigger mode: %w", err)
	}

	if hw {
		return models.TriggerModeOn, nil
	}

	return models.TriggerModeOff, nil
}

func devicePath(st *State) (string, error) {
	if st.DevicePath != "" {
		return st.DevicePath, nil
	}

	out := st.Config.Camera.OutputFile
	if filepath.IsAbs(out) {
		return out, nil
	}

	if st.Env == nil || st.Env.RepoRoot() == "" {
		return "", fmt.Errorf("%w: no repository to place %s in", config.ErrInvalidConfig, out)
	}

	return filepath.Join(st.Env.RepoRoot(), out), nil
}

func noDevice(ctx context.Context, st *State, sleep func(context.Context, time.Duration) error) error {
	cam := st.Config.Camera

	st.console().Warning("No camera detected; the driver may need a reboot to bind to it")

	if !cam.RebootOnMissing {
		st.console().Info("Attach the camera, reboot and run camprov again")

		return fmt.Errorf("%w: %w", ErrDeferred, devicestate.ErrNoDevice)
	}

	delay := time.Duration(cam.RebootDelay)
	st.console().Warning("Rebooting in %s; run camprov again afterwards", delay)

	if err := sleep(ctx, delay); err != nil {
		return err
	}

	if len(cam.RebootCommand) == 0 {
		return fmt.Errorf("%w: reboot command is empty", config.ErrInvalidConfig)
	}

	_, err := st.Runner.Run(ctx, execx.Command{
		Name:    cam.RebootCommand[0],
		Args:    cam.RebootCommand[1:],
		Timeout: st.Config.Timeouts.CommandTimeout(),
	})
	if err != nil {
		return fmt.Errorf("reboot: %w", err)
	}

	return fmt.Errorf("%w: %w, reboot requested", ErrDeferred, devicestate.ErrNoDevice)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ServiceStage installs the unit. Unset decisions in the config are asked.
func ServiceStage(a ServiceApplier) Stage {
	return NewStage(StageService, func(ctx context.Context, st *State) error {
		if st.Env == nil {
			return errNoEnvironment
		}

		dec, err := serviceDecisions(ctx, st)
		if err != nil {
			return err
		}

		if !dec.Write && !dec.Enable && !dec.Start {
			return ErrSkipped
		}

		d, err := service.NewDescriptor(st.Config.Service, st.Env)
		if err != nil {
			return err
		}

		res, err := a.Apply(ctx, d, dec)
		if err != nil {
			return err
		}

		st.Service = res

		if res.Written {
			st.console().Success("Installed %s", res.UnitPath)
		}

		if res.Started {
			st.console().Success("%s is running", d.Name)
		}

		return nil
	})
}

func serviceDecisions(ctx context.Context, st *State) (models.ServiceDecisions, error) {
	svc := st.Config.Service

	ask := func(set *bool, question string) (bool, error) {
		if set != nil {
			return *set, nil
		}

		answer, err := st.Prompter.Confirm(ctx, question, true)
		if err != nil {
			return false, fmt.Errorf("asking %q: %w", question, err)
		}

		return answer, nil
	}

	var (
		dec models.ServiceDecisions
		err error
	)

	if dec.Write, err = ask(svc.Create, "Create the systemd service?"); err != nil {
		return dec, err
	}

	if dec.Enable, err = ask(svc.Enable, "Enable the service at boot?"); err != nil {
		return dec, err
	}

	if dec.Start, err = ask(svc.Start, "Start the service now?"); err != nil {
		return dec, err
	}

	return dec, nil
}
