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

// Package hostcheck discovers the host environment and gates provisioning on OS compatibility.
package hostcheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"golang.org/x/sys/unix"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
	"github.com/carverauto/camprov/pkg/prompt"
)

var (
	// ErrEnvironmentMismatch is returned when the host OS is unsupported and the operator did not override.
	ErrEnvironmentMismatch = errors.New("unsupported host environment")
	// ErrPrivilegeRequired is returned when a mutating command runs without root.
	ErrPrivilegeRequired = errors.New("root privileges required (run with sudo)")
	// ErrUserLookup is returned when the execution user cannot be resolved.
	ErrUserLookup = errors.New("failed to resolve execution user")
)

// archAliases treats the Debian and kernel spellings of 64-bit ARM as equal.
var archAliases = map[string]string{
	"arm64": "aarch64",
}

var geteuid = unix.Geteuid

// Discoverer builds a HostEnvironment. The zero value is not usable; call NewDiscoverer.
type Discoverer struct {
	logger      logger.Logger
	hostInfo    func(context.Context) (*host.InfoStat, error)
	lookupUser  func(string) (*user.User, error)
	currentUser func() (*user.User, error)
	getenv      func(string) string
}

// NewDiscoverer returns a Discoverer backed by gopsutil and os/user.
func NewDiscoverer(log logger.Logger) *Discoverer {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Discoverer{
		logger:      log,
		hostInfo:    host.InfoWithContext,
		lookupUser:  user.Lookup,
		currentUser: user.Current,
		getenv:      os.Getenv,
	}
}

// Discover reads the OS identity and the execution user.
// The install directory and repository name are filled in by later stages.
func (d *Discoverer) Discover(ctx context.Context) (*models.HostEnvironment, error) {
	env := &models.HostEnvironment{}

	info, err := d.hostInfo(ctx)
	if err != nil {
		// An unreadable identity is treated as unsupported by the gate, not as a crash.
		d.logger.Warn().Err(err).Msg("Failed to read host OS identity")
	} else {
		env.OS = models.OSIdentity{
			Platform:        info.Platform,
			PlatformVersion: info.PlatformVersion,
			KernelArch:      info.KernelArch,
		}
	}

	u, err := d.ExecutionUser()
	if err != nil {
		return nil, err
	}

	env.User = *u

	d.logger.Info().
		Str("os", env.OS.String()).
		Str("user", env.User.Name).
		Int("uid", env.User.UID).
		Msg("Discovered host environment")

	return env, nil
}

// ExecutionUser is the account that invoked sudo, or the current account.
func (d *Discoverer) ExecutionUser() (*models.ExecutionUser, error) {
	var (
		u   *user.User
		err error
	)

	if name := strings.TrimSpace(d.getenv("SUDO_USER")); name != "" && name != "root" {
		u, err = d.lookupUser(name)
	} else {
		u, err = d.currentUser()
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserLookup, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("%w: uid %q: %w", ErrUserLookup, u.Uid, err)
	}

	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("%w: gid %q: %w", ErrUserLookup, u.Gid, err)
	}

	return &models.ExecutionUser{
		Name:    u.Username,
		UID:     uid,
		GID:     gid,
		HomeDir: u.HomeDir,
	}, nil
}

// Supported reports whether the identity satisfies the requirement.
// Version matches exactly or as a dotted prefix, so "12" accepts "12.5" but not "120".
func Supported(id models.OSIdentity, want config.HostConfig) bool {
	if !strings.EqualFold(id.Platform, want.Platform) {
		return false
	}

	if want.Version != "" && id.PlatformVersion != want.Version && !strings.HasPrefix(id.PlatformVersion, want.Version+".") {
		return false
	}

	if want.Arch != "" && normalizeArch(id.KernelArch) != normalizeArch(want.Arch) {
		return false
	}

	return true
}

func normalizeArch(arch string) string {
	arch = strings.ToLower(strings.TrimSpace(arch))
	if alias, ok := archAliases[arch]; ok {
		return alias
	}

	return arch
}

// Gate asks the operator before provisioning an unsupported host.
type Gate struct {
	cfg      config.HostConfig
	prompter prompt.Prompter
	console  *prompt.Console
	logger   logger.Logger
}

// NewGate creates a compatibility gate.
func NewGate(cfg config.HostConfig, p prompt.Prompter, console *prompt.Console, log logger.Logger) *Gate {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Gate{cfg: cfg, prompter: p, console: console, logger: log}
}

// Check returns nil when the host is supported or the operator overrides the mismatch.
func (g *Gate) Check(ctx context.Context, id models.OSIdentity) error {
	required := models.OSIdentity{Platform: g.cfg.Platform, PlatformVersion: g.cfg.Version, KernelArch: g.cfg.Arch}

	if Supported(id, g.cfg) {
		g.logger.Debug().Str("os", id.String()).Msg("Host OS is supported")

		return nil
	}

	g.logger.Warn().
		Str("detected", id.String()).
		Str("required", required.String()).
		Msg("Host OS does not match the supported environment")

	if g.console != nil {
		g.console.Banner("Unsupported operating system",
			fmt.Sprintf("Detected %s, expected %s.\nDrivers and packages may fail to install.", id, required))
	}

	if g.cfg.AllowUnsupported {
		g.logger.Warn().Msg("Continuing on unsupported OS (allow_unsupported_os is set)")

		return nil
	}

	proceed, err := g.prompter.Confirm(ctx, "Continue on an unsupported OS?", false)
	if err != nil {
		return fmt.Errorf("asking for OS override: %w", err)
	}

	if !proceed {
		return fmt.Errorf("%w: detected %s, expected %s", ErrEnvironmentMismatch, id, required)
	}

	g.logger.Warn().Msg("Operator chose to continue on unsupported OS")

	return nil
}

// RequirePrivilege fails unless the process runs with effective uid 0.
func RequirePrivilege() error {
	if geteuid() != 0 {
		return ErrPrivilegeRequired
	}

	return nil
}
