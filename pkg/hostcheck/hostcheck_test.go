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

package hostcheck

import (
	"bytes"
	"context"
	"errors"
	"os/user"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
	"github.com/carverauto/camprov/pkg/prompt"
)

var bookworm = models.OSIdentity{Platform: "debian", PlatformVersion: "12.5", KernelArch: "aarch64"}

func testDiscoverer(env map[string]string) *Discoverer {
	d := NewDiscoverer(logger.NewTestLogger())
	d.hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{Platform: "debian", PlatformVersion: "12.5", KernelArch: "aarch64"}, nil
	}
	d.getenv = func(k string) string { return env[k] }
	d.currentUser = func() (*user.User, error) {
		return &user.User{Username: "root", Uid: "0", Gid: "0", HomeDir: "/root"}, nil
	}
	d.lookupUser = func(name string) (*user.User, error) {
		if name != "pi" {
			return nil, user.UnknownUserError(name)
		}

		return &user.User{Username: "pi", Uid: "1000", Gid: "1000", HomeDir: "/home/pi"}, nil
	}

	return d
}

func TestDiscoverUsesSudoUser(t *testing.T) {
	env, err := testDiscoverer(map[string]string{"SUDO_USER": "pi"}).Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, bookworm, env.OS)
	assert.Equal(t, models.ExecutionUser{Name: "pi", UID: 1000, GID: 1000, HomeDir: "/home/pi"}, env.User)
}

func TestDiscoverFallsBackToCurrentUser(t *testing.T) {
	env, err := testDiscoverer(nil).Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "root", env.User.Name)
	assert.Equal(t, 0, env.User.UID)
}

func TestDiscoverUnknownSudoUser(t *testing.T) {
	_, err := testDiscoverer(map[string]string{"SUDO_USER": "ghost"}).Discover(context.Background())
	require.ErrorIs(t, err, ErrUserLookup)
}

func TestDiscoverToleratesHostInfoFailure(t *testing.T) {
	d := testDiscoverer(nil)
	d.hostInfo = func(context.Context) (*host.InfoStat, error) { return nil, errors.New("no /etc/os-release") }

	env, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unknown", env.OS.String())
	assert.False(t, Supported(env.OS, config.Default().Host))
}

func TestSupported(t *testing.T) {
	want := config.Default().Host

	tests := []struct {
		name string
		id   models.OSIdentity
		ok   bool
	}{
		{"exact", models.OSIdentity{Platform: "debian", PlatformVersion: "12", KernelArch: "aarch64"}, true},
		{"point release", bookworm, true},
		{"arm64 alias", models.OSIdentity{Platform: "Debian", PlatformVersion: "12.1", KernelArch: "arm64"}, true},
		{"older release", models.OSIdentity{Platform: "debian", PlatformVersion: "11.9", KernelArch: "aarch64"}, false},
		{"version prefix is dotted", models.OSIdentity{Platform: "debian", PlatformVersion: "120", KernelArch: "aarch64"}, false},
		{"wrong arch", models.OSIdentity{Platform: "debian", PlatformVersion: "12", KernelArch: "x86_64"}, false},
		{"wrong platform", models.OSIdentity{Platform: "ubuntu", PlatformVersion: "12.04", KernelArch: "aarch64"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.ok, Supported(tt.id, want))
		})
	}
}

func TestGateSupportedDoesNotPrompt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := prompt.NewMockPrompter(ctrl)

	g := NewGate(config.Default().Host, p, nil, nil)
	require.NoError(t, g.Check(context.Background(), bookworm))
}

func TestGateMismatchDeclined(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := prompt.NewMockPrompter(ctrl)
	p.EXPECT().Confirm(gomock.Any(), gomock.Any(), false).Return(false, nil)

	var out bytes.Buffer

	g := NewGate(config.Default().Host, p, prompt.NewConsole(&out), nil)
	err := g.Check(context.Background(), models.OSIdentity{Platform: "ubuntu", PlatformVersion: "24.04", KernelArch: "x86_64"})

	require.ErrorIs(t, err, ErrEnvironmentMismatch)
	assert.Contains(t, err.Error(), "ubuntu 24.04 (x86_64)")
	assert.Contains(t, out.String(), "Unsupported operating system")
}

func TestGateMismatchOverridden(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := prompt.NewMockPrompter(ctrl)
	p.EXPECT().Confirm(gomock.Any(), gomock.Any(), false).Return(true, nil)

	g := NewGate(config.Default().Host, p, nil, nil)
	require.NoError(t, g.Check(context.Background(), models.OSIdentity{Platform: "raspbian", PlatformVersion: "11"}))
}

func TestGateMismatchNonInteractiveDefaultsToNo(t *testing.T) {
	g := NewGate(config.Default().Host, prompt.NewDefaults(nil), nil, nil)

	err := g.Check(context.Background(), models.OSIdentity{Platform: "fedora", PlatformVersion: "40"})
	require.ErrorIs(t, err, ErrEnvironmentMismatch)
}

func TestGateAllowUnsupported(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := config.Default().Host
	cfg.AllowUnsupported = true

	g := NewGate(cfg, prompt.NewMockPrompter(ctrl), nil, nil)
	require.NoError(t, g.Check(context.Background(), models.OSIdentity{Platform: "arch"}))
}

func TestGatePromptError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	p := prompt.NewMockPrompter(ctrl)
	p.EXPECT().Confirm(gomock.Any(), gomock.Any(), false).Return(false, prompt.ErrAborted)

	g := NewGate(config.Default().Host, p, nil, nil)
	err := g.Check(context.Background(), models.OSIdentity{Platform: "arch"})
	require.ErrorIs(t, err, prompt.ErrAborted)
	assert.NotErrorIs(t, err, ErrEnvironmentMismatch)
}

func TestRequirePrivilege(t *testing.T) {
	orig := geteuid
	t.Cleanup(func() { geteuid = orig })

	geteuid = func() int { return 1000 }
	require.ErrorIs(t, RequirePrivilege(), ErrPrivilegeRequired)

	geteuid = func() int { return 0 }
	require.NoError(t, RequirePrivilege())
}
