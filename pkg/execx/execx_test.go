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

package execx

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func requireShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunCapturesOutput(t *testing.T) {
	requireShell(t)

	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo hello; echo oops >&2"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output())
	assert.Equal(t, "oops\n", string(res.Stderr))
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunNonZeroExit(t *testing.T) {
	requireShell(t)

	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo broken >&2; exit 3"}})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Output, "broken")
	assert.Contains(t, err.Error(), `"sh -c`)
	assert.NotErrorIs(t, err, ErrCommandTimeout)
}

func TestRunTimeout(t *testing.T) {
	requireShell(t)

	r := NewExecRunner(nil)

	_, err := r.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCommandTimeout)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
}

func TestRunParentCancelled(t *testing.T) {
	requireShell(t)

	r := NewExecRunner(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 5"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunEmptyCommand(t *testing.T) {
	_, err := NewExecRunner(nil).Run(context.Background(), Command{})
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestRunEnvAndDir(t *testing.T) {
	requireShell(t)

	dir := t.TempDir()
	r := NewExecRunner(nil)

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", `echo "$CAMPROV_TEST_VALUE"; pwd`},
		Dir:  dir,
		Env:  []string{"CAMPROV_TEST_VALUE=present"},
	})
	require.NoError(t, err)

	lines := strings.Split(res.Output(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "present", lines[0])
	assert.Contains(t, lines[1], dir)
}

func TestRunStreamsOutput(t *testing.T) {
	requireShell(t)

	var buf bytes.Buffer

	r := NewExecRunner(nil, WithStream(&buf))

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo streamed"}, Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "streamed", res.Output())
	assert.Equal(t, "streamed\n", buf.String())
}

func TestCommandString(t *testing.T) {
	c := Command{Name: "git", Args: []string{"-C", "/opt/my repo", "pull", "--ff-only"}}
	assert.Equal(t, `git -C "/opt/my repo" pull --ff-only`, c.String())
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("short", 10))
	assert.Equal(t, "...6789", tail("0123456789", 4))
}

func TestRequireTools(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := NewMockRunner(ctrl)
	r.EXPECT().LookPath("git").Return("/usr/bin/git", nil)
	r.EXPECT().LookPath("tcam-ctl").Return("", exec.ErrNotFound)
	r.EXPECT().LookPath("systemctl").Return("", errors.New("nope"))

	err := RequireTools(r, "git", "tcam-ctl", "systemctl")
	require.ErrorIs(t, err, ErrToolMissing)
	assert.Contains(t, err.Error(), "tcam-ctl, systemctl")
	assert.NotContains(t, err.Error(), "git")
}

func TestRequireToolsAllPresent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	r := NewMockRunner(ctrl)
	r.EXPECT().LookPath(gomock.Any()).Return("/usr/bin/x", nil).Times(2)

	require.NoError(t, RequireTools(r, "apt-get", "pip3"))
}
