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

package repo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/camprov/pkg/execx"
)

func TestDeriveName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/org/Name.git", "Name"},
		{"https://example.com/org/Name", "Name"},
		{"https://example.com/org/Name/", "Name"},
		{"https://example.com/org/Name.git/", "Name"},
		{"git@github.com:org/ThermalCam.git", "ThermalCam"},
		{"git@github.com:ThermalCam.git", "ThermalCam"},
		{"  https://example.com/a/b-c.d.git  ", "b-c.d"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := DeriveName(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveNameInvalid(t *testing.T) {
	for _, url := range []string{"", "/", ".git", "https://example.com/org/.git", "git@host:"} {
		_, err := DeriveName(url)
		require.ErrorIs(t, err, ErrInvalidRepoURL, url)
	}
}

func newTestMaterializer(t *testing.T) (*Materializer, *execx.MockRunner) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	runner := execx.NewMockRunner(ctrl)
	runner.EXPECT().LookPath("git").Return("/usr/bin/git", nil).AnyTimes()

	return New(runner, nil, time.Minute, nil), runner
}

func TestMaterializeRequiresURL(t *testing.T) {
	m, _ := newTestMaterializer(t)

	_, err := m.Materialize(context.Background(), " ", t.TempDir())
	require.ErrorIs(t, err, ErrRepoURLRequired)
}

func TestMaterializeClonesThenUpdates(t *testing.T) {
	m, runner := newTestMaterializer(t)

	parent := filepath.Join(t.TempDir(), "code")
	url := "https://example.com/org/Name.git"

	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c execx.Command) (*execx.Result, error) {
		assert.Equal(t, "git", c.Name)
		assert.Equal(t, []string{"clone", url, filepath.Join(parent, "Name")}, c.Args)
		assert.Equal(t, time.Minute, c.Timeout)

		// emulate the clone
		require.NoError(t, os.MkdirAll(filepath.Join(parent, "Name", ".git"), 0o755))

		return &execx.Result{}, nil
	})

	res, err := m.Materialize(context.Background(), url, parent)
	require.NoError(t, err)
	assert.Equal(t, ActionCheckout, res.Action)
	assert.Equal(t, filepath.Join(parent, "Name"), res.Path)

	runner.EXPECT().Run(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c execx.Command) (*execx.Result, error) {
		assert.Equal(t, []string{"-C", filepath.Join(parent, "Name"), "pull", "--ff-only"}, c.Args)

		return &execx.Result{}, nil
	})

	res, err = m.Materialize(context.Background(), url, parent)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdate, res.Action)
}

func TestMaterializeRejectsNonCheckout(t *testing.T) {
	m, _ := newTestMaterializer(t)

	parent := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(parent, "Name"), 0o755))

	_, err := m.Materialize(context.Background(), "https://example.com/org/Name.git", parent)
	require.ErrorIs(t, err, ErrNotACheckout)
}

func TestMaterializeGitFailure(t *testing.T) {
	m, runner := newTestMaterializer(t)

	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, &execx.CommandError{
		Command: "git clone", ExitCode: 128, Output: "Repository not found", Err: errors.New("exit status 128"),
	})

	_, err := m.Materialize(context.Background(), "https://example.com/org/Name.git", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git checkout")
	assert.Contains(t, err.Error(), "Repository not found")
}
