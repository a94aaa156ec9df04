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

package bootconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/camprov/pkg/config"
)

const piConfig = `# For more options and information see
# http://rpf.io/configtxt
#dtparam=i2c_arm=on
dtparam=i2c_arm=on
dtparam=spi=on

[all]
`

func newTestPatcher(t *testing.T, content string) (*Patcher, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := config.Default().Boot
	cfg.Path = path

	return NewPatcher(cfg, nil), path
}

func read(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(data)
}

func TestApplyPatchesFirstActiveAnchor(t *testing.T) {
	p, path := newTestPatcher(t, piConfig)

	res, err := p.Apply(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.True(t, res.RebootRequired)
	assert.True(t, res.BackupCreated)

	got := read(t, path)
	assert.Contains(t, got, "\ndtparam=i2c_arm=on,i2c_arm_baudrate=10000\n")
	assert.Contains(t, got, "#dtparam=i2c_arm=on\n", "commented anchor is left alone")
	assert.Equal(t, piConfig, read(t, res.BackupPath))
}

func TestApplyIsIdempotent(t *testing.T) {
	p, path := newTestPatcher(t, piConfig)

	_, err := p.Apply(context.Background())
	require.NoError(t, err)

	first := read(t, path)

	res, err := p.Apply(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.False(t, res.RebootRequired)
	assert.Equal(t, first, read(t, path))
}

func TestApplyKeepsExistingBackup(t *testing.T) {
	p, path := newTestPatcher(t, piConfig)
	require.NoError(t, os.WriteFile(p.BackupPath(), []byte("pristine"), 0o644))

	res, err := p.Apply(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.False(t, res.BackupCreated)
	assert.Equal(t, "pristine", read(t, p.BackupPath()))
	assert.Contains(t, read(t, path), "i2c_arm_baudrate=10000")
}

func TestApplyPreservesMode(t *testing.T) {
	p, path := newTestPatcher(t, piConfig)
	require.NoError(t, os.Chmod(path, 0o600))

	_, err := p.Apply(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestApplyAnchorMissing(t *testing.T) {
	p, path := newTestPatcher(t, "#dtparam=i2c_arm=on\ndtparam=audio=on\n")

	_, err := p.Apply(context.Background())
	require.ErrorIs(t, err, ErrAnchorNotFound)
	assert.Contains(t, err.Error(), path)

	_, statErr := os.Stat(p.BackupPath())
	assert.True(t, os.IsNotExist(statErr), "no backup is written when nothing is patched")
}

func TestApplyMissingFile(t *testing.T) {
	cfg := config.Default().Boot
	cfg.Path = filepath.Join(t.TempDir(), "absent.txt")

	_, err := NewPatcher(cfg, nil).Apply(context.Background())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyCancelled(t *testing.T) {
	p, _ := newTestPatcher(t, piConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Apply(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestHasMarker(t *testing.T) {
	assert.True(t, HasMarker("dtparam=i2c_arm=on,i2c_arm_baudrate=400000\n", "i2c_arm_baudrate"))
	assert.False(t, HasMarker("# dtparam=i2c_arm_baudrate=10000\n", "i2c_arm_baudrate"))
	assert.False(t, HasMarker("", "i2c_arm_baudrate"))
}

func TestExtendAnchor(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{"plain", "dtparam=i2c_arm=on\n", "dtparam=i2c_arm=on,p=1\n", true},
		{"existing params", "dtparam=i2c_arm=on,foo=2\n", "dtparam=i2c_arm=on,foo=2,p=1\n", true},
		{"crlf", "dtparam=i2c_arm=on\r\nx\r\n", "dtparam=i2c_arm=on,p=1\r\nx\r\n", true},
		{"only first", "dtparam=i2c_arm=on\ndtparam=i2c_arm=on\n", "dtparam=i2c_arm=on,p=1\ndtparam=i2c_arm=on\n", true},
		{"similar key", "dtparam=i2c_arm=onx\n", "dtparam=i2c_arm=onx\n", false},
		{"no trailing newline", "dtparam=i2c_arm=on", "dtparam=i2c_arm=on,p=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtendAnchor(tt.in, "dtparam=i2c_arm=on", "p=1")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
