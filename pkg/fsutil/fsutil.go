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

// Package fsutil writes the files provisioning hands to other programs.
// Writes go to a temporary sibling, are fsynced and then renamed over the target,
// so readers see either the old content or the new content, never a partial file.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/carverauto/camprov/pkg/models"
)

// ErrVerifyMismatch is returned when a file read back differs from what was written.
var ErrVerifyMismatch = errors.New("file content differs from what was written")

var geteuid = unix.Geteuid

// WriteAtomic replaces path with data. perm is applied to the new file.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", path, err)
	}

	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) // best-effort cleanup
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temporary file for %s: %w", path, err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temporary file for %s: %w", path, err)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("chmod temporary file for %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temporary file for %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist %s: %w", path, err)
	}

	syncDir(dir)

	return nil
}

// syncDir makes the rename durable; failure is not fatal on filesystems (vfat /boot) that reject it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}

	_ = d.Sync()
	_ = d.Close()
}

// Verify reads path back and compares it with want.
func Verify(path string, want []byte) error {
	got, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read back %s: %w", path, err)
	}

	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: %s", ErrVerifyMismatch, path)
	}

	return nil
}

// WriteVerified is WriteAtomic followed by Verify.
func WriteVerified(path string, data []byte, perm os.FileMode) error {
	if err := WriteAtomic(path, data, perm); err != nil {
		return err
	}

	return Verify(path, data)
}

// ChownTo hands path to owner. It is a no-op unless running as root for a different account.
func ChownTo(path string, owner *models.ExecutionUser) error {
	if owner == nil || geteuid() != 0 || owner.UID == 0 {
		return nil
	}

	if err := os.Lchown(path, owner.UID, owner.GID); err != nil {
		return fmt.Errorf("chown %s to %s: %w", path, owner.Name, err)
	}

	return nil
}

// MkdirAllOwned creates dir and any missing parents, handing each created directory to owner.
func MkdirAllOwned(dir string, perm os.FileMode, owner *models.ExecutionUser) error {
	dir = filepath.Clean(dir)

	var created []string

	for p := dir; ; p = filepath.Dir(p) {
		if _, err := os.Stat(p); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", p, err)
		}

		created = append(created, p)

		if parent := filepath.Dir(p); parent == p {
			break
		}
	}

	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	for _, p := range created {
		if err := ChownTo(p, owner); err != nil {
			return err
		}
	}

	return nil
}
