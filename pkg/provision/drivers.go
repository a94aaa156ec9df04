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

package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/execx"
)

var (
	// ErrChecksumMismatch is returned when a downloaded driver does not match its configured SHA256.
	ErrChecksumMismatch = errors.New("driver checksum mismatch")
	// ErrInvalidDriverURL is returned for driver URLs that are not http(s).
	ErrInvalidDriverURL = errors.New("invalid driver url")
)

// HTTPStatusError reports a non-200 driver download response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	msg := fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}

	return msg
}

// Temporary reports whether retrying may succeed.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// InstallDrivers downloads the vendor .deb packages into a scratch directory and
// installs them in one apt-get batch. The scratch directory is always removed.
func (p *Provisioner) InstallDrivers(ctx context.Context) error {
	if len(p.cfg.Drivers) == 0 {
		p.logger.Info().Msg("No driver packages configured, skipping")

		return nil
	}

	if err := execx.RequireTools(p.runner, aptGet); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(p.tempDir, "camprov-drivers-*")
	if err != nil {
		return fmt.Errorf("create driver download directory: %w", err)
	}

	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove driver download directory")
		}
	}()

	files := make([]string, 0, len(p.cfg.Drivers))

	for i, pkg := range p.cfg.Drivers {
		file, err := p.download(ctx, i, pkg, dir)
		if err != nil {
			return fmt.Errorf("driver %s: %w", driverName(pkg), err)
		}

		files = append(files, file)
	}

	args := append([]string{"install", "-y"}, files...)

	p.logger.Info().Int("count", len(files)).Msg("Installing driver packages")

	if _, err := p.runner.Run(ctx, execx.Command{
		Name:    aptGet,
		Args:    args,
		Dir:     dir,
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Timeout: p.timeouts.InstallTimeout(),
		Stream:  true,
	}); err != nil {
		return fmt.Errorf("driver packages: %w", err)
	}

	return nil
}

func (p *Provisioner) download(ctx context.Context, index int, pkg config.DriverPackage, dir string) (string, error) {
	name, err := debFileName(pkg)
	if err != nil {
		return "", err
	}

	// The index prefix keeps names unique and preserves the configured order.
	dest := filepath.Join(dir, fmt.Sprintf("%02d-%s", index, name))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.retry.InitialInterval
	bo.MaxInterval = p.retry.MaxInterval

	attempt := 0

	operation := func() (struct{}, error) {
		attempt++

		err := p.fetch(ctx, pkg, dest)
		if err == nil {
			return struct{}{}, nil
		}

		var statusErr *HTTPStatusError
		if errors.Is(err, ErrChecksumMismatch) || (errors.As(err, &statusErr) && !statusErr.Temporary()) {
			return struct{}{}, backoff.Permanent(err)
		}

		p.logger.Warn().Err(err).Str("url", pkg.URL).Int("attempt", attempt).Msg("Driver download failed, retrying")

		return struct{}{}, err
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(p.retry.MaxElapsedTime)}
	if p.retry.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.retry.MaxTries))
	}

	if _, err := backoff.Retry(ctx, operation, opts...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		return "", err
	}

	p.logger.Info().Str("url", pkg.URL).Str("file", dest).Msg("Downloaded driver package")

	return dest, nil
}

func (p *Provisioner) fetch(ctx context.Context, pkg config.DriverPackage, dest string) error {
	dctx, cancel := context.WithTimeout(ctx, p.timeouts.DownloadTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(dctx, http.MethodGet, pkg.URL, http.NoBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", pkg.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{URL: pkg.URL, StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	hasher := sha256.New()

	if _, err := io.Copy(io.MultiWriter(f, hasher), resp.Body); err != nil {
		_ = f.Close()
		return fmt.Errorf("download %s: %w", pkg.URL, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dest, err)
	}

	if want := strings.TrimSpace(pkg.SHA256); want != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(got, want) {
			return fmt.Errorf("%w: %s got %s, want %s", ErrChecksumMismatch, pkg.URL, got, want)
		}
	}

	return nil
}

// debFileName derives a local file name from the URL path.
func debFileName(pkg config.DriverPackage) (string, error) {
	u, err := url.Parse(pkg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidDriverURL, pkg.URL)
	}

	name := path.Base(u.Path)
	if !strings.HasSuffix(name, ".deb") {
		name = "driver.deb"
		if pkg.Name != "" {
			name = filepath.Base(pkg.Name) + ".deb"
		}
	}

	return name, nil
}

func driverName(pkg config.DriverPackage) string {
	if pkg.Name != "" {
		return pkg.Name
	}

	return pkg.URL
}

func readErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
