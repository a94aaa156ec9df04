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

// Package provision installs the OS packages, vendor camera drivers and Python stack.
//
// Each step is a single batch: one apt-get or pip invocation per list, so any
// package failure aborts the step instead of leaving a partially installed stack.
package provision

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/logger"
)

const (
	aptGet = "apt-get"
	pip3   = "pip3"
)

// RetryPolicy controls driver download retries.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxTries        uint
}

// DefaultRetryPolicy is used unless overridden with WithRetryPolicy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  5 * time.Minute,
		MaxTries:        5,
	}
}

// Provisioner runs the install steps against the host package manager.
type Provisioner struct {
	runner   execx.Runner
	cfg      config.PackageConfig
	timeouts config.TimeoutConfig
	client   *http.Client
	retry    RetryPolicy
	tempDir  string
	logger   logger.Logger
}

// Option customizes a Provisioner.
type Option func(*Provisioner)

// WithHTTPClient sets the client used for driver downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provisioner) {
		if c != nil {
			p.client = c
		}
	}
}

// WithRetryPolicy overrides the driver download retry policy.
func WithRetryPolicy(r RetryPolicy) Option {
	return func(p *Provisioner) {
		p.retry = r
	}
}

// WithTempDir sets the parent of the scratch download directory.
func WithTempDir(dir string) Option {
	return func(p *Provisioner) {
		p.tempDir = dir
	}
}

// New creates a Provisioner.
func New(runner execx.Runner, cfg config.PackageConfig, timeouts config.TimeoutConfig, log logger.Logger, opts ...Option) *Provisioner {
	if log == nil {
		log = logger.NewTestLogger()
	}

	p := &Provisioner{
		runner:   runner,
		cfg:      cfg,
		timeouts: timeouts,
		client:   &http.Client{},
		retry:    DefaultRetryPolicy(),
		logger:   log,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// InstallBase refreshes the package index and installs the base toolchain.
func (p *Provisioner) InstallBase(ctx context.Context) error {
	if err := execx.RequireTools(p.runner, aptGet); err != nil {
		return err
	}

	if err := p.apt(ctx, "refresh package index", "update"); err != nil {
		return err
	}

	return p.aptInstall(ctx, "base packages", p.cfg.Base)
}

// InstallMedia installs the multimedia and processing stack, then the pip-only packages.
func (p *Provisioner) InstallMedia(ctx context.Context) error {
	if err := execx.RequireTools(p.runner, aptGet); err != nil {
		return err
	}

	if err := p.aptInstall(ctx, "media stack", p.cfg.Media); err != nil {
		return err
	}

	return p.pipInstall(ctx, p.cfg.Pip)
}

func (p *Provisioner) aptInstall(ctx context.Context, what string, packages []string) error {
	if len(packages) == 0 {
		p.logger.Info().Str("step", what).Msg("No packages configured, skipping")

		return nil
	}

	args := append([]string{"install", "-y"}, packages...)

	return p.apt(ctx, what, args...)
}

func (p *Provisioner) apt(ctx context.Context, what string, args ...string) error {
	p.logger.Info().Str("step", what).Strs("args", args).Msg("Running apt-get")

	_, err := p.runner.Run(ctx, execx.Command{
		Name:    aptGet,
		Args:    args,
		Env:     []string{"DEBIAN_FRONTEND=noninteractive"},
		Timeout: p.timeouts.InstallTimeout(),
		Stream:  true,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	return nil
}

func (p *Provisioner) pipInstall(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	if err := execx.RequireTools(p.runner, pip3); err != nil {
		return err
	}

	args := append([]string{"install", "--break-system-packages"}, packages...)

	p.logger.Info().Strs("packages", packages).Msg("Installing Python packages")

	_, err := p.runner.Run(ctx, execx.Command{
		Name:    pip3,
		Args:    args,
		Timeout: p.timeouts.InstallTimeout(),
		Stream:  true,
	})
	if err != nil {
		return fmt.Errorf("python packages: %w", err)
	}

	return nil
}
