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

// Package repo clones or updates the application repository.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/fsutil"
	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
)

const gitBinary = "git"

var (
	// ErrRepoURLRequired is returned when no repository URL was configured.
	ErrRepoURLRequired = errors.New("repository URL is required (set -repo or CAMPROV_REPO_URL)")
	// ErrInvalidRepoURL is returned when no directory name can be derived from the URL.
	ErrInvalidRepoURL = errors.New("cannot derive a directory name from repository URL")
	// ErrNotACheckout is returned when the target exists but is not a git checkout.
	ErrNotACheckout = errors.New("target directory exists but is not a git checkout")
)

// Action is what Materialize did.
type Action string

const (
	ActionCheckout Action = "checkout"
	ActionUpdate   Action = "update"
)

// Result names the materialized project root.
type Result struct {
	Path   string
	Action Action
}

// DeriveName returns the final path segment of url without a .git suffix.
// It accepts https URLs, trailing slashes and scp-style git@host:org/Name.git.
func DeriveName(url string) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(url), "/")
	s = strings.TrimSuffix(s, ".git")

	if i := strings.LastIndexAny(s, "/:"); i >= 0 {
		s = s[i+1:]
	}

	if s == "" || s == "." || s == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidRepoURL, url)
	}

	return s, nil
}

// Materializer runs git on behalf of the execution user.
type Materializer struct {
	runner  execx.Runner
	owner   *models.ExecutionUser
	timeout time.Duration
	logger  logger.Logger
}

// New creates a Materializer. owner may be nil to run git as the current user.
func New(runner execx.Runner, owner *models.ExecutionUser, timeout time.Duration, log logger.Logger) *Materializer {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Materializer{runner: runner, owner: owner, timeout: timeout, logger: log}
}

// Materialize clones url into parent/<name>, or fast-forwards an existing checkout there.
func (m *Materializer) Materialize(ctx context.Context, url, parent string) (*Result, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrRepoURLRequired
	}

	name, err := DeriveName(url)
	if err != nil {
		return nil, err
	}

	if err := execx.RequireTools(m.runner, gitBinary); err != nil {
		return nil, err
	}

	parent, err = filepath.Abs(parent)
	if err != nil {
		return nil, fmt.Errorf("resolve install directory: %w", err)
	}

	if err := fsutil.MkdirAllOwned(parent, 0o755, m.owner); err != nil {
		return nil, fmt.Errorf("prepare install directory: %w", err)
	}

	target := filepath.Join(parent, name)

	action, err := m.classify(target)
	if err != nil {
		return nil, err
	}

	var args []string

	switch action {
	case ActionUpdate:
		args = []string{"-C", target, "pull", "--ff-only"}
	case ActionCheckout:
		args = []string{"clone", url, target}
	}

	m.logger.Info().
		Str("url", url).
		Str("path", target).
		Str("action", string(action)).
		Msg("Materializing repository")

	if _, err := m.runner.Run(ctx, execx.Command{
		Name:    gitBinary,
		Args:    args,
		Dir:     parent,
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: m.timeout,
		RunAs:   m.owner,
		Stream:  true,
	}); err != nil {
		return nil, fmt.Errorf("git %s: %w", action, err)
	}

	return &Result{Path: target, Action: action}, nil
}

// classify maps an existing directory to an update and an absent one to a checkout.
func (*Materializer) classify(target string) (Action, error) {
	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return ActionCheckout, nil
	}

	if err != nil {
		return "", fmt.Errorf("stat %s: %w", target, err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotACheckout, target)
	}

	if _, err := os.Stat(filepath.Join(target, ".git")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotACheckout, target)
		}

		return "", fmt.Errorf("stat %s: %w", target, err)
	}

	return ActionUpdate, nil
}
