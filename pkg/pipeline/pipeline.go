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

// Package pipeline runs the provisioning stages in order, one result per stage,
// halting on the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/camprov/pkg/bootconfig"
	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
	"github.com/carverauto/camprov/pkg/prompt"
	"github.com/carverauto/camprov/pkg/repo"
	"github.com/carverauto/camprov/pkg/service"
)

var (
	// ErrDeferred ends the run early with a successful outcome; the remaining
	// stages run on a later invocation (after the reboot).
	ErrDeferred = errors.New("provisioning deferred")
	// ErrSkipped marks a stage that had nothing to do.
	ErrSkipped = errors.New("stage skipped")
)

// Stage is one step of a provisioning run.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *State) error
}

type stageFunc struct {
	name string
	run  func(context.Context, *State) error
}

func (s stageFunc) Name() string { return s.name }

func (s stageFunc) Run(ctx context.Context, st *State) error { return s.run(ctx, st) }

// NewStage adapts a function to a Stage.
func NewStage(name string, run func(context.Context, *State) error) Stage {
	return stageFunc{name: name, run: run}
}

// State is threaded through the stages. Config is not modified after the run starts.
type State struct {
	Config   *config.Config
	Env      *models.HostEnvironment
	Runner   execx.Runner
	Prompter prompt.Prompter
	Console  *prompt.Console
	Logger   logger.Logger

	// AskInstallDir prompts for the install directory instead of taking Config.InstallDir.
	AskInstallDir bool
	// DevicePath overrides where devicestate.json is written.
	DevicePath string

	Boot    *bootconfig.Result
	Repo    *repo.Result
	Device  *models.DeviceConfig
	Service *service.Result
}

func (st *State) console() *prompt.Console {
	if st.Console == nil {
		st.Console = prompt.NewConsole(nil)
	}

	return st.Console
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage    string             `json:"stage"`
	Status   models.StageStatus `json:"status"`
	Duration time.Duration      `json:"duration"`
	Err      error              `json:"-"`
}

// Report is the outcome of a run.
type Report struct {
	RunID    string             `json:"run_id"`
	Status   models.StageStatus `json:"status"`
	Stages   []StageResult      `json:"stages"`
	Duration time.Duration      `json:"duration"`
}

// Deferred reports whether the run stopped early without failing.
func (r *Report) Deferred() bool {
	return r != nil && r.Status == models.StageDeferred
}

// Pipeline runs stages sequentially under an exclusive lock.
type Pipeline struct {
	stages   []Stage
	lockFile string
	runID    string
	logger   logger.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLockFile sets the lock file; an empty path disables locking.
func WithLockFile(path string) Option {
	return func(p *Pipeline) {
		p.lockFile = path
	}
}

// WithRunID tags the report with the run's id.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// New creates a Pipeline over stages.
func New(stages []Stage, log logger.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = logger.NewTestLogger()
	}

	p := &Pipeline{
		stages: stages,
		logger: log,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes every stage. A deferred stage ends the run with a nil error;
// a failing stage ends it with a *StageError.
func (p *Pipeline) Run(ctx context.Context, st *State) (*Report, error) {
	release, err := AcquireLock(p.lockFile)
	if err != nil {
		return nil, err
	}
	defer release()

	start := p.now()
	report := &Report{RunID: p.runID, Stages: make([]StageResult, 0, len(p.stages))}

	defer func() {
		report.Duration = p.now().Sub(start)
	}()

	for _, s := range p.stages {
		res, err := p.runStage(ctx, s, st)
		report.Stages = append(report.Stages, res)

		switch res.Status {
		case models.StageDeferred:
			report.Status = models.StageDeferred

			p.logger.Info().Str("stage", res.Stage).Err(err).Msg("Provisioning deferred")

			return report, nil
		case models.StageFailed:
			report.Status = models.StageFailed

			return report, res.Err
		case models.StageSucceeded, models.StageSkipped:
		}
	}

	report.Status = models.StageSucceeded

	p.logger.Info().Int("stages", len(report.Stages)).Msg("Provisioning complete")

	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, st *State) (StageResult, error) {
	res := StageResult{Stage: s.Name()}
	started := p.now()

	p.logger.Info().Str("stage", res.Stage).Msg("Running stage")

	err := ctx.Err()
	if err == nil {
		err = s.Run(ctx, st)
	}

	res.Duration = p.now().Sub(started)

	switch {
	case err == nil:
		res.Status = models.StageSucceeded
	case errors.Is(err, ErrSkipped):
		res.Status = models.StageSkipped

		p.logger.Info().Str("stage", res.Stage).Msg("Stage skipped")
	case errors.Is(err, ErrDeferred):
		res.Status = models.StageDeferred
	default:
		res.Status = models.StageFailed
		res.Err = &StageError{Stage: res.Stage, Kind: Classify(err), Err: err}

		p.logger.Error().Str("stage", res.Stage).Str("kind", string(Classify(err))).Err(err).Msg("Stage failed")
	}

	return res, err
}

// Summary renders one line per stage.
func (r *Report) Summary() []string {
	lines := make([]string, 0, len(r.Stages))

	for _, s := range r.Stages {
		lines = append(lines, fmt.Sprintf("%-12s %-9s %s", s.Stage, s.Status, s.Duration.Round(time.Millisecond)))
	}

	return lines
}
