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

// Package execx runs the external tools the provisioner drives (apt-get, git, tcam-ctl, systemctl).
//
// Every invocation carries a timeout. Output is captured so failures can name the
// command and show what it printed; long-running installs can additionally stream
// their output to the operator.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/carverauto/camprov/pkg/logger"
	"github.com/carverauto/camprov/pkg/models"
)

const (
	defaultTimeout  = 2 * time.Minute
	outputTailBytes = 2048
	// Grandchildren holding the output pipes open must not stall Wait past a kill.
	waitDelay = 2 * time.Second
)

var (
	// ErrCommandTimeout is wrapped by CommandError when the command outlived its timeout.
	ErrCommandTimeout = errors.New("command timed out")
	// ErrEmptyCommand is returned when no executable was named.
	ErrEmptyCommand = errors.New("empty command")
	// ErrToolMissing is returned by RequireTools when an executable is not on PATH.
	ErrToolMissing = errors.New("required tool not found on PATH")
)

// Command describes one external invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration

	// RunAs drops privileges to the given account when the provisioner runs as root.
	RunAs *models.ExecutionUser

	// Stream copies output to the runner's stream writer while capturing it.
	Stream bool
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	for _, p := range append([]string{c.Name}, c.Args...) {
		if p == "" || strings.ContainsAny(p, " \t\"'") {
			p = fmt.Sprintf("%q", p)
		}

		parts = append(parts, p)
	}

	return strings.Join(parts, " ")
}

// Result holds what a finished command produced.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Output returns trimmed stdout as a string.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}

	return strings.TrimSpace(string(r.Stdout))
}

// CommandError reports a command that exited non-zero or timed out.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q failed (exit %d): %v", e.Command, e.ExitCode, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}

	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner is the os/exec backed Runner.
type ExecRunner struct {
	logger         logger.Logger
	defaultTimeout time.Duration
	stream         io.Writer
	euid           int
}

// Option customizes an ExecRunner.
type Option func(*ExecRunner)

// WithDefaultTimeout sets the timeout applied to commands that do not carry their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *ExecRunner) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// WithStream sets where streamed command output is copied.
func WithStream(w io.Writer) Option {
	return func(r *ExecRunner) {
		r.stream = w
	}
}

// NewExecRunner creates a Runner backed by os/exec.
func NewExecRunner(log logger.Logger, opts ...Option) *ExecRunner {
	if log == nil {
		log = logger.NewTestLogger()
	}

	r := &ExecRunner{
		logger:         log,
		defaultTimeout: defaultTimeout,
		stream:         os.Stderr,
		euid:           unix.Geteuid(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// LookPath implements Runner.
func (*ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if strings.TrimSpace(c.Name) == "" {
		return nil, ErrEmptyCommand
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = r.environment(c)
	r.applyCredential(cmd, c.RunAs)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if c.Stream && r.stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.stream)
		cmd.Stderr = io.MultiWriter(&stderr, r.stream)
	}

	r.logger.Debug().
		Str("command", c.String()).
		Str("dir", c.Dir).
		Dur("timeout", timeout).
		Msg("Running command")

	start := time.Now()
	err := cmd.Run()

	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
		ExitCode: -1,
	}

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		r.logger.Debug().
			Str("command", c.String()).
			Dur("duration", res.Duration).
			Msg("Command completed")

		return res, nil
	}

	// The operator cancelled the whole run; report that rather than a command failure.
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrCommandTimeout, timeout)
	}

	return res, &CommandError{
		Command:  c.String(),
		ExitCode: res.ExitCode,
		Output:   tail(combinedOutput(res), outputTailBytes),
		Err:      err,
	}
}

func (r *ExecRunner) environment(c Command) []string {
	if len(c.Env) == 0 && c.RunAs == nil {
		return nil
	}

	env := append(os.Environ(), c.Env...)

	if c.RunAs != nil && c.RunAs.UID != r.euid {
		env = append(env, "HOME="+c.RunAs.HomeDir, "USER="+c.RunAs.Name, "LOGNAME="+c.RunAs.Name)
	}

	return env
}

// applyCredential only switches identity when running as root for another account.
func (r *ExecRunner) applyCredential(cmd *exec.Cmd, user *models.ExecutionUser) {
	if user == nil || r.euid != 0 || user.UID == r.euid {
		return
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid: uint32(user.UID),
			Gid: uint32(user.GID),
		},
	}
}

func combinedOutput(res *Result) string {
	out := strings.TrimSpace(string(res.Stderr))
	if stdout := strings.TrimSpace(string(res.Stdout)); stdout != "" {
		if out != "" {
			out = stdout + "\n" + out
		} else {
			out = stdout
		}
	}

	return out
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	return "..." + s[len(s)-limit:]
}

// RequireTools checks that every named executable is on PATH.
func RequireTools(r Runner, names ...string) error {
	var missing []string

	for _, name := range names {
		if _, err := r.LookPath(name); err != nil {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrToolMissing, strings.Join(missing, ", "))
	}

	return nil
}
