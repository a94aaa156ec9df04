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

// Package prompt asks the operator the few questions provisioning needs.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/carverauto/camprov/pkg/logger"
)

var (
	// ErrAborted is returned when the operator quits a prompt with Ctrl+C or Esc.
	ErrAborted = errors.New("prompt aborted by operator")
	// ErrInvalidAnswer is returned by ParseYesNo for anything other than yes or no.
	ErrInvalidAnswer = errors.New("answer must be yes or no")
)

// ParseYesNo interprets a confirmation answer. Blank selects def.
func ParseYesNo(answer string, def bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "":
		return def, nil
	case "y", "yes", "true", "1":
		return true, nil
	case "n", "no", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidAnswer, answer)
	}
}

func yesNoHint(def bool) string {
	if def {
		return "[Y/n]"
	}

	return "[y/N]"
}

// TerminalPrompter renders each question as a small bubbletea program.
type TerminalPrompter struct {
	in  io.Reader
	out io.Writer
}

// NewTerminalPrompter returns a prompter bound to the process terminal.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{in: os.Stdin, out: os.Stdout}
}

// Confirm implements Prompter.
func (p *TerminalPrompter) Confirm(ctx context.Context, question string, def bool) (bool, error) {
	m := newInputModel(question, yesNoHint(def), "", func(v string) error {
		_, err := ParseYesNo(v, def)
		return err
	})

	value, err := p.run(ctx, m)
	if err != nil {
		return false, err
	}

	return ParseYesNo(value, def)
}

// Input implements Prompter.
func (p *TerminalPrompter) Input(ctx context.Context, question, def string) (string, error) {
	hint := ""
	if def != "" {
		hint = fmt.Sprintf("[%s]", def)
	}

	m := newInputModel(question, hint, def, nil)

	return p.run(ctx, m)
}

func (p *TerminalPrompter) run(ctx context.Context, m *inputModel) (string, error) {
	prog := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)

	final, err := prog.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	if err != nil {
		return "", fmt.Errorf("running prompt: %w", err)
	}

	result, ok := final.(*inputModel)
	if !ok {
		return "", fmt.Errorf("running prompt: unexpected model %T", final)
	}

	if result.aborted {
		return "", ErrAborted
	}

	return result.value, nil
}

// inputModel is a single-line question answered with Enter.
type inputModel struct {
	question     string
	hint         string
	defaultValue string
	validate     func(string) error

	input   textinput.Model
	value   string
	err     error
	done    bool
	aborted bool
	styles  promptStyles
}

func newInputModel(question, hint, def string, validate func(string) error) *inputModel {
	ti := textinput.New()
	ti.Placeholder = def
	ti.Focus()
	ti.Width = inputWidth

	return &inputModel{
		question:     question,
		hint:         hint,
		defaultValue: def,
		validate:     validate,
		input:        ti,
		styles:       newPromptStyles(),
	}
}

func (*inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		//nolint:exhaustive // Default case handles all unlisted keys
		switch keyMsg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true

			return m, tea.Quit
		case tea.KeyEnter:
			return m.handleEnter()
		}
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m *inputModel) handleEnter() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())

	if m.validate != nil {
		if err := m.validate(value); err != nil {
			m.err = err
			m.input.Reset()

			return m, nil
		}
	}

	if value == "" {
		value = m.defaultValue
	}

	m.value = value
	m.err = nil
	m.done = true

	return m, tea.Quit
}

func (m *inputModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.question.Render(m.question))

	if m.hint != "" {
		b.WriteString(" " + m.styles.hint.Render(m.hint))
	}

	if m.done {
		b.WriteString(" " + m.value + "\n")

		return b.String()
	}

	b.WriteString("\n" + m.input.View() + "\n")

	if m.err != nil {
		b.WriteString(m.styles.error.Render(fmt.Sprintf("Error: %v", m.err)) + "\n")
	}

	b.WriteString(m.styles.help.Render("Enter → accept | Ctrl+C/Esc → quit"))

	return b.String()
}

// Defaults answers every question with its default. Used for non-interactive runs.
type Defaults struct {
	logger logger.Logger
}

// NewDefaults returns a non-interactive Prompter.
func NewDefaults(log logger.Logger) *Defaults {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Defaults{logger: log}
}

// Confirm implements Prompter.
func (d *Defaults) Confirm(_ context.Context, question string, def bool) (bool, error) {
	d.logger.Debug().Str("question", question).Bool("answer", def).Msg("Using default answer")

	return def, nil
}

// Input implements Prompter.
func (d *Defaults) Input(_ context.Context, question, def string) (string, error) {
	d.logger.Debug().Str("question", question).Str("answer", def).Msg("Using default answer")

	return def, nil
}
