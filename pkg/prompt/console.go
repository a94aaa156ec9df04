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

package prompt

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Console prints progress lines for the operator, separate from the structured log.
type Console struct {
	out    io.Writer
	styles logStyles
}

// NewConsole returns a Console writing to out, or stdout when out is nil.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = os.Stdout
	}

	return &Console{out: out, styles: newLogStyles()}
}

func (c *Console) Info(format string, args ...any) {
	c.line(c.styles.info, "[INFO] ", format, args...)
}

func (c *Console) Success(format string, args ...any) {
	c.line(c.styles.success, "[SUCCESS] ", format, args...)
}

func (c *Console) Warning(format string, args ...any) {
	c.line(c.styles.warning, "[WARNING] ", format, args...)
}

func (c *Console) Error(format string, args ...any) {
	c.line(c.styles.error, "[ERROR] ", format, args...)
}

// Banner renders a boxed warning that is hard to miss in scrolling install output.
func (c *Console) Banner(title, body string) {
	content := lipgloss.JoinVertical(
		lipgloss.Left,
		c.styles.error.Render(title),
		body,
	)

	_, _ = fmt.Fprintln(c.out, bannerStyle().Render(content))
}

// Println writes an unstyled line.
func (c *Console) Println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}

func (c *Console) line(style lipgloss.Style, prefix, format string, args ...any) {
	_, _ = fmt.Fprintln(c.out, style.Render(prefix+fmt.Sprintf(format, args...)))
}

// IsInputFromTerminal determines if input is coming from a terminal or being piped/redirected.
func IsInputFromTerminal() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}

	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
