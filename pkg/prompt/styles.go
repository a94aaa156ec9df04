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

import "github.com/charmbracelet/lipgloss"

// Dracula theme colors.
const (
	draculaForeground = "#F8F8F2"
	draculaCyan       = "#8BE9FD"
	draculaGreen      = "#50FA7B"
	draculaOrange     = "#FFB86C"
	draculaPink       = "#FF79C6"
	draculaRed        = "#FF5555"
	draculaYellow     = "#F1FA8C"
	draculaComment    = "#6272A4"
)

const (
	inputWidth    = 48
	bannerPadding = 2
)

// logStyles defines styles for operator-facing log lines.
type logStyles struct {
	info, success, warning, error lipgloss.Style
}

func newLogStyles() logStyles {
	return logStyles{
		info: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaCyan)),
		success: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaGreen)),
		warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaYellow)),
		error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaRed)).
			Bold(true),
	}
}

type promptStyles struct {
	question, hint, help, error lipgloss.Style
}

func newPromptStyles() promptStyles {
	return promptStyles{
		question: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaPink)).
			Bold(true),
		hint: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaOrange)),
		help: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaComment)),
		error: lipgloss.NewStyle().
			Foreground(lipgloss.Color(draculaRed)).
			Bold(true),
	}
}

func bannerStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Padding(0, bannerPadding).
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color(draculaRed)).
		Foreground(lipgloss.Color(draculaForeground))
}
