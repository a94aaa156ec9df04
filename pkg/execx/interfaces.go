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

//go:generate mockgen -destination=mock_execx.go -package=execx github.com/carverauto/camprov/pkg/execx Runner

package execx

import "context"

// Runner executes external commands on the host.
type Runner interface {
	// Run executes the command and blocks until it exits or its timeout elapses.
	// A non-zero exit is reported as *CommandError; the Result is returned either way.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// LookPath reports where an executable lives on PATH.
	LookPath(name string) (string, error)
}
