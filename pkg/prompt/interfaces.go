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

//go:generate mockgen -destination=mock_prompt.go -package=prompt github.com/carverauto/camprov/pkg/prompt Prompter

package prompt

import "context"

// Prompter asks the operator questions. A blank answer selects the default.
type Prompter interface {
	Confirm(ctx context.Context, question string, def bool) (bool, error)
	Input(ctx context.Context, question, def string) (string, error)
}
