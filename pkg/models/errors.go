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

package models

// ErrorKind classifies why a stage failed.
type ErrorKind string

const (
	ErrorKindNone                ErrorKind = ""
	ErrorKindEnvironmentMismatch ErrorKind = "environment_mismatch"
	ErrorKindCommandFailure      ErrorKind = "command_failure"
	ErrorKindTimeout             ErrorKind = "timeout"
	ErrorKindParseFailure        ErrorKind = "parse_failure"
	ErrorKindInvalidInput        ErrorKind = "invalid_input"
	ErrorKindMissingTool         ErrorKind = "missing_tool"
	ErrorKindIO                  ErrorKind = "io"
	ErrorKindInternal            ErrorKind = "internal"
)

// StageStatus is the outcome of a single pipeline stage.
type StageStatus string

const (
	StageSucceeded StageStatus = "succeeded"
	StageSkipped   StageStatus = "skipped"
	StageDeferred  StageStatus = "deferred"
	StageFailed    StageStatus = "failed"
)
