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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/carverauto/camprov/pkg/bootconfig"
	"github.com/carverauto/camprov/pkg/config"
	"github.com/carverauto/camprov/pkg/devicestate"
	"github.com/carverauto/camprov/pkg/execx"
	"github.com/carverauto/camprov/pkg/fsutil"
	"github.com/carverauto/camprov/pkg/hostcheck"
	"github.com/carverauto/camprov/pkg/models"
	"github.com/carverauto/camprov/pkg/prompt"
	"github.com/carverauto/camprov/pkg/provision"
	"github.com/carverauto/camprov/pkg/repo"
	"github.com/carverauto/camprov/pkg/service"
)

// ErrAlreadyRunning is returned when another run holds the lock file.
var ErrAlreadyRunning = errors.New("another provisioning run is in progress")

// StageError wraps the error that stopped a run.
type StageError struct {
	Stage string
	Kind  models.ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

var kindsBySentinel = []struct {
	kind models.ErrorKind
	errs []error
}{
	{models.ErrorKindEnvironmentMismatch, []error{hostcheck.ErrEnvironmentMismatch, hostcheck.ErrPrivilegeRequired}},
	{models.ErrorKindMissingTool, []error{execx.ErrToolMissing}},
	{models.ErrorKindTimeout, []error{execx.ErrCommandTimeout, context.DeadlineExceeded}},
	{models.ErrorKindParseFailure, []error{devicestate.ErrEmptyProperties}},
	{models.ErrorKindInvalidInput, []error{
		config.ErrInvalidConfig,
		repo.ErrRepoURLRequired,
		repo.ErrInvalidRepoURL,
		repo.ErrNotACheckout,
		bootconfig.ErrAnchorNotFound,
		devicestate.ErrInvalidSettings,
		service.ErrInvalidUnit,
		prompt.ErrInvalidAnswer,
		prompt.ErrAborted,
		provision.ErrInvalidDriverURL,
	}},
	{models.ErrorKindIO, []error{
		bootconfig.ErrPatchNotVerified,
		fsutil.ErrVerifyMismatch,
		provision.ErrChecksumMismatch,
		hostcheck.ErrUserLookup,
	}},
}

// Classify maps err to the kind reported for a failed stage.
// Timeouts are checked before command failures since a timed-out command is both.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindNone
	}

	for _, group := range kindsBySentinel {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.kind
			}
		}
	}

	var (
		cmdErr   *execx.CommandError
		parseErr *devicestate.ParseError
		httpErr  *provision.HTTPStatusError
		pathErr  *fs.PathError
	)

	switch {
	case errors.As(err, &cmdErr):
		return models.ErrorKindCommandFailure
	case errors.As(err, &parseErr):
		return models.ErrorKindParseFailure
	case errors.As(err, &httpErr), errors.As(err, &pathErr):
		return models.ErrorKindIO
	}

	return models.ErrorKindInternal
}
