/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package errs

import (
	"fmt"
	"strings"
)

const (
	// phases
	PHASE_SCHEMA     = "schema"
	PHASE_DATA       = "data"
	PHASE_SEQUENCES  = "sequences"
	PHASE_VALIDATION = "validation"

	// steps
	STEP_EXTRACT_SCHEMA    = "extract_schema"
	STEP_CLEAN_SCHEMA      = "clean_schema"
	STEP_APPLY_SCHEMA      = "apply_schema"
	STEP_FREEZE_SOURCE     = "freeze_source"
	STEP_EXTRACT_DATA      = "extract_data"
	STEP_LOAD_DATA         = "load_data"
	STEP_CAPTURE_SEQUENCES = "capture_sequences"
	STEP_APPLY_SEQUENCES   = "apply_sequences"
	STEP_VALIDATE          = "validate"
	STEP_WRITE_REPORT      = "write_report"
)

// PhaseError is returned by the orchestrator when a pipeline phase fails after
// it started doing work. Artifacts written before the failure are kept.
type PhaseError struct {
	phase      string
	steps      []string // steps of the phase completed before the failure
	failedStep string
	err        error
}

func (e *PhaseError) Error() string {
	if len(e.steps) > 0 {
		return fmt.Sprintf("%s phase failed at step '%s', after steps - (%s): %s",
			e.phase, e.failedStep, strings.Join(e.steps, ", "), e.err.Error())
	}
	return fmt.Sprintf("%s phase failed at step '%s': %s", e.phase, e.failedStep, e.err.Error())
}

func (e *PhaseError) Phase() string {
	return e.phase
}

func (e *PhaseError) Steps() []string {
	return e.steps
}

func (e *PhaseError) FailedStep() string {
	return e.failedStep
}

func (e *PhaseError) Unwrap() error {
	return e.err
}

// PhaseNumber is the N in failure-phase-N.
func (e *PhaseError) PhaseNumber() int {
	switch e.phase {
	case PHASE_SCHEMA:
		return 1
	case PHASE_DATA:
		return 2
	case PHASE_SEQUENCES:
		return 3
	case PHASE_VALIDATION:
		return 4
	}
	return 0
}

func NewPhaseError(phase string, failedStep string, err error) *PhaseError {
	return &PhaseError{
		phase:      phase,
		failedStep: failedStep,
		err:        err,
	}
}

func NewPhaseErrorWithSteps(phase string, steps []string, failedStep string, err error) *PhaseError {
	return &PhaseError{
		phase:      phase,
		steps:      steps,
		failedStep: failedStep,
		err:        err,
	}
}

// PreflightError means nothing was touched on either side.
type PreflightError struct {
	failedChecks []string
	err          error
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight failed (%s): %s", strings.Join(e.failedChecks, ", "), e.err.Error())
}

func (e *PreflightError) FailedChecks() []string {
	return e.failedChecks
}

func (e *PreflightError) Unwrap() error {
	return e.err
}

func NewPreflightError(failedChecks []string, err error) *PreflightError {
	return &PreflightError{failedChecks: failedChecks, err: err}
}
