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
package orchestrator

import (
	"fmt"

	"github.com/pgshift/pgshift/src/constants"
)

const (
	OUTCOME_SUCCESS           = "success"
	OUTCOME_PARTIAL_SUCCESS   = "partial-success-with-warnings"
	OUTCOME_FAILURE_PREFLIGHT = "failure-preflight"
	OUTCOME_FAILURE_PHASE     = "failure-phase"
)

// Outcome is how a run ended. A preflight failure means nothing was touched;
// a phase failure means the numbered phase may have partially executed.
type Outcome struct {
	Result     string
	Phase      int
	Err        error
	Warnings   []string
	ReportPath string
	Verdict    string
	FinalState string
}

func (o *Outcome) String() string {
	if o.Result == OUTCOME_FAILURE_PHASE {
		return fmt.Sprintf("%s-%d", OUTCOME_FAILURE_PHASE, o.Phase)
	}
	return o.Result
}

func (o *Outcome) ExitCode() int {
	switch o.Result {
	case OUTCOME_SUCCESS:
		return constants.EXIT_SUCCESS
	case OUTCOME_PARTIAL_SUCCESS:
		return constants.EXIT_PARTIAL_WITH_WARNINGS
	case OUTCOME_FAILURE_PREFLIGHT:
		return constants.EXIT_FAILURE_PREFLIGHT
	case OUTCOME_FAILURE_PHASE:
		return constants.EXIT_FAILURE_PHASE_BASE + o.Phase
	}
	panic(fmt.Sprintf("unknown outcome %q", o.Result))
}

func successOutcome(warnings []string) *Outcome {
	if len(warnings) > 0 {
		return &Outcome{Result: OUTCOME_PARTIAL_SUCCESS, Warnings: warnings}
	}
	return &Outcome{Result: OUTCOME_SUCCESS}
}
