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
package preflight

import "strconv"

// Result of a check
type Result struct {
	Status Status
	Check  string
	Error  error
}

// MappedResults are results by their status
type MappedResults struct {
	Passed   []Result
	Warning  []Result
	Critical []Result
	Skipped  []Result
}

func NewMappedResults() *MappedResults {
	return &MappedResults{
		Passed:   make([]Result, 0),
		Warning:  make([]Result, 0),
		Critical: make([]Result, 0),
		Skipped:  make([]Result, 0),
	}
}

// AddResult will add a new result to its correct status list
func (mr *MappedResults) AddResult(result Result) {
	switch result.Status {
	case StatusPassed:
		mr.Passed = append(mr.Passed, result)
	case StatusWarning:
		mr.Warning = append(mr.Warning, result)
	case StatusCritical:
		mr.Critical = append(mr.Critical, result)
	case StatusSkipped:
		mr.Skipped = append(mr.Skipped, result)
	default:
		panic("unknown status")
	}
}

// Status of a check
type Status int

const (
	// Pass - check fully succeeds
	// Warning - check passed, but the run should be watched
	// Critical - check failed, the migration must not start
	// Skipped - check was not run
	StatusPassed Status = iota
	StatusWarning
	StatusCritical
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusCritical:
		return "Critical"
	case StatusWarning:
		return "Warning"
	case StatusPassed:
		return "Pass"
	case StatusSkipped:
		return "Skipped"
	default:
		return "unknown status value " + strconv.Itoa(int(s))
	}
}
