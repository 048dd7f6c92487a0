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
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/pgshift/pgshift/src/constants"
)

const (
	SCOPE_SCHEMA    = "schema"
	SCOPE_DATA      = "data"
	SCOPE_SEQUENCES = "sequences"
	SCOPE_ALL       = "all"
)

var allScopes = []string{SCOPE_SCHEMA, SCOPE_DATA, SCOPE_SEQUENCES}

// Session is one invocation of the pipeline. Connection URIs are taken as
// given and never persisted unredacted.
type Session struct {
	RunID     string
	Command   string
	SourceURI string
	TargetURI string
	WorkDir   string
	Schemas   []string

	DryRun            bool
	Scope             []string
	OverrideReadiness bool
	ProjectRoot       string

	ParallelJobs     int
	DisablePb        bool
	PlatformRoles    []string
	TargetExtensions []string
}

func NewSession(sourceURI, targetURI, workDir string) *Session {
	return &Session{
		RunID:         uuid.New().String(),
		Command:       "migrate",
		SourceURI:     sourceURI,
		TargetURI:     targetURI,
		WorkDir:       workDir,
		Schemas:       []string{constants.DEFAULT_APP_SCHEMA},
		Scope:         allScopes,
		ParallelJobs:  4,
		PlatformRoles: constants.DefaultPlatformRoles,
	}
}

// ParseScope validates a phase scope list. An empty list or "all" selects
// every phase.
func ParseScope(values []string) ([]string, error) {
	values = lo.Map(values, func(v string, _ int) string { return strings.ToLower(strings.TrimSpace(v)) })
	values = lo.Filter(values, func(v string, _ int) bool { return v != "" })
	if len(values) == 0 || lo.Contains(values, SCOPE_ALL) {
		return allScopes, nil
	}
	for _, v := range values {
		if !lo.Contains(allScopes, v) {
			return nil, fmt.Errorf("invalid phase scope %q: expected a subset of %s or %q",
				v, strings.Join(allScopes, ","), SCOPE_ALL)
		}
	}
	// keep phase order
	return lo.Filter(allScopes, func(s string, _ int) bool { return lo.Contains(values, s) }), nil
}

func (s *Session) InScope(phase string) bool {
	return len(s.Scope) == 0 || lo.Contains(s.Scope, phase)
}
