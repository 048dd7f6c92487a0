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
package coupling

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/pgshift/pgshift/src/constants"
)

// Auditor scores how tightly an application is bound to the source platform.
// The pipeline only consumes this contract.
type Auditor interface {
	Audit(root string) (*Finding, error)
}

// Finding is the outcome of an audit. Categories counts the occurrences of
// each kind of platform coupling found under the project root.
type Finding struct {
	Root       string         `json:"root"`
	Tier       string         `json:"tier"`
	Categories map[string]int `json:"categories"`
	Rationale  string         `json:"rationale"`
	// file:line of every occurrence, per category
	Locations map[string][]string `json:"locations,omitempty"`
}

func (f *Finding) Total() int {
	return lo.Sum(lo.Values(f.Categories))
}

// Blocking reports whether the tier should stop a migration unless overridden.
func (f *Finding) Blocking() bool {
	return f.Tier == constants.TIER_MODERATE || f.Tier == constants.TIER_HIGH
}

func (f *Finding) String() string {
	names := lo.Keys(f.Categories)
	sort.Strings(names)
	parts := lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("%s=%d", name, f.Categories[name])
	})
	return fmt.Sprintf("tier %s (%s)", f.Tier, strings.Join(parts, ", "))
}
