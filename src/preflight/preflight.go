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

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/errs"
)

// Check is one precondition of a migration run. Checks have no side effects.
type Check interface {
	Name() string
	SkipAllowed() bool
	Execute(ctx context.Context) Result
}

// Run conducts all checks except for those specified to be skipped. A check
// that cannot be skipped is run regardless.
func Run(ctx context.Context, checkList []Check, skipChecks ...string) *MappedResults {
	results := NewMappedResults()
	for _, check := range checkList {
		if lo.Contains(skipChecks, check.Name()) {
			if check.SkipAllowed() {
				log.Infof("skipping preflight check '%s'", check.Name())
				results.AddResult(Result{Check: check.Name(), Status: StatusSkipped})
				continue
			}
			log.Warnf("preflight check '%s' cannot be skipped", check.Name())
		}

		log.Infof("running preflight check '%s'", check.Name())
		result := check.Execute(ctx)
		result.Check = check.Name()
		results.AddResult(result)

		if result.Error != nil {
			if result.Status == StatusWarning {
				log.Warnf("preflight %s raised a warning: %v", check.Name(), result.Error)
			} else {
				log.Errorf("preflight %s failed: %v", check.Name(), result.Error)
			}
		}
	}
	return results
}

// ShouldFail is true when any check is critical. Warnings never fail a run.
func ShouldFail(results *MappedResults) bool {
	return len(results.Critical) > 0
}

// AsError returns the PreflightError for the critical results, or nil.
func AsError(results *MappedResults) error {
	if !ShouldFail(results) {
		return nil
	}
	names := lo.Map(results.Critical, func(r Result, _ int) string { return r.Check })
	return errs.NewPreflightError(names, fmt.Errorf("%d critical preflight check(s) failed", len(names)))
}

// PrintPreflightResults writes the results as a table, critical first.
func PrintPreflightResults(w io.Writer, results *MappedResults) {
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	table := uitable.New()
	table.MaxColWidth = 100
	table.Wrap = true
	table.AddRow(headerfmt("#"), headerfmt("CHECK"), headerfmt("STATUS"), headerfmt("ERROR"))
	counter := 0
	add := func(rs []Result, statusfmt func(a ...interface{}) string) {
		for _, r := range rs {
			counter++
			errMsg := ""
			if r.Error != nil {
				errMsg = r.Error.Error()
			}
			table.AddRow(counter, r.Check, statusfmt(r.Status.String()), errMsg)
		}
	}
	add(results.Critical, color.New(color.FgRed).SprintFunc())
	add(results.Warning, color.New(color.FgYellow).SprintFunc())
	add(results.Passed, color.New(color.FgGreen).SprintFunc())
	add(results.Skipped, fmt.Sprint)
	fmt.Fprintln(w, "Preflight checks:")
	fmt.Fprintln(w, table)
	fmt.Fprint(w, "\n")
}
