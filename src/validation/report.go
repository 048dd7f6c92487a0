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
package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/samber/lo"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
)

type Status string

const (
	STATUS_PASS         Status = "pass"
	STATUS_FAIL         Status = "fail"
	STATUS_WARN         Status = "warn"
	STATUS_INCONCLUSIVE Status = "inconclusive"

	VERDICT_PASS = "pass"
	VERDICT_FAIL = "fail"
)

const (
	CHECK_CONNECTIVITY = "connectivity"
	CHECK_TABLE_SET    = "table_set"
	CHECK_ROW_COUNTS   = "row_counts"
	CHECK_SEQUENCES    = "sequences"
	CHECK_EXTENSIONS   = "extensions"
	CHECK_WRITE_PROBE  = "write_probe"
)

// Mismatch is one object that differs between source and target.
type Mismatch struct {
	Object string `json:"object"`
	Source string `json:"source,omitempty"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type CheckResult struct {
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	Critical   bool       `json:"critical"`
	Message    string     `json:"message"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

func (c *CheckResult) sortMismatches() {
	sort.SliceStable(c.Mismatches, func(i, j int) bool { return c.Mismatches[i].Object < c.Mismatches[j].Object })
}

// Report holds the check results in the order they were run.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Checks     []CheckResult `json:"checks"`
	Verdict    string        `json:"verdict"`
}

func (r *Report) add(c CheckResult) {
	c.sortMismatches()
	r.Checks = append(r.Checks, c)
}

func (r *Report) finish() {
	r.FinishedAt = time.Now().UTC()
	r.Verdict = VERDICT_PASS
	if lo.SomeBy(r.Checks, func(c CheckResult) bool { return c.Status == STATUS_FAIL }) {
		r.Verdict = VERDICT_FAIL
	}
}

func (r *Report) Passed() bool {
	return r.Verdict == VERDICT_PASS
}

// HasWarnings is true when some check neither passed nor failed.
func (r *Report) HasWarnings() bool {
	return lo.SomeBy(r.Checks, func(c CheckResult) bool {
		return c.Status == STATUS_WARN || c.Status == STATUS_INCONCLUSIVE
	})
}

func (r *Report) Check(name string) (CheckResult, bool) {
	return lo.Find(r.Checks, func(c CheckResult) bool { return c.Name == name })
}

func ReportFileName(runID string) string {
	return filepath.Join(constants.REPORTS_DIR, fmt.Sprintf("validation-%s.json", runID))
}

// WriteReport records the report in the store. A report is never rewritten.
func WriteReport(store *artifacts.Store, r *Report) (string, error) {
	bs, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal validation report: %w", err)
	}
	name := ReportFileName(r.RunID)
	_, err = store.CreateExclusive(name, bs)
	if err != nil {
		return "", err
	}
	return store.Path(name), nil
}

// PrintReport renders the report as tables. Failed critical checks come first.
func PrintReport(w io.Writer, r *Report) {
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	criticalfmt := color.New(color.FgRed, color.Bold).SprintFunc()

	checks := make([]CheckResult, len(r.Checks))
	copy(checks, r.Checks)
	sort.SliceStable(checks, func(i, j int) bool {
		return isCriticalFailure(checks[i]) && !isCriticalFailure(checks[j])
	})

	table := uitable.New()
	table.MaxColWidth = 80
	table.Wrap = true
	table.AddRow(headerfmt("CHECK"), headerfmt("STATUS"), headerfmt("MESSAGE"))
	for _, c := range checks {
		if isCriticalFailure(c) {
			table.AddRow(criticalfmt(c.Name), criticalfmt("CRITICAL "+string(c.Status)), criticalfmt(c.Message))
			continue
		}
		table.AddRow(c.Name, statusfmt(c.Status), c.Message)
	}
	fmt.Fprint(w, "\n")
	fmt.Fprintln(w, table)
	fmt.Fprint(w, "\n")

	for _, c := range checks {
		if len(c.Mismatches) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s mismatches:\n", c.Name)
		mt := uitable.New()
		mt.AddRow(headerfmt("OBJECT"), headerfmt("SOURCE"), headerfmt("TARGET"), headerfmt("DETAIL"))
		for _, m := range c.Mismatches {
			mt.AddRow(m.Object, m.Source, m.Target, m.Detail)
		}
		fmt.Fprintln(w, mt)
		fmt.Fprint(w, "\n")
	}

	if r.Passed() {
		fmt.Fprintln(w, color.GreenString("validation verdict: %s", r.Verdict))
	} else {
		fmt.Fprintln(w, color.RedString("validation verdict: %s", r.Verdict))
	}
}

func isCriticalFailure(c CheckResult) bool {
	return c.Critical && c.Status == STATUS_FAIL
}

func statusfmt(s Status) string {
	switch s {
	case STATUS_PASS:
		return color.GreenString(string(s))
	case STATUS_FAIL:
		return color.RedString(string(s))
	case STATUS_WARN, STATUS_INCONCLUSIVE:
		return color.YellowString(string(s))
	}
	return string(s)
}
