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
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/utils/sqlname"
)

// Database is the access validation needs to one side. *sql.DB implements it.
type Database interface {
	pgcatalog.Querier
	PingContext(ctx context.Context) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type Config struct {
	RunID        string
	Schemas      []string
	ParallelJobs int
}

// Validator compares source and target through the catalogs and one probe
// write. It never changes the data of either side.
type Validator struct {
	source Database
	target Database
	cfg    Config
}

func NewValidator(source, target Database, cfg Config) *Validator {
	if cfg.ParallelJobs < 1 {
		cfg.ParallelJobs = 1
	}
	return &Validator{source: source, target: target, cfg: cfg}
}

// Validate runs every check in a fixed order. Check failures are report
// entries, not errors.
func (v *Validator) Validate(ctx context.Context) *Report {
	r := &Report{RunID: v.cfg.RunID, StartedAt: time.Now().UTC()}

	conn, sourceUp, targetUp := v.checkConnectivity(ctx)
	r.add(conn)
	bothUp := sourceUp && targetUp

	var sourceTables, targetTables []sqlname.ObjectName
	tablesListed := false
	if bothUp {
		var c CheckResult
		c, sourceTables, targetTables, tablesListed = v.checkTableSet(ctx)
		r.add(c)
	} else {
		r.add(unreachable(CHECK_TABLE_SET, false))
	}

	if tablesListed {
		r.add(v.checkRowCounts(ctx, sourceTables, targetTables))
	} else {
		r.add(unreachable(CHECK_ROW_COUNTS, false))
	}

	if bothUp {
		r.add(v.checkSequences(ctx))
		r.add(v.checkExtensions(ctx))
	} else {
		r.add(unreachable(CHECK_SEQUENCES, true))
		r.add(unreachable(CHECK_EXTENSIONS, false))
	}

	if targetUp {
		r.add(v.checkWriteProbe(ctx))
	} else {
		r.add(unreachable(CHECK_WRITE_PROBE, false))
	}

	r.finish()
	log.Infof("validation %s: verdict %s", r.RunID, r.Verdict)
	return r
}

func unreachable(name string, critical bool) CheckResult {
	return CheckResult{
		Name:     name,
		Status:   STATUS_INCONCLUSIVE,
		Critical: critical,
		Message:  "skipped: an endpoint it depends on is unreachable",
	}
}

func (v *Validator) checkConnectivity(ctx context.Context) (CheckResult, bool, bool) {
	c := CheckResult{Name: CHECK_CONNECTIVITY, Status: STATUS_PASS, Message: "source and target reachable"}
	sourceErr := v.source.PingContext(ctx)
	targetErr := v.target.PingContext(ctx)
	if sourceErr != nil {
		c.Mismatches = append(c.Mismatches, Mismatch{Object: "source", Detail: sourceErr.Error()})
	}
	if targetErr != nil {
		c.Mismatches = append(c.Mismatches, Mismatch{Object: "target", Detail: targetErr.Error()})
	}
	if len(c.Mismatches) > 0 {
		c.Status = STATUS_FAIL
		c.Message = fmt.Sprintf("%d endpoint(s) unreachable", len(c.Mismatches))
	}
	return c, sourceErr == nil, targetErr == nil
}

func (v *Validator) checkTableSet(ctx context.Context) (CheckResult, []sqlname.ObjectName, []sqlname.ObjectName, bool) {
	c := CheckResult{Name: CHECK_TABLE_SET}
	sourceTables, err := pgcatalog.ListTables(ctx, v.source, v.cfg.Schemas)
	if err != nil {
		return errored(c, "source", err), nil, nil, false
	}
	targetTables, err := pgcatalog.ListTables(ctx, v.target, v.cfg.Schemas)
	if err != nil {
		return errored(c, "target", err), nil, nil, false
	}
	sourceSet := mapset.NewThreadUnsafeSet(sourceTables...)
	targetSet := mapset.NewThreadUnsafeSet(targetTables...)
	for _, t := range sourceSet.Difference(targetSet).ToSlice() {
		c.Mismatches = append(c.Mismatches, Mismatch{Object: t.Unquoted(), Source: "present", Target: "missing"})
	}
	for _, t := range targetSet.Difference(sourceSet).ToSlice() {
		c.Mismatches = append(c.Mismatches, Mismatch{Object: t.Unquoted(), Source: "missing", Target: "present"})
	}
	if len(c.Mismatches) > 0 {
		c.Status = STATUS_FAIL
		c.Message = fmt.Sprintf("%d table(s) differ between source and target", len(c.Mismatches))
	} else {
		c.Status = STATUS_PASS
		c.Message = fmt.Sprintf("%d tables on both sides", len(sourceTables))
	}
	return c, sourceTables, targetTables, true
}

type tableCount struct {
	table  sqlname.ObjectName
	source int64
	target int64
	err    error
}

func (v *Validator) checkRowCounts(ctx context.Context, sourceTables, targetTables []sqlname.ObjectName) CheckResult {
	c := CheckResult{Name: CHECK_ROW_COUNTS}
	sourceSet := mapset.NewThreadUnsafeSet(sourceTables...)
	targetSet := mapset.NewThreadUnsafeSet(targetTables...)

	for _, t := range sourceSet.SymmetricDifference(targetSet).ToSlice() {
		side := "target"
		if !sourceSet.Contains(t) {
			side = "source"
		}
		c.Mismatches = append(c.Mismatches, Mismatch{Object: t.Unquoted(), Detail: fmt.Sprintf("table missing on %s", side)})
	}
	oneSided := len(c.Mismatches)

	common := sourceSet.Intersect(targetSet).ToSlice()
	sort.Slice(common, func(i, j int) bool { return common[i].Less(common[j]) })

	p := pool.NewWithResults[tableCount]().WithMaxGoroutines(v.cfg.ParallelJobs)
	for _, table := range common {
		table := table
		p.Go(func() tableCount {
			res := tableCount{table: table}
			res.source, res.err = pgcatalog.CountRows(ctx, v.source, table)
			if res.err != nil {
				return res
			}
			res.target, res.err = pgcatalog.CountRows(ctx, v.target, table)
			return res
		})
	}
	counts := p.Wait()

	for _, tc := range counts {
		switch {
		case tc.err != nil:
			c.Mismatches = append(c.Mismatches, Mismatch{Object: tc.table.Unquoted(), Detail: tc.err.Error()})
		case tc.source != tc.target:
			c.Mismatches = append(c.Mismatches, Mismatch{
				Object: tc.table.Unquoted(),
				Source: strconv.FormatInt(tc.source, 10),
				Target: strconv.FormatInt(tc.target, 10),
				Detail: fmt.Sprintf("row count differs by %d", tc.target-tc.source),
			})
		}
	}
	if len(c.Mismatches) > 0 {
		c.Status = STATUS_FAIL
		c.Message = fmt.Sprintf("%d of %d table(s) differ", len(c.Mismatches), len(common)+oneSided)
	} else {
		c.Status = STATUS_PASS
		c.Message = fmt.Sprintf("row counts match for %d tables", len(common))
	}
	return c
}

func (v *Validator) checkSequences(ctx context.Context) CheckResult {
	c := CheckResult{Name: CHECK_SEQUENCES, Critical: true}
	sourceSeqs, err := pgcatalog.ListSequences(ctx, v.source, v.cfg.Schemas)
	if err != nil {
		return errored(c, "source", err)
	}
	targetSeqs, err := pgcatalog.ListSequences(ctx, v.target, v.cfg.Schemas)
	if err != nil {
		return errored(c, "target", err)
	}
	targetByName := lo.SliceToMap(targetSeqs, func(s pgcatalog.SequenceValue) (string, sql.NullInt64) {
		return s.Name.Unquoted(), s.LastValue
	})
	for _, seq := range sourceSeqs {
		name := seq.Name.Unquoted()
		targetValue, found := targetByName[name]
		switch {
		case !found:
			c.Mismatches = append(c.Mismatches, Mismatch{Object: name, Source: formatCursor(seq.LastValue), Target: "missing"})
		case targetValue != seq.LastValue:
			c.Mismatches = append(c.Mismatches, Mismatch{
				Object: name,
				Source: formatCursor(seq.LastValue),
				Target: formatCursor(targetValue),
				Detail: "sequence cursor differs",
			})
		}
	}
	if len(c.Mismatches) > 0 {
		c.Status = STATUS_FAIL
		c.Message = fmt.Sprintf("%d of %d sequence(s) out of sync", len(c.Mismatches), len(sourceSeqs))
	} else {
		c.Status = STATUS_PASS
		c.Message = fmt.Sprintf("%d sequences in sync", len(sourceSeqs))
	}
	return c
}

func formatCursor(v sql.NullInt64) string {
	if !v.Valid {
		return "unused"
	}
	return strconv.FormatInt(v.Int64, 10)
}

func (v *Validator) checkExtensions(ctx context.Context) CheckResult {
	c := CheckResult{Name: CHECK_EXTENSIONS}
	sourceExts, err := pgcatalog.ListExtensions(ctx, v.source)
	if err != nil {
		return errored(c, "source", err)
	}
	targetExts, err := pgcatalog.ListExtensions(ctx, v.target)
	if err != nil {
		return errored(c, "target", err)
	}
	targetSet := mapset.NewThreadUnsafeSet(targetExts...)
	for _, ext := range sourceExts {
		if !targetSet.Contains(ext) {
			c.Mismatches = append(c.Mismatches, Mismatch{Object: ext, Source: "installed", Target: "missing"})
		}
	}
	if len(c.Mismatches) > 0 {
		c.Status = STATUS_WARN
		c.Message = fmt.Sprintf("%d source extension(s) not installed on target", len(c.Mismatches))
	} else {
		c.Status = STATUS_PASS
		c.Message = "all source extensions installed on target"
	}
	return c
}

// checkWriteProbe inserts a row of defaults into a sequence backed table of
// the target inside a transaction that is rolled back, then puts the
// sequence cursor back where it was.
func (v *Validator) checkWriteProbe(ctx context.Context) CheckResult {
	c := CheckResult{Name: CHECK_WRITE_PROBE}
	candidates, err := pgcatalog.SequenceBackedTables(ctx, v.target, v.cfg.Schemas)
	if err != nil {
		return errored(c, "target", err)
	}
	if len(candidates) == 0 {
		c.Status = STATUS_INCONCLUSIVE
		c.Message = "no sequence backed table on target"
		return c
	}

	var probe *pgcatalog.SequenceColumn
	var skipped []string
	for i := range candidates {
		mandatory, err := pgcatalog.MandatoryColumns(ctx, v.target, candidates[i].Table)
		if err != nil {
			return errored(c, "target", err)
		}
		if len(mandatory) == 0 {
			probe = &candidates[i]
			break
		}
		skipped = append(skipped, fmt.Sprintf("%s(%s)", candidates[i].Table.Unquoted(), strings.Join(mandatory, ",")))
	}
	if probe == nil {
		c.Status = STATUS_INCONCLUSIVE
		c.Message = "every sequence backed table has mandatory columns without default: " + strings.Join(lo.Uniq(skipped), ", ")
		return c
	}

	lastValue, isCalled, err := pgcatalog.ReadSequenceState(ctx, v.target, probe.Sequence)
	if err != nil {
		return errored(c, "target", err)
	}
	got, insertErr := v.insertAndRollback(ctx, probe)
	restoreErr := v.restoreSequence(ctx, probe.Sequence, lastValue, isCalled)
	if restoreErr != nil {
		log.Errorf("write probe: restore sequence %s: %v", probe.Sequence, restoreErr)
	}

	object := probe.Table.Unquoted()
	switch {
	case insertErr != nil:
		c.Status = STATUS_FAIL
		c.Message = fmt.Sprintf("insert into %s failed", object)
		c.Mismatches = []Mismatch{{Object: object, Detail: insertErr.Error()}}
	case restoreErr != nil:
		c.Status = STATUS_FAIL
		c.Message = fmt.Sprintf("sequence %s could not be restored after the probe", probe.Sequence.Unquoted())
		c.Mismatches = []Mismatch{{Object: probe.Sequence.Unquoted(), Detail: restoreErr.Error()}}
	case isCalled && got <= lastValue, !isCalled && got < lastValue:
		c.Status = STATUS_FAIL
		c.Message = fmt.Sprintf("%s.%s got %d, expected a value after %d", object, probe.Column, got, lastValue)
		c.Mismatches = []Mismatch{{Object: object, Target: strconv.FormatInt(got, 10), Detail: "sequence would reissue a value"}}
	default:
		c.Status = STATUS_PASS
		c.Message = fmt.Sprintf("insert into %s accepted with %s=%d (rolled back)", object, probe.Column, got)
	}
	return c
}

func (v *Validator) insertAndRollback(ctx context.Context, probe *pgcatalog.SequenceColumn) (int64, error) {
	tx, err := v.target.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin probe transaction: %w", err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil {
			log.Warnf("rollback write probe: %v", rerr)
		}
	}()
	query := fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", probe.Table.Quoted(), sqlname.QuoteIdent(probe.Column))
	var got int64
	err = tx.QueryRowContext(ctx, query).Scan(&got)
	if err != nil {
		return 0, err
	}
	return got, nil
}

func (v *Validator) restoreSequence(ctx context.Context, seq sqlname.ObjectName, lastValue int64, isCalled bool) error {
	query := fmt.Sprintf("SELECT pg_catalog.setval('%s', %d, %t)",
		strings.ReplaceAll(seq.Qualified(), "'", "''"), lastValue, isCalled)
	_, err := v.target.ExecContext(ctx, query)
	return err
}

func errored(c CheckResult, side string, err error) CheckResult {
	c.Status = STATUS_FAIL
	c.Message = fmt.Sprintf("could not read %s: %v", side, err)
	return c
}
