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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/coupling"
	"github.com/pgshift/pgshift/src/datatransfer"
	"github.com/pgshift/pgshift/src/errs"
	"github.com/pgshift/pgshift/src/metadb"
	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/preflight"
	"github.com/pgshift/pgshift/src/schema"
	"github.com/pgshift/pgshift/src/sequences"
	"github.com/pgshift/pgshift/src/srcdb"
	"github.com/pgshift/pgshift/src/tgtdb"
	"github.com/pgshift/pgshift/src/utils"
	"github.com/pgshift/pgshift/src/validation"
)

// Orchestrator drives one session through the phases. Phases run strictly
// one after the other and every completed step is checkpointed in the meta db.
type Orchestrator struct {
	session *Session
	store   *artifacts.Store
	metaDB  *metadb.MetaDB
	auditor coupling.Auditor
	out     io.Writer

	source  *srcdb.Source
	target  *tgtdb.Target
	engine  *datatransfer.Engine
	machine *Machine

	checks   []preflight.Check
	warnings []string
}

func New(session *Session, store *artifacts.Store, metaDB *metadb.MetaDB, auditor coupling.Auditor) *Orchestrator {
	o := &Orchestrator{
		session: session,
		store:   store,
		metaDB:  metaDB,
		auditor: auditor,
		out:     os.Stdout,
		source:  srcdb.NewSource(session.SourceURI, session.Schemas),
		target:  tgtdb.NewTarget(session.TargetURI, session.Schemas),
	}
	o.engine = datatransfer.NewEngine(o.source, o.target, store, metaDB, datatransfer.Config{
		RunID:     session.RunID,
		Command:   session.Command,
		DisablePb: session.DisablePb,
	})
	o.machine = NewMachine(o.persistState)
	return o
}

func (o *Orchestrator) SetOutput(w io.Writer) {
	o.out = w
}

// SetPreflightChecks replaces the default preflight checks.
func (o *Orchestrator) SetPreflightChecks(checks []preflight.Check) {
	o.checks = checks
}

func (o *Orchestrator) State() string {
	return o.machine.State()
}

func (o *Orchestrator) Close() {
	o.source.Disconnect()
	o.target.Disconnect()
}

// Run executes the session. The returned outcome carries the error, if any.
func (o *Orchestrator) Run(ctx context.Context) *Outcome {
	outcome := o.run(ctx)
	outcome.FinalState = o.machine.State()
	if outcome.Err != nil {
		log.Errorf("run %s ended with %s: %v", o.session.RunID, outcome, outcome.Err)
	} else {
		log.Infof("run %s ended with %s", o.session.RunID, outcome)
	}
	return outcome
}

func (o *Orchestrator) run(ctx context.Context) *Outcome {
	err := o.machine.Transition(STATE_PREFLIGHT)
	if err != nil {
		return o.failPreflight(err)
	}
	err = o.recordSession()
	if err != nil {
		return o.failPreflight(err)
	}
	results := preflight.Run(ctx, o.preflightChecks())
	preflight.PrintPreflightResults(o.out, results)
	err = preflight.AsError(results)
	if err != nil {
		return o.failPreflight(err)
	}
	for _, r := range results.Warning {
		o.warn("preflight %s: %v", r.Check, r.Error)
	}

	err = o.machine.Transition(STATE_SCHEMA_PHASE)
	if err != nil {
		return o.fail(err)
	}
	if o.session.InScope(SCOPE_SCHEMA) {
		err = o.schemaPhase(ctx)
		if err != nil {
			return o.fail(err)
		}
	} else {
		utils.PrintAndLog("skipping schema phase: not in scope")
	}
	if o.session.DryRun {
		utils.PrintAndLog("dry run: stopping before the data phase, nothing was written to the target")
		err = o.machine.Transition(STATE_DONE)
		if err != nil {
			return o.fail(err)
		}
		return successOutcome(o.warnings)
	}

	phases := []struct {
		state string
		scope string
		run   func(context.Context) error
	}{
		{STATE_DATA_PHASE, SCOPE_DATA, o.dataPhase},
		{STATE_SEQUENCE_PHASE, SCOPE_SEQUENCES, o.sequencePhase},
	}
	for _, phase := range phases {
		err = o.machine.Transition(phase.state)
		if err != nil {
			return o.fail(err)
		}
		if !o.session.InScope(phase.scope) {
			utils.PrintAndLog("skipping %s phase: not in scope", phase.scope)
			continue
		}
		err = phase.run(ctx)
		if err != nil {
			return o.fail(err)
		}
	}

	outcome := o.validationOutcome(ctx)
	if outcome.Result == OUTCOME_FAILURE_PHASE {
		o.toFailed()
		return outcome
	}
	for _, state := range []string{STATE_VALIDATED, STATE_DONE} {
		err = o.machine.Transition(state)
		if err != nil {
			return o.fail(err)
		}
	}
	return outcome
}

// Validate runs only the validation phase. It is what `pgshift validate` does.
func (o *Orchestrator) Validate(ctx context.Context) *Outcome {
	err := o.recordSession()
	if err != nil {
		return &Outcome{Result: OUTCOME_FAILURE_PHASE, Phase: 4, Err: err}
	}
	outcome := o.validationOutcome(ctx)
	outcome.FinalState = o.machine.State()
	return outcome
}

// Rollback lifts the freeze of the source. It is the only way to do so.
func (o *Orchestrator) Rollback(ctx context.Context) error {
	err := o.source.Connect(ctx)
	if err != nil {
		return err
	}
	return o.engine.UnfreezeSource(ctx)
}

func (o *Orchestrator) preflightChecks() []preflight.Check {
	if o.checks != nil {
		return o.checks
	}
	return []preflight.Check{
		preflight.Reachable(preflight.CHECK_SOURCE_REACHABLE, o.source),
		preflight.Reachable(preflight.CHECK_TARGET_REACHABLE, o.target),
		preflight.PgDump(o.source),
		preflight.Readiness(o.auditor, o.session.ProjectRoot, o.session.OverrideReadiness),
	}
}

func (o *Orchestrator) failPreflight(err error) *Outcome {
	o.toFailed()
	return &Outcome{Result: OUTCOME_FAILURE_PREFLIGHT, Err: err}
}

func (o *Orchestrator) fail(err error) *Outcome {
	state := o.machine.State()
	o.toFailed()
	var phaseErr *errs.PhaseError
	if errors.As(err, &phaseErr) {
		return &Outcome{Result: OUTCOME_FAILURE_PHASE, Phase: phaseErr.PhaseNumber(), Err: err, Warnings: o.warnings}
	}
	return &Outcome{Result: OUTCOME_FAILURE_PHASE, Phase: phaseNumberOfState(state), Err: err, Warnings: o.warnings}
}

func (o *Orchestrator) toFailed() {
	if IsTerminal(o.machine.State()) {
		return
	}
	err := o.machine.Transition(STATE_FAILED)
	if err != nil {
		log.Errorf("record failed state: %v", err)
	}
}

func phaseNumberOfState(state string) int {
	switch state {
	case STATE_SCHEMA_PHASE:
		return 1
	case STATE_DATA_PHASE:
		return 2
	case STATE_SEQUENCE_PHASE:
		return 3
	}
	return 4
}

func (o *Orchestrator) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	o.warnings = append(o.warnings, msg)
	utils.PrintAndLog("WARNING: %s", msg)
}

func (o *Orchestrator) persistState(from, to string) error {
	return o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.CurrentState = to
		if to == STATE_FAILED {
			record.LastFailedPhase = from
		}
	})
}

// recordSession registers the run in the status record. A work dir is bound
// to the application schemas of its first run.
func (o *Orchestrator) recordSession() error {
	err := o.metaDB.InitMigrationStatusRecord()
	if err != nil {
		return err
	}
	record, err := o.statusRecord()
	if err != nil {
		return err
	}
	if len(record.AppSchemas) > 0 && !mapset.NewSet(record.AppSchemas...).Equal(mapset.NewSet(o.session.Schemas...)) {
		return fmt.Errorf("work dir %s holds a migration of schemas %v, not %v: use --start-clean to start over",
			o.session.WorkDir, record.AppSchemas, o.session.Schemas)
	}
	return o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.RunIDs = append(record.RunIDs, o.session.RunID)
		record.SourceDBRedacted = o.source.RedactedUri()
		record.TargetDBRedacted = o.target.RedactedUri()
		record.AppSchemas = o.session.Schemas
	})
}

func (o *Orchestrator) statusRecord() (*metadb.MigrationStatusRecord, error) {
	record, err := o.metaDB.GetMigrationStatusRecord()
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &metadb.MigrationStatusRecord{}, nil
	}
	return record, nil
}

// checkpointTrusted is true when a step was recorded as done and the
// artifact it produced is still the one in the manifest.
func (o *Orchestrator) checkpointTrusted(done bool, name string, digest string) bool {
	if !done || digest == "" {
		return false
	}
	ok, err := o.store.Verify(name)
	if err != nil || !ok {
		log.Warnf("checkpoint for %s not trusted: artifact missing or modified (err=%v)", name, err)
		return false
	}
	entry, found, err := o.store.Lookup(name)
	if err != nil || !found {
		return false
	}
	if entry.SHA256 != digest {
		log.Warnf("checkpoint for %s not trusted: digest %s, manifest has %s", name, digest, entry.SHA256)
		return false
	}
	return true
}

func (o *Orchestrator) digestOf(name string) (string, error) {
	entry, found, err := o.store.Lookup(name)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("artifact %s is not recorded", name)
	}
	return entry.SHA256, nil
}

type phaseSteps struct {
	phase string
	done  []string
}

func (p *phaseSteps) complete(step string) {
	p.done = append(p.done, step)
}

func (p *phaseSteps) fail(step string, err error) error {
	return errs.NewPhaseErrorWithSteps(p.phase, p.done, step, err)
}

func (o *Orchestrator) cleanRules() schema.CleanRules {
	rules := schema.CleanRules{PlatformRoles: o.session.PlatformRoles, Capabilities: schema.DefaultCapabilitySet()}
	if len(o.session.TargetExtensions) > 0 {
		rules.Capabilities = schema.NewCapabilitySet(o.session.TargetExtensions...)
	}
	if len(rules.PlatformRoles) == 0 {
		rules.PlatformRoles = constants.DefaultPlatformRoles
	}
	return rules
}

func (o *Orchestrator) schemaPhase(ctx context.Context) error {
	steps := &phaseSteps{phase: errs.PHASE_SCHEMA}
	tr := schema.NewTransformer(o.source, o.store, o.cleanRules())
	record, err := o.statusRecord()
	if err != nil {
		return steps.fail(errs.STEP_EXTRACT_SCHEMA, err)
	}

	var a *schema.Artifact
	trusted := o.checkpointTrusted(record.SchemaExportDone, constants.SCHEMA_CLEAN_FILE_NAME, record.SchemaCleanDigest)
	applyStarted := trusted && record.SchemaApplyStarted
	if trusted {
		utils.PrintAndLog("schema already extracted and cleaned, reusing %s", o.store.Path(constants.SCHEMA_CLEAN_FILE_NAME))
		a, err = tr.Load()
		if err != nil {
			return steps.fail(errs.STEP_CLEAN_SCHEMA, err)
		}
	} else {
		raw, err := tr.Extract(ctx)
		if err != nil {
			return steps.fail(errs.STEP_EXTRACT_SCHEMA, err)
		}
		steps.complete(errs.STEP_EXTRACT_SCHEMA)
		a, err = tr.Clean(raw)
		if err != nil {
			return steps.fail(errs.STEP_CLEAN_SCHEMA, err)
		}
		digest, err := o.digestOf(constants.SCHEMA_CLEAN_FILE_NAME)
		if err != nil {
			return steps.fail(errs.STEP_CLEAN_SCHEMA, err)
		}
		err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
			// an apply begun with the same cleaned schema is still resumable
			record.SchemaApplyStarted = record.SchemaApplyStarted && record.SchemaCleanDigest == digest
			record.SchemaExportDone = true
			record.SchemaCleanDigest = digest
			record.SchemaApplied = false
			applyStarted = record.SchemaApplyStarted
		})
		if err != nil {
			return steps.fail(errs.STEP_CLEAN_SCHEMA, err)
		}
		utils.PrintAndLog("cleaned schema written to %s (%d statements removed)",
			o.store.Path(constants.SCHEMA_CLEAN_FILE_NAME), len(a.Removed))
	}
	steps.complete(errs.STEP_CLEAN_SCHEMA)
	for _, ext := range a.BlockedExtensions {
		o.warn("extension %s is not available on the target, its creation was removed from the schema", ext)
	}

	if o.session.DryRun {
		return nil
	}
	if trusted && record.SchemaApplied {
		utils.PrintAndLog("cleaned schema already applied to the target")
		return nil
	}
	if applyStarted {
		utils.PrintAndLog("resuming the schema apply: objects already on the target are kept")
	} else {
		err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
			record.SchemaApplyStarted = true
		})
		if err != nil {
			return steps.fail(errs.STEP_APPLY_SCHEMA, err)
		}
	}
	result, err := tr.Apply(ctx, o.target, a, applyStarted)
	if err != nil {
		return steps.fail(errs.STEP_APPLY_SCHEMA, err)
	}
	err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.SchemaApplied = result.Errors == 0
		record.SchemaApplyErrors = result.Errors
	})
	if err != nil {
		return steps.fail(errs.STEP_APPLY_SCHEMA, err)
	}
	if result.Errors > 0 {
		return steps.fail(errs.STEP_APPLY_SCHEMA, fmt.Errorf("%d of %d schema statements failed, see %s",
			result.Errors, result.Statements, o.store.Path(constants.SCHEMA_RESTORE_ERRORS_FILENAME)))
	}
	if result.AlreadyApplied > 0 {
		utils.PrintAndLog("applied cleaned schema to the target: %d statements, %d already applied by an earlier run",
			result.Statements, result.AlreadyApplied)
		return nil
	}
	utils.PrintAndLog("applied cleaned schema to the target: %d statements", result.Statements)
	return nil
}

func (o *Orchestrator) dataPhase(ctx context.Context) error {
	steps := &phaseSteps{phase: errs.PHASE_DATA}
	record, err := o.statusRecord()
	if err != nil {
		return steps.fail(errs.STEP_FREEZE_SOURCE, err)
	}
	err = o.engine.SyncFreezeState(ctx)
	if err != nil {
		return steps.fail(errs.STEP_FREEZE_SOURCE, err)
	}
	trusted := o.checkpointTrusted(record.DataExportDone, constants.DATA_FILE_NAME, record.DataDigest)
	if trusted && !o.engine.IsFrozen() {
		return steps.fail(errs.STEP_FREEZE_SOURCE,
			fmt.Errorf("the source was unfrozen after its data was extracted, so %s may be stale: use --start-clean to start over",
				constants.DATA_FILE_NAME))
	}
	err = o.engine.FreezeSource(ctx)
	if err != nil {
		return steps.fail(errs.STEP_FREEZE_SOURCE, err)
	}
	steps.complete(errs.STEP_FREEZE_SOURCE)
	utils.PrintAndLog("source is frozen: new sessions are read-only until `pgshift rollback`")

	var a *datatransfer.DataArtifact
	if trusted {
		a, err = o.engine.LoadArtifact()
		if err != nil {
			return steps.fail(errs.STEP_EXTRACT_DATA, err)
		}
		utils.PrintAndLog("data already extracted, reusing %s", a.Path)
	} else {
		a, err = o.engine.ExtractData(ctx)
		if err != nil {
			return steps.fail(errs.STEP_EXTRACT_DATA, err)
		}
		err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
			if record.DataDigest != a.SHA256 {
				record.DataLoadedTables = nil
			}
			record.DataExportDone = true
			record.DataDigest = a.SHA256
			record.DataLoaded = false
		})
		if err != nil {
			return steps.fail(errs.STEP_EXTRACT_DATA, err)
		}
		utils.PrintAndLog("extracted %s of data to %s", humanize.Bytes(uint64(a.Size)), a.Path)
	}
	steps.complete(errs.STEP_EXTRACT_DATA)

	if trusted && record.DataLoaded {
		utils.PrintAndLog("data already loaded into the target")
		return nil
	}
	result, err := o.engine.LoadData(ctx, a)
	if err != nil {
		return steps.fail(errs.STEP_LOAD_DATA, err)
	}
	err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.DataLoaded = true
		record.DataLoadErrors = result.Errors
	})
	if err != nil {
		return steps.fail(errs.STEP_LOAD_DATA, err)
	}
	utils.PrintAndLog("loaded %s rows in %d tables", humanize.Comma(result.RowsCopied), result.CopyBlocks)
	if result.CopyBlocksSkipped > 0 {
		utils.PrintAndLog("%d tables were loaded by an earlier run and skipped", result.CopyBlocksSkipped)
	}
	if result.Errors > 0 {
		o.warn("%d statements of the data load failed, see %s",
			result.Errors, o.store.Path(constants.DATA_RESTORE_ERRORS_FILENAME))
	}
	return nil
}

func (o *Orchestrator) sequencePhase(ctx context.Context) error {
	steps := &phaseSteps{phase: errs.PHASE_SEQUENCES}
	record, err := o.statusRecord()
	if err != nil {
		return steps.fail(errs.STEP_CAPTURE_SEQUENCES, err)
	}
	err = o.engine.SyncFreezeState(ctx)
	if err != nil {
		return steps.fail(errs.STEP_CAPTURE_SEQUENCES, err)
	}
	sync := sequences.NewSynchronizer(o.source.DB(), o.session.Schemas, o.engine, o.target, o.store)

	var state *sequences.State
	if o.checkpointTrusted(record.SequencesCaptured, constants.SEQUENCES_STATE_FILE_NAME, record.SequencesDigest) {
		state, err = sync.Load()
		if err != nil {
			return steps.fail(errs.STEP_CAPTURE_SEQUENCES, err)
		}
		utils.PrintAndLog("sequences already captured at %s", state.CapturedAt)
	} else {
		state, err = sync.CaptureAll(ctx)
		if err != nil {
			return steps.fail(errs.STEP_CAPTURE_SEQUENCES, err)
		}
		digest, err := o.digestOf(constants.SEQUENCES_STATE_FILE_NAME)
		if err != nil {
			return steps.fail(errs.STEP_CAPTURE_SEQUENCES, err)
		}
		err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
			record.SequencesCaptured = true
			record.SequencesDigest = digest
		})
		if err != nil {
			return steps.fail(errs.STEP_CAPTURE_SEQUENCES, err)
		}
	}
	steps.complete(errs.STEP_CAPTURE_SEQUENCES)

	n, err := sync.Apply(ctx, state)
	if err != nil {
		return steps.fail(errs.STEP_APPLY_SEQUENCES, err)
	}
	err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.SequencesApplied = true
		record.SequencesSynced = n
	})
	if err != nil {
		return steps.fail(errs.STEP_APPLY_SEQUENCES, err)
	}
	utils.PrintAndLog("synchronized %d sequences", n)
	return nil
}

// validationOutcome runs the validation phase against fresh connections and
// maps the verdict to an outcome.
func (o *Orchestrator) validationOutcome(ctx context.Context) *Outcome {
	report, path, err := o.validate(ctx)
	if err != nil {
		return &Outcome{Result: OUTCOME_FAILURE_PHASE, Phase: 4, Err: err, Warnings: o.warnings}
	}
	if !report.Passed() {
		failed := lo.FilterMap(report.Checks, func(c validation.CheckResult, _ int) (string, bool) {
			return c.Name, c.Status == validation.STATUS_FAIL
		})
		return &Outcome{
			Result:     OUTCOME_FAILURE_PHASE,
			Phase:      4,
			Err:        errs.NewPhaseError(errs.PHASE_VALIDATION, errs.STEP_VALIDATE, fmt.Errorf("checks failed: %v", failed)),
			Warnings:   o.warnings,
			ReportPath: path,
			Verdict:    report.Verdict,
		}
	}
	warnings := o.warnings
	for _, c := range report.Checks {
		if c.Status == validation.STATUS_WARN || c.Status == validation.STATUS_INCONCLUSIVE {
			warnings = append(warnings, fmt.Sprintf("validation check %s: %s", c.Name, c.Message))
		}
	}
	outcome := successOutcome(warnings)
	outcome.ReportPath = path
	outcome.Verdict = report.Verdict
	return outcome
}

func (o *Orchestrator) validate(ctx context.Context) (*validation.Report, string, error) {
	sourceDB, err := pgcatalog.Open(o.session.SourceURI)
	if err != nil {
		return nil, "", errs.NewPhaseError(errs.PHASE_VALIDATION, errs.STEP_VALIDATE, err)
	}
	defer sourceDB.Close()
	targetDB, err := pgcatalog.Open(o.session.TargetURI)
	if err != nil {
		return nil, "", errs.NewPhaseError(errs.PHASE_VALIDATION, errs.STEP_VALIDATE, err)
	}
	defer targetDB.Close()

	v := validation.NewValidator(sourceDB, targetDB, validation.Config{
		RunID:        o.session.RunID,
		Schemas:      o.session.Schemas,
		ParallelJobs: o.session.ParallelJobs,
	})
	report := v.Validate(ctx)
	validation.PrintReport(o.out, report)

	path, err := validation.WriteReport(o.store, report)
	if err != nil {
		return nil, "", errs.NewPhaseErrorWithSteps(errs.PHASE_VALIDATION, []string{errs.STEP_VALIDATE}, errs.STEP_WRITE_REPORT, err)
	}
	utils.PrintAndLog("validation report written to %s", path)
	err = o.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.LastReportPath = path
		record.LastVerdict = report.Verdict
	})
	if err != nil {
		log.Warnf("record validation verdict: %v", err)
	}
	return report, path, nil
}
