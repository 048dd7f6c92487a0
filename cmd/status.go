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
package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/metadb"
	"github.com/pgshift/pgshift/src/orchestrator"
	"github.com/pgshift/pgshift/src/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the migration in the work dir",
	Long: `Prints the migration details, the completed steps of every phase, the freeze
history of the source and the artifacts recorded in the work dir.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateWorkDirFlag()
	},

	Run: func(cmd *cobra.Command, args []string) {
		if !utils.FileOrFolderExists(metadb.GetMetaDBPath(workDir)) {
			utils.ErrExit("no migration found in work dir %q", workDir)
		}
		metaDB, err := metadb.NewMetaDB(workDir)
		if err != nil {
			utils.ErrExit("open meta db: %v", err)
		}
		defer metaDB.Close()
		store, err := artifacts.Open(workDir)
		if err != nil {
			utils.ErrExit("open work dir: %v", err)
		}
		runStatus(store, metaDB)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	registerCommonGlobalFlags(statusCmd)
}

func runStatus(store *artifacts.Store, metaDB *metadb.MetaDB) {
	msr, err := metaDB.GetMigrationStatusRecord()
	if err != nil {
		utils.ErrExit("get migration status record: %v", err)
	}
	if msr == nil {
		utils.ErrExit("no migration found in work dir %q", workDir)
	}
	freezeLog, err := metaDB.GetFreezeLog()
	if err != nil {
		utils.ErrExit("get freeze log: %v", err)
	}
	entries, err := store.List()
	if err != nil {
		utils.ErrExit("list artifacts: %v", err)
	}

	printMigrationDetails(msr)
	printCheckpoints(msr)
	printFreezeLog(freezeLog)
	printArtifacts(entries)
	fmt.Println()
}

func printMigrationDetails(msr *metadb.MigrationStatusRecord) {
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	fmt.Println(headerfmt("\nMigration Details"))
	table := uitable.New()
	table.MaxColWidth = 100
	table.AddRow("Migration UUID", msr.MigrationUUID)
	table.AddRow("Source", msr.SourceDBRedacted)
	table.AddRow("Target", msr.TargetDBRedacted)
	table.AddRow("Schemas", strings.Join(msr.AppSchemas, ", "))
	table.AddRow("Runs", len(msr.RunIDs))
	table.AddRow("State", stateString(msr))
	if msr.LastReportPath != "" {
		table.AddRow("Last validation", fmt.Sprintf("%s (%s)", msr.LastVerdict, msr.LastReportPath))
	}
	fmt.Println(table)
}

func stateString(msr *metadb.MigrationStatusRecord) string {
	if msr.CurrentState == "" {
		return "not started"
	}
	if msr.LastFailedPhase != "" && msr.CurrentState == orchestrator.STATE_FAILED {
		return color.RedString("%s (in %s)", msr.CurrentState, msr.LastFailedPhase)
	}
	return msr.CurrentState
}

func printCheckpoints(msr *metadb.MigrationStatusRecord) {
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	fmt.Println(headerfmt("\nPhase Progress"))
	table := uitable.New()
	table.AddRow(headerfmt("PHASE"), headerfmt("STEP"), headerfmt("STATUS"))
	table.AddRow("schema", "extract and clean", doneString(msr.SchemaExportDone, 0))
	table.AddRow("", "apply", doneString(msr.SchemaApplied, msr.SchemaApplyErrors))
	table.AddRow("data", "freeze source", frozenString(msr.SourceFrozen))
	table.AddRow("", "extract", doneString(msr.DataExportDone, 0))
	table.AddRow("", "load", doneString(msr.DataLoaded, msr.DataLoadErrors))
	table.AddRow("sequences", "capture", doneString(msr.SequencesCaptured, 0))
	applied := doneString(msr.SequencesApplied, 0)
	if msr.SequencesApplied {
		applied = fmt.Sprintf("%s (%d sequences)", applied, msr.SequencesSynced)
	}
	table.AddRow("", "apply", applied)
	fmt.Println(table)
}

func doneString(done bool, errors int) string {
	switch {
	case done && errors > 0:
		return color.YellowString("done with %d error(s)", errors)
	case done:
		return color.GreenString("done")
	case errors > 0:
		return color.RedString("failed with %d error(s)", errors)
	}
	return "pending"
}

func frozenString(frozen bool) string {
	if frozen {
		return color.YellowString("frozen")
	}
	return "writable"
}

func printFreezeLog(transitions []metadb.FreezeTransition) {
	if len(transitions) == 0 {
		return
	}
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	fmt.Println(headerfmt("\nSource Freeze History"))
	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow(headerfmt("TIME"), headerfmt("DATABASE"), headerfmt("TRANSITION"), headerfmt("COMMAND"), headerfmt("NOTE"))
	for _, t := range transitions {
		table.AddRow(t.Timestamp.Local().Format("2006-01-02 15:04:05"), t.DatabaseName,
			fmt.Sprintf("%s -> %s", t.FromState, t.ToState), t.Command, t.Note)
	}
	fmt.Println(table)
}

func printArtifacts(entries []artifacts.Entry) {
	if len(entries) == 0 {
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	fmt.Println(headerfmt("\nArtifacts"))
	table := uitable.New()
	table.AddRow(headerfmt("NAME"), headerfmt("SIZE"), headerfmt("CREATED"), headerfmt("SHA256"))
	for _, e := range entries {
		digest := e.SHA256
		if len(digest) > 12 {
			digest = digest[:12]
		}
		table.AddRow(e.Name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.CreatedAt), digest)
	}
	fmt.Println(table)
	fmt.Printf("\nwork dir: %s (%s)\n", workDir, constants.MANIFEST_FILE_NAME)
}
