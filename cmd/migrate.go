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
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/coupling"
	"github.com/pgshift/pgshift/src/metadb"
	"github.com/pgshift/pgshift/src/orchestrator"
	"github.com/pgshift/pgshift/src/utils"
)

var (
	dryRun            bool
	scope             []string
	overrideReadiness bool
	projectRoot       string
	startClean        bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the schema, data and sequences of the source database to the target",
	Long: `Runs the migration phases in order:

  1. schema     extract the source schema, remove platform-specific constructs, apply it to the target
  2. data       freeze the source, extract its data and load it into the target
  3. sequences  capture every sequence of the frozen source and set it on the target
  4. validate   compare source and target and write a report into the work dir

The source stays frozen (read-only for new sessions) after the data phase until
'pgshift rollback' is run. Re-running migrate with the same work dir resumes from the
last completed step.

Exit codes: 0 success, 10 success with warnings, 20 preflight failure, 30+N failure in phase N.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateWorkDirFlag()
		validateConnFlags(true, true)
		var err error
		scope, err = orchestrator.ParseScope(scope)
		if err != nil {
			utils.ErrExit("%v", err)
		}
		if projectRoot != "" && !utils.FileOrFolderExists(projectRoot) {
			utils.ErrExit("project-root %q doesn't exist", projectRoot)
		}
	},

	Run: migrateCommandFn,
}

func migrateCommandFn(cmd *cobra.Command, args []string) {
	store, metaDB := openWorkDir()
	if startClean {
		metaDB = cleanWorkDir(store, metaDB)
	}
	defer metaDB.Close()

	session := newSession("migrate")
	session.DryRun = dryRun
	session.Scope = scope
	session.OverrideReadiness = overrideReadiness
	session.ProjectRoot = projectRoot
	log.Infof("starting run %s: dry-run=%t scope=%v schemas=%v", session.RunID, dryRun, scope, session.Schemas)
	fmt.Printf("run id: %s\n", session.RunID)

	o := orchestrator.New(session, store, metaDB, coupling.NewScorer())
	defer o.Close()
	outcome := o.Run(context.Background())
	reportOutcome(outcome)
}

// cleanWorkDir discards every artifact and checkpoint of earlier runs. It
// refuses while the source is frozen, since the freeze record would be lost.
func cleanWorkDir(store *artifacts.Store, metaDB *metadb.MetaDB) *metadb.MetaDB {
	state, err := metaDB.LastFreezeState()
	if err != nil {
		utils.ErrExit("read freeze state: %v", err)
	}
	if state == metadb.FREEZE_STATE_FROZEN {
		utils.ErrExit("the source is frozen by an earlier run: run 'pgshift rollback' before --start-clean")
	}
	if !utils.AskPrompt(fmt.Sprintf("--start-clean removes every artifact and checkpoint in %s, continue", store.Dir())) {
		utils.ErrExit("aborting")
	}
	metaDB.Close()
	err = store.Clean()
	if err != nil {
		utils.ErrExit("%v", err)
	}
	utils.PrintAndLog("cleaned work dir %s", store.Dir())
	_, metaDB = openWorkDir()
	return metaDB
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	registerCommonGlobalFlags(migrateCmd)
	registerSourceDBConnFlags(migrateCmd)
	registerTargetDBConnFlags(migrateCmd)
	registerParallelJobsFlag(migrateCmd)

	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false,
		"extract and clean the schema only, nothing is written to the target and the source is not frozen")
	migrateCmd.Flags().StringSliceVar(&scope, "scope", []string{orchestrator.SCOPE_ALL},
		"phases to run: any of schema,data,sequences or all")
	migrateCmd.Flags().BoolVar(&overrideReadiness, "override-readiness", false,
		"continue when the application audit finds moderate or high coupling to the source platform")
	migrateCmd.Flags().StringVar(&projectRoot, "project-root", "",
		"root directory of the application to audit before migrating")
	migrateCmd.Flags().BoolVar(&startClean, "start-clean", false,
		"discard the artifacts and checkpoints of earlier runs in the work dir")
	migrateCmd.Flags().BoolVar(&disablePb, "disable-pb", false,
		"disable the progress bar of the data load")
	migrateCmd.Flags().StringSliceVar(&platformRoles, "platform-roles", nil,
		"roles owned by the source platform; their grants, ownership and policies are removed (default the Supabase roles)")
	migrateCmd.Flags().StringSliceVar(&targetExtensions, "target-extensions", nil,
		"extensions available on the target server (default the contrib extensions of stock Postgres)")
}
