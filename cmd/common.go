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
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/metadb"
	"github.com/pgshift/pgshift/src/orchestrator"
	"github.com/pgshift/pgshift/src/utils"
)

var (
	sourceURI        string
	targetURI        string
	appSchemas       []string
	platformRoles    []string
	targetExtensions []string
	parallelJobs     int
	disablePb        bool
)

func registerSourceDBConnFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sourceURI, "source-uri", "",
		"connection URI of the source database, e.g. postgresql://postgres:<password>@db.<ref>.supabase.co:5432/postgres")
	cmd.Flags().StringSliceVar(&appSchemas, "app-schemas", []string{constants.DEFAULT_APP_SCHEMA},
		"comma separated list of application schemas to migrate")
}

func registerTargetDBConnFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&targetURI, "target-uri", "",
		"connection URI of the target database")
}

func registerParallelJobsFlag(cmd *cobra.Command) {
	cmd.Flags().IntVar(&parallelJobs, "parallel-jobs", 4,
		"number of parallel connections used to compare the databases")
}

func validateConnFlags(needSource, needTarget bool) {
	if needSource && sourceURI == "" {
		utils.ErrExit(`ERROR: required flag "source-uri" not set`)
	}
	if needTarget && targetURI == "" {
		utils.ErrExit(`ERROR: required flag "target-uri" not set`)
	}
	if parallelJobs < 1 {
		utils.ErrExit("invalid value %d for --parallel-jobs: must be at least 1", parallelJobs)
	}
	appSchemas = utils.CsvStringToSlice(strings.Join(appSchemas, ","))
	if len(appSchemas) == 0 {
		utils.ErrExit("--app-schemas must name at least one schema")
	}
}

// openWorkDir opens the artifact store and the meta db of the work dir.
func openWorkDir() (*artifacts.Store, *metadb.MetaDB) {
	store, err := artifacts.Open(workDir)
	if err != nil {
		utils.ErrExit("open work dir: %v", err)
	}
	err = metadb.CreateAndInitMetaDBIfRequired(store.Dir())
	if err != nil {
		utils.ErrExit("initialize meta db: %v", err)
	}
	metaDB, err := metadb.NewMetaDB(store.Dir())
	if err != nil {
		utils.ErrExit("open meta db: %v", err)
	}
	return store, metaDB
}

func newSession(command string) *orchestrator.Session {
	session := orchestrator.NewSession(sourceURI, targetURI, workDir)
	session.Command = command
	session.Schemas = appSchemas
	session.ParallelJobs = parallelJobs
	session.DisablePb = disablePb
	if len(platformRoles) > 0 {
		session.PlatformRoles = platformRoles
	}
	session.TargetExtensions = targetExtensions
	return session
}

// reportOutcome prints how the run ended and records the exit code.
func reportOutcome(outcome *orchestrator.Outcome) {
	for _, w := range outcome.Warnings {
		log.Warnf("run warning: %s", w)
	}
	if outcome.ReportPath != "" {
		fmt.Printf("validation report: %s\n", outcome.ReportPath)
	}
	switch outcome.Result {
	case orchestrator.OUTCOME_SUCCESS:
		color.Green("\nresult: %s\n", outcome)
	case orchestrator.OUTCOME_PARTIAL_SUCCESS:
		color.Yellow("\nresult: %s (%d warning(s))\n", outcome, len(outcome.Warnings))
	default:
		color.Red("\nresult: %s: %v\n", outcome, outcome.Err)
	}
	exitCode = outcome.ExitCode()
}
