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

	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/src/coupling"
	"github.com/pgshift/pgshift/src/orchestrator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compare the target with the source and write a validation report",
	Long: `Runs only the validation phase: connectivity, table set, row counts, sequence
values, extensions and a write probe on the target. Each run writes a new report into
the reports dir of the work dir; earlier reports are never overwritten.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateWorkDirFlag()
		validateConnFlags(true, true)
	},

	Run: func(cmd *cobra.Command, args []string) {
		store, metaDB := openWorkDir()
		defer metaDB.Close()
		o := orchestrator.New(newSession("validate"), store, metaDB, coupling.NewScorer())
		defer o.Close()
		reportOutcome(o.Validate(context.Background()))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	registerCommonGlobalFlags(validateCmd)
	registerSourceDBConnFlags(validateCmd)
	registerTargetDBConnFlags(validateCmd)
	registerParallelJobsFlag(validateCmd)
}
