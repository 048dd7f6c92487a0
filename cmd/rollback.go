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
	"github.com/pgshift/pgshift/src/utils"
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Lift the freeze of the source database",
	Long: `Makes the source database writable again for new sessions. The target is left as it is.
Run it when the migration is abandoned, or after the application has been pointed at the
target and the source is to be kept as a live fallback.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateWorkDirFlag()
		validateConnFlags(true, false)
	},

	Run: func(cmd *cobra.Command, args []string) {
		store, metaDB := openWorkDir()
		defer metaDB.Close()
		o := orchestrator.New(newSession("rollback"), store, metaDB, coupling.NewScorer())
		defer o.Close()
		err := o.Rollback(context.Background())
		if err != nil {
			utils.ErrExit("rollback: %v", err)
		}
		utils.PrintAndLog("source %s is writable again", utils.GetRedactedURLs([]string{sourceURI})[0])
	},
}

func init() {
	rootCmd.AddCommand(rollbackCmd)
	registerCommonGlobalFlags(rollbackCmd)
	registerSourceDBConnFlags(rollbackCmd)
}
