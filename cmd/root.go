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
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/pgshift/pgshift/src/config"
	"github.com/pgshift/pgshift/src/lockfile"
	"github.com/pgshift/pgshift/src/utils"
)

var (
	cfgFile  string
	workDir  string
	lockFile *lockfile.Lockfile

	// exitCode is the process exit code chosen by the command that ran
	exitCode int
)

// commands that only read the work dir and never take its lock
var readOnlyCommands = []string{"version", "status", "audit"}

var rootCmd = &cobra.Command{
	Use:   "pgshift",
	Short: "Move a Supabase-hosted Postgres database to a plain Postgres server",
	Long: `pgshift migrates the schema, data and sequences of a Supabase project database to a
self-managed Postgres server, then validates the target against the frozen source.

Every step writes its output into the work dir, so an interrupted migration resumes
where it stopped. See 'pgshift migrate --help' for the phases.`,
	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		overrides, err := initConfig(cmd)
		if err != nil {
			return err
		}
		err = config.ValidateLogLevel()
		if err != nil {
			return err
		}
		if workDir == "" || cmd.Name() == "version" {
			return nil
		}
		workDir = strings.TrimRight(workDir, "/")
		if !isReadOnlyCommand(cmd) {
			err = os.MkdirAll(workDir, 0755)
			if err != nil {
				return fmt.Errorf("create work dir %q: %w", workDir, err)
			}
			lockWorkDir(cmd)
		}
		if utils.FileOrFolderExists(workDir) {
			InitLogging(workDir, cmd.Name())
		}
		for _, o := range overrides {
			log.Infof("flag %s set from config key %s", o.FlagName, o.ConfigKey)
		}
		return nil
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		utils.ErrExit("%v", err)
	}
}

// ExitCode returns the exit code the executed command asked for.
func ExitCode() int {
	return exitCode
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func registerCommonGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&cfgFile, "config-file", "c", "",
		"path of the yaml config file (default $HOME/pgshift-config.yaml)")

	cmd.PersistentFlags().StringVarP(&workDir, "work-dir", "w", "",
		"work directory that holds the extracted artifacts, the migration state, reports and logs")

	cmd.PersistentFlags().StringVarP(&config.LogLevel, "log-level", "l", config.INFO,
		"log level: trace, debug, info, warn, error, fatal, panic")

	cmd.PersistentFlags().BoolVarP(&utils.DoNotPrompt, "yes", "y", false,
		"assume answer as yes for all questions (default false)")
}

func validateWorkDirFlag() {
	if workDir == "" {
		utils.ErrExit(`ERROR: required flag "work-dir" not set`)
	}
	if !utils.FileOrFolderExists(workDir) {
		utils.ErrExit("work-dir %q doesn't exist", workDir)
	}
	if workDir == "." {
		fmt.Println("Note: Using current working directory as work directory")
	}
}

func isReadOnlyCommand(cmd *cobra.Command) bool {
	for _, name := range readOnlyCommands {
		if cmd.Name() == name {
			return true
		}
	}
	return false
}

func lockWorkDir(cmd *cobra.Command) {
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		utils.ErrExit("Failed to get absolute path for work dir %q: %v", workDir, err)
	}
	// every mutating command shares one lock, the work dir is a single migration
	lockFile = lockfile.NewLockfile(lockfile.PathFor(absDir, "migration"))
	lockFile.Lock()
	atexit.Register(unlockWorkDir)
}

func unlockWorkDir() {
	if lockFile == nil {
		return
	}
	lockFile.Unlock()
	lockFile = nil
}
