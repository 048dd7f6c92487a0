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
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/coupling"
	"github.com/pgshift/pgshift/src/utils"
)

var (
	auditProjectRoot string
	auditOutput      string
	showLocations    bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Score how tightly an application is coupled to the source platform",
	Long: `Scans the source files of an application for use of the platform client SDK, its
keys, storage, edge functions, auth and realtime APIs, and reports a readiness tier:
ready, low, moderate or high. migrate runs the same audit as a preflight check when
--project-root is given.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		if auditProjectRoot == "" {
			utils.ErrExit(`ERROR: required flag "project-root" not set`)
		}
		if !lo.Contains([]string{"table", "json"}, auditOutput) {
			utils.ErrExit("invalid value %q for --output: expected table or json", auditOutput)
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		finding, err := coupling.NewScorer().Audit(auditProjectRoot)
		if err != nil {
			utils.ErrExit("audit %s: %v", auditProjectRoot, err)
		}
		if auditOutput == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			err = enc.Encode(finding)
			if err != nil {
				utils.ErrExit("encode finding: %v", err)
			}
			return
		}
		printFinding(finding)
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
	registerCommonGlobalFlags(auditCmd)
	auditCmd.Flags().StringVar(&auditProjectRoot, "project-root", "",
		"root directory of the application to audit")
	auditCmd.Flags().StringVar(&auditOutput, "output", "table",
		"output format: table or json")
	auditCmd.Flags().BoolVar(&showLocations, "show-locations", false,
		"list the file and line of every occurrence")
}

func printFinding(f *coupling.Finding) {
	headerfmt := color.New(color.FgGreen, color.Underline).SprintFunc()
	table := uitable.New()
	table.MaxColWidth = 100
	table.AddRow(headerfmt("CATEGORY"), headerfmt("OCCURRENCES"))
	names := lo.Keys(f.Categories)
	sort.Strings(names)
	for _, name := range names {
		table.AddRow(name, f.Categories[name])
	}
	fmt.Println(table)

	tier := f.Tier
	switch tier {
	case constants.TIER_READY, constants.TIER_LOW:
		tier = color.GreenString(tier)
	case constants.TIER_MODERATE:
		tier = color.YellowString(tier)
	case constants.TIER_HIGH:
		tier = color.RedString(tier)
	}
	fmt.Printf("\nreadiness tier: %s\n%s\n", tier, f.Rationale)

	if !showLocations {
		return
	}
	for _, name := range names {
		fmt.Printf("\n%s:\n", headerfmt(name))
		for _, loc := range f.Locations[name] {
			fmt.Printf("  %s\n", loc)
		}
	}
}
