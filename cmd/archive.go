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
	"path"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/datastore"
	"github.com/pgshift/pgshift/src/utils"
)

var archiveTo string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy the artifacts and reports of the work dir to an archive location",
	Long: `Copies every artifact recorded in the work dir manifest, and the manifest itself,
to a local directory or an object store: s3://bucket/prefix, gs://bucket/prefix or
https://<account>.blob.core.windows.net/<container>/prefix. The files are stored under
<location>/<migration uuid>/.`,

	PreRun: func(cmd *cobra.Command, args []string) {
		validateWorkDirFlag()
		if archiveTo == "" {
			utils.ErrExit(`ERROR: required flag "to" not set`)
		}
	},

	Run: func(cmd *cobra.Command, args []string) {
		store, metaDB := openWorkDir()
		defer metaDB.Close()
		msr, err := metaDB.GetMigrationStatusRecord()
		if err != nil || msr == nil {
			utils.ErrExit("no migration found in work dir %q: %v", workDir, err)
		}
		archived, err := archiveWorkDir(context.Background(), store, msr.MigrationUUID, archiveTo)
		if err != nil {
			utils.ErrExit("archive: %v", err)
		}
		total := lo.SumBy(archived, func(f datastore.ArchivedFile) int64 { return f.Size })
		utils.PrintAndLog("archived %d files (%s) to %s", len(archived), humanize.Bytes(uint64(total)),
			path.Join(archiveTo, msr.MigrationUUID))
	},
}

func archiveWorkDir(ctx context.Context, store *artifacts.Store, prefix string, location string) ([]datastore.ArchivedFile, error) {
	ds, err := datastore.NewDataStore(location)
	if err != nil {
		return nil, err
	}
	entries, err := store.List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		ok, err := store.Verify(e.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w", e.Name, artifacts.ErrArtifactModified)
		}
	}
	names := lo.Map(entries, func(e artifacts.Entry, _ int) string { return e.Name })
	names = append(names, constants.MANIFEST_FILE_NAME)
	return datastore.Archive(ctx, ds, store.Dir(), prefix, names)
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	registerCommonGlobalFlags(archiveCmd)
	archiveCmd.Flags().StringVar(&archiveTo, "to", "",
		"archive location: a local directory, s3://, gs:// or an azure blob https:// URL")
}
