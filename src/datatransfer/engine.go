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
package datatransfer

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/metadb"
	"github.com/pgshift/pgshift/src/pbreporter"
	"github.com/pgshift/pgshift/src/srcdb"
	"github.com/pgshift/pgshift/src/tgtdb"
	"github.com/pgshift/pgshift/src/utils"
)

var ErrSourceNotFrozen = fmt.Errorf("source database is not frozen")

// SourceEndpoint is implemented by *srcdb.Source.
type SourceEndpoint interface {
	DatabaseName(ctx context.Context) (string, error)
	Freeze(ctx context.Context) (*srcdb.FreezeResult, error)
	Unfreeze(ctx context.Context) error
	IsFrozen(ctx context.Context) (bool, error)
	ExportData(ctx context.Context, outputFile string) error
}

// TargetEndpoint is implemented by *tgtdb.Target.
type TargetEndpoint interface {
	LoadDump(ctx context.Context, r io.Reader, opts tgtdb.LoadOptions) (*tgtdb.LoadResult, error)
}

// DataArtifact is the COPY format dump of the application schemas.
type DataArtifact struct {
	Path   string
	SHA256 string
	Size   int64
}

type Config struct {
	RunID     string
	Command   string
	DisablePb bool
}

// Engine moves the rows. It owns the freeze of the source: the freeze state
// is held here, every transition is appended to the freeze log in the meta
// db and only UnfreezeSource lifts it.
type Engine struct {
	source SourceEndpoint
	target TargetEndpoint
	store  *artifacts.Store
	metaDB *metadb.MetaDB
	cfg    Config

	freezeState string
}

func NewEngine(source SourceEndpoint, target TargetEndpoint, store *artifacts.Store, metaDB *metadb.MetaDB, cfg Config) *Engine {
	return &Engine{
		source:      source,
		target:      target,
		store:       store,
		metaDB:      metaDB,
		cfg:         cfg,
		freezeState: metadb.FREEZE_STATE_UNFROZEN,
	}
}

func (e *Engine) IsFrozen() bool {
	return e.freezeState == metadb.FREEZE_STATE_FROZEN
}

// FreezeSource makes the source read-only, ends the sessions opened before
// and verifies the freeze from a fresh session. Freezing a frozen source only
// updates the state.
func (e *Engine) FreezeSource(ctx context.Context) error {
	frozen, err := e.source.IsFrozen(ctx)
	if err != nil {
		return err
	}
	if frozen {
		log.Infof("source is already frozen")
		return e.transition(ctx, metadb.FREEZE_STATE_FROZEN, "already frozen")
	}

	result, err := e.source.Freeze(ctx)
	if err != nil {
		return err
	}
	if len(result.SessionsLeft) > 0 {
		utils.PrintAndLogf("WARNING: %d source session(s) opened before the freeze could not be ended and may still write", len(result.SessionsLeft))
	}
	frozen, err = e.source.IsFrozen(ctx)
	if err != nil {
		return err
	}
	if !frozen {
		return fmt.Errorf("freeze verification failed: a new session on the source still defaults to read-write")
	}
	return e.transition(ctx, metadb.FREEZE_STATE_FROZEN, result.String())
}

// UnfreezeSource is the explicit rollback of FreezeSource.
func (e *Engine) UnfreezeSource(ctx context.Context) error {
	frozen, err := e.source.IsFrozen(ctx)
	if err != nil {
		return err
	}
	if !frozen {
		log.Infof("source is not frozen")
		return e.transition(ctx, metadb.FREEZE_STATE_UNFROZEN, "already unfrozen")
	}
	err = e.source.Unfreeze(ctx)
	if err != nil {
		return err
	}
	frozen, err = e.source.IsFrozen(ctx)
	if err != nil {
		return err
	}
	if frozen {
		return fmt.Errorf("unfreeze verification failed: a new session on the source still defaults to read-only")
	}
	return e.transition(ctx, metadb.FREEZE_STATE_UNFROZEN, "default_transaction_read_only reset")
}

// SyncFreezeState loads the freeze state from the source without changing it.
func (e *Engine) SyncFreezeState(ctx context.Context) error {
	frozen, err := e.source.IsFrozen(ctx)
	if err != nil {
		return err
	}
	if frozen {
		e.freezeState = metadb.FREEZE_STATE_FROZEN
	} else {
		e.freezeState = metadb.FREEZE_STATE_UNFROZEN
	}
	return nil
}

func (e *Engine) transition(ctx context.Context, to string, note string) error {
	e.freezeState = to
	last, err := e.metaDB.LastFreezeState()
	if err != nil {
		return err
	}
	if last == to {
		return nil
	}
	dbName, err := e.source.DatabaseName(ctx)
	if err != nil {
		return err
	}
	err = e.metaDB.AppendFreezeTransition(metadb.FreezeTransition{
		RunID:        e.cfg.RunID,
		DatabaseName: dbName,
		FromState:    last,
		ToState:      to,
		Command:      e.cfg.Command,
		Note:         note,
	})
	if err != nil {
		return err
	}
	return e.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.SourceFrozen = to == metadb.FREEZE_STATE_FROZEN
	})
}

// ExtractData dumps the application schemas of the frozen source.
func (e *Engine) ExtractData(ctx context.Context) (*DataArtifact, error) {
	if !e.IsFrozen() {
		return nil, ErrSourceNotFrozen
	}
	tmp := e.store.TempPath(constants.DATA_FILE_NAME)
	err := e.source.ExportData(ctx, tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("extract data: %w", err)
	}
	entry, err := e.store.Commit(constants.DATA_FILE_NAME)
	if err != nil {
		return nil, err
	}
	return &DataArtifact{Path: e.store.Path(constants.DATA_FILE_NAME), SHA256: entry.SHA256, Size: entry.Size}, nil
}

// LoadArtifact returns the data artifact recorded by an earlier run after
// checking it against the manifest.
func (e *Engine) LoadArtifact() (*DataArtifact, error) {
	ok, err := e.store.Verify(constants.DATA_FILE_NAME)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", constants.DATA_FILE_NAME, artifacts.ErrArtifactModified)
	}
	entry, _, err := e.store.Lookup(constants.DATA_FILE_NAME)
	if err != nil {
		return nil, err
	}
	return &DataArtifact{Path: e.store.Path(constants.DATA_FILE_NAME), SHA256: entry.SHA256, Size: entry.Size}, nil
}

// LoadData replays the data artifact on the target with triggers suspended.
// Failed statements and COPY blocks are counted in the result. Every COPY
// block that commits is recorded in the migration status, and a later load
// of the same artifact skips it.
func (e *Engine) LoadData(ctx context.Context, a *DataArtifact) (*tgtdb.LoadResult, error) {
	record, err := e.metaDB.GetMigrationStatusRecord()
	if err != nil {
		return nil, err
	}
	var loaded []string
	if record != nil && record.DataDigest == a.SHA256 {
		loaded = record.DataLoadedTables
	}
	if len(loaded) > 0 {
		utils.PrintAndLog("resuming data load: %d table(s) already loaded", len(loaded))
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("open data artifact: %w", err)
	}
	defer f.Close()

	disablePb := pbreporter.ShouldDisable(e.cfg.DisablePb)
	var progress *mpb.Progress
	if !disablePb {
		progress = mpb.NewWithContext(ctx)
	}
	bar := pbreporter.NewLoadPB(progress, constants.DATA_FILE_NAME, disablePb)
	bar.SetTotal(a.Size, false)

	result, err := e.target.LoadDump(ctx, f, tgtdb.LoadOptions{
		SourceName:   constants.DATA_FILE_NAME,
		ErrorLogPath: e.store.Path(constants.DATA_RESTORE_ERRORS_FILENAME),
		ReplicaRole:  true,
		OnProgress:   bar.SetCurrent,
		SkipCopyOf:   loaded,
		OnCopyDone: func(table string) error {
			return e.metaDB.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
				if !lo.Contains(record.DataLoadedTables, table) {
					record.DataLoadedTables = append(record.DataLoadedTables, table)
				}
			})
		},
	})
	bar.SetTotal(-1, true)
	if progress != nil {
		progress.Wait()
	}
	if _, rerr := e.store.Refresh(constants.DATA_RESTORE_ERRORS_FILENAME); rerr != nil {
		log.Warnf("record data restore error log: %v", rerr)
	}
	if err != nil {
		return result, fmt.Errorf("load data: %w", err)
	}
	return result, nil
}
