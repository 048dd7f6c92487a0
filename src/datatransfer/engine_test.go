//go:build unit

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
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/metadb"
	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/srcdb"
	"github.com/pgshift/pgshift/src/tgtdb"
)

type fakeSource struct {
	frozen        bool
	ignoreFreeze  bool
	freezeCalls   int
	unfreezeCalls int
	dump          string
	exportErr     error
	freezeResult  srcdb.FreezeResult
}

func (f *fakeSource) DatabaseName(context.Context) (string, error) { return "shop", nil }

func (f *fakeSource) Freeze(context.Context) (*srcdb.FreezeResult, error) {
	f.freezeCalls++
	if !f.ignoreFreeze {
		f.frozen = true
	}
	return &f.freezeResult, nil
}

func (f *fakeSource) Unfreeze(context.Context) error {
	f.unfreezeCalls++
	f.frozen = false
	return nil
}

func (f *fakeSource) IsFrozen(context.Context) (bool, error) { return f.frozen, nil }

func (f *fakeSource) ExportData(_ context.Context, outputFile string) error {
	if f.exportErr != nil {
		return f.exportErr
	}
	return os.WriteFile(outputFile, []byte(f.dump), 0644)
}

type fakeTarget struct {
	opts   tgtdb.LoadOptions
	loaded string
	// tables reported as committed while loading
	copied []string
}

func (f *fakeTarget) LoadDump(_ context.Context, r io.Reader, opts tgtdb.LoadOptions) (*tgtdb.LoadResult, error) {
	f.opts = opts
	bs, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.loaded = string(bs)
	if err := os.WriteFile(opts.ErrorLogPath, nil, 0644); err != nil {
		return nil, err
	}
	for _, table := range f.copied {
		if err := opts.OnCopyDone(table); err != nil {
			return nil, err
		}
	}
	return &tgtdb.LoadResult{CopyBlocks: 1, RowsCopied: 1}, nil
}

func newTestEngine(t *testing.T, src *fakeSource, tgt *fakeTarget) (*Engine, *metadb.MetaDB) {
	workDir := t.TempDir()
	store, err := artifacts.Open(workDir)
	require.NoError(t, err)
	require.NoError(t, metadb.CreateAndInitMetaDBIfRequired(workDir))
	mdb, err := metadb.NewMetaDB(workDir)
	require.NoError(t, err)
	t.Cleanup(func() { mdb.Close() })
	return NewEngine(src, tgt, store, mdb, Config{RunID: "run-1", Command: "migrate", DisablePb: true}), mdb
}

func TestFreezeIsIdempotentAndLogged(t *testing.T) {
	src := &fakeSource{}
	e, mdb := newTestEngine(t, src, &fakeTarget{})
	ctx := context.Background()

	require.NoError(t, e.FreezeSource(ctx))
	assert.True(t, e.IsFrozen())
	require.NoError(t, e.FreezeSource(ctx))
	assert.Equal(t, 1, src.freezeCalls)

	transitions, err := mdb.GetFreezeLog()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, metadb.FREEZE_STATE_UNFROZEN, transitions[0].FromState)
	assert.Equal(t, metadb.FREEZE_STATE_FROZEN, transitions[0].ToState)
	assert.Equal(t, "shop", transitions[0].DatabaseName)
	assert.Equal(t, "migrate", transitions[0].Command)

	record, err := mdb.GetMigrationStatusRecord()
	require.NoError(t, err)
	assert.True(t, record.SourceFrozen)
}

func TestFreezeRecordsEndedSessions(t *testing.T) {
	src := &fakeSource{freezeResult: srcdb.FreezeResult{
		SessionsEnded: 3,
		SessionsLeft:  []pgcatalog.ClientSession{{PID: 812, User: "supabase_admin", ApplicationName: "pg_net"}},
	}}
	e, mdb := newTestEngine(t, src, &fakeTarget{})

	require.NoError(t, e.FreezeSource(context.Background()))
	transitions, err := mdb.GetFreezeLog()
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "default_transaction_read_only=on, 3 session(s) ended, 1 left open: pid 812 (supabase_admin, pg_net)",
		transitions[0].Note)
}

func TestFreezeVerificationFailure(t *testing.T) {
	src := &fakeSource{ignoreFreeze: true}
	e, mdb := newTestEngine(t, src, &fakeTarget{})

	err := e.FreezeSource(context.Background())
	assert.ErrorContains(t, err, "freeze verification failed")
	assert.False(t, e.IsFrozen())
	transitions, err := mdb.GetFreezeLog()
	require.NoError(t, err)
	assert.Empty(t, transitions)
}

func TestUnfreeze(t *testing.T) {
	src := &fakeSource{}
	e, mdb := newTestEngine(t, src, &fakeTarget{})
	ctx := context.Background()

	require.NoError(t, e.FreezeSource(ctx))
	require.NoError(t, e.UnfreezeSource(ctx))
	assert.False(t, e.IsFrozen())
	assert.False(t, src.frozen)
	require.NoError(t, e.UnfreezeSource(ctx))
	assert.Equal(t, 1, src.unfreezeCalls)

	state, err := mdb.LastFreezeState()
	require.NoError(t, err)
	assert.Equal(t, metadb.FREEZE_STATE_UNFROZEN, state)
	transitions, err := mdb.GetFreezeLog()
	require.NoError(t, err)
	assert.Len(t, transitions, 2)
}

func TestExtractDataRequiresFreeze(t *testing.T) {
	src := &fakeSource{dump: "COPY public.t (id) FROM stdin;\n1\n\\.\n"}
	e, _ := newTestEngine(t, src, &fakeTarget{})

	_, err := e.ExtractData(context.Background())
	assert.ErrorIs(t, err, ErrSourceNotFrozen)
}

func TestExtractAndLoadData(t *testing.T) {
	src := &fakeSource{dump: "COPY public.t (id) FROM stdin;\n1\n\\.\n"}
	tgt := &fakeTarget{}
	e, _ := newTestEngine(t, src, tgt)
	ctx := context.Background()

	require.NoError(t, e.FreezeSource(ctx))
	a, err := e.ExtractData(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(src.dump)), a.Size)
	assert.NotEmpty(t, a.SHA256)

	again, err := e.LoadArtifact()
	require.NoError(t, err)
	assert.Equal(t, a, again)

	result, err := e.LoadData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.RowsCopied)
	assert.Equal(t, src.dump, tgt.loaded)
	assert.True(t, tgt.opts.ReplicaRole)
	assert.Equal(t, constants.DATA_FILE_NAME, tgt.opts.SourceName)
}

func TestLoadDataSkipsTablesLoadedBefore(t *testing.T) {
	src := &fakeSource{dump: "COPY public.t (id) FROM stdin;\n1\n\\.\n"}
	tgt := &fakeTarget{copied: []string{"public.t"}}
	e, mdb := newTestEngine(t, src, tgt)
	ctx := context.Background()

	require.NoError(t, e.FreezeSource(ctx))
	a, err := e.ExtractData(ctx)
	require.NoError(t, err)
	require.NoError(t, mdb.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.DataDigest = a.SHA256
	}))

	_, err = e.LoadData(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, tgt.opts.SkipCopyOf)
	record, err := mdb.GetMigrationStatusRecord()
	require.NoError(t, err)
	assert.Equal(t, []string{"public.t"}, record.DataLoadedTables)

	// an interrupted load is resumed without the committed block
	_, err = e.LoadData(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"public.t"}, tgt.opts.SkipCopyOf)
	record, err = mdb.GetMigrationStatusRecord()
	require.NoError(t, err)
	assert.Equal(t, []string{"public.t"}, record.DataLoadedTables)

	// progress recorded against another artifact is ignored
	require.NoError(t, mdb.UpdateMigrationStatusRecord(func(record *metadb.MigrationStatusRecord) {
		record.DataDigest = "other"
	}))
	_, err = e.LoadData(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, tgt.opts.SkipCopyOf)
}

func TestExtractDataFailureRecordsNothing(t *testing.T) {
	src := &fakeSource{exportErr: errors.New("pg_dump: connection refused")}
	e, _ := newTestEngine(t, src, &fakeTarget{})
	ctx := context.Background()

	require.NoError(t, e.FreezeSource(ctx))
	_, err := e.ExtractData(ctx)
	assert.ErrorContains(t, err, "connection refused")
	_, err = e.LoadArtifact()
	assert.ErrorIs(t, err, artifacts.ErrArtifactModified)
}
