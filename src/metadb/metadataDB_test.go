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
package metadb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type columnProperties struct {
	Type       string
	PrimaryKey int
}

func tableColumns(t *testing.T, db *sql.DB, table string) map[string]columnProperties {
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	require.NoError(t, err)
	defer rows.Close()
	cols := map[string]columnProperties{}
	for rows.Next() {
		var cid, notNull, pk int
		var name, typ string
		var dflt sql.NullString
		require.NoError(t, rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk))
		cols[name] = columnProperties{Type: typ, PrimaryKey: pk}
	}
	return cols
}

func TestInitMetaDB(t *testing.T) {
	expectedTables := map[string]map[string]columnProperties{
		JSON_OBJECTS_TABLE_NAME: {
			"key":       {Type: "TEXT", PrimaryKey: 1},
			"json_text": {Type: "TEXT"},
		},
		FREEZE_LOG_TABLE_NAME: {
			"seq":           {Type: "INTEGER", PrimaryKey: 1},
			"run_id":        {Type: "TEXT"},
			"timestamp":     {Type: "INTEGER"},
			"database_name": {Type: "TEXT"},
			"from_state":    {Type: "TEXT"},
			"to_state":      {Type: "TEXT"},
			"command":       {Type: "TEXT"},
			"note":          {Type: "TEXT"},
		},
	}

	workDir := t.TempDir()
	require.NoError(t, CreateAndInitMetaDBIfRequired(workDir))
	// second call is a no-op
	require.NoError(t, CreateAndInitMetaDBIfRequired(workDir))

	db, err := sql.Open("sqlite3", filepath.Join(workDir, "metainfo", "meta.db"))
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
	require.NoError(t, err)
	var tables []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		tables = append(tables, name)
	}
	rows.Close()
	assert.ElementsMatch(t, []string{JSON_OBJECTS_TABLE_NAME, FREEZE_LOG_TABLE_NAME}, tables)

	for table, expected := range expectedTables {
		assert.Equal(t, expected, tableColumns(t, db, table), table)
	}
}

func newTestMetaDB(t *testing.T) *MetaDB {
	workDir := t.TempDir()
	require.NoError(t, CreateAndInitMetaDBIfRequired(workDir))
	m, err := NewMetaDB(workDir)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMigrationStatusRecord(t *testing.T) {
	m := newTestMetaDB(t)

	record, err := m.GetMigrationStatusRecord()
	require.NoError(t, err)
	assert.Nil(t, record)

	require.NoError(t, m.InitMigrationStatusRecord())
	record, err = m.GetMigrationStatusRecord()
	require.NoError(t, err)
	require.NotNil(t, record)
	uuid := record.MigrationUUID
	assert.NotEmpty(t, uuid)

	require.NoError(t, m.InitMigrationStatusRecord())
	require.NoError(t, m.UpdateMigrationStatusRecord(func(r *MigrationStatusRecord) {
		r.SchemaExportDone = true
		r.SchemaCleanDigest = "abc"
	}))
	record, err = m.GetMigrationStatusRecord()
	require.NoError(t, err)
	assert.Equal(t, uuid, record.MigrationUUID)
	assert.True(t, record.SchemaExportDone)
	assert.Equal(t, "abc", record.SchemaCleanDigest)
	assert.False(t, record.DataLoaded)
}

func TestFreezeLog(t *testing.T) {
	m := newTestMetaDB(t)

	state, err := m.LastFreezeState()
	require.NoError(t, err)
	assert.Equal(t, FREEZE_STATE_UNFROZEN, state)

	require.NoError(t, m.AppendFreezeTransition(FreezeTransition{
		RunID: "r1", DatabaseName: "app", FromState: FREEZE_STATE_UNFROZEN, ToState: FREEZE_STATE_FROZEN,
		Command: "migrate", Note: "freeze before data export",
	}))
	require.NoError(t, m.AppendFreezeTransition(FreezeTransition{
		RunID: "r2", DatabaseName: "app", FromState: FREEZE_STATE_FROZEN, ToState: FREEZE_STATE_UNFROZEN,
		Command: "rollback", Note: "operator rollback",
	}))

	entries, err := m.GetFreezeLog()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "migrate", entries[0].Command)
	assert.Equal(t, FREEZE_STATE_FROZEN, entries[0].ToState)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
	assert.False(t, entries[1].Timestamp.Before(entries[0].Timestamp))

	state, err = m.LastFreezeState()
	require.NoError(t, err)
	assert.Equal(t, FREEZE_STATE_UNFROZEN, state)
}
