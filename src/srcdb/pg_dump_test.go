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
package srcdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPgDumpArgsFromFile(t *testing.T) {
	basePgDumpArgsFilePath = filepath.Join(t.TempDir(), "missing.ini")

	args, err := getPgDumpArgsFromFile(PG_DUMP_SCHEMA_SECTION, PgDumpArgs{Schemas: "public,App", OutputFile: "/tmp/w/schema_raw.sql"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--schema-only", "--no-owner", "--no-privileges", "--no-tablespaces",
		"--no-publications", "--no-subscriptions",
		`--schema="public"`, `--schema="App"`,
		"--file=/tmp/w/schema_raw.sql",
	}, args)

	args, err = getPgDumpArgsFromFile(PG_DUMP_DATA_SECTION, PgDumpArgs{Schemas: "public", OutputFile: "/tmp/w/data.sql"})
	require.NoError(t, err)
	assert.Contains(t, args, "--data-only")
	assert.Contains(t, args, "--disable-triggers")
	assert.NotContains(t, args, "--schema-only")
}

func TestGetPgDumpArgsFromOverrideFile(t *testing.T) {
	basePgDumpArgsFilePath = filepath.Join(t.TempDir(), "pg_dump-args.ini")
	content := "[data]\ndata-only=true\ndisable-triggers=false\nschema={{ .Schemas }}\nfile={{ .OutputFile }}\n"
	require.NoError(t, os.WriteFile(basePgDumpArgsFilePath, []byte(content), 0644))

	args, err := getPgDumpArgsFromFile(PG_DUMP_DATA_SECTION, PgDumpArgs{Schemas: "public", OutputFile: "d.sql"})
	require.NoError(t, err)
	assert.Equal(t, []string{"--data-only", `--schema="public"`, "--file=d.sql"}, args)

	_, err = getPgDumpArgsFromFile(PG_DUMP_SCHEMA_SECTION, PgDumpArgs{})
	assert.Error(t, err)
}

func TestGetPGCommandVersionPicksHighest(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	writeFakePgDump(t, dir1, "15.4")
	writeFakePgDump(t, dir2, "16.2")
	t.Setenv("PATH", dir1+string(os.PathListSeparator)+dir2)

	path, v, err := GetPGCommandVersion("pg_dump")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir2, "pg_dump"), path)
	assert.Equal(t, "16", v.Major())

	_, _, err = GetPGCommandVersion("pg_restore")
	assert.ErrorContains(t, err, "not installed")
}

func writeFakePgDump(t *testing.T, dir, v string) {
	script := "#!/bin/sh\necho 'pg_dump (PostgreSQL) " + v + "'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pg_dump"), []byte(script), 0755))
}
