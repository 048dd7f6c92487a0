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
package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	s, err := Open(dir)
	require.NoError(t, err)
	for _, sub := range []string{"reports", "metainfo", "logs"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(dir, "schema_raw.sql"), s.Path("schema_raw.sql"))
}

func TestStoreWriteIsImmutable(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	entry, err := s.Write("schema_clean.sql", []byte("CREATE TABLE t (id int);\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(25), entry.Size)
	assert.Len(t, entry.SHA256, 64)

	again, err := s.Write("schema_clean.sql", []byte("CREATE TABLE t (id int);\n"))
	require.NoError(t, err)
	assert.Equal(t, entry.SHA256, again.SHA256)

	_, err = s.Write("schema_clean.sql", []byte("DROP TABLE t;\n"))
	assert.ErrorIs(t, err, ErrArtifactModified)

	bs, err := s.Read("schema_clean.sql")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t (id int);\n", string(bs))
}

func TestStoreRegisterAndVerify(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("data.sql"), []byte("COPY public.t (id) FROM stdin;\n1\n\\.\n"), 0644))

	ok, err := s.Verify("data.sql")
	require.NoError(t, err)
	assert.False(t, ok, "unregistered file must not verify")

	_, err = s.Register("data.sql")
	require.NoError(t, err)
	ok, err = s.Verify("data.sql")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, os.WriteFile(s.Path("data.sql"), []byte("tampered"), 0644))
	ok, err = s.Verify("data.sql")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = s.Register("data.sql")
	assert.ErrorIs(t, err, ErrArtifactModified)

	_, err = s.Refresh("data.sql")
	require.NoError(t, err)
	ok, err = s.Verify("data.sql")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoreCreateExclusive(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = s.CreateExclusive("reports/validation-1.json", []byte("{}"))
	require.NoError(t, err)
	_, err = s.CreateExclusive("reports/validation-1.json", []byte("{}"))
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestStoreListAndClean(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = s.Write("sequences.sql", []byte("x"))
	require.NoError(t, err)
	_, err = s.Write("schema_raw.sql", []byte("y"))
	require.NoError(t, err)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "schema_raw.sql", entries[0].Name)
	assert.Equal(t, "sequences.sql", entries[1].Name)

	require.NoError(t, s.Clean())
	entries, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.False(t, s.Exists("schema_raw.sql"))
	assert.True(t, s.Exists("reports"))
}

func TestStoreCleanKeepsLogsAndLockfiles(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("logs/pgshift-migrate.log"), []byte("log"), 0644))
	require.NoError(t, os.WriteFile(s.Path(".migrateLockfile.lck"), []byte("123"), 0644))
	require.NoError(t, os.WriteFile(s.Path(".data.sql.partial"), []byte("x"), 0644))

	require.NoError(t, s.Clean())
	assert.True(t, s.Exists("logs/pgshift-migrate.log"))
	assert.True(t, s.Exists(".migrateLockfile.lck"))
	assert.False(t, s.Exists(".data.sql.partial"))
}

func TestStoreCommit(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.TempPath("data.sql"), []byte("rows"), 0644))
	entry, err := s.Commit("data.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Size)
	assert.False(t, utilsExists(s.TempPath("data.sql")))

	// same content again is accepted
	require.NoError(t, os.WriteFile(s.TempPath("data.sql"), []byte("rows"), 0644))
	_, err = s.Commit("data.sql")
	require.NoError(t, err)

	// different content is rejected and the recorded file is untouched
	require.NoError(t, os.WriteFile(s.TempPath("data.sql"), []byte("other rows"), 0644))
	_, err = s.Commit("data.sql")
	assert.ErrorIs(t, err, ErrArtifactModified)
	bs, err := s.Read("data.sql")
	require.NoError(t, err)
	assert.Equal(t, "rows", string(bs))
	assert.False(t, utilsExists(s.TempPath("data.sql")))
}

func utilsExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
