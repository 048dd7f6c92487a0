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
package datastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataStore(t *testing.T) {
	ds, err := NewDataStore("s3://backups/pgshift")
	require.NoError(t, err)
	assert.IsType(t, &S3DataStore{}, ds)
	assert.Equal(t, "s3://backups/pgshift/run1/data.sql", ds.Join("run1", "data.sql"))

	ds, err = NewDataStore("gs://backups")
	require.NoError(t, err)
	assert.IsType(t, &GCSDataStore{}, ds)
	assert.Equal(t, "gs://backups/run1/reports/validation-x.json", ds.Join("/run1/", "reports/validation-x.json"))

	ds, err = NewDataStore("https://acct.blob.core.windows.net/backups")
	require.NoError(t, err)
	assert.IsType(t, &AzDataStore{}, ds)

	ds, err = NewDataStore("/mnt/backups")
	require.NoError(t, err)
	assert.IsType(t, &LocalDataStore{}, ds)

	_, err = NewDataStore("ftp://host/dir")
	assert.Error(t, err)
	_, err = NewDataStore("s3:///nobucket")
	assert.Error(t, err)
}

func TestArchiveToLocalDataStore(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "reports"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "schema_clean.sql"), []byte("CREATE TABLE t();\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "reports", "validation-1.json"), []byte("{}"), 0644))

	dst := t.TempDir()
	ds := NewLocalDataStore(dst)
	files, err := Archive(context.Background(), ds, src, "run1", []string{"schema_clean.sql", "reports/validation-1.json"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, int64(18), files[0].Size)
	assert.Equal(t, filepath.Join(dst, "run1", "reports", "validation-1.json"), files[1].Location)

	bs, err := os.ReadFile(filepath.Join(dst, "run1", "schema_clean.sql"))
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t();\n", string(bs))

	// archives never overwrite
	_, err = Archive(context.Background(), ds, src, "run1", []string{"schema_clean.sql"})
	assert.Error(t, err)
}
