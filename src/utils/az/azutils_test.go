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
package az

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateObjectURL(t *testing.T) {
	assert.NoError(t, ValidateObjectURL("https://acct.blob.core.windows.net/backups"))
	assert.Error(t, ValidateObjectURL("https://acct.blob.core.windows.net/"))
	assert.Error(t, ValidateObjectURL("https://example.com/backups"))
	assert.True(t, IsAzureBlobURL("https://acct.blob.core.windows.net/backups/run1"))
	assert.False(t, IsAzureBlobURL("s3://bucket/run1"))
}

func TestSplitObjectPath(t *testing.T) {
	host, containerName, key, err := splitObjectPath("https://acct.blob.core.windows.net/backups/run1/data.sql")
	require.NoError(t, err)
	assert.Equal(t, "acct.blob.core.windows.net", host)
	assert.Equal(t, "backups", containerName)
	assert.Equal(t, "run1/data.sql", key)

	_, containerName, key, err = splitObjectPath("https://acct.blob.core.windows.net/backups")
	require.NoError(t, err)
	assert.Equal(t, "backups", containerName)
	assert.Equal(t, "", key)
}
