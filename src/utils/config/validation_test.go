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
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, content string) *viper.Viper {
	path := filepath.Join(t.TempDir(), "pgshift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestValidateConfigFileAccepted(t *testing.T) {
	v := loadConfig(t, `
work-dir: /tmp/run1
log-level: debug
source:
  uri: postgres://src
target:
  uri: postgres://tgt
  extensions: [pgcrypto, uuid-ossp]
migrate:
  dry-run: true
  scope: schema,data
`)
	assert.NoError(t, ValidateConfigFile(v))
}

func TestValidateConfigFileRejected(t *testing.T) {
	v := loadConfig(t, `
export-dir: /tmp/x
source:
  db-host: localhost
import-data:
  batch-size: 10
`)
	err := ValidateConfigFile(v)
	require.Error(t, err)
	cfgErr, ok := err.(*ConfigValidationError)
	require.True(t, ok)
	assert.True(t, cfgErr.InvalidGlobalKeys.Contains("export-dir"))
	assert.True(t, cfgErr.InvalidSectionKeys["source"].Contains("db-host"))
	assert.True(t, cfgErr.InvalidSections.Contains("import-data"))
}
