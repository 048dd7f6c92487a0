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
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogLevelHelpers(t *testing.T) {
	defer func(level string) { LogLevel = level }(LogLevel)

	LogLevel = "DEBUG"
	assert.NoError(t, ValidateLogLevel())
	assert.Equal(t, DEBUG, LogLevel)
	assert.Equal(t, log.DebugLevel, Level())
	assert.True(t, IsLogLevelDebugOrBelow())
	assert.False(t, IsLogLevelErrorOrAbove())

	LogLevel = ERROR
	assert.Equal(t, log.ErrorLevel, Level())
	assert.False(t, IsLogLevelDebugOrBelow())
	assert.True(t, IsLogLevelErrorOrAbove())

	LogLevel = "verbose"
	assert.Error(t, ValidateLogLevel())
	assert.Equal(t, log.InfoLevel, Level())
}
