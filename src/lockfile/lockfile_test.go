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
package lockfile

import (
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockfileNaming(t *testing.T) {
	path := PathFor("/tmp/run", "rollback")
	assert.Equal(t, "/tmp/run/.rollbackLockfile.lck", path)
	assert.Equal(t, "rollback", NewLockfile(path).GetCmdName())
}

func TestLockfileTryLock(t *testing.T) {
	dir := t.TempDir()
	lf := NewLockfile(PathFor(dir, "migrate"))
	require.NoError(t, lf.TryLock())

	pid, err := lf.GetCmdPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, lf.IsPIDActive())

	lf.Unlock()
	_, err = os.Stat(PathFor(dir, "migrate"))
	assert.True(t, os.IsNotExist(err))
}

func TestLockfileStalePID(t *testing.T) {
	dir := t.TempDir()
	path := PathFor(dir, "validate")
	// PIDs this large are never handed out on linux.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)+"\n"), 0644))
	assert.False(t, NewLockfile(path).IsPIDActive())
}
