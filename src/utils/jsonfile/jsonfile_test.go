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
package jsonfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJsonFile(t *testing.T) {
	type Checkpoint struct {
		Phase string
		Done  bool
	}
	jf := NewJsonFile[Checkpoint](filepath.Join(t.TempDir(), "checkpoint.json"))
	assert.False(t, jf.Exists())

	cp, err := jf.Read()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, cp)

	err = jf.Update(func(c *Checkpoint) {
		c.Phase = "schema"
	})
	assert.Nil(t, err)
	assert.True(t, jf.Exists())

	cp, err = jf.Read()
	assert.Nil(t, err)
	assert.Equal(t, "schema", cp.Phase)
	assert.False(t, cp.Done)

	err = jf.Update(func(c *Checkpoint) {
		c.Done = true
	})
	assert.Nil(t, err)
	cp, err = jf.Read()
	assert.Nil(t, err)
	assert.Equal(t, Checkpoint{Phase: "schema", Done: true}, *cp)

	assert.Nil(t, jf.Delete())
	assert.False(t, jf.Exists())
}

func TestJsonFileLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	jf := NewJsonFile[map[string]int](filepath.Join(dir, "counts.json"))
	for i := 0; i < 5; i++ {
		err := jf.Update(func(m *map[string]int) {
			if *m == nil {
				*m = map[string]int{}
			}
			(*m)["n"]++
		})
		assert.NoError(t, err)
	}
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	m, err := jf.Read()
	assert.NoError(t, err)
	assert.Equal(t, 5, (*m)["n"])
}
