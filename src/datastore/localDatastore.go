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
	"io"
	"os"
	"path/filepath"
)

// LocalDataStore archives into a directory on the machine running pgshift,
// e.g. a mounted backup volume.
type LocalDataStore struct {
	dir string
}

func NewLocalDataStore(dir string) *LocalDataStore {
	return &LocalDataStore{dir: dir}
}

func (ds *LocalDataStore) Join(elem ...string) string {
	return filepath.Join(append([]string{ds.dir}, elem...)...)
}

func (ds *LocalDataStore) NewWriter(_ context.Context, location string) (io.WriteCloser, error) {
	err := os.MkdirAll(filepath.Dir(location), 0755)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(location, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
}

func (ds *LocalDataStore) FileSize(_ context.Context, location string) (int64, error) {
	fileInfo, err := os.Stat(location)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}

func (ds *LocalDataStore) String() string {
	return ds.dir
}
