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

	"github.com/pgshift/pgshift/src/utils/gcs"
)

type GCSDataStore struct {
	location string
}

func NewGCSDataStore(location string) (*GCSDataStore, error) {
	err := gcs.ValidateObjectURL(location)
	if err != nil {
		return nil, err
	}
	return &GCSDataStore{location: location}, nil
}

func (ds *GCSDataStore) Join(elem ...string) string {
	return joinURL(ds.location, elem...)
}

func (ds *GCSDataStore) NewWriter(ctx context.Context, location string) (io.WriteCloser, error) {
	return gcs.NewObjectWriter(ctx, location)
}

func (ds *GCSDataStore) FileSize(ctx context.Context, location string) (int64, error) {
	return gcs.GetObjectSize(ctx, location)
}

// Existing lists what is already stored under the datastore prefix.
func (ds *GCSDataStore) Existing(ctx context.Context) ([]string, error) {
	return gcs.ListAllObjects(ctx, ds.location)
}

func (ds *GCSDataStore) String() string {
	return ds.location
}
