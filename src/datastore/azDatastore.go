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

	"github.com/pgshift/pgshift/src/utils/az"
)

type AzDataStore struct {
	location string
}

func NewAzDataStore(location string) (*AzDataStore, error) {
	err := az.ValidateObjectURL(location)
	if err != nil {
		return nil, err
	}
	return &AzDataStore{location: location}, nil
}

func (ds *AzDataStore) Join(elem ...string) string {
	return joinURL(ds.location, elem...)
}

func (ds *AzDataStore) NewWriter(ctx context.Context, location string) (io.WriteCloser, error) {
	return az.NewObjectWriter(ctx, location)
}

func (ds *AzDataStore) FileSize(ctx context.Context, location string) (int64, error) {
	return az.GetObjectSize(ctx, location)
}

func (ds *AzDataStore) String() string {
	return ds.location
}
