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

	"github.com/pgshift/pgshift/src/utils/s3"
)

type S3DataStore struct {
	location string
}

func NewS3DataStore(location string) (*S3DataStore, error) {
	err := s3.ValidateObjectURL(location)
	if err != nil {
		return nil, err
	}
	return &S3DataStore{location: location}, nil
}

// filepath.Join would turn s3://bucket into s3:/bucket.
func (ds *S3DataStore) Join(elem ...string) string {
	return joinURL(ds.location, elem...)
}

func (ds *S3DataStore) NewWriter(ctx context.Context, location string) (io.WriteCloser, error) {
	return s3.NewObjectWriter(ctx, location)
}

func (ds *S3DataStore) FileSize(ctx context.Context, location string) (int64, error) {
	return s3.GetObjectSize(ctx, location)
}

func (ds *S3DataStore) String() string {
	return ds.location
}
