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
package gcs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

var (
	client     *storage.Client
	clientErr  error
	clientOnce sync.Once
)

func getClient(ctx context.Context) (*storage.Client, error) {
	clientOnce.Do(func() {
		// default credentials
		client, clientErr = storage.NewClient(ctx)
		if clientErr != nil {
			clientErr = fmt.Errorf("create gcs client: %w", clientErr)
		}
	})
	return client, clientErr
}

func ValidateObjectURL(location string) error {
	u, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("parsing the object of %q: %w", location, err)
	}
	if u.Scheme != "gs" {
		return fmt.Errorf("not a gcs url: %v", location)
	}
	if u.Host == "" {
		return fmt.Errorf("missing bucket in gcs url %v", location)
	}
	return nil
}

func splitObjectPath(objectPath string) (string, string, error) {
	u, err := url.Parse(objectPath)
	if err != nil {
		return "", "", fmt.Errorf("parse URL %s: %w", objectPath, err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in gcs url %v", objectPath)
	}
	if key == "" {
		return "", "", fmt.Errorf("missing key in gcs url %v", objectPath)
	}
	return bucket, key, nil
}

// ListAllObjects returns the object names under the prefix of location,
// relative to that prefix.
func ListAllObjects(ctx context.Context, location string) ([]string, error) {
	c, err := getClient(ctx)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse URL %s: %w", location, err)
	}
	bucket := u.Host
	prefix := strings.TrimPrefix(u.Path, "/")
	query := &storage.Query{}
	if prefix != "" {
		query = &storage.Query{Prefix: prefix}
	}
	objectIter := c.Bucket(bucket).Objects(ctx, query)
	var objectNames []string
	for {
		attrs, err := objectIter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return objectNames, fmt.Errorf("Bucket(%q).Objects: %w", bucket, err)
		}
		objectName := attrs.Name
		if prefix != "" {
			objectName = strings.TrimPrefix(attrs.Name, prefix)
			objectName = strings.TrimPrefix(objectName, "/")
		}
		objectNames = append(objectNames, objectName)
	}
	return objectNames, nil
}

func GetObjectSize(ctx context.Context, object string) (int64, error) {
	c, err := getClient(ctx)
	if err != nil {
		return 0, err
	}
	bucket, key, err := splitObjectPath(object)
	if err != nil {
		return 0, fmt.Errorf("split object path of %q: %w", object, err)
	}
	attrs, err := c.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return 0, fmt.Errorf("attributes of object %q: %w", object, err)
	}
	return attrs.Size, nil
}

func NewObjectWriter(ctx context.Context, object string) (io.WriteCloser, error) {
	c, err := getClient(ctx)
	if err != nil {
		return nil, err
	}
	bucketName, keyName, err := splitObjectPath(object)
	if err != nil {
		return nil, fmt.Errorf("split object path of %q: %w", object, err)
	}
	return c.Bucket(bucketName).Object(keyName).NewWriter(ctx), nil
}
