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
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"gocloud.dev/blob/s3blob"
)

var (
	client     *s3.Client
	clientErr  error
	clientOnce sync.Once
)

func getClient(ctx context.Context) (*s3.Client, error) {
	clientOnce.Do(func() {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			clientErr = fmt.Errorf("load s3 config: %w", err)
			return
		}
		client = s3.NewFromConfig(cfg)
	})
	return client, clientErr
}

func ValidateObjectURL(location string) error {
	u, err := url.Parse(location)
	if err != nil {
		return err
	}
	if u.Scheme != "s3" {
		return fmt.Errorf("not an s3 url: %v", location)
	}
	if u.Host == "" {
		return fmt.Errorf("missing bucket in s3 url %v", location)
	}
	return nil
}

func splitObjectPath(objectPath string) (string, string, error) {
	u, err := url.Parse(objectPath)
	if err != nil {
		return "", "", err
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/") // keys are looked up without the leading "/"
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in s3 url %v", objectPath)
	}
	if key == "" {
		return "", "", fmt.Errorf("missing key in s3 url %v", objectPath)
	}
	return bucket, key, nil
}

func GetObjectSize(ctx context.Context, object string) (int64, error) {
	c, err := getClient(ctx)
	if err != nil {
		return 0, err
	}
	bucket, key, err := splitObjectPath(object)
	if err != nil {
		return 0, err
	}
	result, err := c.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head object %s: %w", object, err)
	}
	return result.ContentLength, nil
}

// NewObjectWriter opens a streaming upload to object. The upload is committed
// by Close.
func NewObjectWriter(ctx context.Context, object string) (io.WriteCloser, error) {
	c, err := getClient(ctx)
	if err != nil {
		return nil, err
	}
	bucketName, keyName, err := splitObjectPath(object)
	if err != nil {
		return nil, err
	}
	bucket, err := s3blob.OpenBucketV2(ctx, c, bucketName, nil)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketName, err)
	}
	w, err := bucket.NewWriter(ctx, keyName, nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("new writer for %s: %w", object, err)
	}
	return &bucketWriter{w: w, closeBucket: bucket.Close}, nil
}

type bucketWriter struct {
	w           io.WriteCloser
	closeBucket func() error
}

func (b *bucketWriter) Write(p []byte) (int, error) {
	return b.w.Write(p)
}

func (b *bucketWriter) Close() error {
	err := b.w.Close()
	cerr := b.closeBucket()
	if err != nil {
		return err
	}
	return cerr
}
