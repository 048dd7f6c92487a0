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
package az

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"gocloud.dev/blob"
	"gocloud.dev/blob/azureblob"
)

// creates a client for the container in the url with the default creds.
func createContainerClient(containerURL string) (*container.Client, error) {
	// default OAuth token of the environment
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("create azure default credential: %w", err)
	}
	containerClient, err := container.NewClient(containerURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure blob container client: %w", err)
	}
	return containerClient, nil
}

// check if url is in format
// https://<account_name>.blob.core.windows.net/<container_name>[/prefix]
func ValidateObjectURL(location string) error {
	locationURL, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("parsing the object of %q: %w", location, err)
	}
	containerDir := locationURL.Path
	if containerDir == "" || containerDir == "/" {
		return fmt.Errorf("missing container in azure blob url %v", location)
	}
	service := locationURL.Host
	if service == "" {
		return fmt.Errorf("missing service in azure blob url %v", location)
	} else if !strings.Contains(service, ".blob.") {
		return fmt.Errorf("invalid service in azure blob url %v", location)
	}
	return nil
}

func IsAzureBlobURL(location string) bool {
	return strings.HasPrefix(location, "https://") && ValidateObjectURL(location) == nil
}

func splitObjectPath(objectPath string) (string, string, string, error) {
	err := ValidateObjectURL(objectPath)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid azure blob url %v: %w", objectPath, err)
	}
	objectURL, err := url.Parse(objectPath)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing the object of %q: %w", objectPath, err)
	}
	serviceHost := objectURL.Host
	blobPath := objectURL.Path[1:]
	containerName := strings.Split(blobPath, "/")[0]
	key := ""
	if len(blobPath) > len(containerName) {
		key = strings.TrimPrefix(blobPath, containerName)[1:] // drop the "/" after the container
	}
	return serviceHost, containerName, key, nil
}

func openBucket(ctx context.Context, objectURL string) (*blob.Bucket, string, error) {
	serviceHost, containerName, key, err := splitObjectPath(objectURL)
	if err != nil {
		return nil, "", err
	}
	if key == "" {
		return nil, "", fmt.Errorf("missing blob name in azure blob url %v", objectURL)
	}
	containerURL := fmt.Sprintf("https://%s/%s", serviceHost, containerName)
	containerClient, err := createContainerClient(containerURL)
	if err != nil {
		return nil, "", fmt.Errorf("creating container client for %q: %w", containerURL, err)
	}
	bucket, err := azureblob.OpenBucket(ctx, containerClient, nil)
	if err != nil {
		return nil, "", fmt.Errorf("opening bucket for %q: %w", containerURL, err)
	}
	return bucket, key, nil
}

func GetObjectSize(ctx context.Context, objectURL string) (int64, error) {
	bucket, key, err := openBucket(ctx, objectURL)
	if err != nil {
		return 0, err
	}
	defer bucket.Close()
	attrs, err := bucket.Attributes(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("getting attributes of %q: %w", objectURL, err)
	}
	return attrs.Size, nil
}

func NewObjectWriter(ctx context.Context, objectURL string) (io.WriteCloser, error) {
	bucket, key, err := openBucket(ctx, objectURL)
	if err != nil {
		return nil, err
	}
	w, err := bucket.NewWriter(ctx, key, nil)
	if err != nil {
		bucket.Close()
		return nil, fmt.Errorf("new writer for %q: %w", objectURL, err)
	}
	return &bucketWriter{w: w, bucket: bucket}, nil
}

type bucketWriter struct {
	w      *blob.Writer
	bucket *blob.Bucket
}

func (b *bucketWriter) Write(p []byte) (int, error) {
	return b.w.Write(p)
}

func (b *bucketWriter) Close() error {
	err := b.w.Close()
	cerr := b.bucket.Close()
	if err != nil {
		return err
	}
	return cerr
}
