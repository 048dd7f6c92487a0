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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// Datastore is a place a finished work dir can be copied to.
type Datastore interface {
	// Join builds the location of a file inside the datastore.
	Join(elem ...string) string
	// NewWriter opens location for writing; Close commits the object.
	NewWriter(ctx context.Context, location string) (io.WriteCloser, error)
	FileSize(ctx context.Context, location string) (int64, error)
	String() string
}

func NewDataStore(location string) (Datastore, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		return NewS3DataStore(location)
	case strings.HasPrefix(location, "gs://"):
		return NewGCSDataStore(location)
	case strings.HasPrefix(location, "https://"):
		return NewAzDataStore(location)
	}
	if strings.Contains(location, "://") {
		return nil, fmt.Errorf("unsupported archive location %q", location)
	}
	return NewLocalDataStore(location), nil
}

type ArchivedFile struct {
	Name     string
	Location string
	Size     int64
}

// Archive copies the named files of dir into ds under prefix and checks that
// the stored size matches the local one.
func Archive(ctx context.Context, ds Datastore, dir string, prefix string, names []string) ([]ArchivedFile, error) {
	var result []ArchivedFile
	for _, name := range names {
		localPath := filepath.Join(dir, name)
		location := ds.Join(prefix, filepath.ToSlash(name))
		n, err := upload(ctx, ds, localPath, location)
		if err != nil {
			return result, fmt.Errorf("archive %s to %s: %w", name, location, err)
		}
		size, err := ds.FileSize(ctx, location)
		if err != nil {
			return result, fmt.Errorf("stat archived %s: %w", location, err)
		}
		if size != n {
			return result, fmt.Errorf("archived %s has %d bytes, expected %d", location, size, n)
		}
		log.Infof("archived %s to %s (%s)", name, location, humanize.Bytes(uint64(n)))
		result = append(result, ArchivedFile{Name: name, Location: location, Size: n})
	}
	return result, nil
}

func upload(ctx context.Context, ds Datastore, localPath, location string) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w, err := ds.NewWriter(ctx, location)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, f)
	if err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

func joinURL(base string, elem ...string) string {
	parts := []string{strings.TrimSuffix(base, "/")}
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "/")
}
