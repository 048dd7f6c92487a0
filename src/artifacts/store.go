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
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/utils"
	"github.com/pgshift/pgshift/src/utils/jsonfile"
)

var ErrArtifactModified = errors.New("artifact differs from its manifest entry")

type Entry struct {
	Name      string    `json:"name"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Manifest struct {
	Artifacts map[string]Entry `json:"artifacts"`
}

// Store is the work dir of one migration. Every artifact written through it
// is recorded in manifest.json with its digest, and once recorded it is never
// overwritten with different content.
type Store struct {
	dir      string
	manifest *jsonfile.JsonFile[Manifest]
}

func Open(dir string) (*Store, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir %q: %w", dir, err)
	}
	for _, sub := range []string{"", constants.REPORTS_DIR, constants.METAINFO_DIR, constants.LOGS_DIR} {
		err = os.MkdirAll(filepath.Join(absDir, sub), 0755)
		if err != nil {
			return nil, fmt.Errorf("create work dir %q: %w", filepath.Join(absDir, sub), err)
		}
	}
	return &Store{
		dir:      absDir,
		manifest: jsonfile.NewJsonFile[Manifest](filepath.Join(absDir, constants.MANIFEST_FILE_NAME)),
	}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) Exists(name string) bool {
	return utils.FileOrFolderExists(s.Path(name))
}

// Write stores data under name. Writing the same bytes again is a no-op;
// writing different bytes to a recorded artifact fails.
func (s *Store) Write(name string, data []byte) (*Entry, error) {
	digest := digestBytes(data)
	entry, found, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	if found {
		if entry.SHA256 == digest {
			return entry, nil
		}
		return nil, fmt.Errorf("write %s: %w", name, ErrArtifactModified)
	}
	path := s.Path(name)
	err = os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", name, err)
	}
	err = os.WriteFile(path, data, 0644)
	if err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", path, err)
	}
	return s.record(name, digest, int64(len(data)))
}

// CreateExclusive writes a file that must not exist yet. Used for reports
// which are written exactly once.
func (s *Store) CreateExclusive(name string, data []byte) (*Entry, error) {
	path := s.Path(name)
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, fmt.Errorf("create dir for %s: %w", name, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0444)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	_, err = f.Write(data)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	err = f.Close()
	if err != nil {
		return nil, fmt.Errorf("close %s: %w", path, err)
	}
	return s.record(name, digestBytes(data), int64(len(data)))
}

// TempPath is where an external writer should put an artifact before Commit.
func (s *Store) TempPath(name string) string {
	return filepath.Join(s.dir, "."+name+".partial")
}

// Commit moves the file at TempPath(name) into place and records it. If the
// artifact was already recorded with the same digest the temp file is
// dropped, with a different digest it is dropped and ErrArtifactModified
// is returned.
func (s *Store) Commit(name string) (*Entry, error) {
	tmp := s.TempPath(name)
	digest, size, err := digestFile(tmp)
	if err != nil {
		return nil, err
	}
	entry, found, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	if found {
		os.Remove(tmp)
		if entry.SHA256 == digest {
			return entry, nil
		}
		return nil, fmt.Errorf("commit %s: %w", name, ErrArtifactModified)
	}
	err = os.Rename(tmp, s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("move %s into place: %w", name, err)
	}
	return s.record(name, digest, size)
}

// Register records a file that something else (pg_dump, the dump loader)
// wrote into the work dir.
func (s *Store) Register(name string) (*Entry, error) {
	digest, size, err := digestFile(s.Path(name))
	if err != nil {
		return nil, err
	}
	entry, found, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	if found {
		if entry.SHA256 == digest {
			return entry, nil
		}
		return nil, fmt.Errorf("register %s: %w", name, ErrArtifactModified)
	}
	return s.record(name, digest, size)
}

// Refresh re-records a file regardless of its previous digest. Only for
// error logs, which are rewritten on every attempt of their phase.
func (s *Store) Refresh(name string) (*Entry, error) {
	digest, size, err := digestFile(s.Path(name))
	if err != nil {
		return nil, err
	}
	return s.record(name, digest, size)
}

func (s *Store) Read(name string) ([]byte, error) {
	bs, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", name, err)
	}
	return bs, nil
}

func (s *Store) Lookup(name string) (*Entry, bool, error) {
	m, err := s.readManifest()
	if err != nil {
		return nil, false, err
	}
	entry, ok := m.Artifacts[name]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Verify reports whether name is recorded and the file on disk still has the
// recorded digest.
func (s *Store) Verify(name string) (bool, error) {
	entry, found, err := s.Lookup(name)
	if err != nil || !found {
		return false, err
	}
	if !s.Exists(name) {
		return false, nil
	}
	digest, _, err := digestFile(s.Path(name))
	if err != nil {
		return false, err
	}
	if digest != entry.SHA256 {
		log.Warnf("artifact %s has digest %s, manifest says %s", name, digest, entry.SHA256)
		return false, nil
	}
	return true, nil
}

func (s *Store) List() ([]Entry, error) {
	m, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(m.Artifacts))
	for _, e := range m.Artifacts {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Clean removes everything inside the work dir except the logs and the
// command lockfiles, then recreates the layout.
func (s *Store) Clean() error {
	keep := []string{constants.LOGS_DIR}
	lockfiles, err := filepath.Glob(filepath.Join(s.dir, ".*Lockfile.lck"))
	if err != nil {
		return fmt.Errorf("list lockfiles in %s: %w", s.dir, err)
	}
	for _, lf := range lockfiles {
		keep = append(keep, filepath.Base(lf))
	}
	err = utils.CleanDir(s.dir, keep...)
	if err != nil {
		return fmt.Errorf("clean work dir %s: %w", s.dir, err)
	}
	_, err = Open(s.dir)
	return err
}

func (s *Store) readManifest() (*Manifest, error) {
	if !s.manifest.Exists() {
		return &Manifest{Artifacts: map[string]Entry{}}, nil
	}
	m, err := s.manifest.Read()
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if m.Artifacts == nil {
		m.Artifacts = map[string]Entry{}
	}
	return m, nil
}

func (s *Store) record(name, digest string, size int64) (*Entry, error) {
	entry := Entry{Name: name, SHA256: digest, Size: size, CreatedAt: time.Now().UTC()}
	err := s.manifest.Update(func(m *Manifest) {
		if m.Artifacts == nil {
			m.Artifacts = map[string]Entry{}
		}
		m.Artifacts[name] = entry
	})
	if err != nil {
		return nil, fmt.Errorf("update manifest for %s: %w", name, err)
	}
	log.Infof("recorded artifact %s (sha256=%s, %d bytes)", name, digest, size)
	return &entry, nil
}

func digestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func digestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

