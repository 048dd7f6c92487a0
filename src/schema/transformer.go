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
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/srcdb"
	"github.com/pgshift/pgshift/src/tgtdb"
)

// Transformer extracts the source schema, cleans it and applies the cleaned
// form to the target. Every step leaves its output in the artifact store.
type Transformer struct {
	source *srcdb.Source
	store  *artifacts.Store
	rules  CleanRules
}

func NewTransformer(source *srcdb.Source, store *artifacts.Store, rules CleanRules) *Transformer {
	return &Transformer{source: source, store: store, rules: rules}
}

// Extract dumps the DDL of the application schemas and reads the extension
// inventory of the source. A dump limited to some schemas holds no CREATE
// EXTENSION, so the inventory also records the schema of each extension.
// On failure nothing is recorded.
func (t *Transformer) Extract(ctx context.Context) (*Artifact, error) {
	tmp := t.store.TempPath(constants.SCHEMA_RAW_FILE_NAME)
	err := t.source.ExtractSchema(ctx, tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("extract schema: %w", err)
	}
	_, err = t.store.Commit(constants.SCHEMA_RAW_FILE_NAME)
	if err != nil {
		return nil, err
	}
	raw, err := t.store.Read(constants.SCHEMA_RAW_FILE_NAME)
	if err != nil {
		return nil, err
	}
	extensionSchemas, err := pgcatalog.ListExtensionSchemas(ctx, t.source.DB())
	if err != nil {
		return nil, fmt.Errorf("read source extensions: %w", err)
	}
	extensions := lo.Keys(extensionSchemas)
	sort.Strings(extensions)
	log.Infof("source extensions: %v", extensionSchemas)
	return &Artifact{RawDDL: string(raw), SourceExtensions: extensions, ExtensionSchemas: extensionSchemas}, nil
}

// Clean filters the artifact and records the cleaned schema, the removed
// policies and the full list of removed constructs.
func (t *Transformer) Clean(a *Artifact) (*Artifact, error) {
	cleaned, err := Clean(a, t.rules)
	if err != nil {
		return nil, err
	}
	_, err = t.store.Write(constants.SCHEMA_CLEAN_FILE_NAME, []byte(cleaned.CleanDDL))
	if err != nil {
		return nil, err
	}
	_, err = t.store.Write(constants.REMOVED_POLICIES_FILE_NAME, []byte(cleaned.RemovedPoliciesSQL()))
	if err != nil {
		return nil, err
	}
	bs, err := json.MarshalIndent(cleaned, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal removed constructs: %w", err)
	}
	_, err = t.store.Write(constants.REMOVED_CONSTRUCTS_FILE_NAME, bs)
	if err != nil {
		return nil, err
	}
	for _, ext := range cleaned.BlockedExtensions {
		log.Warnf("extension %s is not available on the target, its creation was removed", ext)
	}
	log.Infof("schema cleaned: %d statements removed", len(cleaned.Removed))
	return cleaned, nil
}

// Load rebuilds the cleaned artifact of an earlier run from the store.
func (t *Transformer) Load() (*Artifact, error) {
	raw, err := t.store.Read(constants.SCHEMA_RAW_FILE_NAME)
	if err != nil {
		return nil, err
	}
	clean, err := t.store.Read(constants.SCHEMA_CLEAN_FILE_NAME)
	if err != nil {
		return nil, err
	}
	bs, err := t.store.Read(constants.REMOVED_CONSTRUCTS_FILE_NAME)
	if err != nil {
		return nil, err
	}
	a := &Artifact{}
	err = json.Unmarshal(bs, a)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", constants.REMOVED_CONSTRUCTS_FILE_NAME, err)
	}
	a.RawDDL = string(raw)
	a.CleanDDL = string(clean)
	return a, nil
}

// Apply loads the cleaned schema on the target. Failed statements are
// counted in the result and detailed in the schema restore error log. When
// resuming an earlier apply of the same artifact, statements whose object
// already exists count as applied.
func (t *Transformer) Apply(ctx context.Context, target *tgtdb.Target, a *Artifact, resume bool) (*tgtdb.LoadResult, error) {
	if !a.IsCleaned() {
		return nil, fmt.Errorf("schema artifact has not been cleaned")
	}
	result, err := target.LoadDump(ctx, strings.NewReader(a.CleanDDL), tgtdb.LoadOptions{
		SourceName:   constants.SCHEMA_CLEAN_FILE_NAME,
		ErrorLogPath: t.store.Path(constants.SCHEMA_RESTORE_ERRORS_FILENAME),
		Resume:       resume,
	})
	if _, rerr := t.store.Refresh(constants.SCHEMA_RESTORE_ERRORS_FILENAME); rerr != nil {
		log.Warnf("record schema restore error log: %v", rerr)
	}
	if err != nil {
		return result, fmt.Errorf("apply schema: %w", err)
	}
	return result, nil
}
