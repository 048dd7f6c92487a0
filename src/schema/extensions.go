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
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
)

// Extensions shipped with stock PostgreSQL (contrib). This is the capability
// set of the target unless the config overrides it.
var DefaultTargetExtensions = []string{
	"adminpack", "amcheck", "autoinc", "bloom", "btree_gin", "btree_gist",
	"citext", "cube", "dblink", "dict_int", "dict_xsyn", "earthdistance",
	"file_fdw", "fuzzystrmatch", "hstore", "insert_username", "intagg",
	"intarray", "isn", "lo", "ltree", "moddatetime", "pageinspect",
	"pg_buffercache", "pg_freespacemap", "pg_prewarm", "pg_stat_statements",
	"pg_surgery", "pg_trgm", "pg_visibility", "pg_walinspect", "pgcrypto",
	"pgrowlocks", "pgstattuple", "plpgsql", "postgres_fdw", "refint", "seg",
	"sslinfo", "tablefunc", "tcn", "tsm_system_rows", "tsm_system_time",
	"unaccent", "uuid-ossp", "xml2",
}

// CapabilitySet is the fixed set of extensions the target can create.
type CapabilitySet struct {
	extensions mapset.Set[string]
}

func NewCapabilitySet(extensions ...string) CapabilitySet {
	return CapabilitySet{extensions: mapset.NewSet(extensions...)}
}

func DefaultCapabilitySet() CapabilitySet {
	return NewCapabilitySet(DefaultTargetExtensions...)
}

func (c CapabilitySet) Supports(extension string) bool {
	return c.extensions != nil && c.extensions.Contains(extension)
}

// CheckExtensions puts every source extension in exactly one of the two
// returned lists. Both are sorted and free of duplicates.
func CheckExtensions(sourceExtensions []string, capabilities CapabilitySet) (available []string, blocked []string) {
	for _, ext := range lo.Uniq(sourceExtensions) {
		if capabilities.Supports(ext) {
			available = append(available, ext)
		} else {
			blocked = append(blocked, ext)
		}
	}
	sort.Strings(available)
	sort.Strings(blocked)
	return available, blocked
}
