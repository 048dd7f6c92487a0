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
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/queryparser"
	"github.com/pgshift/pgshift/src/utils/sqlname"
)

const (
	REMOVED_KIND_ROLE       = "role"
	REMOVED_KIND_POLICY     = "policy"
	REMOVED_KIND_RLS_ENABLE = "rls_enable"
	REMOVED_KIND_EXTENSION  = "extension"
)

var (
	SCHEMAS_ALWAYS_PRESENT    = []string{"public", "pg_catalog"}
	EXTENSIONS_ALWAYS_PRESENT = []string{"plpgsql"}
)

// RemovedConstruct is one statement dropped from the cleaned schema.
type RemovedConstruct struct {
	Kind      string `json:"kind"`
	Name      string `json:"name,omitempty"`
	Statement string `json:"statement"`
	Reason    string `json:"reason"`
}

// Artifact is the structural definition of the source in its raw and cleaned
// forms, together with what cleaning took out.
type Artifact struct {
	RawDDL              string             `json:"-"`
	CleanDDL            string             `json:"-"`
	Removed             []RemovedConstruct `json:"removed"`
	SourceExtensions    []string           `json:"source_extensions"`
	ExtensionSchemas    map[string]string  `json:"extension_schemas,omitempty"`
	AvailableExtensions []string           `json:"available_extensions"`
	BlockedExtensions   []string           `json:"blocked_extensions"`
}

func (a *Artifact) IsCleaned() bool {
	return a.CleanDDL != ""
}

// RemovedOfKind returns the removed constructs of one kind, in dump order.
func (a *Artifact) RemovedOfKind(kind string) []RemovedConstruct {
	return lo.Filter(a.Removed, func(rc RemovedConstruct, _ int) bool { return rc.Kind == kind })
}

// RemovedPoliciesSQL renders the policy definitions and their enablement
// statements so that they can be reimplemented by hand.
func (a *Artifact) RemovedPoliciesSQL() string {
	var sb strings.Builder
	sb.WriteString("-- Row level security removed by pgshift.\n")
	sb.WriteString("-- The target does not have the platform roles these policies rely on.\n\n")
	for _, rc := range a.Removed {
		if rc.Kind != REMOVED_KIND_POLICY && rc.Kind != REMOVED_KIND_RLS_ENABLE {
			continue
		}
		sb.WriteString(rc.Statement)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// CleanRules parameterise the filter.
type CleanRules struct {
	PlatformRoles []string
	Capabilities  CapabilitySet
}

// Clean removes from the raw DDL every statement that references a platform
// role, every row level security policy and enablement statement and the
// creation of extensions outside the capability set. Policies are matched
// before roles so that a policy granted TO a platform role is kept aside as a
// policy. Available source extensions the dump does not create are created
// right after the dump prelude, in the schema they live in on the source.
// An already cleaned artifact is cleaned again from its cleaned form, which
// changes nothing.
func Clean(a *Artifact, rules CleanRules) (*Artifact, error) {
	input := a.RawDDL
	if a.IsCleaned() {
		input = a.CleanDDL
	}
	if input == "" {
		return nil, fmt.Errorf("schema artifact has no raw DDL to clean")
	}
	stmts, err := queryparser.SplitStatements(input)
	if err != nil {
		return nil, fmt.Errorf("split schema: %w", err)
	}
	platformRoles := mapset.NewThreadUnsafeSet(rules.PlatformRoles...)

	var kept []string
	created := newCreatedObjects()
	preludeLen, inPrelude := 0, true
	removed := append([]RemovedConstruct{}, a.Removed...)
	for _, stmt := range stmts {
		tree, err := queryparser.Parse(stmt)
		if err != nil {
			log.Warnf("keeping statement that could not be parsed: %v: %s", err, stmt)
			kept = append(kept, stmt)
			inPrelude = false
			continue
		}
		rc := classify(stmt, tree, platformRoles, rules.Capabilities)
		if rc != nil {
			log.Infof("removing %s statement: %s", rc.Kind, rc.Reason)
			removed = append(removed, *rc)
			continue
		}
		kept = append(kept, stmt)
		created.record(tree)
		inPrelude = inPrelude && queryparser.IsDumpPrelude(tree)
		if inPrelude {
			preludeLen = len(kept)
		}
	}

	source := a.SourceExtensions
	available, blocked := CheckExtensions(source, rules.Capabilities)
	for _, rc := range removed {
		if rc.Kind == REMOVED_KIND_EXTENSION && !lo.Contains(blocked, rc.Name) {
			blocked = append(blocked, rc.Name)
		}
	}
	sort.Strings(blocked)

	missing := created.missingExtensionDDL(available, a.ExtensionSchemas)
	if len(missing) > 0 {
		kept = append(kept[:preludeLen], append(missing, kept[preludeLen:]...)...)
	}

	return &Artifact{
		RawDDL:              a.RawDDL,
		CleanDDL:            strings.Join(kept, "\n\n") + "\n",
		Removed:             removed,
		SourceExtensions:    source,
		ExtensionSchemas:    a.ExtensionSchemas,
		AvailableExtensions: available,
		BlockedExtensions:   blocked,
	}, nil
}

// createdObjects tracks the schemas and extensions a DDL script creates.
type createdObjects struct {
	schemas    mapset.Set[string]
	extensions mapset.Set[string]
}

func newCreatedObjects() *createdObjects {
	return &createdObjects{
		schemas:    mapset.NewThreadUnsafeSet(SCHEMAS_ALWAYS_PRESENT...),
		extensions: mapset.NewThreadUnsafeSet(EXTENSIONS_ALWAYS_PRESENT...),
	}
}

func (c *createdObjects) record(tree *pg_query.ParseResult) {
	if name := queryparser.CreatedSchema(tree); name != "" {
		c.schemas.Add(name)
	}
	if name := queryparser.CreatedExtension(tree); name != "" {
		c.extensions.Add(name)
	}
}

// missingExtensionDDL returns the statements creating every available
// extension not created yet, preceded by the creation of the schemas they
// need. An extension with no known schema goes to public.
func (c *createdObjects) missingExtensionDDL(available []string, extensionSchemas map[string]string) []string {
	var stmts []string
	for _, ext := range available {
		if c.extensions.Contains(ext) {
			continue
		}
		schemaName := extensionSchemas[ext]
		if schemaName == "" {
			schemaName = "public"
		}
		if !c.schemas.Contains(schemaName) {
			stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", sqlname.QuoteIdent(schemaName)))
			c.schemas.Add(schemaName)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %s WITH SCHEMA %s;",
			sqlname.QuoteIdent(ext), sqlname.QuoteIdent(schemaName)))
		c.extensions.Add(ext)
	}
	return stmts
}

// classify returns the reason stmt must be removed, or nil to keep it.
func classify(stmt string, tree *pg_query.ParseResult, platformRoles mapset.Set[string], capabilities CapabilitySet) *RemovedConstruct {
	if len(tree.Stmts) == 0 {
		return nil
	}
	switch {
	case queryparser.IsPolicyStatement(tree):
		return &RemovedConstruct{Kind: REMOVED_KIND_POLICY, Statement: stmt, Reason: "row level security policy"}
	case queryparser.IsRowSecurityToggle(tree):
		return &RemovedConstruct{Kind: REMOVED_KIND_RLS_ENABLE, Statement: stmt, Reason: "row level security enablement"}
	}
	if ext := queryparser.ExtensionName(tree); ext != "" && !capabilities.Supports(ext) {
		return &RemovedConstruct{
			Kind:      REMOVED_KIND_EXTENSION,
			Name:      ext,
			Statement: stmt,
			Reason:    fmt.Sprintf("extension %s is not available on the target", ext),
		}
	}
	roles := lo.Filter(queryparser.RoleNames(tree), func(role string, _ int) bool {
		return platformRoles.Contains(role)
	})
	if len(roles) > 0 {
		return &RemovedConstruct{
			Kind:      REMOVED_KIND_ROLE,
			Name:      roles[0],
			Statement: stmt,
			Reason:    fmt.Sprintf("references platform role %s", strings.Join(roles, ", ")),
		}
	}
	return nil
}
