//go:build unit

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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/src/constants"
)

const supabaseDump = `--
-- PostgreSQL database dump
--

SET statement_timeout = 0;
SELECT pg_catalog.set_config('search_path', '', false);

CREATE EXTENSION IF NOT EXISTS pgsodium WITH SCHEMA pgsodium;

COMMENT ON EXTENSION pgsodium IS 'Modern cryptography for PostgreSQL';

CREATE EXTENSION IF NOT EXISTS pg_trgm WITH SCHEMA public;

CREATE TABLE public.orders (
    id bigint NOT NULL,
    note text DEFAULT 'a;b'
);

CREATE SEQUENCE public.orders_id_seq START WITH 1 INCREMENT BY 1 NO MINVALUE NO MAXVALUE CACHE 1;

ALTER TABLE ONLY public.orders ALTER COLUMN id SET DEFAULT nextval('public.orders_id_seq'::regclass);

ALTER TABLE public.orders ENABLE ROW LEVEL SECURITY;

CREATE POLICY "owners read" ON public.orders FOR SELECT TO authenticated USING (true);

GRANT SELECT ON TABLE public.orders TO anon;

ALTER DEFAULT PRIVILEGES FOR ROLE postgres IN SCHEMA public GRANT ALL ON TABLES TO service_role;
`

func testRules() CleanRules {
	return CleanRules{
		PlatformRoles: constants.DefaultPlatformRoles,
		Capabilities:  DefaultCapabilitySet(),
	}
}

func TestCleanRemovesPlatformConstructs(t *testing.T) {
	a := &Artifact{RawDDL: supabaseDump, SourceExtensions: []string{"plpgsql", "pgsodium", "pg_trgm"}}
	cleaned, err := Clean(a, testRules())
	require.NoError(t, err)

	assert.NotContains(t, cleaned.CleanDDL, "pgsodium")
	assert.NotContains(t, cleaned.CleanDDL, "POLICY")
	assert.NotContains(t, cleaned.CleanDDL, "ROW LEVEL SECURITY")
	assert.NotContains(t, cleaned.CleanDDL, "anon")
	assert.NotContains(t, cleaned.CleanDDL, "service_role")
	assert.Contains(t, cleaned.CleanDDL, "CREATE TABLE public.orders")
	assert.Contains(t, cleaned.CleanDDL, "DEFAULT 'a;b'")
	assert.Contains(t, cleaned.CleanDDL, "CREATE EXTENSION IF NOT EXISTS pg_trgm")

	kinds := map[string]int{}
	for _, rc := range cleaned.Removed {
		kinds[rc.Kind]++
	}
	assert.Equal(t, map[string]int{
		REMOVED_KIND_EXTENSION:  2,
		REMOVED_KIND_RLS_ENABLE: 1,
		REMOVED_KIND_POLICY:     1,
		REMOVED_KIND_ROLE:       2,
	}, kinds)

	assert.Equal(t, []string{"pgsodium"}, cleaned.BlockedExtensions)
	assert.Equal(t, []string{"pg_trgm", "plpgsql"}, cleaned.AvailableExtensions)

	policies := cleaned.RemovedPoliciesSQL()
	assert.Contains(t, policies, `CREATE POLICY "owners read" ON public.orders FOR SELECT TO authenticated USING (true);`)
	assert.Contains(t, policies, "ALTER TABLE public.orders ENABLE ROW LEVEL SECURITY;")
	assert.NotContains(t, policies, "GRANT")
}

func TestCleanIsIdempotent(t *testing.T) {
	a := &Artifact{RawDDL: supabaseDump, SourceExtensions: []string{"pgsodium", "pg_trgm"}}
	once, err := Clean(a, testRules())
	require.NoError(t, err)
	twice, err := Clean(once, testRules())
	require.NoError(t, err)
	assert.Equal(t, once, twice)

	// cleaning the cleaned text as if it were raw removes nothing more
	again, err := Clean(&Artifact{RawDDL: once.CleanDDL}, testRules())
	require.NoError(t, err)
	assert.Equal(t, once.CleanDDL, again.CleanDDL)
	assert.Empty(t, again.Removed)
}

// schemaOnlyDump is what pg_dump writes when limited with --schema: no
// extension is ever created.
const schemaOnlyDump = `--
-- PostgreSQL database dump
--

SET statement_timeout = 0;
SELECT pg_catalog.set_config('search_path', '', false);

--
-- Name: app; Type: SCHEMA; Schema: -; Owner: postgres
--

CREATE SCHEMA app;

ALTER SCHEMA app OWNER TO postgres;

CREATE TABLE app.customers (
    id uuid DEFAULT extensions.uuid_generate_v4() NOT NULL,
    name text NOT NULL
);

CREATE INDEX customers_name_trgm ON app.customers USING gin (name public.gin_trgm_ops);

GRANT SELECT ON TABLE app.customers TO anon;
`

func TestCleanCreatesAvailableExtensionsMissingFromDump(t *testing.T) {
	a := &Artifact{
		RawDDL:           schemaOnlyDump,
		SourceExtensions: []string{"pg_trgm", "pgsodium", "plpgsql", "uuid-ossp"},
		ExtensionSchemas: map[string]string{
			"pg_trgm":   "public",
			"pgsodium":  "pgsodium",
			"plpgsql":   "pg_catalog",
			"uuid-ossp": "extensions",
		},
	}
	cleaned, err := Clean(a, testRules())
	require.NoError(t, err)

	assert.Equal(t, []string{"pg_trgm", "plpgsql", "uuid-ossp"}, cleaned.AvailableExtensions)
	assert.Equal(t, []string{"pgsodium"}, cleaned.BlockedExtensions)
	assert.NotContains(t, cleaned.CleanDDL, "pgsodium")
	assert.NotContains(t, cleaned.CleanDDL, `"plpgsql"`)

	trgm := strings.Index(cleaned.CleanDDL, `CREATE EXTENSION IF NOT EXISTS "pg_trgm" WITH SCHEMA "public";`)
	extSchema := strings.Index(cleaned.CleanDDL, `CREATE SCHEMA IF NOT EXISTS "extensions";`)
	uuidOssp := strings.Index(cleaned.CleanDDL, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp" WITH SCHEMA "extensions";`)
	appSchema := strings.Index(cleaned.CleanDDL, "ALTER SCHEMA app OWNER TO postgres;")
	table := strings.Index(cleaned.CleanDDL, "CREATE TABLE app.customers")
	index := strings.Index(cleaned.CleanDDL, "gin_trgm_ops")
	require.True(t, trgm >= 0 && extSchema >= 0 && uuidOssp >= 0, cleaned.CleanDDL)
	assert.Less(t, appSchema, trgm)
	assert.Less(t, extSchema, uuidOssp)
	assert.Less(t, uuidOssp, table)
	assert.Less(t, trgm, index)

	again, err := Clean(cleaned, testRules())
	require.NoError(t, err)
	assert.Equal(t, cleaned.CleanDDL, again.CleanDDL)
	assert.Equal(t, 2, strings.Count(again.CleanDDL, "CREATE EXTENSION"))
}

func TestCleanHonoursConfiguredRoles(t *testing.T) {
	a := &Artifact{RawDDL: "GRANT SELECT ON public.orders TO reporting;\nCREATE TABLE public.t (id int);\n"}
	cleaned, err := Clean(a, CleanRules{PlatformRoles: []string{"reporting"}, Capabilities: DefaultCapabilitySet()})
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE public.t (id int);\n", cleaned.CleanDDL)
	require.Len(t, cleaned.RemovedOfKind(REMOVED_KIND_ROLE), 1)
	assert.Equal(t, "reporting", cleaned.Removed[0].Name)
}

func TestCleanRequiresDDL(t *testing.T) {
	_, err := Clean(&Artifact{}, testRules())
	assert.Error(t, err)
}

func TestCheckExtensionsIsTotal(t *testing.T) {
	source := []string{"pgsodium", "pg_graphql", "plpgsql", "uuid-ossp", "pgsodium", "pg_net"}
	available, blocked := CheckExtensions(source, DefaultCapabilitySet())
	assert.Equal(t, []string{"plpgsql", "uuid-ossp"}, available)
	assert.Equal(t, []string{"pg_graphql", "pg_net", "pgsodium"}, blocked)
	for _, ext := range []string{"pgsodium", "pg_graphql", "plpgsql", "uuid-ossp", "pg_net"} {
		inAvailable := contains(available, ext)
		inBlocked := contains(blocked, ext)
		assert.True(t, inAvailable != inBlocked, "extension %s must be in exactly one set", ext)
	}

	available, blocked = CheckExtensions(source, NewCapabilitySet("pgsodium"))
	assert.Equal(t, []string{"pgsodium"}, available)
	assert.Len(t, blocked, 4)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
