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
package constants

const (
	// Database object types
	TABLE    = "TABLE"
	SEQUENCE = "SEQUENCE"

	DEFAULT_APP_SCHEMA = "public"

	// Artifact file names inside the work dir
	SCHEMA_RAW_FILE_NAME           = "schema_raw.sql"
	SCHEMA_CLEAN_FILE_NAME         = "schema_clean.sql"
	REMOVED_POLICIES_FILE_NAME     = "removed_policies.sql"
	REMOVED_CONSTRUCTS_FILE_NAME   = "removed_constructs.json"
	DATA_FILE_NAME                 = "data.sql"
	SEQUENCES_STATE_FILE_NAME      = "sequences.json"
	SEQUENCES_SCRIPT_FILE_NAME     = "sequences.sql"
	SCHEMA_RESTORE_ERRORS_FILENAME = "schema_restore_errors.log"
	DATA_RESTORE_ERRORS_FILENAME   = "data_restore_errors.log"
	MANIFEST_FILE_NAME             = "manifest.json"
	REPORTS_DIR                    = "reports"
	METAINFO_DIR                   = "metainfo"
	LOGS_DIR                       = "logs"

	// Exit codes
	EXIT_SUCCESS               = 0
	EXIT_PARTIAL_WITH_WARNINGS = 10
	EXIT_FAILURE_PREFLIGHT     = 20
	EXIT_FAILURE_PHASE_BASE    = 30

	// Readiness tiers reported by the coupling auditor
	TIER_READY    = "ready"
	TIER_LOW      = "low"
	TIER_MODERATE = "moderate"
	TIER_HIGH     = "high"
)

const (
	OBFUSCATE_STRING = "XXXXX"
)

// Platform administrative roles of a Supabase project. Statements that mention
// any of these cannot be replayed on a plain PostgreSQL server.
var DefaultPlatformRoles = []string{
	"anon",
	"authenticated",
	"authenticator",
	"dashboard_user",
	"pgbouncer",
	"pgsodium_keyholder",
	"pgsodium_keyiduser",
	"pgsodium_keymaker",
	"service_role",
	"supabase_admin",
	"supabase_auth_admin",
	"supabase_functions_admin",
	"supabase_read_only_user",
	"supabase_realtime_admin",
	"supabase_replication_admin",
	"supabase_storage_admin",
}
