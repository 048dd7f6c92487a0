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
package queryparser

const (
	PG_QUERY_NODE_NODE                = "pg_query.Node"
	PG_QUERY_ROLESPEC_NODE            = "pg_query.RoleSpec"
	PG_QUERY_CREATE_ROLE_STMT_NODE    = "pg_query.CreateRoleStmt"
	PG_QUERY_POLICY_STMT              = "pg_query.CreatePolicyStmt"
	PG_QUERY_ALTER_POLICY_STMT        = "pg_query.AlterPolicyStmt"
	PG_QUERY_ALTER_TABLE_STMT         = "pg_query.AlterTableStmt"
	PG_QUERY_CREATE_EXTENSION_STMT    = "pg_query.CreateExtensionStmt"
	PG_QUERY_COMMENT_STMT             = "pg_query.CommentStmt"
	PG_QUERY_COPY_STMT                = "pg_query.CopyStmt"
	PG_QUERY_VARIABLE_SET_STMT        = "pg_query.VariableSetStmt"
	PG_QUERY_SELECT_STMT              = "pg_query.SelectStmt"
	PG_QUERY_CREATE_STMT              = "pg_query.CreateStmt"
	PG_QUERY_CREATE_SEQ_STMT          = "pg_query.CreateSeqStmt"
	PG_QUERY_GRANT_STMT_NODE          = "pg_query.GrantStmt"
	PG_QUERY_ALTER_OWNER_STMT_NODE    = "pg_query.AlterOwnerStmt"
	PG_QUERY_ALTER_DEFAULT_PRIVS_NODE = "pg_query.AlterDefaultPrivilegesStmt"
)
