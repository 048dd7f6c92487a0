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

import (
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/samber/lo"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// RoleNames returns every role name the statement references, in order of
// first appearance. Pseudo roles like PUBLIC or CURRENT_USER are not returned.
func RoleNames(parseTree *pg_query.ParseResult) []string {
	var roles []string
	for _, rawStmt := range parseTree.Stmts {
		visited := make(map[protoreflect.Message]bool)
		_ = TraverseParseTree(rawStmt.Stmt.ProtoReflect(), visited, func(msg protoreflect.Message) error {
			switch GetMsgFullName(msg) {
			case PG_QUERY_ROLESPEC_NODE:
				if name := GetStringField(msg, "rolename"); name != "" {
					roles = append(roles, name)
				}
			case PG_QUERY_CREATE_ROLE_STMT_NODE:
				if name := GetStringField(msg, "role"); name != "" {
					roles = append(roles, name)
				}
			}
			return nil
		})
	}
	return lo.Uniq(roles)
}

// IsPolicyStatement reports whether the statement defines, alters or
// comments on a row-level-security policy.
func IsPolicyStatement(parseTree *pg_query.ParseResult) bool {
	for _, rawStmt := range parseTree.Stmts {
		switch node := rawStmt.Stmt.Node.(type) {
		case *pg_query.Node_CreatePolicyStmt, *pg_query.Node_AlterPolicyStmt:
			return true
		case *pg_query.Node_CommentStmt:
			if node.CommentStmt.Objtype == pg_query.ObjectType_OBJECT_POLICY {
				return true
			}
		}
	}
	return false
}

// IsRowSecurityToggle reports whether the statement is an ALTER TABLE made up
// only of ENABLE/DISABLE/FORCE/NO FORCE ROW LEVEL SECURITY subcommands.
func IsRowSecurityToggle(parseTree *pg_query.ParseResult) bool {
	if len(parseTree.Stmts) != 1 {
		return false
	}
	alter := parseTree.Stmts[0].Stmt.GetAlterTableStmt()
	if alter == nil || len(alter.Cmds) == 0 {
		return false
	}
	return lo.EveryBy(alter.Cmds, func(cmd *pg_query.Node) bool {
		atCmd := cmd.GetAlterTableCmd()
		if atCmd == nil {
			return false
		}
		switch atCmd.Subtype {
		case pg_query.AlterTableType_AT_EnableRowSecurity,
			pg_query.AlterTableType_AT_DisableRowSecurity,
			pg_query.AlterTableType_AT_ForceRowSecurity,
			pg_query.AlterTableType_AT_NoForceRowSecurity:
			return true
		}
		return false
	})
}

// ExtensionName returns the extension a CREATE EXTENSION or COMMENT ON
// EXTENSION statement is about, or "" for any other statement.
func ExtensionName(parseTree *pg_query.ParseResult) string {
	if len(parseTree.Stmts) != 1 {
		return ""
	}
	stmt := parseTree.Stmts[0].Stmt
	if create := stmt.GetCreateExtensionStmt(); create != nil {
		return create.Extname
	}
	if comment := stmt.GetCommentStmt(); comment != nil && comment.Objtype == pg_query.ObjectType_OBJECT_EXTENSION {
		if s := comment.Object.GetString_(); s != nil {
			return s.Sval
		}
	}
	return ""
}

// CreatedExtension returns the extension a CREATE EXTENSION statement
// creates, or "".
func CreatedExtension(parseTree *pg_query.ParseResult) string {
	if len(parseTree.Stmts) != 1 {
		return ""
	}
	if create := parseTree.Stmts[0].Stmt.GetCreateExtensionStmt(); create != nil {
		return create.Extname
	}
	return ""
}

// IsDumpPrelude reports whether the statement is one pg_dump writes ahead of
// any object definition: session settings, schema creation with its owner and
// comment, and extension creation with its comment.
func IsDumpPrelude(parseTree *pg_query.ParseResult) bool {
	if len(parseTree.Stmts) != 1 {
		return false
	}
	switch node := parseTree.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_VariableSetStmt, *pg_query.Node_SelectStmt,
		*pg_query.Node_CreateSchemaStmt, *pg_query.Node_CreateExtensionStmt:
		return true
	case *pg_query.Node_CommentStmt:
		return node.CommentStmt.Objtype == pg_query.ObjectType_OBJECT_SCHEMA ||
			node.CommentStmt.Objtype == pg_query.ObjectType_OBJECT_EXTENSION
	case *pg_query.Node_AlterOwnerStmt:
		return node.AlterOwnerStmt.ObjectType == pg_query.ObjectType_OBJECT_SCHEMA
	}
	return false
}

// CreatedSchema returns the schema a CREATE SCHEMA statement creates, or "".
func CreatedSchema(parseTree *pg_query.ParseResult) string {
	if len(parseTree.Stmts) != 1 {
		return ""
	}
	if create := parseTree.Stmts[0].Stmt.GetCreateSchemaStmt(); create != nil {
		return create.Schemaname
	}
	return ""
}
