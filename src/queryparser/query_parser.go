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
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func Parse(query string) (*pg_query.ParseResult, error) {
	log.Tracef("parsing the query [%s]", query)
	tree, err := pg_query.Parse(query)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// SplitStatements splits a SQL script into statements using the postgres
// scanner. Comment-only fragments are dropped and every returned statement
// carries its terminating semicolon.
func SplitStatements(sql string) ([]string, error) {
	stmts, err := pg_query.SplitWithScanner(sql, true)
	if err != nil {
		return nil, fmt.Errorf("split sql: %w", err)
	}
	result := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		if isCommentOnly(stmt) {
			continue
		}
		result = append(result, stmt+";")
	}
	return result, nil
}

func isCommentOnly(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		return false
	}
	return true
}

func GetProtoMessageFromParseTree(parseTree *pg_query.ParseResult) protoreflect.Message {
	return parseTree.Stmts[0].Stmt.ProtoReflect()
}

// GetStatementType returns the full proto name of the statement node, e.g. pg_query.CreateStmt.
func GetStatementType(msg protoreflect.Message) string {
	nodeField := getOneofActiveField(msg, "node")
	if nodeField == nil {
		return ""
	}
	node := msg.Get(nodeField).Message()
	if node == nil || !node.IsValid() {
		return ""
	}
	return GetMsgFullName(node)
}
