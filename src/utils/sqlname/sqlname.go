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
package sqlname

import (
	"fmt"
	"strings"
)

// ObjectName is a schema-qualified PostgreSQL object name (table or sequence)
// as reported by the catalog, that is with case already folded.
type ObjectName struct {
	SchemaName string
	ObjectName string
}

func NewObjectName(schemaName, objectName string) ObjectName {
	if schemaName == "" {
		panic("schema name cannot be empty")
	}
	return ObjectName{SchemaName: schemaName, ObjectName: objectName}
}

// ParseQualifiedName accepts `schema.obj`, `"Schema"."Obj"` and bare `obj`
// (which lands in defaultSchema). Quoted parts keep their case, unquoted
// parts are folded to lower case like the server does.
func ParseQualifiedName(name string, defaultSchema string) (ObjectName, error) {
	parts, err := splitIdentifier(name)
	if err != nil {
		return ObjectName{}, err
	}
	switch len(parts) {
	case 1:
		return NewObjectName(defaultSchema, parts[0]), nil
	case 2:
		return NewObjectName(parts[0], parts[1]), nil
	default:
		return ObjectName{}, fmt.Errorf("invalid qualified name: %s", name)
	}
}

func splitIdentifier(name string) ([]string, error) {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	quoted := false
	flush := func() {
		part := cur.String()
		if !quoted {
			part = strings.ToLower(part)
		}
		parts = append(parts, part)
		cur.Reset()
		quoted = false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '"' && inQuotes && i+1 < len(name) && name[i+1] == '"':
			cur.WriteByte('"')
			i++
		case c == '"':
			inQuotes = !inQuotes
			quoted = true
		case c == '.' && !inQuotes:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted identifier: %s", name)
	}
	flush()
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty identifier in %q", name)
		}
	}
	return parts, nil
}

// Qualified returns schema.object with each part quoted only when needed.
func (n ObjectName) Qualified() string {
	return minQuote(n.SchemaName) + "." + minQuote(n.ObjectName)
}

// Quoted always quotes both parts. Use it when building SQL.
func (n ObjectName) Quoted() string {
	return quote(n.SchemaName) + "." + quote(n.ObjectName)
}

// Unquoted is the form used as map key and in reports.
func (n ObjectName) Unquoted() string {
	return n.SchemaName + "." + n.ObjectName
}

func (n ObjectName) String() string {
	return n.Qualified()
}

func (n ObjectName) Less(other ObjectName) bool {
	if n.SchemaName != other.SchemaName {
		return n.SchemaName < other.SchemaName
	}
	return n.ObjectName < other.ObjectName
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func minQuote(s string) string {
	if isPlainLowercaseIdent(s) {
		return s
	}
	return quote(s)
}

func isPlainLowercaseIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c == '_':
		case (c >= '0' && c <= '9') || c == '$':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// QuoteIdent quotes a single identifier for use in SQL.
func QuoteIdent(s string) string {
	return quote(s)
}
