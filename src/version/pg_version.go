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
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/go-version"
)

/*
PGVersion is a wrapper around hashicorp/go-version.Version for PostgreSQL
server and client versions.
 1. Before 10 the major version has two segments (9.6), from 10 on it has one (15).
 2. Only the numeric prefix is kept, so "16beta1" and "15.4 (Ubuntu 15.4-1.pgdg22.04+1)"
    both parse.
*/
type PGVersion struct {
	*version.Version
}

var numericPrefix = regexp.MustCompile(`^\d+(\.\d+)*`)

func NewPGVersion(v string) (*PGVersion, error) {
	prefix := numericPrefix.FindString(strings.TrimSpace(v))
	if prefix == "" {
		return nil, fmt.Errorf("invalid PostgreSQL version: %q", v)
	}
	v1, err := version.NewVersion(prefix)
	if err != nil {
		return nil, err
	}
	return &PGVersion{v1}, nil
}

// ParsePgDumpVersion parses the output of `pg_dump --version`,
// e.g. "pg_dump (PostgreSQL) 16.2 (Ubuntu 16.2-1.pgdg22.04+1)".
func ParsePgDumpVersion(out string) (*PGVersion, error) {
	fields := strings.Fields(out)
	for i, f := range fields {
		if f == "(PostgreSQL)" && i+1 < len(fields) {
			return NewPGVersion(fields[i+1])
		}
	}
	return nil, fmt.Errorf("unexpected pg_dump --version output: %q", strings.TrimSpace(out))
}

// Major returns the major version as PostgreSQL numbers it: "9.6" or "15".
func (v *PGVersion) Major() string {
	segments := v.Segments()
	if segments[0] < 10 && len(segments) > 1 {
		return joinIntsWith(segments[:2], ".")
	}
	return strconv.Itoa(segments[0])
}

// CompareMajor returns -1, 0 or 1 if the major version of v is lower, equal or
// higher than the one of other. Minor versions are ignored.
func (v *PGVersion) CompareMajor(other *PGVersion) int {
	mine, err := version.NewVersion(v.Major())
	if err != nil {
		panic(err)
	}
	theirs, err := version.NewVersion(other.Major())
	if err != nil {
		panic(err)
	}
	return mine.Compare(theirs)
}

func (v *PGVersion) String() string {
	return v.Original()
}

func joinIntsWith(ints []int, delimiter string) string {
	strs := make([]string, len(ints))
	for i, v := range ints {
		strs[i] = strconv.Itoa(v)
	}
	return strings.Join(strs, delimiter)
}
