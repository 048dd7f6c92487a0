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
package errs

import (
	"fmt"
)

type ExecuteDDLError struct {
	ddl         string
	ddlFilePath string
	err         error
}

func (e ExecuteDDLError) DDL() string {
	return e.ddl
}

func (e ExecuteDDLError) DDLFilePath() string {
	return e.ddlFilePath
}

func (e ExecuteDDLError) Error() string {
	return fmt.Sprintf("execute DDL: %q from file: %s: %s", e.ddl, e.ddlFilePath, e.err.Error())
}

func (e ExecuteDDLError) Unwrap() error {
	return e.err
}

func NewExecuteDDLError(ddl, ddlFilePath string, err error) ExecuteDDLError {
	return ExecuteDDLError{
		ddl:         ddl,
		ddlFilePath: ddlFilePath,
		err:         err,
	}
}

// CopyBlockError is a COPY block of a dump file that the target rejected.
type CopyBlockError struct {
	table     string
	startLine int
	err       error
}

func (e CopyBlockError) Table() string {
	return e.table
}

func (e CopyBlockError) StartLine() int {
	return e.startLine
}

func (e CopyBlockError) Error() string {
	return fmt.Sprintf("copy into %s (line %d): %s", e.table, e.startLine, e.err.Error())
}

func (e CopyBlockError) Unwrap() error {
	return e.err
}

func NewCopyBlockError(table string, startLine int, err error) CopyBlockError {
	return CopyBlockError{table: table, startLine: startLine, err: err}
}
