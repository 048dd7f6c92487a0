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
package pgcatalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/utils/sqlname"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open returns a database/sql handle backed by the pgx driver.
func Open(uri string) (*sql.DB, error) {
	db, err := sql.Open("pgx", uri)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	return db, nil
}

type SequenceValue struct {
	Name sqlname.ObjectName
	// invalid when the sequence was never used
	LastValue sql.NullInt64
}

type Trigger struct {
	Table    sqlname.ObjectName
	Name     string
	Internal bool
}

type SequenceColumn struct {
	Table    sqlname.ObjectName
	Column   string
	Sequence sqlname.ObjectName
}

func schemaList(schemas []string) string {
	return strings.Join(schemas, ",")
}

func ListTables(ctx context.Context, q Querier, schemas []string) ([]sqlname.ObjectName, error) {
	query := `SELECT n.nspname, c.relname
	FROM pg_catalog.pg_class c
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relkind = 'r' AND n.nspname = ANY(string_to_array($1, ','))
	ORDER BY 1, 2`
	rows, err := q.QueryContext(ctx, query, schemaList(schemas))
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	var tables []sqlname.ObjectName
	for rows.Next() {
		var schemaName, tableName string
		if err := rows.Scan(&schemaName, &tableName); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, sqlname.NewObjectName(schemaName, tableName))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func CountRows(ctx context.Context, q Querier, table sqlname.ObjectName) (int64, error) {
	query := fmt.Sprintf("SELECT count(*) FROM %s", table.Qualified())
	var count int64
	err := q.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, err)
	}
	log.Debugf("row count of %s: %d", table, count)
	return count, nil
}

func ListSequences(ctx context.Context, q Querier, schemas []string) ([]SequenceValue, error) {
	query := `SELECT schemaname, sequencename, last_value
	FROM pg_catalog.pg_sequences
	WHERE schemaname = ANY(string_to_array($1, ','))
	ORDER BY 1, 2`
	rows, err := q.QueryContext(ctx, query, schemaList(schemas))
	if err != nil {
		return nil, fmt.Errorf("list sequences: %w", err)
	}
	defer rows.Close()
	var result []SequenceValue
	for rows.Next() {
		var schemaName, seqName string
		var lastValue sql.NullInt64
		if err := rows.Scan(&schemaName, &seqName, &lastValue); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		result = append(result, SequenceValue{
			Name:      sqlname.NewObjectName(schemaName, seqName),
			LastValue: lastValue,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sequences: %w", err)
	}
	return result, nil
}

func ListExtensions(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT extname FROM pg_catalog.pg_extension ORDER BY 1")
	if err != nil {
		return nil, fmt.Errorf("list extensions: %w", err)
	}
	defer rows.Close()
	var exts []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan extension: %w", err)
		}
		exts = append(exts, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extensions: %w", err)
	}
	return exts, nil
}

// ListExtensionSchemas maps every installed extension to the schema its
// objects were created in.
func ListExtensionSchemas(ctx context.Context, q Querier) (map[string]string, error) {
	query := `SELECT e.extname, n.nspname
	FROM pg_catalog.pg_extension e
	JOIN pg_catalog.pg_namespace n ON n.oid = e.extnamespace
	ORDER BY 1`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list extension schemas: %w", err)
	}
	defer rows.Close()
	schemas := make(map[string]string)
	for rows.Next() {
		var ext, schemaName string
		if err := rows.Scan(&ext, &schemaName); err != nil {
			return nil, fmt.Errorf("scan extension schema: %w", err)
		}
		schemas[ext] = schemaName
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extension schemas: %w", err)
	}
	return schemas, nil
}

func ServerVersion(ctx context.Context, q Querier) (string, error) {
	var v string
	err := q.QueryRowContext(ctx, "SHOW server_version").Scan(&v)
	if err != nil {
		return "", fmt.Errorf("get server version: %w", err)
	}
	return v, nil
}

func CurrentDatabase(ctx context.Context, q Querier) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, "SELECT current_database()").Scan(&name)
	if err != nil {
		return "", fmt.Errorf("get current database: %w", err)
	}
	return name, nil
}

// IsDefaultReadOnly reports the default_transaction_read_only setting seen
// by the session. Database level settings only apply to sessions opened
// after the change.
func IsDefaultReadOnly(ctx context.Context, q Querier) (bool, error) {
	var v string
	err := q.QueryRowContext(ctx, "SHOW default_transaction_read_only").Scan(&v)
	if err != nil {
		return false, fmt.Errorf("get default_transaction_read_only: %w", err)
	}
	return v == "on", nil
}

// ClientSession is a client backend connected to the current database.
type ClientSession struct {
	PID             int
	User            string
	ApplicationName string
}

func (cs ClientSession) String() string {
	if cs.ApplicationName == "" {
		return fmt.Sprintf("pid %d (%s)", cs.PID, cs.User)
	}
	return fmt.Sprintf("pid %d (%s, %s)", cs.PID, cs.User, cs.ApplicationName)
}

// ListOtherSessions returns the client sessions on the current database
// other than the one running the query.
func ListOtherSessions(ctx context.Context, q Querier) ([]ClientSession, error) {
	query := `SELECT pid, usename, application_name
	FROM pg_catalog.pg_stat_activity
	WHERE datname = current_database() AND pid <> pg_backend_pid() AND backend_type = 'client backend'
	ORDER BY 1`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var sessions []ClientSession
	for rows.Next() {
		var cs ClientSession
		var user, app sql.NullString
		if err := rows.Scan(&cs.PID, &user, &app); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		cs.User, cs.ApplicationName = user.String, app.String
		sessions = append(sessions, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// TerminateSession ends the backend with the given pid. It returns false
// when the backend was already gone.
func TerminateSession(ctx context.Context, q Querier, pid int) (bool, error) {
	var ended bool
	err := q.QueryRowContext(ctx, "SELECT pg_catalog.pg_terminate_backend($1)", pid).Scan(&ended)
	if err != nil {
		return false, fmt.Errorf("terminate session %d: %w", pid, err)
	}
	return ended, nil
}

func ListDisabledTriggers(ctx context.Context, q Querier, schemas []string) ([]Trigger, error) {
	query := `SELECT n.nspname, c.relname, t.tgname, t.tgisinternal
	FROM pg_catalog.pg_trigger t
	JOIN pg_catalog.pg_class c ON c.oid = t.tgrelid
	JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
	WHERE t.tgenabled = 'D' AND n.nspname = ANY(string_to_array($1, ','))
	ORDER BY 1, 2, 3`
	rows, err := q.QueryContext(ctx, query, schemaList(schemas))
	if err != nil {
		return nil, fmt.Errorf("list disabled triggers: %w", err)
	}
	defer rows.Close()
	var triggers []Trigger
	for rows.Next() {
		var schemaName, tableName string
		var trg Trigger
		if err := rows.Scan(&schemaName, &tableName, &trg.Name, &trg.Internal); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		trg.Table = sqlname.NewObjectName(schemaName, tableName)
		triggers = append(triggers, trg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate triggers: %w", err)
	}
	return triggers, nil
}

// SequenceBackedTables lists the columns whose default or identity is driven
// by a sequence.
func SequenceBackedTables(ctx context.Context, q Querier, schemas []string) ([]SequenceColumn, error) {
	query := `SELECT t.nspname, t.relname, t.attname, t.seq
	FROM (
		SELECT n.nspname, c.relname, a.attname, a.attnum,
			pg_catalog.pg_get_serial_sequence(quote_ident(n.nspname) || '.' || quote_ident(c.relname), a.attname) AS seq
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid
		WHERE c.relkind = 'r' AND a.attnum > 0 AND NOT a.attisdropped
			AND n.nspname = ANY(string_to_array($1, ','))
	) t
	WHERE t.seq IS NOT NULL
	ORDER BY t.nspname, t.relname, t.attnum`
	rows, err := q.QueryContext(ctx, query, schemaList(schemas))
	if err != nil {
		return nil, fmt.Errorf("list sequence backed columns: %w", err)
	}
	defer rows.Close()
	var result []SequenceColumn
	for rows.Next() {
		var schemaName, tableName, column, seq string
		if err := rows.Scan(&schemaName, &tableName, &column, &seq); err != nil {
			return nil, fmt.Errorf("scan sequence column: %w", err)
		}
		seqName, err := sqlname.ParseQualifiedName(seq, schemaName)
		if err != nil {
			return nil, fmt.Errorf("parse sequence name %q: %w", seq, err)
		}
		result = append(result, SequenceColumn{
			Table:    sqlname.NewObjectName(schemaName, tableName),
			Column:   column,
			Sequence: seqName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sequence columns: %w", err)
	}
	return result, nil
}

// MandatoryColumns returns the NOT NULL columns that have no default, are
// not identity and are not generated, in column order. An INSERT with
// DEFAULT VALUES fails on a table that has any.
func MandatoryColumns(ctx context.Context, q Querier, table sqlname.ObjectName) ([]string, error) {
	query := `SELECT a.attname
	FROM pg_catalog.pg_attribute a
	LEFT JOIN pg_catalog.pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
		AND a.attnotnull AND d.oid IS NULL AND a.attidentity = '' AND a.attgenerated = ''
	ORDER BY a.attnum`
	rows, err := q.QueryContext(ctx, query, table.Qualified())
	if err != nil {
		return nil, fmt.Errorf("list mandatory columns of %s: %w", table, err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	return cols, nil
}

// ReadSequenceState reads the raw cursor of a sequence. Unlike pg_sequences
// it also works for a sequence that was never used (is_called is false).
func ReadSequenceState(ctx context.Context, q Querier, seq sqlname.ObjectName) (lastValue int64, isCalled bool, err error) {
	query := fmt.Sprintf("SELECT last_value, is_called FROM %s", seq.Qualified())
	err = q.QueryRowContext(ctx, query).Scan(&lastValue, &isCalled)
	if err != nil {
		return 0, false, fmt.Errorf("read state of sequence %s: %w", seq, err)
	}
	return lastValue, isCalled, nil
}
