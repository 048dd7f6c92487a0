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
package pgcatalog

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/src/utils/sqlname"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestListTables(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?i)SELECT n.nspname, c.relname\s+FROM pg_catalog.pg_class`).
		WithArgs("public,app").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname"}).
			AddRow("app", "events").
			AddRow("public", "orders"))

	tables, err := ListTables(context.Background(), db, []string{"public", "app"})
	require.NoError(t, err)
	assert.Equal(t, []sqlname.ObjectName{
		sqlname.NewObjectName("app", "events"),
		sqlname.NewObjectName("public", "orders"),
	}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountRowsQuotesMixedCaseNames(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM public\."Orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1204))

	n, err := CountRows(context.Background(), db, sqlname.NewObjectName("public", "Orders"))
	require.NoError(t, err)
	assert.Equal(t, int64(1204), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSequencesKeepsNeverUsed(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?i)FROM pg_catalog.pg_sequences`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"schemaname", "sequencename", "last_value"}).
			AddRow("public", "orders_id_seq", 5001).
			AddRow("public", "unused_seq", nil))

	seqs, err := ListSequences(context.Background(), db, []string{"public"})
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	assert.Equal(t, "public.orders_id_seq", seqs[0].Name.Unquoted())
	assert.Equal(t, sql.NullInt64{Int64: 5001, Valid: true}, seqs[0].LastValue)
	assert.False(t, seqs[1].LastValue.Valid)
}

func TestIsDefaultReadOnly(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SHOW default_transaction_read_only").
		WillReturnRows(sqlmock.NewRows([]string{"default_transaction_read_only"}).AddRow("on"))
	mock.ExpectQuery("SHOW default_transaction_read_only").
		WillReturnRows(sqlmock.NewRows([]string{"default_transaction_read_only"}).AddRow("off"))

	ro, err := IsDefaultReadOnly(context.Background(), db)
	require.NoError(t, err)
	assert.True(t, ro)
	ro, err = IsDefaultReadOnly(context.Background(), db)
	require.NoError(t, err)
	assert.False(t, ro)
}

func TestListDisabledTriggers(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?i)FROM pg_catalog.pg_trigger`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "tgname", "tgisinternal"}).
			AddRow("public", "orders", "RI_ConstraintTrigger_c_1", true).
			AddRow("public", "orders", "audit_orders", false))

	triggers, err := ListDisabledTriggers(context.Background(), db, []string{"public"})
	require.NoError(t, err)
	assert.Equal(t, []Trigger{
		{Table: sqlname.NewObjectName("public", "orders"), Name: "RI_ConstraintTrigger_c_1", Internal: true},
		{Table: sqlname.NewObjectName("public", "orders"), Name: "audit_orders", Internal: false},
	}, triggers)
}

func TestSequenceBackedTables(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?i)pg_get_serial_sequence`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "attname", "seq"}).
			AddRow("public", "orders", "id", "public.orders_id_seq").
			AddRow("public", "Users", "id", `public."Users_id_seq"`))

	cols, err := SequenceBackedTables(context.Background(), db, []string{"public"})
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "public.orders_id_seq", cols[0].Sequence.Unquoted())
	assert.Equal(t, "public.Users_id_seq", cols[1].Sequence.Unquoted())
	assert.Equal(t, "id", cols[1].Column)
}

func TestMandatoryColumns(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?i)a.attnotnull AND d.oid IS NULL`).
		WithArgs("public.orders").
		WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("customer_id"))

	cols, err := MandatoryColumns(context.Background(), db, sqlname.NewObjectName("public", "orders"))
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id"}, cols)
}

func TestReadSequenceStateError(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`SELECT last_value, is_called FROM public.orders_id_seq`).
		WillReturnError(errors.New("relation does not exist"))

	_, _, err := ReadSequenceState(context.Background(), db, sqlname.NewObjectName("public", "orders_id_seq"))
	assert.ErrorContains(t, err, "read state of sequence public.orders_id_seq")
}

func TestListExtensionSchemas(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`(?i)SELECT e.extname, n.nspname\s+FROM pg_catalog.pg_extension`).
		WillReturnRows(sqlmock.NewRows([]string{"extname", "nspname"}).
			AddRow("pg_trgm", "public").
			AddRow("plpgsql", "pg_catalog").
			AddRow("uuid-ossp", "extensions"))

	schemas, err := ListExtensionSchemas(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"pg_trgm":   "public",
		"plpgsql":   "pg_catalog",
		"uuid-ossp": "extensions",
	}, schemas)
	assert.NoError(t, mock.ExpectationsWereMet())
}
