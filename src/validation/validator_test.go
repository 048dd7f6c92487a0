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
package validation

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/src/artifacts"
)

type side struct {
	orders      int64
	sequenceVal int64
	extensions  []string
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func expectCatalog(mock sqlmock.Sqlmock, s side) {
	mock.ExpectQuery("FROM pg_catalog.pg_class").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname"}).
			AddRow("public", "customers").
			AddRow("public", "orders"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM public.customers")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(300)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM public.orders")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(s.orders))
	mock.ExpectQuery("FROM pg_catalog.pg_sequences").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"schemaname", "sequencename", "last_value"}).
			AddRow("public", "customers_id_seq", nil).
			AddRow("public", "orders_id_seq", s.sequenceVal))
	extRows := sqlmock.NewRows([]string{"extname"})
	for _, ext := range s.extensions {
		extRows.AddRow(ext)
	}
	mock.ExpectQuery("FROM pg_catalog.pg_extension").WillReturnRows(extRows)
}

func expectWriteProbe(mock sqlmock.Sqlmock, lastValue int64, next int64) {
	mock.ExpectQuery("pg_get_serial_sequence").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "attname", "seq"}).
			AddRow("public", "orders", "id", "public.orders_id_seq"))
	mock.ExpectQuery("FROM pg_catalog.pg_attribute").WithArgs("public.orders").
		WillReturnRows(sqlmock.NewRows([]string{"attname"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT last_value, is_called FROM public.orders_id_seq")).
		WillReturnRows(sqlmock.NewRows([]string{"last_value", "is_called"}).AddRow(lastValue, true))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "public"."orders" DEFAULT VALUES RETURNING "id"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(next))
	mock.ExpectRollback()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_catalog.setval('public.orders_id_seq', 5001, true)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func testConfig() Config {
	return Config{RunID: "run-1", Schemas: []string{"public"}, ParallelJobs: 1}
}

func TestValidateRowCountMismatch(t *testing.T) {
	source, sourceMock := newMock(t)
	target, targetMock := newMock(t)
	expectCatalog(sourceMock, side{orders: 1204, sequenceVal: 5001, extensions: []string{"pg_trgm", "pgsodium", "plpgsql"}})
	expectCatalog(targetMock, side{orders: 1200, sequenceVal: 5001, extensions: []string{"pg_trgm", "plpgsql"}})
	expectWriteProbe(targetMock, 5001, 5002)

	r := NewValidator(source, target, testConfig()).Validate(context.Background())
	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())

	names := make([]string, 0, len(r.Checks))
	for _, c := range r.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{CHECK_CONNECTIVITY, CHECK_TABLE_SET, CHECK_ROW_COUNTS, CHECK_SEQUENCES, CHECK_EXTENSIONS, CHECK_WRITE_PROBE}, names)

	rowCounts, _ := r.Check(CHECK_ROW_COUNTS)
	assert.Equal(t, STATUS_FAIL, rowCounts.Status)
	assert.Equal(t, []Mismatch{{Object: "public.orders", Source: "1204", Target: "1200", Detail: "row count differs by -4"}}, rowCounts.Mismatches)

	seqs, _ := r.Check(CHECK_SEQUENCES)
	assert.Equal(t, STATUS_PASS, seqs.Status)
	assert.True(t, seqs.Critical)

	exts, _ := r.Check(CHECK_EXTENSIONS)
	assert.Equal(t, STATUS_WARN, exts.Status)
	assert.Equal(t, "pgsodium", exts.Mismatches[0].Object)

	probe, _ := r.Check(CHECK_WRITE_PROBE)
	assert.Equal(t, STATUS_PASS, probe.Status, probe.Message)

	assert.Equal(t, VERDICT_FAIL, r.Verdict)
	assert.True(t, r.HasWarnings())
}

func TestValidateIsDeterministic(t *testing.T) {
	run := func() *Report {
		source, sourceMock := newMock(t)
		target, targetMock := newMock(t)
		healthy := side{orders: 1204, sequenceVal: 5001, extensions: []string{"plpgsql"}}
		expectCatalog(sourceMock, healthy)
		expectCatalog(targetMock, healthy)
		expectWriteProbe(targetMock, 5001, 5002)
		r := NewValidator(source, target, testConfig()).Validate(context.Background())
		require.NoError(t, sourceMock.ExpectationsWereMet())
		require.NoError(t, targetMock.ExpectationsWereMet())
		return r
	}
	first, second := run(), run()
	assert.Equal(t, first.Checks, second.Checks)
	assert.Equal(t, VERDICT_PASS, first.Verdict)
	assert.False(t, first.HasWarnings())
}

func TestValidateSequenceMismatchIsCritical(t *testing.T) {
	source, sourceMock := newMock(t)
	target, targetMock := newMock(t)
	expectCatalog(sourceMock, side{orders: 1204, sequenceVal: 5001, extensions: []string{"plpgsql"}})
	expectCatalog(targetMock, side{orders: 1204, sequenceVal: 1, extensions: []string{"plpgsql"}})
	targetMock.ExpectQuery("pg_get_serial_sequence").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "attname", "seq"}))

	r := NewValidator(source, target, testConfig()).Validate(context.Background())
	seqs, _ := r.Check(CHECK_SEQUENCES)
	assert.Equal(t, STATUS_FAIL, seqs.Status)
	assert.Equal(t, []Mismatch{{Object: "public.orders_id_seq", Source: "5001", Target: "1", Detail: "sequence cursor differs"}}, seqs.Mismatches)
	probe, _ := r.Check(CHECK_WRITE_PROBE)
	assert.Equal(t, STATUS_INCONCLUSIVE, probe.Status)
	assert.Equal(t, VERDICT_FAIL, r.Verdict)

	color.NoColor = true
	var buf bytes.Buffer
	PrintReport(&buf, r)
	out := buf.String()
	assert.Less(t, strings.Index(out, "CRITICAL fail"), strings.Index(out, "connectivity"))
	assert.Contains(t, out, "validation verdict: fail")
}

func TestValidateTargetUnreachable(t *testing.T) {
	source, sourceMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer source.Close()
	target, targetMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer target.Close()
	sourceMock.ExpectPing()
	targetMock.ExpectPing().WillReturnError(errors.New("connection refused"))

	r := NewValidator(source, target, testConfig()).Validate(context.Background())
	require.NoError(t, sourceMock.ExpectationsWereMet())
	require.NoError(t, targetMock.ExpectationsWereMet())

	conn, _ := r.Check(CHECK_CONNECTIVITY)
	assert.Equal(t, STATUS_FAIL, conn.Status)
	assert.Equal(t, "target", conn.Mismatches[0].Object)
	for _, name := range []string{CHECK_TABLE_SET, CHECK_ROW_COUNTS, CHECK_SEQUENCES, CHECK_EXTENSIONS, CHECK_WRITE_PROBE} {
		c, found := r.Check(name)
		require.True(t, found, name)
		assert.Equal(t, STATUS_INCONCLUSIVE, c.Status, name)
	}
	assert.Equal(t, VERDICT_FAIL, r.Verdict)
}

func TestWriteProbeInconclusiveOnMandatoryColumns(t *testing.T) {
	target, targetMock := newMock(t)
	targetMock.ExpectQuery("pg_get_serial_sequence").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "attname", "seq"}).
			AddRow("public", "orders", "id", "public.orders_id_seq"))
	targetMock.ExpectQuery("FROM pg_catalog.pg_attribute").WithArgs("public.orders").
		WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("customer_id"))

	v := NewValidator(nil, target, testConfig())
	c := v.checkWriteProbe(context.Background())
	assert.Equal(t, STATUS_INCONCLUSIVE, c.Status)
	assert.Contains(t, c.Message, "public.orders(customer_id)")
	assert.NoError(t, targetMock.ExpectationsWereMet())
}

func TestWriteProbeDetectsStaleSequence(t *testing.T) {
	target, targetMock := newMock(t)
	targetMock.ExpectQuery("pg_get_serial_sequence").WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "attname", "seq"}).
			AddRow("public", "orders", "id", "public.orders_id_seq"))
	targetMock.ExpectQuery("FROM pg_catalog.pg_attribute").WithArgs("public.orders").
		WillReturnRows(sqlmock.NewRows([]string{"attname"}))
	targetMock.ExpectQuery(regexp.QuoteMeta("SELECT last_value, is_called FROM public.orders_id_seq")).
		WillReturnRows(sqlmock.NewRows([]string{"last_value", "is_called"}).AddRow(int64(5001), true))
	targetMock.ExpectBegin()
	targetMock.ExpectQuery("INSERT INTO").
		WillReturnError(errors.New(`duplicate key value violates unique constraint "orders_pkey"`))
	targetMock.ExpectRollback()
	targetMock.ExpectExec(regexp.QuoteMeta("SELECT pg_catalog.setval('public.orders_id_seq', 5001, true)")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := NewValidator(nil, target, testConfig()).checkWriteProbe(context.Background())
	assert.Equal(t, STATUS_FAIL, c.Status)
	assert.Contains(t, c.Mismatches[0].Detail, "duplicate key")
	assert.NoError(t, targetMock.ExpectationsWereMet())
}

func TestWriteReportOnce(t *testing.T) {
	store, err := artifacts.Open(t.TempDir())
	require.NoError(t, err)
	r := &Report{RunID: "run-7", Checks: []CheckResult{{Name: CHECK_CONNECTIVITY, Status: STATUS_PASS}}}
	r.finish()

	path, err := WriteReport(store, r)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "reports/validation-run-7.json"))
	_, err = WriteReport(store, r)
	assert.Error(t, err)
}
