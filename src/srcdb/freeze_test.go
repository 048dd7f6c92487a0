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
package srcdb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/src/pgcatalog"
)

func TestEndOtherSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := &Source{Uri: "postgresql://postgres@localhost/shop", db: db}

	mock.ExpectQuery(`(?i)FROM pg_catalog.pg_stat_activity`).
		WillReturnRows(sqlmock.NewRows([]string{"pid", "usename", "application_name"}).
			AddRow(101, "app_user", "api").
			AddRow(102, "app_user", nil).
			AddRow(103, "supabase_admin", "pg_net"))
	mock.ExpectQuery(`pg_terminate_backend`).WithArgs(101).
		WillReturnRows(sqlmock.NewRows([]string{"pg_terminate_backend"}).AddRow(true))
	mock.ExpectQuery(`pg_terminate_backend`).WithArgs(102).
		WillReturnRows(sqlmock.NewRows([]string{"pg_terminate_backend"}).AddRow(false))
	mock.ExpectQuery(`pg_terminate_backend`).WithArgs(103).
		WillReturnError(errors.New("ERROR: permission denied to terminate process (SQLSTATE 42501)"))

	result, err := s.endOtherSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SessionsEnded)
	assert.Equal(t, []pgcatalog.ClientSession{{PID: 103, User: "supabase_admin", ApplicationName: "pg_net"}}, result.SessionsLeft)
	assert.Equal(t, "default_transaction_read_only=on, 1 session(s) ended, 1 left open: pid 103 (supabase_admin, pg_net)", result.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
