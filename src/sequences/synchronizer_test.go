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
package sequences

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
)

type frozenFlag bool

func (f frozenFlag) IsFrozen() bool { return bool(f) }

type fakeRestorer struct {
	got map[string]int64
	err error
}

func (f *fakeRestorer) RestoreSequences(_ context.Context, values map[string]int64) (int, error) {
	f.got = values
	if f.err != nil {
		return 0, f.err
	}
	return len(values), nil
}

func sequenceRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"schemaname", "sequencename", "last_value"}).
		AddRow("public", "orders_id_seq", int64(5001)).
		AddRow("public", "unused_seq", nil).
		AddRow("Billing", "Invoice_seq", int64(12))
}

func TestCaptureAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("FROM pg_catalog.pg_sequences").WithArgs("public,Billing").WillReturnRows(sequenceRows())

	store, err := artifacts.Open(t.TempDir())
	require.NoError(t, err)
	s := NewSynchronizer(db, []string{"public", "Billing"}, frozenFlag(true), &fakeRestorer{}, store)

	state, err := s.CaptureAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{
		"public.orders_id_seq": 5001,
		`"Billing"."Invoice_seq"`: 12,
	}, state.Values)
	assert.NoError(t, mock.ExpectationsWereMet())

	script, err := store.Read(constants.SEQUENCES_SCRIPT_FILE_NAME)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT pg_catalog.setval('"Billing"."Invoice_seq"', 12, true);`+"\n"+
			`SELECT pg_catalog.setval('public.orders_id_seq', 5001, true);`+"\n",
		string(script))

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, state.Values, loaded.Values)
	assert.True(t, state.CapturedAt.Equal(loaded.CapturedAt))
}

func TestCaptureAllRefusesWithoutFreeze(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := artifacts.Open(t.TempDir())
	require.NoError(t, err)
	s := NewSynchronizer(db, []string{"public"}, frozenFlag(false), &fakeRestorer{}, store)

	_, err = s.CaptureAll(context.Background())
	assert.ErrorIs(t, err, ErrFreezeNotActive)
	assert.False(t, store.Exists(constants.SEQUENCES_STATE_FILE_NAME))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply(t *testing.T) {
	store, err := artifacts.Open(t.TempDir())
	require.NoError(t, err)
	restorer := &fakeRestorer{}
	s := NewSynchronizer(nil, nil, frozenFlag(true), restorer, store)

	state := &State{Values: map[string]int64{"public.orders_id_seq": 5001}}
	n, err := s.Apply(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, state.Values, restorer.got)

	restorer.err = errors.New(`relation "public.orders_id_seq" does not exist`)
	_, err = s.Apply(context.Background(), state)
	assert.ErrorContains(t, err, "apply sequences")
}
