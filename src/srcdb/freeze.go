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
	"fmt"
	"strings"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/utils/sqlname"
)

// FreezeResult describes the sessions Freeze found open on the source.
type FreezeResult struct {
	SessionsEnded int
	// sessions that could not be ended and keep their read-write default
	SessionsLeft []pgcatalog.ClientSession
}

func (r *FreezeResult) String() string {
	msg := fmt.Sprintf("default_transaction_read_only=on, %d session(s) ended", r.SessionsEnded)
	if len(r.SessionsLeft) > 0 {
		msg += fmt.Sprintf(", %d left open: %s", len(r.SessionsLeft),
			strings.Join(lo.Map(r.SessionsLeft, func(cs pgcatalog.ClientSession, _ int) string { return cs.String() }), "; "))
	}
	return msg
}

// Freeze makes the source database read-only by default, then ends every
// other client session on it. The setting only reaches sessions opened after
// the change, so clients have to reconnect to pick it up.
func (s *Source) Freeze(ctx context.Context) (*FreezeResult, error) {
	dbName, err := s.DatabaseName(ctx)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("ALTER DATABASE %s SET default_transaction_read_only = on", sqlname.QuoteIdent(dbName))
	log.Infof("freezing source: %s", stmt)
	_, err = s.db.ExecContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("freeze source database %q: %w", dbName, err)
	}
	err = s.resetPool(ctx)
	if err != nil {
		return nil, err
	}
	return s.endOtherSessions(ctx)
}

// endOtherSessions terminates the client sessions opened before the freeze.
// A session the role is not allowed to terminate is reported, not fatal.
func (s *Source) endOtherSessions(ctx context.Context) (*FreezeResult, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("get source connection: %w", err)
	}
	defer conn.Close()

	sessions, err := pgcatalog.ListOtherSessions(ctx, conn)
	if err != nil {
		return nil, err
	}
	result := &FreezeResult{}
	for _, cs := range sessions {
		ended, err := pgcatalog.TerminateSession(ctx, conn, cs.PID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warnf("could not end source session %s opened before the freeze: %v", cs, err)
			result.SessionsLeft = append(result.SessionsLeft, cs)
		case ended:
			log.Infof("ended source session %s", cs)
			result.SessionsEnded++
		default:
			log.Infof("source session %s closed on its own", cs)
		}
	}
	return result, nil
}

// Unfreeze restores the default read-write behaviour. The statement runs on
// a session that first lifts its own read-only default, since that session
// may have been opened after Freeze.
func (s *Source) Unfreeze(ctx context.Context) error {
	dbName, err := s.DatabaseName(ctx)
	if err != nil {
		return err
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get source connection: %w", err)
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, "SET default_transaction_read_only = off")
	if err != nil {
		return fmt.Errorf("lift session read-only default: %w", err)
	}
	stmt := fmt.Sprintf("ALTER DATABASE %s RESET default_transaction_read_only", sqlname.QuoteIdent(dbName))
	log.Infof("unfreezing source: %s", stmt)
	_, err = conn.ExecContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("unfreeze source database %q: %w", dbName, err)
	}
	conn.Close()
	return s.resetPool(ctx)
}

// IsFrozen checks the read-only default in a session opened just for this
// check.
func (s *Source) IsFrozen(ctx context.Context) (bool, error) {
	db, err := pgcatalog.Open(s.Uri)
	if err != nil {
		return false, err
	}
	defer db.Close()
	ro, err := pgcatalog.IsDefaultReadOnly(ctx, db)
	if err != nil {
		return false, fmt.Errorf("verify source freeze: %w", err)
	}
	return ro, nil
}
