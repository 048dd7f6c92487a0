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
package tgtdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/utils"
	"github.com/pgshift/pgshift/src/version"
)

// Target is the plain PostgreSQL database being migrated to.
type Target struct {
	Uri     string
	Schemas []string

	db *sql.DB
}

func NewTarget(uri string, schemas []string) *Target {
	return &Target{Uri: uri, Schemas: schemas}
}

func (t *Target) Connect(ctx context.Context) error {
	if t.db != nil {
		return nil
	}
	db, err := pgcatalog.Open(t.Uri)
	if err != nil {
		return err
	}
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("connect to target %s: %w", t.RedactedUri(), err)
	}
	t.db = db
	log.Infof("connected to target %s", t.RedactedUri())
	return nil
}

func (t *Target) Disconnect() {
	if t.db == nil {
		return
	}
	err := t.db.Close()
	if err != nil {
		log.Warnf("close target connection: %v", err)
	}
	t.db = nil
}

// DB is used for catalog queries and adhoc statements. Connect must have been called.
func (t *Target) DB() *sql.DB {
	return t.db
}

func (t *Target) RedactedUri() string {
	return utils.GetRedactedURLs([]string{t.Uri})[0]
}

func (t *Target) GetVersion(ctx context.Context) (*version.PGVersion, error) {
	v, err := pgcatalog.ServerVersion(ctx, t.db)
	if err != nil {
		return nil, err
	}
	return version.NewPGVersion(v)
}

// newSession opens a dedicated connection whose session settings are not
// shared with the pool.
func (t *Target) newSession(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, t.Uri)
	if err != nil {
		return nil, fmt.Errorf("connect to target db: %w", err)
	}
	return conn, nil
}
