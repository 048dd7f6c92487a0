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
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/utils"
	"github.com/pgshift/pgshift/src/version"
)

// Source is the database being migrated away from.
type Source struct {
	Uri     string
	Schemas []string

	db *sql.DB
}

func NewSource(uri string, schemas []string) *Source {
	return &Source{Uri: uri, Schemas: schemas}
}

func (s *Source) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}
	db, err := pgcatalog.Open(s.Uri)
	if err != nil {
		return err
	}
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("connect to source %s: %w", s.RedactedUri(), err)
	}
	s.db = db
	log.Infof("connected to source %s", s.RedactedUri())
	return nil
}

func (s *Source) Disconnect() {
	if s.db == nil {
		return
	}
	err := s.db.Close()
	if err != nil {
		log.Warnf("close source connection: %v", err)
	}
	s.db = nil
}

// DB returns the connection pool. Connect must have been called.
func (s *Source) DB() *sql.DB {
	return s.db
}

func (s *Source) RedactedUri() string {
	return utils.GetRedactedURLs([]string{s.Uri})[0]
}

func (s *Source) GetVersion(ctx context.Context) (*version.PGVersion, error) {
	v, err := pgcatalog.ServerVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return version.NewPGVersion(v)
}

func (s *Source) DatabaseName(ctx context.Context) (string, error) {
	return pgcatalog.CurrentDatabase(ctx, s.db)
}

// resetPool drops idle sessions so that new ones pick up database level
// settings changed since they were opened.
func (s *Source) resetPool(ctx context.Context) error {
	s.Disconnect()
	return s.Connect(ctx)
}
