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
package testcontainers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/utils"
)

var embeddedVersions = map[string]embeddedpostgres.PostgresVersion{
	"12": embeddedpostgres.V12,
	"13": embeddedpostgres.V13,
	"14": embeddedpostgres.V14,
	"15": embeddedpostgres.V15,
	"16": embeddedpostgres.V16,
}

// EmbeddedPostgres runs a Postgres server from downloaded binaries, for
// machines without docker.
type EmbeddedPostgres struct {
	mutex sync.Mutex
	ContainerConfig
	server  *embeddedpostgres.EmbeddedPostgres
	running bool
	dataDir string
}

func (ep *EmbeddedPostgres) Start(ctx context.Context) error {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()

	if ep.running {
		utils.PrintAndLogf("embedded Postgres-%s already running", ep.DBVersion)
		return nil
	}
	if ep.server == nil {
		version, ok := embeddedVersions[ep.DBVersion]
		if !ok {
			return fmt.Errorf("embedded postgres does not ship version %q", ep.DBVersion)
		}
		root, err := os.MkdirTemp("", "pgshift-embedded-*")
		if err != nil {
			return err
		}
		ep.dataDir = filepath.Join(root, "data")
		ep.server = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			Version(version).
			Username(ep.User).
			Password(ep.Password).
			Database(ep.DBName).
			Port(uint32(ep.Port)).
			RuntimePath(filepath.Join(root, "runtime")).
			DataPath(ep.dataDir).
			StartTimeout(2 * time.Minute).
			Logger(io.Discard))
	}
	err := ep.server.Start()
	if err != nil {
		return fmt.Errorf("failed to start embedded postgres: %w", err)
	}
	ep.running = true
	return pingDatabase("pgx", ep.GetConnectionString())
}

// Stop shuts the server down and keeps its data dir, so Start resumes it.
func (ep *EmbeddedPostgres) Stop(ctx context.Context) error {
	ep.mutex.Lock()
	defer ep.mutex.Unlock()

	if !ep.running {
		return nil
	}
	ep.running = false
	return ep.server.Stop()
}

func (ep *EmbeddedPostgres) Terminate(ctx context.Context) {
	err := ep.Stop(ctx)
	if err != nil {
		log.Errorf("failed to stop embedded postgres: %v", err)
	}
	if ep.dataDir != "" {
		os.RemoveAll(filepath.Dir(ep.dataDir))
	}
}

func (ep *EmbeddedPostgres) GetHostPort() (string, int, error) {
	if !ep.running {
		return "", -1, fmt.Errorf("embedded postgres is not started")
	}
	return "localhost", ep.Port, nil
}

func (ep *EmbeddedPostgres) GetConfig() ContainerConfig {
	return ep.ContainerConfig
}

func (ep *EmbeddedPostgres) GetConnectionString() string {
	return ep.GetConnectionStringForDB(ep.DBName)
}

func (ep *EmbeddedPostgres) GetConnectionStringForDB(dbName string) string {
	return connectionString(ep.ContainerConfig, "localhost", ep.Port, dbName)
}

func (ep *EmbeddedPostgres) GetConnection() (*sql.DB, error) {
	return sql.Open("pgx", ep.GetConnectionString())
}

func (ep *EmbeddedPostgres) GetVersion() (string, error) {
	return queryVersion(ep.GetConnectionString())
}

func (ep *EmbeddedPostgres) CreateDatabase(dbName string) error {
	return createDatabase(ep.GetConnectionString(), dbName)
}

func (ep *EmbeddedPostgres) DropDatabase(dbName string) error {
	return dropDatabase(ep.GetConnectionString(), dbName)
}

func (ep *EmbeddedPostgres) ExecuteSqls(sqls ...string) {
	ep.ExecuteSqlsOnDB(ep.DBName, sqls...)
}

func (ep *EmbeddedPostgres) ExecuteSqlsOnDB(dbName string, sqls ...string) {
	err := execOnDB(ep.GetConnectionStringForDB(dbName), sqls...)
	if err != nil {
		utils.ErrExit("embedded postgres: %v", err)
	}
}
