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
	"sync"
	"time"

	"github.com/docker/go-connections/nat"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pgshift/pgshift/src/utils"
)

// PostgresContainer runs the official postgres image through docker.
type PostgresContainer struct {
	mutex sync.Mutex
	ContainerConfig
	container testcontainers.Container
}

func (pg *PostgresContainer) Start(ctx context.Context) (err error) {
	pg.mutex.Lock()
	defer pg.mutex.Unlock()

	if pg.container != nil {
		if pg.container.IsRunning() {
			utils.PrintAndLogf("Postgres-%s container already running", pg.DBVersion)
			return nil
		}
		utils.PrintAndLogf("Restarting Postgres-%s container", pg.DBVersion)
		if err := pg.container.Start(ctx); err != nil {
			return fmt.Errorf("failed to restart postgres container: %w", err)
		}
		return pingDatabase("pgx", pg.GetConnectionString())
	}

	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("postgres:%s", pg.DBVersion),
		ExposedPorts: []string{DEFAULT_PG_PORT + "/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pg.User,
			"POSTGRES_PASSWORD": pg.Password,
			"POSTGRES_DB":       pg.DBName,
		},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DEFAULT_PG_PORT+"/tcp").WithStartupTimeout(2*time.Minute).WithPollInterval(5*time.Second),
			wait.ForLog("database system is ready to accept connections").WithStartupTimeout(3*time.Minute).WithPollInterval(5*time.Second),
		),
	}

	pg.container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})

	printContainerLogs(pg.container)
	if err != nil {
		return fmt.Errorf("failed to start postgres container: %w", err)
	}

	err = pingDatabase("pgx", pg.GetConnectionString())
	if err != nil {
		return fmt.Errorf("failed to ping postgres container: %w", err)
	}
	return nil
}

// Stop simulates a database outage by stopping (but not removing) the container.
// The data directory remains intact, so Start() brings back the same contents.
func (pg *PostgresContainer) Stop(ctx context.Context) error {
	pg.mutex.Lock()
	defer pg.mutex.Unlock()

	if pg.container == nil {
		return nil
	} else if !pg.container.IsRunning() {
		utils.PrintAndLogf("Postgres-%s container already stopped", pg.DBVersion)
		return nil
	}

	timeout := 10 * time.Second
	if err := pg.container.Stop(ctx, &timeout); err != nil {
		return fmt.Errorf("failed to stop postgres container: %w", err)
	}
	return nil
}

func (pg *PostgresContainer) Terminate(ctx context.Context) {
	pg.mutex.Lock()
	defer pg.mutex.Unlock()

	if pg.container == nil {
		return
	}
	err := pg.container.Terminate(ctx)
	if err != nil {
		log.Errorf("failed to terminate postgres container: %v", err)
	}
}

func (pg *PostgresContainer) GetHostPort() (string, int, error) {
	if pg.container == nil {
		return "", -1, fmt.Errorf("postgres container is not started: nil")
	}

	ctx := context.Background()
	host, err := pg.container.Host(ctx)
	if err != nil {
		return "", -1, fmt.Errorf("failed to fetch host for postgres container: %w", err)
	}

	port, err := pg.container.MappedPort(ctx, nat.Port(DEFAULT_PG_PORT))
	if err != nil {
		return "", -1, fmt.Errorf("failed to fetch mapped port for postgres container: %w", err)
	}

	return host, port.Int(), nil
}

func (pg *PostgresContainer) GetConfig() ContainerConfig {
	return pg.ContainerConfig
}

func (pg *PostgresContainer) GetConnectionString() string {
	return pg.GetConnectionStringForDB(pg.DBName)
}

func (pg *PostgresContainer) GetConnectionStringForDB(dbName string) string {
	host, port, err := pg.GetHostPort()
	if err != nil {
		utils.ErrExit("failed to get host port for postgres connection string: %v", err)
	}
	return connectionString(pg.ContainerConfig, host, port, dbName)
}

func (pg *PostgresContainer) GetConnection() (*sql.DB, error) {
	conn, err := sql.Open("pgx", pg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to postgres: %w", err)
	}
	return conn, nil
}

func (pg *PostgresContainer) GetVersion() (string, error) {
	return queryVersion(pg.GetConnectionString())
}

func (pg *PostgresContainer) CreateDatabase(dbName string) error {
	return createDatabase(pg.GetConnectionString(), dbName)
}

func (pg *PostgresContainer) DropDatabase(dbName string) error {
	return dropDatabase(pg.GetConnectionString(), dbName)
}

func (pg *PostgresContainer) ExecuteSqls(sqls ...string) {
	pg.ExecuteSqlsOnDB(pg.DBName, sqls...)
}

func (pg *PostgresContainer) ExecuteSqlsOnDB(dbName string, sqls ...string) {
	err := execOnDB(pg.GetConnectionStringForDB(dbName), sqls...)
	if err != nil {
		utils.ErrExit("postgres container: %v", err)
	}
}
