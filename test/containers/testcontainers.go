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
	"os"
	"sync"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// containerRegistry ensures one server per backend and version.
// go test runs each package in its own process, so servers are not shared across packages.
var (
	containerRegistry = make(map[string]TestContainer)
	registryMutex     sync.Mutex
)

// TestContainer is a disposable Postgres server for integration tests.
type TestContainer interface {
	// lifecycle
	Start(ctx context.Context) error
	// Stop works for pausing the server, so that it can be restarted later
	Stop(ctx context.Context) error
	Terminate(ctx context.Context)

	// connectivity and config
	GetHostPort() (string, int, error)
	GetConfig() ContainerConfig
	GetConnectionString() string
	GetConnectionStringForDB(dbName string) string
	GetConnection() (*sql.DB, error)
	GetVersion() (string, error)

	// SQL helpers
	CreateDatabase(dbName string) error
	DropDatabase(dbName string) error
	ExecuteSqls(sqls ...string)
	ExecuteSqlsOnDB(dbName string, sqls ...string)
}

type ContainerConfig struct {
	// docker or embedded
	Backend   string
	DBVersion string
	User      string
	Password  string
	DBName    string
	Port      int
}

func (config *ContainerConfig) buildContainerName() string {
	return fmt.Sprintf("postgresql-%s-%s", config.Backend, config.DBVersion)
}

// NewTestContainer returns the registered server for the config, creating it
// if needed. PGSHIFT_TEST_BACKEND=embedded selects embedded-postgres instead of docker.
func NewTestContainer(containerConfig *ContainerConfig) TestContainer {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if containerConfig == nil {
		containerConfig = &ContainerConfig{}
	}
	setContainerConfigDefaultsIfNotProvided(containerConfig)

	containerName := containerConfig.buildContainerName()
	if container, exists := containerRegistry[containerName]; exists {
		log.Infof("container '%s' already exists in the registry", containerName)
		return container
	}

	var testContainer TestContainer
	switch containerConfig.Backend {
	case BACKEND_DOCKER:
		testContainer = &PostgresContainer{ContainerConfig: *containerConfig}
	case BACKEND_EMBEDDED:
		testContainer = &EmbeddedPostgres{ContainerConfig: *containerConfig}
	default:
		panic(fmt.Sprintf("unsupported test backend %q\n", containerConfig.Backend))
	}

	containerRegistry[containerName] = testContainer
	return testContainer
}

// TerminateAllContainers stops every registered server. Docker containers
// left behind by a crashed test process are reaped by ryuk.
func TerminateAllContainers() {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	ctx := context.Background()
	for name, container := range containerRegistry {
		log.Infof("terminating the container '%s'", name)
		container.Terminate(ctx)
	}
}

func setContainerConfigDefaultsIfNotProvided(config *ContainerConfig) {
	pgVersion := os.Getenv("PG_VERSION")
	if pgVersion == "" {
		pgVersion = "15"
	}
	backend := os.Getenv("PGSHIFT_TEST_BACKEND")
	if backend == "" {
		backend = BACKEND_DOCKER
	}

	config.Backend = lo.Ternary(config.Backend == "", backend, config.Backend)
	config.User = lo.Ternary(config.User == "", "postgres", config.User)
	config.Password = lo.Ternary(config.Password == "", "password", config.Password)
	config.DBVersion = lo.Ternary(config.DBVersion == "", pgVersion, config.DBVersion)
	config.DBName = lo.Ternary(config.DBName == "", "postgres", config.DBName)
	config.Port = lo.Ternary(config.Port == 0, 15432, config.Port)
}
