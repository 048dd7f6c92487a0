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
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
)

const (
	DEFAULT_PG_PORT = "5432"

	BACKEND_DOCKER   = "docker"
	BACKEND_EMBEDDED = "embedded"
)

func printContainerLogs(container testcontainers.Container) {
	if container == nil {
		log.Printf("Cannot fetch logs: container is nil")
		return
	}

	containerID := container.GetContainerID()
	logs, err := container.Logs(context.Background())
	if err != nil {
		log.Printf("Error fetching logs for container %s: %v", containerID, err)
		return
	}
	defer logs.Close()

	logData, err := io.ReadAll(logs)
	if err != nil {
		log.Printf("Error reading logs for container %s: %v", containerID, err)
		return
	}

	log.Debugf("=== Logs for container %s ===\n%s\n=== End of Logs for container %s ===", containerID, string(logData), containerID)
}

// pingDatabase retries until the server accepts connections or a minute passes.
func pingDatabase(driver string, connStr string) error {
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return fmt.Errorf("open %s connection: %w", driver, err)
	}
	defer db.Close()

	deadline := time.Now().Add(time.Minute)
	for {
		err = db.Ping()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not reachable: %w", err)
		}
		time.Sleep(time.Second)
	}
}

func connectionString(config ContainerConfig, host string, port int, dbName string) string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=disable", config.User, config.Password, host, port, dbName)
}

func execOnDB(connStr string, sqls ...string) error {
	conn, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	defer conn.Close()
	for _, stmt := range sqls {
		_, err := conn.Exec(stmt)
		if err != nil {
			return fmt.Errorf("execute sql '%s': %w", stmt, err)
		}
	}
	return nil
}

func createDatabase(adminConnStr string, dbName string) error {
	conn, err := sql.Open("pgx", adminConnStr)
	if err != nil {
		return err
	}
	defer conn.Close()

	var exists bool
	err = conn.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}
	if exists {
		return nil
	}
	_, err = conn.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName))
	if err != nil {
		return fmt.Errorf("failed to create database '%s': %w", dbName, err)
	}
	return nil
}

func dropDatabase(adminConnStr string, dbName string) error {
	conn, err := sql.Open("pgx", adminConnStr)
	if err != nil {
		return err
	}
	defer conn.Close()

	_, err = conn.Exec(`
		SELECT pg_terminate_backend(pg_stat_activity.pid)
		FROM pg_stat_activity
		WHERE pg_stat_activity.datname = $1
		AND pid <> pg_backend_pid()`, dbName)
	if err != nil {
		return fmt.Errorf("failed to terminate some connections to database '%s': %w", dbName, err)
	}
	for i := 0; i < 5; i++ {
		_, err = conn.Exec(fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
		if err == nil {
			break
		}
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to drop database '%s': %w", dbName, err)
	}
	return nil
}

func queryVersion(connStr string) (string, error) {
	conn, err := sql.Open("pgx", connStr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	var version string
	err = conn.QueryRow("SELECT version()").Scan(&version)
	if err != nil {
		return "", fmt.Errorf("failed to query postgres version: %w", err)
	}
	return version, nil
}
