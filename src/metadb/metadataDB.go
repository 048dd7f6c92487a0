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
package metadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/utils"
)

var (
	JSON_OBJECTS_TABLE_NAME = "json_objects"
	FREEZE_LOG_TABLE_NAME   = "freeze_log"
)

const SQLITE_OPTIONS = "?_txlock=exclusive&_timeout=30000"

func GetMetaDBPath(workDir string) string {
	return filepath.Join(workDir, constants.METAINFO_DIR, "meta.db")
}

func CreateAndInitMetaDBIfRequired(workDir string) error {
	metaDBPath := GetMetaDBPath(workDir)
	if utils.FileOrFolderExists(metaDBPath) {
		// already created and initialized
		return nil
	}
	err := os.MkdirAll(filepath.Dir(metaDBPath), 0755)
	if err != nil {
		return fmt.Errorf("create metainfo dir: %w", err)
	}
	err = createMetaDBFile(metaDBPath)
	if err != nil {
		return err
	}
	err = initMetaDB(metaDBPath)
	if err != nil {
		return err
	}
	return nil
}

func createMetaDBFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("not able to create meta db file :%w", err)
	}
	err = f.Close()
	if err != nil {
		return fmt.Errorf("error while closing meta db file: %w", err)
	}
	return nil
}

func initMetaDB(path string) error {
	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s%s", path, SQLITE_OPTIONS))
	if err != nil {
		return fmt.Errorf("error while opening meta db :%w", err)
	}
	defer conn.Close()
	cmds := []string{
		fmt.Sprintf(`CREATE TABLE %s (
			key TEXT PRIMARY KEY,
			json_text TEXT);`, JSON_OBJECTS_TABLE_NAME),
		fmt.Sprintf(`CREATE TABLE %s (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			timestamp INTEGER,
			database_name TEXT,
			from_state TEXT,
			to_state TEXT,
			command TEXT,
			note TEXT);`, FREEZE_LOG_TABLE_NAME),
	}
	for _, cmd := range cmds {
		_, err = conn.Exec(cmd)
		if err != nil {
			return fmt.Errorf("error while initializating meta db with query-%s :%w", cmd, err)
		}
		log.Infof("Executed query on meta db - %s", cmd)
	}
	return nil
}

// =====================================================================================================================

type MetaDB struct {
	db *sql.DB
}

func NewMetaDB(workDir string) (*MetaDB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s%s", GetMetaDBPath(workDir), SQLITE_OPTIONS))
	if err != nil {
		return nil, fmt.Errorf("error while opening meta db :%w", err)
	}
	return &MetaDB{db: db}, nil
}

func (m *MetaDB) Close() error {
	return m.db.Close()
}

func (m *MetaDB) InsertJsonObject(tx *sql.Tx, key string, obj any) error {
	jsonText, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("error while marshalling json: %w", err)
	}
	log.Infof("Inserting json object for key: %s", key)
	query := fmt.Sprintf(`INSERT INTO %s (key, json_text) VALUES (?, ?)`, JSON_OBJECTS_TABLE_NAME)
	if tx == nil {
		_, err = m.db.Exec(query, key, jsonText)
	} else {
		_, err = tx.Exec(query, key, jsonText)
	}
	if err != nil {
		return fmt.Errorf("error while running query on meta db - %s :%w", query, err)
	}
	return nil
}

func (m *MetaDB) GetJsonObject(tx *sql.Tx, key string, obj any) (bool, error) {
	query := fmt.Sprintf(`SELECT json_text FROM %s WHERE key = ?`, JSON_OBJECTS_TABLE_NAME)
	var row *sql.Row
	if tx == nil {
		row = m.db.QueryRow(query, key)
	} else {
		row = tx.QueryRow(query, key)
	}
	var jsonText string
	err := row.Scan(&jsonText)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Infof("No json object found for key: %s", key)
			return false, nil
		}
		return false, fmt.Errorf("error while running query on meta db - %s :%w", query, err)
	}
	err = json.Unmarshal([]byte(jsonText), obj)
	if err != nil {
		log.Infof("Found json object for key: %s, but failed to unmarshal it: %v", key, err)
		return true, fmt.Errorf("error while unmarshalling json: %w", err)
	}
	log.Infof("Found json object for key: %s", key)
	return true, nil
}

func (m *MetaDB) DeleteJsonObject(key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = ?`, JSON_OBJECTS_TABLE_NAME)
	_, err := m.db.Exec(query, key)
	if err != nil {
		return fmt.Errorf("error while running query on meta db -%s :%w", query, err)
	}
	return nil
}

// UpdateJsonObjectInMetaDB does a read-modify-write of the object under key
// inside one serializable transaction.
func UpdateJsonObjectInMetaDB[T any](m *MetaDB, key string, updateFn func(obj *T)) error {
	conn, err := m.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("error while getting connection to meta db: %w", err)
	}
	defer func() {
		err := conn.Close()
		if err != nil {
			log.Errorf("failed to close connection to meta db: %v", err)
		}
	}()
	tx, err := conn.BeginTx(context.Background(), &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("error while starting transaction on meta db: %w", err)
	}
	defer func() {
		err := tx.Rollback()
		if err != nil && err != sql.ErrTxDone {
			log.Errorf("failed to rollback transaction on meta db: %v", err)
		}
	}()
	obj := new(T)
	found, err := m.GetJsonObject(tx, key, obj)
	if err != nil {
		return fmt.Errorf("error while getting json object from meta db: %w", err)
	}
	updateFn(obj)
	if !found {
		err = m.InsertJsonObject(tx, key, obj)
		if err != nil {
			return fmt.Errorf("error while inserting json object into meta db: %w", err)
		}
	} else {
		newJsonText, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("error while marshalling json: %w", err)
		}
		query := fmt.Sprintf(`UPDATE %s SET json_text = ? WHERE key = ?`, JSON_OBJECTS_TABLE_NAME)
		_, err = tx.Exec(query, string(newJsonText), key)
		if err != nil {
			return fmt.Errorf("error while running query on meta db - %s :%w", query, err)
		}
	}
	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("error while commiting transaction on meta db: %w", err)
	}
	return nil
}
