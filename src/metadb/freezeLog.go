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
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	FREEZE_STATE_UNFROZEN = "unfrozen"
	FREEZE_STATE_FROZEN   = "frozen"
)

// FreezeTransition is one row of the source freeze audit trail.
type FreezeTransition struct {
	Seq          int64     `json:"seq"`
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	DatabaseName string    `json:"database_name"`
	FromState    string    `json:"from_state"`
	ToState      string    `json:"to_state"`
	Command      string    `json:"command"`
	Note         string    `json:"note"`
}

func (m *MetaDB) AppendFreezeTransition(t FreezeTransition) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	query := fmt.Sprintf(`INSERT INTO %s (run_id, timestamp, database_name, from_state, to_state, command, note)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, FREEZE_LOG_TABLE_NAME)
	_, err := m.db.Exec(query, t.RunID, t.Timestamp.UnixNano(), t.DatabaseName, t.FromState, t.ToState, t.Command, t.Note)
	if err != nil {
		return fmt.Errorf("error while running query on meta db - %s :%w", query, err)
	}
	log.Infof("freeze log: %s %s -> %s (%s) by %q", t.DatabaseName, t.FromState, t.ToState, t.Note, t.Command)
	return nil
}

func (m *MetaDB) GetFreezeLog() ([]FreezeTransition, error) {
	query := fmt.Sprintf(`SELECT seq, run_id, timestamp, database_name, from_state, to_state, command, note
		FROM %s ORDER BY seq`, FREEZE_LOG_TABLE_NAME)
	rows, err := m.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error while running query on meta db - %s :%w", query, err)
	}
	defer rows.Close()
	var result []FreezeTransition
	for rows.Next() {
		var t FreezeTransition
		var ts int64
		err = rows.Scan(&t.Seq, &t.RunID, &ts, &t.DatabaseName, &t.FromState, &t.ToState, &t.Command, &t.Note)
		if err != nil {
			return nil, fmt.Errorf("scan freeze log row: %w", err)
		}
		t.Timestamp = time.Unix(0, ts)
		result = append(result, t)
	}
	return result, rows.Err()
}

// LastFreezeState returns the state recorded by the latest transition, or
// FREEZE_STATE_UNFROZEN when nothing was logged yet.
func (m *MetaDB) LastFreezeState() (string, error) {
	transitions, err := m.GetFreezeLog()
	if err != nil {
		return "", err
	}
	if len(transitions) == 0 {
		return FREEZE_STATE_UNFROZEN, nil
	}
	return transitions[len(transitions)-1].ToState, nil
}
