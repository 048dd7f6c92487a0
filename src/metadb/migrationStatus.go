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

	"github.com/google/uuid"
)

// MigrationStatusRecord holds the checkpoints of a work dir. Digests are the
// manifest digests of the artifacts a checkpoint was taken against; a
// checkpoint whose digest no longer matches the manifest is not trusted.
type MigrationStatusRecord struct {
	MigrationUUID    string   `json:"MigrationUUID"`
	RunIDs           []string `json:"RunIDs"`
	SourceDBRedacted string   `json:"SourceDBRedacted"`
	TargetDBRedacted string   `json:"TargetDBRedacted"`
	AppSchemas       []string `json:"AppSchemas"`
	CurrentState     string   `json:"CurrentState"`
	LastFailedPhase  string   `json:"LastFailedPhase"`

	SchemaExportDone   bool     `json:"SchemaExportDone"`
	SchemaCleanDigest  string   `json:"SchemaCleanDigest"`
	SchemaApplied      bool     `json:"SchemaApplied"`
	// an apply of the cleaned schema with this digest has begun on the target
	SchemaApplyStarted bool     `json:"SchemaApplyStarted"`
	SchemaApplyErrors  int      `json:"SchemaApplyErrors"`
	DataExportDone     bool     `json:"DataExportDone"`
	DataDigest         string   `json:"DataDigest"`
	DataLoaded         bool     `json:"DataLoaded"`
	DataLoadErrors     int      `json:"DataLoadErrors"`
	// tables whose COPY block from the data artifact with DataDigest committed
	DataLoadedTables   []string `json:"DataLoadedTables"`
	SequencesCaptured  bool     `json:"SequencesCaptured"`
	SequencesDigest    string   `json:"SequencesDigest"`
	SequencesApplied   bool     `json:"SequencesApplied"`
	SequencesSynced    int      `json:"SequencesSynced"`
	SourceFrozen       bool     `json:"SourceFrozen"`
	LastReportPath     string   `json:"LastReportPath"`
	LastVerdict        string   `json:"LastVerdict"`
}

const MIGRATION_STATUS_KEY = "migration_status"

func (m *MetaDB) UpdateMigrationStatusRecord(updateFn func(*MigrationStatusRecord)) error {
	return UpdateJsonObjectInMetaDB(m, MIGRATION_STATUS_KEY, updateFn)
}

func (m *MetaDB) GetMigrationStatusRecord() (*MigrationStatusRecord, error) {
	record := new(MigrationStatusRecord)
	found, err := m.GetJsonObject(nil, MIGRATION_STATUS_KEY, record)
	if err != nil {
		return nil, fmt.Errorf("error while getting migration status record from meta db: %w", err)
	}
	if !found {
		return nil, nil
	}
	return record, nil
}

func (m *MetaDB) InitMigrationStatusRecord() error {
	return m.UpdateMigrationStatusRecord(func(record *MigrationStatusRecord) {
		if record.MigrationUUID != "" {
			return // already initialized
		}
		record.MigrationUUID = uuid.New().String()
	})
}
