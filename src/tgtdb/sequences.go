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
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// RestoreSequences sets every sequence so that its next value is
// lastValue+1. Keys are schema-qualified names as accepted by regclass.
// All setval calls go out in one batch on one session.
func (t *Target) RestoreSequences(ctx context.Context, sequencesLastVal map[string]int64) (int, error) {
	log.Infof("restoring sequences on target")
	names := lo.Keys(sequencesLastVal)
	sort.Strings(names)

	batch := pgx.Batch{}
	for _, sequenceName := range names {
		lastValue := sequencesLastVal[sequenceName]
		log.Infof("restore sequence %s to %d", sequenceName, lastValue)
		batch.Queue(SetvalStatement(sequenceName, lastValue))
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	conn, err := t.newSession(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close(context.Background())

	br := conn.SendBatch(ctx, &batch)
	for i := 0; i < batch.Len(); i++ {
		_, err := br.Exec()
		if err != nil {
			br.Close()
			return i, fmt.Errorf("error executing restore sequence stmt for %s: %w", names[i], err)
		}
	}
	if err := br.Close(); err != nil {
		return batch.Len(), fmt.Errorf("error closing batch: %w", err)
	}
	return batch.Len(), nil
}

// SetvalStatement marks lastValue as already issued, so nextval returns lastValue+1.
func SetvalStatement(sequenceName string, lastValue int64) string {
	return fmt.Sprintf("SELECT pg_catalog.setval('%s', %d, true)", strings.ReplaceAll(sequenceName, "'", "''"), lastValue)
}
