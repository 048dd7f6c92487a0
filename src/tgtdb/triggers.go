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

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/utils/sqlname"
)

func triggerKey(trg pgcatalog.Trigger) string {
	return trg.Table.Unquoted() + "/" + trg.Name
}

// restoreTriggers re-enables every trigger that is disabled now but was not
// in disabledBefore. Internal constraint triggers can only be switched with
// ENABLE TRIGGER ALL, after which the triggers the user had disabled on that
// table are disabled again.
func (t *Target) restoreTriggers(ctx context.Context, disabledBefore []pgcatalog.Trigger) (int, error) {
	disabledNow, err := pgcatalog.ListDisabledTriggers(ctx, t.db, t.Schemas)
	if err != nil {
		return 0, err
	}
	stmts := triggerRestoreStatements(disabledBefore, disabledNow)
	for _, stmt := range stmts {
		log.Infof("restoring trigger state: %s", stmt)
		_, err := t.db.ExecContext(ctx, stmt)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", stmt, err)
		}
	}
	before := mapset.NewThreadUnsafeSet(lo.Map(disabledBefore, func(trg pgcatalog.Trigger, _ int) string { return triggerKey(trg) })...)
	n := lo.CountBy(disabledNow, func(trg pgcatalog.Trigger) bool { return !before.Contains(triggerKey(trg)) })
	return n, nil
}

func triggerRestoreStatements(disabledBefore, disabledNow []pgcatalog.Trigger) []string {
	before := mapset.NewThreadUnsafeSet[string]()
	for _, trg := range disabledBefore {
		before.Add(triggerKey(trg))
	}

	newlyDisabled := map[string][]pgcatalog.Trigger{}
	tables := map[string]sqlname.ObjectName{}
	for _, trg := range disabledNow {
		if before.Contains(triggerKey(trg)) {
			continue
		}
		key := trg.Table.Unquoted()
		newlyDisabled[key] = append(newlyDisabled[key], trg)
		tables[key] = trg.Table
	}

	tableKeys := lo.Keys(tables)
	sort.Slice(tableKeys, func(i, j int) bool { return tables[tableKeys[i]].Less(tables[tableKeys[j]]) })

	var stmts []string
	for _, key := range tableKeys {
		table := tables[key]
		triggers := newlyDisabled[key]
		if lo.SomeBy(triggers, func(trg pgcatalog.Trigger) bool { return trg.Internal }) {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER ALL", table.Qualified()))
			for _, trg := range disabledBefore {
				if trg.Table.Unquoted() == key && !trg.Internal {
					stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER %s", table.Qualified(), sqlname.QuoteIdent(trg.Name)))
				}
			}
			continue
		}
		for _, trg := range triggers {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER %s", table.Qualified(), sqlname.QuoteIdent(trg.Name)))
		}
	}
	return stmts
}
