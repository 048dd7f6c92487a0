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
package sequences

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/artifacts"
	"github.com/pgshift/pgshift/src/constants"
	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/tgtdb"
)

var ErrFreezeNotActive = fmt.Errorf("sequences can only be captured while the source is frozen")

// State maps schema qualified sequence names to the last value issued on the
// source. Sequences that never issued a value are absent.
type State struct {
	Values     map[string]int64 `json:"values"`
	CapturedAt time.Time        `json:"captured_at"`
}

// Names returns the sequence names in sorted order.
func (s *State) Names() []string {
	names := lo.Keys(s.Values)
	sort.Strings(names)
	return names
}

// Script renders the resync script, one setval per sequence.
func (s *State) Script() string {
	var sb strings.Builder
	for _, name := range s.Names() {
		sb.WriteString(tgtdb.SetvalStatement(name, s.Values[name]))
		sb.WriteString(";\n")
	}
	return sb.String()
}

type FreezeGuard interface {
	IsFrozen() bool
}

type SequenceRestorer interface {
	RestoreSequences(ctx context.Context, sequencesLastVal map[string]int64) (int, error)
}

// Synchronizer carries the sequence cursors of the frozen source over to
// the target.
type Synchronizer struct {
	source  pgcatalog.Querier
	schemas []string
	freeze  FreezeGuard
	target  SequenceRestorer
	store   *artifacts.Store
}

func NewSynchronizer(source pgcatalog.Querier, schemas []string, freeze FreezeGuard, target SequenceRestorer, store *artifacts.Store) *Synchronizer {
	return &Synchronizer{source: source, schemas: schemas, freeze: freeze, target: target, store: store}
}

// CaptureAll reads the cursor of every sequence in the migrated schemas and
// records it as sequences.json and sequences.sql.
func (s *Synchronizer) CaptureAll(ctx context.Context) (*State, error) {
	if !s.freeze.IsFrozen() {
		return nil, ErrFreezeNotActive
	}
	seqs, err := pgcatalog.ListSequences(ctx, s.source, s.schemas)
	if err != nil {
		return nil, err
	}
	state := &State{Values: make(map[string]int64), CapturedAt: time.Now().UTC()}
	for _, seq := range seqs {
		if !seq.LastValue.Valid {
			log.Infof("sequence %s was never used, skipping", seq.Name)
			continue
		}
		state.Values[seq.Name.Qualified()] = seq.LastValue.Int64
	}
	log.Infof("captured %d of %d sequences", len(state.Values), len(seqs))

	err = s.record(state)
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Synchronizer) record(state *State) error {
	bs, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sequence state: %w", err)
	}
	_, err = s.store.Write(constants.SEQUENCES_STATE_FILE_NAME, bs)
	if err != nil {
		return err
	}
	_, err = s.store.Write(constants.SEQUENCES_SCRIPT_FILE_NAME, []byte(state.Script()))
	return err
}

// Load returns the state captured by an earlier run.
func (s *Synchronizer) Load() (*State, error) {
	bs, err := s.store.Read(constants.SEQUENCES_STATE_FILE_NAME)
	if err != nil {
		return nil, err
	}
	state := &State{}
	err = json.Unmarshal(bs, state)
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", constants.SEQUENCES_STATE_FILE_NAME, err)
	}
	if state.Values == nil {
		state.Values = make(map[string]int64)
	}
	return state, nil
}

// Apply sets every target sequence so that its next value follows the
// captured one. It returns the number of sequences set.
func (s *Synchronizer) Apply(ctx context.Context, state *State) (int, error) {
	n, err := s.target.RestoreSequences(ctx, state.Values)
	if err != nil {
		return n, fmt.Errorf("apply sequences: %w", err)
	}
	log.Infof("synchronized %d sequences", n)
	return n, nil
}
