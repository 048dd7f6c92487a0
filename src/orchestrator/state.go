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
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const (
	STATE_IDLE           = "Idle"
	STATE_PREFLIGHT      = "Preflight"
	STATE_SCHEMA_PHASE   = "SchemaPhase"
	STATE_DATA_PHASE     = "DataPhase"
	STATE_SEQUENCE_PHASE = "SequencePhase"
	STATE_VALIDATED      = "Validated"
	STATE_DONE           = "Done"
	STATE_FAILED         = "Failed"
)

var ErrIllegalTransition = errors.New("illegal state transition")

// SchemaPhase may go straight to Done in a dry run. Failed is reachable from
// every state that is not terminal and is added by Transition.
var allowedTransitions = map[string][]string{
	STATE_IDLE:           {STATE_PREFLIGHT},
	STATE_PREFLIGHT:      {STATE_SCHEMA_PHASE},
	STATE_SCHEMA_PHASE:   {STATE_DATA_PHASE, STATE_DONE},
	STATE_DATA_PHASE:     {STATE_SEQUENCE_PHASE},
	STATE_SEQUENCE_PHASE: {STATE_VALIDATED},
	STATE_VALIDATED:      {STATE_DONE},
}

func IsTerminal(state string) bool {
	return state == STATE_DONE || state == STATE_FAILED
}

// Machine tracks the state of one run. onTransition is called after every
// accepted transition and may persist it.
type Machine struct {
	state        string
	history      []string
	onTransition func(from, to string) error
}

func NewMachine(onTransition func(from, to string) error) *Machine {
	return &Machine{state: STATE_IDLE, history: []string{STATE_IDLE}, onTransition: onTransition}
}

func (m *Machine) State() string {
	return m.state
}

func (m *Machine) History() []string {
	return append([]string{}, m.history...)
}

func (m *Machine) CanTransition(to string) bool {
	if IsTerminal(m.state) {
		return false
	}
	if to == STATE_FAILED {
		return true
	}
	return lo.Contains(allowedTransitions[m.state], to)
}

func (m *Machine) Transition(to string) error {
	if !m.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, to)
	}
	from := m.state
	m.state = to
	m.history = append(m.history, to)
	log.Infof("migration state: %s -> %s", from, to)
	if m.onTransition != nil {
		return m.onTransition(from, to)
	}
	return nil
}
