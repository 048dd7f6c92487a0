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
package pbreporter

import (
	"os"

	"github.com/vbauerster/mpb/v8"
	"golang.org/x/term"

	"github.com/pgshift/pgshift/src/config"
)

// LoadProgressReporter is the bare minimum of an mpb bar the dump loader needs.
type LoadProgressReporter interface {
	SetTotal(total int64, triggerComplete bool)
	SetCurrent(current int64)
	IsComplete() bool
}

func NewLoadPB(progressContainer *mpb.Progress, name string, disablePb bool) LoadProgressReporter {
	if disablePb || progressContainer == nil {
		return newDisablePBReporter()
	}
	return newEnablePBReporter(progressContainer, name)
}

// ShouldDisable reports whether bars must be off: on request, when only
// errors are to be shown, or because stdout is not a terminal.
func ShouldDisable(disablePb bool) bool {
	return disablePb || config.IsLogLevelErrorOrAbove() || !term.IsTerminal(int(os.Stdout.Fd()))
}
