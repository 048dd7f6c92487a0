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
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/nightlyone/lockfile"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/utils"
)

// Lockfile guards a work dir against two pgshift commands mutating it at once.
// The file is named .<cmd>Lockfile.lck and holds the owner's PID.
type Lockfile struct {
	fpath    string
	cmdName  string
	cmdPID   int
	lockfile lockfile.Lockfile
}

func NewLockfile(fpath string) *Lockfile {
	return &Lockfile{fpath: fpath, cmdPID: -1}
}

func PathFor(workDir, cmdName string) string {
	return filepath.Join(workDir, fmt.Sprintf(".%sLockfile.lck", strings.ReplaceAll(cmdName, " ", "-")))
}

func (l *Lockfile) GetCmdName() string {
	if l.cmdName != "" {
		return l.cmdName
	}

	fname := filepath.Base(l.fpath)
	l.cmdName = fname[1 : len(fname)-len("Lockfile.lck")]
	l.cmdName = strings.Replace(l.cmdName, "-", " ", -1)
	return l.cmdName
}

func (l *Lockfile) GetCmdPID() (int, error) {
	if l.cmdPID != -1 {
		return l.cmdPID, nil
	}

	bytes, err := os.ReadFile(l.fpath)
	if err != nil {
		return -1, fmt.Errorf("failed to read lockfile %q: %w", l.fpath, err)
	}
	l.cmdPID, err = strconv.Atoi(strings.Trim(string(bytes), " \n"))
	if err != nil {
		return -1, fmt.Errorf("failed to parse PID from lockfile %q: %w", l.fpath, err)
	}
	return l.cmdPID, nil
}

func (l *Lockfile) IsPIDActive() bool {
	pid, err := l.GetCmdPID()
	if err != nil {
		return false
	}

	proc, _ := os.FindProcess(pid) // always succeeds on unix

	// Signal(0) errors only when the process is gone
	err = proc.Signal(syscall.Signal(0))
	if err != nil {
		log.Infof("process %d is not active", pid)
		return false
	}
	log.Infof("process %d is active", pid)
	return true
}

func (l *Lockfile) TryLock() error {
	var err error
	l.lockfile, err = lockfile.New(l.fpath)
	if err != nil {
		return fmt.Errorf("create lockfile %q: %w", l.fpath, err)
	}

	err = l.lockfile.TryLock()
	if err == lockfile.ErrBusy {
		return fmt.Errorf("another instance of pgshift '%s' is running for this work dir", l.GetCmdName())
	} else if err != nil {
		return fmt.Errorf("lock the work-dir: %w", err)
	}
	return nil
}

func (l *Lockfile) Lock() {
	err := l.TryLock()
	if err != nil {
		utils.ErrExit("%v", err)
	}
}

func (l *Lockfile) Unlock() {
	err := l.lockfile.Unlock()
	if err != nil {
		utils.ErrExit("Unable to unlock %q: %v\n", string(l.lockfile), err)
	}
}
