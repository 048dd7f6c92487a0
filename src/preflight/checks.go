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
package preflight

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/coupling"
	"github.com/pgshift/pgshift/src/srcdb"
	"github.com/pgshift/pgshift/src/version"
)

const (
	CHECK_SOURCE_REACHABLE = "source-reachable"
	CHECK_TARGET_REACHABLE = "target-reachable"
	CHECK_PG_DUMP          = "pg_dump"
	CHECK_READINESS        = "readiness"
)

type Endpoint interface {
	Connect(ctx context.Context) error
	RedactedUri() string
}

type VersionedEndpoint interface {
	Endpoint
	GetVersion(ctx context.Context) (*version.PGVersion, error)
}

type reachableCheck struct {
	name     string
	endpoint Endpoint
}

// Reachable checks that a connection to the endpoint can be opened.
func Reachable(name string, endpoint Endpoint) Check {
	return &reachableCheck{name: name, endpoint: endpoint}
}

func (c *reachableCheck) Name() string      { return c.name }
func (c *reachableCheck) SkipAllowed() bool { return false }

func (c *reachableCheck) Execute(ctx context.Context) Result {
	err := c.endpoint.Connect(ctx)
	if err != nil {
		return Result{Status: StatusCritical, Error: err}
	}
	log.Infof("%s reachable at %s", c.name, c.endpoint.RedactedUri())
	return Result{Status: StatusPassed}
}

type pgDumpCheck struct {
	source VersionedEndpoint
	lookup func(cmd string) (string, *version.PGVersion, error)
}

// PgDump checks that a pg_dump whose major version is not older than the
// source server is on PATH.
func PgDump(source VersionedEndpoint) Check {
	return &pgDumpCheck{source: source, lookup: srcdb.GetPGCommandVersion}
}

func (c *pgDumpCheck) Name() string      { return CHECK_PG_DUMP }
func (c *pgDumpCheck) SkipAllowed() bool { return false }

func (c *pgDumpCheck) Execute(ctx context.Context) Result {
	path, toolVersion, err := c.lookup("pg_dump")
	if err != nil {
		return Result{Status: StatusCritical, Error: err}
	}
	err = c.source.Connect(ctx)
	if err != nil {
		return Result{Status: StatusCritical, Error: fmt.Errorf("read source version: %w", err)}
	}
	serverVersion, err := c.source.GetVersion(ctx)
	if err != nil {
		return Result{Status: StatusCritical, Error: err}
	}
	if toolVersion.CompareMajor(serverVersion) < 0 {
		return Result{
			Status: StatusCritical,
			Error: fmt.Errorf("%s is version %s, the source server is %s: install pg_dump %s or later",
				path, toolVersion, serverVersion, serverVersion.Major()),
		}
	}
	log.Infof("using %s version %s for source server %s", path, toolVersion, serverVersion)
	return Result{Status: StatusPassed}
}

type readinessCheck struct {
	auditor  coupling.Auditor
	root     string
	override bool
}

// Readiness audits the application under root. A moderate or high coupling
// tier fails the check unless override is set, in which case it warns.
func Readiness(auditor coupling.Auditor, root string, override bool) Check {
	return &readinessCheck{auditor: auditor, root: root, override: override}
}

func (c *readinessCheck) Name() string      { return CHECK_READINESS }
func (c *readinessCheck) SkipAllowed() bool { return true }

func (c *readinessCheck) Execute(ctx context.Context) Result {
	if c.root == "" {
		log.Infof("no project root given, application readiness not audited")
		return Result{Status: StatusSkipped}
	}
	finding, err := c.auditor.Audit(c.root)
	if err != nil {
		return Result{Status: StatusCritical, Error: err}
	}
	if !finding.Blocking() {
		return Result{Status: StatusPassed}
	}
	err = fmt.Errorf("application coupling %s", finding)
	if c.override {
		return Result{Status: StatusWarning, Error: fmt.Errorf("%w, overridden", err)}
	}
	return Result{Status: StatusCritical, Error: fmt.Errorf("%w, pass --override-readiness to migrate anyway", err)}
}
