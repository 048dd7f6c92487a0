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
package srcdb

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/pgshift/pgshift/src/config"
	"github.com/pgshift/pgshift/src/utils"
	"github.com/pgshift/pgshift/src/utils/sqlname"
	"github.com/pgshift/pgshift/src/version"
)

const (
	PG_DUMP_SCHEMA_SECTION = "schema"
	PG_DUMP_DATA_SECTION   = "data"
)

type PgDumpArgs struct {
	Schemas    string
	OutputFile string
}

//go:embed data/pg_dump-args.ini
var pgDumpArgsFile string

var basePgDumpArgsFilePath = filepath.Join("/", "etc", "pgshift", "pg_dump-args.ini")

func getPgDumpArgsFromFile(sectionToRead string, pgDumpArgs PgDumpArgs) ([]string, error) {
	argsTemplate := pgDumpArgsFile
	if utils.FileOrFolderExists(basePgDumpArgsFilePath) {
		log.Infof("Using base pg_dump arguments file: %s", basePgDumpArgsFilePath)
		bs, err := os.ReadFile(basePgDumpArgsFilePath)
		if err != nil {
			return nil, fmt.Errorf("read pg_dump arguments file: %w", err)
		}
		argsTemplate = string(bs)
	}

	tmpl, err := template.New("pg_dump_args").Parse(argsTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse pg_dump arguments: %w", err)
	}
	var output bytes.Buffer
	err = tmpl.Execute(&output, pgDumpArgs)
	if err != nil {
		return nil, fmt.Errorf("prepare pg_dump arguments: %w", err)
	}
	iniData, err := ini.Load(output.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load pg_dump arguments: %w", err)
	}
	section, err := iniData.GetSection(sectionToRead)
	if err != nil {
		return nil, fmt.Errorf("pg_dump arguments section %q: %w", sectionToRead, err)
	}

	var args []string
	for _, key := range section.Keys() {
		if key.Value() == "false" {
			continue
		}
		prefix := "--"
		if len(key.Name()) == 1 {
			prefix = "-"
		}
		switch {
		case key.Value() == "true":
			args = append(args, prefix+key.Name())
		case key.Name() == "schema":
			// one flag per schema, quoted so that pg_dump keeps the case
			for _, schema := range utils.CsvStringToSlice(key.Value()) {
				args = append(args, fmt.Sprintf("%s%s=%s", prefix, key.Name(), sqlname.QuoteIdent(schema)))
			}
		default:
			args = append(args, fmt.Sprintf("%s%s=%s", prefix, key.Name(), key.Value()))
		}
	}
	return args, nil
}

// ExtractSchema dumps the DDL of the application schemas into outputFile.
func (s *Source) ExtractSchema(ctx context.Context, outputFile string) error {
	return s.runPgDump(ctx, PG_DUMP_SCHEMA_SECTION, outputFile)
}

// ExportData dumps the rows of the application schemas in COPY format into
// outputFile. Each table's COPY block is wrapped in DISABLE/ENABLE TRIGGER ALL.
func (s *Source) ExportData(ctx context.Context, outputFile string) error {
	return s.runPgDump(ctx, PG_DUMP_DATA_SECTION, outputFile)
}

func (s *Source) runPgDump(ctx context.Context, section string, outputFile string) error {
	pgDumpPath, err := GetAbsPathOfPGCommand("pg_dump")
	if err != nil {
		return fmt.Errorf("could not get absolute path of pg_dump command: %w", err)
	}
	args, err := getPgDumpArgsFromFile(section, PgDumpArgs{
		Schemas:    strings.Join(s.Schemas, ","),
		OutputFile: outputFile,
	})
	if err != nil {
		return err
	}
	if config.IsLogLevelDebugOrBelow() {
		args = append(args, "--verbose")
	}
	log.Infof("Running command: %s %s --dbname=%s", pgDumpPath, strings.Join(args, " "), s.RedactedUri())
	args = append(args, "--dbname="+s.Uri)

	var errbuf bytes.Buffer
	proc := exec.CommandContext(ctx, pgDumpPath, args...)
	proc.Stderr = &errbuf
	err = proc.Run()
	if errbuf.Len() > 0 {
		// pg_dump formats its messages, %s is sufficient
		log.Infof("pg_dump: %s", errbuf.String())
	}
	if err != nil {
		return fmt.Errorf("pg_dump %s export: %w: %s", section, err, strings.TrimSpace(errbuf.String()))
	}
	return nil
}

// GetAbsPathOfPGCommand returns the executable named cmd on PATH having the
// highest version.
func GetAbsPathOfPGCommand(cmd string) (string, error) {
	path, _, err := GetPGCommandVersion(cmd)
	return path, err
}

// GetPGCommandVersion returns the highest version among the executables named
// cmd on PATH together with its path.
func GetPGCommandVersion(cmd string) (string, *version.PGVersion, error) {
	paths, err := findAllExecutablesInPath(cmd)
	if err != nil {
		return "", nil, fmt.Errorf("error in finding executables: %w", err)
	}
	if len(paths) == 0 {
		return "", nil, fmt.Errorf("the command %v is not installed", cmd)
	}

	var bestPath string
	var best *version.PGVersion
	for _, path := range paths {
		stdout, err := exec.Command(path, "--version").Output()
		if err != nil {
			return "", nil, fmt.Errorf("error in finding version of %v from path %v: %w", cmd, path, err)
		}
		// example output Ubuntu: pg_dump (PostgreSQL) 14.5 (Ubuntu 14.5-1.pgdg22.04+1)
		v, err := version.ParsePgDumpVersion(string(stdout))
		if err != nil {
			return "", nil, err
		}
		if best == nil || v.GreaterThan(best.Version) {
			bestPath, best = path, v
		}
	}
	return bestPath, best, nil
}

func findAllExecutablesInPath(executableName string) ([]string, error) {
	pathString := os.Getenv("PATH")
	if pathString == "" {
		return nil, fmt.Errorf("PATH environment variable is not set")
	}
	dirs := strings.Split(pathString, string(os.PathListSeparator))
	var result []string
	for _, dir := range lo.Uniq(dirs) {
		fullPath := filepath.Join(dir, executableName)
		info, err := os.Stat(fullPath)
		if err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			result = append(result, fullPath)
		}
	}
	return result, nil
}
