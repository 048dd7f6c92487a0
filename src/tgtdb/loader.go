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
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"github.com/pgshift/pgshift/src/errs"
	"github.com/pgshift/pgshift/src/pgcatalog"
	"github.com/pgshift/pgshift/src/queryparser"
)

type LoadOptions struct {
	// Name of the dump in error messages, usually the artifact name.
	SourceName string
	// Failed statements and COPY blocks are written here. The file is truncated first.
	ErrorLogPath string
	// Run with session_replication_role = replica and re-enable afterwards
	// every trigger the dump disabled.
	ReplicaRole bool
	// Called with the number of bytes consumed from the dump so far.
	OnProgress func(bytesRead int64)
	// The dump was partly replayed before. Statements failing because their
	// object already exists count as already applied.
	Resume bool
	// Tables whose COPY block was loaded before. Their blocks are skipped.
	SkipCopyOf []string
	// Called after the COPY block of a table committed.
	OnCopyDone func(table string) error
}

type LoadResult struct {
	Statements        int
	CopyBlocks        int
	RowsCopied        int64
	Errors            int
	TriggersReenabled int
	// statements of a resumed load whose object was already there
	AlreadyApplied int
	// COPY blocks of a resumed load skipped as already loaded
	CopyBlocksSkipped int
}

// SQLSTATEs of statements creating an object that already exists.
var alreadyExistsCodes = []string{
	"42P07", // duplicate_table, also indexes, sequences and views
	"42710", // duplicate_object
	"42723", // duplicate_function
	"42P06", // duplicate_schema
	"42701", // duplicate_column
	"42P16", // invalid_table_definition, raised for multiple primary keys
}

func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && lo.Contains(alreadyExistsCodes, pgErr.Code)
}

// sessionExecutor is the part of a database session the loader needs.
type sessionExecutor interface {
	Exec(ctx context.Context, sql string) error
	CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error)
}

type pgSession struct {
	conn *pgx.Conn
}

func (s *pgSession) Exec(ctx context.Context, sql string) error {
	return s.conn.PgConn().Exec(ctx, sql).Close()
}

func (s *pgSession) CopyFrom(ctx context.Context, r io.Reader, sql string) (int64, error) {
	tag, err := s.conn.PgConn().CopyFrom(ctx, r, sql)
	return tag.RowsAffected(), err
}

// LoadDump replays a plain-format pg_dump file on a single target session.
// Statement and COPY failures are counted and logged, they do not stop the
// load. The returned error is only set when the load itself could not run.
func (t *Target) LoadDump(ctx context.Context, r io.Reader, opts LoadOptions) (result *LoadResult, err error) {
	errLog, err := os.OpenFile(opts.ErrorLogPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open error log %s: %w", opts.ErrorLogPath, err)
	}
	defer errLog.Close()

	var disabledBefore []pgcatalog.Trigger
	if opts.ReplicaRole {
		disabledBefore, err = pgcatalog.ListDisabledTriggers(ctx, t.db, t.Schemas)
		if err != nil {
			return nil, err
		}
	}

	conn, err := t.newSession(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	if opts.ReplicaRole {
		_, err = conn.Exec(ctx, "SET session_replication_role = replica")
		if err != nil {
			return nil, fmt.Errorf("set session_replication_role to replica: %w", err)
		}
		defer func() {
			// runs even when the load failed or ctx was cancelled
			cleanupCtx := context.Background()
			if !conn.IsClosed() {
				_, rerr := conn.Exec(cleanupCtx, "SET session_replication_role = origin")
				if rerr != nil {
					log.Warnf("reset session_replication_role: %v", rerr)
				}
			}
			n, rerr := t.restoreTriggers(cleanupCtx, disabledBefore)
			if result != nil {
				result.TriggersReenabled = n
			}
			if rerr != nil {
				err = errors.Join(err, fmt.Errorf("re-enable triggers: %w", rerr))
			}
		}()
	}

	var reader io.Reader = r
	if opts.OnProgress != nil {
		reader = &progressReader{r: r, fn: opts.OnProgress}
	}
	loader := &dumpLoader{
		sess:       &pgSession{conn: conn},
		errLog:     errLog,
		sourceName: opts.SourceName,
		result:     &LoadResult{},
		resume:     opts.Resume,
		skipCopyOf: mapset.NewThreadUnsafeSet(opts.SkipCopyOf...),
		onCopyDone: opts.OnCopyDone,
	}
	result, err = loader.load(ctx, reader)
	log.Infof("load of %s: %d statements, %d copy blocks, %d rows, %d errors, %d already applied, %d copy blocks skipped",
		opts.SourceName, result.Statements, result.CopyBlocks, result.RowsCopied, result.Errors,
		result.AlreadyApplied, result.CopyBlocksSkipped)
	return result, err
}

type dumpLoader struct {
	sess       sessionExecutor
	errLog     io.Writer
	sourceName string
	result     *LoadResult
	lineNo     int
	resume     bool
	skipCopyOf mapset.Set[string]
	onCopyDone func(table string) error
}

func (l *dumpLoader) load(ctx context.Context, r io.Reader) (*LoadResult, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	var pending strings.Builder
	pendingStart := 1

	flush := func() {
		text := pending.String()
		pending.Reset()
		if strings.TrimSpace(text) != "" {
			l.execChunk(ctx, text, pendingStart)
		}
	}

	for {
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return l.result, fmt.Errorf("read %s: %w", l.sourceName, err)
		}
		if len(line) > 0 {
			l.lineNo++
			if isCopyFromStdin(line) && atStatementBoundary(pending.String()) {
				flush()
				if cerr := l.copyBlock(ctx, br, strings.TrimSpace(line)); cerr != nil {
					return l.result, cerr
				}
			} else {
				if pending.Len() == 0 {
					pendingStart = l.lineNo
				}
				pending.WriteString(line)
			}
		}
		if err == io.EOF {
			break
		}
		if ctx.Err() != nil {
			return l.result, ctx.Err()
		}
	}
	flush()
	return l.result, ctx.Err()
}

func (l *dumpLoader) execChunk(ctx context.Context, text string, startLine int) {
	stmts, err := queryparser.SplitStatements(text)
	if err != nil {
		l.result.Errors++
		l.logError(errs.NewExecuteDDLError(text, l.location(startLine), err))
		return
	}
	cursor := 0
	for _, stmt := range stmts {
		if ctx.Err() != nil {
			return
		}
		line := startLine
		body := strings.TrimSuffix(stmt, ";")
		if idx := strings.Index(text[cursor:], body); idx >= 0 {
			line += strings.Count(text[:cursor+idx], "\n")
			cursor += idx + len(body)
		}
		l.result.Statements++
		err := l.sess.Exec(ctx, stmt)
		if err != nil && l.resume && isAlreadyExists(err) {
			log.Debugf("already applied %s: %v", l.location(line), err)
			l.result.AlreadyApplied++
			continue
		}
		if err != nil {
			l.result.Errors++
			l.logError(errs.NewExecuteDDLError(stmt, l.location(line), err))
		}
	}
}

func (l *dumpLoader) copyBlock(ctx context.Context, br *bufio.Reader, header string) error {
	startLine := l.lineNo
	table := copyTableName(header)
	data := &copyDataReader{r: br}
	if l.skipCopyOf != nil && l.skipCopyOf.Contains(table) {
		if derr := data.drain(); derr != nil {
			return fmt.Errorf("read copy data of %s: %w", l.location(startLine), derr)
		}
		l.advance(data)
		log.Infof("skipping copy into %s, loaded by an earlier run", table)
		l.result.CopyBlocksSkipped++
		return nil
	}
	n, err := l.sess.CopyFrom(ctx, data, header)
	if derr := data.drain(); derr != nil {
		return fmt.Errorf("read copy data of %s: %w", l.location(startLine), derr)
	}
	l.advance(data)
	l.result.CopyBlocks++
	if err != nil {
		l.result.Errors++
		l.logError(errs.NewCopyBlockError(table, startLine, err))
		return nil
	}
	l.result.RowsCopied += n
	if l.onCopyDone != nil {
		if err := l.onCopyDone(table); err != nil {
			return fmt.Errorf("record copy into %s: %w", table, err)
		}
	}
	return nil
}

func (l *dumpLoader) advance(data *copyDataReader) {
	l.lineNo += data.lines
	if data.terminated {
		l.lineNo++
	}
}

func (l *dumpLoader) location(line int) string {
	return fmt.Sprintf("%s:%d", l.sourceName, line)
}

func (l *dumpLoader) logError(err error) {
	log.Errorf("load %s: %v", l.sourceName, err)
	_, werr := fmt.Fprintf(l.errLog, "ERROR: %v\n\n", err)
	if werr != nil {
		log.Warnf("write to error log: %v", werr)
	}
}

func isCopyFromStdin(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "COPY ") && strings.HasSuffix(line, "FROM stdin;")
}

// atStatementBoundary reports whether text, ignoring comment lines, is empty
// or ends with a semicolon that closes a statement. A semicolon inside an
// unterminated quote, e.g. in a dollar quoted function body, does not.
func atStatementBoundary(text string) bool {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if !strings.HasSuffix(line, ";") {
			return false
		}
		_, err := queryparser.SplitStatements(text)
		return err == nil
	}
	return true
}

// copyTableName extracts the table from "COPY public.orders (id, note) FROM stdin;".
func copyTableName(header string) string {
	rest := strings.TrimPrefix(header, "COPY ")
	if i := strings.Index(rest, " ("); i >= 0 {
		return rest[:i]
	}
	if i := strings.Index(rest, " FROM"); i >= 0 {
		return rest[:i]
	}
	return rest
}

// copyDataReader yields the data lines of one COPY block and stops at the
// `\.` terminator without consuming anything after it.
type copyDataReader struct {
	r          *bufio.Reader
	buf        []byte
	lines      int
	done       bool
	terminated bool
}

func (c *copyDataReader) Read(p []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.done {
			return 0, io.EOF
		}
		line, err := c.r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return 0, err
		}
		if len(line) == 0 && err == io.EOF {
			c.done = true
			return 0, io.ErrUnexpectedEOF
		}
		if bytes.Equal(bytes.TrimRight(line, "\r\n"), []byte(`\.`)) {
			c.done = true
			c.terminated = true
			continue
		}
		c.lines++
		c.buf = line
		if err == io.EOF {
			c.done = true
		}
	}
	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

// drain skips whatever the COPY did not consume, e.g. after the server rejected a row.
func (c *copyDataReader) drain() error {
	c.buf = nil
	buf := make([]byte, 32*1024)
	for {
		_, err := c.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			return fmt.Errorf("copy block is missing its terminator")
		}
		if err != nil {
			return err
		}
	}
}

type progressReader struct {
	r     io.Reader
	total int64
	fn    func(int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.total += int64(n)
	p.fn(p.total)
	return n, err
}
