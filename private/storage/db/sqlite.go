// Copyright 2025 ETH Zurich, Anapaya Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"context"
	"database/sql"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/netfab/switchd/pkg/private/serrors"
)

type Reader interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Stats() sql.DBStats
}

// SqliteConfig allows configuring the sqlite database instance.
type SqliteConfig struct {
	MaxOpenReadConns int
	MaxIdleReadConns int
	InMemory         bool
}

// NewSqlite opens a sqlite database with a read and a write connection pool.
// The write pool is limited to a single connection. The read pool defaults to
// one connection per CPU, at least 4.
//
// Sqlite.Full can be used for any operation, including transactions.
// Sqlite.ReadOnly must only be used for reads.
func NewSqlite(path string, cfg *SqliteConfig) (*Sqlite, error) {
	c := SqliteConfig{}
	if cfg != nil {
		c = *cfg
	}

	// With a shared cache, :memory: would let all connections of the process
	// see the same database.
	if strings.Contains(path, ":memory:") {
		return nil, serrors.New("use explicitly named memory database", "path", path)
	}
	noFile, ok := strings.CutPrefix(path, "file:")

	connParams := make(url.Values)
	// Deferred transactions upgraded to writes fail with SQLITE_BUSY without
	// honoring busy_timeout.
	connParams.Add("_txlock", "immediate")
	connParams.Add("_pragma", "journal_mode(WAL)")
	// Milliseconds.
	connParams.Add("_pragma", "busy_timeout(1000)")
	// WAL mode is safe from corruption with synchronous=NORMAL.
	connParams.Add("_pragma", "synchronous(NORMAL)")
	connParams.Add("_pragma", "foreign_keys(1)")
	if c.InMemory {
		registerMemoryDB(noFile)
		connParams.Add("mode", "memory")
		// The read and write pools share the in-memory database.
		connParams.Add("cache", "shared")
	}

	connURL := path + "?" + connParams.Encode()
	if !ok {
		connURL = "file:" + connURL
	}

	write, err := sql.Open("sqlite", connURL)
	if err != nil {
		return nil, serrors.Wrap("opening write database", err, "path", path)
	}
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", connURL)
	if err != nil {
		defer write.Close()
		return nil, serrors.Wrap("opening read database", err, "path", path)
	}
	if c.MaxOpenReadConns == 0 {
		c.MaxOpenReadConns = max(4, runtime.NumCPU())
	}
	read.SetMaxOpenConns(c.MaxOpenReadConns)
	if c.MaxIdleReadConns != 0 {
		read.SetMaxIdleConns(c.MaxIdleReadConns)
	}

	db := &Sqlite{
		Full:     write,
		ReadOnly: read,
	}
	if c.InMemory {
		runtime.AddCleanup(db, func(name string) { unregisterMemoryDB(name) }, noFile)
	}
	return db, nil
}

type Sqlite struct {
	Full     *sql.DB
	ReadOnly Reader
}

// Setup applies schema to an empty database and records schemaVersion in
// PRAGMA user_version. An existing database must carry schemaVersion.
func (db *Sqlite) Setup(ctx context.Context, schema string, schemaVersion int) error {
	var existing int
	err := db.Full.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&existing)
	if err != nil {
		return NewReadError("checking schema version", err)
	}
	switch {
	case existing == 0:
		if _, err := db.Full.ExecContext(ctx, schema); err != nil {
			return NewWriteError("applying schema", err)
		}
		// PRAGMA does not support bound parameters.
		q := "PRAGMA user_version = " + strconv.Itoa(schemaVersion)
		if _, err := db.Full.ExecContext(ctx, q); err != nil {
			return NewWriteError("writing schema version", err)
		}
		return nil
	case existing != schemaVersion:
		return serrors.JoinNoStack(ErrSchemaMismatch, nil,
			"expected", schemaVersion, "actual", existing)
	default:
		return nil
	}
}

// Checkpoint runs a WAL checkpoint with FULL mode on the write database.
func (db *Sqlite) Checkpoint(ctx context.Context) (CheckpointStats, error) {
	return Checkpoint(ctx, db.Full, "FULL")
}

type CheckpointStats struct {
	Busy         int
	LogFrames    int
	Checkpointed int
}

// Checkpoint runs a WAL checkpoint with the given mode (PASSIVE, FULL,
// RESTART, TRUNCATE) and returns the counters reported by sqlite.
func Checkpoint(ctx context.Context, db *sql.DB, mode string) (CheckpointStats, error) {
	var st CheckpointStats
	query := "PRAGMA wal_checkpoint(" + mode + ");"
	err := db.QueryRowContext(ctx, query).Scan(&st.Busy, &st.LogFrames, &st.Checkpointed)
	if err != nil {
		return CheckpointStats{}, serrors.Wrap("performing checkpoint", err, "mode", mode)
	}
	return st, nil
}

func (db *Sqlite) Close() error {
	var errs serrors.List
	if err := db.Full.Close(); err != nil {
		errs = append(errs, serrors.Wrap("closing write db", err))
	}
	if err := db.ReadOnly.(*sql.DB).Close(); err != nil {
		errs = append(errs, serrors.Wrap("closing read db", err))
	}
	return errs.ToError()
}

// memoryDBCheck prevents two in-memory databases with the same name, which
// would silently share their content.
var memoryDBCheck = struct {
	mtx sync.Mutex
	dbs map[string]struct{}
}{
	dbs: make(map[string]struct{}),
}

func registerMemoryDB(name string) {
	memoryDBCheck.mtx.Lock()
	defer memoryDBCheck.mtx.Unlock()
	if _, ok := memoryDBCheck.dbs[name]; ok {
		panic("memory database with name " + name + " already exists")
	}
	memoryDBCheck.dbs[name] = struct{}{}
}

func unregisterMemoryDB(name string) {
	memoryDBCheck.mtx.Lock()
	defer memoryDBCheck.mtx.Unlock()
	delete(memoryDBCheck.dbs, name)
}
