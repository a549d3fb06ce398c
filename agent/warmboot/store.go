// Copyright 2024 Anapaya Systems
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

// Package warmboot persists snapshots of the committed switch state so that
// the agent can restore it after a restart.
//
// Snapshots are stored in the typed encoding and keyed by the generation of
// the state they were taken from.
package warmboot

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/netfab/switchd/agent/state"
	"github.com/netfab/switchd/pkg/private/serrors"
	"github.com/netfab/switchd/private/storage/db"
)

const (
	// SchemaVersion is the version of the SQLite schema understood by this
	// store. Whenever the schema changes, this number must be increased.
	SchemaVersion = 1
	// Schema is the SQLite database layout.
	Schema = `CREATE TABLE Snapshots(
		Generation INTEGER NOT NULL,
		Written INTEGER NOT NULL,
		Data BLOB NOT NULL,
		PRIMARY KEY (Generation)
	);`
)

// ErrNotFound indicates that the store does not contain any snapshot.
var ErrNotFound = errors.New("no warm-boot snapshot")

// Snapshot is a restored state.
type Snapshot struct {
	Generation uint64
	Written    time.Time
	// State is not published.
	State *state.SwitchState
}

// Store is the warm-boot database.
type Store struct {
	db  *db.Sqlite
	now func() time.Time
}

// New opens the store at path, creating the schema if the database is new.
func New(ctx context.Context, path string, cfg *db.SqliteConfig) (*Store, error) {
	sqlite, err := db.NewSqlite(path, cfg)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Setup(ctx, Schema, SchemaVersion); err != nil {
		sqlite.Close()
		return nil, serrors.Wrap("setting up warm-boot db", err, "path", path)
	}
	return &Store{db: sqlite, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a snapshot of st. An existing snapshot of the same generation
// is replaced.
func (s *Store) Save(ctx context.Context, st *state.SwitchState) error {
	raw, err := state.EncodeTyped(st)
	if err != nil {
		return db.NewInputDataError("encoding state", err, "generation", st.Generation())
	}
	return s.insert(ctx, st.Generation(), raw)
}

// ImportLegacy converts a legacy JSON state document and stores it as
// snapshot. It returns the generation of the imported state.
func (s *Store) ImportLegacy(ctx context.Context, raw []byte) (uint64, error) {
	typed, err := state.MigrateLegacyToTyped(raw)
	if err != nil {
		return 0, db.NewInputDataError("migrating legacy state", err)
	}
	st, err := state.DecodeTyped(typed)
	if err != nil {
		return 0, db.NewInputDataError("decoding migrated state", err)
	}
	if err := s.insert(ctx, st.Generation(), typed); err != nil {
		return 0, err
	}
	return st.Generation(), nil
}

func (s *Store) insert(ctx context.Context, gen uint64, raw []byte) error {
	const query = `INSERT OR REPLACE INTO Snapshots (Generation, Written, Data)
		VALUES (?, ?, ?)`
	_, err := s.db.Full.ExecContext(ctx, query, int64(gen), s.now().UnixNano(), raw)
	if err != nil {
		return db.NewWriteError("inserting snapshot", err, "generation", gen)
	}
	return nil
}

// Latest returns the snapshot with the highest generation. ErrNotFound is
// returned if the store is empty.
func (s *Store) Latest(ctx context.Context) (Snapshot, error) {
	const query = `SELECT Generation, Written, Data FROM Snapshots
		ORDER BY Generation DESC LIMIT 1`
	var (
		gen     int64
		written int64
		raw     []byte
	)
	err := s.db.ReadOnly.QueryRowContext(ctx, query).Scan(&gen, &written, &raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Snapshot{}, ErrNotFound
	case err != nil:
		return Snapshot{}, db.NewReadError("reading latest snapshot", err)
	}
	st, err := state.DecodeTyped(raw)
	if err != nil {
		return Snapshot{}, db.NewDataError("decoding snapshot", err, "generation", gen)
	}
	return Snapshot{
		Generation: uint64(gen),
		Written:    time.Unix(0, written),
		State:      st,
	}, nil
}

// Generations returns the generations of all stored snapshots in ascending
// order.
func (s *Store) Generations(ctx context.Context) ([]uint64, error) {
	rows, err := s.db.ReadOnly.QueryContext(ctx,
		"SELECT Generation FROM Snapshots ORDER BY Generation")
	if err != nil {
		return nil, db.NewReadError("listing snapshots", err)
	}
	defer rows.Close()
	var gens []uint64
	for rows.Next() {
		var gen int64
		if err := rows.Scan(&gen); err != nil {
			return nil, db.NewReadError("scanning snapshot", err)
		}
		gens = append(gens, uint64(gen))
	}
	if err := rows.Err(); err != nil {
		return nil, db.NewReadError("listing snapshots", err)
	}
	return gens, nil
}

// Prune deletes all but the keep newest snapshots and returns the number of
// deleted snapshots.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	const query = `DELETE FROM Snapshots WHERE Generation NOT IN
		(SELECT Generation FROM Snapshots ORDER BY Generation DESC LIMIT ?)`
	res, err := s.db.Full.ExecContext(ctx, query, max(keep, 0))
	if err != nil {
		return 0, db.NewWriteError("pruning snapshots", err, "keep", keep)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, db.NewWriteError("pruning snapshots", err, "keep", keep)
	}
	return int(n), nil
}
