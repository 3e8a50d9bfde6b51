// Package persistence stores simulation state in SQLite and in compressed
// snapshot files.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/oops"
	_ "modernc.org/sqlite"

	"github.com/talgya/offscreen/internal/agents"
	"github.com/talgya/offscreen/internal/engine"
)

// Error codes.
const (
	CodeStorage = "STORAGE_FAILURE"
	CodeNoState = "NO_SAVED_STATE"
	CodeCorrupt = "CORRUPT_SNAPSHOT"
)

// DB wraps a SQLite connection for simulation state.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, oops.Code(CodeStorage).With("path", path).Wrapf(err, "open db")
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, oops.Code(CodeStorage).With("path", path).Wrapf(err, "migrate")
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		sim_time REAL NOT NULL,
		created_at TEXT NOT NULL,
		actors INTEGER NOT NULL,
		pending INTEGER NOT NULL,
		state BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS actors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		faction TEXT NOT NULL,
		node TEXT NOT NULL,
		alive INTEGER NOT NULL,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL UNIQUE,
		time REAL NOT NULL,
		actor TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
	CREATE INDEX IF NOT EXISTS idx_actors_node ON actors(node);
	CREATE INDEX IF NOT EXISTS idx_snapshots_time ON snapshots(sim_time);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveActors writes every actor to the database (full replace).
func (db *DB) SaveActors(list []*engine.ActorState) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM actors"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO actors
		(id, name, role, faction, node, alive, state_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, st := range list {
		a := st.Actor
		stateJSON, err := json.Marshal(st)
		if err != nil {
			return oops.Code(CodeStorage).With("actor", a.ID).Wrapf(err, "encode actor")
		}
		alive := 0
		if a.Active() {
			alive = 1
		}
		if _, err := stmt.Exec(
			string(a.ID), a.Name, a.Role.String(), string(a.Faction), string(a.Node()),
			alive, string(stateJSON),
		); err != nil {
			return oops.Code(CodeStorage).With("actor", a.ID).Wrapf(err, "insert actor")
		}
	}

	return tx.Commit()
}

// SaveEvents appends log entries with a sequence number above the last one
// saved.
func (db *DB) SaveEvents(events []engine.LogEntry) error {
	if len(events) == 0 {
		return nil
	}
	var since int64
	if v, err := db.GetMeta("last_event_seq"); err == nil {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = n
		}
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// A log that ends below the saved mark comes from a new world.
	if events[len(events)-1].Seq < since {
		if _, err := tx.Exec("DELETE FROM events"); err != nil {
			return err
		}
		since = 0
	}

	latest := since
	for _, e := range events {
		if e.Seq <= since {
			continue
		}
		_, err := tx.Exec(
			"INSERT INTO events (seq, time, actor, description, category) VALUES (?, ?, ?, ?, ?)",
			e.Seq, e.Time, string(e.Actor), e.Description, e.Category,
		)
		if err != nil {
			return err
		}
		if e.Seq > latest {
			latest = e.Seq
		}
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		"last_event_seq", strconv.FormatInt(latest, 10),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ResetEvents drops the saved event log, for a world started over.
func (db *DB) ResetEvents() error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM world_meta WHERE key = ?", "last_event_seq"); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

// SaveState performs a full save: a compressed snapshot row, the inspection
// tables, and the pointer to the latest snapshot. Returns the save id.
func (db *DB) SaveState(sim *engine.Simulation) (string, error) {
	st, err := sim.Snapshot()
	if err != nil {
		return "", err
	}
	blob, err := Encode(st)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	_, err = db.conn.Exec(
		`INSERT INTO snapshots (id, sim_time, created_at, actors, pending, state) VALUES (?, ?, ?, ?, ?, ?)`,
		id, st.Scheduler.Clock, time.Now().UTC().Format(time.RFC3339), len(st.Actors), len(st.Scheduler.Events), blob,
	)
	if err != nil {
		return "", oops.Code(CodeStorage).With("save_id", id).Wrapf(err, "insert snapshot")
	}

	views := make([]*engine.ActorState, 0, len(st.Actors))
	for _, a := range sim.Actors() {
		v, err := sim.StateOf(a.ID)
		if err != nil {
			return "", err
		}
		views = append(views, &v)
	}
	if err := db.SaveActors(views); err != nil {
		return "", oops.Code(CodeStorage).Wrapf(err, "save actors")
	}
	if err := db.SaveEvents(st.Events); err != nil {
		return "", oops.Code(CodeStorage).Wrapf(err, "save events")
	}
	if err := db.SaveMeta("latest_snapshot", id); err != nil {
		return "", oops.Code(CodeStorage).Wrapf(err, "save meta")
	}
	if err := db.SaveMeta("sim_time", strconv.FormatFloat(st.Scheduler.Clock, 'g', -1, 64)); err != nil {
		return "", oops.Code(CodeStorage).Wrapf(err, "save meta")
	}

	slog.Info("simulation state saved",
		"save_id", id,
		"time", engine.SimTime(st.Scheduler.Clock),
		"actors", len(st.Actors),
		"pending", len(st.Scheduler.Events),
		"size", humanize.Bytes(uint64(len(blob))),
	)
	return id, nil
}

// HasState reports whether any snapshot has been saved.
func (db *DB) HasState() bool {
	_, err := db.GetMeta("latest_snapshot")
	return err == nil
}

// LoadState returns the most recently saved snapshot and its id.
func (db *DB) LoadState() (string, engine.State, error) {
	id, err := db.GetMeta("latest_snapshot")
	if errors.Is(err, sql.ErrNoRows) {
		return "", engine.State{}, oops.Code(CodeNoState).Errorf("no saved state")
	}
	if err != nil {
		return "", engine.State{}, oops.Code(CodeStorage).Wrapf(err, "read meta")
	}
	st, err := db.LoadSnapshot(id)
	return id, st, err
}

// LoadSnapshot returns a specific saved snapshot.
func (db *DB) LoadSnapshot(id string) (engine.State, error) {
	var blob []byte
	err := db.conn.Get(&blob, "SELECT state FROM snapshots WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.State{}, oops.Code(CodeNoState).With("save_id", id).Errorf("no snapshot %s", id)
	}
	if err != nil {
		return engine.State{}, oops.Code(CodeStorage).With("save_id", id).Wrapf(err, "read snapshot")
	}
	return Decode(blob)
}

// SnapshotInfo describes a saved snapshot.
type SnapshotInfo struct {
	ID        string  `db:"id" json:"id"`
	SimTime   float64 `db:"sim_time" json:"sim_time"`
	CreatedAt string  `db:"created_at" json:"created_at"`
	Actors    int     `db:"actors" json:"actors"`
	Pending   int     `db:"pending" json:"pending"`
}

// Snapshots lists saved snapshots, newest first.
func (db *DB) Snapshots(limit int) ([]SnapshotInfo, error) {
	var out []SnapshotInfo
	err := db.conn.Select(&out,
		"SELECT id, sim_time, created_at, actors, pending FROM snapshots ORDER BY sim_time DESC, created_at DESC LIMIT ?",
		limit,
	)
	return out, err
}

// RecentEvents returns the most recent N log entries, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.LogEntry, error) {
	var rows []struct {
		Seq         int64   `db:"seq"`
		Time        float64 `db:"time"`
		Actor       string  `db:"actor"`
		Description string  `db:"description"`
		Category    string  `db:"category"`
	}
	err := db.conn.Select(&rows,
		"SELECT seq, time, actor, description, category FROM events ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]engine.LogEntry, len(rows))
	for i, r := range rows {
		out[i] = engine.LogEntry{
			Seq:         r.Seq,
			Time:        r.Time,
			Actor:       agents.ActorID(r.Actor),
			Description: r.Description,
			Category:    r.Category,
		}
	}
	return out, nil
}
