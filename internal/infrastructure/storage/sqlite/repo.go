package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"standlog/internal/application/port"
)

type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS capture_sessions (
  id TEXT PRIMARY KEY,
  label TEXT NOT NULL,
  record_path TEXT NOT NULL,
  log_path TEXT NOT NULL,
  started_ms INTEGER NOT NULL,
  ended_ms INTEGER,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_label ON capture_sessions(label);

CREATE TABLE IF NOT EXISTS telemetry_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  session_id TEXT NOT NULL,
  label TEXT NOT NULL,
  seq INTEGER NOT NULL,
  moment REAL NOT NULL,
  thrust REAL NOT NULL,
  rpm INTEGER NOT NULL,
  ts_ms INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_session ON telemetry_records(session_id);
CREATE INDEX IF NOT EXISTS idx_records_ts ON telemetry_records(ts_ms);
`)
	return err
}

func (r *Repo) BeginSession(ctx context.Context, s port.CaptureSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO capture_sessions(id, label, record_path, log_path, started_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		label=excluded.label, record_path=excluded.record_path, log_path=excluded.log_path, started_ms=excluded.started_ms
	`, s.ID, s.Label, s.RecordPath, s.LogPath, s.StartedMs, time.Now().UnixMilli())
	return err
}

func (r *Repo) InsertRecord(ctx context.Context, rec port.StoredRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO telemetry_records(session_id, label, seq, moment, thrust, rpm, ts_ms, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.SessionID, rec.Label, int64(rec.Seq), rec.Moment, rec.Thrust, rec.RPM, rec.Ts, time.Now().UnixMilli())
	return err
}

func (r *Repo) EndSession(ctx context.Context, id string, endedMs int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE capture_sessions SET ended_ms=? WHERE id=?`, endedMs, id)
	return err
}

// ListRecords 按到达顺序返回某次会话的记录
func (r *Repo) ListRecords(ctx context.Context, sessionID string) ([]port.StoredRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, label, seq, moment, thrust, rpm, ts_ms
		FROM telemetry_records WHERE session_id=? ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.StoredRecord
	for rows.Next() {
		var rec port.StoredRecord
		var seq int64
		if err := rows.Scan(&rec.SessionID, &rec.Label, &seq, &rec.Moment, &rec.Thrust, &rec.RPM, &rec.Ts); err != nil {
			return nil, err
		}
		rec.Seq = uint64(seq)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SessionEnded 返回会话结束时间；未结束时 ok 为 false
func (r *Repo) SessionEnded(ctx context.Context, id string) (endedMs int64, ok bool, err error) {
	var ended sql.NullInt64
	err = r.db.QueryRowContext(ctx, `SELECT ended_ms FROM capture_sessions WHERE id=?`, id).Scan(&ended)
	if err != nil {
		return 0, false, err
	}
	return ended.Int64, ended.Valid, nil
}

var _ port.RecordRepository = (*Repo)(nil)
