package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"standlog/internal/application/port"
)

// initTimeout 建表（包含首次连接）的最长等待
const initTimeout = 10 * time.Second

// Repo 把采集会话与遥测记录镜像到 Postgres
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	r := &Repo{db: db}
	if err := r.migrate(ctx); err != nil {
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
  started_ms BIGINT NOT NULL,
  ended_ms BIGINT
);
CREATE TABLE IF NOT EXISTS telemetry_records (
  id BIGSERIAL PRIMARY KEY,
  session_id TEXT NOT NULL,
  label TEXT NOT NULL,
  seq BIGINT NOT NULL,
  moment DOUBLE PRECISION NOT NULL,
  thrust DOUBLE PRECISION NOT NULL,
  rpm BIGINT NOT NULL,
  ts_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_session ON telemetry_records(session_id);
`)
	return err
}

func (r *Repo) BeginSession(ctx context.Context, s port.CaptureSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO capture_sessions(id, label, record_path, log_path, started_ms)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT(id) DO NOTHING
	`, s.ID, s.Label, s.RecordPath, s.LogPath, s.StartedMs)
	return err
}

func (r *Repo) InsertRecord(ctx context.Context, rec port.StoredRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO telemetry_records(session_id, label, seq, moment, thrust, rpm, ts_ms)
		VALUES($1, $2, $3, $4, $5, $6, $7)
	`, rec.SessionID, rec.Label, int64(rec.Seq), rec.Moment, rec.Thrust, rec.RPM, rec.Ts)
	return err
}

func (r *Repo) EndSession(ctx context.Context, id string, endedMs int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE capture_sessions SET ended_ms=$1 WHERE id=$2`, endedMs, id)
	return err
}

var _ port.RecordRepository = (*Repo)(nil)
