package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"standlog/internal/application/port"

	"github.com/redis/go-redis/v9"
)

// Repo 把遥测记录写入 Redis Stream，并通过 Pub/Sub 实时广播
type Repo struct {
	rdb         *redis.Client
	prefix      string
	ttl         time.Duration
	keySessions string // prefix + ":sessions"
	stream      string
	channel     string
}

type recordMsg struct {
	SessionID string  `json:"session_id"`
	Label     string  `json:"label"`
	Seq       uint64  `json:"seq"`
	Moment    float64 `json:"moment"`
	Thrust    float64 `json:"thrust"`
	RPM       int64   `json:"rpm"`
	Ts        int64   `json:"ts_ms"`
}

type sessionMsg struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	RecordPath string `json:"record_path"`
	LogPath    string `json:"log_path"`
	StartedMs  int64  `json:"started_ms"`
	EndedMs    int64  `json:"ended_ms,omitempty"`
}

func New(rdb *redis.Client, prefix string, ttl time.Duration, stream, channel string) *Repo {
	if strings.TrimSpace(prefix) == "" {
		prefix = "standlog"
	}
	if strings.TrimSpace(stream) == "" {
		stream = prefix + ":records"
	}
	if strings.TrimSpace(channel) == "" {
		channel = prefix + ":records:pub"
	}
	return &Repo{
		rdb:         rdb,
		prefix:      prefix,
		ttl:         ttl,
		keySessions: prefix + ":sessions",
		stream:      stream,
		channel:     channel,
	}
}

func (r *Repo) BeginSession(ctx context.Context, s port.CaptureSession) error {
	b, _ := json.Marshal(sessionMsg{
		ID:         s.ID,
		Label:      s.Label,
		RecordPath: s.RecordPath,
		LogPath:    s.LogPath,
		StartedMs:  s.StartedMs,
	})
	return r.putSession(ctx, s.ID, string(b))
}

func (r *Repo) EndSession(ctx context.Context, id string, endedMs int64) error {
	raw, err := r.rdb.HGet(ctx, r.keySessions, id).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	var s sessionMsg
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return err
	}
	s.EndedMs = endedMs
	b, _ := json.Marshal(s)
	return r.putSession(ctx, id, string(b))
}

func (r *Repo) putSession(ctx context.Context, id, payload string) error {
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keySessions, id, payload)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keySessions, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Repo) InsertRecord(ctx context.Context, rec port.StoredRecord) error {
	// 1) Stream: XADD <stream> * session label seq moment thrust rpm ts
	_, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"session_id": rec.SessionID,
			"label":      rec.Label,
			"seq":        rec.Seq,
			"moment":     rec.Moment,
			"thrust":     rec.Thrust,
			"rpm":        rec.RPM,
			"ts_ms":      rec.Ts,
		},
	}).Result()
	if err != nil {
		return err
	}

	// 2) PubSub: PUBLISH <channel> json
	b, _ := json.Marshal(recordMsg{
		SessionID: rec.SessionID,
		Label:     rec.Label,
		Seq:       rec.Seq,
		Moment:    rec.Moment,
		Thrust:    rec.Thrust,
		RPM:       rec.RPM,
		Ts:        rec.Ts,
	})
	return r.rdb.Publish(ctx, r.channel, string(b)).Err()
}

// Close 客户端由创建方关闭
func (r *Repo) Close() error { return nil }

var _ port.RecordRepository = (*Repo)(nil)
