package port

import (
	"context"

	"standlog/internal/domain/telemetry"
)

// CaptureSession 一次采集会话的描述
type CaptureSession struct {
	ID         string
	Label      string
	RecordPath string
	LogPath    string
	StartedMs  int64
}

// StoredRecord 写入镜像存储的一条遥测记录
type StoredRecord struct {
	SessionID string
	Label     string
	Seq       uint64
	Ts        int64 // unix ms
	telemetry.Record
}

// RecordRepository 遥测记录的镜像存储（sqlite / redis / postgres）
type RecordRepository interface {
	BeginSession(ctx context.Context, s CaptureSession) error
	InsertRecord(ctx context.Context, r StoredRecord) error
	EndSession(ctx context.Context, id string, endedMs int64) error

	Close() error
}
