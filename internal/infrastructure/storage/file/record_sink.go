package file

import (
	"standlog/internal/application/port"
	"standlog/internal/domain/telemetry"
)

// RecordSink 追加遥测记录到分号分隔的记录文件
type RecordSink struct {
	locks pathLocks
}

func NewRecordSink() *RecordSink { return &RecordSink{} }

func (s *RecordSink) Inspect(path string) (State, error) { return Inspect(path) }

func (s *RecordSink) Writable(path string) error { return Writable(path) }

func (s *RecordSink) Prepare(path string, truncate bool) error { return Prepare(path, truncate) }

// Append 写入一行记录；文件为 0 字节时同一次写入先写表头
func (s *RecordSink) Append(path string, rec telemetry.Record) error {
	row := rec.Row()
	return s.locks.appendWith(path, func(size int64) []byte {
		if size == 0 {
			return []byte(telemetry.Header + "\n" + row + "\n")
		}
		return []byte(row + "\n")
	})
}

var _ port.RecordSink = (*RecordSink)(nil)
