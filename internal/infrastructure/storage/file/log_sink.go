package file

import "standlog/internal/application/port"

// LogSink 追加原始文本行到日志文件
type LogSink struct {
	locks pathLocks
}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Inspect(path string) (State, error) { return Inspect(path) }

func (s *LogSink) Writable(path string) error { return Writable(path) }

func (s *LogSink) Prepare(path string, truncate bool) error { return Prepare(path, truncate) }

func (s *LogSink) Append(path, line string) error {
	return s.locks.appendWith(path, func(int64) []byte {
		return []byte(line + "\n")
	})
}

var _ port.LogSink = (*LogSink)(nil)
