package port

import "standlog/internal/domain/telemetry"

// Console 实时显示面：收到的每一行都按到达顺序送达
type Console interface {
	// Publish 输出一行原始遥测文本
	Publish(line string)
	// Info 输出一行状态提示（已连接、采集开始等）
	Info(msg string)
	// Warn 输出一行诊断信息（解码失败、解析失败、设备错误等）
	Warn(msg string)
}

// FileState 目标文件状态
type FileState int

const (
	FileMissing FileState = iota
	FileEmpty
	FileNonEmpty
)

func (s FileState) String() string {
	switch s {
	case FileMissing:
		return "missing"
	case FileEmpty:
		return "empty"
	case FileNonEmpty:
		return "non-empty"
	default:
		return "unknown"
	}
}

// Target 可准备的采集目标文件
type Target interface {
	Inspect(path string) (FileState, error)
	// Writable 确认 path 可写（不存在时创建空文件），不修改已有内容
	Writable(path string) error
	Prepare(path string, truncate bool) error
}

// RecordSink 记录文件（表头 + 分号分隔行）
type RecordSink interface {
	Target
	Append(path string, rec telemetry.Record) error
}

// LogSink 原始行日志文件
type LogSink interface {
	Target
	Append(path, line string) error
}
