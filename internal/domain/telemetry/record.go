package telemetry

import (
	"strconv"
	"strings"
)

// Header 记录文件的表头行
const Header = "Moment;Thrust;RPM"

// Delimiter 记录文件的字段分隔符
const Delimiter = ";"

// Record 一次测量: 力矩、推力、转速
type Record struct {
	Moment float64 `json:"moment"`
	Thrust float64 `json:"thrust"`
	RPM    int64   `json:"rpm"`
}

// Row 序列化为一行记录（不含换行符）
func (r Record) Row() string {
	var sb strings.Builder
	sb.WriteString(formatFloat(r.Moment))
	sb.WriteString(Delimiter)
	sb.WriteString(formatFloat(r.Thrust))
	sb.WriteString(Delimiter)
	sb.WriteString(strconv.FormatInt(r.RPM, 10))
	return sb.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
