package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Marker 遥测行的首字段
const Marker = "Момент"

const fieldSep = ":"

// 按 ":" 切分后载荷所在的位置
const (
	slotMoment = 1
	slotThrust = 3
	slotRPM    = 5
)

// Outcome 解析结果类型
type Outcome int

const (
	OutcomeRecord Outcome = iota
	OutcomeNotTelemetry
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecord:
		return "record"
	case OutcomeNotTelemetry:
		return "not_telemetry"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

var (
	ErrSlotMissing = errors.New("payload slot missing")
	ErrNotNumeric  = errors.New("payload not numeric")
)

// MalformedError 带标记但载荷损坏的行
type MalformedError struct {
	Slot string // moment / thrust / rpm
	Text string // 原始文本
	Err  error
}

func (e *MalformedError) Error() string {
	if errors.Is(e.Err, ErrSlotMissing) {
		return fmt.Sprintf("%s: %v", e.Slot, e.Err)
	}
	return fmt.Sprintf("%s: %v: %q", e.Slot, e.Err, e.Text)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Result 解析一行得到的结果；只有 Outcome == OutcomeRecord 时 Record 有效
type Result struct {
	Outcome Outcome
	Record  Record
	Err     *MalformedError
}

// Parse 解析一行遥测文本，例如
//
//	Момент: 12.5 : Сила: 3.2 : Обороты: 4500
//
// 不以 Marker 开头的行返回 OutcomeNotTelemetry；带标记但载荷缺失或非数字的行
// 返回 OutcomeMalformed。Parse 从不 panic。
func Parse(line string) Result {
	fields := strings.Split(strings.TrimSpace(line), fieldSep)
	if strings.TrimSpace(fields[0]) != Marker {
		return Result{Outcome: OutcomeNotTelemetry}
	}

	moment, merr := floatSlot(fields, slotMoment, "moment")
	if merr != nil {
		return malformed(merr)
	}
	thrust, merr := floatSlot(fields, slotThrust, "thrust")
	if merr != nil {
		return malformed(merr)
	}
	rpm, merr := floatSlot(fields, slotRPM, "rpm")
	if merr != nil {
		return malformed(merr)
	}
	if math.Abs(rpm) >= math.MaxInt64 {
		return malformed(&MalformedError{Slot: "rpm", Text: strings.TrimSpace(fields[slotRPM]), Err: ErrNotNumeric})
	}

	return Result{
		Outcome: OutcomeRecord,
		Record: Record{
			Moment: moment,
			Thrust: thrust,
			RPM:    int64(math.Trunc(rpm)),
		},
	}
}

func malformed(err *MalformedError) Result {
	return Result{Outcome: OutcomeMalformed, Err: err}
}

func floatSlot(fields []string, idx int, name string) (float64, *MalformedError) {
	if idx >= len(fields) {
		return 0, &MalformedError{Slot: name, Err: ErrSlotMissing}
	}
	text := strings.TrimSpace(fields[idx])
	if text == "" {
		return 0, &MalformedError{Slot: name, Err: ErrSlotMissing}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &MalformedError{Slot: name, Text: text, Err: ErrNotNumeric}
	}
	return v, nil
}
