package capture

import (
	"bytes"
	"unicode/utf8"
)

// DefaultMaxLineBytes 单行最大字节数，超出部分按一行冲刷
const DefaultMaxLineBytes = 4096

// Framer 把字节流切分为以 '\n' 结尾的行，去掉行尾 '\r'。
// 超长内容在不超过 max 的字符边界处切开，每段作为一行输出
type Framer struct {
	buf []byte
	max int
}

func NewFramer(maxLineBytes int) *Framer {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	return &Framer{max: maxLineBytes}
}

// Feed 追加数据，每得到一行完整数据调用一次 emit。emit 收到的切片只在回调内有效
func (f *Framer) Feed(p []byte, emit func(line []byte)) {
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			f.buf = append(f.buf, p...)
			f.flushOverlong(emit)
			return
		}

		f.buf = append(f.buf, p[:idx]...)
		p = p[idx+1:]
		f.flushOverlong(emit)
		emit(bytes.TrimSuffix(f.buf, []byte{'\r'}))
		f.buf = f.buf[:0]
	}
}

// flushOverlong 输出超过 max 的部分，缓冲中最多留下 max 字节
func (f *Framer) flushOverlong(emit func(line []byte)) {
	for len(f.buf) > f.max {
		cut := f.cutPoint()
		emit(f.buf[:cut])
		f.buf = append(f.buf[:0], f.buf[cut:]...)
	}
}

// cutPoint 在 max 之前最近的 UTF-8 字符起点处切开；
// 找不到（非 UTF-8 数据或 max 小于一个字符）时按字节切
func (f *Framer) cutPoint() int {
	for cut := f.max; cut > 0 && cut > f.max-utf8.UTFMax; cut-- {
		if utf8.RuneStart(f.buf[cut]) {
			return cut
		}
	}
	return f.max
}

// Reset 丢弃未完成的半行（重连后调用）
func (f *Framer) Reset() { f.buf = f.buf[:0] }

func (f *Framer) pending() int { return len(f.buf) }
