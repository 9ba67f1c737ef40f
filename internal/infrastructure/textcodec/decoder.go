package textcodec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeError 一行字节无法按流编码解码
type DecodeError struct {
	Encoding string
	Len      int
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %d bytes as %s: %v", e.Len, e.Encoding, e.Err)
	}
	return fmt.Sprintf("decode %d bytes as %s: invalid byte sequence", e.Len, e.Encoding)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decoder 将一行原始字节解码为文本
type Decoder interface {
	Decode(b []byte) (string, error)
	Name() string
}

// New 按 WHATWG 编码名创建解码器（utf-8、windows-1251、koi8-r ...）。
// 空名称等同 utf-8
func New(name string) (Decoder, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return utf8Decoder{}, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	canonical, _ := htmlindex.Name(enc)
	if canonical == "utf-8" {
		return utf8Decoder{}, nil
	}
	return &charsetDecoder{name: canonical, enc: enc}, nil
}

type utf8Decoder struct{}

func (utf8Decoder) Name() string { return "utf-8" }

func (utf8Decoder) Decode(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", &DecodeError{Encoding: "utf-8", Len: len(b)}
	}
	return string(b), nil
}

type charsetDecoder struct {
	name string
	enc  encoding.Encoding
}

func (d *charsetDecoder) Name() string { return d.name }

func (d *charsetDecoder) Decode(b []byte) (string, error) {
	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", &DecodeError{Encoding: d.name, Len: len(b), Err: err}
	}
	s := string(out)
	if strings.ContainsRune(s, utf8.RuneError) {
		return "", &DecodeError{Encoding: d.name, Len: len(b)}
	}
	return s, nil
}
