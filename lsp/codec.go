package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// MaxFrameBytes 单帧正文上限，超过时视为协议错误
const MaxFrameBytes = 64 << 20

var (
	headerSeparator     = []byte("\r\n\r\n")
	contentLengthHeader = regexp.MustCompile(`(?i)Content-Length:\s*(\d+)`)
)

// Encode 编码一条消息：Content-Length 头 + UTF-8 JSON 正文
func Encode(msg any) ([]byte, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	payload := bytes.TrimSuffix(body.Bytes(), []byte("\n"))

	frame := make([]byte, 0, len(payload)+32)
	frame = append(frame, "Content-Length: "...)
	frame = strconv.AppendInt(frame, int64(len(payload)), 10)
	frame = append(frame, headerSeparator...)
	frame = append(frame, payload...)
	return frame, nil
}

// FrameCodec 增量帧解码器
//
// Feed 只解码已缓冲的完整帧，不完整的帧留在内部缓冲区等待下一块数据。
// 非 JSON 正文直接丢弃，不影响后续帧。FrameCodec 不是并发安全的，
// 只应由读取 stdout 的 goroutine 使用。
type FrameCodec struct {
	buf     []byte
	dropped int
}

// NewFrameCodec 创建帧解码器
func NewFrameCodec() *FrameCodec {
	return &FrameCodec{}
}

// Feed 追加一块字节并返回其中完整的消息
//
// 帧头缺少 Content-Length 或长度超过 MaxFrameBytes 时返回 *FramingError，
// 此前已解码的消息仍然返回。
func (c *FrameCodec) Feed(chunk []byte) ([]*Message, error) {
	c.buf = append(c.buf, chunk...)

	var (
		out      []*Message
		consumed int
	)
	defer func() {
		if consumed > 0 {
			c.buf = append(c.buf[:0], c.buf[consumed:]...)
		}
	}()

	for {
		pending := c.buf[consumed:]
		sep := bytes.Index(pending, headerSeparator)
		if sep < 0 {
			return out, nil
		}

		header := pending[:sep]
		match := contentLengthHeader.FindSubmatch(header)
		if match == nil {
			return out, &FramingError{Header: string(header)}
		}
		length, err := strconv.Atoi(string(match[1]))
		if err != nil || length > MaxFrameBytes {
			return out, &FramingError{Header: string(header), Reason: "content length exceeds limit"}
		}

		start := sep + len(headerSeparator)
		if len(pending)-start < length {
			return out, nil
		}

		body := pending[start : start+length]
		consumed += start + length

		var msg Message
		if err := json.Unmarshal(body, &msg); err != nil {
			c.dropped++
			continue
		}
		out = append(out, &msg)
	}
}

// Buffered 返回尚未解码的字节数
func (c *FrameCodec) Buffered() int {
	return len(c.buf)
}

// Dropped 返回因正文非法而丢弃的帧数
func (c *FrameCodec) Dropped() int {
	return c.dropped
}
