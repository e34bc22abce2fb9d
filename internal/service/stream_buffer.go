package service

import (
	"strings"
	"unicode"
)

// streamBuffer 在流式输出时把模型分片重组为以空白边界对齐的片段，
// 保证不会在单词中间切开下发。
type streamBuffer struct {
	pending strings.Builder
}

func newStreamBuffer() *streamBuffer {
	return &streamBuffer{}
}

// Push 追加一个模型分片，返回当前可以安全下发的前缀。
// 只有最后一个空白符之前的内容会被释放，其余留在缓冲区等待后续分片。
func (b *streamBuffer) Push(fragment string) string {
	b.pending.WriteString(fragment)
	buf := b.pending.String()

	// 找到最后一个空白字符，空白之后的部分可能是被截断的单词
	cut := -1
	for i, r := range buf {
		if unicode.IsSpace(r) {
			cut = i + len(string(r))
		}
	}
	if cut < 0 {
		return ""
	}

	completed := buf[:cut]
	rest := buf[cut:]
	b.pending.Reset()
	b.pending.WriteString(rest)
	return completed
}

// Flush 返回流结束后仍滞留在缓冲区的尾部片段。
// 纯空白的尾部会被丢弃，ok 为 false。
func (b *streamBuffer) Flush() (string, bool) {
	rest := b.pending.String()
	b.pending.Reset()
	if strings.TrimSpace(rest) == "" {
		return "", false
	}
	return rest, true
}
