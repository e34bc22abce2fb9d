package service

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
)

func collectFragments(fragments []string) []string {
	buf := newStreamBuffer()
	var out []string
	for _, f := range fragments {
		if completed := buf.Push(f); completed != "" {
			out = append(out, completed)
		}
	}
	if tail, ok := buf.Flush(); ok {
		out = append(out, tail)
	}
	return out
}

func TestStreamBufferRoundTrip(t *testing.T) {
	// 任意切片方式下，拼接输出必须与拼接输入一致
	cases := [][]string{
		{"Hello ", "world"},
		{"Hel", "lo wor", "ld!"},
		{"one two three"},
		{"a", "b", "c", " ", "d"},
		{"多字", "节内容 ", "也不能丢"},
		{"trailing space at end "},
	}
	for _, fragments := range cases {
		got := strings.Join(collectFragments(fragments), "")
		want := strings.Join(fragments, "")
		// 纯空白尾部允许被丢弃
		require.Equal(t, strings.TrimRight(want, " \t\n"), strings.TrimRight(got, " \t\n"))
	}
}

func TestStreamBufferNoMidWordSplit(t *testing.T) {
	fragments := []string{"The qui", "ck bro", "wn fox jum", "ps"}
	out := collectFragments(fragments)

	// 除最后一个片段外，每个下发片段都以空白结尾，
	// 即单词永远不会被切开
	for i, f := range out {
		if i == len(out)-1 {
			continue
		}
		last := []rune(f)[len([]rune(f))-1]
		require.True(t, unicode.IsSpace(last), "fragment %q does not end at a word boundary", f)
	}

	require.Equal(t, "The quick brown fox jumps", strings.Join(out, ""))
}

func TestStreamBufferHoldsPartialWord(t *testing.T) {
	buf := newStreamBuffer()

	// 没有空白时不下发任何内容
	require.Empty(t, buf.Push("Hel"))
	require.Empty(t, buf.Push("lo"))

	// 出现空白后，释放边界之前的全部内容
	require.Equal(t, "Hello ", buf.Push(" wor"))

	tail, ok := buf.Flush()
	require.True(t, ok)
	require.Equal(t, "wor", tail)
}

func TestStreamBufferFlushDropsWhitespaceOnlyTail(t *testing.T) {
	buf := newStreamBuffer()
	require.Equal(t, "done ", buf.Push("done "))

	_, ok := buf.Flush()
	require.False(t, ok)
}

func TestStreamBufferEmptyStream(t *testing.T) {
	buf := newStreamBuffer()
	_, ok := buf.Flush()
	require.False(t, ok)
}
