package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInput(t *testing.T) {
	chunks := SplitText("short text", 1000, 100)
	require.Equal(t, []string{"short text"}, chunks)
}

func TestSplitTextEmptyInput(t *testing.T) {
	require.Nil(t, SplitText("", 1000, 100))
	require.Nil(t, SplitText("   \n  ", 1000, 100))
}

func TestSplitTextRespectsSizeBudget(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("This is sentence number one. It talks about something. ")
	}
	text := sb.String()

	chunks := SplitText(text, 200, 20)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, len([]rune(c)), 200, "chunk exceeds size budget: %q", c)
	}
}

func TestSplitTextPrefersParagraphBoundaries(t *testing.T) {
	para1 := strings.Repeat("aaaa ", 20) // 100 字符
	para2 := strings.Repeat("bbbb ", 20)
	text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	chunks := SplitText(text, 120, 10)
	require.GreaterOrEqual(t, len(chunks), 2)
	// 切分落在段落边界：第一块只含第一段，第二段保持完整
	require.NotContains(t, chunks[0], "b")
	require.Contains(t, chunks[len(chunks)-1], strings.TrimSpace(para2))
}

func TestSplitTextOverlap(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("word ")
	}
	chunks := SplitText(strings.TrimSpace(sb.String()), 60, 12)
	require.Greater(t, len(chunks), 1)

	// 相邻分块有重叠：后一块以前一块的尾部 overlap 个字符开头
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-12:])
		require.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d does not start with the tail of chunk %d", i, i-1)
	}
}

// 片段本身接近预算上限时，携带的 overlap 尾部不能把下一块撑爆。
func TestSplitTextOverlapCarryStaysWithinBudget(t *testing.T) {
	text := strings.Repeat("a", 95) + ". " + strings.Repeat("b", 95)
	chunks := SplitText(text, 100, 10)

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		require.LessOrEqual(t, len([]rune(c)), 100, "chunk exceeds size budget: %q", c)
	}
	// 第二块保留第一块的部分尾部并包含完整的第二句
	require.Contains(t, chunks[1], strings.Repeat("b", 95))
	require.True(t, strings.HasPrefix(chunks[1], "a"))
}

func TestSplitTextHardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 250) // 无任何分隔符
	chunks := SplitText(text, 100, 10)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, len([]rune(c)), 100)
	}
	// 硬切不允许丢字符：去重叠后拼回原文
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		runes := []rune(chunks[i])
		rebuilt.WriteString(string(runes[10:]))
	}
	require.Equal(t, text, rebuilt.String())
}

func TestSplitTextMultibyte(t *testing.T) {
	text := strings.Repeat("汉", 150)
	chunks := SplitText(text, 100, 10)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, len([]rune(c)), 100)
		// 硬切必须落在 rune 边界上
		require.True(t, strings.HasPrefix(c, "汉"))
	}
}
