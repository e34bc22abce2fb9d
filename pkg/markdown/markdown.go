// Package markdown 将模型输出中受限的 markdown 子集转换为可直接展示的 HTML。
// 转换顺序是固定的：重复片段折叠 → 列表符号 → 加粗 → 斜体 → 标题 → 有序列表 → 换行。
// 加粗必须先于斜体处理，否则单星号规则会吞掉双星号对的一半。
package markdown

import (
	"regexp"
	"strings"
)

var (
	bulletRe  = regexp.MustCompile(`(?m)^\s*[-•]\s+`)
	boldRe    = regexp.MustCompile(`\*\*(.*?)\*\*`)
	headingRe = regexp.MustCompile(`#+\s*`)
	numberRe  = regexp.MustCompile(`(?m)^(\d+)\.\s+`)
)

// repeatMarker 标记已知的上游重复输出缺陷的起始短语。
const repeatMarker = "to turn on"

// FormatToHTML 对完整的模型输出做一次性归一化，返回安全的展示文本。
func FormatToHTML(text string) string {
	text = collapseRepeats(text)
	text = bulletRe.ReplaceAllString(text, "- ")
	text = boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	text = convertItalics(text)
	text = headingRe.ReplaceAllString(text, "")
	text = numberRe.ReplaceAllString(text, "$1. ")
	text = strings.ReplaceAll(text, "\n", "<br>")
	return strings.TrimSpace(text)
}

// collapseRepeats 将以 repeatMarker 开头、被紧邻重复一次以上的片段折叠为单次出现。
// Go 的 regexp 不支持反向引用，这里用扫描实现同样的语义（大小写不敏感，片段不跨行）。
func collapseRepeats(text string) string {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		// 大小写折叠改变了字节长度，放弃折叠以免错位
		return text
	}

	var b strings.Builder
	i := 0
	for i < len(text) {
		rel := strings.Index(lower[i:], repeatMarker)
		if rel < 0 {
			b.WriteString(text[i:])
			break
		}
		start := i + rel
		b.WriteString(text[i:start])

		blockLen, repeats := findRepeatedBlock(lower, start)
		if repeats == 0 {
			b.WriteString(text[start : start+len(repeatMarker)])
			i = start + len(repeatMarker)
			continue
		}
		b.WriteString(text[start : start+blockLen])
		i = start + blockLen*(repeats+1)
	}
	return b.String()
}

// findRepeatedBlock 返回从 start 开始、最短的被紧邻重复的片段长度及重复次数。
func findRepeatedBlock(lower string, start int) (int, int) {
	rest := len(lower) - start
	maxLen := rest / 2
	if nl := strings.IndexByte(lower[start:], '\n'); nl >= 0 && nl < maxLen {
		maxLen = nl
	}
	for l := len(repeatMarker); l <= maxLen; l++ {
		block := lower[start : start+l]
		n := 0
		for start+(n+2)*l <= len(lower) && lower[start+(n+1)*l:start+(n+2)*l] == block {
			n++
		}
		if n > 0 {
			return l, n
		}
	}
	return 0, 0
}

// convertItalics 将成对的单星号转换为 <em>。双星号及以上的星号串原样保留，
// 等价于带前后查找的单星号匹配规则。
func convertItalics(s string) string {
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '*' {
			b.WriteByte(s[i])
			i++
			continue
		}

		// 统计星号串长度，只有孤立的单星号才可能是斜体定界符
		runEnd := i
		for runEnd < len(s) && s[runEnd] == '*' {
			runEnd++
		}
		if runEnd-i != 1 {
			b.WriteString(s[i:runEnd])
			i = runEnd
			continue
		}

		closing := findClosingAsterisk(s, i+1)
		if closing < 0 {
			b.WriteByte('*')
			i++
			continue
		}
		b.WriteString("<em>")
		b.WriteString(s[i+1 : closing])
		b.WriteString("</em>")
		i = closing + 1
	}
	return b.String()
}

// findClosingAsterisk 从 from 开始查找下一个孤立单星号的位置，要求内容非空。
func findClosingAsterisk(s string, from int) int {
	k := from
	for k < len(s) {
		if s[k] != '*' {
			k++
			continue
		}
		runEnd := k
		for runEnd < len(s) && s[runEnd] == '*' {
			runEnd++
		}
		if runEnd-k == 1 && k > from {
			return k
		}
		k = runEnd
	}
	return -1
}
