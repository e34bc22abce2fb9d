// Package pipeline 实现了文档从原始文本到向量入库的处理链路。
package pipeline

import "strings"

// 递归切分的边界优先级：段落 > 行 > 句子 > 单词 > 硬切。
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// SplitText 把长文本递归切分为大小受限、相邻重叠的分块。
// 优先在自然边界处切分，只有在预算内找不到任何边界时才按字符硬切。
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = 0
	}
	return splitRecursive(text, defaultSeparators, chunkSize, chunkOverlap)
}

func splitRecursive(text string, separators []string, chunkSize, overlap int) []string {
	if runeLen(text) <= chunkSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	// 选择文本中实际出现的最高优先级分隔符
	sep := ""
	var rest []string
	for i, s := range separators {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}
	if sep == "" {
		return hardCut(text, chunkSize, overlap)
	}

	pieces := strings.SplitAfter(text, sep)

	var chunks []string
	var cur strings.Builder
	curLen := 0
	appended := false // 上次 emit 之后是否写入过新片段

	emit := func() {
		chunk := cur.String()
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
		// 保留尾部 overlap 个字符作为下一块的开头，维持上下文连续
		tail := lastRunes(chunk, overlap)
		cur.Reset()
		cur.WriteString(tail)
		curLen = runeLen(tail)
		appended = false
	}

	for _, piece := range pieces {
		pl := runeLen(piece)
		if pl > chunkSize {
			// 单个片段超出预算，降级到下一层分隔符递归处理
			if appended {
				emit()
			}
			cur.Reset()
			curLen = 0
			appended = false
			chunks = append(chunks, splitRecursive(piece, rest, chunkSize, overlap)...)
			continue
		}
		if appended && curLen+pl > chunkSize {
			emit()
		}
		// emit 后缓冲里只剩 overlap 尾部；尾部加新片段仍超预算时裁短尾部
		if !appended && curLen+pl > chunkSize {
			tail := lastRunes(cur.String(), chunkSize-pl)
			cur.Reset()
			cur.WriteString(tail)
			curLen = runeLen(tail)
		}
		cur.WriteString(piece)
		curLen += pl
		appended = true
	}

	if appended && strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, cur.String())
	}

	return chunks
}

// hardCut 按字符（rune）滑窗切分，无自然边界时的兜底。
func hardCut(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func runeLen(s string) int {
	return len([]rune(s))
}

func lastRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
