package notes

import (
	"fmt"
	"strings"

	"github.com/kuitang/studynotes/internal/highlight"
)

// PreviewWords is the number of words shown in list previews.
const PreviewWords = 24

// ContentPreview returns the first maxWords words of content's plain text,
// appending "..." if truncated.
func ContentPreview(content string, maxWords int) string {
	tokens := highlight.Tokenize(content)
	if maxWords <= 0 || len(tokens) <= maxWords {
		return highlight.PlainText(content)
	}
	words := make([]string, maxWords)
	for i := range words {
		words[i] = tokens[i].Text
	}
	return strings.Join(words, " ") + " ..."
}

// CountTokens returns the number of highlightable tokens in content.
func CountTokens(content string) int {
	return len(highlight.Tokenize(content))
}

// FormatTokens formats content one token per line, cat -n style, numbered
// by highlight index. Highlighted tokens are marked with '*' after the tab.
// Line numbers are 6-char right-justified followed by a TAB.
// If start >= 0 and end >= start, only tokens in that inclusive index range
// are returned; end = -1 means the last token.
// Returns the formatted string and total token count of the content.
func FormatTokens(content string, hs []highlight.Highlight, start, end int) (string, int) {
	tokens := highlight.Tokenize(content)
	total := len(tokens)
	if total == 0 {
		return "", 0
	}

	rangeStart := max(start, 0)
	rangeEnd := total - 1
	if end >= 0 && end < rangeEnd {
		rangeEnd = end
	}
	if rangeStart > rangeEnd {
		return "", total
	}

	marked := highlight.Pairs(hs)
	var b strings.Builder
	for i := rangeStart; i <= rangeEnd; i++ {
		if i > rangeStart {
			b.WriteByte('\n')
		}
		tok := tokens[i]
		mark := ""
		if marked[highlight.Pair{Word: highlight.Normalize(tok.Text), Index: tok.Index}] {
			mark = "*"
		}
		fmt.Fprintf(&b, "%6d\t%s%s", tok.Index, mark, tok.Text)
	}
	return b.String(), total
}
