// Package highlight addresses highlighted spans of note content by token
// position and keeps them attached to their words across edits.
//
// A highlight is the triple (word, index, id): word is the lowercased token
// text, index is the token's ordinal among the whitespace-delimited tokens
// of the content, and id is assigned once and never changes.
package highlight

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Token is one whitespace-delimited unit of content text.
type Token struct {
	Text  string
	Index int
}

// breakingTags end the current token; every other tag is transparent, so
// "<mark>cur</mark>ie" is the single token "curie".
var breakingTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"figcaption": true, "figure": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "td": true, "th": true,
	"tr": true, "ul": true,
}

// skippedTags have text content that is never part of the note body.
var skippedTags = map[string]bool{
	"script": true, "style": true, "template": true,
}

// Tokenize splits content into whitespace-delimited tokens. Markup tags are
// never tokens and character references are decoded. Index counts only
// tokens, starting at 0.
func Tokenize(content string) []Token {
	var tokens []Token
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tokens = append(tokens, Token{Text: cur.String(), Index: len(tokens)})
		cur.Reset()
	}

	skipDepth := 0
	z := html.NewTokenizer(strings.NewReader(content))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or malformed input; either way the content ends here.
			flush()
			return tokens
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			for _, r := range string(z.Text()) {
				if unicode.IsSpace(r) {
					flush()
					continue
				}
				cur.WriteRune(r)
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedTags[tag] {
				skipDepth++
			}
			if breakingTags[tag] {
				flush()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skippedTags[tag] && skipDepth > 0 {
				skipDepth--
			}
			if breakingTags[tag] {
				flush()
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if breakingTags[string(name)] {
				flush()
			}
		}
	}
}

// Normalize returns the highlight word for a token. Punctuation is kept;
// callers strip it before highlighting if they want it gone.
func Normalize(token string) string {
	return strings.ToLower(token)
}

// PlainText joins the content's tokens with single spaces.
func PlainText(content string) string {
	tokens := Tokenize(content)
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = tok.Text
	}
	return strings.Join(parts, " ")
}
