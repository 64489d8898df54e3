// Package testutil provides rapid generators for note titles and content.
//
// Content generators lean toward the inputs that break tokenizers and
// storage: editor markup, entities, odd whitespace, combining marks and
// very large bodies.
package testutil

import (
	"strings"

	"pgregory.net/rapid"
)

// ArbitraryNoteTitle generates titles: never blank, otherwise arbitrary.
func ArbitraryNoteTitle() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringN(1, 100, 400),
		rapid.StringMatching(`[A-Z][a-z]{2,12}( [A-Za-z0-9]{1,10}){0,4}`),
		studyText(),
		scriptText(),
	).Filter(func(s string) bool {
		return strings.TrimSpace(s) != ""
	})
}

// ArbitraryNoteContent generates note or tile bodies, empty included.
func ArbitraryNoteContent() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.String(),
		rapid.Just(""),
		rapid.StringMatching(`[a-z]{1,12}( [a-z]{1,12}){0,30}`),
		studyText(),
		editorMarkup(),
		scriptText(),
		spacing(),
		rapid.Custom(func(t *rapid.T) string {
			// Words glued by a random separator.
			words := rapid.SliceOfN(studyText(), 1, 8).Draw(t, "words")
			sep := spacing().Draw(t, "sep")
			return strings.Join(words, sep)
		}),
		bulkText(),
	)
}

// studyText is short plain prose of the kind notes are made of.
func studyText() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"Marie Curie discovered radium",
		"The mitochondria is the powerhouse of the cell.",
		"E = mc^2",
		"1898: polonium, then radium",
		"Photosynthesis (light + CO2 -> glucose)",
		"x-ray; half-life; isotope",
		"\"quoted\" and 'single-quoted' terms",
		"Curie, Curie, CURIE",
	})
}

// editorMarkup is rich text as the editor stores it, including the span
// markers that carry highlights.
func editorMarkup() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`<p>Marie Curie discovered radium</p>`,
		`<div><strong>1898</strong> <mark>radium</mark></div>`,
		`<p>one</p><p>two</p>`,
		`a<br>b<br/>c`,
		`<span class="highlight" data-id="x">cur</span>ie`,
		`<ul><li>first</li><li>second</li></ul>`,
		`<h2>Summary</h2><p>key <em>terms</em></p>`,
		`salt &amp; pepper &lt;3`,
		`<script>alert('x')</script>text`,
		`<p>unclosed`,
		`</div>stray close`,
		`<!-- comment -->after`,
	})
}

// scriptText covers non-Latin scripts and code points that are easy to
// mishandle when splitting or lowercasing.
func scriptText() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"光合作用 是 植物",
		"Μαρία Κιουρί",
		"Мария Кюри",
		"ماري كوري",
		"Zürich Ñoño",
		"a\u0300 e\u0301",
		"İstanbul ß",
		"🧪 radium 🔬",
		"\u202Ereversed\u202C",
		"\x00null\x00",
	})
}

// spacing is whitespace that may or may not separate tokens.
func spacing() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ", "  ", "\t", "\n", "\r\n", " \t\n ",
		"\u00A0", "\u2003", "\u3000", "\u200B", "\v", "\f",
	})
}

// bulkText is a repeated phrase sized up to the content limit.
func bulkText() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		size := rapid.SampledFrom([]int{1 << 10, 10 << 10, 100 << 10, 1 << 20}).Draw(t, "size")
		const phrase = "radium polonium "
		return strings.Repeat(phrase, size/len(phrase))
	})
}
