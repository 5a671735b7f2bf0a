package render

import (
	"html"
	"regexp"
	"strings"
)

var (
	// An optional angle bracket on either side lets already suppressed
	// URLs match, so wrapping twice yields the same output.
	urlRe     = regexp.MustCompile(`<?(https?://[^\s<>]+)>?`)
	escapedRe = regexp.MustCompile("\\\\([*_`~\\\\])")
	controlRe = regexp.MustCompile("([*_`~\\\\])")
)

// SuppressEmbeds wraps every URL in angle brackets so the destination does
// not expand it into a preview.
func SuppressEmbeds(text string) string {
	return urlRe.ReplaceAllString(text, "<$1>")
}

// EscapeMarkdown backslash-escapes the destination's markdown control
// characters. Already escaped characters are unescaped first, so the
// function is idempotent.
func EscapeMarkdown(text string) string {
	text = escapedRe.ReplaceAllString(text, "$1")
	return controlRe.ReplaceAllString(text, `\$1`)
}

// Sanitize suppresses embeds and escapes markdown everywhere except inside
// URLs, where a backslash would corrupt the link.
func Sanitize(text string) string {
	var b strings.Builder
	last := 0
	for _, loc := range urlRe.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(EscapeMarkdown(text[last:loc[0]]))
		b.WriteString("<")
		b.WriteString(text[loc[2]:loc[3]])
		b.WriteString(">")
		last = loc[1]
	}
	b.WriteString(EscapeMarkdown(text[last:]))
	return b.String()
}

// Quote prefixes every line with a block quote marker.
func Quote(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}

// The source API HTML-encodes &, < and > in post text.
func unescapeEntities(text string) string {
	return html.UnescapeString(text)
}
