// Package privacy scrubs configured patterns from mirrored text.
package privacy

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder replaces every redacted match.
const Placeholder = "[redacted]"

// Compile compiles redaction patterns. Blank entries are skipped; a pattern
// that matches the empty string is rejected because it would redact between
// every character.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %d %q: %w", i, p, err)
		}
		if re.MatchString("") {
			return nil, fmt.Errorf("redact pattern %d %q matches empty text", i, p)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply replaces all matches of patterns in text with Placeholder.
func Apply(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		text = re.ReplaceAllLiteralString(text, Placeholder)
	}
	return text
}
