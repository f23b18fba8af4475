// Package text normalizes model output before it is sent to a chat.
package text

import (
	"regexp"
	"strings"
)

var (
	controlChars  = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
	inlineSpace   = regexp.MustCompile(`[ \t]+`)
	invisibleRepl = strings.NewReplacer(
		"\u2060", "",
		"\uFEFF", "",
		"\u00AD", "",
		"\u200E", "",
		"\u200F", "",
		"\u200B", "",
		"\u2028", "\n",
		"\u2029", "\n\n",
		"\u00A0", " ",
		"\u202F", " ",
		"\u2009", " ",
		"\u3000", " ",
	)
)

// Clean drops control and invisible characters, collapses runs of spaces
// within a line and of blank lines, and trims the result. Line structure is
// otherwise kept.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = invisibleRepl.Replace(s)
	s = controlChars.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
	}
	s = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}

// TrimLabel removes one leading speaker label such as "Me:" that models
// sometimes echo from a transcript. Labels match case-insensitively.
func TrimLabel(s string, labels ...string) string {
	trimmed := strings.TrimLeft(s, " \t")
	for _, label := range labels {
		if len(trimmed) >= len(label) && strings.EqualFold(trimmed[:len(label)], label) {
			return strings.TrimSpace(trimmed[len(label):])
		}
	}
	return s
}
