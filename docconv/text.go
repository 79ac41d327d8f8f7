package docconv

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// convertText handles plain text and markdown. Content passes through with
// line endings normalized; markdown keeps its markup so downstream chunking
// can use heading structure.
func convertText(in Input, format Format) (*Result, error) {
	if !utf8.Valid(in.Data) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrCorruptInput)
	}
	content := normalizeNewlines(string(in.Data))
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoTextExtracted
	}

	title := firstLine(content)
	if format == FormatMarkdown {
		if h := firstHeading(content); h != "" {
			title = h
		}
	}
	return &Result{
		Title:       title,
		Content:     content,
		ChunkSource: in.Name,
	}, nil
}

// firstHeading returns the text of the first ATX heading, if any.
func firstHeading(md string) string {
	for _, line := range strings.Split(md, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		h := strings.TrimSpace(strings.TrimRight(strings.TrimLeft(trimmed, "#"), "#"))
		if h != "" {
			return h
		}
	}
	return ""
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)
	if len(text) > 200 {
		cut := 200
		// Back up to a rune boundary so the title stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
