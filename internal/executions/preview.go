package executions

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agentoven/aigateway/pkg/models"
	"golang.org/x/net/html"
)

// Ellipsis marks a truncated preview.
const Ellipsis = "…"

// StripTags returns the text content of s with markup removed. The contents
// of script and style elements are dropped.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var (
		b    strings.Builder
		skip int
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			if isRawElement(z) {
				skip++
			}
		case html.EndTagToken:
			if isRawElement(z) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawElement(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style":
		return true
	}
	return false
}

// Preview returns s with markup stripped, trimmed, and cut to at most
// models.PreviewLimit characters including the ellipsis.
func Preview(s string) string {
	s = strings.TrimSpace(StripTags(s))
	if utf8.RuneCountInString(s) <= models.PreviewLimit {
		return s
	}
	runes := []rune(s)
	cut := strings.TrimRightFunc(string(runes[:models.PreviewLimit-1]), unicode.IsSpace)
	return cut + Ellipsis
}
