package importer

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// htmlTagPattern matches the block and inline tags typical of pasted recipe pages.
var htmlTagPattern = regexp.MustCompile(`<(html|body|article|section|p|br|div|span|b|i|strong|em|a|ul|ol|li|table|tr|td|h[1-6])[\s>/]`)

func containsHTML(s string) bool {
	return htmlTagPattern.MatchString(strings.ToLower(s))
}

// prepareText converts pasted HTML to Markdown so the model sees list and
// heading structure instead of markup. Plain text is only trimmed.
func prepareText(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !containsHTML(s) {
		return s
	}

	markdown, err := htmltomarkdown.ConvertString(s)
	if err != nil {
		return s
	}
	return strings.TrimSpace(markdown)
}
