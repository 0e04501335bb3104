package crawler

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minReadabilityExcerpt mirrors the teacher's cleaner.ExtractContent
// fallback threshold: below this we trust the page's own <meta> tags
// (or lack thereof) over a readability guess.
const minReadabilityExcerpt = 20

// fallbackDescription runs Readability against html when the page's own
// meta description is empty, grounded on the teacher's
// cleaner.ExtractContent fallback-on-failure pattern (adapted here to
// fall back FROM empty meta TO readability, the reverse direction of the
// teacher's "readability then raw HTML" chain).
func fallbackDescription(pageURL, html string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return ""
	}
	excerpt := strings.TrimSpace(article.Excerpt)
	if len(excerpt) < minReadabilityExcerpt {
		return ""
	}
	return excerpt
}
