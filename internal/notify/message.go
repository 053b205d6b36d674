package notify

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage renders the published message: summary, italicized local
// publication time, canonical URL, and a category hashtag line. A smart
// category name containing a "/" (e.g. "deportes/futbol") is split into
// two hashtags.
func FormatMessage(summary string, publishedAt time.Time, loc *time.Location, url, smartCategory string) string {
	var categoryLine string
	if parent, child, ok := strings.Cut(smartCategory, "/"); ok {
		categoryLine = fmt.Sprintf("#%s #%s", hashtag(parent), hashtag(child))
	} else {
		categoryLine = "#" + hashtag(smartCategory)
	}

	return fmt.Sprintf("%s\n\n_%s_\n\n%s\n%s",
		summary,
		publishedAt.In(loc).Format("2006/01/02 15:04"),
		url,
		categoryLine,
	)
}

// hashtag replaces characters a hashtag token cannot contain (spaces and
// further slashes) with underscores.
func hashtag(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
