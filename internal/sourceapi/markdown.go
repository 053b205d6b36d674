package sourceapi

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultHTMLToMarkdown is a minimal, dependency-light reference
// implementation of HTMLToMarkdown built on goquery, the HTML parser
// already pulled in transitively by colly. It extracts the page <title> (or
// an og:title meta tag) and renders paragraph/heading text as flat
// markdown. Deployments that need the source's actual production
// formatting rules supply their own HTMLToMarkdown.
type DefaultHTMLToMarkdown struct {
	TitleSelector string
	BodySelector  string
}

// NewDefaultHTMLToMarkdown creates a converter using CSS selectors. Empty
// selectors fall back to generic tags (title, article p/h2/h3).
func NewDefaultHTMLToMarkdown(titleSelector, bodySelector string) *DefaultHTMLToMarkdown {
	return &DefaultHTMLToMarkdown{TitleSelector: titleSelector, BodySelector: bodySelector}
}

// Convert implements HTMLToMarkdown.
func (d *DefaultHTMLToMarkdown) Convert(html string) (title, markdown string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("markdown: parse html: %w", err)
	}

	title = d.extractTitle(doc)

	var parts []string
	bodySel := d.BodySelector
	if bodySel == "" {
		bodySel = "article p, article h2, article h3, p, h2, h3"
	}
	doc.Find(bodySel).Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		if goquery.NodeName(sel) == "h2" || goquery.NodeName(sel) == "h3" {
			parts = append(parts, "## "+text)
		} else {
			parts = append(parts, text)
		}
	})

	markdown = strings.Join(parts, "\n\n")
	if title == "" {
		return "", "", fmt.Errorf("markdown: no title found")
	}
	if markdown == "" {
		return "", "", fmt.Errorf("markdown: no body content found")
	}
	return title, markdown, nil
}

func (d *DefaultHTMLToMarkdown) extractTitle(doc *goquery.Document) string {
	if d.TitleSelector != "" {
		if t := strings.TrimSpace(doc.Find(d.TitleSelector).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
