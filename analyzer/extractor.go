package analyzer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract reads the SEO tags out of an HTML document. It never fails: markup
// goquery cannot make sense of simply yields empty fields.
func Extract(html string) Metadata {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Metadata{}
	}

	metas := collectMeta(doc)
	return Metadata{
		Title:              clean(doc.Find("title").First().Text()),
		Description:        metas["description"],
		OGTitle:            metas["og:title"],
		OGDescription:      metas["og:description"],
		OGImage:            metas["og:image"],
		TwitterTitle:       metas["twitter:title"],
		TwitterDescription: metas["twitter:description"],
		TwitterImage:       metas["twitter:image"],
		Canonical:          canonicalHref(doc),
		Robots:             metas["robots"],
		Viewport:           metas["viewport"],
	}
}

// collectMeta maps lowercased name/property keys to the content of the first
// meta tag carrying them.
func collectMeta(doc *goquery.Document) map[string]string {
	metas := make(map[string]string)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		content = clean(content)
		if content == "" {
			return
		}
		for _, attr := range []string{"name", "property"} {
			key, ok := s.Attr(attr)
			if !ok {
				continue
			}
			key = strings.ToLower(strings.TrimSpace(key))
			if _, seen := metas[key]; key != "" && !seen {
				metas[key] = content
			}
		}
	})
	return metas
}

func canonicalHref(doc *goquery.Document) string {
	var href string
	doc.Find("link[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		for _, r := range strings.Fields(strings.ToLower(rel)) {
			if r == "canonical" {
				href = clean(s.AttrOr("href", ""))
				return href == ""
			}
		}
		return true
	})
	return href
}

// clean collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
