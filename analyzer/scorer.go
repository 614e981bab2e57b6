package analyzer

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

const (
	titleMinLen       = 30
	titleMaxLen       = 60
	descriptionMinLen = 120
	descriptionMaxLen = 160
)

// scorecard accumulates penalties, issues and tag verdicts.
type scorecard struct {
	score  int
	issues []Issue
	tags   []TagReport
}

func (s *scorecard) issue(penalty int, typ IssueType, format string, args ...any) {
	s.score -= penalty
	s.issues = append(s.issues, Issue{Type: typ, Message: fmt.Sprintf(format, args...)})
}

func (s *scorecard) tag(name, content string, status TagStatus, recommendation string) {
	s.tags = append(s.tags, TagReport{
		Name:           name,
		Content:        content,
		Status:         status,
		Recommendation: recommendation,
	})
}

// Score grades the metadata of one page. It is pure: equal inputs always give
// equal scorecards, issues and tags in the same order.
func Score(m Metadata) Scorecard {
	s := &scorecard{score: 100}

	scoreTitle(s, m.Title)
	scoreDescription(s, m.Description)
	scoreOpenGraph(s, m)
	scoreTwitter(s, m)
	scoreCanonical(s, m.Canonical, m.PageURL)
	scoreRobots(s, m.Robots)
	scoreViewport(s, m.Viewport)

	return Scorecard{
		Score:  min(max(s.score, 0), 100),
		Issues: s.issues,
		Tags:   s.tags,
	}
}

func scoreTitle(s *scorecard, title string) {
	n := utf8.RuneCountInString(title)
	switch {
	case title == "":
		s.issue(20, IssueError, "Missing title tag")
		s.tag("title", "", StatusMissing, "Add a <title> of 30 to 60 characters")
	case n < titleMinLen:
		s.issue(10, IssueWarning, "Title is too short (%d characters)", n)
		s.tag("title", title, StatusWarning, "Lengthen the title to at least 30 characters")
	case n > titleMaxLen:
		s.issue(5, IssueWarning, "Title is too long (%d characters)", n)
		s.tag("title", title, StatusWarning, "Shorten the title to at most 60 characters")
	default:
		s.issue(0, IssueSuccess, "Title length is optimal (%d characters)", n)
		s.tag("title", title, StatusGood, "")
	}
}

func scoreDescription(s *scorecard, desc string) {
	n := utf8.RuneCountInString(desc)
	switch {
	case desc == "":
		s.issue(20, IssueError, "Missing meta description")
		s.tag("description", "", StatusMissing, "Add a meta description of 120 to 160 characters")
	case n < descriptionMinLen || n > descriptionMaxLen:
		s.issue(5, IssueWarning, "Meta description length is not optimal (%d characters)", n)
		s.tag("description", desc, StatusWarning, "Keep the meta description between 120 and 160 characters")
	default:
		s.issue(0, IssueSuccess, "Meta description length is optimal (%d characters)", n)
		s.tag("description", desc, StatusGood, "")
	}
}

func scoreOpenGraph(s *scorecard, m Metadata) {
	og := []struct {
		name, content string
		penalty       int
	}{
		{"og:title", m.OGTitle, 5},
		{"og:description", m.OGDescription, 5},
		{"og:image", m.OGImage, 10},
	}

	complete := true
	for _, t := range og {
		if t.content == "" {
			complete = false
			s.issue(t.penalty, IssueWarning, "Missing %s tag", t.name)
			s.tag(t.name, "", StatusMissing, fmt.Sprintf("Add a %s tag for link previews", t.name))
			continue
		}
		s.tag(t.name, t.content, StatusGood, "")
	}
	if complete {
		s.issue(0, IssueSuccess, "Open Graph tags are complete")
	}
}

func scoreTwitter(s *scorecard, m Metadata) {
	tw := []struct {
		name, content, fallback string
	}{
		{"twitter:title", m.TwitterTitle, m.OGTitle},
		{"twitter:description", m.TwitterDescription, m.OGDescription},
		{"twitter:image", m.TwitterImage, m.OGImage},
	}

	for _, t := range tw {
		switch {
		case t.content != "":
			s.tag(t.name, t.content, StatusGood, "")
		case t.fallback != "":
			s.tag(t.name, "", StatusWarning, fmt.Sprintf("Open Graph value is used; add %s to control it", t.name))
		default:
			s.issue(3, IssueWarning, "Missing %s tag", t.name)
			s.tag(t.name, "", StatusMissing, fmt.Sprintf("Add a %s tag", t.name))
		}
	}
}

func scoreCanonical(s *scorecard, canonical, pageURL string) {
	if canonical == "" {
		s.issue(10, IssueWarning, "Missing canonical link")
		s.tag("canonical", "", StatusMissing, "Add a <link rel=\"canonical\"> pointing at the preferred URL")
		return
	}

	u, err := url.Parse(canonical)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		s.issue(5, IssueWarning, "Canonical URL is not absolute")
		s.tag("canonical", canonical, StatusWarning, "Use an absolute http(s) URL for the canonical link")
		return
	}
	if pageURL != "" && !sameSite(u.Hostname(), pageURL) {
		s.issue(5, IssueWarning, "Canonical URL points to a different domain")
		s.tag("canonical", canonical, StatusWarning, "Point the canonical link at this site unless the duplicate is intentional")
		return
	}
	s.tag("canonical", canonical, StatusGood, "")
}

// sameSite reports whether host and the page share a registrable domain.
func sameSite(host, pageURL string) bool {
	page, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	a, errA := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(host))
	b, errB := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(page.Hostname()))
	if errA != nil || errB != nil {
		return strings.EqualFold(host, page.Hostname())
	}
	return a == b
}

func scoreRobots(s *scorecard, robots string) {
	if robots == "" {
		s.tag("robots", "", StatusMissing, "")
		return
	}
	directives := strings.FieldsFunc(strings.ToLower(robots), func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, directive := range directives {
		switch directive {
		case "noindex", "none":
			s.issue(15, IssueWarning, "Robots meta tag prevents indexing (%s)", robots)
			s.tag("robots", robots, StatusWarning, "Remove noindex if the page should appear in search results")
			return
		}
	}
	s.tag("robots", robots, StatusGood, "")
}

func scoreViewport(s *scorecard, viewport string) {
	if viewport == "" {
		s.issue(10, IssueWarning, "Missing viewport meta tag")
		s.tag("viewport", "", StatusMissing, "Add <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		return
	}
	compact := strings.ReplaceAll(strings.ToLower(viewport), " ", "")
	if !strings.Contains(compact, "width=device-width") {
		s.issue(5, IssueWarning, "Viewport does not set width=device-width")
		s.tag("viewport", viewport, StatusWarning, "Include width=device-width in the viewport")
		return
	}
	s.tag("viewport", viewport, StatusGood, "")
}
