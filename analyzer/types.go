package analyzer

import "time"

// Metadata holds the SEO-relevant tags of one page. Empty means absent.
type Metadata struct {
	Title              string
	Description        string
	OGTitle            string
	OGDescription      string
	OGImage            string
	TwitterTitle       string
	TwitterDescription string
	TwitterImage       string
	Canonical          string
	Robots             string
	Viewport           string

	// PageURL is the final URL the document was served from. Extract leaves
	// it empty; the canonical domain check is skipped without it.
	PageURL string
}

type IssueType string

const (
	IssueError   IssueType = "error"
	IssueWarning IssueType = "warning"
	IssueSuccess IssueType = "success"
)

type Issue struct {
	Type    IssueType `json:"type"`
	Message string    `json:"message"`
}

type TagStatus string

const (
	StatusGood    TagStatus = "good"
	StatusWarning TagStatus = "warning"
	StatusMissing TagStatus = "missing"
)

// TagReport is the verdict on a single tag.
type TagReport struct {
	Name           string    `json:"name"`
	Content        string    `json:"content"`
	Status         TagStatus `json:"status"`
	Recommendation string    `json:"recommendation,omitempty"`
}

// Scorecard is the output of Score.
type Scorecard struct {
	Score  int
	Issues []Issue
	Tags   []TagReport
}

// Report is the complete analysis of a webpage as returned by the API.
type Report struct {
	URL                string      `json:"url"`
	Title              string      `json:"title,omitempty"`
	Description        string      `json:"description,omitempty"`
	OGTitle            string      `json:"ogTitle,omitempty"`
	OGDescription      string      `json:"ogDescription,omitempty"`
	OGImage            string      `json:"ogImage,omitempty"`
	TwitterTitle       string      `json:"twitterTitle,omitempty"`
	TwitterDescription string      `json:"twitterDescription,omitempty"`
	TwitterImage       string      `json:"twitterImage,omitempty"`
	Canonical          string      `json:"canonical,omitempty"`
	Robots             string      `json:"robots,omitempty"`
	Viewport           string      `json:"viewport,omitempty"`
	Score              int         `json:"score"`
	Issues             []Issue     `json:"issues"`
	Tags               []TagReport `json:"tags"`
	AnalyzedAt         time.Time   `json:"analyzedAt"`
}
