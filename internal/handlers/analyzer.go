package handlers

import (
	"context"
	"math"
	"strings"
)

const (
	StatusCompliant          = "compliant"
	StatusPartiallyCompliant = "partially_compliant"
	StatusNonCompliant       = "non_compliant"

	compliantScore = 80
	partialScore   = 50

	maxExcerpt = 200
)

type Finding struct {
	RequirementID string `json:"requirement_id"`
	Section       string `json:"section,omitempty"`
	Excerpt       string `json:"excerpt"`
}

type Evidence struct {
	CriteriaID string    `json:"criteria_id"`
	Findings   []Finding `json:"findings"`
}

type Assessment struct {
	CriteriaID string   `json:"criteria_id"`
	Score      int      `json:"score"`
	Status     string   `json:"status"`
	Met        []string `json:"met"`
	Gaps       []string `json:"gaps"`
}

// Analyzer is the judgement behind the extract and score workers. Production
// deployments back it with a language model; KeywordAnalyzer is the
// deterministic built-in.
type Analyzer interface {
	FindEvidence(ctx context.Context, doc ParsedDocument, c Criterion) (Evidence, error)
	Assess(ctx context.Context, doc ParsedDocument, ev Evidence, c Criterion) (Assessment, error)
}

// StatusForScore maps a 0-100 score to a compliance status.
func StatusForScore(score int) string {
	switch {
	case score >= compliantScore:
		return StatusCompliant
	case score >= partialScore:
		return StatusPartiallyCompliant
	default:
		return StatusNonCompliant
	}
}

// KeywordAnalyzer matches requirement keywords case-insensitively against
// every section of a document.
type KeywordAnalyzer struct{}

func (KeywordAnalyzer) FindEvidence(ctx context.Context, doc ParsedDocument, c Criterion) (Evidence, error) {
	ev := Evidence{CriteriaID: c.ID, Findings: []Finding{}}
	for _, req := range c.Requirements {
		if err := ctx.Err(); err != nil {
			return Evidence{}, err
		}
		if f, ok := findRequirement(doc, req); ok {
			ev.Findings = append(ev.Findings, f)
		}
	}
	return ev, nil
}

func (KeywordAnalyzer) Assess(ctx context.Context, doc ParsedDocument, ev Evidence, c Criterion) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}

	found := make(map[string]bool, len(ev.Findings))
	for _, f := range ev.Findings {
		found[f.RequirementID] = true
	}

	a := Assessment{CriteriaID: c.ID, Met: []string{}, Gaps: []string{}}
	for _, req := range c.Requirements {
		if found[req.ID] {
			a.Met = append(a.Met, req.ID)
		} else {
			a.Gaps = append(a.Gaps, req.ID)
		}
	}
	if len(c.Requirements) > 0 {
		a.Score = int(math.Round(100 * float64(len(a.Met)) / float64(len(c.Requirements))))
	}
	a.Status = StatusForScore(a.Score)
	return a, nil
}

func findRequirement(doc ParsedDocument, req Requirement) (Finding, bool) {
	for _, s := range doc.Sections {
		lower := strings.ToLower(s.Body)
		for _, kw := range req.Keywords {
			idx := strings.Index(lower, strings.ToLower(kw))
			if idx < 0 {
				continue
			}
			return Finding{
				RequirementID: req.ID,
				Section:       s.Title,
				Excerpt:       excerpt(s.Body, idx),
			}, true
		}
	}
	return Finding{}, false
}

// excerpt returns the paragraph of body around byte offset idx, truncated
// to maxExcerpt runes.
func excerpt(body string, idx int) string {
	idx = min(idx, len(body))
	start := strings.LastIndex(body[:idx], "\n\n")
	if start < 0 {
		start = 0
	} else {
		start += 2
	}
	end := strings.Index(body[idx:], "\n\n")
	if end < 0 {
		end = len(body)
	} else {
		end += idx
	}

	runes := []rune(body[start:end])
	if len(runes) > maxExcerpt {
		return string(runes[:maxExcerpt]) + "..."
	}
	return string(runes)
}
