package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyDoc = `# Data Management Policy

Every dataset has a named data owner who approves access.

Records are   classified as public, internal or confidential.

## Security

Role-based access control is enforced for all systems.
Nightly backup jobs copy data to a second region.
`

func TestParse(t *testing.T) {
	doc, err := Parse(Document{Name: "policy.md", Content: policyDoc})
	require.NoError(t, err)

	assert.Equal(t, "policy.md", doc.Name)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "Data Management Policy", doc.Sections[0].Title)
	assert.Equal(t,
		"Every dataset has a named data owner who approves access.\n\nRecords are classified as public, internal or confidential.",
		doc.Sections[0].Body,
	)
	assert.Equal(t, "Security", doc.Sections[1].Title)
	assert.Equal(t,
		"Role-based access control is enforced for all systems. Nightly backup jobs copy data to a second region.",
		doc.Sections[1].Body,
	)
	assert.Equal(t, 35, doc.WordCount)
}

func TestParse_NoHeadings(t *testing.T) {
	doc, err := Parse(Document{Name: "notes.txt", Content: "first paragraph\n\nsecond one"})
	require.NoError(t, err)
	require.Len(t, doc.Sections, 1)
	assert.Empty(t, doc.Sections[0].Title)
	assert.Equal(t, "first paragraph\n\nsecond one", doc.Sections[0].Body)
	assert.Equal(t, 4, doc.WordCount)
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(Document{Name: "blank.md", Content: "  \n\t\n"})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestKeywordAnalyzer(t *testing.T) {
	doc, err := Parse(Document{Name: "policy.md", Content: policyDoc})
	require.NoError(t, err)
	catalog := DefaultCatalog()
	c, err := catalog.Get("data-governance")
	require.NoError(t, err)

	var a KeywordAnalyzer
	ev, err := a.FindEvidence(context.Background(), doc, c)
	require.NoError(t, err)
	assert.Equal(t, "data-governance", ev.CriteriaID)
	require.Len(t, ev.Findings, 2)
	assert.Equal(t, "dg-1", ev.Findings[0].RequirementID)
	assert.Equal(t, "Data Management Policy", ev.Findings[0].Section)
	assert.Equal(t, "Every dataset has a named data owner who approves access.", ev.Findings[0].Excerpt)
	assert.Equal(t, "dg-2", ev.Findings[1].RequirementID)

	got, err := a.Assess(context.Background(), doc, ev, c)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Score)
	assert.Equal(t, StatusPartiallyCompliant, got.Status)
	assert.Equal(t, []string{"dg-1", "dg-2"}, got.Met)
	assert.Equal(t, []string{"dg-3", "dg-4"}, got.Gaps)
}

func TestKeywordAnalyzer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var a KeywordAnalyzer
	_, err := a.FindEvidence(ctx, ParsedDocument{}, DefaultCatalog().criteria["cybersecurity"])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatusForScore(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{100, StatusCompliant},
		{80, StatusCompliant},
		{79, StatusPartiallyCompliant},
		{50, StatusPartiallyCompliant},
		{49, StatusNonCompliant},
		{0, StatusNonCompliant},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForScore(tt.score), "score %d", tt.score)
	}
}

func TestExcerpt_Truncates(t *testing.T) {
	body := strings.Repeat("word ", 100)
	got := excerpt(body, 10)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), maxExcerpt+3)
}

func TestCatalog(t *testing.T) {
	catalog := DefaultCatalog()
	assert.Equal(t, []string{"cybersecurity", "data-governance", "digital-services"}, catalog.IDs())

	_, err := catalog.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownCriteria)

	_, err = NewCatalog(
		Criterion{ID: "a", Requirements: []Requirement{{ID: "r", Keywords: []string{"x"}}}},
		Criterion{ID: "a", Requirements: []Requirement{{ID: "r", Keywords: []string{"x"}}}},
	)
	assert.ErrorContains(t, err, "duplicate criterion id")

	_, err = NewCatalog(Criterion{ID: "a", Requirements: []Requirement{{ID: "r"}}})
	assert.ErrorContains(t, err, "has no keywords")
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "criteria.yaml")
	content := `
criteria:
  - id: privacy
    title: Personal data protection
    requirements:
      - id: p-1
        description: Consent is recorded
        keywords: [consent]
      - id: p-2
        description: Subjects can request deletion
        keywords: [erasure, deletion]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"privacy"}, catalog.IDs())

	c, err := catalog.Get("privacy")
	require.NoError(t, err)
	assert.Equal(t, "Personal data protection", c.Title)
	require.Len(t, c.Requirements, 2)
	assert.Equal(t, []string{"erasure", "deletion"}, c.Requirements[1].Keywords)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("criteria: []\n"), 0600))
	_, err = LoadCatalog(empty)
	assert.ErrorContains(t, err, "defines no criteria")
}

type initAnalyzerStub struct {
	KeywordAnalyzer
	initErr error
	inits   int
}

func (s *initAnalyzerStub) Init(ctx context.Context) error {
	s.inits++
	return s.initErr
}

func buildWorkers(t *testing.T, analyzer Analyzer) map[string]*worker.Worker {
	t.Helper()

	reg := worker.NewRegistry()
	Register(reg, analyzer, DefaultCatalog())
	assert.Equal(t, []string{CategoryExtract, CategoryParse, CategoryScore}, reg.Categories())

	workers, err := reg.Build([]worker.Config{
		{ID: "parse-1", Category: CategoryParse, Timeout: time.Second},
		{ID: "extract-1", Category: CategoryExtract, Timeout: time.Second},
		{ID: "score-1", Category: CategoryScore, Timeout: time.Second},
	})
	require.NoError(t, err)

	out := make(map[string]*worker.Worker, len(workers))
	for _, w := range workers {
		out[w.Category()] = w
	}
	return out
}

func TestRegister_StagesChain(t *testing.T) {
	ctx := context.Background()
	workers := buildWorkers(t, KeywordAnalyzer{})

	parsed := workers[CategoryParse].Execute(ctx, Document{Name: "policy.md", Content: policyDoc})
	require.True(t, parsed.Success, "parse failed: %v", parsed.Err)
	doc := parsed.Data.(ParsedDocument)

	extracted := workers[CategoryExtract].Execute(ctx, ExtractInput{Document: doc, CriteriaID: "cybersecurity"})
	require.True(t, extracted.Success, "extract failed: %v", extracted.Err)
	ev := extracted.Data.(Evidence)
	assert.Len(t, ev.Findings, 2)

	scored := workers[CategoryScore].Execute(ctx, ScoreInput{Document: doc, Evidence: ev, CriteriaID: "cybersecurity"})
	require.True(t, scored.Success, "score failed: %v", scored.Err)
	a := scored.Data.(Assessment)
	assert.Equal(t, 50, a.Score)
	assert.Equal(t, []string{"cs-1", "cs-4"}, a.Met)
}

func TestRegister_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	workers := buildWorkers(t, KeywordAnalyzer{})

	res := workers[CategoryParse].Execute(ctx, "not a document")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, worker.ErrExecution)
	assert.ErrorContains(t, res.Err, "unexpected input type string")

	res = workers[CategoryExtract].Execute(ctx, ExtractInput{CriteriaID: "missing"})
	assert.ErrorIs(t, res.Err, ErrUnknownCriteria)

	res = workers[CategoryScore].Execute(ctx, ScoreInput{
		Evidence:   Evidence{CriteriaID: "cybersecurity"},
		CriteriaID: "data-governance",
	})
	assert.ErrorContains(t, res.Err, "cannot score")
}

func TestRegister_AnalyzerInit(t *testing.T) {
	stub := &initAnalyzerStub{initErr: errors.New("model unavailable")}
	workers := buildWorkers(t, stub)

	err := workers[CategoryExtract].Init(context.Background())
	assert.ErrorIs(t, err, worker.ErrInitialization)
	assert.False(t, workers[CategoryExtract].Ready())

	stub.initErr = nil
	require.NoError(t, workers[CategoryExtract].Init(context.Background()))
	assert.True(t, workers[CategoryExtract].Ready())
	assert.Equal(t, 2, stub.inits)
}

func TestDecodeInput(t *testing.T) {
	in, err := DecodeInput(CategoryParse, json.RawMessage(`{"name":"a.md","content":"# A"}`))
	require.NoError(t, err)
	assert.Equal(t, Document{Name: "a.md", Content: "# A"}, in)

	in, err = DecodeInput(CategoryExtract, json.RawMessage(`{"document":{"name":"a.md","sections":[{"body":"x"}],"word_count":1},"criteria_id":"cybersecurity"}`))
	require.NoError(t, err)
	ei := in.(ExtractInput)
	assert.Equal(t, "cybersecurity", ei.CriteriaID)
	assert.Equal(t, 1, ei.Document.WordCount)

	in, err = DecodeInput(CategoryScore, json.RawMessage(`{"evidence":{"criteria_id":"c","findings":[]},"criteria_id":"c"}`))
	require.NoError(t, err)
	assert.Equal(t, "c", in.(ScoreInput).Evidence.CriteriaID)

	_, err = DecodeInput(CategoryParse, json.RawMessage(`[1,2]`))
	assert.ErrorContains(t, err, "decode parse input")

	_, err = DecodeInput("translate", json.RawMessage(`{}`))
	assert.ErrorContains(t, err, "no input decoder")
}
