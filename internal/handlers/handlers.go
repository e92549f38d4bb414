package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
)

const (
	CategoryParse   = "parse"
	CategoryExtract = "extract"
	CategoryScore   = "score"
)

type ExtractInput struct {
	Document   ParsedDocument `json:"document"`
	CriteriaID string         `json:"criteria_id"`
}

type ScoreInput struct {
	Document   ParsedDocument `json:"document"`
	Evidence   Evidence       `json:"evidence"`
	CriteriaID string         `json:"criteria_id"`
}

// Register installs the parse, extract and score workers. Parse is stateless
// and shared. Extract and score workers each get their own executor, so
// analyzer initialization runs per worker.
func Register(reg *worker.Registry, analyzer Analyzer, catalog *Catalog) {
	reg.RegisterExecutor(CategoryParse, worker.Typed(func(ctx context.Context, doc Document) (ParsedDocument, error) {
		return Parse(doc)
	}))
	reg.Register(CategoryExtract, func(worker.Config) (worker.Executor, error) {
		return &extractor{analyzer: analyzer, catalog: catalog}, nil
	})
	reg.Register(CategoryScore, func(worker.Config) (worker.Executor, error) {
		return &scorer{analyzer: analyzer, catalog: catalog}, nil
	})
}

type extractor struct {
	analyzer Analyzer
	catalog  *Catalog
}

func (e *extractor) Init(ctx context.Context) error {
	return initAnalyzer(ctx, e.analyzer)
}

func (e *extractor) Execute(ctx context.Context, input any) (any, error) {
	in, ok := input.(ExtractInput)
	if !ok {
		return nil, fmt.Errorf("unexpected input type %T", input)
	}
	c, err := e.catalog.Get(in.CriteriaID)
	if err != nil {
		return nil, err
	}
	return e.analyzer.FindEvidence(ctx, in.Document, c)
}

type scorer struct {
	analyzer Analyzer
	catalog  *Catalog
}

func (s *scorer) Init(ctx context.Context) error {
	return initAnalyzer(ctx, s.analyzer)
}

func (s *scorer) Execute(ctx context.Context, input any) (any, error) {
	in, ok := input.(ScoreInput)
	if !ok {
		return nil, fmt.Errorf("unexpected input type %T", input)
	}
	c, err := s.catalog.Get(in.CriteriaID)
	if err != nil {
		return nil, err
	}
	if in.Evidence.CriteriaID != "" && in.Evidence.CriteriaID != c.ID {
		return nil, fmt.Errorf("evidence for %s cannot score %s", in.Evidence.CriteriaID, c.ID)
	}
	return s.analyzer.Assess(ctx, in.Document, in.Evidence, c)
}

// Analyzers that hold remote clients may implement worker.Initializer.
func initAnalyzer(ctx context.Context, a Analyzer) error {
	if in, ok := a.(worker.Initializer); ok {
		return in.Init(ctx)
	}
	return nil
}

// DecodeInput converts a JSON payload into the typed input of category.
func DecodeInput(category string, raw json.RawMessage) (any, error) {
	var (
		in  any
		err error
	)
	switch category {
	case CategoryParse:
		var doc Document
		err = json.Unmarshal(raw, &doc)
		in = doc
	case CategoryExtract:
		var ei ExtractInput
		err = json.Unmarshal(raw, &ei)
		in = ei
	case CategoryScore:
		var si ScoreInput
		err = json.Unmarshal(raw, &si)
		in = si
	default:
		return nil, fmt.Errorf("no input decoder for category %q", category)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s input: %w", category, err)
	}
	return in, nil
}
