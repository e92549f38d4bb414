// Package pipeline chains the parse, extract and score workers into a single
// document audit.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/handlers"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/scheduler"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/task"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/tracing"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
)

// Submitter is the part of the scheduler the pipeline needs.
type Submitter interface {
	Submit(category string, input any, priority int) *scheduler.Future
}

// Report is the outcome of one document audit.
type Report struct {
	Document   string                  `json:"document"`
	CriteriaID string                  `json:"criteria_id"`
	Parsed     handlers.ParsedDocument `json:"parsed"`
	Evidence   handlers.Evidence       `json:"evidence"`
	Assessment handlers.Assessment     `json:"assessment"`
	Elapsed    time.Duration           `json:"elapsed"`
}

// StageError reports which stage aborted a run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type Option func(*Pipeline)

// WithPriority sets the priority of every task the pipeline submits.
func WithPriority(p int) Option {
	return func(pl *Pipeline) { pl.priority = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

type Pipeline struct {
	submitter Submitter
	priority  int
	logger    *slog.Logger
}

func New(submitter Submitter, opts ...Option) *Pipeline {
	p := &Pipeline{
		submitter: submitter,
		priority:  task.PriorityNormal,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

// Run audits doc against criteriaID. Each stage is an ordinary task; the
// first failing stage aborts the run and is named in the returned error.
func (p *Pipeline) Run(ctx context.Context, doc handlers.Document, criteriaID string) (report *Report, err error) {
	ctx, span := tracing.PipelineSpan(ctx, doc.Name, criteriaID)
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	logger := p.logger.With("document", doc.Name, "criteria_id", criteriaID)

	parsed, err := stage[handlers.ParsedDocument](ctx, p, handlers.CategoryParse, doc)
	if err != nil {
		logger.Warn("audit aborted", "err", err)
		return nil, err
	}

	evidence, err := stage[handlers.Evidence](ctx, p, handlers.CategoryExtract, handlers.ExtractInput{
		Document:   parsed,
		CriteriaID: criteriaID,
	})
	if err != nil {
		logger.Warn("audit aborted", "err", err)
		return nil, err
	}

	assessment, err := stage[handlers.Assessment](ctx, p, handlers.CategoryScore, handlers.ScoreInput{
		Document:   parsed,
		Evidence:   evidence,
		CriteriaID: criteriaID,
	})
	if err != nil {
		logger.Warn("audit aborted", "err", err)
		return nil, err
	}

	report = &Report{
		Document:   doc.Name,
		CriteriaID: criteriaID,
		Parsed:     parsed,
		Evidence:   evidence,
		Assessment: assessment,
		Elapsed:    time.Since(start),
	}
	logger.Info("audit completed", "score", assessment.Score, "status", assessment.Status, "elapsed", report.Elapsed)
	return report, nil
}

// RunAll audits docs concurrently, at most limit at a time (no bound when
// limit < 1). Reports keep the order of docs. The first failure cancels the
// remaining audits.
func (p *Pipeline) RunAll(ctx context.Context, docs []handlers.Document, criteriaID string, limit int) ([]*Report, error) {
	reports := make([]*Report, len(docs))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, doc := range docs {
		g.Go(func() error {
			r, err := p.Run(ctx, doc, criteriaID)
			if err != nil {
				return fmt.Errorf("audit %q: %w", doc.Name, err)
			}
			reports[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func stage[O any](ctx context.Context, p *Pipeline, category string, input any) (O, error) {
	var zero O

	if err := ctx.Err(); err != nil {
		return zero, &StageError{Stage: category, Err: err}
	}

	res, err := p.submitter.Submit(category, input, p.priority).Wait(ctx)
	if err != nil {
		return zero, &StageError{Stage: category, Err: err}
	}
	return decode[O](category, res)
}

func decode[O any](category string, res worker.Result) (O, error) {
	out, ok := res.Data.(O)
	if !ok {
		var zero O
		return zero, &StageError{Stage: category, Err: fmt.Errorf("unexpected result type %T", res.Data)}
	}
	return out, nil
}
