package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/handlers"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/logging"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/pipeline"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/scheduler"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/task"
	"github.com/ibrahem-io/wathba-dga-v2-sub000/internal/worker"
)

type Scheduler interface {
	Submit(category string, input any, priority int) *scheduler.Future
	Status() scheduler.Snapshot
	Reset(workerID string) error
}

// TaskStore is the read side of the task journal.
type TaskStore interface {
	Get(ctx context.Context, id string) (*task.Record, error)
	List(ctx context.Context) ([]*task.Record, error)
	Delete(ctx context.Context, id string) error
}

type Auditor interface {
	RunAll(ctx context.Context, docs []handlers.Document, criteriaID string, limit int) ([]*pipeline.Report, error)
}

// Decoder turns the JSON input of a task request into the value handed to
// the category's worker.
type Decoder func(category string, raw json.RawMessage) (any, error)

type Option func(*Handler)

// WithStore enables the /tasks read endpoints.
func WithStore(s TaskStore) Option {
	return func(h *Handler) { h.store = s }
}

func WithDecoder(d Decoder) Option {
	return func(h *Handler) { h.decode = d }
}

func WithAuditParallelism(n int) Option {
	return func(h *Handler) { h.auditLimit = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

type Handler struct {
	sched      Scheduler
	auditor    Auditor
	store      TaskStore
	decode     Decoder
	auditLimit int
	logger     *slog.Logger
}

func NewHandler(sched Scheduler, auditor Auditor, opts ...Option) *Handler {
	h := &Handler{
		sched:   sched,
		auditor: auditor,
		decode:  handlers.DecodeInput,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type CreateTaskRequest struct {
	Category string          `json:"category"`
	Input    json.RawMessage `json:"input"`
	Priority *int            `json:"priority,omitempty"`
	Wait     bool            `json:"wait"`
}

type TaskResponse struct {
	ID     string         `json:"id"`
	Status task.Status    `json:"status"`
	Result *worker.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type AuditRequest struct {
	Documents  []handlers.Document `json:"documents"`
	CriteriaID string              `json:"criteria_id"`
}

type AuditResponse struct {
	Reports []*pipeline.Report `json:"reports"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Category == "" {
		respondError(w, http.StatusBadRequest, "category is required")
		return
	}

	input, err := h.decode(req.Category, req.Input)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	priority := task.PriorityNormal
	if req.Priority != nil {
		priority = *req.Priority
	}

	f := h.sched.Submit(req.Category, input, priority)
	logging.FromContext(r.Context(), h.logger).Info("task accepted",
		"task_id", f.ID(),
		"category", req.Category,
		"priority", priority,
		"wait", req.Wait,
	)

	if !req.Wait {
		select {
		case <-f.Done():
			// Rejected at submission.
			if _, err := f.Wait(r.Context()); err != nil {
				h.respondTaskError(w, f.ID(), worker.Result{}, err)
				return
			}
		default:
		}
		respondJSON(w, http.StatusAccepted, TaskResponse{ID: f.ID(), Status: task.StatusQueued})
		return
	}

	res, err := f.Wait(r.Context())
	if err != nil {
		h.respondTaskError(w, f.ID(), res, err)
		return
	}
	respondJSON(w, http.StatusOK, TaskResponse{ID: f.ID(), Status: task.StatusCompleted, Result: &res})
}

func (h *Handler) respondTaskError(w http.ResponseWriter, id string, res worker.Result, err error) {
	resp := TaskResponse{ID: id, Status: task.StatusFailed, Error: err.Error()}
	status := http.StatusBadGateway

	switch {
	case errors.Is(err, scheduler.ErrUnknownCategory):
		status = http.StatusBadRequest
	case errors.Is(err, scheduler.ErrManagerShutdown):
		status = http.StatusServiceUnavailable
		resp.Status = task.StatusCancelled
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		resp.Status = task.StatusQueued
	case errors.Is(err, scheduler.ErrRetriesExhausted):
		resp.Result = &res
	}

	respondJSON(w, status, resp)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotFound, "task journal disabled")
		return
	}

	id := chi.URLParam(r, "id")

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if rec == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotFound, "task journal disabled")
		return
	}

	records, err := h.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, records)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusNotFound, "task journal disabled")
		return
	}

	id := chi.URLParam(r, "id")

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if rec == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.sched.Status())
}

func (h *Handler) ResetWorker(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.sched.Reset(id)
	switch {
	case err == nil:
		logging.FromContext(r.Context(), h.logger).Info("worker reset requested", "worker_id", id)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, scheduler.ErrUnknownWorker):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scheduler.ErrManagerShutdown):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) CreateAudit(w http.ResponseWriter, r *http.Request) {
	var req AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, "at least one document is required")
		return
	}
	if req.CriteriaID == "" {
		respondError(w, http.StatusBadRequest, "criteria_id is required")
		return
	}

	reports, err := h.auditor.RunAll(r.Context(), req.Documents, req.CriteriaID, h.auditLimit)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Warn("audit failed", "criteria_id", req.CriteriaID, "err", err)
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, AuditResponse{Reports: reports})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
