package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/petal-labs/toolflow"
	"github.com/petal-labs/toolflow/bus"
)

// ServerConfig controls daemon HTTP server dependencies.
type ServerConfig struct {
	Executor *toolflow.Executor
	Catalog  *toolflow.Catalog
	Selector *toolflow.Selector
	Runner   *toolflow.PlanRunner

	// Scheduler, when set, is exposed on the schedules endpoints.
	Scheduler *Scheduler

	// EventStore, when set, is exposed on the events endpoints.
	EventStore bus.EventStore

	// Events, when set, receives events from plan runs started over HTTP.
	Events toolflow.EventHandler
}

// Server exposes tool execution, plan, and selection APIs over HTTP.
type Server struct {
	executor  *toolflow.Executor
	catalog   *toolflow.Catalog
	selector  *toolflow.Selector
	runner    *toolflow.PlanRunner
	scheduler *Scheduler
	store     bus.EventStore
	events    toolflow.EventHandler
}

// NewServer constructs a daemon API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("daemon: catalog is required")
	}
	executor := cfg.Executor
	if executor == nil {
		executor = toolflow.NewExecutor(toolflow.ExecutorConfig{Catalog: cfg.Catalog})
	}
	runner := cfg.Runner
	if runner == nil {
		runner = toolflow.NewPlanRunner(executor, cfg.Catalog)
	}
	selector := cfg.Selector
	if selector == nil {
		selector = toolflow.NewSelector(cfg.Catalog, toolflow.SelectorConfig{})
	}
	return &Server{
		executor:  executor,
		catalog:   cfg.Catalog,
		selector:  selector,
		runner:    runner,
		scheduler: cfg.Scheduler,
		store:     cfg.EventStore,
		events:    cfg.Events,
	}, nil
}

// Handler returns an http.Handler exposing daemon APIs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/tools", s.handleListTools)
	mux.HandleFunc("GET /api/tools/{name}", s.handleGetTool)

	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("POST /api/plans", s.handleRunPlan)
	mux.HandleFunc("POST /api/select", s.handleSelect)

	mux.HandleFunc("GET /api/events", s.handleListContexts)
	mux.HandleFunc("GET /api/events/{context}", s.handleListEvents)

	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)

	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

type executeRequest struct {
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"params,omitempty"`
	Timeout string         `json:"timeout,omitempty"`
}

type planEntryRequest struct {
	Name      string         `json:"name"`
	Tool      string         `json:"tool"`
	Params    map[string]any `json:"params,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty"`
}

type planRequest struct {
	Entries         []planEntryRequest `json:"entries"`
	MaxParallel     int                `json:"max_parallel,omitempty"`
	ContinueOnError bool               `json:"continue_on_error,omitempty"`
}

type selectRequest struct {
	Task     string  `json:"task"`
	Strategy string  `json:"strategy,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
	MaxTools int     `json:"max_tools,omitempty"`
}

type apiErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type apiErrorResponse struct {
	Error apiErrorDetail `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"tools":  s.catalog.Len(),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": toolSummaries(s.catalog.AllMetadata()),
	})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PathValue("name"))
	meta, ok := s.catalog.Metadata(name)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("tool %q not found", name), nil)
		return
	}
	writeJSON(w, http.StatusOK, toolSummary(meta))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
		return
	}
	tool, ok := s.catalog.Get(strings.TrimSpace(req.Tool))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("tool %q not found", req.Tool), nil)
		return
	}

	var opts toolflow.ExecuteOptions
	if req.Timeout != "" {
		timeout, err := time.ParseDuration(req.Timeout)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "INVALID_TIMEOUT", err.Error(), nil)
			return
		}
		opts.Timeout = timeout
	}

	res, ec := s.executor.Execute(r.Context(), tool, req.Params, &opts)
	writeJSON(w, http.StatusOK, map[string]any{
		"context_id": ec.ID,
		"success":    res.Success,
		"data":       res.Data,
		"error":      res.Error,
	})
}

func (s *Server) handleRunPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
		return
	}

	entries := make([]toolflow.PlanEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, toolflow.PlanEntry{
			Name:      e.Name,
			ToolName:  e.Tool,
			Params:    e.Params,
			DependsOn: e.DependsOn,
		})
	}

	report, err := s.runner.RunPlan(r.Context(), entries, toolflow.PlanOptions{
		MaxParallel:     req.MaxParallel,
		ContinueOnError: req.ContinueOnError,
		EventHandler:    s.events,
	})
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_PLAN", err.Error(), nil)
		return
	}

	results := make(map[string]any, len(report.Results))
	for name, res := range report.Results {
		results[name] = map[string]any{
			"success": res.Success,
			"data":    res.Data,
			"error":   res.Error,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan_id":  report.PlanID,
		"failed":   report.Failed,
		"phases":   report.Phases,
		"warnings": report.Warnings,
		"skipped":  report.Skipped,
		"results":  results,
		"stats": map[string]any{
			"total_ms":            report.Stats.Total.Milliseconds(),
			"estimated_serial_ms": report.Stats.EstimatedSerial.Milliseconds(),
			"estimated_saved_ms":  report.Stats.EstimatedSaved.Milliseconds(),
		},
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
		return
	}

	selection, err := s.selector.SelectTools(r.Context(), req.Task, toolflow.SelectOptions{
		Strategy: toolflow.Strategy(req.Strategy),
		MinScore: req.MinScore,
		MaxTools: req.MaxTools,
	})
	if err != nil {
		if errors.Is(err, toolflow.ErrEmptyTask) {
			writeJSONError(w, http.StatusBadRequest, "EMPTY_TASK", err.Error(), nil)
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "SELECT_FAILED", err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"selected_tools": selection.SelectedTools,
		"scores":         selection.Scores,
		"reasons":        selection.Reasons,
		"strategy":       selection.Strategy,
		"cache_hit":      selection.Cache.Hit,
	})
}

func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "NO_STORE", "no event store configured", nil)
		return
	}
	lister, ok := s.store.(interface {
		ContextIDs(ctx context.Context) ([]string, error)
	})
	if !ok {
		writeJSONError(w, http.StatusNotImplemented, "UNSUPPORTED", "event store does not enumerate contexts", nil)
		return
	}
	ids, err := lister.ContextIDs(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contexts": ids})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "NO_STORE", "no event store configured", nil)
		return
	}
	contextID := strings.TrimSpace(r.PathValue("context"))

	var afterSeq uint64
	if raw, ok := queryParam(r, "after"); ok {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "INVALID_QUERY", "after must be an integer", nil)
			return
		}
		afterSeq = parsed
	}
	limit := 100
	if raw, ok := queryParam(r, "limit"); ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}

	events, err := s.store.List(r.Context(), contextID, afterSeq, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSONError(w, http.StatusNotFound, "NO_SCHEDULER", "no scheduler configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"schedules": s.scheduler.Schedules(),
	})
}

type toolSummaryJSON struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	Version      string   `json:"version,omitempty"`
	UseCount     int64    `json:"use_count"`
	AvgMillis    int64    `json:"avg_duration_ms,omitempty"`
	LastUsed     string   `json:"last_used,omitempty"`
}

func toolSummaries(metas []toolflow.ToolMetadata) []toolSummaryJSON {
	out := make([]toolSummaryJSON, 0, len(metas))
	for _, m := range metas {
		out = append(out, toolSummary(m))
	}
	return out
}

func toolSummary(m toolflow.ToolMetadata) toolSummaryJSON {
	summary := toolSummaryJSON{
		Name:         m.Name,
		Description:  m.Description,
		Capabilities: m.Capabilities,
		Version:      m.Version,
		UseCount:     m.UseCount,
		AvgMillis:    m.AvgDuration.Milliseconds(),
	}
	if !m.LastUsed.IsZero() {
		summary.LastUsed = m.LastUsed.UTC().Format(time.RFC3339)
	}
	return summary
}

func queryParam(r *http.Request, key string) (string, bool) {
	values, ok := r.URL.Query()[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func decodeJSONBody(r *http.Request, target any) error {
	if target == nil {
		return errors.New("decode target is nil")
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, apiErrorResponse{
		Error: apiErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}
