package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/events"
	"github.com/galaxyproject/galaxy-params/internal/metaexpand"
	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/state"
	"github.com/galaxyproject/galaxy-params/internal/tools"
	"github.com/galaxyproject/galaxy-params/pkg/auth"
)

// CheckRequest is the body of a check call.
type CheckRequest struct {
	Inputs      map[string]interface{} `json:"inputs"`
	InputFormat params.InputFormat     `json:"input_format,omitempty"`
}

// ExpandRequest is the body of an expand call.
type ExpandRequest struct {
	Inputs      map[string]interface{} `json:"inputs"`
	InputFormat params.InputFormat     `json:"input_format,omitempty"`
	// Persist stores the jobs and announces them on the request channel.
	Persist bool `json:"persist,omitempty"`
}

// ExpandedJob is one run of an expansion.
type ExpandedJob struct {
	ID     string            `json:"id"`
	Params map[string]string `json:"params"`
}

// ExpandResponse describes the runs a request expanded into.
type ExpandResponse struct {
	BatchID    string        `json:"batch_id"`
	ToolID     string        `json:"tool_id"`
	Jobs       []ExpandedJob `json:"jobs"`
	MappedOver string        `json:"mapped_over,omitempty"`
	// MappedInputs names the inputs the linked collections are bound to.
	MappedInputs []string `json:"mapped_inputs,omitempty"`
	Persisted    bool     `json:"persisted"`
}

// Handler contains all HTTP handlers.
type Handler struct {
	config    *config.Config
	tools     ToolLookup
	app       *params.App
	store     JobStore
	publisher JobPublisher
	logger    *slog.Logger
}

// NewHandler creates a new handler.
func NewHandler(cfg *config.Config, lookup ToolLookup, app *params.App, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		config:    cfg,
		tools:     lookup,
		app:       app,
		store:     opts.Store,
		publisher: opts.Publisher,
		logger:    logger,
	}
}

// HealthCheck handles health check requests.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "galaxy-params",
	})
}

// ListTools lists the known tool ids.
func (h *Handler) ListTools(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"tools": h.tools.IDs()})
}

// BuildTool describes a tool with its initial state.
func (h *Handler) BuildTool(w http.ResponseWriter, r *http.Request) {
	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, tool.ToDict(h.trans(r), nil))
}

// CheckRequest populates a request against the tool and reports field
// errors.
func (h *Handler) CheckRequest(w http.ResponseWriter, r *http.Request) {
	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	trans := h.trans(r)
	populated := map[string]interface{}{}
	fieldErrors := map[string]interface{}{}
	opts := params.PopulateOptions{Format: req.InputFormat}
	if err := params.PopulateState(trans, tool.Inputs, req.Inputs, populated, fieldErrors, opts); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if len(fieldErrors) > 0 {
		h.errorResponse(w, http.StatusBadRequest, "request has invalid parameters", fieldErrors)
		return
	}
	basic, err := params.ParamsToBasic(tool.Inputs, populated, h.app, true)
	if err != nil {
		h.errorResponse(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"state": basic})
}

// ExpandRequest expands a batch request into its runs, checks each run and
// returns the persisted string form of every run.
func (h *Handler) ExpandRequest(w http.ResponseWriter, r *http.Request) {
	tool, ok := h.lookupTool(w, r)
	if !ok {
		return
	}
	var req ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.Persist && h.store == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "job persistence is not configured", nil)
		return
	}

	ctx := r.Context()
	expansion, err := metaexpand.ExpandJobs(h.trans(r), tool, req.Inputs, req.InputFormat)
	if err != nil {
		h.expansionError(w, err)
		return
	}
	if len(expansion.Errors) > 0 {
		h.errorResponse(w, http.StatusBadRequest, "expanded request has invalid parameters", expansion.Errors)
		return
	}

	resp := ExpandResponse{BatchID: uuid.New().String(), ToolID: tool.ID}
	if matching := expansion.Collections; matching != nil {
		if s := matching.Structure(); s != nil {
			resp.MappedOver = s.CollectionType
		}
		for name := range matching.Collections {
			resp.MappedInputs = append(resp.MappedInputs, name)
		}
		sort.Strings(resp.MappedInputs)
	}

	var user string
	if u := auth.GetUserFromContext(ctx); u != nil {
		user = u.Username
	}
	jobs := make([]*state.JobParameters, len(expansion.Params))
	for i, strs := range expansion.Params {
		jobs[i] = &state.JobParameters{
			ID:          uuid.New().String(),
			BatchID:     resp.BatchID,
			ToolID:      tool.ID,
			ToolVersion: tool.Version,
			User:        user,
			Params:      strs,
		}
	}

	if req.Persist {
		if err := h.store.SaveBatch(ctx, jobs); err != nil {
			h.errorResponse(w, http.StatusInternalServerError, "failed to save jobs", nil)
			return
		}
		resp.Persisted = true
		h.publish(r, jobs)
	}

	resp.Jobs = make([]ExpandedJob, len(jobs))
	for i, job := range jobs {
		resp.Jobs[i] = ExpandedJob{ID: job.ID, Params: job.Params}
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) publish(r *http.Request, jobs []*state.JobParameters) {
	if h.publisher == nil {
		return
	}
	for _, job := range jobs {
		event := events.JobRequestEvent{
			JobID:       job.ID,
			BatchID:     job.BatchID,
			ToolID:      job.ToolID,
			ToolVersion: job.ToolVersion,
			User:        job.User,
			Params:      job.Params,
		}
		if err := h.publisher.PublishJobRequest(r.Context(), event); err != nil {
			h.logger.Error("failed to publish job request", "job_id", job.ID, "error", err)
		}
	}
}

// GetJob returns a persisted job.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "job persistence is not configured", nil)
		return
	}
	job, err := h.store.GetJobParameters(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorResponse(w, http.StatusInternalServerError, "failed to get job", nil)
		return
	}
	if job == nil {
		h.errorResponse(w, http.StatusNotFound, "job not found", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

// GetBatch returns the progress of a persisted batch.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "job persistence is not configured", nil)
		return
	}
	progress, err := h.store.GetBatchProgress(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.errorResponse(w, http.StatusInternalServerError, "failed to get batch", nil)
		return
	}
	if progress.Total == 0 {
		h.errorResponse(w, http.StatusNotFound, "batch not found", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, progress)
}

func (h *Handler) lookupTool(w http.ResponseWriter, r *http.Request) (*params.Tool, bool) {
	id := chi.URLParam(r, "id")
	tool, err := h.tools.Get(id)
	if errors.Is(err, tools.ErrToolNotFound) {
		h.errorResponse(w, http.StatusNotFound, fmt.Sprintf("tool '%s' not found", id), nil)
		return nil, false
	}
	if err != nil {
		h.errorResponse(w, http.StatusInternalServerError, fmt.Sprintf("failed to load tool '%s': %v", id, err), nil)
		return nil, false
	}
	return tool, true
}

func (h *Handler) trans(r *http.Request) *params.Trans {
	trans := params.NewTrans(r.Context(), h.app)
	trans.BaseURL = h.config.Server.BaseURL
	trans.WorkflowBuildingMode = r.URL.Query().Get("workflow") == "true"
	return trans
}

func (h *Handler) expansionError(w http.ResponseWriter, err error) {
	var invalid *metaexpand.RequestParameterInvalidError
	var notReady *metaexpand.ToolInputsNotReadyError
	var meta *metaexpand.ToolMetaParameterError
	switch {
	case errors.As(err, &notReady):
		h.errorResponse(w, http.StatusConflict, notReady.Message, nil)
	case errors.As(err, &invalid):
		h.errorResponse(w, http.StatusBadRequest, invalid.Message, nil)
	case errors.As(err, &meta):
		h.errorResponse(w, http.StatusBadRequest, meta.Message, nil)
	default:
		h.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string, data interface{}) {
	body := map[string]interface{}{"err_msg": message}
	if data != nil {
		body["err_data"] = data
	}
	h.respondJSON(w, status, body)
}
