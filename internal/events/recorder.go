package events

import (
	"context"
	"fmt"

	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/state"
)

// JobStore is the persistence the recorder writes to.
type JobStore interface {
	SaveJobParameters(ctx context.Context, job *state.JobParameters) error
	UpdateJobStatus(ctx context.Context, id string, status state.JobStatus, errMsg string) error
}

// ToolLookup resolves tool ids.
type ToolLookup interface {
	Get(id string) (*params.Tool, error)
}

// JobRecorder stores incoming job requests and checks that their parameters
// restore against the current tool definition.
type JobRecorder struct {
	store JobStore
	tools ToolLookup
}

// NewJobRecorder creates a new recorder.
func NewJobRecorder(store JobStore, tools ToolLookup) *JobRecorder {
	return &JobRecorder{store: store, tools: tools}
}

// HandleJobRequest implements Handler.
func (r *JobRecorder) HandleJobRequest(ctx context.Context, event JobRequestEvent) error {
	job := &state.JobParameters{
		ID:          event.JobID,
		BatchID:     event.BatchID,
		ToolID:      event.ToolID,
		ToolVersion: event.ToolVersion,
		User:        event.User,
		Params:      event.Params,
		Status:      state.JobQueued,
	}
	if err := r.store.SaveJobParameters(ctx, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	status, msg := state.JobReady, ""
	if err := r.check(ctx, event); err != nil {
		status, msg = state.JobInvalid, err.Error()
	}
	if err := r.store.UpdateJobStatus(ctx, job.ID, status, msg); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

func (r *JobRecorder) check(ctx context.Context, event JobRequestEvent) error {
	tool, err := r.tools.Get(event.ToolID)
	if err != nil {
		return err
	}
	if event.ToolVersion != "" && tool.Version != event.ToolVersion {
		return fmt.Errorf("tool '%s' version %s requested, %s loaded", tool.ID, event.ToolVersion, tool.Version)
	}
	_, err = params.ParamsFromStrings(ctx, tool.Inputs, event.Params, tool.App(), false)
	return err
}
