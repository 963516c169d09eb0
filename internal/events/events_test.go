package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/state"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

type recordingHandler struct {
	events []JobRequestEvent
}

func (h *recordingHandler) HandleJobRequest(ctx context.Context, event JobRequestEvent) error {
	h.events = append(h.events, event)
	return nil
}

func TestProcessMessage(t *testing.T) {
	s := NewSubscriber(nil, "", nil)
	h := &recordingHandler{}
	s.AddHandler(h)

	payload, err := encodeJobRequest(JobRequestEvent{JobID: "j1", ToolID: "cat1"})
	if err != nil {
		t.Fatalf("Failed to encode event: %v", err)
	}
	if err := s.processMessage(context.Background(), payload); err != nil {
		t.Fatalf("Failed to process message: %v", err)
	}
	if len(h.events) != 1 || h.events[0].JobID != "j1" || h.events[0].Timestamp == 0 {
		t.Errorf("Unexpected events: %+v", h.events)
	}

	other, _ := json.Marshal(map[string]string{"type": "something_else"})
	s.processMessage(context.Background(), string(other))
	if len(h.events) != 1 {
		t.Errorf("Expected other event types to be ignored, got %d events", len(h.events))
	}

	if err := s.processMessage(context.Background(), "{"); err == nil {
		t.Error("Expected error for malformed payload")
	}
}

type fakeStore struct {
	jobs   map[string]*state.JobParameters
	errMsg string
}

func (f *fakeStore) SaveJobParameters(ctx context.Context, job *state.JobParameters) error {
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeStore) UpdateJobStatus(ctx context.Context, id string, status state.JobStatus, errMsg string) error {
	job, ok := f.jobs[id]
	if !ok {
		return errors.New("missing job")
	}
	job.Status = status
	f.errMsg = errMsg
	return nil
}

type fakeTools map[string]*params.Tool

func (f fakeTools) Get(id string) (*params.Tool, error) {
	if tool, ok := f[id]; ok {
		return tool, nil
	}
	return nil, errors.New("tool not found")
}

func TestJobRecorder(t *testing.T) {
	src, err := toolsource.ParseXML([]byte(`<tool id="cat1" name="Cat" version="1.0">
  <inputs><param name="lines" type="integer" value="10"/></inputs>
</tool>`))
	if err != nil {
		t.Fatalf("Failed to parse tool: %v", err)
	}
	tool, err := params.NewTool(src, &params.App{})
	if err != nil {
		t.Fatalf("Failed to build tool: %v", err)
	}

	for _, tc := range []struct {
		name  string
		event JobRequestEvent
		want  state.JobStatus
	}{
		{"ready", JobRequestEvent{JobID: "j1", ToolID: "cat1", Params: map[string]string{"lines": `"5"`}}, state.JobReady},
		{"bad value", JobRequestEvent{JobID: "j2", ToolID: "cat1", Params: map[string]string{"lines": `"five"`}}, state.JobInvalid},
		{"unknown tool", JobRequestEvent{JobID: "j3", ToolID: "nope"}, state.JobInvalid},
		{"version", JobRequestEvent{JobID: "j4", ToolID: "cat1", ToolVersion: "2.0"}, state.JobInvalid},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{jobs: map[string]*state.JobParameters{}}
			r := NewJobRecorder(store, fakeTools{"cat1": tool})
			if err := r.HandleJobRequest(context.Background(), tc.event); err != nil {
				t.Fatalf("Failed to handle job: %v", err)
			}
			job := store.jobs[tc.event.JobID]
			if job == nil || job.Status != tc.want {
				t.Errorf("Expected status %s, got %+v", tc.want, job)
			}
			if tc.want == state.JobInvalid && store.errMsg == "" {
				t.Error("Expected an error message")
			}
		})
	}
}
