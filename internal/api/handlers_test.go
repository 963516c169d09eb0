package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/galaxyproject/galaxy-params/internal/config"
	"github.com/galaxyproject/galaxy-params/internal/events"
	"github.com/galaxyproject/galaxy-params/internal/params"
	"github.com/galaxyproject/galaxy-params/internal/state"
	"github.com/galaxyproject/galaxy-params/internal/tools"
	"github.com/galaxyproject/galaxy-params/internal/toolsource"
)

const catXML = `<tool id="cat1" name="Cat" version="1.0">
  <inputs>
    <param name="zeta" type="text" value=""/>
    <param name="alpha" type="text" value=""/>
    <param name="lines" type="integer" value="10"/>
  </inputs>
</tool>`

type fakeTools map[string]*params.Tool

func (f fakeTools) Get(id string) (*params.Tool, error) {
	if tool, ok := f[id]; ok {
		return tool, nil
	}
	return nil, fmt.Errorf("%w: %s", tools.ErrToolNotFound, id)
}

func (f fakeTools) IDs() []string {
	var ids []string
	for id := range f {
		ids = append(ids, id)
	}
	return ids
}

type fakeStore struct {
	jobs map[string]*state.JobParameters
}

func (f *fakeStore) SaveBatch(ctx context.Context, jobs []*state.JobParameters) error {
	for _, job := range jobs {
		f.jobs[job.ID] = job
	}
	return nil
}

func (f *fakeStore) GetJobParameters(ctx context.Context, id string) (*state.JobParameters, error) {
	return f.jobs[id], nil
}

func (f *fakeStore) GetBatchProgress(ctx context.Context, batchID string) (*state.BatchProgress, error) {
	p := &state.BatchProgress{}
	for _, job := range f.jobs {
		if job.BatchID == batchID {
			p.Total++
			p.New++
		}
	}
	return p, nil
}

type fakePublisher struct {
	events []events.JobRequestEvent
}

func (f *fakePublisher) PublishJobRequest(ctx context.Context, event events.JobRequestEvent) error {
	f.events = append(f.events, event)
	return nil
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	app := &params.App{}
	src, err := toolsource.ParseXML([]byte(catXML))
	if err != nil {
		t.Fatalf("Failed to parse tool: %v", err)
	}
	tool, err := params.NewTool(src, app)
	if err != nil {
		t.Fatalf("Failed to build tool: %v", err)
	}
	cfg := &config.Config{Server: config.ServerConfig{BaseURL: "http://localhost"}}
	return NewServer(cfg, fakeTools{"cat1": tool}, app, opts)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, out
}

func batch(product bool, values ...interface{}) map[string]interface{} {
	return map[string]interface{}{"batch": true, "product": product, "values": values}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, Options{})
	rec, body := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("Unexpected health response %d: %v", rec.Code, body)
	}
}

func TestBuildTool(t *testing.T) {
	s := newTestServer(t, Options{})
	rec, body := do(t, s, http.MethodGet, "/api/tools/cat1/build", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}
	if body["id"] != "cat1" {
		t.Errorf("Expected id cat1, got %v", body["id"])
	}
	if inputs, ok := body["inputs"].([]interface{}); !ok || len(inputs) != 3 {
		t.Errorf("Expected 3 inputs, got %v", body["inputs"])
	}

	rec, body = do(t, s, http.MethodGet, "/api/tools/nope/build", nil)
	if rec.Code != http.StatusNotFound || body["err_msg"] == nil {
		t.Errorf("Expected 404 with message, got %d: %v", rec.Code, body)
	}
}

func TestCheckRequest(t *testing.T) {
	s := newTestServer(t, Options{})

	rec, body := do(t, s, http.MethodPost, "/api/tools/cat1/check", CheckRequest{
		Inputs: map[string]interface{}{"zeta": "a", "alpha": "b", "lines": "5"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}
	if _, ok := body["state"].(map[string]interface{}); !ok {
		t.Errorf("Expected state, got %v", body)
	}

	rec, body = do(t, s, http.MethodPost, "/api/tools/cat1/check", CheckRequest{
		Inputs: map[string]interface{}{"lines": "many"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %v", rec.Code, body)
	}
	fieldErrors, _ := body["err_data"].(map[string]interface{})
	if fieldErrors["lines"] == nil {
		t.Errorf("Expected an error for lines, got %v", body)
	}
}

func TestExpandRequest(t *testing.T) {
	s := newTestServer(t, Options{})
	rec, body := do(t, s, http.MethodPost, "/api/tools/cat1/expand", ExpandRequest{
		Inputs: map[string]interface{}{
			"alpha": batch(true, "x", "y"),
			"zeta":  batch(true, "1", "2"),
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}
	jobs := body["jobs"].([]interface{})
	if len(jobs) != 4 {
		t.Fatalf("Expected 4 jobs, got %d", len(jobs))
	}
	var got string
	for _, j := range jobs {
		p := j.(map[string]interface{})["params"].(map[string]interface{})
		got += p["zeta"].(string) + p["alpha"].(string) + ";"
	}
	want := `"1""x";"1""y";"2""x";"2""y";`
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
	if body["persisted"] != false {
		t.Errorf("Expected jobs not to be persisted, got %v", body["persisted"])
	}
}

func TestExpandRequest_LinkedMismatch(t *testing.T) {
	s := newTestServer(t, Options{})
	rec, body := do(t, s, http.MethodPost, "/api/tools/cat1/expand", ExpandRequest{
		Inputs: map[string]interface{}{
			"alpha": batch(false, "x"),
			"zeta":  batch(false, "1", "2"),
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %v", rec.Code, body)
	}
	if body["err_msg"] != "Failed to match linked batch selections. Please select equal number of data files." {
		t.Errorf("Unexpected message: %v", body["err_msg"])
	}
}

func TestExpandRequest_Persist(t *testing.T) {
	rec, body := do(t, newTestServer(t, Options{}), http.MethodPost, "/api/tools/cat1/expand",
		ExpandRequest{Inputs: map[string]interface{}{"zeta": "1"}, Persist: true})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a store, got %d: %v", rec.Code, body)
	}

	store := &fakeStore{jobs: map[string]*state.JobParameters{}}
	pub := &fakePublisher{}
	s := newTestServer(t, Options{Store: store, Publisher: pub})
	rec, body = do(t, s, http.MethodPost, "/api/tools/cat1/expand", ExpandRequest{
		Inputs:  map[string]interface{}{"zeta": batch(false, "1", "2")},
		Persist: true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", rec.Code, body)
	}
	if len(store.jobs) != 2 || len(pub.events) != 2 {
		t.Fatalf("Expected 2 stored and published jobs, got %d and %d", len(store.jobs), len(pub.events))
	}
	batchID := body["batch_id"].(string)
	if pub.events[0].BatchID != batchID || pub.events[0].ToolVersion != "1.0" {
		t.Errorf("Unexpected event: %+v", pub.events[0])
	}

	jobID := pub.events[1].JobID
	rec, body = do(t, s, http.MethodGet, "/api/jobs/"+jobID, nil)
	if rec.Code != http.StatusOK || body["id"] != jobID {
		t.Errorf("Expected job %s, got %d: %v", jobID, rec.Code, body)
	}
	rec, body = do(t, s, http.MethodGet, "/api/batches/"+batchID, nil)
	if rec.Code != http.StatusOK || body["total"] != float64(2) {
		t.Errorf("Expected batch of 2, got %d: %v", rec.Code, body)
	}
	rec, _ = do(t, s, http.MethodGet, "/api/batches/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown batch, got %d", rec.Code)
	}
}

func TestAPIKeys(t *testing.T) {
	app := &params.App{}
	src, err := toolsource.ParseXML([]byte(catXML))
	if err != nil {
		t.Fatalf("Failed to parse tool: %v", err)
	}
	tool, err := params.NewTool(src, app)
	if err != nil {
		t.Fatalf("Failed to build tool: %v", err)
	}
	cfg := &config.Config{Security: config.SecurityConfig{APIKeys: map[string]string{"alice": "secret"}}}
	store := &fakeStore{jobs: map[string]*state.JobParameters{}}
	s := NewServer(cfg, fakeTools{"cat1": tool}, app, Options{Store: store})

	rec, _ := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected open health check, got %d", rec.Code)
	}
	rec, _ = do(t, s, http.MethodGet, "/api/tools/", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", rec.Code)
	}

	rec, _ = do(t, s, http.MethodPost, "/api/tools/cat1/expand?key=secret",
		ExpandRequest{Inputs: map[string]interface{}{"zeta": "1"}, Persist: true})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 with key, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.jobs) != 1 {
		t.Fatalf("Expected 1 stored job, got %d", len(store.jobs))
	}
	for _, job := range store.jobs {
		if job.User != "alice" {
			t.Errorf("Expected job owned by alice, got %q", job.User)
		}
	}
}
