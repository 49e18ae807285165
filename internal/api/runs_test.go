package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/aigrace/internal/model"
	"github.com/seantiz/aigrace/internal/testutil/fakeabc"
	"github.com/seantiz/aigrace/internal/verdict"
)

func postRun(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url+"/v1/runs", "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST /v1/runs: %v", err)
	}
	return resp
}

func decodeRun(t *testing.T, resp *http.Response) *model.Run {
	t.Helper()
	defer resp.Body.Close()
	var run model.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	return &run
}

// pollRun polls GET /v1/runs/{id} until the run is terminal.
func pollRun(t *testing.T, url, id string, timeout time.Duration) *model.Run {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/v1/runs/" + id)
		if err != nil {
			t.Fatalf("GET run: %v", err)
		}
		run := decodeRun(t, resp)
		if model.Terminal(run.Status) {
			return run
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish within %v", id, timeout)
	return nil
}

func TestCreateRunValidation(t *testing.T) {
	srv := newTestServer(t)
	dataset := writeDataset(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body any
	}{
		{"missing dataset", map[string]any{}},
		{"unreadable dataset", map[string]any{"dataset": "/nonexistent/circuit.aig"}},
		{"unknown engine", map[string]any{"dataset": dataset, "engines": []string{"pdr", "bogus"}}},
		{"duplicate engine", map[string]any{"dataset": dataset, "engines": []string{"bmc", "bmc"}}},
		{"zero timeout", map[string]any{"dataset": dataset, "timeout_s": 0}},
		{"stage without commands", map[string]any{"dataset": dataset, "stages": []map[string]string{{"name": "simplify"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRun(t, ts.URL, tt.body)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCreateRunInvalidJSON(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/v1/runs", "application/json", bytes.NewBufferString("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateRunCompletes(t *testing.T) {
	srv := newToolServer(t, fakeabc.Config{
		Engines: map[string]fakeabc.Engine{
			"bmc": {Delay: 50 * time.Millisecond, Output: "Output 0 was asserted in frame 4. Counterexample found."},
			"pdr": {Hang: true},
		},
	})
	dataset := writeDataset(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postRun(t, ts.URL, map[string]any{
		"dataset":   dataset,
		"engines":   []string{"pdr", "bmc"},
		"timeout_s": 10,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	created := decodeRun(t, resp)
	if created.Status != model.StatusPending || created.TimeoutS != 10 {
		t.Errorf("created = %+v", created)
	}

	run := pollRun(t, ts.URL, created.ID, 10*time.Second)
	if run.Status != model.StatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", run.Status, run.Error)
	}
	if run.Verdict != verdict.SAT || run.Engine != model.EngineBMC {
		t.Errorf("outcome = %q/%v, want SAT from bmc", run.Verdict, run.Engine)
	}
	if run.Ands == nil || *run.Ands != 17 {
		t.Errorf("ands = %v, want 17", run.Ands)
	}

	resp, err := http.Get(ts.URL + "/v1/runs/" + created.ID + "/results")
	if err != nil {
		t.Fatalf("GET results: %v", err)
	}
	defer resp.Body.Close()

	var results resultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results.Results) != 1 || results.Results[0].Engine != model.EngineBMC {
		t.Errorf("results = %+v, want the bmc win only", results.Results)
	}
}

func TestCreateRunAppliesDefaults(t *testing.T) {
	srv := newToolServer(t, fakeabc.Config{})
	dataset := writeDataset(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	created := decodeRun(t, postRun(t, ts.URL, map[string]any{"dataset": dataset, "no_transform": true}))

	if len(created.Engines) != 2 || created.Engines[0] != model.EnginePDR {
		t.Errorf("engines = %v, want the server defaults", created.Engines)
	}
	if created.TimeoutS != 5 {
		t.Errorf("timeout_s = %d, want 5", created.TimeoutS)
	}

	run := pollRun(t, ts.URL, created.ID, 10*time.Second)
	if run.Status != model.StatusCompleted || run.Verdict != verdict.Unknown {
		t.Errorf("run = %q/%q, want completed UNKNOWN", run.Status, run.Verdict)
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/v1/runs/nonexistent", "/v1/runs/nonexistent/results"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestListRuns(t *testing.T) {
	srv := newTestServer(t)
	for range 3 {
		seedRun(t, srv)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs?limit=2&offset=0")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body listRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 3 || len(body.Runs) != 2 || body.Limit != 2 {
		t.Errorf("list = total %d, %d runs, limit %d", body.Total, len(body.Runs), body.Limit)
	}
}

func TestListRunsEmpty(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs?limit=1000")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body listRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Runs == nil || len(body.Runs) != 0 {
		t.Errorf("runs = %v, want empty array", body.Runs)
	}
	if body.Limit != defaultListLimit {
		t.Errorf("limit = %d, want %d", body.Limit, defaultListLimit)
	}
}

func TestCancelRun(t *testing.T) {
	srv := newToolServer(t, fakeabc.Config{
		Engines: map[string]fakeabc.Engine{
			"pdr": {Hang: true},
			"bmc": {Hang: true},
		},
	})
	dataset := writeDataset(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	created := decodeRun(t, postRun(t, ts.URL, map[string]any{
		"dataset":      dataset,
		"timeout_s":    60,
		"no_transform": true,
	}))

	// Let the engines start.
	time.Sleep(200 * time.Millisecond)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/runs/"+created.ID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	run := pollRun(t, ts.URL, created.ID, 10*time.Second)
	if run.Status != model.StatusCancelled {
		t.Errorf("status = %q, want cancelled", run.Status)
	}

	// A finished run can no longer be cancelled.
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/v1/runs/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", resp.StatusCode)
	}
}

func TestCancelRunNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/runs/nonexistent", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListEngines(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/engines")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var body enginesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Engines) != len(model.AllEngines) {
		t.Fatalf("engines = %+v", body.Engines)
	}
	defaults := 0
	for _, e := range body.Engines {
		if e.Default {
			defaults++
		}
	}
	if defaults != 2 {
		t.Errorf("%d default engines, want 2", defaults)
	}
	if len(body.Backends) != 1 || body.Backends[0].Name != "abc" {
		t.Errorf("backends = %+v", body.Backends)
	}
}

func TestCreateRunDuringShutdown(t *testing.T) {
	srv := newTestServer(t)
	srv.runner.Shutdown()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postRun(t, ts.URL, map[string]any{"dataset": writeDataset(t)})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
