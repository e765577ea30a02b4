package jirapo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func batchOptions(concurrency int) BatchOptions {
	return BatchOptions{
		Concurrency: concurrency,
		BackoffBase: time.Millisecond,
	}
}

func issueKeyFromPath(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}

func TestFetchBatchEmptyInput(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.FetchBatch(context.Background(), nil, batchOptions(0))
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result, got %d entries", len(results))
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("expected no requests for an empty batch")
	}
}

func TestFetchBatchBoundsConcurrency(t *testing.T) {
	var inflight, maxInflight int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&inflight, 1)
		for {
			seen := atomic.LoadInt32(&maxInflight)
			if current <= seen || atomic.CompareAndSwapInt32(&maxInflight, seen, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.Write([]byte(`{"key":"` + issueKeyFromPath(r.URL.Path) + `"}`))
	}))
	defer server.Close()

	ids := []string{"DEMO-1", "DEMO-2", "DEMO-3", "DEMO-4", "DEMO-5",
		"DEMO-6", "DEMO-7", "DEMO-8", "DEMO-9", "DEMO-10"}

	client := newTestClient(t, server.URL)
	results, err := client.FetchBatch(context.Background(), ids, batchOptions(5))
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}

	if len(results) != len(ids) {
		t.Errorf("expected %d entries, got %d", len(ids), len(results))
	}
	if failed := results.Failed(); len(failed) != 0 {
		t.Errorf("expected no failures, got %v", failed)
	}
	if got := atomic.LoadInt32(&maxInflight); got > 5 {
		t.Errorf("expected at most 5 in-flight requests, observed %d", got)
	}
}

func TestFetchBatchPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := issueKeyFromPath(r.URL.Path)
		if key == "GONE-1" || key == "GONE-2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"key":"` + key + `"}`))
	}))
	defer server.Close()

	ids := []string{"DEMO-1", "GONE-1", "DEMO-2", "GONE-2", "DEMO-3", "DEMO-4"}

	client := newTestClient(t, server.URL)
	results, err := client.FetchBatch(context.Background(), ids, batchOptions(3))
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}

	if len(results) != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), len(results))
	}
	failed := results.Failed()
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed ids, got %v", failed)
	}
	for _, id := range failed {
		if id != "GONE-1" && id != "GONE-2" {
			t.Errorf("unexpected failed id %q", id)
		}
	}

	var issue struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(results["DEMO-3"], &issue); err != nil || issue.Key != "DEMO-3" {
		t.Errorf("expected DEMO-3 payload, got %s (err=%v)", results["DEMO-3"], err)
	}
}

func TestFetchBatchRetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := map[string]int{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := issueKeyFromPath(r.URL.Path)
		mu.Lock()
		attempts[key]++
		n := attempts[key]
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"key":"` + key + `"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.FetchBatch(context.Background(), []string{"FLAKY-1"}, batchOptions(1))
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}

	if results["FLAKY-1"] == nil {
		t.Fatal("expected payload after per-item retries")
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts["FLAKY-1"] != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts["FLAKY-1"])
	}
}

func TestFetchBatchPermanentErrorShortCircuits(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.FetchBatch(context.Background(), []string{"GONE-9"}, batchOptions(1))
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}

	payload, present := results["GONE-9"]
	if !present {
		t.Fatal("expected absent-marker entry for failed id")
	}
	if payload != nil {
		t.Errorf("expected nil absent-marker, got %s", payload)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 attempt for a permanent error, got %d", got)
	}
}

func TestFetchBatchExhaustedRetriesYieldAbsentMarker(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.FetchBatch(context.Background(), []string{"DOWN-1"}, batchOptions(1))
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}

	if results["DOWN-1"] != nil {
		t.Error("expected absent-marker after exhausted retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetchBatchDefaultFieldSelection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("fields"); got != "summary,parent,issuelinks,labels,status" {
			t.Errorf("unexpected default fields %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.FetchBatch(context.Background(), []string{"DEMO-1"}, batchOptions(1)); err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}
}

func TestFetchBatchCustomFieldsAndResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/agile/1.0/epic/EPIC-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("fields"); got != "summary,status" {
			t.Errorf("unexpected fields %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	opts := BatchOptions{
		Fields:      []string{"summary", "status"},
		BackoffBase: time.Millisecond,
		Resource: func(id string) string {
			return "/rest/agile/1.0/epic/" + id
		},
	}
	if _, err := client.FetchBatch(context.Background(), []string{"EPIC-1"}, opts); err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}
}

func TestFetchBatchDeadContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected with a dead context")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, server.URL)
	if _, err := client.FetchBatch(ctx, []string{"DEMO-1"}, batchOptions(1)); err == nil {
		t.Fatal("expected error for an already-canceled context")
	}
}

func TestFetchBatchDuplicateIdsCollapse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"key":"DEMO-1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	results, err := client.FetchBatch(context.Background(),
		[]string{"DEMO-1", "DEMO-1", "DEMO-1"}, batchOptions(2))
	if err != nil {
		t.Fatalf("FetchBatch returned error: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected duplicates to collapse to 1 entry, got %d", len(results))
	}
	if results["DEMO-1"] == nil {
		t.Error("expected payload for duplicated id")
	}
}
