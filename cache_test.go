package jirapo

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestInMemoryCacheSetGet(t *testing.T) {
	cache := NewInMemoryCache()

	entry := &CacheEntry{StatusCode: 200, Body: []byte(`{"ok":true}`)}
	cache.Set("key", entry, time.Minute)

	got, ok := cache.Get("key")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got.Body) != `{"ok":true}` {
		t.Errorf("unexpected body %s", got.Body)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", cache.Len())
	}
}

func TestInMemoryCacheExpiry(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Set("key", &CacheEntry{StatusCode: 200}, 10*time.Millisecond)

	time.Sleep(25 * time.Millisecond)

	if _, ok := cache.Get("key"); ok {
		t.Error("expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Errorf("expected expired entry evicted on Get, Len=%d", cache.Len())
	}
}

func TestInMemoryCacheDeleteAndClear(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Set("a", &CacheEntry{}, time.Minute)
	cache.Set("b", &CacheEntry{}, time.Minute)

	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Error("expected deleted entry to miss")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after Clear, Len=%d", cache.Len())
	}
}

func TestClientCachesGETResponses(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"name":"Sprint 42"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithCache(time.Minute))

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), "/rest/agile/1.0/sprint/42", nil)
		if err != nil {
			t.Fatalf("Get() %d returned error: %v", i, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if string(body) != `{"name":"Sprint 42"}` {
			t.Errorf("Get() %d: unexpected body %q", i, body)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 origin request, got %d", got)
	}
}

func TestClientDoesNotCacheWrites(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithCache(time.Minute))

	for i := 0; i < 2; i++ {
		resp, err := client.Post(context.Background(), "/rest/api/3/issue", nil, map[string]string{})
		if err != nil {
			t.Fatalf("Post() %d returned error: %v", i, err)
		}
		resp.Body.Close()
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected POST to bypass the cache, got %d origin requests", got)
	}
}

func TestClientDoesNotCacheErrorResponses(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithCache(time.Minute))

	for i := 0; i < 2; i++ {
		resp, err := client.Get(context.Background(), "/rest/api/3/issue/GONE-1", nil)
		if err != nil {
			t.Fatalf("Get() %d returned error: %v", i, err)
		}
		resp.Body.Close()
	}

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 404s not cached, got %d origin requests", got)
	}
}

func TestClientCustomCacheClearForcesRefetch(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	cache := NewInMemoryCache()
	client := newTestClient(t, server.URL, WithCustomCache(cache, time.Minute))

	get := func() {
		resp, err := client.Get(context.Background(), "/rest/agile/1.0/board/1", nil)
		if err != nil {
			t.Fatalf("Get() returned error: %v", err)
		}
		resp.Body.Close()
	}

	get()
	get()
	cache.Clear()
	get()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 origin requests around a Clear, got %d", got)
	}
}
