package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/capd/internal/model"
	"github.com/sandeepkv93/capd/internal/queue"
)

func newTestQueue(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func queueCount(t *testing.T, store *queue.Store) int {
	t.Helper()
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestCaptureSuccess(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Auth-Token")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Record{ID: "r1", Kind: model.KindTask, Text: "hi"})
	}))
	t.Cleanup(srv.Close)

	store := newTestQueue(t)
	c := New(srv.URL, "secret", store)

	rec, queued, err := c.Capture(context.Background(), CaptureRequest{Text: "hi", ClientTimestamp: time.Now()})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if queued {
		t.Fatal("successful capture must not be queued")
	}
	if rec.ID != "r1" {
		t.Fatalf("record got %+v", rec)
	}
	if gotToken != "secret" {
		t.Fatalf("auth token got %q", gotToken)
	}
	if n := queueCount(t, store); n != 0 {
		t.Fatalf("queue count got %d want 0", n)
	}
}

func TestCaptureClientErrorIsNotQueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	store := newTestQueue(t)
	c := New(srv.URL, "", store)

	_, queued, err := c.Capture(context.Background(), CaptureRequest{Text: "bad"})
	if err == nil {
		t.Fatal("expected error for 4xx response")
	}
	if queued {
		t.Fatal("4xx must not queue")
	}
	if n := queueCount(t, store); n != 0 {
		t.Fatalf("queue count got %d want 0", n)
	}
}

func TestCaptureServerErrorQueues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	store := newTestQueue(t)
	c := New(srv.URL, "", store)

	_, queued, err := c.Capture(context.Background(), CaptureRequest{Text: "later"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !queued {
		t.Fatal("5xx should queue the write")
	}
	if n := queueCount(t, store); n != 1 {
		t.Fatalf("queue count got %d want 1", n)
	}
}

func TestSimulatedOfflineQueuesAndReplays(t *testing.T) {
	var received int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(model.Record{ID: "r1"})
	}))
	t.Cleanup(srv.Close)

	store := newTestQueue(t)
	c := New(srv.URL, "tok", store)
	c.SetOffline(true)

	_, queued, err := c.Capture(context.Background(), CaptureRequest{Text: "while offline"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !queued {
		t.Fatal("offline capture should queue")
	}
	if received != 0 {
		t.Fatal("offline capture must not reach the server")
	}

	// Replay while still offline fails and keeps the entry.
	res, err := store.ReplayAll(context.Background(), c)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Succeeded != 0 || res.StillQueued != 1 {
		t.Fatalf("offline replay got %+v", res)
	}

	c.SetOffline(false)
	res, err = store.ReplayAll(context.Background(), c)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Succeeded != 1 || res.StillQueued != 0 {
		t.Fatalf("online replay got %+v", res)
	}
	if received != 1 {
		t.Fatalf("server received %d requests want 1", received)
	}
	if n := queueCount(t, store); n != 0 {
		t.Fatalf("queue count got %d want 0", n)
	}
}

func TestListMemories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memories" || r.URL.Query().Get("q") != "coffee" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(MemoryList{
			Items: []model.Record{{ID: "m1", Kind: model.KindNote, Text: "coffee note"}},
			Total: 1,
		})
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL, "", nil)
	list, err := c.ListMemories(context.Background(), "coffee", 10, 0)
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].ID != "m1" {
		t.Fatalf("memory list got %+v", list)
	}
}
