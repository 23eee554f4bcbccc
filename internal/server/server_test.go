package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/capd/internal/model"
	"github.com/sandeepkv93/capd/internal/storage"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	repo, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "capd.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	if err := storage.MigrateUp(repo.DB()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if opts.RecurrenceHardCap == 0 {
		opts.RecurrenceHardCap = 500
	}
	s := New(repo, zap.NewNop(), opts)
	s.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v\nbody: %s", err, w.Body.String())
	}
	return out
}

func TestAuthRejectsBadToken(t *testing.T) {
	s := newTestServer(t, Options{AuthToken: "secret"})

	w := doJSON(t, s, http.MethodGet, "/tasks", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d want 401", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/tasks", nil, map[string]string{"X-Auth-Token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d want 401", w.Code)
	}
	w = doJSON(t, s, http.MethodGet, "/tasks", nil, map[string]string{"X-Auth-Token": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("right token: got %d want 200", w.Code)
	}
}

func TestHealthzIsOpen(t *testing.T) {
	s := newTestServer(t, Options{AuthToken: "secret"})
	w := doJSON(t, s, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz got %d want 200", w.Code)
	}
}

func TestCaptureClassifiesTask(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, http.MethodPost, "/capture", captureIn{
		Text:            "remind me to call @maria tomorrow at 9am #family",
		ClientTimestamp: time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC),
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("capture got %d: %s", w.Code, w.Body.String())
	}
	rec := decode[model.Record](t, w)
	if rec.Kind != model.KindTask {
		t.Fatalf("kind got %q want task", rec.Kind)
	}
	if rec.DueAt == nil || !rec.DueAt.Equal(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("due got %v", rec.DueAt)
	}
	if len(rec.People) != 1 || rec.People[0] != "maria" {
		t.Fatalf("people got %v", rec.People)
	}
	if len(rec.Tags) != 1 || rec.Tags[0] != "family" {
		t.Fatalf("tags got %v", rec.Tags)
	}
	if rec.SeriesID != rec.ID {
		t.Fatalf("series id got %q want %q", rec.SeriesID, rec.ID)
	}

	// The task shows up in the open listing.
	w = doJSON(t, s, http.MethodGet, "/tasks?open_only=true", nil, nil)
	tasks := decode[[]model.Record](t, w)
	if len(tasks) != 1 || tasks[0].ID != rec.ID {
		t.Fatalf("task listing got %+v", tasks)
	}
}

func TestCaptureWithRuleForcesTask(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, http.MethodPost, "/capture", captureIn{
		Text:            "water the plants",
		ClientTimestamp: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		RecurrenceRule:  "FREQ=WEEKLY;INTERVAL=1",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("capture got %d: %s", w.Code, w.Body.String())
	}
	rec := decode[model.Record](t, w)
	if rec.Kind != model.KindTask {
		t.Fatalf("kind got %q want task", rec.Kind)
	}
	if rec.RecurrenceRule != "FREQ=WEEKLY;INTERVAL=1" {
		t.Fatalf("rule got %q", rec.RecurrenceRule)
	}
}

func TestCaptureRejectsMalformedRule(t *testing.T) {
	s := newTestServer(t, Options{})
	w := doJSON(t, s, http.MethodPost, "/capture", captureIn{
		Text:           "water the plants",
		RecurrenceRule: "FREQ=HOURLY",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got %d want 400", w.Code)
	}
}

func TestCaptureNoteLandsInMemories(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, http.MethodPost, "/capture", captureIn{
		Text:            "great coffee at the corner place #coffee",
		ClientTimestamp: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}, nil)
	rec := decode[model.Record](t, w)
	if rec.Kind != model.KindNote {
		t.Fatalf("kind got %q want note", rec.Kind)
	}

	w = doJSON(t, s, http.MethodGet, "/memories?q=coffee", nil, nil)
	list := decode[struct {
		Items []model.Record `json:"items"`
		Total int            `json:"total"`
	}](t, w)
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("memories got total=%d items=%d", list.Total, len(list.Items))
	}
	if list.Items[0].Text != "great coffee at the corner place #coffee" {
		t.Fatalf("memory text got %q", list.Items[0].Text)
	}
}

func TestMarkDoneAndNotFound(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, http.MethodPost, "/tasks", taskIn{Text: "ship release"}, nil)
	rec := decode[model.Record](t, w)

	w = doJSON(t, s, http.MethodPost, "/tasks/"+rec.ID+"/done", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("mark done got %d", w.Code)
	}
	updated := decode[model.Record](t, w)
	if updated.Status != model.StatusDone {
		t.Fatalf("status got %q want done", updated.Status)
	}

	w = doJSON(t, s, http.MethodPost, "/tasks/no-such-id/done", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing task got %d want 404", w.Code)
	}
}

func TestOccurrencesListAndDone(t *testing.T) {
	s := newTestServer(t, Options{})

	w := doJSON(t, s, http.MethodPost, "/tasks", taskIn{
		Text:           "standup",
		DueAt:          timePtr(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		RecurrenceRule: "FREQ=DAILY;INTERVAL=1;COUNT=5",
	}, nil)
	rec := decode[model.Record](t, w)

	path := fmt.Sprintf("/tasks/%s/occurrences?start=%s&end=%s", rec.ID,
		"2024-01-01T00:00:00Z", "2024-01-10T00:00:00Z")
	w = doJSON(t, s, http.MethodGet, path, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("occurrences got %d: %s", w.Code, w.Body.String())
	}
	occs := decode[[]occurrenceOut](t, w)
	if len(occs) != 5 {
		t.Fatalf("occurrence count got %d want 5", len(occs))
	}
	if occs[0].OccurrenceIndex != 1 || occs[4].OccurrenceIndex != 5 {
		t.Fatalf("indexes got %d..%d want 1..5", occs[0].OccurrenceIndex, occs[4].OccurrenceIndex)
	}

	// Completing occurrence 3 flips only occurrence 3.
	w = doJSON(t, s, http.MethodPost, "/tasks/"+rec.ID+"/occurrences/3/done", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("occurrence done got %d: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodGet, path, nil, nil)
	occs = decode[[]occurrenceOut](t, w)
	for _, occ := range occs {
		want := occ.OccurrenceIndex == 3
		if occ.Done != want {
			t.Fatalf("occurrence %d done=%v want %v", occ.OccurrenceIndex, occ.Done, want)
		}
	}
}

func TestOccurrenceDoneRejectsBadIndex(t *testing.T) {
	s := newTestServer(t, Options{})
	w := doJSON(t, s, http.MethodPost, "/tasks", taskIn{
		Text:           "standup",
		DueAt:          timePtr(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		RecurrenceRule: "FREQ=DAILY;INTERVAL=1",
	}, nil)
	rec := decode[model.Record](t, w)

	w = doJSON(t, s, http.MethodPost, "/tasks/"+rec.ID+"/occurrences/0/done", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("index 0 got %d want 400", w.Code)
	}
}

func TestCalendarFeedCarriesRule(t *testing.T) {
	s := newTestServer(t, Options{})
	doJSON(t, s, http.MethodPost, "/tasks", taskIn{
		Text:           "standup #work",
		DueAt:          timePtr(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		RecurrenceRule: "FREQ=DAILY;INTERVAL=1;COUNT=10",
	}, nil)

	w := doJSON(t, s, http.MethodGet, "/calendar.ics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("feed got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type got %q", ct)
	}
	body := w.Body.String()
	if strings.Count(body, "BEGIN:VEVENT") != 1 {
		t.Fatalf("want exactly 1 VEVENT, body:\n%s", body)
	}
	if !strings.Contains(body, "RRULE:FREQ=DAILY;INTERVAL=1;COUNT=10") {
		t.Fatalf("missing RRULE, body:\n%s", body)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestServer(t, Options{})
	doJSON(t, src, http.MethodPost, "/capture", captureIn{Text: "note one"}, nil)
	doJSON(t, src, http.MethodPost, "/tasks", taskIn{Text: "task one"}, nil)

	w := doJSON(t, src, http.MethodGet, "/export", nil, nil)
	data := decode[struct {
		Records []model.Record `json:"records"`
	}](t, w)
	if len(data.Records) != 2 {
		t.Fatalf("export got %d records want 2", len(data.Records))
	}

	dst := newTestServer(t, Options{})
	w = doJSON(t, dst, http.MethodPost, "/import", data, nil)
	sum := decode[map[string]int](t, w)
	if sum["inserted"] != 2 || sum["failed"] != 0 {
		t.Fatalf("first import got %v", sum)
	}

	// Re-importing without overwrite skips everything.
	w = doJSON(t, dst, http.MethodPost, "/import", data, nil)
	sum = decode[map[string]int](t, w)
	if sum["skipped"] != 2 || sum["inserted"] != 0 {
		t.Fatalf("second import got %v", sum)
	}

	// With overwrite the rows count as updated.
	w = doJSON(t, dst, http.MethodPost, "/import?overwrite=true", data, nil)
	sum = decode[map[string]int](t, w)
	if sum["updated"] != 2 {
		t.Fatalf("overwrite import got %v", sum)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
