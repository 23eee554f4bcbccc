package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/sandeepkv93/capd/internal/model"
)

var renderTime = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func feedTask(id, text string) model.Record {
	due := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	return model.Record{
		ID:        id,
		Kind:      model.KindTask,
		Text:      text,
		CreatedAt: renderTime,
		DueAt:     &due,
		Priority:  model.PriorityMed,
		Status:    model.StatusPending,
		SeriesID:  id,
	}
}

func TestRenderSingleEvent(t *testing.T) {
	doc := Render([]model.Record{feedTask("t1", "dentist appointment")}, Filter{}, renderTime)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"BEGIN:VEVENT",
		"DTSTART:20240115T090000Z",
		"SUMMARY:dentist appointment",
		"STATUS:NEEDS-ACTION",
		"END:VEVENT",
		"END:VCALENDAR",
	} {
		if !strings.Contains(doc, want) {
			t.Fatalf("feed missing %q:\n%s", want, doc)
		}
	}
	if strings.Contains(doc, "RRULE") {
		t.Fatal("non-recurring task should not carry an RRULE")
	}
}

func TestRenderRecurringCarriesRuleNotExpansion(t *testing.T) {
	task := feedTask("t2", "weekly review")
	task.RecurrenceRule = "FREQ=WEEKLY;INTERVAL=1"
	doc := Render([]model.Record{task}, Filter{}, renderTime)

	if !strings.Contains(doc, "RRULE:FREQ=WEEKLY;INTERVAL=1") {
		t.Fatalf("feed missing RRULE line:\n%s", doc)
	}
	if got := strings.Count(doc, "BEGIN:VEVENT"); got != 1 {
		t.Fatalf("recurring task should emit exactly one event, got %d", got)
	}
}

func TestRenderUIDStableAcrossRenders(t *testing.T) {
	task := feedTask("t3", "pay rent")
	first := Render([]model.Record{task}, Filter{}, renderTime)
	second := Render([]model.Record{task}, Filter{}, renderTime.Add(48*time.Hour))

	uid := ""
	for _, line := range strings.Split(first, "\r\n") {
		if strings.HasPrefix(line, "UID:") {
			uid = line
		}
	}
	if uid == "" {
		t.Fatal("no UID line in feed")
	}
	if !strings.Contains(second, uid) {
		t.Fatalf("UID changed between renders: %s", uid)
	}
}

func TestRenderDistinctUIDPerOccurrenceSlot(t *testing.T) {
	if EventUID("42", 0) == EventUID("42", 1) {
		t.Fatal("occurrence slots must have distinct UIDs")
	}
	if EventUID("42", 1) == EventUID("43", 1) {
		t.Fatal("series must have distinct UIDs")
	}
}

func TestRenderStatusMapping(t *testing.T) {
	task := feedTask("t4", "done thing")
	task.Status = model.StatusDone
	doc := Render([]model.Record{task}, Filter{}, renderTime)
	if !strings.Contains(doc, "STATUS:COMPLETED") {
		t.Fatalf("done task should map to COMPLETED:\n%s", doc)
	}
}

func TestRenderFilters(t *testing.T) {
	high := feedTask("t5", "urgent server patch")
	high.Priority = model.PriorityHigh
	low := feedTask("t6", "water plants")
	low.Priority = model.PriorityLow

	doc := Render([]model.Record{high, low}, Filter{Priority: model.PriorityHigh}, renderTime)
	if strings.Contains(doc, "water plants") {
		t.Fatal("priority filter leaked a low task")
	}
	doc = Render([]model.Record{high, low}, Filter{Keyword: "PLANTS"}, renderTime)
	if !strings.Contains(doc, "water plants") || strings.Contains(doc, "server patch") {
		t.Fatalf("keyword filter wrong:\n%s", doc)
	}
}

func TestRenderSkipsMalformedTask(t *testing.T) {
	bad := feedTask("t7", "broken rule")
	bad.RecurrenceRule = "FREQ=NEVER"
	good := feedTask("t8", "still rendered")

	doc := Render([]model.Record{bad, good}, Filter{}, renderTime)
	if strings.Contains(doc, "broken rule") {
		t.Fatal("malformed task should be skipped")
	}
	if !strings.Contains(doc, "still rendered") {
		t.Fatal("generation must continue past a malformed task")
	}
}

func TestRenderEscapesText(t *testing.T) {
	task := feedTask("t9", "call mom; then dad, maybe")
	doc := Render([]model.Record{task}, Filter{}, renderTime)
	if !strings.Contains(doc, `call mom\; then dad\, maybe`) {
		t.Fatalf("text not escaped:\n%s", doc)
	}
}

func TestRenderFoldsLongLines(t *testing.T) {
	task := feedTask("t10", strings.Repeat("long capture text ", 20))
	doc := Render([]model.Record{task}, Filter{}, renderTime)
	for _, line := range strings.Split(doc, "\r\n") {
		if len(line) > 75 {
			t.Fatalf("unfolded line of %d octets: %q", len(line), line)
		}
	}
}
