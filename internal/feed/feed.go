// Package feed renders stored tasks as an iCalendar document.
// Recurring tasks are emitted as a single VEVENT carrying their RRULE
// line so the subscribing calendar application performs its own
// expansion; the feed itself never grows with the length of a series.
package feed

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/capd/internal/model"
)

const (
	icsTimeLayout = "20060102T150405Z"
	foldLimit     = 75
)

// nsUID namespaces the deterministic event UIDs. Same task, same UID,
// every render, so calendar clients deduplicate on refresh.
var nsUID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

type Filter struct {
	Keyword  string
	Priority model.Priority
}

// Render produces the calendar document for every task passing the
// filter. A task that cannot be rendered is skipped; the feed never
// fails as a whole.
func Render(tasks []model.Record, filter Filter, now time.Time) string {
	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:-//capd//calendar feed//EN")
	writeLine(&b, "CALSCALE:GREGORIAN")

	for _, task := range tasks {
		if !matches(task, filter) {
			continue
		}
		event, ok := renderEvent(task, now)
		if !ok {
			continue
		}
		b.WriteString(event)
	}

	writeLine(&b, "END:VCALENDAR")
	return b.String()
}

func matches(task model.Record, filter Filter) bool {
	if task.Kind != model.KindTask {
		return false
	}
	if filter.Keyword != "" && !strings.Contains(strings.ToLower(task.Text), strings.ToLower(filter.Keyword)) {
		return false
	}
	if filter.Priority != "" && task.Priority != filter.Priority {
		return false
	}
	return true
}

func renderEvent(task model.Record, now time.Time) (string, bool) {
	if strings.TrimSpace(task.ID) == "" || task.DueAt == nil {
		return "", false
	}
	rrule := ""
	if task.RecurrenceRule != "" {
		rule, err := model.ParseRule(task.RecurrenceRule)
		if err != nil {
			return "", false
		}
		rrule = rule.String()
	}

	var b strings.Builder
	writeLine(&b, "BEGIN:VEVENT")
	writeLine(&b, "UID:"+EventUID(seriesOf(task), task.OccurrenceIndex))
	writeLine(&b, "DTSTAMP:"+now.UTC().Format(icsTimeLayout))
	writeLine(&b, "DTSTART:"+task.DueAt.UTC().Format(icsTimeLayout))
	if rrule != "" {
		writeLine(&b, "RRULE:"+rrule)
	}
	writeLine(&b, "SUMMARY:"+escapeText(task.Text))
	if task.Status == model.StatusDone {
		writeLine(&b, "STATUS:COMPLETED")
	} else {
		writeLine(&b, "STATUS:NEEDS-ACTION")
	}
	if len(task.Tags) > 0 {
		tags := make([]string, len(task.Tags))
		copy(tags, task.Tags)
		sort.Strings(tags)
		writeLine(&b, "CATEGORIES:"+escapeText(strings.Join(tags, ",")))
	}
	writeLine(&b, "END:VEVENT")
	return b.String(), true
}

// EventUID derives the stable calendar UID for one occurrence slot of
// a series. Index 0 is the stored original task.
func EventUID(seriesID string, occurrenceIndex int) string {
	id := uuid.NewSHA1(nsUID, []byte(fmt.Sprintf("%s/%d", seriesID, occurrenceIndex)))
	return id.String() + "@capd"
}

func seriesOf(task model.Record) string {
	if task.SeriesID != "" {
		return task.SeriesID
	}
	return task.ID
}

func escapeText(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\r\n", `\n`,
		"\n", `\n`,
	)
	return replacer.Replace(s)
}

// writeLine folds content lines at 75 octets per RFC 5545 and
// terminates them with CRLF.
func writeLine(b *strings.Builder, line string) {
	limit := foldLimit
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isBoundary(line, cut) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines start with one space that counts
		// against the 75-octet limit.
		limit = foldLimit - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

// isBoundary reports whether cutting at i keeps UTF-8 sequences whole.
func isBoundary(s string, i int) bool {
	return s[i]&0xC0 != 0x80
}
