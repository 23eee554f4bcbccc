// Package classify turns one raw capture into a note or a task with
// extracted tags, people, due time and priority. Classification is a
// pure function of the input text, the client timestamp and the client
// timezone offset: it never touches the clock, never fails, and the
// same input always produces the same result.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/capd/internal/model"
)

type Result struct {
	Kind     model.Kind
	Text     string
	Tags     []string
	People   []string
	DueAt    *time.Time
	Priority model.Priority
	Status   model.Status
}

var (
	tagPattern    = regexp.MustCompile(`#([A-Za-z0-9_-]+)`)
	personPattern = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

	intentPattern       = regexp.MustCompile(`(?i)\bremind\b|\bremember\s+to\b|\bdue\b|\bby\b`)
	highPriorityPattern = regexp.MustCompile(`(?i)\burgent\b|\bhigh\s+priority\b`)
	lowPriorityPattern  = regexp.MustCompile(`(?i)\blow\s+priority\b`)
)

// Classify applies the extraction steps in a fixed order: tags and
// people first, then the time matchers (first match wins), then the
// task-intent keywords. The stored text is always the input verbatim.
func Classify(text string, clientTimestamp time.Time, tzOffsetMinutes int) Result {
	res := Result{
		Kind:     model.KindNote,
		Text:     text,
		Priority: model.PriorityMed,
	}
	res.Tags = extractMentions(text, tagPattern)
	res.People = extractMentions(text, personPattern)

	// Tag and person tokens never participate in time parsing, but
	// they stay in the stored text untouched.
	scan := tagPattern.ReplaceAllString(text, " ")
	scan = personPattern.ReplaceAllString(scan, " ")

	local := clientTimestamp.UTC().Add(time.Duration(tzOffsetMinutes) * time.Minute)
	for _, m := range matchers {
		if due, ok := m.resolve(scan, local); ok {
			utc := due.Add(-time.Duration(tzOffsetMinutes) * time.Minute)
			res.DueAt = &utc
			break
		}
	}

	if res.DueAt != nil || intentPattern.MatchString(scan) {
		res.Kind = model.KindTask
		res.Status = model.StatusPending
	}
	if highPriorityPattern.MatchString(scan) {
		res.Priority = model.PriorityHigh
	} else if lowPriorityPattern.MatchString(scan) {
		res.Priority = model.PriorityLow
	}
	return res
}

func extractMentions(text string, pattern *regexp.Regexp) []string {
	out := make([]string, 0, 2)
	seen := make(map[string]bool)
	for _, match := range pattern.FindAllStringSubmatch(text, -1) {
		key := strings.ToLower(match[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, match[1])
	}
	return out
}

// timeMatcher resolves a due instant in the client's local frame.
// "now" is the client timestamp shifted by the timezone offset; the
// returned instant is in the same frame and shifted back by the
// caller. Matchers are tried strictly in order and the first match
// wins; within one matcher the leftmost match wins.
type timeMatcher struct {
	name    string
	resolve func(scan string, now time.Time) (time.Time, bool)
}

var matchers = []timeMatcher{
	{name: "in-relative", resolve: resolveInRelative},
	{name: "tomorrow", resolve: resolveTomorrow},
	{name: "today-at", resolve: resolveTodayAt},
	{name: "weekday", resolve: resolveWeekday},
	{name: "on-date", resolve: resolveOnDate},
	{name: "bare-clock", resolve: resolveBareClock},
}

// clockExpr matches "9", "9:30", "9am", "9:30 pm". Validation of the
// hour/minute ranges happens after the regex match; an out-of-range
// clock makes the whole matcher miss instead of failing capture.
const clockExpr = `(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`

var (
	inRelativePattern = regexp.MustCompile(`(?i)\bin\s+(\d{1,3})\s*(minutes?|mins?|hours?|hrs?|days?)\b`)
	tomorrowPattern   = regexp.MustCompile(`(?i)\btomorrow(?:\s+(?:at\s+)?` + clockExpr + `)?\b`)
	todayAtPattern    = regexp.MustCompile(`(?i)\btoday\s+(?:at\s+)?` + clockExpr + `\b`)
	weekdayPattern    = regexp.MustCompile(`(?i)\b(?:(next)\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)(?:\s+(?:at\s+)?` + clockExpr + `)?\b`)
	onDatePattern     = regexp.MustCompile(`(?i)\bon\s+(\d{4})-(\d{1,2})-(\d{1,2})(?:\s+(\d{1,2})(?::(\d{2}))?)?\b`)
	bareClockPattern  = regexp.MustCompile(`(?i)\b(\d{1,2}):(\d{2})\b|\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
)

const defaultHour = 9

func resolveInRelative(scan string, now time.Time) (time.Time, bool) {
	m := inRelativePattern.FindStringSubmatch(scan)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	unit := strings.ToLower(m[2])
	switch {
	case strings.HasPrefix(unit, "min"):
		return now.Add(time.Duration(n) * time.Minute), true
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		return now.Add(time.Duration(n) * time.Hour), true
	default:
		return now.AddDate(0, 0, n), true
	}
}

func resolveTomorrow(scan string, now time.Time) (time.Time, bool) {
	m := tomorrowPattern.FindStringSubmatch(scan)
	if m == nil {
		return time.Time{}, false
	}
	hour, minute, ok := clockFrom(m[1], m[2], m[3])
	if !ok {
		return time.Time{}, false
	}
	day := now.AddDate(0, 0, 1)
	return atClock(day, hour, minute), true
}

func resolveTodayAt(scan string, now time.Time) (time.Time, bool) {
	m := todayAtPattern.FindStringSubmatch(scan)
	if m == nil || m[1] == "" {
		return time.Time{}, false
	}
	hour, minute, ok := clockFrom(m[1], m[2], m[3])
	if !ok {
		return time.Time{}, false
	}
	return atClock(now, hour, minute), true
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func resolveWeekday(scan string, now time.Time) (time.Time, bool) {
	m := weekdayPattern.FindStringSubmatch(scan)
	if m == nil {
		return time.Time{}, false
	}
	target := weekdays[strings.ToLower(m[2])]
	hour, minute, ok := clockFrom(m[3], m[4], m[5])
	if !ok {
		return time.Time{}, false
	}
	delta := (int(target) - int(now.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	day := now.AddDate(0, 0, delta)
	return atClock(day, hour, minute), true
}

func resolveOnDate(scan string, now time.Time) (time.Time, bool) {
	m := onDatePattern.FindStringSubmatch(scan)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	hour, minute := defaultHour, 0
	if m[4] != "" {
		var ok bool
		hour, minute, ok = clockFrom(m[4], m[5], "")
		if !ok {
			return time.Time{}, false
		}
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, now.Location()), true
}

func resolveBareClock(scan string, now time.Time) (time.Time, bool) {
	m := bareClockPattern.FindStringSubmatch(scan)
	if m == nil {
		return time.Time{}, false
	}
	hourRaw, minuteRaw, meridiem := m[1], m[2], ""
	if hourRaw == "" {
		hourRaw, minuteRaw, meridiem = m[3], m[4], m[5]
	}
	hour, minute, ok := clockFrom(hourRaw, minuteRaw, meridiem)
	if !ok {
		return time.Time{}, false
	}
	due := atClock(now, hour, minute)
	// A time of day with no date word means the next occurrence of
	// that time: roll to tomorrow once it has already passed today.
	if !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due, true
}

func clockFrom(hourRaw, minuteRaw, meridiem string) (hour, minute int, ok bool) {
	if hourRaw == "" {
		return defaultHour, 0, true
	}
	hour, err := strconv.Atoi(hourRaw)
	if err != nil {
		return 0, 0, false
	}
	if minuteRaw != "" {
		minute, err = strconv.Atoi(minuteRaw)
		if err != nil || minute > 59 {
			return 0, 0, false
		}
	}
	switch strings.ToLower(meridiem) {
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour < 1 || hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	default:
		if hour > 23 {
			return 0, 0, false
		}
	}
	return hour, minute, true
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
