// Package recur turns one stored recurrence rule into concrete,
// bounded calendar occurrences. Expansion is pure and restartable:
// occurrence indexes are absolute positions in the series, so the
// same (seriesID, index) pair identifies the same instant no matter
// how the query window is placed.
package recur

import (
	"errors"
	"time"

	"github.com/sandeepkv93/capd/internal/model"
)

// DefaultHardCap bounds generation for open-ended rules. It applies
// to computed occurrences, not emitted ones, so a window far in the
// future cannot force unbounded work.
const DefaultHardCap = 500

var ErrMissingOrigin = errors.New("recur: series origin is required")

type Occurrence struct {
	Index int
	At    time.Time
}

// Expand generates the occurrences of rule that fall inside
// [windowStart, windowEnd], starting from the series origin due time.
// Index 1 is the first generated occurrence; index 0 is reserved for
// the stored original record and never emitted here. Occurrences
// before windowStart are computed to keep indexes absolute but are
// not returned.
func Expand(rule model.RecurrenceRule, origin, windowStart, windowEnd time.Time, hardCap int) ([]Occurrence, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if origin.IsZero() {
		return nil, ErrMissingOrigin
	}
	if hardCap <= 0 {
		hardCap = DefaultHardCap
	}

	origin = origin.UTC()
	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()

	out := make([]Occurrence, 0)
	for index := 1; index <= hardCap; index++ {
		if rule.Count > 0 && index > rule.Count {
			break
		}
		at := step(rule, origin, index)
		if !rule.Until.IsZero() && at.After(rule.Until) {
			break
		}
		if at.After(windowEnd) {
			break
		}
		if at.Before(windowStart) {
			continue
		}
		out = append(out, Occurrence{Index: index, At: at})
	}
	return out, nil
}

// step computes occurrence n directly from the origin rather than
// cumulatively, so monthly clamping never drifts: an origin on Jan 31
// yields Feb 28/29, then Mar 31 again.
func step(rule model.RecurrenceRule, origin time.Time, n int) time.Time {
	units := rule.Interval * n
	switch rule.Freq {
	case model.FreqDaily:
		return origin.AddDate(0, 0, units)
	case model.FreqWeekly:
		return origin.AddDate(0, 0, units*7)
	case model.FreqMonthly:
		return addMonthsClamped(origin, units)
	default:
		return origin
	}
}

func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	first = first.AddDate(0, months, 0)
	day := t.Day()
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
