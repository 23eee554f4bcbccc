package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidFrequency       = errors.New("model: invalid recurrence frequency")
	ErrInvalidInterval        = errors.New("model: invalid recurrence interval")
	ErrConflictingTerminators = errors.New("model: recurrence count and until are mutually exclusive")
	ErrInvalidRuleSyntax      = errors.New("model: invalid recurrence rule syntax")
)

type Frequency string

const (
	FreqDaily   Frequency = "DAILY"
	FreqWeekly  Frequency = "WEEKLY"
	FreqMonthly Frequency = "MONTHLY"
)

func (f Frequency) IsValid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly:
		return true
	default:
		return false
	}
}

const untilLayout = "20060102T150405Z"

// RecurrenceRule is the supported subset of an RFC 5545 RRULE: a
// frequency, an interval, and at most one terminator. A zero Count and
// zero Until mean the rule is open ended; expansion is still bounded
// by the expander's hard cap.
type RecurrenceRule struct {
	Freq     Frequency
	Interval int
	Count    int
	Until    time.Time
}

func (r RecurrenceRule) Validate() error {
	if !r.Freq.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, r.Freq)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, r.Interval)
	}
	if r.Count < 0 {
		return fmt.Errorf("%w: count %d", ErrInvalidRuleSyntax, r.Count)
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return ErrConflictingTerminators
	}
	return nil
}

// ParseRule parses strings like "FREQ=DAILY;INTERVAL=2;COUNT=5".
// Unknown keys and structural problems are errors, never coerced.
func ParseRule(raw string) (RecurrenceRule, error) {
	rule := RecurrenceRule{Interval: 1}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RecurrenceRule{}, fmt.Errorf("%w: empty rule", ErrInvalidRuleSyntax)
	}
	trimmed = strings.TrimPrefix(trimmed, "RRULE:")

	seen := make(map[string]bool, 4)
	for _, part := range strings.Split(trimmed, ";") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found || value == "" {
			return RecurrenceRule{}, fmt.Errorf("%w: %q", ErrInvalidRuleSyntax, part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if seen[key] {
			return RecurrenceRule{}, fmt.Errorf("%w: duplicate key %s", ErrInvalidRuleSyntax, key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			rule.Freq = Frequency(strings.ToUpper(strings.TrimSpace(value)))
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil {
				return RecurrenceRule{}, fmt.Errorf("%w: %s", ErrInvalidInterval, value)
			}
			rule.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return RecurrenceRule{}, fmt.Errorf("%w: count %s", ErrInvalidRuleSyntax, value)
			}
			rule.Count = n
		case "UNTIL":
			until, err := time.Parse(untilLayout, strings.ToUpper(value))
			if err != nil {
				return RecurrenceRule{}, fmt.Errorf("%w: until %s", ErrInvalidRuleSyntax, value)
			}
			rule.Until = until.UTC()
		default:
			return RecurrenceRule{}, fmt.Errorf("%w: unknown key %s", ErrInvalidRuleSyntax, key)
		}
	}
	if err := rule.Validate(); err != nil {
		return RecurrenceRule{}, err
	}
	return rule, nil
}

// String renders the canonical rule text used for storage and for the
// RRULE line in the calendar feed.
func (r RecurrenceRule) String() string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(r.Freq))
	b.WriteString(";INTERVAL=")
	b.WriteString(strconv.Itoa(r.Interval))
	if r.Count > 0 {
		b.WriteString(";COUNT=")
		b.WriteString(strconv.Itoa(r.Count))
	} else if !r.Until.IsZero() {
		b.WriteString(";UNTIL=")
		b.WriteString(r.Until.UTC().Format(untilLayout))
	}
	return b.String()
}
