package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseRuleDailyCount(t *testing.T) {
	rule, err := ParseRule("FREQ=DAILY;INTERVAL=2;COUNT=5")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if rule.Freq != FreqDaily || rule.Interval != 2 || rule.Count != 5 {
		t.Fatalf("unexpected rule: %+v", rule)
	}
	if !rule.Until.IsZero() {
		t.Fatalf("until should be unset, got %s", rule.Until)
	}
}

func TestParseRuleUntil(t *testing.T) {
	rule, err := ParseRule("FREQ=WEEKLY;INTERVAL=1;UNTIL=20240301T090000Z")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if !rule.Until.Equal(want) {
		t.Fatalf("until got %s want %s", rule.Until, want)
	}
}

func TestParseRuleDefaultsIntervalToOne(t *testing.T) {
	rule, err := ParseRule("FREQ=MONTHLY")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if rule.Interval != 1 {
		t.Fatalf("interval got %d want 1", rule.Interval)
	}
}

func TestParseRuleRejectsUnknownFrequency(t *testing.T) {
	_, err := ParseRule("FREQ=HOURLY;INTERVAL=1")
	if !errors.Is(err, ErrInvalidFrequency) {
		t.Fatalf("expected ErrInvalidFrequency, got %v", err)
	}
}

func TestParseRuleRejectsConflictingTerminators(t *testing.T) {
	_, err := ParseRule("FREQ=DAILY;COUNT=3;UNTIL=20240301T090000Z")
	if !errors.Is(err, ErrConflictingTerminators) {
		t.Fatalf("expected ErrConflictingTerminators, got %v", err)
	}
}

func TestParseRuleRejectsUnknownKey(t *testing.T) {
	_, err := ParseRule("FREQ=DAILY;BYDAY=MO")
	if !errors.Is(err, ErrInvalidRuleSyntax) {
		t.Fatalf("expected ErrInvalidRuleSyntax, got %v", err)
	}
}

func TestParseRuleRejectsZeroInterval(t *testing.T) {
	_, err := ParseRule("FREQ=DAILY;INTERVAL=0")
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestRuleStringRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"FREQ=DAILY;INTERVAL=1",
		"FREQ=WEEKLY;INTERVAL=2;COUNT=10",
		"FREQ=MONTHLY;INTERVAL=1;UNTIL=20251231T000000Z",
	} {
		rule, err := ParseRule(raw)
		if err != nil {
			t.Fatalf("parse %q failed: %v", raw, err)
		}
		if got := rule.String(); got != raw {
			t.Fatalf("round trip got %q want %q", got, raw)
		}
	}
}
