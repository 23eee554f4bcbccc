package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidKind     = errors.New("model: invalid record kind")
	ErrInvalidPriority = errors.New("model: invalid task priority")
	ErrInvalidStatus   = errors.New("model: invalid task status")
)

type Kind string

const (
	KindNote Kind = "note"
	KindTask Kind = "task"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindNote, KindTask:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow  Priority = "low"
	PriorityMed  Priority = "med"
	PriorityHigh Priority = "high"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMed, PriorityHigh:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusDone:
		return true
	default:
		return false
	}
}

// Record is a single captured item. Notes carry only the base fields;
// tasks additionally use DueAt, Priority, Status, RecurrenceRule,
// SeriesID and OccurrenceIndex. SeriesID equals ID for an original
// task; generated occurrences point back at the original. Index 0 is
// reserved for the stored original.
type Record struct {
	ID              string     `json:"id"`
	Kind            Kind       `json:"kind"`
	Text            string     `json:"text"`
	CreatedAt       time.Time  `json:"createdAt"`
	Tags            []string   `json:"tags"`
	People          []string   `json:"people"`
	DueAt           *time.Time `json:"dueAt,omitempty"`
	Priority        Priority   `json:"priority,omitempty"`
	Status          Status     `json:"status,omitempty"`
	RecurrenceRule  string     `json:"recurrenceRule,omitempty"`
	SeriesID        string     `json:"seriesId,omitempty"`
	OccurrenceIndex int        `json:"occurrenceIndex"`
}

func (r Record) IsTask() bool { return r.Kind == KindTask }

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("model: record id is required")
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidKind, r.Kind)
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("model: record text is required")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("model: record created_at is required")
	}
	if r.Kind == KindNote {
		if r.DueAt != nil || r.RecurrenceRule != "" {
			return errors.New("model: note cannot carry task fields")
		}
		return nil
	}
	if !r.Priority.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, r.Priority)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}
	if r.OccurrenceIndex < 0 {
		return errors.New("model: occurrence index cannot be negative")
	}
	if r.RecurrenceRule != "" {
		rule, err := ParseRule(r.RecurrenceRule)
		if err != nil {
			return err
		}
		if err := rule.Validate(); err != nil {
			return err
		}
	}
	return nil
}
