package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("storage: not found")

type Repository interface {
	CreateRecord(ctx context.Context, in Record) error
	GetRecord(ctx context.Context, id string) (Record, error)
	UpdateRecord(ctx context.Context, in Record) error
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context, filter RecordListFilter) ([]Record, error)
	CountRecords(ctx context.Context, filter RecordListFilter) (int, error)

	MarkDone(ctx context.Context, id string, done bool) (Record, error)
	SetOccurrenceDone(ctx context.Context, seriesID string, occurrenceIndex int, done bool, at time.Time) error
	ListOccurrenceDone(ctx context.Context, seriesID string) ([]OccurrenceDone, error)

	DueUnnotified(ctx context.Context, now time.Time) ([]Record, error)
	SetNotified(ctx context.Context, id string, at time.Time) error
}
