package storage

import "time"

type Record struct {
	ID              string
	Kind            string
	Text            string
	CreatedAt       time.Time
	Tags            []string
	People          []string
	DueAt           *time.Time
	Priority        string
	Status          string
	RecurrenceRule  string
	SeriesID        string
	OccurrenceIndex int
	NotifiedAt      *time.Time
}

type OccurrenceDone struct {
	SeriesID        string
	OccurrenceIndex int
	DoneAt          time.Time
}

type RecordListFilter struct {
	Kind     string
	OpenOnly bool
	Query    string
	Limit    int
	Offset   int
}
