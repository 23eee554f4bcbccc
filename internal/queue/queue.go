// Package queue is the client-resident durable write queue. Writes
// that fail to reach the server are persisted here and replayed later;
// an entry only ever leaves the store after a confirmed 2xx response,
// so no write is silently dropped across disconnect cycles.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const queueTimeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS queued_writes (
	local_id INTEGER PRIMARY KEY AUTOINCREMENT,
	method TEXT NOT NULL,
	target_path TEXT NOT NULL,
	headers TEXT NOT NULL DEFAULT '{}',
	body BLOB,
	enqueued_at TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0
)`

type QueuedWrite struct {
	LocalID    int64
	Method     string
	TargetPath string
	Headers    map[string]string
	Body       []byte
	EnqueuedAt time.Time
	Attempts   int
}

// Sender delivers one queued write and reports the HTTP status. A
// transport-level failure is returned as an error; any non-2xx status
// counts as a failed attempt.
type Sender interface {
	Do(ctx context.Context, w QueuedWrite) (int, error)
}

type Result struct {
	Succeeded   int
	StillQueued int
}

type Store struct {
	db *sql.DB

	// replayMu serializes ReplayAll so a duplicate trigger firing
	// mid-replay cannot double-send an entry.
	replayMu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init queue schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue persists a write that already failed to send. The insert is
// a single transaction; an entry is never partially written.
func (s *Store) Enqueue(ctx context.Context, method, targetPath string, headers map[string]string, body []byte) (QueuedWrite, error) {
	if method == "" || targetPath == "" {
		return QueuedWrite{}, errors.New("queue: method and target path are required")
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return QueuedWrite{}, fmt.Errorf("encode headers: %w", err)
	}
	enqueuedAt := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_writes (method, target_path, headers, body, enqueued_at, attempts)
		VALUES (?, ?, ?, ?, ?, 0)`,
		method, targetPath, string(headerJSON), body, enqueuedAt.Format(queueTimeLayout),
	)
	if err != nil {
		return QueuedWrite{}, err
	}
	localID, err := res.LastInsertId()
	if err != nil {
		return QueuedWrite{}, err
	}
	return QueuedWrite{
		LocalID:    localID,
		Method:     method,
		TargetPath: targetPath,
		Headers:    headers,
		Body:       body,
		EnqueuedAt: enqueuedAt,
	}, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_writes`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) List(ctx context.Context) ([]QueuedWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT local_id, method, target_path, headers, body, enqueued_at, attempts
		FROM queued_writes ORDER BY local_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]QueuedWrite, 0)
	for rows.Next() {
		w, scanErr := scanQueuedWrite(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ReplayAll attempts every currently queued entry exactly once, each
// independently of the others: one entry failing forever never blocks
// delivery of the rest. Success deletes the entry; any failure leaves
// it queued with attempts incremented by one.
func (s *Store) ReplayAll(ctx context.Context, sender Sender) (Result, error) {
	s.replayMu.Lock()
	defer s.replayMu.Unlock()

	entries, err := s.List(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, entry := range entries {
		status, sendErr := sender.Do(ctx, entry)
		if sendErr == nil && status >= 200 && status < 300 {
			if err := s.delete(ctx, entry.LocalID); err != nil {
				return res, err
			}
			res.Succeeded++
			continue
		}
		if err := s.recordFailure(ctx, entry.LocalID); err != nil {
			return res, err
		}
		res.StillQueued++
	}
	return res, nil
}

func (s *Store) delete(ctx context.Context, localID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queued_writes WHERE local_id = ?`, localID)
	return err
}

func (s *Store) recordFailure(ctx context.Context, localID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queued_writes SET attempts = attempts + 1 WHERE local_id = ?`, localID)
	return err
}

func scanQueuedWrite(s scanner) (QueuedWrite, error) {
	var out QueuedWrite
	var headerJSON string
	var enqueued string
	if err := s.Scan(&out.LocalID, &out.Method, &out.TargetPath, &headerJSON, &out.Body, &enqueued, &out.Attempts); err != nil {
		return QueuedWrite{}, err
	}
	if err := json.Unmarshal([]byte(headerJSON), &out.Headers); err != nil {
		return QueuedWrite{}, fmt.Errorf("decode headers: %w", err)
	}
	at, err := time.Parse(queueTimeLayout, enqueued)
	if err != nil {
		return QueuedWrite{}, err
	}
	out.EnqueuedAt = at
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}
