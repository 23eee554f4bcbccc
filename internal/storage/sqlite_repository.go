package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteTimeLayout = time.RFC3339Nano

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) DB() *sql.DB { return r.db }

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

const recordColumns = `id, kind, text, created_at, tags, people, due_at, priority, status, recurrence_rule, series_id, occurrence_index, notified_at`

func (r *SQLiteRepository) CreateRecord(ctx context.Context, in Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Kind, in.Text, mustTime(in.CreatedAt), joinList(in.Tags), joinList(in.People),
		nullTime(in.DueAt), in.Priority, in.Status, in.RecurrenceRule, in.SeriesID, in.OccurrenceIndex,
		nullTime(in.NotifiedAt),
	)
	return err
}

func (r *SQLiteRepository) GetRecord(ctx context.Context, id string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *SQLiteRepository) UpdateRecord(ctx context.Context, in Record) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE records
		SET kind = ?, text = ?, tags = ?, people = ?, due_at = ?, priority = ?, status = ?,
		    recurrence_rule = ?, series_id = ?, occurrence_index = ?, notified_at = ?
		WHERE id = ?`,
		in.Kind, in.Text, joinList(in.Tags), joinList(in.People), nullTime(in.DueAt),
		in.Priority, in.Status, in.RecurrenceRule, in.SeriesID, in.OccurrenceIndex,
		nullTime(in.NotifiedAt), in.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteRecord(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListRecords(ctx context.Context, filter RecordListFilter) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records`
	clauses, args := filterClauses(filter)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if filter.OpenOnly {
		query += ` ORDER BY COALESCE(due_at, '9999-12-31') ASC, created_at DESC`
	} else {
		query += ` ORDER BY created_at DESC`
	}
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CountRecords(ctx context.Context, filter RecordListFilter) (int, error) {
	query := `SELECT COUNT(*) FROM records`
	clauses, args := filterClauses(filter)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func filterClauses(filter RecordListFilter) ([]string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.OpenOnly {
		clauses = append(clauses, "status = ?")
		args = append(args, "pending")
	}
	if filter.Query != "" {
		clauses = append(clauses, "(text LIKE ? OR tags LIKE ? OR people LIKE ?)")
		term := "%" + filter.Query + "%"
		args = append(args, term, term, term)
	}
	return clauses, args
}

func (r *SQLiteRepository) MarkDone(ctx context.Context, id string, done bool) (Record, error) {
	status := "pending"
	if done {
		status = "done"
	}
	res, err := r.db.ExecContext(ctx, `UPDATE records SET status = ? WHERE id = ? AND kind = 'task'`, status, id)
	if err != nil {
		return Record{}, err
	}
	if err := checkRowsAffected(res); err != nil {
		return Record{}, err
	}
	return r.GetRecord(ctx, id)
}

func (r *SQLiteRepository) SetOccurrenceDone(ctx context.Context, seriesID string, occurrenceIndex int, done bool, at time.Time) error {
	if done {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO occurrence_done (series_id, occurrence_index, done_at)
			VALUES (?, ?, ?)
			ON CONFLICT (series_id, occurrence_index) DO UPDATE SET done_at = excluded.done_at`,
			seriesID, occurrenceIndex, mustTime(at),
		)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM occurrence_done WHERE series_id = ? AND occurrence_index = ?`,
		seriesID, occurrenceIndex,
	)
	return err
}

func (r *SQLiteRepository) ListOccurrenceDone(ctx context.Context, seriesID string) ([]OccurrenceDone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT series_id, occurrence_index, done_at
		FROM occurrence_done WHERE series_id = ?
		ORDER BY occurrence_index ASC`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]OccurrenceDone, 0)
	for rows.Next() {
		var item OccurrenceDone
		var doneAt string
		if err := rows.Scan(&item.SeriesID, &item.OccurrenceIndex, &doneAt); err != nil {
			return nil, err
		}
		at, err := parseRequiredTime(doneAt)
		if err != nil {
			return nil, err
		}
		item.DoneAt = at
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DueUnnotified(ctx context.Context, now time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records
		WHERE kind = 'task' AND status = 'pending'
		  AND due_at IS NOT NULL AND due_at <= ?
		  AND notified_at IS NULL`, mustTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetNotified(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE records SET notified_at = ? WHERE id = ?`, mustTime(at), id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func joinList(items []string) string {
	return strings.Join(items, " ")
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Fields(raw)
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var out Record
	var created string
	var tags, people string
	var due, notified sql.NullString
	if err := s.Scan(&out.ID, &out.Kind, &out.Text, &created, &tags, &people, &due,
		&out.Priority, &out.Status, &out.RecurrenceRule, &out.SeriesID, &out.OccurrenceIndex, &notified); err != nil {
		return Record{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return Record{}, err
	}
	dueAt, err := parseNullableTime(due)
	if err != nil {
		return Record{}, err
	}
	notifiedAt, err := parseNullableTime(notified)
	if err != nil {
		return Record{}, err
	}
	out.CreatedAt = createdAt
	out.Tags = splitList(tags)
	out.People = splitList(people)
	out.DueAt = dueAt
	out.NotifiedAt = notifiedAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
