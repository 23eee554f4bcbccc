package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sandeepkv93/capd/internal/classify"
	"github.com/sandeepkv93/capd/internal/feed"
	"github.com/sandeepkv93/capd/internal/model"
	"github.com/sandeepkv93/capd/internal/recur"
	"github.com/sandeepkv93/capd/internal/storage"
)

type captureIn struct {
	Text            string    `json:"text" binding:"required"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
	TzOffsetMinutes int       `json:"tzOffsetMinutes"`
	RecurrenceRule  string    `json:"recurrenceRule"`
}

func (s *Server) handleCapture(c *gin.Context) {
	var in captureIn
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.ClientTimestamp.IsZero() {
		in.ClientTimestamp = s.now()
	}

	res := classify.Classify(in.Text, in.ClientTimestamp, in.TzOffsetMinutes)
	rec := model.Record{
		ID:        uuid.NewString(),
		Kind:      res.Kind,
		Text:      res.Text,
		CreatedAt: s.now(),
		Tags:      res.Tags,
		People:    res.People,
		DueAt:     res.DueAt,
		Priority:  res.Priority,
		Status:    res.Status,
	}
	if in.RecurrenceRule != "" {
		rule, err := model.ParseRule(in.RecurrenceRule)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		// An explicit rule always makes the capture a task, even
		// when the text alone reads like a note.
		rec.Kind = model.KindTask
		if rec.Status == "" {
			rec.Status = model.StatusPending
		}
		rec.RecurrenceRule = rule.String()
	}
	if rec.Kind == model.KindTask {
		rec.SeriesID = rec.ID
	} else {
		rec.Priority = ""
		rec.Status = ""
	}

	if err := s.repo.CreateRecord(c.Request.Context(), toStorage(rec)); err != nil {
		s.logger.Error("capture insert failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
		return
	}
	s.logger.Info("captured",
		zap.String("id", rec.ID),
		zap.String("kind", string(rec.Kind)),
		zap.Bool("has_due", rec.DueAt != nil),
	)
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListMemories(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	filter := storage.RecordListFilter{
		Kind:   string(model.KindNote),
		Query:  c.Query("q"),
		Limit:  limit,
		Offset: offset,
	}
	rows, err := s.repo.ListRecords(c.Request.Context(), filter)
	if err != nil {
		s.internalError(c, "list memories", err)
		return
	}
	total, err := s.repo.CountRecords(c.Request.Context(), storage.RecordListFilter{Kind: filter.Kind, Query: filter.Query})
	if err != nil {
		s.internalError(c, "count memories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": toModelList(rows), "total": total})
}

type memoryIn struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleCreateMemory(c *gin.Context) {
	var in memoryIn
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := classify.Classify(in.Text, s.now(), 0)
	rec := model.Record{
		ID:        uuid.NewString(),
		Kind:      model.KindNote,
		Text:      in.Text,
		CreatedAt: s.now(),
		Tags:      res.Tags,
		People:    res.People,
	}
	if err := s.repo.CreateRecord(c.Request.Context(), toStorage(rec)); err != nil {
		s.internalError(c, "create memory", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListTasks(c *gin.Context) {
	openOnly, _ := strconv.ParseBool(c.DefaultQuery("open_only", "false"))
	rows, err := s.repo.ListRecords(c.Request.Context(), storage.RecordListFilter{
		Kind:     string(model.KindTask),
		OpenOnly: openOnly,
		Limit:    intQuery(c, "limit", 200),
	})
	if err != nil {
		s.internalError(c, "list tasks", err)
		return
	}
	c.JSON(http.StatusOK, toModelList(rows))
}

type taskIn struct {
	Text           string     `json:"text" binding:"required"`
	DueAt          *time.Time `json:"dueAt"`
	Priority       string     `json:"priority"`
	RecurrenceRule string     `json:"recurrenceRule"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var in taskIn
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := classify.Classify(in.Text, s.now(), 0)
	rec := model.Record{
		ID:        uuid.NewString(),
		Kind:      model.KindTask,
		Text:      in.Text,
		CreatedAt: s.now(),
		Tags:      res.Tags,
		People:    res.People,
		DueAt:     in.DueAt,
		Priority:  model.PriorityMed,
		Status:    model.StatusPending,
	}
	rec.SeriesID = rec.ID
	if in.Priority != "" {
		rec.Priority = model.Priority(in.Priority)
	}
	if in.RecurrenceRule != "" {
		rule, err := model.ParseRule(in.RecurrenceRule)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec.RecurrenceRule = rule.String()
	}
	if err := rec.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.repo.CreateRecord(c.Request.Context(), toStorage(rec)); err != nil {
		s.internalError(c, "create task", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleMarkDone(c *gin.Context) {
	done, _ := strconv.ParseBool(c.DefaultQuery("done", "true"))
	rec, err := s.repo.MarkDone(c.Request.Context(), c.Param("id"), done)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.internalError(c, "mark done", err)
		return
	}
	c.JSON(http.StatusOK, toModel(rec))
}

type occurrenceOut struct {
	OccurrenceIndex int       `json:"occurrenceIndex"`
	DueAt           time.Time `json:"dueAt"`
	Done            bool      `json:"done"`
}

func (s *Server) handleListOccurrences(c *gin.Context) {
	rec, err := s.repo.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.internalError(c, "get task", err)
		return
	}
	if rec.RecurrenceRule == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task has no recurrence rule"})
		return
	}
	if rec.DueAt == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recurring task has no due time to anchor on"})
		return
	}
	rule, err := model.ParseRule(rec.RecurrenceRule)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	windowStart := timeQuery(c, "start", s.now())
	windowEnd := timeQuery(c, "end", s.now().AddDate(0, 3, 0))
	occs, err := recur.Expand(rule, *rec.DueAt, windowStart, windowEnd, s.hardCap)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doneRows, err := s.repo.ListOccurrenceDone(c.Request.Context(), rec.SeriesID)
	if err != nil {
		s.internalError(c, "list occurrence done", err)
		return
	}
	doneSet := make(map[int]bool, len(doneRows))
	for _, row := range doneRows {
		doneSet[row.OccurrenceIndex] = true
	}

	out := make([]occurrenceOut, 0, len(occs))
	for _, occ := range occs {
		out = append(out, occurrenceOut{
			OccurrenceIndex: occ.Index,
			DueAt:           occ.At,
			Done:            doneSet[occ.Index],
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleOccurrenceDone(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "occurrence index must be a positive integer"})
		return
	}
	done, _ := strconv.ParseBool(c.DefaultQuery("done", "true"))

	rec, err := s.repo.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		s.internalError(c, "get task", err)
		return
	}
	if err := s.repo.SetOccurrenceDone(c.Request.Context(), rec.SeriesID, index, done, s.now()); err != nil {
		s.internalError(c, "set occurrence done", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seriesId": rec.SeriesID, "occurrenceIndex": index, "done": done})
}

func (s *Server) handleCalendarFeed(c *gin.Context) {
	rows, err := s.repo.ListRecords(c.Request.Context(), storage.RecordListFilter{Kind: string(model.KindTask)})
	if err != nil {
		s.internalError(c, "list tasks for feed", err)
		return
	}
	filter := feed.Filter{
		Keyword:  c.Query("q"),
		Priority: model.Priority(c.Query("priority")),
	}
	doc := feed.Render(toModelList(rows), filter, s.now())
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(doc))
}

func (s *Server) handleExport(c *gin.Context) {
	rows, err := s.repo.ListRecords(c.Request.Context(), storage.RecordListFilter{})
	if err != nil {
		s.internalError(c, "export", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": toModelList(rows)})
}

type importIn struct {
	Records []model.Record `json:"records"`
}

func (s *Server) handleImport(c *gin.Context) {
	var in importIn
	if err := c.BindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	overwrite, _ := strconv.ParseBool(c.DefaultQuery("overwrite", "false"))

	summary := gin.H{}
	var inserted, updated, skipped, failed int
	for _, rec := range in.Records {
		if rec.Validate() != nil {
			failed++
			continue
		}
		ctx := c.Request.Context()
		_, err := s.repo.GetRecord(ctx, rec.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			if s.repo.CreateRecord(ctx, toStorage(rec)) != nil {
				failed++
			} else {
				inserted++
			}
		case err != nil:
			failed++
		case overwrite:
			if s.repo.UpdateRecord(ctx, toStorage(rec)) != nil {
				failed++
			} else {
				updated++
			}
		default:
			skipped++
		}
	}
	summary["inserted"] = inserted
	summary["updated"] = updated
	summary["skipped"] = skipped
	summary["failed"] = failed
	c.JSON(http.StatusOK, summary)
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.Error(op+" failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func timeQuery(c *gin.Context, name string, fallback time.Time) time.Time {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fallback
	}
	return v.UTC()
}

func toStorage(rec model.Record) storage.Record {
	return storage.Record{
		ID:              rec.ID,
		Kind:            string(rec.Kind),
		Text:            rec.Text,
		CreatedAt:       rec.CreatedAt,
		Tags:            rec.Tags,
		People:          rec.People,
		DueAt:           rec.DueAt,
		Priority:        string(rec.Priority),
		Status:          string(rec.Status),
		RecurrenceRule:  rec.RecurrenceRule,
		SeriesID:        rec.SeriesID,
		OccurrenceIndex: rec.OccurrenceIndex,
	}
}

func toModel(rec storage.Record) model.Record {
	return model.Record{
		ID:              rec.ID,
		Kind:            model.Kind(rec.Kind),
		Text:            rec.Text,
		CreatedAt:       rec.CreatedAt,
		Tags:            rec.Tags,
		People:          rec.People,
		DueAt:           rec.DueAt,
		Priority:        model.Priority(rec.Priority),
		Status:          model.Status(rec.Status),
		RecurrenceRule:  rec.RecurrenceRule,
		SeriesID:        rec.SeriesID,
		OccurrenceIndex: rec.OccurrenceIndex,
	}
}

func toModelList(rows []storage.Record) []model.Record {
	out := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, toModel(row))
	}
	return out
}
