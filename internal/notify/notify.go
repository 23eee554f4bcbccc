// Package notify pushes reminders for due tasks through an ntfy topic.
// A background loop polls storage for tasks whose due time has passed
// without a notification and publishes one message per task.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/capd/internal/storage"
)

const defaultInterval = 30 * time.Second

type Notifier struct {
	repo     storage.Repository
	logger   *zap.Logger
	server   string
	topic    string
	interval time.Duration
	httpc    *http.Client
	now      func() time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(repo storage.Repository, logger *zap.Logger, server, topic string, interval time.Duration) *Notifier {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Notifier{
		repo:     repo,
		logger:   logger,
		server:   strings.TrimRight(server, "/"),
		topic:    topic,
		interval: interval,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		now:      func() time.Time { return time.Now().UTC() },
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. A notifier with no topic configured
// starts as a no-op so the caller does not have to special-case it.
func (n *Notifier) Start() {
	n.mu.Lock()
	if n.started || n.stopped {
		n.mu.Unlock()
		return
	}
	n.started = true
	n.mu.Unlock()

	if n.topic == "" {
		n.logger.Info("ntfy topic not configured, notifications disabled")
		close(n.doneCh)
		return
	}
	go n.loop()
}

func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.started || n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.mu.Unlock()

	close(n.stopCh)
	<-n.doneCh
}

func (n *Notifier) loop() {
	defer close(n.doneCh)
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.Sweep(context.Background())
		}
	}
}

// Sweep publishes one notification for every due, unnotified task and
// marks it notified. A failed publish leaves the task unnotified so the
// next sweep retries it.
func (n *Notifier) Sweep(ctx context.Context) {
	due, err := n.repo.DueUnnotified(ctx, n.now())
	if err != nil {
		n.logger.Error("due lookup failed", zap.Error(err))
		return
	}
	for _, rec := range due {
		if err := n.publish(ctx, rec); err != nil {
			n.logger.Warn("ntfy publish failed",
				zap.String("id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		if err := n.repo.SetNotified(ctx, rec.ID, n.now()); err != nil {
			n.logger.Error("mark notified failed",
				zap.String("id", rec.ID),
				zap.Error(err),
			)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, rec storage.Record) error {
	url := n.server + "/" + n.topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(rec.Text))
	if err != nil {
		return err
	}
	req.Header.Set("Title", "Task due")
	req.Header.Set("Tags", "alarm_clock")
	if rec.Priority == "high" {
		req.Header.Set("Priority", "high")
	}
	resp, err := n.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: ntfy returned status %d", resp.StatusCode)
	}
	return nil
}
