// Package syncer schedules replay of the durable write queue. It owns
// no transformation logic: connectivity changes and explicit triggers
// arrive as typed events through a single dispatcher goroutine, each
// event runs to completion before the next is processed, and every
// replay is followed by a queue-updated push with the fresh count.
package syncer

import (
	"context"
	"errors"
	"sync"

	"github.com/sandeepkv93/capd/internal/queue"
)

type ConnectivityChanged struct {
	Online bool
}

type ProcessQueue struct{}

// QueueUpdated is pushed to subscribers after any replay or local
// enqueue changes the queue depth.
type QueueUpdated struct {
	Count int
}

type event any

type Coordinator struct {
	store  *queue.Store
	sender queue.Sender

	events chan event
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	online  bool
	subs    []chan QueueUpdated
}

func New(store *queue.Store, sender queue.Sender) *Coordinator {
	return &Coordinator{
		store:  store,
		sender: sender,
		events: make(chan event, 16),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	go c.loop()
}

func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()
	<-c.doneCh
}

// SetOnline feeds a connectivity-changed event. Replay fires only on
// the offline-to-online transition, not on repeated online reports.
func (c *Coordinator) SetOnline(online bool) {
	c.dispatch(ConnectivityChanged{Online: online})
}

// TriggerSync feeds an explicit process-queue event.
func (c *Coordinator) TriggerSync() {
	c.dispatch(ProcessQueue{})
}

// NotifyEnqueued publishes the current count after the caller queued a
// write locally; the coordinator itself never enqueues.
func (c *Coordinator) NotifyEnqueued() {
	c.publishCount(context.Background())
}

// QueueCount answers the UI layer's get-queue-count request.
func (c *Coordinator) QueueCount(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.store == nil {
		c.mu.Unlock()
		return 0, errors.New("syncer: no queue store")
	}
	c.mu.Unlock()
	return c.store.Count(ctx)
}

// Subscribe returns a channel receiving queue-updated pushes. The
// channel is buffered and never blocks the dispatcher; a slow consumer
// misses intermediate counts, never the final one it reads next.
func (c *Coordinator) Subscribe() <-chan QueueUpdated {
	ch := make(chan QueueUpdated, 8)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

func (c *Coordinator) dispatch(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopCh:
	}
}

func (c *Coordinator) loop() {
	defer close(c.doneCh)
	ctx := context.Background()
	for {
		select {
		case ev := <-c.events:
			c.handle(ctx, ev)
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch typed := ev.(type) {
	case ConnectivityChanged:
		c.mu.Lock()
		wasOnline := c.online
		c.online = typed.Online
		c.mu.Unlock()
		if typed.Online && !wasOnline {
			c.replay(ctx)
		}
	case ProcessQueue:
		c.replay(ctx)
	}
}

func (c *Coordinator) replay(ctx context.Context) {
	// Failures leave entries queued for the next trigger; the
	// coordinator has no retry policy of its own.
	_, _ = c.store.ReplayAll(ctx, c.sender)
	c.publishCount(ctx)
}

func (c *Coordinator) publishCount(ctx context.Context) {
	count, err := c.store.Count(ctx)
	if err != nil {
		return
	}
	c.mu.Lock()
	subs := make([]chan QueueUpdated, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- QueueUpdated{Count: count}:
		default:
		}
	}
}
