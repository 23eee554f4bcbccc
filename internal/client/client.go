// Package client talks to the capture server. It holds the network
// identity (base URL, auth token) as an explicit object owned by the
// application shell, and falls back to the durable write queue when a
// write cannot reach the server. It also implements queue.Sender, so
// replay goes through the same transport and credentials.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sandeepkv93/capd/internal/model"
	"github.com/sandeepkv93/capd/internal/queue"
)

var ErrSimulatedOffline = errors.New("client: simulated offline")

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	store   *queue.Store

	mu      sync.Mutex
	offline bool
}

func New(baseURL, token string, store *queue.Store) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		store:   store,
	}
}

// SetOffline forces every send to fail as if the network were down.
// The TUI uses it to exercise the queue without unplugging anything.
func (c *Client) SetOffline(v bool) {
	c.mu.Lock()
	c.offline = v
	c.mu.Unlock()
}

func (c *Client) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

type CaptureRequest struct {
	Text            string    `json:"text"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
	TzOffsetMinutes int       `json:"tzOffsetMinutes"`
	RecurrenceRule  string    `json:"recurrenceRule,omitempty"`
}

// Capture sends one capture to the server. When the send fails for
// connectivity reasons (or the server reports a storage failure) the
// write is queued durably and queued=true is returned with no error;
// a 4xx response is the caller's mistake and is returned as an error.
func (c *Client) Capture(ctx context.Context, req CaptureRequest) (model.Record, bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return model.Record{}, false, fmt.Errorf("encode capture: %w", err)
	}

	rec, status, sendErr := c.postJSON(ctx, "/capture", body)
	if sendErr == nil && status >= 200 && status < 300 {
		return rec, false, nil
	}
	if sendErr == nil && status >= 400 && status < 500 {
		return model.Record{}, false, fmt.Errorf("client: capture rejected with status %d", status)
	}
	if c.store == nil {
		if sendErr != nil {
			return model.Record{}, false, sendErr
		}
		return model.Record{}, false, fmt.Errorf("client: capture failed with status %d", status)
	}

	if _, err := c.store.Enqueue(ctx, http.MethodPost, "/capture", c.headers(), body); err != nil {
		return model.Record{}, false, fmt.Errorf("queue capture: %w", err)
	}
	return model.Record{}, true, nil
}

// Do replays one queued write. It satisfies queue.Sender.
func (c *Client) Do(ctx context.Context, w queue.QueuedWrite) (int, error) {
	if c.Offline() {
		return 0, ErrSimulatedOffline
	}
	req, err := http.NewRequestWithContext(ctx, w.Method, c.baseURL+w.TargetPath, bytes.NewReader(w.Body))
	if err != nil {
		return 0, err
	}
	for k, v := range w.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) MarkDone(ctx context.Context, id string, done bool) (model.Record, error) {
	path := "/tasks/" + url.PathEscape(id) + "/done?done=" + strconv.FormatBool(done)
	var rec model.Record
	if err := c.call(ctx, http.MethodPost, path, nil, &rec); err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

func (c *Client) ListTasks(ctx context.Context, openOnly bool) ([]model.Record, error) {
	path := "/tasks?open_only=" + strconv.FormatBool(openOnly)
	var out []model.Record
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type MemoryList struct {
	Items []model.Record `json:"items"`
	Total int            `json:"total"`
}

func (c *Client) ListMemories(ctx context.Context, query string, limit, offset int) (MemoryList, error) {
	values := url.Values{}
	if query != "" {
		values.Set("q", query)
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		values.Set("offset", strconv.Itoa(offset))
	}
	path := "/memories"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out MemoryList
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return MemoryList{}, err
	}
	return out, nil
}

type ExportData struct {
	Records []model.Record `json:"records"`
}

func (c *Client) Export(ctx context.Context) (ExportData, error) {
	var out ExportData
	if err := c.call(ctx, http.MethodGet, "/export", nil, &out); err != nil {
		return ExportData{}, err
	}
	return out, nil
}

type ImportSummary struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (c *Client) Import(ctx context.Context, data ExportData, overwrite bool) (ImportSummary, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("encode import: %w", err)
	}
	path := "/import?overwrite=" + strconv.FormatBool(overwrite)
	var out ImportSummary
	if err := c.call(ctx, http.MethodPost, path, body, &out); err != nil {
		return ImportSummary{}, err
	}
	return out, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{"Content-Type": "application/json"}
	if c.token != "" {
		h["X-Auth-Token"] = c.token
	}
	return h
}

func (c *Client) postJSON(ctx context.Context, path string, body []byte) (model.Record, int, error) {
	if c.Offline() {
		return model.Record{}, 0, ErrSimulatedOffline
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return model.Record{}, 0, err
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return model.Record{}, 0, err
	}
	defer resp.Body.Close()

	var rec model.Record
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return model.Record{}, resp.StatusCode, fmt.Errorf("decode capture response: %w", err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return rec, resp.StatusCode, nil
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	if c.Offline() {
		return ErrSimulatedOffline
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("client: %s %s failed with status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
