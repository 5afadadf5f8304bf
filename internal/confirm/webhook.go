package confirm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"tools.zach/dev/timetrack/internal/activity"
)

// webhookQueueSize bounds undelivered requests. When full, new requests are
// dropped with a warning rather than blocking the tracker.
const webhookQueueSize = 64

// WebhookSink POSTs each request as JSON to a URL from a background goroutine.
type WebhookSink struct {
	url    string
	client *retryablehttp.Client

	mu     sync.RWMutex
	closed bool
	queue  chan activity.ConfirmationRequest
	done   chan struct{}
}

// WebhookOption configures a [WebhookSink].
type WebhookOption func(*WebhookSink)

// WithHTTPClient replaces the default retrying client, e.g. to shorten
// backoff in tests.
func WithHTTPClient(c *retryablehttp.Client) WebhookOption {
	return func(w *WebhookSink) { w.client = c }
}

// NewWebhookSink starts a sink delivering to url. Call Close to stop it.
func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	w := &WebhookSink{
		url:    url,
		client: newHTTPClient(),
		queue:  make(chan activity.ConfirmationRequest, webhookQueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run()
	return w
}

func newHTTPClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 10 * time.Second
	c.Logger = nil // suppress retryablehttp's default logging
	return c
}

// Notify queues req for delivery without blocking. Requests arriving after
// Close are dropped.
func (w *WebhookSink) Notify(req activity.ConfirmationRequest) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		slog.Debug("confirmation webhook closed, dropping request", "session", req.SessionID)
		return
	}
	select {
	case w.queue <- req:
	default:
		slog.Warn("confirmation webhook queue full, dropping request", "session", req.SessionID)
	}
}

// Close delivers what is already queued and stops the sink.
func (w *WebhookSink) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *WebhookSink) run() {
	defer close(w.done)
	for req := range w.queue {
		if err := w.post(req); err != nil {
			slog.Warn("confirmation webhook failed", "session", req.SessionID, "error", err)
			continue
		}
		slog.Debug("confirmation webhook delivered", "session", req.SessionID)
	}
}

func (w *WebhookSink) post(req activity.ConfirmationRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	r, err := retryablehttp.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
