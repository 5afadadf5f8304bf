package confirm

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tools.zach/dev/timetrack/internal/activity"
)

func fastClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = time.Millisecond
	c.RetryWaitMax = 5 * time.Millisecond
	c.Logger = nil
	return c
}

func TestWebhookDelivers(t *testing.T) {
	var (
		mu  sync.Mutex
		got []activity.ConfirmationRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req activity.ConfirmationRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, WithHTTPClient(fastClient()))
	sink.Notify(activity.ConfirmationRequest{SessionID: "s1", ProposedCode: "BMS1180", TitleSnippet: "BMS 1180 draft"})
	sink.Notify(activity.ConfirmationRequest{SessionID: "s2", ProposedCode: "PJT4521"})
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.Equal(t, "BMS1180", got[0].ProposedCode)
	assert.Equal(t, "BMS 1180 draft", got[0].TitleSnippet)
	assert.Equal(t, "s2", got[1].SessionID)
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, WithHTTPClient(fastClient()))
	sink.Notify(activity.ConfirmationRequest{SessionID: "s1", ProposedCode: "BMS1180"})
	sink.Close()

	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhookCloseIdempotent(t *testing.T) {
	sink := NewWebhookSink("http://127.0.0.1:1", WithHTTPClient(fastClient()))
	sink.Close()
	sink.Close()
}

func TestWebhookNotifyAfterCloseIsDropped(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, WithHTTPClient(fastClient()))
	sink.Close()
	assert.NotPanics(t, func() {
		sink.Notify(activity.ConfirmationRequest{SessionID: "late", ProposedCode: "BMS1180"})
	})
	assert.Zero(t, calls.Load())
}

func TestNew(t *testing.T) {
	s, closeFn, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, LogSink{}, s)
	closeFn()

	s, closeFn, err = New(Options{Mode: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)
	closeFn()

	_, _, err = New(Options{Mode: "webhook"})
	assert.Error(t, err)

	_, _, err = New(Options{Mode: "carrier-pigeon"})
	assert.Error(t, err)

	s, closeFn, err = New(Options{Mode: "webhook", WebhookURL: "http://127.0.0.1:1/hook"})
	require.NoError(t, err)
	assert.IsType(t, &WebhookSink{}, s)
	closeFn()
}

func TestSinkFunc(t *testing.T) {
	var got string
	var s Sink = SinkFunc(func(r activity.ConfirmationRequest) { got = r.ProposedCode })
	s.Notify(activity.ConfirmationRequest{ProposedCode: "PRJ2001"})
	assert.Equal(t, "PRJ2001", got)
}
