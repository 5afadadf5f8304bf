// Package confirm delivers project-code confirmation requests to whatever asks
// the user to approve them. The answer comes back separately through the API or
// the CLI and ends in the tracker's Confirm.
package confirm

import (
	"fmt"
	"log/slog"

	"tools.zach/dev/timetrack/internal/activity"
)

// Sink receives confirmation requests. Notify is called with the tracker lock
// held and must not block.
type Sink interface {
	Notify(req activity.ConfirmationRequest)
}

// LogSink writes each request to the log, for setups where a script tails the
// log or the user confirms by hand.
type LogSink struct{}

// Notify logs req at INFO.
func (LogSink) Notify(req activity.ConfirmationRequest) {
	slog.Info("project confirmation requested",
		"session", req.SessionID,
		"project", req.ProposedCode,
		"title", req.TitleSnippet,
	)
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(activity.ConfirmationRequest)

// Notify calls f(req).
func (f SinkFunc) Notify(req activity.ConfirmationRequest) { f(req) }

// ///////////////////////////////////////////////
// Construction
// ///////////////////////////////////////////////

// Options selects and configures a sink. Built from config.ConfirmConfig.
type Options struct {
	Mode       string // "log", "webhook", "none"
	WebhookURL string
}

// New returns the sink for opts.Mode. The returned close function stops any
// background delivery and is never nil.
func New(opts Options) (Sink, func(), error) {
	switch opts.Mode {
	case "", "log":
		return LogSink{}, func() {}, nil
	case "none":
		return nil, func() {}, nil
	case "webhook":
		if opts.WebhookURL == "" {
			return nil, nil, fmt.Errorf("confirm mode webhook requires a webhook url")
		}
		w := NewWebhookSink(opts.WebhookURL)
		return w, w.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown confirm mode %q", opts.Mode)
	}
}
