// Package activity defines the records that flow between the snapshot sources,
// the session tracker, the session stores, and the confirmation sinks.
//
// A [WindowSnapshot] is one polled observation of the frontmost window. The
// tracker folds snapshots into [Session] records, which are the unit persisted
// by a store and queried for reporting through a [Filter].
package activity

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrNotFound is returned by session stores when no session has the
// requested id.
var ErrNotFound = errors.New("session not found")

// ///////////////////////////////////////////////
// Snapshots
// ///////////////////////////////////////////////

// WindowSnapshot is one observation of the frontmost application and window.
// A nil *WindowSnapshot means no active window could be determined.
type WindowSnapshot struct {
	// Application is the localized name of the frontmost application.
	Application string `json:"application"`
	// Title is the frontmost window title.
	Title string `json:"title"`
	// Path is the document path shown in the window, or empty when unknown.
	Path string `json:"path,omitempty"`
	// ObservedAt is when the probe captured the snapshot.
	ObservedAt time.Time `json:"observedAt"`
}

// SameWindow reports whether s describes the same (application, title) pair as
// the session. Path and observation time do not take part in identity.
func (s WindowSnapshot) SameWindow(sess *Session) bool {
	return sess != nil && s.Application == sess.Application && s.Title == sess.Title
}

// ///////////////////////////////////////////////
// Sessions
// ///////////////////////////////////////////////

// Session is a contiguous period during which the same application/title pair
// was frontmost.
type Session struct {
	// ID uniquely identifies the session across stores.
	ID string `json:"id"`
	// Application is the frontmost application name.
	Application string `json:"application"`
	// Title is the window title.
	Title string `json:"title"`
	// Path is the document path, possibly empty.
	Path string `json:"path"`
	// ProjectCode is the inferred or confirmed project code. Nil means no code
	// was ever assigned, which reports distinguish from an empty code.
	ProjectCode *string `json:"projectCode,omitempty"`
	// StartedAt is when the session was opened.
	StartedAt time.Time `json:"startedAt"`
	// Duration is the accumulated time in seconds. Never negative.
	Duration float64 `json:"duration"`
}

// Code returns the project code, or "" when none is set.
func (s Session) Code() string {
	if s.ProjectCode == nil {
		return ""
	}
	return *s.ProjectCode
}

// HasCode reports whether a project code has been assigned.
func (s Session) HasCode() bool {
	return s.ProjectCode != nil
}

// SetCode assigns code to the session. The session keeps its own copy.
func (s *Session) SetCode(code string) {
	c := code
	s.ProjectCode = &c
}

// EndedAt returns StartedAt advanced by Duration.
func (s Session) EndedAt() time.Time {
	return s.StartedAt.Add(Seconds(s.Duration))
}

// Clone returns a deep copy of s so callers can hand it to another goroutine.
func (s Session) Clone() Session {
	if s.ProjectCode != nil {
		s.SetCode(*s.ProjectCode)
	}
	return s
}

// Seconds converts a float second count into a [time.Duration].
func Seconds(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

// ///////////////////////////////////////////////
// Confirmation
// ///////////////////////////////////////////////

// titleSnippetLen is the maximum length in runes of
// [ConfirmationRequest.TitleSnippet].
const titleSnippetLen = 80

// ConfirmationRequest asks the user to confirm a project code inferred for a
// freshly opened session. The proposed code travels as structured data.
type ConfirmationRequest struct {
	SessionID    string `json:"sessionId"`
	ProposedCode string `json:"proposedCode"`
	TitleSnippet string `json:"titleSnippet"`
}

// NewConfirmationRequest builds a request for sess proposing code.
func NewConfirmationRequest(sess Session, code string) ConfirmationRequest {
	return ConfirmationRequest{
		SessionID:    sess.ID,
		ProposedCode: code,
		TitleSnippet: Snippet(sess.Title, titleSnippetLen),
	}
}

// Snippet shortens s to at most n runes, ending in "…" when truncated.
func Snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// ///////////////////////////////////////////////
// Query
// ///////////////////////////////////////////////

// Range is a half-open time interval [From, To). A zero bound is unbounded.
type Range struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside r.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Filter selects sessions for reporting.
type Filter struct {
	// Range bounds StartedAt.
	Range Range
	// Project, when non-nil, keeps only sessions whose code equals *Project.
	Project *string
	// CodedOnly drops sessions without a project code.
	CodedOnly bool
}

// Match reports whether sess passes the filter.
func (f Filter) Match(sess Session) bool {
	if !f.Range.Contains(sess.StartedAt) {
		return false
	}
	if f.CodedOnly && !sess.HasCode() {
		return false
	}
	if f.Project != nil && (!sess.HasCode() || *sess.ProjectCode != *f.Project) {
		return false
	}
	return true
}
