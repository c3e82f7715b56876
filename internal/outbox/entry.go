package outbox

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidAction is returned by Enqueue and Submit for an action that can
// never be replayed
var ErrInvalidAction = errors.New("invalid action")

// Action is a mutating request the client wants the server to see
type Action struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Validate checks the action and upper-cases its method. An empty method
// means POST.
func (a *Action) Validate() error {
	if strings.TrimSpace(a.URL) == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidAction)
	}
	if a.Method == "" {
		a.Method = http.MethodPost
	}
	a.Method = strings.ToUpper(a.Method)
	switch a.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("%w: method %s does not mutate", ErrInvalidAction, a.Method)
	}
	return nil
}

// Entry is a queued action as persisted by a Store
type Entry struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Method     string            `json:"method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`

	// Evicted lists the ids dropped to make room for this entry
	Evicted []string `json:"-"`
}

func newEntry(a Action, now time.Time) *Entry {
	return &Entry{
		ID:         uuid.NewString(),
		URL:        a.URL,
		Method:     a.Method,
		Headers:    a.Headers,
		Body:       a.Body,
		EnqueuedAt: now.UTC(),
	}
}

// Action returns the request the entry replays
func (e *Entry) Action() Action {
	return Action{URL: e.URL, Method: e.Method, Headers: e.Headers, Body: e.Body}
}

func (e *Entry) expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(e.EnqueuedAt) > ttl
}
