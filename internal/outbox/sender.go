package outbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Sender replays one entry against the server
type Sender interface {
	Send(ctx context.Context, e *Entry) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, e *Entry) error

// Send implements Sender
func (f SenderFunc) Send(ctx context.Context, e *Entry) error { return f(ctx, e) }

// ReplayError is a replay that reached the server and got a non-2xx answer
type ReplayError struct {
	StatusCode int
	Message    string
}

func (e *ReplayError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("replay rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("replay rejected with status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later
func (e *ReplayError) Retryable() bool {
	return e.StatusCode >= 500 ||
		e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable classifies a Send error. Anything that is not a ReplayError
// never reached the server and is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *ReplayError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

// HTTPSender replays entries over HTTP. Relative entry URLs resolve against
// the base URL.
type HTTPSender struct {
	client  *http.Client
	baseURL *url.URL
}

var _ Sender = (*HTTPSender)(nil)

// NewHTTPSender creates a traced HTTP sender
func NewHTTPSender(baseURL string, timeout time.Duration) (*HTTPSender, error) {
	s := &HTTPSender{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url: %w", err)
		}
		s.baseURL = u
	}
	return s, nil
}

func (s *HTTPSender) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	if s.baseURL == nil {
		return "", fmt.Errorf("%w: relative url %q without a base url", ErrInvalidAction, raw)
	}
	return s.baseURL.ResolveReference(u).String(), nil
}

// Send implements Sender
func (s *HTTPSender) Send(ctx context.Context, e *Entry) error {
	target, err := s.resolve(e.URL)
	if err != nil {
		return &ReplayError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}

	var body io.Reader
	if e.Body != "" {
		body = strings.NewReader(e.Body)
	}
	req, err := http.NewRequestWithContext(ctx, e.Method, target, body)
	if err != nil {
		return &ReplayError{StatusCode: http.StatusBadRequest, Message: err.Error()}
	}
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}
	if e.Body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Outbox-Entry", e.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &ReplayError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
}

const maxMessageBytes = 256

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// errorMessage pulls a readable message out of a JSON error body
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return truncate(strings.TrimSpace(string(body)), maxMessageBytes)
	}
	for _, path := range []string{"error.message", "error", "message", "detail"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String {
			return r.String()
		}
	}
	return ""
}
