package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/mkraev/bookcrawl/config"
)

func newTestSession(t *testing.T) (*Session, *httpmock.MockTransport) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"

	session, err := NewSession(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(session.Close)

	transport := httpmock.NewMockTransport()
	session.WithTransport(transport)
	return session, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestFetchParsesDocument(t *testing.T) {
	session, transport := newTestSession(t)
	transport.RegisterResponder("GET", "http://example.test/page",
		htmlResponder(`<html><body><h1>Hello</h1></body></html>`))

	doc, err := session.Fetch(context.Background(), "http://example.test/page")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if doc == nil {
		t.Fatalf("expected a document")
	}
	if got := doc.Find("h1").Text(); got != "Hello" {
		t.Fatalf("h1 = %q, want Hello", got)
	}
}

func TestFetchNonOKStatusIsTransportError(t *testing.T) {
	session, transport := newTestSession(t)
	transport.RegisterResponder("GET", "http://example.test/missing",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	doc, err := session.Fetch(context.Background(), "http://example.test/missing")
	if doc != nil {
		t.Fatalf("expected no document on non-2xx status")
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if te.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", te.Status)
	}
	if got := ErrorLabel(err); got != "not_found" {
		t.Fatalf("label = %q, want not_found", got)
	}
}

func TestFetchNetworkFailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "dns timeout",
			err:      &net.DNSError{IsTimeout: true},
			expected: "timeout",
		},
		{
			name:     "connection refused",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
			expected: "connection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, transport := newTestSession(t)
			transport.RegisterResponder("GET", "http://example.test/broken",
				httpmock.NewErrorResponder(tt.err))

			_, err := session.Fetch(context.Background(), "http://example.test/broken")
			if !IsTransport(err) {
				t.Fatalf("expected transport error, got %v", err)
			}
			if got := ErrorLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestFetchUsesPageCache(t *testing.T) {
	session, transport := newTestSession(t)
	transport.RegisterResponder("GET", "http://example.test/cached",
		htmlResponder(`<html><body><p>once</p></body></html>`))

	for i := 0; i < 3; i++ {
		if _, err := session.Fetch(context.Background(), "http://example.test/cached"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}

	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("transport calls = %d, want 1 (cache should absorb repeats)", got)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	session, _ := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Fetch(ctx, "http://example.test/page")
	if !IsTransport(err) {
		t.Fatalf("expected transport error on cancelled context, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}
