package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSONSendsDefaultHeaders(t *testing.T) {
	var gotKey, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithHeader("X-API-Key", "k"))
	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.PostJSON(context.Background(), "/hook", map[string]int{"a": 1}, &out); err != nil {
		t.Fatalf("post: %v", err)
	}
	if !out.OK || gotKey != "k" || gotType != "application/json" || gotBody != `{"a":1}` {
		t.Fatalf("unexpected request key=%q type=%q body=%q", gotKey, gotType, gotBody)
	}
}

func TestSendAndParseStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad signature"))
	}))
	defer srv.Close()

	err := NewClient().PostJSON(context.Background(), srv.URL, "x", nil)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Fatalf("expected StatusError 403, got %v", err)
	}
}
