package whttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shop") != "1" {
			t.Errorf("custom header missing")
		}
		if r.Header.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, "<html><head><title>\n  RTX 4070 | Shop\r\n</title></head><body></body></html>")
	}))
	defer srv.Close()

	c, err := NewClient("", 0, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	res, err := SendHTTPRequest(context.Background(), &WHTTPReq{URL: srv.URL, Headers: []WHTTPHeader{{Name: "X-Shop", Value: "1"}}}, c)
	if err != nil {
		t.Fatalf("SendHTTPRequest: %v", err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("status %d", res.StatusCode)
	}
	if res.HTTPTitle != "RTX 4070 | Shop" {
		t.Fatalf("title %q", res.HTTPTitle)
	}
}

func TestSendHTTPRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, _ := NewClient("", 0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := SendHTTPRequest(ctx, &WHTTPReq{URL: srv.URL}, c)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestIsTimeout(t *testing.T) {
	if IsTimeout(nil) || IsTimeout(errors.New("boom")) {
		t.Fatal("plain errors are not timeouts")
	}
	if !IsTimeout(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)) {
		t.Fatal("wrapped deadline should be a timeout")
	}
}

func TestNewClientBadProxy(t *testing.T) {
	if _, err := NewClient("://bad", 1, 0); err == nil {
		t.Fatal("expected proxy parse error")
	}
}
