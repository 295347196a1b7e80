package httpkit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewClientSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient(WithTimeout(5 * time.Second))
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if !strings.HasPrefix(gotUA, "mindviza/") {
		t.Errorf("User-Agent = %q, want mindviza/ prefix", gotUA)
	}
}

func TestNewClientRespectsExplicitUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient()
	req, _ := http.NewRequest("GET", srv.URL, nil)
	req.Header.Set("User-Agent", "custom/1.0")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "custom/1.0" {
		t.Errorf("User-Agent = %q, want custom/1.0", gotUA)
	}
}

func TestReadErrorBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`{"error": "rate limited"}`))
	got := ReadErrorBody(body, 4096)
	if got != `{"error": "rate limited"}` {
		t.Errorf("body = %q", got)
	}

	if got := ReadErrorBody(nil, 4096); got != "" {
		t.Errorf("nil body = %q, want empty", got)
	}

	truncated := ReadErrorBody(io.NopCloser(strings.NewReader("abcdef")), 3)
	if truncated != "abc" {
		t.Errorf("truncated = %q, want abc", truncated)
	}
}
