package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != userAgent {
			t.Errorf("user agent = %q", got)
		}
		w.Write([]byte("<html>deliverable</html>"))
	}))
	defer srv.Close()

	client := NewClient(0, 0)
	content, err := client.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if content != "<html>deliverable</html>" {
		t.Fatalf("content = %q", content)
	}
}

func TestFetchRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(0, 0)
	_, err := client.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("error should name the status: %v", err)
	}
}

func TestFetchCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	client := NewClient(0, 100)
	content, err := client.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(content) != 100 {
		t.Fatalf("len = %d, want 100", len(content))
	}
}

func TestFetchEmptyURL(t *testing.T) {
	client := NewClient(0, 0)
	if _, err := client.Fetch(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for blank url")
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	client := NewClient(time.Second, 0)
	if _, err := client.Fetch(context.Background(), "http://127.0.0.1:1/never"); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestFetchHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(0, 0)
	if _, err := client.Fetch(ctx, srv.URL); err == nil {
		t.Fatalf("expected context deadline error")
	}
}
