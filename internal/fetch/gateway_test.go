package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testGateway() *Gateway {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGateway(logger, nil)
}

func TestGateway_Text_DefaultHeaders(t *testing.T) {
	var gotUA, gotAccept, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("#EXTM3U"))
	}))
	defer srv.Close()

	body, err := testGateway().Text(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if body != "#EXTM3U" {
		t.Errorf("body = %q, want %q", body, "#EXTM3U")
	}
	if gotUA != defaultHeaders["User-Agent"] {
		t.Errorf("User-Agent = %q, want default", gotUA)
	}
	if gotAccept != "*/*" {
		t.Errorf("Accept = %q, want %q", gotAccept, "*/*")
	}
	if gotLang != "en-US,en;q=0.5" {
		t.Errorf("Accept-Language = %q, want %q", gotLang, "en-US,en;q=0.5")
	}
}

func TestGateway_Text_CallerHeadersOverrideDefaults(t *testing.T) {
	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	headers := map[string]string{
		"User-Agent": "custom-agent",
		"Referer":    "https://embed.example.com/",
		"X-Empty":    "",
	}
	if _, err := testGateway().Text(context.Background(), srv.URL, headers); err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	if gotUA != "custom-agent" {
		t.Errorf("User-Agent = %q, want caller override", gotUA)
	}
	if gotReferer != "https://embed.example.com/" {
		t.Errorf("Referer = %q, want forwarded value", gotReferer)
	}
}

func TestGateway_Text_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testGateway().Text(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("Text() expected error for 404 origin, got nil")
	}

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("Text() error = %v, want *UpstreamError", err)
	}
	if ue.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want %d", ue.StatusCode, http.StatusNotFound)
	}
}

func TestGateway_Open_StreamsBody(t *testing.T) {
	payload := []byte{0x47, 0x40, 0x11, 0x10, 0x00} // TS sync byte prefix
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp2t")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	resp, err := testGateway().Open(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != string(payload) {
		t.Errorf("body = %v, want %v", body, payload)
	}
}

func TestGateway_Open_Non2xxClosesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testGateway().Open(context.Background(), srv.URL, nil)
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("Open() error = %v, want *UpstreamError", err)
	}
	if ue.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want %d", ue.StatusCode, http.StatusForbidden)
	}
}

func TestGateway_Text_NetworkError(t *testing.T) {
	_, err := testGateway().Text(context.Background(), "http://127.0.0.1:1/nonexistent", nil)
	if err == nil {
		t.Fatal("Text() expected error for unreachable host, got nil")
	}
}

func TestGateway_Text_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := testGateway().Text(ctx, srv.URL, nil); err == nil {
		t.Fatal("Text() expected error for canceled context, got nil")
	}
}

func TestGateway_Text_CancelDoesNotFailSharedFetch(t *testing.T) {
	release := make(chan struct{})
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		_, _ = w.Write([]byte("#EXTM3U"))
	}))
	defer srv.Close()

	g := testGateway()
	ctxA, cancelA := context.WithCancel(context.Background())

	errA := make(chan error, 1)
	go func() {
		_, err := g.Text(ctxA, srv.URL, nil)
		errA <- err
	}()

	type result struct {
		body string
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		// Let the first caller start the shared fetch before joining it.
		time.Sleep(50 * time.Millisecond)
		body, err := g.Text(context.Background(), srv.URL, nil)
		resB <- result{body, err}
	}()

	time.Sleep(100 * time.Millisecond)
	cancelA()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-errA; err == nil {
		t.Error("Text() with canceled context expected error, got nil")
	}

	got := <-resB
	if got.err != nil {
		t.Fatalf("Text() error = %v, want the shared fetch to survive the other caller's cancellation", got.err)
	}
	if got.body != "#EXTM3U" {
		t.Errorf("body = %q, want %q", got.body, "#EXTM3U")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("origin hits = %d, want the two callers coalesced into 1", n)
	}
}
