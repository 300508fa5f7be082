package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestFetcher(t *testing.T, handler http.HandlerFunc) (*ImageFetcher, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	fetcher := NewImageFetcher(&Config{MaxFileMiB: 1, AllowPrivate: true}, zerolog.Nop())
	return fetcher, srv.URL
}

func TestFetchAcceptedImage(t *testing.T) {
	payload := []byte("jpeg bytes here")
	fetcher, base := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(payload)
	})

	data, mimeType, err := fetcher.Fetch(context.Background(), base+"/cat.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mimeType != "image/jpeg" {
		t.Fatalf("mimeType = %q, want image/jpeg", mimeType)
	}
	if string(data) != string(payload) {
		t.Fatalf("body mismatch")
	}
}

func TestFetchNormalizesContentTypeParams(t *testing.T) {
	fetcher, base := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/PNG; charset=binary")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})

	_, mimeType, err := fetcher.Fetch(context.Background(), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mimeType != "image/png" {
		t.Fatalf("mimeType = %q, want image/png", mimeType)
	}
}

func TestFetchRejectsUnsupportedType(t *testing.T) {
	fetcher, base := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})

	_, _, err := fetcher.Fetch(context.Background(), base)
	if !errors.Is(err, ErrUnsupportedContentType) {
		t.Fatalf("got err %v, want ErrUnsupportedContentType", err)
	}
}

func TestFetchRejectsDeclaredOversize(t *testing.T) {
	fetcher, base := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", fmt.Sprint(2*1024*1024))
		_, _ = w.Write(make([]byte, 2*1024*1024))
	})

	_, _, err := fetcher.Fetch(context.Background(), base)
	if !errors.Is(err, ErrSizeLimitExceeded) {
		t.Fatalf("got err %v, want ErrSizeLimitExceeded", err)
	}
}

func TestFetchRejectsUndeclaredOversize(t *testing.T) {
	fetcher, base := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		// Chunked response with no Content-Length, over the 1 MiB cap.
		_, _ = w.Write([]byte(strings.Repeat("x", 1024*1024+10)))
	})

	_, _, err := fetcher.Fetch(context.Background(), base)
	if !errors.Is(err, ErrSizeLimitExceeded) {
		t.Fatalf("got err %v, want ErrSizeLimitExceeded", err)
	}
}

func TestFetchHTTPError(t *testing.T) {
	fetcher, base := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})

	_, _, err := fetcher.Fetch(context.Background(), base)
	if err == nil || errors.Is(err, ErrUnsupportedContentType) || errors.Is(err, ErrSizeLimitExceeded) {
		t.Fatalf("want a plain retrieval error, got %v", err)
	}
}

func TestIsAllowedURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/a.png", true},
		{"http://example.com/a.png", true},
		{"ftp://example.com/a.png", false},
		{"http://localhost/a.png", false},
		{"http://127.0.0.1/a.png", false},
		{"http://10.1.2.3/a.png", false},
		{"http://192.168.1.5/a.png", false},
		{"http://[::1]/a.png", false},
		{"http://8.8.8.8/a.png", true},
	}
	for _, tc := range tests {
		t.Run(tc.url, func(t *testing.T) {
			if got := isAllowedURL(tc.url); got != tc.want {
				t.Fatalf("isAllowedURL(%q) = %v, want %v", tc.url, got, tc.want)
			}
		})
	}
}

func TestFetcherBlocksPrivateByDefault(t *testing.T) {
	fetcher := NewImageFetcher(&Config{}, zerolog.Nop())
	if _, _, err := fetcher.Fetch(context.Background(), "http://127.0.0.1/a.png"); err == nil {
		t.Fatalf("expected private address to be rejected")
	}
}
