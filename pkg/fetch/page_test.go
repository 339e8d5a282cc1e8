package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ir-scraper/pkg/utils"
)

func TestSnapshotFromHTML_ResolvesRelativeHrefs(t *testing.T) {
	html := `<html><head><title>  Acme   Investors </title></head><body>
		<a href="/docs/q3-2024.pdf">Q3 2024 Presentation</a>
		<a href="https://cdn.example.com/deck.pptx">Deck</a>
	</body></html>`

	snap, err := SnapshotFromHTML("https://acme.example.com/investors", html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snap.Title != "Acme Investors" {
		t.Errorf("Title = %q, want %q", snap.Title, "Acme Investors")
	}
	if len(snap.Anchors) != 2 {
		t.Fatalf("len(Anchors) = %d, want 2", len(snap.Anchors))
	}
	if got := snap.Anchors[0].Href; got != "https://acme.example.com/docs/q3-2024.pdf" {
		t.Errorf("Anchors[0].Href = %q, want resolved absolute URL", got)
	}
	if got := snap.Anchors[1].Href; got != "https://cdn.example.com/deck.pptx" {
		t.Errorf("Anchors[1].Href = %q, want absolute URL unchanged", got)
	}
}

func TestSnapshotFromHTML_KeepsPseudoLinksRaw(t *testing.T) {
	html := `<body>
		<a href="mailto:ir@acme.example.com">Contact IR</a>
		<a href="javascript:void(0)">Open modal</a>
	</body>`

	snap, err := SnapshotFromHTML("https://acme.example.com/investors", html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Anchors) != 2 {
		t.Fatalf("len(Anchors) = %d, want 2", len(snap.Anchors))
	}
	if !strings.HasPrefix(snap.Anchors[0].Href, "mailto:") {
		t.Errorf("mailto href was resolved: %q", snap.Anchors[0].Href)
	}
	if !strings.HasPrefix(snap.Anchors[1].Href, "javascript:") {
		t.Errorf("javascript href was resolved: %q", snap.Anchors[1].Href)
	}
}

func TestSnapshotFromHTML_RowText(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		wantRow string
	}{
		{
			name:    "table row",
			html:    `<table><tr><td>Mar 15, 2024</td> <td><a href="/a.pdf">Deck</a></td></tr></table>`,
			wantRow: "Mar 15, 2024 Deck",
		},
		{
			name:    "list item",
			html:    `<ul><li>Q1 2024 <a href="/b.pdf">Slides</a></li></ul>`,
			wantRow: "Q1 2024 Slides",
		},
		{
			name:    "plain block falls back to parent",
			html:    `<div>June 2024 <a href="/c.pdf">Webcast slides</a></div>`,
			wantRow: "June 2024 Webcast slides",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := SnapshotFromHTML("https://acme.example.com/", tt.html)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(snap.Anchors) != 1 {
				t.Fatalf("len(Anchors) = %d, want 1", len(snap.Anchors))
			}
			if got := snap.Anchors[0].RowText; got != tt.wantRow {
				t.Errorf("RowText = %q, want %q", got, tt.wantRow)
			}
		})
	}
}

func newTestHTTPFetcher(maxRetries int) *HTTPFetcher {
	fetcher := NewFetcher(testClient(), maxRetries, 10*time.Millisecond, testLogger())
	return NewHTTPFetcher(fetcher, nil, testAgent, 2*time.Second, testLogger().WithField("test", "page"))
}

func TestHTTPFetcherRender(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><title>IR</title><body><a href="/q1.pdf">Q1 Deck</a></body></html>`))
	}))
	t.Cleanup(server.Close)

	snap, err := newTestHTTPFetcher(0).Render(context.Background(), server.URL, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snap.Anchors) != 1 || !strings.HasSuffix(snap.Anchors[0].Href, "/q1.pdf") {
		t.Errorf("unexpected anchors: %+v", snap.Anchors)
	}
}

func TestHTTPFetcherRender_WrapsFailureAsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	_, err := newTestHTTPFetcher(1).Render(context.Background(), server.URL, 5*time.Second)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, utils.ErrFetch) {
		t.Errorf("error = %v, want it to match utils.ErrFetch", err)
	}
}

func TestHTTPFetcherProbeSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("probe used method %s, want HEAD", r.Method)
		}
		w.Header().Set("Content-Length", "2048000")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	size, ok := newTestHTTPFetcher(0).ProbeSize(context.Background(), server.URL+"/deck.pdf")
	if !ok {
		t.Fatal("ProbeSize ok = false, want true")
	}
	if size != 2048000 {
		t.Errorf("size = %d, want 2048000", size)
	}
}

func TestHTTPFetcherProbeSize_UnknownOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	if _, ok := newTestHTTPFetcher(0).ProbeSize(context.Background(), server.URL+"/deck.pdf"); ok {
		t.Error("ProbeSize ok = true for a 403 response, want false")
	}
}
