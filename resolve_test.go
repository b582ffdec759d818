package gositemapextractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestExtractor_Extract_DeduplicatesURLSet(t *testing.T) {
	const sitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url>
    <loc>https://example.com/a</loc>
  </url>
  <url>
    <loc>https://example.com/b</loc>
  </url>
  <url>
    <loc>https://example.com/a</loc>
  </url>
</urlset>`

	path := filepath.Join(t.TempDir(), "sitemap.xml")
	if err := os.WriteFile(path, []byte(sitemap), 0o644); err != nil {
		t.Fatalf("failed to write sitemap file: %v", err)
	}

	extractor := New(Options{})
	results, err := extractor.Extract(context.Background(), LocalPath(path))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	urls := results.URLs()
	if len(urls) != 2 {
		t.Fatalf("expected 2 URLs, got %d", len(urls))
	}
	if urls[0] != "https://example.com/a" || urls[1] != "https://example.com/b" {
		t.Fatalf("unexpected order: %v", urls)
	}
}

func TestExtractor_Extract_IndexDepthFirstOrder(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/index.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/a.xml</loc></sitemap>
  <sitemap><loc>%s/b.xml</loc></sitemap>
</sitemapindex>`, base, base)
		case "/a.xml":
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/a-1</loc></url>
  <url><loc>https://example.com/a-2</loc></url>
</urlset>`)
		case "/b.xml":
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/b-1</loc></url>
  <url><loc>https://example.com/b-2</loc></url>
</urlset>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	extractor := New(Options{DisableEvasion: true})
	results, err := extractor.Extract(context.Background(), RemoteURL(server.URL+"/index.xml"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	want := []string{
		"https://example.com/a-1",
		"https://example.com/a-2",
		"https://example.com/b-1",
		"https://example.com/b-2",
	}
	urls := results.URLs()
	if len(urls) != len(want) {
		t.Fatalf("expected %d URLs, got %d: %v", len(want), len(urls), urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("expected %q at position %d, got %q", want[i], i, urls[i])
		}
	}
}

func TestExtractor_Extract_DeduplicatesAcrossSiblings(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/index.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/a.xml</loc></sitemap>
  <sitemap><loc>%s/b.xml</loc></sitemap>
</sitemapindex>`, base, base)
		case "/a.xml":
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/shared</loc></url>
  <url><loc>https://example.com/only-a</loc></url>
</urlset>`)
		case "/b.xml":
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/shared</loc></url>
  <url><loc>https://example.com/only-b</loc></url>
</urlset>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	extractor := New(Options{DisableEvasion: true})
	results, err := extractor.Extract(context.Background(), RemoteURL(server.URL+"/index.xml"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	urls := results.URLs()
	if len(urls) != 3 {
		t.Fatalf("expected 3 URLs, got %d: %v", len(urls), urls)
	}
	if urls[0] != "https://example.com/shared" || urls[1] != "https://example.com/only-a" || urls[2] != "https://example.com/only-b" {
		t.Fatalf("unexpected order: %v", urls)
	}
}

func TestExtractor_Extract_CycleTerminates(t *testing.T) {
	var indexRequests int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/index.xml":
			atomic.AddInt32(&indexRequests, 1)
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/index.xml</loc></sitemap>
  <sitemap><loc>%s/child.xml</loc></sitemap>
</sitemapindex>`, base, base)
		case "/child.xml":
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/page</loc></url>
</urlset>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	extractor := New(Options{DisableEvasion: true})
	results, err := extractor.Extract(context.Background(), RemoteURL(server.URL+"/index.xml"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if results.Len() != 1 {
		t.Fatalf("expected 1 URL, got %d", results.Len())
	}
	if got := atomic.LoadInt32(&indexRequests); got != 1 {
		t.Fatalf("expected the index to be fetched once, got %d requests", got)
	}
}

func TestExtractor_Extract_SharedChildFetchedOnce(t *testing.T) {
	var childRequests int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/index.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/child.xml</loc></sitemap>
  <sitemap><loc>%s/child.xml</loc></sitemap>
</sitemapindex>`, base, base)
		case "/child.xml":
			atomic.AddInt32(&childRequests, 1)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/page</loc></url>
</urlset>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	extractor := New(Options{DisableEvasion: true})
	results, err := extractor.Extract(context.Background(), RemoteURL(server.URL+"/index.xml"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if results.Len() != 1 {
		t.Fatalf("expected 1 URL, got %d", results.Len())
	}
	if got := atomic.LoadInt32(&childRequests); got != 1 {
		t.Fatalf("expected the child to be fetched once, got %d requests", got)
	}
}

func TestExtractor_Extract_ChildFailureNonFatal(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/index.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/missing.xml</loc></sitemap>
  <sitemap><loc>%s/good.xml</loc></sitemap>
</sitemapindex>`, base, base)
		case "/good.xml":
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/good</loc></url>
</urlset>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	extractor := New(Options{DisableEvasion: true})
	results, err := extractor.Extract(context.Background(), RemoteURL(server.URL+"/index.xml"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	urls := results.URLs()
	if len(urls) != 1 || urls[0] != "https://example.com/good" {
		t.Fatalf("expected the good sitemap to contribute, got %v", urls)
	}
}

func TestExtractor_Extract_RootFetchFailure(t *testing.T) {
	extractor := New(Options{})
	_, err := extractor.Extract(context.Background(), LocalPath(filepath.Join(t.TempDir(), "missing.xml")))
	var rootErr *ErrRootFetch
	if !errors.As(err, &rootErr) {
		t.Fatalf("expected ErrRootFetch, got %v", err)
	}
	var notFound *ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound cause, got %v", err)
	}
}

func TestExtractor_Extract_RootBlocked(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	extractor := New(Options{DisableEvasion: true})
	_, err := extractor.Extract(context.Background(), RemoteURL(server.URL+"/sitemap.xml"))
	var rootErr *ErrRootFetch
	if !errors.As(err, &rootErr) {
		t.Fatalf("expected ErrRootFetch, got %v", err)
	}
	var blocked *ErrBlocked
	if !errors.As(err, &blocked) {
		t.Fatalf("expected ErrBlocked cause, got %v", err)
	}
}

func TestExtractor_Extract_RootParseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.xml")
	if err := os.WriteFile(path, []byte("this is not a sitemap"), 0o644); err != nil {
		t.Fatalf("failed to write sitemap file: %v", err)
	}

	extractor := New(Options{})
	_, err := extractor.Extract(context.Background(), LocalPath(path))
	var rootErr *ErrRootParse
	if !errors.As(err, &rootErr) {
		t.Fatalf("expected ErrRootParse, got %v", err)
	}
	var malformed *ErrMalformedXML
	if !errors.As(err, &malformed) {
		t.Fatalf("expected ErrMalformedXML cause, got %v", err)
	}
}

func TestExtractor_Extract_DepthLimit(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		base := "http://" + r.Host
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/idx1.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/idx2.xml</loc></sitemap>
</sitemapindex>`, base)
		case "/idx2.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/idx3.xml</loc></sitemap>
</sitemapindex>`, base)
		case "/idx3.xml":
			fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/pages.xml</loc></sitemap>
</sitemapindex>`, base)
		case "/pages.xml":
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/deep</loc></url>
</urlset>`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	strict := New(Options{MaxDepth: 2, DisableEvasion: true})
	_, err := strict.Extract(context.Background(), RemoteURL(server.URL+"/idx1.xml"))
	var tooDeep *ErrTooDeep
	if !errors.As(err, &tooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
	if tooDeep.MaxDepth != 2 {
		t.Fatalf("expected limit 2, got %d", tooDeep.MaxDepth)
	}

	relaxed := New(Options{MaxDepth: 3, DisableEvasion: true})
	results, err := relaxed.Extract(context.Background(), RemoteURL(server.URL+"/idx1.xml"))
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if results.Len() != 1 {
		t.Fatalf("expected 1 URL, got %d", results.Len())
	}
}

func TestExtractor_Extract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	extractor := New(Options{})
	_, err := extractor.Extract(ctx, LocalPath("sitemap.xml"))
	var cancelled *ErrCancelled
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}
