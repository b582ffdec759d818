package gositemapextractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
)

// wellKnownSitemapPaths are probed in order when a site's robots.txt does
// not advertise any sitemap.
var wellKnownSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/sitemaps.xml",
	"/sitemap/sitemap.xml",
	"/sitemap.xml.gz",
	"/sitemap_index.xml.gz",
}

// Discover locates sitemap sources for a site. It consults the site's
// robots.txt first and trusts any Sitemap directives found there without
// probing them; otherwise it probes a list of well-known sitemap locations
// and keeps the ones that respond with sitemap content.
//
// The site URL may name the site root or point directly at a sitemap file;
// in the latter case that URL is returned as the sole source.
func (e *Extractor) Discover(ctx context.Context, site *url.URL) ([]Source, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	base, err := normalizeSiteURL(site)
	if err != nil {
		return nil, err
	}

	if isLikelySitemapURL(base) {
		return []Source{RemoteURL(base.String())}, nil
	}

	if sources := e.robotsSitemaps(ctx, base); len(sources) > 0 {
		return sources, nil
	}

	var sources []Source
	for _, path := range wellKnownSitemapPaths {
		if err := ctx.Err(); err != nil {
			return nil, &ErrCancelled{Err: err}
		}
		probe := *base
		probe.Path = path
		if e.probeSitemap(ctx, &probe) {
			sources = append(sources, RemoteURL(probe.String()))
		}
	}
	if len(sources) == 0 {
		return nil, &ErrNoSitemaps{Site: base}
	}
	return sources, nil
}

// normalizeSiteURL reduces a site URL to its scheme and host, defaulting to
// https when no scheme was given, but keeps the path when the URL already
// names a sitemap file.
func normalizeSiteURL(site *url.URL) (*url.URL, error) {
	if site == nil {
		return nil, &ErrInvalidURL{URL: ""}
	}
	u := *site
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ErrInvalidURL{URL: site.String()}
	}
	if u.Host == "" {
		// "example.com/sitemap.xml" parses with an empty host and the
		// authority in the path.
		reparsed, err := url.Parse(u.Scheme + "://" + strings.TrimPrefix(site.String(), site.Scheme+"://"))
		if err != nil || reparsed.Host == "" {
			return nil, &ErrInvalidURL{URL: site.String(), Err: err}
		}
		u = *reparsed
	}
	u.Fragment = ""
	if !isLikelySitemapURL(&u) {
		u.Path = ""
		u.RawQuery = ""
	}
	return &u, nil
}

// isLikelySitemapURL reports whether the URL path already points at a
// sitemap file rather than a site root.
func isLikelySitemapURL(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	return strings.HasSuffix(p, ".xml") || strings.HasSuffix(p, ".xml.gz")
}

// robotsSitemaps fetches /robots.txt and returns the sitemap sources it
// advertises, in directive order. Directives are trusted without probing.
func (e *Extractor) robotsSitemaps(ctx context.Context, base *url.URL) []Source {
	robotsURL := *base
	robotsURL.Path = "/robots.txt"

	resp, err := e.doRequest(ctx, &robotsURL, func(req *http.Request) {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	})
	if err != nil {
		e.logger.Debug(fmt.Sprintf("robots.txt request for %s failed: %v", robotsURL.Host, err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Debug(fmt.Sprintf("robots.txt for %s returned status %d", robotsURL.Host, resp.StatusCode))
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		e.logger.Debug(fmt.Sprintf("robots.txt for %s could not be parsed: %v", robotsURL.Host, err))
		return nil
	}

	var sources []Source
	for _, raw := range data.Sitemaps {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			e.logger.Debug(fmt.Sprintf("ignoring invalid sitemap directive %q in robots.txt", raw))
			continue
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			e.logger.Debug(fmt.Sprintf("ignoring non-HTTP sitemap directive %q in robots.txt", raw))
			continue
		}
		sources = append(sources, RemoteURL(resolved.String()))
	}
	if len(sources) > 0 {
		e.logger.Debug(fmt.Sprintf("robots.txt for %s advertises %d sitemaps", robotsURL.Host, len(sources)))
	}
	return sources
}

// probeSitemap issues a plain request for a candidate sitemap location and
// reports whether it answered with sitemap content. Probe failures are
// expected and never abort discovery.
func (e *Extractor) probeSitemap(ctx context.Context, loc *url.URL) bool {
	resp, err := e.doRequest(ctx, loc, func(req *http.Request) {
		req.Header.Set("User-Agent", e.opts.UserAgent)
		req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")
	})
	if err != nil {
		e.logger.Debug(fmt.Sprintf("probe of %s failed: %v", loc, err))
		return false
	}
	st := &fetchState{}
	return e.readSitemapBody(resp, loc, st) != nil
}
