package gositemapextractor

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Tier identifies which retrieval strategy produced a fetch result.
type Tier string

const (
	TierLocal   Tier = "local"
	TierDirect  Tier = "direct"
	TierEvasion Tier = "evasion"
	TierBrowser Tier = "browser"
)

// FetchResult is the outcome of one successful fetch. It is ephemeral: the
// resolver consumes it immediately and never stores it.
type FetchResult struct {
	Body []byte
	Tier Tier
}

// fetchTier is one strategy in the ordered remote fallback chain. A nil body
// with a nil error is a soft failure: the next tier runs. A non-nil error
// aborts the whole fetch.
type fetchTier interface {
	name() Tier
	attempt(ctx context.Context, loc *url.URL, st *fetchState) ([]byte, error)
}

// fetchState aggregates diagnostics across tiers so the final failure can be
// classified as network, blocked, or invalid content.
type fetchState struct {
	attempts    int
	gotResponse bool
	transferred bool
	contentType string
	lastNetErr  error
}

func (st *fetchState) classify(loc *url.URL) error {
	if !st.gotResponse {
		err := st.lastNetErr
		if err == nil {
			err = errors.New("no response received")
		}
		return &ErrNetwork{URL: loc, Err: err}
	}
	if st.transferred {
		return &ErrInvalidContent{Source: loc.String(), ContentType: st.contentType}
	}
	return &ErrBlocked{URL: loc, Attempts: st.attempts}
}

// ===================== Fetching =====================

// Fetch obtains the raw sitemap bytes for a source. Local sources are read
// directly; remote sources run through the tier chain until one succeeds.
func (e *Extractor) Fetch(ctx context.Context, source Source) (*FetchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !source.IsRemote() {
		return e.fetchLocal(source)
	}

	loc, err := source.URL()
	if err != nil {
		return nil, err
	}

	st := &fetchState{}
	for _, t := range e.tiers {
		body, err := t.attempt(ctx, loc, st)
		if err != nil {
			return nil, err
		}
		if body != nil {
			e.logger.Debug(fmt.Sprintf("fetched %s via %s tier (%d bytes)", loc, t.name(), len(body)))
			return &FetchResult{Body: body, Tier: t.name()}, nil
		}
		e.logger.Debug(fmt.Sprintf("%s tier exhausted for %s", t.name(), loc))
	}
	return nil, st.classify(loc)
}

func (e *Extractor) fetchLocal(source Source) (*FetchResult, error) {
	path := source.String()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ErrNotFound{Path: path}
		}
		return nil, &ErrRead{Path: path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ErrInvalidContent{Source: path}
	}
	return &FetchResult{Body: data, Tier: TierLocal}, nil
}

// ===================== Direct Tier =====================

// directTier issues a plain GET with standard headers, honoring Retry-After
// on 429 responses.
type directTier struct {
	e *Extractor
}

func (t *directTier) name() Tier {
	return TierDirect
}

func (t *directTier) attempt(ctx context.Context, loc *url.URL, st *fetchState) ([]byte, error) {
	e := t.e
	for attempt := 0; attempt <= maxDirectRetries; attempt++ {
		st.attempts++
		resp, err := e.doRequest(ctx, loc, func(req *http.Request) {
			req.Header.Set("User-Agent", e.opts.UserAgent)
			req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, &ErrCancelled{Err: ctx.Err()}
			}
			st.lastNetErr = err
			e.logger.Debug(fmt.Sprintf("direct request to %s failed: %v", loc, err))
			return nil, nil
		}
		st.gotResponse = true

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfterDelay(resp)
			resp.Body.Close()
			if attempt == maxDirectRetries {
				e.logger.Debug(fmt.Sprintf("still rate limited by %s, giving up on direct tier", loc))
				return nil, nil
			}
			if delay <= 0 {
				delay = defaultRetryDelay
			}
			if delay > e.opts.MaxRetryAfter {
				delay = e.opts.MaxRetryAfter
			}
			e.logger.Debug(fmt.Sprintf("received 429 for %s, retrying in %s", loc, delay))
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, &ErrCancelled{Err: err}
			}
			continue
		}

		return e.readSitemapBody(resp, loc, st), nil
	}
	return nil, nil
}

// ===================== Evasion Tier =====================

// evasionTier retries with rotated user agents, browser-like headers, and
// randomized session cookies, pausing longer before each successive attempt.
type evasionTier struct {
	e *Extractor
}

func (t *evasionTier) name() Tier {
	return TierEvasion
}

func (t *evasionTier) attempt(ctx context.Context, loc *url.URL, st *fetchState) ([]byte, error) {
	e := t.e
	for attempt := 0; attempt < e.opts.EvasionAttempts; attempt++ {
		if attempt > 0 {
			delay := randomDelay(e.opts.MinDelay, e.opts.MaxDelay, attempt)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, &ErrCancelled{Err: err}
			}
		}
		st.attempts++

		agent := e.opts.UserAgents[rand.Intn(len(e.opts.UserAgents))]
		resp, err := e.doRequest(ctx, loc, func(req *http.Request) {
			applyEvasionProfile(req, agent)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, &ErrCancelled{Err: ctx.Err()}
			}
			st.lastNetErr = err
			e.logger.Debug(fmt.Sprintf("evasion attempt %d/%d for %s failed: %v", attempt+1, e.opts.EvasionAttempts, loc, err))
			continue
		}
		st.gotResponse = true

		if body := e.readSitemapBody(resp, loc, st); body != nil {
			return body, nil
		}
		e.logger.Debug(fmt.Sprintf("evasion attempt %d/%d for %s rejected", attempt+1, e.opts.EvasionAttempts, loc))
	}
	return nil, nil
}

// applyEvasionProfile makes the request resemble an organic browser
// navigation arriving from a search result.
func applyEvasionProfile(req *http.Request, agent string) {
	req.Header.Set("User-Agent", agent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("DNT", "1")
	req.Header.Set("Referer", "https://www.google.com/")
	req.Header.Set("sec-ch-ua", `"Chromium";v="122", "Not:A-Brand";v="99"`)
	req.Header.Set("sec-ch-ua-mobile", "?0")
	req.Header.Set("sec-ch-ua-platform", `"Windows"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Sec-Fetch-User", "?1")
	for _, cookie := range sessionCookies() {
		req.AddCookie(cookie)
	}
}

// sessionCookies fabricates the tracking cookies a returning visitor would
// carry.
func sessionCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: "sessionid", Value: strconv.Itoa(100000 + rand.Intn(900000))},
		{Name: "_ga", Value: strconv.Itoa(100000 + rand.Intn(900000))},
		{Name: "_gid", Value: strconv.Itoa(100000 + rand.Intn(900000))},
	}
}

func randomDelay(min, max time.Duration, multiplier int) time.Duration {
	if max < min {
		max = min
	}
	base := min + time.Duration(rand.Float64()*float64(max-min))
	return base * time.Duration(multiplier)
}

// ===================== HTTP Helpers =====================

// doRequest issues a GET against loc with the per-request timeout and pacing
// limiter applied. The returned response body keeps the timeout alive until
// it is closed.
func (e *Extractor) doRequest(ctx context.Context, loc *url.URL, decorate func(*http.Request)) (*http.Response, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	reqCtx := ctx
	cancel := context.CancelFunc(func() {})
	if e.opts.PerRequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, e.opts.PerRequestTimeout)
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, loc.String(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	if decorate != nil {
		decorate(req)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &bodyWithCancel{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type bodyWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *bodyWithCancel) Close() error {
	err := b.ReadCloser.Close()
	if b.cancel != nil {
		b.cancel()
	}
	return err
}

// readSitemapBody drains the response and returns its bytes when they look
// like sitemap XML, recording the failure mode on st otherwise.
func (e *Extractor) readSitemapBody(resp *http.Response, loc *url.URL, st *fetchState) []byte {
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		e.logger.Debug(fmt.Sprintf("unexpected status %s for %s", resp.Status, loc))
		return nil
	}

	reader, err := decompressReader(resp.Body)
	if err != nil {
		e.logger.Debug(fmt.Sprintf("decompressing response from %s failed: %v", loc, err))
		return nil
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		st.lastNetErr = err
		e.logger.Debug(fmt.Sprintf("reading response from %s failed: %v", loc, err))
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	if len(bytes.TrimSpace(data)) == 0 {
		st.transferred = true
		st.contentType = contentType
		e.logger.Debug(fmt.Sprintf("empty response body from %s", loc))
		return nil
	}
	if !looksLikeXML(data) {
		st.transferred = true
		st.contentType = contentType
		e.logger.Debug(fmt.Sprintf("response from %s is not XML (content type %q)", loc, contentType))
		return nil
	}
	return data
}

// decompressReader transparently unwraps gzip bodies, sniffing the magic
// bytes rather than trusting headers or file extensions.
func decompressReader(r io.Reader) (io.Reader, error) {
	buffered := bufio.NewReaderSize(r, defaultBufSize)
	peek, err := buffered.Peek(2)
	if err == nil && len(peek) == 2 && peek[0] == 0x1f && peek[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, err
		}
		return gz, nil
	}
	return buffered, nil
}

func retryAfterDelay(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		return time.Until(t)
	}
	return 0
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ===================== Content Checks =====================

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// looksLikeXML reports whether data plausibly starts an XML document rather
// than an HTML challenge page.
func looksLikeXML(data []byte) bool {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(trimmed) == 0 {
		return false
	}
	head := trimmed
	if len(head) > 64 {
		head = head[:64]
	}
	lower := bytes.ToLower(head)
	if bytes.HasPrefix(lower, []byte("<?xml")) {
		return true
	}
	if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
		return false
	}
	return trimmed[0] == '<'
}
