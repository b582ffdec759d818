package gositemapextractor

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	defaultBufSize         = 64 * 1024
	defaultTimeout         = 15 * time.Second
	defaultMaxDepth        = 20
	defaultEvasionAttempts = 3
	defaultMinDelay        = 2 * time.Second
	defaultMaxDelay        = 5 * time.Second
	defaultRetryDelay      = 5 * time.Second
	defaultMaxRetryAfter   = 30 * time.Second
	maxDirectRetries       = 3
)

// defaultUserAgents is the rotation pool for the evasion tier.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

// ===================== Configuration =====================

// Options configures fetching, evasion behavior, and resolution limits.
// The zero value of every field selects a sensible default.
type Options struct {
	// HTTPClient serves the direct and evasion tiers. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// UserAgent is sent by the direct tier and discovery probes.
	UserAgent string

	// UserAgents is the rotation pool for the evasion tier.
	UserAgents []string

	// PerRequestTimeout bounds each HTTP request including its body read.
	// Zero selects 15s; negative disables the timeout.
	PerRequestTimeout time.Duration

	// EvasionAttempts is how many header/cookie profiles the evasion tier
	// cycles through before giving up.
	EvasionAttempts int

	// MinDelay and MaxDelay bound the randomized pause between evasion
	// attempts. The pause grows with the attempt number.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxRetryAfter caps how long a 429 Retry-After header may stall a fetch.
	MaxRetryAfter time.Duration

	// MaxDepth limits sitemap index nesting. Zero selects 20; negative
	// disables the limit (cycle detection still bounds the traversal).
	MaxDepth int

	// DisableEvasion removes the evasion tier from the fallback chain.
	DisableEvasion bool

	// EnableBrowser appends the interactive browser tier to the chain.
	// It requires a Confirmer.
	EnableBrowser bool

	// Confirmer is the human-in-the-loop suspension point for the browser
	// tier.
	Confirmer Confirmer

	// BrowserUserAgent is the identity presented by the browser tier.
	BrowserUserAgent string

	// RequestsPerSecond paces automated-tier requests; zero leaves them
	// unpaced.
	RequestsPerSecond float64

	// Logger receives structured progress and diagnostic events. Defaults
	// to a discarding logger.
	Logger *slog.Logger
}

// Extractor resolves sitemap sources into flat URL sets and implements
// SitemapExtractor.
type Extractor struct {
	opts    Options
	client  *http.Client
	logger  *slog.Logger
	limiter *rate.Limiter
	tiers   []fetchTier
}

// ===================== Public API =====================

// New builds an Extractor with safe defaults applied.
func New(opts Options) *Extractor {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = defaultUserAgents
	}
	if opts.PerRequestTimeout == 0 {
		opts.PerRequestTimeout = defaultTimeout
	}
	if opts.EvasionAttempts <= 0 {
		opts.EvasionAttempts = defaultEvasionAttempts
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = defaultMinDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaultMaxDelay
	}
	if opts.MaxDelay < opts.MinDelay {
		opts.MaxDelay = opts.MinDelay
	}
	if opts.MaxRetryAfter <= 0 {
		opts.MaxRetryAfter = defaultMaxRetryAfter
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = defaultMaxDepth
	}
	if opts.BrowserUserAgent == "" {
		opts.BrowserUserAgent = googlebotUserAgent
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := &Extractor{
		opts:   opts,
		client: opts.HTTPClient,
		logger: opts.Logger,
	}
	if opts.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	e.tiers = append(e.tiers, &directTier{e: e})
	if !opts.DisableEvasion {
		e.tiers = append(e.tiers, &evasionTier{e: e})
	}
	if opts.EnableBrowser {
		browser := &browserTier{e: e}
		browser.capture = browser.runBrowser
		e.tiers = append(e.tiers, browser)
	}
	return e
}
