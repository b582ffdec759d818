package gositemapextractor

import (
	"fmt"
	"net/url"
)

// ErrInvalidURL indicates the input site or sitemap URL is invalid.
type ErrInvalidURL struct {
	URL string
	Err error
}

func (e *ErrInvalidURL) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("invalid URL: %v", e.Err)
	}
	return fmt.Sprintf("invalid URL %q: %v", e.URL, e.Err)
}

func (e *ErrInvalidURL) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates a local sitemap path does not exist.
type ErrNotFound struct {
	Path string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("sitemap file %q does not exist", e.Path)
}

// ErrRead indicates a local sitemap path exists but could not be read.
type ErrRead struct {
	Path string
	Err  error
}

func (e *ErrRead) Error() string {
	return fmt.Sprintf("reading sitemap file %q: %v", e.Path, e.Err)
}

func (e *ErrRead) Unwrap() error {
	return e.Err
}

// ErrNetwork indicates no retrieval tier managed to reach the remote host.
type ErrNetwork struct {
	URL *url.URL
	Err error
}

func (e *ErrNetwork) Error() string {
	if e.URL == nil {
		return fmt.Sprintf("network failure: %v", e.Err)
	}
	return fmt.Sprintf("network failure fetching %s: %v", e.URL, e.Err)
}

func (e *ErrNetwork) Unwrap() error {
	return e.Err
}

// ErrBlocked indicates every automated retrieval tier was exhausted without
// the server handing over sitemap content.
type ErrBlocked struct {
	URL      *url.URL
	Attempts int
}

func (e *ErrBlocked) Error() string {
	if e.URL == nil {
		return fmt.Sprintf("blocked after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("blocked fetching %s after %d attempts", e.URL, e.Attempts)
}

// ErrInvalidContent indicates the source transferred a body that is empty or
// not sitemap XML.
type ErrInvalidContent struct {
	Source      string
	ContentType string
}

func (e *ErrInvalidContent) Error() string {
	if e.ContentType == "" {
		return fmt.Sprintf("%s did not contain sitemap XML", e.Source)
	}
	return fmt.Sprintf("%s did not contain sitemap XML (content type %q)", e.Source, e.ContentType)
}

// ErrCancelled indicates the fetch was interrupted by context cancellation.
type ErrCancelled struct {
	Err error
}

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("fetch cancelled: %v", e.Err)
}

func (e *ErrCancelled) Unwrap() error {
	return e.Err
}

// ErrMalformedXML indicates the document could not be decoded as XML.
type ErrMalformedXML struct {
	Err error
}

func (e *ErrMalformedXML) Error() string {
	return fmt.Sprintf("malformed sitemap XML: %v", e.Err)
}

func (e *ErrMalformedXML) Unwrap() error {
	return e.Err
}

// ErrUnrecognizedSchema indicates the XML root is neither a URL set nor a
// sitemap index.
type ErrUnrecognizedSchema struct {
	Root string
}

func (e *ErrUnrecognizedSchema) Error() string {
	return fmt.Sprintf("unrecognized sitemap schema with root element %q", e.Root)
}

// ErrRootFetch indicates the top-level source could not be fetched.
type ErrRootFetch struct {
	Source Source
	Err    error
}

func (e *ErrRootFetch) Error() string {
	return fmt.Sprintf("fetching root sitemap %s: %v", e.Source, e.Err)
}

func (e *ErrRootFetch) Unwrap() error {
	return e.Err
}

// ErrRootParse indicates the top-level source fetched but did not parse.
type ErrRootParse struct {
	Source Source
	Err    error
}

func (e *ErrRootParse) Error() string {
	return fmt.Sprintf("parsing root sitemap %s: %v", e.Source, e.Err)
}

func (e *ErrRootParse) Unwrap() error {
	return e.Err
}

// ErrTooDeep indicates the sitemap index nesting limit was exceeded.
type ErrTooDeep struct {
	MaxDepth int
}

func (e *ErrTooDeep) Error() string {
	return fmt.Sprintf("sitemap index nesting exceeds %d levels", e.MaxDepth)
}

// ErrNoSitemaps indicates that no sitemap URLs were discovered for a site.
type ErrNoSitemaps struct {
	Site *url.URL
}

func (e *ErrNoSitemaps) Error() string {
	if e.Site == nil {
		return "no sitemaps discovered"
	}
	return fmt.Sprintf("no sitemaps discovered for %s", e.Site)
}
