package gositemapextractor

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// SourceKind discriminates local sitemap files from remote sitemap URLs.
type SourceKind int

const (
	SourceLocal SourceKind = iota
	SourceRemote
)

func (k SourceKind) String() string {
	if k == SourceRemote {
		return "remote"
	}
	return "local"
}

// Source identifies one sitemap document: a file on disk or a URL served over
// HTTP(S). Values are immutable once constructed.
type Source struct {
	kind  SourceKind
	value string
}

// LocalPath builds a Source referring to a sitemap file on disk.
func LocalPath(path string) Source {
	return Source{kind: SourceLocal, value: path}
}

// RemoteURL builds a Source referring to a sitemap served over HTTP(S).
func RemoteURL(raw string) Source {
	return Source{kind: SourceRemote, value: raw}
}

// ParseSource classifies a raw argument as a remote URL or a local path.
func ParseSource(raw string) Source {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return RemoteURL(trimmed)
	}
	return LocalPath(trimmed)
}

// Kind reports whether the source is local or remote.
func (s Source) Kind() SourceKind {
	return s.kind
}

// IsRemote reports whether the source is fetched over the network.
func (s Source) IsRemote() bool {
	return s.kind == SourceRemote
}

// String returns the raw path or URL the source was built from.
func (s Source) String() string {
	return s.value
}

// URL parses a remote source's location.
func (s Source) URL() (*url.URL, error) {
	if s.kind != SourceRemote {
		return nil, &ErrInvalidURL{URL: s.value, Err: errors.New("not a remote source")}
	}
	parsed, err := url.Parse(strings.TrimSpace(s.value))
	if err != nil {
		return nil, &ErrInvalidURL{URL: s.value, Err: err}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &ErrInvalidURL{URL: s.value, Err: errors.New("unsupported scheme")}
	}
	if parsed.Host == "" {
		return nil, &ErrInvalidURL{URL: s.value, Err: errors.New("missing host")}
	}
	parsed.Fragment = ""
	return parsed, nil
}

var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// visitKey returns the canonical identity used for cycle detection, so that
// spelling variants of the same location collapse to one visit.
func (s Source) visitKey() string {
	if s.kind == SourceLocal {
		abs, err := filepath.Abs(s.value)
		if err != nil {
			return "file:" + filepath.Clean(s.value)
		}
		return "file:" + abs
	}
	parsed, err := urlParser.Parse(strings.TrimSpace(s.value))
	if err != nil {
		return strings.TrimSpace(s.value)
	}
	return parsed.Href(true)
}
