package gositemapextractor

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"
)

// DocumentKind discriminates flat URL sets from sitemap indexes.
type DocumentKind int

const (
	DocURLSet DocumentKind = iota
	DocSitemapIndex
)

func (k DocumentKind) String() string {
	if k == DocSitemapIndex {
		return "sitemapindex"
	}
	return "urlset"
}

// SitemapDocument is the parsed form of one sitemap: either a flat set of
// page URLs or an index referencing child sitemaps. Documents are never
// mutated after Parse returns them.
type SitemapDocument struct {
	Kind     DocumentKind
	URLs     []string
	Children []Source
}

type xmlURLEntry struct {
	Loc string `xml:"loc"`
}

type xmlSitemapEntry struct {
	Loc string `xml:"loc"`
}

// ===================== XML Parsing =====================

// Parse decodes sitemap XML into a SitemapDocument. Namespace prefixes,
// charset declarations, and gzip compression are all tolerated; element
// matching goes by local name only.
func (e *Extractor) Parse(data []byte) (*SitemapDocument, error) {
	data, err := maybeGunzip(data)
	if err != nil {
		return nil, &ErrMalformedXML{Err: err}
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.CharsetReader = charset.NewReaderLabel

	root, err := findRootElement(decoder)
	if err != nil {
		return nil, err
	}

	switch root.Name.Local {
	case "urlset":
		return e.parseURLSet(decoder)
	case "sitemapindex":
		return e.parseIndex(decoder)
	default:
		return nil, &ErrUnrecognizedSchema{Root: root.Name.Local}
	}
}

func findRootElement(decoder *xml.Decoder) (*xml.StartElement, error) {
	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &ErrMalformedXML{Err: errors.New("no root element")}
			}
			return nil, &ErrMalformedXML{Err: err}
		}
		if start, ok := tok.(xml.StartElement); ok {
			return &start, nil
		}
	}
}

func (e *Extractor) parseURLSet(decoder *xml.Decoder) (*SitemapDocument, error) {
	doc := &SitemapDocument{Kind: DocURLSet}
	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return doc, nil
			}
			return nil, &ErrMalformedXML{Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "url" {
			continue
		}
		var entry xmlURLEntry
		if err := decoder.DecodeElement(&entry, &start); err != nil {
			return nil, &ErrMalformedXML{Err: err}
		}
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			e.logger.Debug("skipping url entry without loc")
			continue
		}
		doc.URLs = append(doc.URLs, loc)
	}
}

func (e *Extractor) parseIndex(decoder *xml.Decoder) (*SitemapDocument, error) {
	doc := &SitemapDocument{Kind: DocSitemapIndex}
	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return doc, nil
			}
			return nil, &ErrMalformedXML{Err: err}
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sitemap" {
			continue
		}
		var entry xmlSitemapEntry
		if err := decoder.DecodeElement(&entry, &start); err != nil {
			return nil, &ErrMalformedXML{Err: err}
		}
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" {
			e.logger.Debug("skipping sitemap entry without loc")
			continue
		}
		child, ok := childSource(loc)
		if !ok {
			e.logger.Warn(fmt.Sprintf("skipping child sitemap with non-absolute location %q", loc))
			continue
		}
		doc.Children = append(doc.Children, child)
	}
}

// childSource classifies an index entry location. Index entries must be
// absolute http(s) URLs: an index has no local-path concept.
func childSource(loc string) (Source, bool) {
	parsed, err := url.Parse(loc)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return Source{}, false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Source{}, false
	}
	return RemoteURL(loc), true
}

// maybeGunzip decompresses data when it carries the gzip magic bytes.
func maybeGunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
