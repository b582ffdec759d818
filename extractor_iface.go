package gositemapextractor

import "context"

// SitemapExtractor resolves one sitemap source into a flat, deduplicated set
// of page URLs.
type SitemapExtractor interface {
	// Extract fetches the source, follows nested sitemap indexes, and returns
	// every referenced page URL in first-discovery order.
	Extract(ctx context.Context, source Source) (*ResultSet, error)
}
