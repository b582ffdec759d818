package gositemapextractor

import (
	"context"
	"errors"
	"fmt"
)

// resolution is the accumulator threaded through one Extract call. It is
// never shared across calls, so concurrent extractions cannot interfere.
type resolution struct {
	visited map[string]struct{}
	results *ResultSet
}

// Extract resolves the sitemap at source, recursively following sitemap
// indexes depth-first in document order, and returns every referenced page
// URL deduplicated in first-discovery order.
//
// Failures on child sitemaps are logged and contribute nothing; a failure on
// the root source aborts the extraction with no partial result.
func (e *Extractor) Extract(ctx context.Context, source Source) (*ResultSet, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res := &resolution{
		visited: make(map[string]struct{}),
		results: newResultSet(),
	}
	if err := e.resolve(ctx, source, 0, res); err != nil {
		return nil, err
	}
	return res.results, nil
}

func (e *Extractor) resolve(ctx context.Context, source Source, depth int, res *resolution) error {
	if err := ctx.Err(); err != nil {
		return &ErrCancelled{Err: err}
	}
	if e.opts.MaxDepth > 0 && depth > e.opts.MaxDepth {
		return &ErrTooDeep{MaxDepth: e.opts.MaxDepth}
	}

	key := source.visitKey()
	if _, ok := res.visited[key]; ok {
		e.logger.Debug(fmt.Sprintf("skipping already visited sitemap %s", source))
		return nil
	}
	res.visited[key] = struct{}{}

	fetched, err := e.Fetch(ctx, source)
	if err != nil {
		if depth == 0 {
			return &ErrRootFetch{Source: source, Err: err}
		}
		return err
	}

	doc, err := e.Parse(fetched.Body)
	if err != nil {
		if depth == 0 {
			return &ErrRootParse{Source: source, Err: err}
		}
		return err
	}

	if doc.Kind == DocSitemapIndex {
		e.logger.Debug(fmt.Sprintf("sitemap index %s references %d child sitemaps", source, len(doc.Children)))
		for _, child := range doc.Children {
			err := e.resolve(ctx, child, depth+1, res)
			if err == nil {
				continue
			}
			if isFatalResolveError(err) {
				return err
			}
			e.logger.Warn(fmt.Sprintf("skipping child sitemap %s: %v", child, err))
		}
		return nil
	}

	added := 0
	for _, u := range doc.URLs {
		if res.results.add(u) {
			added++
		}
	}
	e.logger.Debug(fmt.Sprintf("sitemap %s contributed %d URLs (%d new)", source, len(doc.URLs), added))
	return nil
}

// isFatalResolveError reports whether a child failure must abort the whole
// resolution instead of being downgraded to a warning.
func isFatalResolveError(err error) bool {
	var cancelled *ErrCancelled
	if errors.As(err, &cancelled) {
		return true
	}
	var tooDeep *ErrTooDeep
	if errors.As(err, &tooDeep) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
