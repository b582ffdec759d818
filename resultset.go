package gositemapextractor

// ResultSet accumulates extracted page URLs in discovery order with
// duplicates removed (first occurrence wins). It is append-only while a
// resolution runs and read-only once handed to the caller.
type ResultSet struct {
	urls []string
	seen map[string]struct{}
}

func newResultSet() *ResultSet {
	return &ResultSet{seen: make(map[string]struct{})}
}

// add appends u unless it was collected before. Reports whether it was added.
func (r *ResultSet) add(u string) bool {
	if _, ok := r.seen[u]; ok {
		return false
	}
	r.seen[u] = struct{}{}
	r.urls = append(r.urls, u)
	return true
}

// Len returns the number of distinct URLs collected.
func (r *ResultSet) Len() int {
	return len(r.urls)
}

// Contains reports whether u was collected.
func (r *ResultSet) Contains(u string) bool {
	_, ok := r.seen[u]
	return ok
}

// URLs returns the collected URLs in first-discovery order. The returned
// slice is a copy; mutating it does not affect the set.
func (r *ResultSet) URLs() []string {
	out := make([]string, len(r.urls))
	copy(out, r.urls)
	return out
}
