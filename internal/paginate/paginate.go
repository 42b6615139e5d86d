// Package paginate implements offset/limit windowing over a scan of matches
// whose total count is not known up front.
package paginate

// Page summarizes one window over a match scan. TotalFound counts the
// matches observed before scanning halted, not a grand total: scanning stops
// one match past the window, so a full count is only exact when HasMore is
// false. Callers wanting an exact grand total must scan to exhaustion.
type Page struct {
	TotalFound int  `json:"totalFound"`
	Returned   int  `json:"returned"`
	HasMore    bool `json:"hasMore"`
	NextOffset *int `json:"nextOffset,omitempty"`
}

// Collector accumulates matches from a scan and keeps exactly those whose
// 0-based position falls in [offset, offset+limit). Once the window is full
// and one sentinel match beyond it has been seen, Add returns false and the
// caller should stop scanning.
type Collector[T any] struct {
	offset int
	limit  int
	seen   int
	items  []T
	more   bool
}

// NewCollector creates a collector for the requested window. A negative
// offset is coerced to 0 and the limit is floored to 1.
func NewCollector[T any](offset, limit int) *Collector[T] {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 1
	}
	return &Collector[T]{offset: offset, limit: limit}
}

// Add records the next match in scan order. It returns true while the scan
// should continue and false once further matches cannot affect the page.
func (c *Collector[T]) Add(item T) bool {
	pos := c.seen
	c.seen++
	switch {
	case pos < c.offset:
	case pos < c.offset+c.limit:
		c.items = append(c.items, item)
	default:
		// Sentinel past the window: enough to know more matches exist.
		c.more = true
		return false
	}
	return true
}

// Done reports whether further Add calls are pointless.
func (c *Collector[T]) Done() bool {
	return c.more
}

// Items returns the matches inside the window, in scan order.
func (c *Collector[T]) Items() []T {
	return c.items
}

// Page summarizes the window after scanning halts.
func (c *Collector[T]) Page() Page {
	page := Page{
		TotalFound: c.seen,
		Returned:   len(c.items),
		HasMore:    c.more,
	}
	if c.more {
		next := c.offset + len(c.items)
		page.NextOffset = &next
	}
	return page
}
