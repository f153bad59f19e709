package bridge

import "sync/atomic"

// Capture holds the agent session identifier for one supervised session.
// The first offered value wins and is never replaced.
type Capture struct {
	id atomic.Pointer[string]
}

// Offer records id if nothing has been captured yet. It reports whether
// this call was the one that captured it.
func (c *Capture) Offer(id string) bool {
	if id == "" {
		return false
	}
	return c.id.CompareAndSwap(nil, &id)
}

// Value returns the captured identifier, or "" if none.
func (c *Capture) Value() string {
	if p := c.id.Load(); p != nil {
		return *p
	}
	return ""
}
