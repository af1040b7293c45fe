package ratelimit

import "time"

// Entry is the window state of one key under one rule
type Entry struct {
	Count   int64
	ResetAt time.Time
	Blocked bool
}

// advance applies one request at now to the window.
// An expired (or new) window restarts at count 1; a blocked window short-circuits without counting.
func (e *Entry) advance(rule Rule, now time.Time) {
	switch {
	case e.ResetAt.IsZero() || !now.Before(e.ResetAt):
		e.Count = 1
		e.ResetAt = now.Add(rule.Period)
		e.Blocked = false
	case e.Blocked:
	default:
		e.Count++
		if e.Count > rule.Limit {
			e.Blocked = true
		}
	}
}
