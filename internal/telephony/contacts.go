package telephony

import (
	"context"
	"sync"
	"time"
)

// ContactDirectory resolves a phone number to a display name. Lookups are
// best-effort; an empty name with a nil error means "unknown".
type ContactDirectory interface {
	DisplayName(ctx context.Context, number string) (string, error)
}

// CallLogReader queries the device call log. Used only when an originated
// call signal arrives without a number.
type CallLogReader interface {
	// MostRecentOutgoing returns the number of the most recent outgoing
	// entry placed at or after since. Empty when none exists in the window.
	MostRecentOutgoing(ctx context.Context, since time.Time) (string, error)
}

// CachedDirectory memoizes directory lookups per number. Negative results
// are cached too so an absent contact is not re-queried on every signal.
type CachedDirectory struct {
	mu    sync.Mutex
	inner ContactDirectory
	names map[string]string
}

// NewCachedDirectory wraps a directory with a per-process cache.
func NewCachedDirectory(inner ContactDirectory) *CachedDirectory {
	return &CachedDirectory{
		inner: inner,
		names: make(map[string]string),
	}
}

func (c *CachedDirectory) DisplayName(ctx context.Context, number string) (string, error) {
	c.mu.Lock()
	if name, ok := c.names[number]; ok {
		c.mu.Unlock()
		return name, nil
	}
	c.mu.Unlock()

	name, err := c.inner.DisplayName(ctx, number)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.names[number] = name
	c.mu.Unlock()
	return name, nil
}
