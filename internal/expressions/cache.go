package expressions

import "sync"

// programCache holds compiled programs keyed by source. Safe for concurrent use.
type programCache[P any] struct {
	mu    sync.RWMutex
	items map[string]P
}

func newProgramCache[P any]() *programCache[P] {
	return &programCache[P]{items: make(map[string]P)}
}

// getOrCompile returns the cached program for src, compiling it once on a miss.
func (c *programCache[P]) getOrCompile(src string, compile func(string) (P, error)) (P, error) {
	c.mu.RLock()
	if p, ok := c.items[src]; ok {
		c.mu.RUnlock()
		return p, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock.
	if p, ok := c.items[src]; ok {
		return p, nil
	}
	p, err := compile(src)
	if err != nil {
		var zero P
		return zero, err
	}
	c.items[src] = p
	return p, nil
}

func (c *programCache[P]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
