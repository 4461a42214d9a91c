package vortex

import (
	"context"
	"sync"
	"time"

	"github.com/diegonavarro96/HEC-HMS-BackEnd/internal/domain"
)

// FlowSource produces flow series for a named junction.
type FlowSource interface {
	ExtractFlow(ctx context.Context, junction string) (domain.FlowResponse, error)
}

// CachedExtractor wraps a FlowSource with an in-memory LRU cache. Every
// extraction spawns an interpreter against the results database, so repeated
// dashboard queries for the same junction are worth short-circuiting. Entries
// expire after validFor so results refresh within a model-run cycle.
type CachedExtractor struct {
	inner FlowSource
	cache *flowCache
}

// NewCachedExtractor creates a cache decorator around a flow source.
// A validFor of zero disables expiry; entries then live until evicted.
func NewCachedExtractor(inner FlowSource, maxEntries int, validFor time.Duration) *CachedExtractor {
	return &CachedExtractor{
		inner: inner,
		cache: newFlowCache(maxEntries, validFor),
	}
}

func (c *CachedExtractor) ExtractFlow(ctx context.Context, junction string) (domain.FlowResponse, error) {
	if resp, ok := c.cache.get(junction); ok {
		return resp, nil
	}
	resp, err := c.inner.ExtractFlow(ctx, junction)
	if err != nil {
		return resp, err
	}
	// Only cache series that carry data, so a query racing an in-progress
	// model run can be retried.
	if pointCount(resp) > 0 {
		c.cache.put(junction, resp)
	}
	return resp, nil
}

func pointCount(resp domain.FlowResponse) int {
	n := 0
	for _, s := range resp.Series {
		n += len(s.Data)
	}
	return n
}

// flowCache is a thread-safe LRU cache of flow responses with per-entry
// expiry.
type flowCache struct {
	maxEntries int
	validFor   time.Duration
	mu         sync.Mutex
	entries    map[string]*flowEntry
	head       *flowEntry // most recently used
	tail       *flowEntry // least recently used
}

type flowEntry struct {
	key      string
	value    domain.FlowResponse
	storedAt time.Time
	prev     *flowEntry
	next     *flowEntry
}

func newFlowCache(maxEntries int, validFor time.Duration) *flowCache {
	return &flowCache{
		maxEntries: maxEntries,
		validFor:   validFor,
		entries:    make(map[string]*flowEntry),
	}
}

func (c *flowCache) get(key string) (domain.FlowResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.FlowResponse{}, false
	}
	if c.validFor > 0 && domain.Now().Sub(e.storedAt) >= c.validFor {
		delete(c.entries, e.key)
		c.remove(e)
		return domain.FlowResponse{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *flowCache) put(key string, value domain.FlowResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.storedAt = domain.Now()
		c.moveToFront(e)
		return
	}

	e := &flowEntry{key: key, value: value, storedAt: domain.Now()}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *flowCache) moveToFront(e *flowEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *flowCache) addToFront(e *flowEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *flowCache) remove(e *flowEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *flowCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
