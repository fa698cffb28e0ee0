// ABOUTME: Thread-safe TTL cache mapping idempotency keys to the result of the first submission
// ABOUTME: Used by the gateway so a resubmitted message send returns the original message id

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// sweepInterval is how often expired keys are dropped in the background.
const sweepInterval = time.Minute

type entry struct {
	key     string
	value   string
	expires time.Time
}

// Cache remembers, for a bounded time and a bounded number of keys, the id
// produced by the first successful submission under an idempotency key.
// When full, the key written least recently is dropped first.
type Cache struct {
	ttl   time.Duration
	limit int

	mu    sync.RWMutex
	index map[string]*list.Element // values are *entry
	fifo  *list.List               // least recently written at the front

	flight   singleflight.Group
	stop     chan struct{}
	stopOnce sync.Once
}

// New returns a cache holding at most maxSize keys for ttl each, and starts
// its sweeper. Call Close to stop the sweeper.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		ttl:   ttl,
		limit: max(maxSize, 1),
		index: make(map[string]*list.Element),
		fifo:  list.New(),
		stop:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get returns the value stored under key unless it has expired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookup(key, time.Now())
}

func (c *Cache) lookup(key string, now time.Time) (string, bool) {
	el, ok := c.index[key]
	if !ok {
		return "", false
	}
	e := el.Value.(*entry)
	if !now.Before(e.expires) {
		return "", false
	}
	return e.value, true
}

// Put stores value under key with a fresh TTL.
func (c *Cache) Put(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := time.Now().Add(c.ttl)
	if el, ok := c.index[key]; ok {
		e := el.Value.(*entry)
		e.value, e.expires = value, expires
		c.fifo.MoveToBack(el)
		return
	}

	for c.fifo.Len() >= c.limit {
		c.remove(c.fifo.Front())
	}
	c.index[key] = c.fifo.PushBack(&entry{key: key, value: value, expires: expires})
}

// Do returns the value cached under key, or runs fn and caches its result.
// Concurrent calls with the same key share one run of fn. A failed fn caches
// nothing, so the caller may resubmit. replayed is false only for the caller
// whose fn produced the value.
func (c *Cache) Do(key string, fn func() (string, error)) (value string, replayed bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	executed := false
	v, err, _ := c.flight.Do(key, func() (any, error) {
		// a flight that landed between Get and Do has already stored its value
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		executed = true
		v, err := fn()
		if err != nil {
			return "", err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		return "", false, err
	}
	return v.(string), !executed, nil
}

// Len counts stored keys, expired ones included until the next sweep.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.index)
}

// remove drops el. Must be called with mu held.
func (c *Cache) remove(el *list.Element) {
	if el == nil {
		return
	}
	c.fifo.Remove(el)
	delete(c.index, el.Value.(*entry).key)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}

// sweep drops every expired key.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for el := c.fifo.Front(); el != nil; {
		next := el.Next()
		if !now.Before(el.Value.(*entry).expires) {
			c.remove(el)
		}
		el = next
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (c *Cache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
