package skin

import (
	"container/list"
	"math"
	"sync"
)

// keyPrecision is the number of scale steps per unit a cache key resolves
const keyPrecision = 1e6

// Key returns the cache key for scale.  Scales that round to the same key
// share a shape.
func Key(scale float64) int64 {
	return int64(math.Round(scale * keyPrecision))
}

type entry struct {
	key   int64
	shape *Shape
}

// Cache memoizes generated shells by scale and hands out independent clones.
// A capacity above zero bounds the number of templates held, evicting the
// least recently used.  Cache is safe for concurrent use.
type Cache struct {
	gen      *Generator
	capacity int
	entries  map[int64]*list.Element
	order    *list.List
	hits     int
	misses   int
	sync.Mutex
}

// NewCache returns an empty cache building shapes with gen.  A capacity of
// zero or less keeps every template.
func NewCache(gen *Generator, capacity int) *Cache {
	return &Cache{
		gen:      gen,
		capacity: capacity,
		entries:  make(map[int64]*list.Element),
		order:    list.New(),
	}
}

// Get returns a clone of the shape for scale, building and storing the
// template on first request
func (c *Cache) Get(scale float64) (*Shape, error) {

	c.Lock()
	tmpl := c.template(scale)
	c.Unlock()

	// templates are never mutated once stored so cloning needs no lock
	return tmpl.Clone()
}

func (c *Cache) template(scale float64) *Shape {

	key := Key(scale)

	if el, ok := c.entries[key]; ok {
		c.hits++
		c.order.MoveToFront(el)
		return el.Value.(*entry).shape
	}

	c.misses++
	shape := c.gen.Build(float64(key) / keyPrecision)
	c.entries[key] = c.order.PushFront(&entry{key: key, shape: shape})

	if c.capacity > 0 && c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}

	return shape
}

// Len returns the number of templates held
func (c *Cache) Len() int {
	c.Lock()
	defer c.Unlock()
	return c.order.Len()
}

// Stats returns the number of cache hits and misses so far
func (c *Cache) Stats() (hits, misses int) {
	c.Lock()
	defer c.Unlock()
	return c.hits, c.misses
}
