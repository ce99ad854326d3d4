package pose

import "sync"

// IDGenerator hands out incremental pose ids
type IDGenerator struct {
	id int64
	sync.Mutex
}

// NewIDGenerator returns a generator whose first id is 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// Next returns the next id
func (g *IDGenerator) Next() int64 {
	g.Lock()
	defer g.Unlock()
	g.id++
	return g.id
}
