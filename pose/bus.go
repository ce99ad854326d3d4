package pose

import "sync"

// Kind names a pose event
type Kind int

const (
	// ExactPoses carries the current frame's pose for each slot
	ExactPoses Kind = iota
	// SmoothedPoses carries the temporally averaged pose for each slot
	SmoothedPoses
)

// String returns the event name
func (k Kind) String() string {
	if k == ExactPoses {
		return "exactPoses"
	}
	return "poses"
}

// Handler receives a pose event.  The slice is indexed by subject slot and
// absent slots are nil.  Handlers must not modify the slice.
type Handler func(poses []*Pose)

type subscription struct {
	handler Handler
}

// Bus delivers pose events to subscribers in registration order
type Bus struct {
	subs map[Kind][]*subscription
	sync.Mutex
}

// NewBus returns an empty event bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Kind][]*subscription),
	}
}

// Subscribe registers a handler for an event kind and returns the function
// that removes it
func (b *Bus) Subscribe(kind Kind, h Handler) func() {

	b.Lock()
	defer b.Unlock()

	sub := &subscription{handler: h}
	b.subs[kind] = append(b.subs[kind], sub)

	return func() {
		b.Lock()
		defer b.Unlock()

		list := b.subs[kind]

		for i, s := range list {
			if s == sub {
				b.subs[kind] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers poses to every handler subscribed to kind.  Handlers
// added or removed during delivery take effect on the next publish.
func (b *Bus) Publish(kind Kind, poses []*Pose) {

	b.Lock()
	subs := append([]*subscription(nil), b.subs[kind]...)
	b.Unlock()

	for _, s := range subs {
		s.handler(poses)
	}
}

// Len returns the number of handlers subscribed to kind
func (b *Bus) Len(kind Kind) int {
	b.Lock()
	defer b.Unlock()
	return len(b.subs[kind])
}
