package pose

import (
	"log"

	"github.com/swdee/go-posetree/landmark"
)

// Params defines the configuration of the ingestion pipeline
type Params struct {
	// Type is the landmark model poses are produced by
	Type landmark.Type
	// MaxPoses is the number of subject slots
	MaxPoses int
	// BufferSize is the number of recent poses averaged per slot
	BufferSize int
	// DistinctThreshold is the minimum horizontal distance between the
	// centers of two accepted poses
	DistinctThreshold float64
	// ProminentThreshold is the minimum normalized bounding box height of an
	// accepted pose
	ProminentThreshold float64
	// Assignment selects the slot assignment strategy
	Assignment Assignment
	// ExpireAfter clears a slot's buffer once that many consecutive
	// published cycles gave it no pose, 0 keeps history forever
	ExpireAfter int
}

// Frame is the result of one ingestion cycle.  Both slices are indexed by
// subject slot and hold nil for absent slots.
type Frame struct {
	// Exact holds the pose pushed to each slot this cycle
	Exact []*Pose
	// Smoothed holds the temporal average of each slot with data
	Smoothed []*Pose
}

// Pipeline turns raw detector output into per slot exact and smoothed poses
// and publishes them on its Bus
type Pipeline struct {
	// Params are the pipeline configuration parameters
	Params Params

	bus      *Bus
	buffers  []*Buffer
	assigner SlotAssigner
	idGen    *IDGenerator
	logger   *log.Logger
	// missed counts the consecutive cycles each slot received no pose
	missed []int
}

// NewPipeline returns a pipeline publishing to bus.  A nil bus creates a
// private one.
func NewPipeline(p Params, bus *Bus) *Pipeline {

	if p.MaxPoses < 1 {
		p.MaxPoses = 1
	}

	if bus == nil {
		bus = NewBus()
	}

	pl := &Pipeline{
		Params:   p,
		bus:      bus,
		buffers:  make([]*Buffer, p.MaxPoses),
		missed:   make([]int, p.MaxPoses),
		assigner: NewAssigner(p.Assignment),
		idGen:    NewIDGenerator(),
		logger:   log.Default(),
	}

	for i := range pl.buffers {
		pl.buffers[i] = NewBuffer(p.BufferSize)
	}

	return pl
}

// SetLogger replaces the logger used to report dropped detections
func (pl *Pipeline) SetLogger(l *log.Logger) {
	if l != nil {
		pl.logger = l
	}
}

// Bus returns the bus events are published on
func (pl *Pipeline) Bus() *Bus {
	return pl.bus
}

// Buffer returns the pose buffer of a slot
func (pl *Pipeline) Buffer(slot int) *Buffer {
	return pl.buffers[slot]
}

// Ingest runs one detection cycle.  It returns false and publishes nothing
// when no detection yields an accepted pose, leaving the previous averages in
// place.
func (pl *Pipeline) Ingest(dets []Detection) (Frame, bool) {

	if len(dets) == 0 {
		return Frame{}, false
	}

	candidates := make([]*Pose, 0, len(dets))

	for _, det := range dets {
		p, err := New(pl.idGen.Next(), pl.Params.Type, det)

		if err != nil {
			pl.logger.Printf("dropping detection: %v", err)
			continue
		}

		candidates = append(candidates, p)
	}

	accepted := Filter(candidates, pl.Params.DistinctThreshold, pl.Params.ProminentThreshold)

	if len(accepted) == 0 {
		return Frame{}, false
	}

	previous := make([]*Pose, len(pl.buffers))

	for k, b := range pl.buffers {
		previous[k] = b.Latest()
	}

	slots, err := pl.assigner.Assign(accepted, previous)

	if err != nil {
		pl.logger.Printf("slot assignment failed: %v", err)
		return Frame{}, false
	}

	frame := Frame{
		Exact:    make([]*Pose, len(pl.buffers)),
		Smoothed: make([]*Pose, len(pl.buffers)),
	}

	for i, p := range accepted {
		k := slots[i]

		if k < 0 || k >= len(pl.buffers) {
			continue
		}

		if _, err := pl.buffers[k].Push(p); err != nil {
			pl.logger.Printf("dropping pose: %v", err)
			continue
		}

		frame.Exact[k] = p
	}

	pl.expire(frame.Exact)

	for k, b := range pl.buffers {
		// empty buffers stay nil so no average divides by zero
		frame.Smoothed[k] = b.Average()
	}

	pl.bus.Publish(ExactPoses, frame.Exact)
	pl.bus.Publish(SmoothedPoses, frame.Smoothed)

	return frame, true
}

// expire clears the buffers of slots that went without a pose for
// ExpireAfter cycles, so a subject that left stops being published
func (pl *Pipeline) expire(exact []*Pose) {

	for k, b := range pl.buffers {
		if exact[k] != nil {
			pl.missed[k] = 0
			continue
		}

		pl.missed[k]++

		if pl.Params.ExpireAfter > 0 && pl.missed[k] >= pl.Params.ExpireAfter && b.Len() > 0 {
			pl.logger.Printf("slot %d expired after %d cycles without a pose", k, pl.missed[k])
			b.Reset()
		}
	}
}

// Reset clears the history of every slot
func (pl *Pipeline) Reset() {
	for k, b := range pl.buffers {
		b.Reset()
		pl.missed[k] = 0
	}
}
