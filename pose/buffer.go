package pose

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidPose is returned by Push for a pose that was not built by New
// or fromVector and so carries no accumulation vector
var ErrInvalidPose = errors.New("pose has no accumulation vector")

// Buffer keeps a sliding window of the most recent poses for one subject
// slot together with the running sum of their accumulation vectors
type Buffer struct {
	// size is the maximum number of most recent poses to keep
	size int
	// poses in arrival order, oldest first
	poses []*Pose
	// sum is the elementwise sum of every pose currently held
	sum []float64
}

// NewBuffer returns a pose buffer holding at most size poses
func NewBuffer(size int) *Buffer {

	if size < 1 {
		size = 1
	}

	return &Buffer{
		size:  size,
		poses: make([]*Pose, 0, size+1),
	}
}

// Push adds a pose to the window and returns the pose evicted to make room
// for it, if any.  Poses must be built with New.
func (b *Buffer) Push(p *Pose) (*Pose, error) {

	if p == nil || len(p.vec) != vectorLen(p.Type) {
		return nil, fmt.Errorf("%w: build poses with New", ErrInvalidPose)
	}

	if b.sum == nil || len(b.sum) != len(p.vec) {
		// first pose or pose type changed, start a fresh window
		b.poses = b.poses[:0]
		b.sum = make([]float64, len(p.vec))
	}

	b.poses = append(b.poses, p)
	floats.Add(b.sum, p.vec)

	// check if history is exceeded and drop oldest pose
	if len(b.poses) <= b.size {
		return nil, nil
	}

	evicted := b.poses[0]
	floats.Sub(b.sum, evicted.vec)

	copy(b.poses, b.poses[1:])
	b.poses[len(b.poses)-1] = nil
	b.poses = b.poses[:len(b.poses)-1]

	return evicted, nil
}

// Len returns the number of poses currently held
func (b *Buffer) Len() int {
	return len(b.poses)
}

// Size returns the capacity of the window
func (b *Buffer) Size() int {
	return b.size
}

// Latest returns the most recently pushed pose or nil when empty
func (b *Buffer) Latest() *Pose {
	if len(b.poses) == 0 {
		return nil
	}
	return b.poses[len(b.poses)-1]
}

// Poses returns a copy of the window contents, oldest first
func (b *Buffer) Poses() []*Pose {
	return append([]*Pose(nil), b.poses...)
}

// Sum returns a copy of the running sum vector
func (b *Buffer) Sum() []float64 {
	return append([]float64(nil), b.sum...)
}

// Average returns the temporal average of the window, or nil when the
// buffer is empty.  The average carries the id of the latest pose.
func (b *Buffer) Average() *Pose {

	latest := b.Latest()

	if latest == nil {
		return nil
	}

	avg := make([]float64, len(b.sum))
	floats.ScaleTo(avg, 1/float64(len(b.poses)), b.sum)

	return fromVector(latest.ID, latest.Type, avg)
}

// Reset clears all history
func (b *Buffer) Reset() {
	for i := range b.poses {
		b.poses[i] = nil
	}
	b.poses = b.poses[:0]
	b.sum = nil
}
