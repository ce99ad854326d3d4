package pose

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Assignment selects how accepted poses are mapped onto subject slots
type Assignment int

const (
	// AssignBucket maps a pose to the horizontal screen bucket its center
	// falls in.  Poses colliding on a bucket are moved to the nearest free
	// bucket.
	AssignBucket Assignment = iota
	// AssignOrder maps poses to slots in detection order
	AssignOrder
	// AssignNearest matches poses to the slot whose previous pose center is
	// closest, falling back to the bucket center for empty slots
	AssignNearest
)

// ParseAssignment converts a configuration string into an Assignment
func ParseAssignment(s string) (Assignment, error) {

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bucket", "":
		return AssignBucket, nil
	case "order":
		return AssignOrder, nil
	case "nearest":
		return AssignNearest, nil
	}

	return AssignBucket, fmt.Errorf("unknown slot assignment %q, use bucket, order or nearest", s)
}

// String returns the configuration name of the assignment
func (a Assignment) String() string {
	switch a {
	case AssignOrder:
		return "order"
	case AssignNearest:
		return "nearest"
	default:
		return "bucket"
	}
}

// SlotAssigner decides which subject slot each accepted pose of a detection
// cycle is pushed to
type SlotAssigner interface {
	// Assign returns the slot for each pose, or -1 to drop it.  previous
	// holds the latest pose of every slot (nil when empty) and its length is
	// the slot count.
	Assign(poses []*Pose, previous []*Pose) ([]int, error)
}

// NewAssigner returns the SlotAssigner for the given strategy
func NewAssigner(a Assignment) SlotAssigner {
	switch a {
	case AssignOrder:
		return orderAssigner{}
	case AssignNearest:
		return nearestAssigner{}
	default:
		return bucketAssigner{}
	}
}

// bucket returns the horizontal bucket index of x for n slots
func bucket(x float64, n int) int {

	k := int(math.Floor(x * float64(n)))

	if k < 0 {
		return 0
	}

	if k >= n {
		return n - 1
	}

	return k
}

// bucketCenter returns the X coordinate at the middle of bucket k
func bucketCenter(k, n int) float64 {
	return (float64(k) + 0.5) / float64(n)
}

type orderAssigner struct{}

func (orderAssigner) Assign(poses []*Pose, previous []*Pose) ([]int, error) {

	slots := make([]int, len(poses))

	for i := range poses {
		slots[i] = i

		if i >= len(previous) {
			slots[i] = -1
		}
	}

	return slots, nil
}

type bucketAssigner struct{}

func (bucketAssigner) Assign(poses []*Pose, previous []*Pose) ([]int, error) {

	n := len(previous)
	slots := make([]int, len(poses))
	taken := make([]bool, n)
	var colliding []int

	for i, p := range poses {
		k := bucket(p.Center.X, n)

		if taken[k] {
			colliding = append(colliding, i)
			continue
		}

		taken[k] = true
		slots[i] = k
	}

	if len(colliding) == 0 {
		return slots, nil
	}

	var free []int

	for k, t := range taken {
		if !t {
			free = append(free, k)
		}
	}

	if len(free) == 0 {
		for _, i := range colliding {
			slots[i] = -1
		}
		return slots, nil
	}

	cost := mat.NewDense(len(colliding), len(free), nil)

	for r, i := range colliding {
		for c, k := range free {
			cost.Set(r, c, math.Abs(poses[i].Center.X-bucketCenter(k, n)))
		}
	}

	sol, err := linearAssignment(cost)

	if err != nil {
		return nil, err
	}

	for r, i := range colliding {
		slots[i] = -1

		if sol[r] >= 0 {
			slots[i] = free[sol[r]]
		}
	}

	return slots, nil
}

type nearestAssigner struct{}

func (nearestAssigner) Assign(poses []*Pose, previous []*Pose) ([]int, error) {

	n := len(previous)

	if len(poses) == 0 || n == 0 {
		slots := make([]int, len(poses))
		for i := range slots {
			slots[i] = -1
		}
		return slots, nil
	}

	cost := mat.NewDense(len(poses), n, nil)

	for k := 0; k < n; k++ {
		anchor := bucketCenter(k, n)

		if previous[k] != nil {
			anchor = previous[k].Center.X
		}

		for i, p := range poses {
			cost.Set(i, k, math.Abs(p.Center.X-anchor))
		}
	}

	return linearAssignment(cost)
}
