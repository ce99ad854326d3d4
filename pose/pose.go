package pose

import (
	"errors"
	"fmt"
	"math"

	"github.com/swdee/go-posetree/landmark"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrLandmarkCount is returned when a detection does not carry the number of
// landmarks the pose type requires
var ErrLandmarkCount = errors.New("unexpected landmark count")

// Detection is the raw output of the landmark detector for one subject
type Detection struct {
	// Landmarks are normalized image space coordinates, X and Y in [0,1]
	Landmarks []r3.Vec
	// WorldLandmarks are metric coordinates in the detector's convention
	WorldLandmarks []r3.Vec
}

// Pose is the canonical per subject record built from a Detection.  A Pose
// is never modified after construction.
type Pose struct {
	// ID is the monotonic id of the detection this pose originates from
	ID int64
	// Type is the landmark model the pose was produced by
	Type landmark.Type
	// Landmarks are the 2D image space landmarks
	Landmarks []r3.Vec
	// WorldLandmarks are the 3D landmarks in engine convention
	WorldLandmarks []r3.Vec
	// AlignmentVector summarizes the overall orientation of the subject
	AlignmentVector r3.Vec
	// Center is the 2D centroid of Landmarks
	Center r2.Vec
	// BBox is the 2D bounding box of Landmarks
	BBox r2.Box

	// vec is the flattened accumulation vector, see flatten
	vec []float64
}

// New builds a Pose from a raw detection, mirroring the world landmarks into
// the engine convention and deriving the alignment vector, center and
// bounding box
func New(id int64, typ landmark.Type, det Detection) (*Pose, error) {

	n := typ.Count()

	if len(det.Landmarks) != n || len(det.WorldLandmarks) != n {
		return nil, fmt.Errorf("%w: %s pose needs %d, got %d landmarks and %d world landmarks",
			ErrLandmarkCount, typ, n, len(det.Landmarks), len(det.WorldLandmarks))
	}

	p := &Pose{
		ID:             id,
		Type:           typ,
		Landmarks:      append([]r3.Vec(nil), det.Landmarks...),
		WorldLandmarks: make([]r3.Vec, n),
	}

	for i, w := range det.WorldLandmarks {
		p.WorldLandmarks[i] = typ.ToEngine(w)
	}

	p.AlignmentVector = alignmentVector(typ, p.WorldLandmarks)
	p.Center, p.BBox = bounds(p.Landmarks)
	p.vec = p.flatten()

	return p, nil
}

// Height returns the height of the bounding box in normalized image space
func (p *Pose) Height() float64 {
	return p.BBox.Max.Y - p.BBox.Min.Y
}

// alignmentVector sums the offsets from the root landmark to the alignment
// set of the pose type and normalizes the result.  A zero sum stays zero.
func alignmentVector(typ landmark.Type, world []r3.Vec) r3.Vec {

	root := world[landmark.Root]
	var sum r3.Vec

	for _, id := range typ.AlignmentSet() {
		sum = r3.Add(sum, r3.Sub(world[id], root))
	}

	norm := r3.Norm(sum)

	if norm == 0 || math.IsNaN(norm) {
		return r3.Vec{}
	}

	return r3.Scale(1/norm, sum)
}

// bounds returns the centroid and bounding box of the X,Y components
func bounds(pts []r3.Vec) (r2.Vec, r2.Box) {

	if len(pts) == 0 {
		return r2.Vec{}, r2.Box{}
	}

	box := r2.Box{
		Min: r2.Vec{X: math.Inf(1), Y: math.Inf(1)},
		Max: r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)},
	}

	var center r2.Vec

	for _, pt := range pts {
		center.X += pt.X
		center.Y += pt.Y

		box.Min.X = math.Min(box.Min.X, pt.X)
		box.Min.Y = math.Min(box.Min.Y, pt.Y)
		box.Max.X = math.Max(box.Max.X, pt.X)
		box.Max.Y = math.Max(box.Max.Y, pt.Y)
	}

	inv := 1 / float64(len(pts))
	center.X *= inv
	center.Y *= inv

	return center, box
}

// vectorLen returns the length of the flattened vector for a pose type
func vectorLen(typ landmark.Type) int {
	return 6*typ.Count() + 3 + 2
}

// flatten lays the accumulated fields out as
// [landmarks xyz...][world landmarks xyz...][alignment xyz][center xy]
func (p *Pose) flatten() []float64 {

	out := make([]float64, 0, vectorLen(p.Type))

	for _, l := range p.Landmarks {
		out = append(out, l.X, l.Y, l.Z)
	}

	for _, w := range p.WorldLandmarks {
		out = append(out, w.X, w.Y, w.Z)
	}

	out = append(out,
		p.AlignmentVector.X, p.AlignmentVector.Y, p.AlignmentVector.Z,
		p.Center.X, p.Center.Y,
	)

	return out
}

// fromVector builds a pose from a flattened vector.  The bounding box is
// recomputed from the landmarks as box extents do not average.
func fromVector(id int64, typ landmark.Type, vec []float64) *Pose {

	n := typ.Count()

	p := &Pose{
		ID:             id,
		Type:           typ,
		Landmarks:      make([]r3.Vec, n),
		WorldLandmarks: make([]r3.Vec, n),
		vec:            vec,
	}

	for i := 0; i < n; i++ {
		p.Landmarks[i] = r3.Vec{X: vec[3*i], Y: vec[3*i+1], Z: vec[3*i+2]}
	}

	off := 3 * n

	for i := 0; i < n; i++ {
		p.WorldLandmarks[i] = r3.Vec{X: vec[off+3*i], Y: vec[off+3*i+1], Z: vec[off+3*i+2]}
	}

	off += 3 * n
	p.AlignmentVector = r3.Vec{X: vec[off], Y: vec[off+1], Z: vec[off+2]}
	p.Center = r2.Vec{X: vec[off+3], Y: vec[off+4]}
	_, p.BBox = bounds(p.Landmarks)

	return p
}
