package skeleton

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// degenerateLenSq is the squared length below which a projected X axis
	// is treated as undefined
	degenerateLenSq = 1e-6
	// minSegmentLength is the length below which a segment has no direction
	minSegmentLength = 1e-9
)

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	// perturbation nudges the previous X axis off a colinear segment
	perturbation = mgl64.Vec3{0.1, 0.2, 0.3}
)

// ChainPose is the result of aligning one bone chain to a set of points.
// Entry i describes the segment from point i to point i+1.
type ChainPose struct {
	// Rotations are the local rotations of each bone relative to the
	// rotation propagated down the chain
	Rotations []mgl64.Quat
	// Lengths are the world space segment lengths
	Lengths []float64
	// Valid is false for zero length segments whose direction is undefined.
	// Their rotation is identity and callers keep the previous target.
	Valid []bool
}

// AlignChain computes twist free local rotations for a chain of bones whose
// joints should sit at points.  parentWorld is the world rotation of the
// frame the first bone is attached to.
//
// Each bone's Y axis points along its segment.  The X axis is carried from
// the previous bone and projected onto the plane perpendicular to the new Y
// axis, so consecutive bones do not pick up an arbitrary twist.  Local
// rotations are taken relative to the rotation accumulated down the chain
// rather than the immediate parent, which makes the result invariant to a
// rigid rotation applied to both points and parentWorld.
func AlignChain(points []mgl64.Vec3, parentWorld mgl64.Quat) ChainPose {

	n := len(points) - 1

	if n < 1 {
		return ChainPose{}
	}

	cp := ChainPose{
		Rotations: make([]mgl64.Quat, n),
		Lengths:   make([]float64, n),
		Valid:     make([]bool, n),
	}

	parentWorld = parentWorld.Normalize()
	// the seed X axis and nudge are expressed in the parent frame, not world
	prevX := parentWorld.Rotate(axisX)
	nudge := parentWorld.Rotate(perturbation)
	propagated := parentWorld

	for i := 0; i < n; i++ {
		offset := points[i+1].Sub(points[i])
		length := offset.Len()
		cp.Lengths[i] = length

		if length < minSegmentLength || math.IsNaN(length) {
			cp.Rotations[i] = mgl64.QuatIdent()
			continue
		}

		x, y, z := basis(prevX, offset.Mul(1/length), nudge)
		desired := basisQuat(x, y, z)

		local := propagated.Inverse().Mul(desired).Normalize()
		propagated = propagated.Mul(local).Normalize()

		cp.Rotations[i] = local
		cp.Valid[i] = true
		prevX = x
	}

	return cp
}

// basis builds an orthonormal frame whose Y axis is y and whose X axis is
// prevX projected onto the plane perpendicular to y
func basis(prevX, y, nudge mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3, mgl64.Vec3) {

	x := projectOnPlane(prevX, y)

	if x.Dot(x) < degenerateLenSq {
		prevX = prevX.Add(nudge).Normalize()
		x = projectOnPlane(prevX, y)
	}

	if x.Dot(x) < degenerateLenSq {
		x = projectOnPlane(leastAlignedAxis(y), y)
	}

	x = x.Normalize()
	z := x.Cross(y).Normalize()

	return x, y, z
}

func projectOnPlane(v, normal mgl64.Vec3) mgl64.Vec3 {
	return v.Sub(normal.Mul(v.Dot(normal)))
}

// leastAlignedAxis returns the world axis most perpendicular to v
func leastAlignedAxis(v mgl64.Vec3) mgl64.Vec3 {

	ax, ay, az := math.Abs(v[0]), math.Abs(v[1]), math.Abs(v[2])

	switch {
	case ax <= ay && ax <= az:
		return mgl64.Vec3{1, 0, 0}
	case ay <= az:
		return mgl64.Vec3{0, 1, 0}
	default:
		return mgl64.Vec3{0, 0, 1}
	}
}

// basisQuat converts the rotation whose columns are x, y, z to a quaternion
func basisQuat(x, y, z mgl64.Vec3) mgl64.Quat {
	m := mgl64.Mat4FromCols(x.Vec4(0), y.Vec4(0), z.Vec4(0), mgl64.Vec4{0, 0, 0, 1})
	return mgl64.Mat4ToQuat(m).Normalize()
}

// alignUp returns the rotation carrying the alignment vector onto +Y, or
// identity when the vector is zero
func alignUp(v mgl64.Vec3) mgl64.Quat {

	if v.Len() < minSegmentLength {
		return mgl64.QuatIdent()
	}

	return mgl64.QuatBetweenVectors(v.Normalize(), axisY)
}
