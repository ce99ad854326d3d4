package skeleton

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Bone is a frame that eases its local transform toward the target set by
// the chain alignment on every render tick
type Bone struct {
	Frame

	// LandmarkID is the landmark driving this bone
	LandmarkID int

	targetPosition *mgl64.Vec3
	targetRotation *mgl64.Quat
	node           Node
}

// NewBone returns a bone at rest driven by the given landmark
func NewBone(landmarkID int) *Bone {
	return &Bone{
		Frame:      Frame{Rotation: mgl64.QuatIdent()},
		LandmarkID: landmarkID,
	}
}

// Attach binds the bone to a host scene graph node.  The current transform
// is pushed immediately.
func (b *Bone) Attach(n Node) {
	b.node = n

	if n != nil {
		n.SetLocalTransform(b.Position, b.Rotation)
	}
}

// SetTargetPosition sets the local position the bone eases toward
func (b *Bone) SetTargetPosition(p mgl64.Vec3) {
	b.targetPosition = &p
}

// SetTargetRotation sets the local rotation the bone eases toward
func (b *Bone) SetTargetRotation(q mgl64.Quat) {
	q = q.Normalize()
	b.targetRotation = &q
}

// TargetPosition returns the target position and whether one is set
func (b *Bone) TargetPosition() (mgl64.Vec3, bool) {
	if b.targetPosition == nil {
		return mgl64.Vec3{}, false
	}
	return *b.targetPosition, true
}

// TargetRotation returns the target rotation and whether one is set
func (b *Bone) TargetRotation() (mgl64.Quat, bool) {
	if b.targetRotation == nil {
		return mgl64.QuatIdent(), false
	}
	return *b.targetRotation, true
}

// Step advances the bone one render tick toward its targets by factor in
// (0,1).  A bone without targets is left untouched.
func (b *Bone) Step(factor float64) {

	if b.targetPosition == nil && b.targetRotation == nil {
		return
	}

	if b.targetPosition != nil {
		b.Position = lerp(b.Position, *b.targetPosition, factor)
	}

	if b.targetRotation != nil {
		b.Rotation = slerp(b.Rotation, *b.targetRotation, factor)
	}

	if b.node != nil {
		b.node.SetLocalTransform(b.Position, b.Rotation)
	}
}

func lerp(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// slerp interpolates along the shortest arc, flipping the target into the
// same hemisphere as the start
func slerp(a, b mgl64.Quat, t float64) mgl64.Quat {

	if a.Dot(b) < 0 {
		b = b.Scale(-1)
	}

	return mgl64.QuatSlerp(a, b, t).Normalize()
}

// Angle returns the rotation angle in radians between two orientations
func Angle(a, b mgl64.Quat) float64 {

	d := math.Abs(a.Normalize().Dot(b.Normalize()))

	if d > 1 {
		d = 1
	}

	return 2 * math.Acos(d)
}
