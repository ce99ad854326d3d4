// Package skeleton animates chains of bones toward the orientations of a
// detected pose.  Alignment runs on a throttled cadence and computes twist
// free local rotations, bones ease toward them on every render tick.
package skeleton

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Node is the handle of a scene graph node owned by the rendering host.
// Bones push their animated local transform through it after every step.
type Node interface {
	SetLocalTransform(position mgl64.Vec3, rotation mgl64.Quat)
}

// Frame is a node of the transform hierarchy trees and bones are placed in.
// Tree roots are bare frames, bones embed one.
type Frame struct {
	// Position is the translation relative to the parent frame
	Position mgl64.Vec3
	// Rotation is the orientation relative to the parent frame
	Rotation mgl64.Quat

	parent   *Frame
	children []*Frame
}

// NewFrame returns a frame at the origin with identity rotation
func NewFrame() *Frame {
	return &Frame{Rotation: mgl64.QuatIdent()}
}

// Add reparents child under f
func (f *Frame) Add(child *Frame) {

	if child.parent != nil {
		child.parent.remove(child)
	}

	child.parent = f
	f.children = append(f.children, child)
}

func (f *Frame) remove(child *Frame) {
	for i, c := range f.children {
		if c == child {
			f.children = append(f.children[:i:i], f.children[i+1:]...)
			return
		}
	}
}

// Parent returns the parent frame or nil for a root
func (f *Frame) Parent() *Frame {
	return f.parent
}

// Children returns the frames directly attached to f
func (f *Frame) Children() []*Frame {
	return f.children
}

// Local returns the transform from this frame into its parent
func (f *Frame) Local() mgl64.Mat4 {
	return mgl64.Translate3D(f.Position[0], f.Position[1], f.Position[2]).Mul4(f.Rotation.Mat4())
}

// World returns the transform from this frame into world space
func (f *Frame) World() mgl64.Mat4 {

	m := f.Local()

	for p := f.parent; p != nil; p = p.parent {
		m = p.Local().Mul4(m)
	}

	return m
}

// WorldRotation returns the accumulated rotation of this frame
func (f *Frame) WorldRotation() mgl64.Quat {

	q := f.Rotation

	for p := f.parent; p != nil; p = p.parent {
		q = p.Rotation.Mul(q)
	}

	return q.Normalize()
}

// WorldPosition returns the origin of this frame in world space
func (f *Frame) WorldPosition() mgl64.Vec3 {
	return mgl64.TransformCoordinate(mgl64.Vec3{}, f.World())
}
