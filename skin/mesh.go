package skin

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/swdee/go-posetree/skeleton"
)

// Mesh is a shape bound to a bone chain
type Mesh struct {
	// Shape is the geometry owned by this mesh
	Shape *Shape
	// Bones are the chain the shape is weighted to, in skin index order
	Bones []*skeleton.Bone

	frame       *skeleton.Frame
	bindInverse []mgl64.Mat4
}

// Bind attaches shape to bones as they are posed now.  The shape's
// positions are taken to be local to frame, which is normally the root of
// the tree owning the chain.
func Bind(shape *Shape, frame *skeleton.Frame, bones []*skeleton.Bone) (*Mesh, error) {

	if len(bones) != shape.BoneCount {
		return nil, fmt.Errorf("%w: shape weighted to %d bones, chain has %d",
			ErrBoneCount, shape.BoneCount, len(bones))
	}

	m := &Mesh{
		Shape:       shape,
		Bones:       bones,
		frame:       frame,
		bindInverse: make([]mgl64.Mat4, len(bones)),
	}

	m.Rebind()

	return m, nil
}

// Rebind captures the current bone pose as the rest pose
func (m *Mesh) Rebind() {

	meshWorld := mgl64.Ident4()

	if m.frame != nil {
		meshWorld = m.frame.World()
	}

	for i, b := range m.Bones {
		m.bindInverse[i] = b.World().Inv().Mul4(meshWorld)
	}
}

// Deform returns the world space vertex positions for the current bone
// pose using linear blend skinning
func (m *Mesh) Deform() []mgl64.Vec3 {

	skinning := make([]mgl64.Mat4, len(m.Bones))

	for i, b := range m.Bones {
		skinning[i] = b.World().Mul4(m.bindInverse[i])
	}

	out := make([]mgl64.Vec3, len(m.Shape.Positions))

	for i, v := range m.Shape.Positions {
		var sum mgl64.Vec3

		for j, w := range m.Shape.SkinWeights[i] {
			if w == 0 {
				continue
			}

			p := mgl64.TransformCoordinate(v, skinning[m.Shape.SkinIndices[i][j]])
			sum = sum.Add(p.Mul(float64(w)))
		}

		out[i] = sum
	}

	return out
}
