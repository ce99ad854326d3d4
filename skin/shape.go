// Package skin generates the tapered shell wrapped around every bone chain
// together with per vertex bone weights, and deforms it from the current
// bone transforms.
package skin

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tiendc/go-deepcopy"
)

// ErrBoneCount is returned when a shell is requested for fewer than two
// bones or bound to a chain of the wrong length
var ErrBoneCount = errors.New("invalid bone count")

// Params defines the geometry of the generated shell
type Params struct {
	// BoneCount is the number of bones in every chain
	BoneCount int
	// SegmentLength is the rest length of one bone
	SegmentLength float64
	// StartingTrunkSize is the shell radius of an unscaled tree
	StartingTrunkSize float64
	// BranchWidthScale narrows the root end of the shell
	BranchWidthScale float64
	// RadialSegments is the number of faces around the shell
	RadialSegments int
	// HeightSegments is the number of face rows along the shell
	HeightSegments int
	// OpenEnded omits the end caps
	OpenEnded bool
}

// DefaultParams returns the shell geometry for chains of boneCount bones
func DefaultParams(boneCount int) Params {
	return Params{
		BoneCount:         boneCount,
		SegmentLength:     1,
		StartingTrunkSize: 10,
		BranchWidthScale:  0.7,
		RadialSegments:    10,
		HeightSegments:    10,
	}
}

// Shape is a skinned shell.  Vertex i has up to four bone influences in
// SkinIndices[i] weighted by SkinWeights[i], unused slots have weight 0.
type Shape struct {
	// Scale is the scale the shape was built for
	Scale float64
	// BoneCount is the number of bones the shape is weighted to
	BoneCount int
	// Positions are the vertex positions with the chain root at y=0
	Positions []mgl64.Vec3
	// Indices are triangle vertex indices, three per face
	Indices []uint32
	// SkinIndices are the bones influencing each vertex
	SkinIndices [][4]uint16
	// SkinWeights are the influence of each of SkinIndices
	SkinWeights [][4]float32
}

// Clone returns a deep copy of the shape that shares no memory with s
func (s *Shape) Clone() (*Shape, error) {

	out := &Shape{}

	if err := deepcopy.Copy(out, *s); err != nil {
		return nil, fmt.Errorf("error cloning shape: %w", err)
	}

	return out, nil
}

// Generator builds shells for a fixed chain geometry
type Generator struct {
	params Params
}

// NewGenerator returns a generator for p
func NewGenerator(p Params) (*Generator, error) {

	if p.BoneCount < 2 {
		return nil, fmt.Errorf("%w: shell needs at least 2 bones, got %d", ErrBoneCount, p.BoneCount)
	}

	if p.RadialSegments < 3 {
		p.RadialSegments = 3
	}

	if p.HeightSegments < 1 {
		p.HeightSegments = 1
	}

	if p.SegmentLength <= 0 {
		p.SegmentLength = 1
	}

	return &Generator{params: p}, nil
}

// Params returns the geometry parameters of the generator
func (g *Generator) Params() Params {
	return g.params
}

// Build generates the shell for scale.  The radius tapers from
// StartingTrunkSize*scale*BranchWidthScale at the root end (y=0) to
// StartingTrunkSize*scale at the tip.
func (g *Generator) Build(scale float64) *Shape {

	p := g.params
	total := p.SegmentLength * float64(p.BoneCount)
	rootRadius := p.StartingTrunkSize * scale * p.BranchWidthScale
	tipRadius := p.StartingTrunkSize * scale

	s := &Shape{
		Scale:     scale,
		BoneCount: p.BoneCount,
	}

	g.torso(s, total, rootRadius, tipRadius)

	if !p.OpenEnded {
		g.cap(s, 0, rootRadius, false)
		g.cap(s, total, tipRadius, true)
	}

	boneLength := total / float64(p.BoneCount-1)
	s.SkinIndices = make([][4]uint16, len(s.Positions))
	s.SkinWeights = make([][4]float32, len(s.Positions))

	for i, v := range s.Positions {
		s.SkinIndices[i], s.SkinWeights[i] = weights(v[1], boneLength, p.BoneCount)
	}

	return s
}

// torso adds the side wall rows from the root ring upward
func (g *Generator) torso(s *Shape, total, rootRadius, tipRadius float64) {

	radial := g.params.RadialSegments
	rows := g.params.HeightSegments
	grid := make([][]uint32, rows+1)

	for y := 0; y <= rows; y++ {
		v := float64(y) / float64(rows)
		radius := rootRadius + v*(tipRadius-rootRadius)
		grid[y] = make([]uint32, radial+1)

		for x := 0; x <= radial; x++ {
			theta := float64(x) / float64(radial) * 2 * math.Pi
			grid[y][x] = uint32(len(s.Positions))
			s.Positions = append(s.Positions, mgl64.Vec3{
				radius * math.Sin(theta),
				v * total,
				radius * math.Cos(theta),
			})
		}
	}

	for x := 0; x < radial; x++ {
		for y := 0; y < rows; y++ {
			a := grid[y][x]
			b := grid[y+1][x]
			c := grid[y+1][x+1]
			d := grid[y][x+1]

			s.Indices = append(s.Indices, a, d, b, b, d, c)
		}
	}
}

// cap closes one end of the shell with a fan around a center vertex per
// radial segment
func (g *Generator) cap(s *Shape, height, radius float64, top bool) {

	radial := g.params.RadialSegments
	center := uint32(len(s.Positions))

	for x := 0; x < radial; x++ {
		s.Positions = append(s.Positions, mgl64.Vec3{0, height, 0})
	}

	ring := uint32(len(s.Positions))

	for x := 0; x <= radial; x++ {
		theta := float64(x) / float64(radial) * 2 * math.Pi
		s.Positions = append(s.Positions, mgl64.Vec3{
			radius * math.Sin(theta),
			height,
			radius * math.Cos(theta),
		})
	}

	for x := uint32(0); x < uint32(radial); x++ {
		c := center + x
		i := ring + x

		if top {
			s.Indices = append(s.Indices, i, i+1, c)
		} else {
			s.Indices = append(s.Indices, i+1, i, c)
		}
	}
}

// weights returns the bone influences of a vertex at height y.  t is the
// position within the containing bone.  The current bone peaks at the middle
// of its segment and hands over to the previous and next bone toward the
// ends.  The first bone blends with the next only, the last with the
// previous only.  Weights always sum to 1.
func weights(y, boneLength float64, boneCount int) ([4]uint16, [4]float32) {

	var idx [4]uint16
	var w [4]float32

	t := math.Mod(y, boneLength) / boneLength
	bone := int(math.Floor(y / boneLength))

	if bone < 0 {
		bone, t = 0, 0
	}

	if bone > boneCount-1 {
		bone = boneCount - 1
	}

	next := min(bone+1, boneCount-1)
	prev := max(bone-1, 0)

	wPrev := (1 - t) / 3
	wCurr := 1 - math.Abs(t-0.5)
	wNext := t / 3

	switch bone {
	case 0:
		total := wCurr + wNext
		idx = [4]uint16{uint16(bone), uint16(next)}
		w = [4]float32{float32(wCurr / total), float32(wNext / total)}

	case boneCount - 1:
		idx = [4]uint16{uint16(prev), uint16(bone)}
		w = [4]float32{float32(t), float32(1 - t)}

	default:
		total := wPrev + wCurr + wNext
		idx = [4]uint16{uint16(prev), uint16(bone), uint16(next)}
		w = [4]float32{float32(wPrev / total), float32(wCurr / total), float32(wNext / total)}
	}

	return idx, w
}
