package skeleton

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
)

// StartingSegmentLength is the rest length of every bone before the first
// alignment
const StartingSegmentLength = 1.0

// Params defines the tree behaviour shared by every tree of a scene
type Params struct {
	// Type selects the limb topology
	Type landmark.Type
	// UpdateTimeDelta is the minimum time between two alignments of a tree
	UpdateTimeDelta time.Duration
	// BranchWidthScale is the width decay applied per nesting level
	BranchWidthScale float64
	// BranchLengthScale is the length decay applied per nesting level
	BranchLengthScale float64
	// LimbModifiers scale the target segment length per limb, missing
	// entries default to 1
	LimbModifiers []float64
}

// Tree is a set of bone chains driven by the smoothed pose of one subject
// slot
type Tree struct {
	// Root is the frame every limb chain hangs from
	Root *Frame
	// Slot is the subject slot whose smoothed poses drive the tree
	Slot int
	// AlignRoot rotates the pose so its alignment vector points along +Y
	AlignRoot bool
	// BranchWidthScale is the accumulated width scale of this tree
	BranchWidthScale float64
	// BranchLengthScale is the accumulated length scale of this tree
	BranchLengthScale float64

	params      Params
	parent      *Tree
	limbs       [][]*Bone
	target      *pose.Pose
	lastAligned *pose.Pose
	lastAlign   time.Time
}

// NewTree builds a tree at rest attached to parent, which may be nil for a
// detached tree
func NewTree(p Params, parent *Frame, slot int, alignRoot bool) *Tree {

	t := &Tree{
		Root:              NewFrame(),
		Slot:              slot,
		AlignRoot:         alignRoot,
		BranchWidthScale:  1,
		BranchLengthScale: 1,
		params:            p,
	}

	for _, ids := range p.Type.Limbs() {
		chain := make([]*Bone, len(ids))

		for i, id := range ids {
			b := NewBone(id)

			if i == 0 {
				t.Root.Add(&b.Frame)
			} else {
				b.Position = mgl64.Vec3{0, StartingSegmentLength, 0}
				chain[i-1].Add(&b.Frame)
			}

			chain[i] = b
		}

		t.limbs = append(t.limbs, chain)
	}

	if parent != nil {
		parent.Add(t.Root)
	}

	return t
}

// Spawn grows a child tree from bone, scaling it down by the configured
// decay relative to t
func (t *Tree) Spawn(bone *Bone, slot int, alignRoot bool) *Tree {

	child := NewTree(t.params, &bone.Frame, slot, alignRoot)
	child.parent = t
	child.stepDownScales(t)

	return child
}

func (t *Tree) stepDownScales(parent *Tree) {
	t.BranchWidthScale = parent.BranchWidthScale * t.params.BranchWidthScale
	t.BranchLengthScale = parent.BranchLengthScale * t.params.BranchLengthScale
}

// Parent returns the tree this tree was spawned from or nil
func (t *Tree) Parent() *Tree {
	return t.parent
}

// Limbs returns the bone chains of the tree
func (t *Tree) Limbs() [][]*Bone {
	return t.limbs
}

// Ends returns the last bone of every limb
func (t *Tree) Ends() []*Bone {

	ends := make([]*Bone, len(t.limbs))

	for i, chain := range t.limbs {
		ends[i] = chain[len(chain)-1]
	}

	return ends
}

// Bones returns every bone of the tree in limb order
func (t *Tree) Bones() []*Bone {

	var bones []*Bone

	for _, chain := range t.limbs {
		bones = append(bones, chain...)
	}

	return bones
}

// SetTarget sets the pose the next alignment uses
func (t *Tree) SetTarget(p *pose.Pose) {
	t.target = p
}

// Target returns the current target pose
func (t *Tree) Target() *pose.Pose {
	return t.target
}

// OnPoses is a pose.Handler that takes the tree's slot from a smoothed pose
// event.  Absent slots leave the target unchanged.
func (t *Tree) OnPoses(poses []*pose.Pose) {

	if t.Slot < 0 || t.Slot >= len(poses) || poses[t.Slot] == nil {
		return
	}

	t.SetTarget(poses[t.Slot])
}

// Update aligns the tree when a pose it has not aligned to yet is set and
// more than UpdateTimeDelta passed since the previous alignment.  It reports
// whether an alignment ran.
func (t *Tree) Update(now time.Time) bool {

	if t.target == nil || t.target == t.lastAligned {
		return false
	}

	if !t.lastAlign.IsZero() && now.Sub(t.lastAlign) <= t.params.UpdateTimeDelta {
		return false
	}

	t.Align()
	t.lastAlign = now

	return true
}

// Align sets the target rotation of every bone and the target position of
// every child bone from the current target pose
func (t *Tree) Align() {

	if t.target == nil {
		return
	}

	parentWorld := t.Root.WorldRotation()
	world := t.Root.World()
	up := mgl64.QuatIdent()

	if t.AlignRoot {
		av := t.target.AlignmentVector
		up = alignUp(mgl64.Vec3{av.X, av.Y, av.Z})
	}

	for li, chain := range t.limbs {
		points := make([]mgl64.Vec3, len(chain))

		for i, b := range chain {
			points[i] = t.worldPosition(b.LandmarkID, up, world)
		}

		cp := AlignChain(points, parentWorld)
		mod := t.modifier(li)

		for i := range cp.Rotations {
			if !cp.Valid[i] {
				continue
			}

			chain[i].SetTargetRotation(cp.Rotations[i])
			chain[i+1].SetTargetPosition(mgl64.Vec3{0, cp.Lengths[i] * mod * t.BranchLengthScale, 0})
		}
	}

	t.lastAligned = t.target
}

// WorldPosition returns where a landmark of the target pose sits in world
// space.  It returns false when no target is set.
func (t *Tree) WorldPosition(landmarkID int) (mgl64.Vec3, bool) {

	if t.target == nil {
		return mgl64.Vec3{}, false
	}

	up := mgl64.QuatIdent()

	if t.AlignRoot {
		av := t.target.AlignmentVector
		up = alignUp(mgl64.Vec3{av.X, av.Y, av.Z})
	}

	return t.worldPosition(landmarkID, up, t.Root.World()), true
}

func (t *Tree) worldPosition(id int, up mgl64.Quat, world mgl64.Mat4) mgl64.Vec3 {

	w := t.target.WorldLandmarks[id]
	v := up.Rotate(mgl64.Vec3{w.X, w.Y, w.Z})
	v = v.Mul(t.params.Type.ValueScalar())

	return mgl64.TransformCoordinate(v, world)
}

func (t *Tree) modifier(limb int) float64 {
	if limb < len(t.params.LimbModifiers) {
		return t.params.LimbModifiers[limb]
	}
	return 1
}
