package posetree

import (
	"errors"
	"fmt"
	"time"

	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
	"github.com/swdee/go-posetree/skeleton"
	"github.com/swdee/go-posetree/skin"
)

// ErrInvalidParams is returned by Validate for out of range options
var ErrInvalidParams = errors.New("invalid parameters")

// Params defines every option of the installation
type Params struct {
	// PoseType selects landmark count, limb topology and mirroring
	PoseType landmark.Type
	// MaxPoses is the number of subject slots and the detector's maximum
	// number of simultaneous subjects
	MaxPoses int
	// PoseBufferSize is the number of recent poses averaged per slot
	PoseBufferSize int
	// DistinctPoseThreshold is the minimum horizontal distance between the
	// centers of two poses accepted in one cycle
	DistinctPoseThreshold float64
	// ProminentPoseThreshold is the minimum normalized bounding box height
	// of an accepted pose
	ProminentPoseThreshold float64
	// UpdateTimeDelta is the minimum time between two alignments of a tree
	UpdateTimeDelta time.Duration
	// LerpFactor is the fraction of the remaining distance a bone covers on
	// every render tick, in (0,1)
	LerpFactor float64
	// BranchWidthScale is the width decay per nesting level
	BranchWidthScale float64
	// BranchLengthScale is the length decay per nesting level
	BranchLengthScale float64
	// StartingTrunkSize is the shell radius of the root tree
	StartingTrunkSize float64
	// ScaleFactor scales the shell of every tree
	ScaleFactor float64
	// AlignAllPosesUp rotates every tree's pose so its alignment vector
	// points up
	AlignAllPosesUp bool
	// SlotAssignment selects how poses are mapped onto slots
	SlotAssignment pose.Assignment
	// SlotExpiryCycles clears a slot's history after that many consecutive
	// detection cycles without its subject, 0 never clears
	SlotExpiryCycles int
	// LimbModifiers scale the target segment length per limb
	LimbModifiers []float64
	// MeshCacheSize bounds the number of shell templates kept, 0 keeps all
	MeshCacheSize int
	// GrowLevels is the number of nested tree levels spawned at limb ends
	GrowLevels int
	// HideMesh skips generating shells
	HideMesh bool
}

// DefaultParams returns the defaults for a pose type.  Hands are smaller in
// frame than bodies so their prominence threshold is lower, and child hands
// are reoriented to grow outward.
func DefaultParams(typ landmark.Type) Params {

	p := Params{
		PoseType:               typ,
		MaxPoses:               2,
		PoseBufferSize:         5,
		DistinctPoseThreshold:  0.1,
		ProminentPoseThreshold: 0.3,
		UpdateTimeDelta:        100 * time.Millisecond,
		LerpFactor:             0.1,
		BranchWidthScale:       0.7,
		BranchLengthScale:      0.7,
		StartingTrunkSize:      10,
		ScaleFactor:            1,
		SlotAssignment:         pose.AssignBucket,
		SlotExpiryCycles:       30,
		LimbModifiers:          typ.Modifiers(),
		GrowLevels:             1,
	}

	if typ == landmark.Hand {
		p.ProminentPoseThreshold = 0.1
		p.AlignAllPosesUp = true
	}

	return p
}

// Validate checks every option is in range and returns all violations
// wrapped in ErrInvalidParams
func (p Params) Validate() error {

	var errs []error

	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(p.MaxPoses >= 1, "MaxPoses must be at least 1, got %d", p.MaxPoses)
	check(p.PoseBufferSize >= 1, "PoseBufferSize must be at least 1, got %d", p.PoseBufferSize)
	check(p.DistinctPoseThreshold >= 0 && p.DistinctPoseThreshold <= 1,
		"DistinctPoseThreshold must be within [0,1], got %f", p.DistinctPoseThreshold)
	check(p.ProminentPoseThreshold >= 0 && p.ProminentPoseThreshold <= 1,
		"ProminentPoseThreshold must be within [0,1], got %f", p.ProminentPoseThreshold)
	check(p.UpdateTimeDelta >= 0, "UpdateTimeDelta must not be negative, got %v", p.UpdateTimeDelta)
	check(p.LerpFactor > 0 && p.LerpFactor < 1, "LerpFactor must be within (0,1), got %f", p.LerpFactor)
	check(p.BranchWidthScale > 0, "BranchWidthScale must be positive, got %f", p.BranchWidthScale)
	check(p.BranchLengthScale > 0, "BranchLengthScale must be positive, got %f", p.BranchLengthScale)
	check(p.StartingTrunkSize > 0, "StartingTrunkSize must be positive, got %f", p.StartingTrunkSize)
	check(p.ScaleFactor > 0, "ScaleFactor must be positive, got %f", p.ScaleFactor)
	check(p.SlotExpiryCycles >= 0, "SlotExpiryCycles must not be negative, got %d", p.SlotExpiryCycles)
	check(p.MeshCacheSize >= 0, "MeshCacheSize must not be negative, got %d", p.MeshCacheSize)
	check(p.GrowLevels >= 0, "GrowLevels must not be negative, got %d", p.GrowLevels)

	limbs := len(p.PoseType.Limbs())
	check(len(p.LimbModifiers) <= limbs,
		"LimbModifiers has %d entries, %s poses have %d limbs", len(p.LimbModifiers), p.PoseType, limbs)

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...))
}

// PipelineParams returns the options of the pose ingestion pipeline
func (p Params) PipelineParams() pose.Params {
	return pose.Params{
		Type:               p.PoseType,
		MaxPoses:           p.MaxPoses,
		BufferSize:         p.PoseBufferSize,
		DistinctThreshold:  p.DistinctPoseThreshold,
		ProminentThreshold: p.ProminentPoseThreshold,
		Assignment:         p.SlotAssignment,
		ExpireAfter:        p.SlotExpiryCycles,
	}
}

// TreeParams returns the options shared by every tree
func (p Params) TreeParams() skeleton.Params {
	return skeleton.Params{
		Type:              p.PoseType,
		UpdateTimeDelta:   p.UpdateTimeDelta,
		BranchWidthScale:  p.BranchWidthScale,
		BranchLengthScale: p.BranchLengthScale,
		LimbModifiers:     append([]float64(nil), p.LimbModifiers...),
	}
}

// SkinParams returns the shell geometry
func (p Params) SkinParams() skin.Params {

	sp := skin.DefaultParams(p.PoseType.BoneCount())
	sp.SegmentLength = skeleton.StartingSegmentLength
	sp.StartingTrunkSize = p.StartingTrunkSize
	sp.BranchWidthScale = p.BranchWidthScale

	return sp
}
