/*
Package landmark describes the keypoint layouts produced by the body and hand
landmark models and converts detector coordinates into the engine's coordinate
convention.

Body layout (reduced BlazePose, only the nodes driving bones shown)

	          (0) HEAD
	   --------|---------
	 (12)   |      |   (11)
	   |    |      |    |
	 (14)   |      |   (13)
	   |    |      |    |
	 (16)   |      |   (15)
	        |      |
	      (24)   (23)
	        |      |
	      (26)   (25)
	        |      |
	      (28)   (27)

Hand layout

	             (0) WRIST
	              |
	     ---------------------
	   |     |     |     |     |
	  (1)   (5)   (9)  (13)  (17)
	   |     |     |     |     |
	  (2)   (6)  (10)  (14)  (18)
	   |     |     |     |     |
	  (3)   (7)  (11)  (15)  (19)
	   |     |     |     |     |
	  (4)   (8)  (12)  (16)  (20)
*/
package landmark

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Type selects the landmark model in use
type Type int

const (
	// Body is the 33 point pose landmark model
	Body Type = iota
	// Hand is the 21 point hand landmark model
	Hand
)

const (
	// BodyCount is the number of landmarks in a body pose
	BodyCount = 33
	// HandCount is the number of landmarks in a hand pose
	HandCount = 21
	// Root is the landmark every limb chain and alignment vector starts from
	Root = 0
)

var (
	bodyLimbs = [][]int{
		{0, 11, 13, 15},
		{0, 12, 14, 16},
		{0, 23, 25, 27},
		{0, 24, 26, 28},
	}

	handLimbs = [][]int{
		{0, 1, 2, 3, 4},
		{0, 5, 6, 7, 8},
		{0, 13, 14, 15, 16},
		{0, 9, 10, 11, 12},
		{0, 17, 18, 19, 20},
	}

	// hips
	bodyAlignment = []int{23, 24}

	handAlignment = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
		17, 18, 19, 20}
)

// ParseType converts a configuration string (BODY or HAND) into a Type
func ParseType(s string) (Type, error) {

	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BODY":
		return Body, nil
	case "HAND":
		return Hand, nil
	}

	return Body, fmt.Errorf("unknown pose type %q, use BODY or HAND", s)
}

// String returns the configuration name of the pose type
func (t Type) String() string {
	if t == Hand {
		return "HAND"
	}
	return "BODY"
}

// Count returns the number of landmarks the model produces per subject
func (t Type) Count() int {
	if t == Hand {
		return HandCount
	}
	return BodyCount
}

// Limbs returns the landmark ids for each bone chain.  The returned slices
// are copies and may be modified by the caller.
func (t Type) Limbs() [][]int {

	src := bodyLimbs

	if t == Hand {
		src = handLimbs
	}

	out := make([][]int, len(src))

	for i, limb := range src {
		out[i] = append([]int(nil), limb...)
	}

	return out
}

// BoneCount returns the number of bones in every limb chain of the pose type
func (t Type) BoneCount() int {
	if t == Hand {
		return len(handLimbs[0])
	}
	return len(bodyLimbs[0])
}

// AlignmentSet returns the landmarks whose offsets from Root are summed to
// produce a pose's alignment vector
func (t Type) AlignmentSet() []int {
	if t == Hand {
		return handAlignment
	}
	return bodyAlignment
}

// ValueScalar is the factor applied to world landmarks (metres) to reach
// scene units
func (t Type) ValueScalar() float64 {
	if t == Hand {
		return 2500
	}
	return 1000
}

// ToEngine mirrors a detector world landmark into the engine convention so
// the subject faces the canonical direction with +Y up.  Hand landmarks are
// negated on every axis, body landmarks on X and Z.
func (t Type) ToEngine(p r3.Vec) r3.Vec {
	if t == Hand {
		return r3.Scale(-1, p)
	}
	return r3.Vec{X: -p.X, Y: p.Y, Z: -p.Z}
}

// Modifiers returns the default per limb length modifiers, all 1
func (t Type) Modifiers() []float64 {

	n := len(t.Limbs())
	out := make([]float64, n)

	for i := range out {
		out[i] = 1
	}

	return out
}
