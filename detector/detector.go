// Package detector defines the landmark detector capability the scene pulls
// pose detections from.  Implementations live in the dnn and replay
// subpackages.
package detector

import (
	"errors"
	"time"

	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
	"gocv.io/x/gocv"
)

// ErrNotReady is returned by a detector that cannot serve a frame yet.
// Callers skip the frame and try again on the next tick.
var ErrNotReady = errors.New("detector not ready")

// Detector produces pose detections for a video frame
type Detector interface {
	// Detect returns the subjects found in frame, which was shown at
	// playback time ts.  No subjects yields an empty slice and nil error.
	Detect(frame *gocv.Mat, ts time.Duration) ([]pose.Detection, error)

	// Close releases any resources held by the detector
	Close() error
}

// Config holds the options shared by detector implementations
type Config struct {
	// Type is the landmark model to run
	Type landmark.Type
	// MaxPoses is the maximum number of subjects returned per frame
	MaxPoses int
	// MinConfidence is the minimum presence score of a subject (0.0-1.0)
	MinConfidence float64
	// ModelPath is the model or recording file to load
	ModelPath string
}

// DefaultConfig returns a Config with sensible default values for typ
func DefaultConfig(typ landmark.Type) Config {
	return Config{
		Type:          typ,
		MaxPoses:      2,
		MinConfidence: 0.5,
	}
}
