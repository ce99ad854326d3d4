// Package replay serves recorded landmark detections as a detector, so an
// installation can be rehearsed without a camera or model
package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/swdee/go-posetree/detector"
	"github.com/swdee/go-posetree/pose"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"
)

// Recording is the on disk layout of a landmark recording
type Recording struct {
	Frames []Frame `json:"frames"`
}

// Frame holds the subjects detected at one playback time
type Frame struct {
	TimeMS float64   `json:"time_ms"`
	Poses  []Subject `json:"poses"`
}

// Subject is one recorded detection.  Landmarks are [x, y, z] triples.
type Subject struct {
	Landmarks      [][3]float64 `json:"landmarks"`
	WorldLandmarks [][3]float64 `json:"world_landmarks"`
}

// Detector replays a recording by playback time
type Detector struct {
	cfg    detector.Config
	frames []Frame
	// served is the index of the frame returned last, -1 before the first
	served int
	closed bool
	mu     sync.Mutex
}

// Open loads the recording at cfg.ModelPath
func Open(cfg detector.Config) (*Detector, error) {

	file, err := os.Open(cfg.ModelPath)

	if err != nil {
		return nil, fmt.Errorf("error opening recording: %w", err)
	}

	defer file.Close()

	return Load(cfg, file)
}

// Load decodes a recording from r
func Load(cfg detector.Config, r io.Reader) (*Detector, error) {

	var rec Recording

	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("error decoding recording: %w", err)
	}

	sort.SliceStable(rec.Frames, func(i, j int) bool {
		return rec.Frames[i].TimeMS < rec.Frames[j].TimeMS
	})

	return &Detector{
		cfg:    cfg,
		frames: rec.Frames,
		served: -1,
	}, nil
}

// Len returns the number of recorded frames
func (d *Detector) Len() int {
	return len(d.frames)
}

// Duration returns the playback time of the last recorded frame
func (d *Detector) Duration() time.Duration {

	if len(d.frames) == 0 {
		return 0
	}

	return msToDuration(d.frames[len(d.frames)-1].TimeMS)
}

// Detect returns the subjects of the newest frame recorded at or before ts.
// Each recorded frame is served once, later calls landing on the same frame
// return no subjects.  The video frame is ignored and may be nil.
func (d *Detector) Detect(_ *gocv.Mat, ts time.Duration) ([]pose.Detection, error) {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, detector.ErrNotReady
	}

	// first frame after ts
	i := sort.Search(len(d.frames), func(i int) bool {
		return msToDuration(d.frames[i].TimeMS) > ts
	})

	if i == 0 || i-1 == d.served {
		return []pose.Detection{}, nil
	}

	d.served = i - 1
	subjects := d.frames[i-1].Poses

	if d.cfg.MaxPoses > 0 && len(subjects) > d.cfg.MaxPoses {
		subjects = subjects[:d.cfg.MaxPoses]
	}

	out := make([]pose.Detection, 0, len(subjects))

	for _, s := range subjects {
		out = append(out, pose.Detection{
			Landmarks:      toVecs(s.Landmarks),
			WorldLandmarks: toVecs(s.WorldLandmarks),
		})
	}

	return out, nil
}

// Close stops the detector from serving frames
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func toVecs(in [][3]float64) []r3.Vec {

	out := make([]r3.Vec, len(in))

	for i, v := range in {
		out[i] = r3.Vec{X: v[0], Y: v[1], Z: v[2]}
	}

	return out
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
