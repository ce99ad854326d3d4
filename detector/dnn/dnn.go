// Package dnn runs a MediaPipe style landmark model exported to ONNX through
// the OpenCV DNN module.  The model is run on the whole letterboxed frame and
// yields at most one subject per frame.
package dnn

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sync"
	"time"

	"github.com/swdee/go-posetree/detector"
	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"
)

var black = color.RGBA{R: 0, G: 0, B: 0, A: 255}

// Params describe the tensors of a landmark model
type Params struct {
	// InputSize is the width and height of the square model input
	InputSize int
	// LandmarksLayer outputs image landmarks in input pixels
	LandmarksLayer string
	// PresenceLayer outputs the subject presence logit
	PresenceLayer string
	// WorldLayer outputs world landmarks in metres
	WorldLayer string
	// Stride is the number of values per image landmark.  Models emitting
	// more landmarks than the pose type uses have the surplus ignored.
	Stride int
}

// BodyParams returns the tensor layout of the full body landmark model
func BodyParams() Params {
	return Params{
		InputSize:      256,
		LandmarksLayer: "Identity",
		PresenceLayer:  "Identity_1",
		WorldLayer:     "Identity_4",
		Stride:         5,
	}
}

// HandParams returns the tensor layout of the hand landmark model
func HandParams() Params {
	return Params{
		InputSize:      224,
		LandmarksLayer: "Identity",
		PresenceLayer:  "Identity_1",
		WorldLayer:     "Identity_3",
		Stride:         3,
	}
}

// ParamsFor returns the tensor layout for a pose type
func ParamsFor(typ landmark.Type) Params {
	if typ == landmark.Hand {
		return HandParams()
	}
	return BodyParams()
}

// Detector is a detector.Detector backed by an OpenCV DNN network
type Detector struct {
	cfg    detector.Config
	params Params
	net    gocv.Net
	box    *letterbox
	input  gocv.Mat
	mu     sync.Mutex
}

// New loads the ONNX model at cfg.ModelPath
func New(cfg detector.Config, p Params) (*Detector, error) {

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)

	if net.Empty() {
		return nil, fmt.Errorf("error loading model %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &Detector{
		cfg:    cfg,
		params: p,
		net:    net,
		input:  gocv.NewMat(),
	}, nil
}

// Detect runs the model on frame
func (d *Detector) Detect(frame *gocv.Mat, ts time.Duration) ([]pose.Detection, error) {

	d.mu.Lock()
	defer d.mu.Unlock()

	if frame == nil || frame.Empty() {
		return nil, detector.ErrNotReady
	}

	if d.box == nil || !d.box.fits(frame.Cols(), frame.Rows()) {
		if d.box != nil {
			d.box.Close()
		}
		d.box = newLetterbox(frame.Cols(), frame.Rows(), d.params.InputSize)
	}

	d.box.Resize(*frame, &d.input, black)

	size := d.params.InputSize
	blob := gocv.BlobFromImage(d.input, 1.0/255.0, image.Pt(size, size),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	outputs := d.net.ForwardLayers([]string{
		d.params.LandmarksLayer, d.params.PresenceLayer, d.params.WorldLayer,
	})

	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	if len(outputs) != 3 {
		return nil, fmt.Errorf("model returned %d outputs, expected 3", len(outputs))
	}

	lms, err := outputs[0].DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading landmarks: %w", err)
	}

	presence, err := outputs[1].DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading presence: %w", err)
	}

	world, err := outputs[2].DataPtrFloat32()

	if err != nil {
		return nil, fmt.Errorf("error reading world landmarks: %w", err)
	}

	det, ok, err := d.parse(lms, presence, world)

	if err != nil || !ok {
		return nil, err
	}

	return []pose.Detection{det}, nil
}

// parse converts raw model outputs into a detection.  It reports false when
// the presence score is below the configured confidence.
func (d *Detector) parse(lms, presence, world []float32) (pose.Detection, bool, error) {

	n := d.cfg.Type.Count()
	stride := d.params.Stride

	if len(lms) < n*stride || len(world) < n*3 || len(presence) == 0 {
		return pose.Detection{}, false, fmt.Errorf("%w: model output too short for %d landmarks",
			pose.ErrLandmarkCount, n)
	}

	if sigmoid(float64(presence[0])) < d.cfg.MinConfidence {
		return pose.Detection{}, false, nil
	}

	det := pose.Detection{
		Landmarks:      make([]r3.Vec, n),
		WorldLandmarks: make([]r3.Vec, n),
	}

	for i := 0; i < n; i++ {
		x, y, z := d.box.Normalize(
			float64(lms[i*stride]), float64(lms[i*stride+1]), float64(lms[i*stride+2]))

		det.Landmarks[i] = r3.Vec{X: x, Y: y, Z: z}
		det.WorldLandmarks[i] = r3.Vec{
			X: float64(world[i*3]),
			Y: float64(world[i*3+1]),
			Z: float64(world[i*3+2]),
		}
	}

	return det, true, nil
}

// Close releases the network and buffers
func (d *Detector) Close() error {

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.box != nil {
		d.box.Close()
	}

	d.input.Close()

	return d.net.Close()
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
