package scene

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/swdee/go-posetree"
	"github.com/swdee/go-posetree/detector"
	"github.com/swdee/go-posetree/detector/replay"
	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
	"github.com/swdee/go-posetree/skeleton"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"
)

type fakeDetector struct {
	dets   []pose.Detection
	err    error
	calls  int
	closed bool
}

func (f *fakeDetector) Detect(_ *gocv.Mat, _ time.Duration) ([]pose.Detection, error) {
	f.calls++
	return f.dets, f.err
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func handDetection(cx float64) pose.Detection {

	det := pose.Detection{
		Landmarks:      make([]r3.Vec, landmark.HandCount),
		WorldLandmarks: make([]r3.Vec, landmark.HandCount),
	}

	for i := range det.Landmarks {
		f := float64(i) / float64(landmark.HandCount-1)
		det.Landmarks[i] = r3.Vec{X: cx, Y: 0.3 + 0.4*f}
		det.WorldLandmarks[i] = r3.Vec{X: 0.01 * float64(i%4), Y: -0.02 * float64(i), Z: 0.005 * float64(i%3)}
	}

	return det
}

func newTestContext(t *testing.T, p posetree.Params, det detector.Detector) *Context {
	t.Helper()

	c, err := NewContext(p, det, log.New(io.Discard, "", 0))

	if err != nil {
		t.Fatalf("NewContext failed: %v", err)
	}

	c.Seed(1)

	return c
}

func TestNewContextInvalidParams(t *testing.T) {

	p := posetree.DefaultParams(landmark.Body)
	p.LerpFactor = 2

	if _, err := NewContext(p, nil, nil); !errors.Is(err, posetree.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestBuildHandScene(t *testing.T) {

	p := posetree.DefaultParams(landmark.Hand)
	p.MaxPoses = 3
	c := newTestContext(t, p, nil)

	root, err := c.Build()

	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	limbs := len(landmark.Hand.Limbs())
	bones := landmark.Hand.BoneCount() * limbs

	if len(c.Trees()) != 1+limbs {
		t.Fatalf("got %d trees, want %d", len(c.Trees()), 1+limbs)
	}

	if len(c.Bones()) != bones*(1+limbs) || len(c.Meshes()) != limbs*(1+limbs) {
		t.Errorf("got %d bones and %d shells", len(c.Bones()), len(c.Meshes()))
	}

	if root.Root.Parent() != c.Root {
		t.Errorf("root tree not attached to the scene root")
	}

	for _, child := range c.Trees()[1:] {
		if child.Parent() != root || !child.AlignRoot {
			t.Errorf("child tree not spawned from root with alignment")
		}

		if child.Slot < 0 || child.Slot >= p.MaxPoses {
			t.Errorf("child slot %d out of range", child.Slot)
		}

		if child.BranchWidthScale != p.BranchWidthScale {
			t.Errorf("child width scale %f, want %f", child.BranchWidthScale, p.BranchWidthScale)
		}
	}

	// one shell template per nesting level
	if c.Cache().Len() != 2 {
		t.Errorf("cache holds %d templates, want 2", c.Cache().Len())
	}

	if c.Bus().Len(pose.SmoothedPoses) != len(c.Trees()) {
		t.Errorf("%d subscribers, want one per tree", c.Bus().Len(pose.SmoothedPoses))
	}
}

func TestGrowNested(t *testing.T) {

	p := posetree.DefaultParams(landmark.Body)
	p.HideMesh = true
	c := newTestContext(t, p, nil)

	root, err := c.AddTree(nil, 1, false)

	if err != nil {
		t.Fatalf("AddTree failed: %v", err)
	}

	grown, err := c.Grow(root, 2)

	if err != nil {
		t.Fatalf("Grow failed: %v", err)
	}

	limbs := len(landmark.Body.Limbs())

	if len(grown) != limbs+limbs*limbs {
		t.Fatalf("grew %d trees, want %d", len(grown), limbs+limbs*limbs)
	}

	last := grown[len(grown)-1]

	if last.Parent() == nil || last.Parent().Parent() != root {
		t.Errorf("second level tree not nested under the first level")
	}

	// body children keep their orientation unless AlignAllPosesUp is set
	if last.AlignRoot {
		t.Errorf("body child aligns its root")
	}

	if len(c.Meshes()) != 0 || c.Cache().Len() != 0 {
		t.Errorf("hidden mesh built %d shells", len(c.Meshes()))
	}
}

func TestAddTreeSlotRange(t *testing.T) {

	c := newTestContext(t, posetree.DefaultParams(landmark.Body), nil)

	for _, slot := range []int{-1, 2} {
		if _, err := c.AddTree(nil, slot, false); err == nil {
			t.Errorf("AddTree accepted slot %d", slot)
		}
	}
}

func TestDetectTickGate(t *testing.T) {

	p := posetree.DefaultParams(landmark.Hand)
	p.HideMesh = true
	c := newTestContext(t, p, nil)

	published := 0
	c.Bus().Subscribe(pose.SmoothedPoses, func([]*pose.Pose) { published++ })

	if ok, err := c.DetectTick(nil, 0); ok || err != nil {
		t.Fatalf("tick without detector: ok=%v err=%v", ok, err)
	}

	det := &fakeDetector{err: detector.ErrNotReady}
	c.SetDetector(det)

	if ok, err := c.DetectTick(nil, 10*time.Millisecond); ok || err != nil {
		t.Fatalf("tick with detector not ready: ok=%v err=%v", ok, err)
	}

	det.err = nil
	det.dets = []pose.Detection{handDetection(0.5)}

	tests := []struct {
		ts      time.Duration
		ok      bool
		calls   int
		publish int
	}{
		// the frame refused while not ready is retried
		{10 * time.Millisecond, true, 2, 1},
		{10 * time.Millisecond, false, 2, 1},
		{20 * time.Millisecond, true, 3, 2},
		{20 * time.Millisecond, false, 3, 2},
	}

	for i, tc := range tests {
		ok, err := c.DetectTick(nil, tc.ts)

		if err != nil {
			t.Fatalf("tick %d failed: %v", i, err)
		}

		if ok != tc.ok || det.calls != tc.calls || published != tc.publish {
			t.Errorf("tick %d: ok=%v calls=%d published=%d, want %v %d %d",
				i, ok, det.calls, published, tc.ok, tc.calls, tc.publish)
		}
	}

	det.dets = nil

	if ok, _ := c.DetectTick(nil, 30*time.Millisecond); ok || published != 2 {
		t.Errorf("empty detection published an event")
	}

	det.err = errors.New("inference failed")

	if _, err := c.DetectTick(nil, 40*time.Millisecond); err == nil {
		t.Errorf("detector error not returned")
	}
}

func TestRenderTickDrivesBones(t *testing.T) {

	p := posetree.DefaultParams(landmark.Hand)
	p.MaxPoses = 1
	p.GrowLevels = 0
	c := newTestContext(t, p, &fakeDetector{dets: []pose.Detection{handDetection(0.5)}})

	if _, err := c.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	now := time.Now()

	if n := c.RenderTick(now); n != 0 {
		t.Fatalf("aligned %d trees without a pose", n)
	}

	if ok, err := c.DetectTick(nil, time.Millisecond); !ok || err != nil {
		t.Fatalf("DetectTick: ok=%v err=%v", ok, err)
	}

	if n := c.RenderTick(now); n != 1 {
		t.Fatalf("aligned %d trees, want 1", n)
	}

	for i := 0; i < 300; i++ {
		now = now.Add(16 * time.Millisecond)

		// the same averaged pose is never aligned twice
		if n := c.RenderTick(now); n != 0 {
			t.Fatalf("tick %d realigned an unchanged pose", i)
		}
	}

	targets := 0

	for _, b := range c.Bones() {
		target, ok := b.TargetRotation()

		if !ok {
			continue
		}

		targets++

		if a := skeleton.Angle(b.Rotation, target); a > 1e-6 {
			t.Errorf("bone %d is %f rad from its target", b.LandmarkID, a)
		}
	}

	if targets == 0 {
		t.Errorf("no bone received a target rotation")
	}

	for _, m := range c.Meshes() {
		if len(m.Deform()) != len(m.Shape.Positions) {
			t.Fatalf("deformed shell lost vertices")
		}
	}
}

func TestClose(t *testing.T) {

	det := &fakeDetector{}
	p := posetree.DefaultParams(landmark.Body)
	p.HideMesh = true
	c := newTestContext(t, p, det)

	if _, err := c.Build(); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !det.closed || c.Bus().Len(pose.SmoothedPoses) != 0 {
		t.Errorf("closed=%v subscribers=%d", det.closed, c.Bus().Len(pose.SmoothedPoses))
	}
}

func handRecording(t *testing.T, times ...float64) *replay.Detector {
	t.Helper()

	var rec replay.Recording

	for _, ms := range times {
		det := handDetection(0.5)
		sub := replay.Subject{
			Landmarks:      make([][3]float64, len(det.Landmarks)),
			WorldLandmarks: make([][3]float64, len(det.WorldLandmarks)),
		}

		for i := range det.Landmarks {
			l, w := det.Landmarks[i], det.WorldLandmarks[i]
			sub.Landmarks[i] = [3]float64{l.X, l.Y, l.Z}
			sub.WorldLandmarks[i] = [3]float64{w.X, w.Y, w.Z}
		}

		rec.Frames = append(rec.Frames, replay.Frame{TimeMS: ms, Poses: []replay.Subject{sub}})
	}

	data, err := json.Marshal(rec)

	if err != nil {
		t.Fatalf("error encoding recording: %v", err)
	}

	d, err := replay.Load(detector.DefaultConfig(landmark.Hand), bytes.NewReader(data))

	if err != nil {
		t.Fatalf("error loading recording: %v", err)
	}

	return d
}

func TestDetectTickIngestsRecordedFrameOnce(t *testing.T) {

	p := posetree.DefaultParams(landmark.Hand)
	p.MaxPoses = 1
	p.HideMesh = true
	c := newTestContext(t, p, handRecording(t, 0, 100))

	tests := []struct {
		ts  time.Duration
		ok  bool
		len int
	}{
		{0, true, 1},
		// render rate ticks between recorded frames add nothing
		{33 * time.Millisecond, false, 1},
		{66 * time.Millisecond, false, 1},
		{100 * time.Millisecond, true, 2},
		{133 * time.Millisecond, false, 2},
		// a rewind clears the history before the first frame is served again
		{10 * time.Millisecond, true, 1},
	}

	for _, tc := range tests {
		ok, err := c.DetectTick(nil, tc.ts)

		if err != nil {
			t.Fatalf("ts %v: %v", tc.ts, err)
		}

		if ok != tc.ok || c.Pipeline().Buffer(0).Len() != tc.len {
			t.Errorf("ts %v: ok=%v buffer=%d, want %v %d",
				tc.ts, ok, c.Pipeline().Buffer(0).Len(), tc.ok, tc.len)
		}
	}
}
