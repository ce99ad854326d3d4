package replay

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/swdee/go-posetree/detector"
	"github.com/swdee/go-posetree/landmark"
)

const recording = `{
  "frames": [
    {"time_ms": 100, "poses": [
      {"landmarks": [[0.1, 0.2, 0]], "world_landmarks": [[1, 2, 3]]},
      {"landmarks": [[0.7, 0.2, 0]], "world_landmarks": [[4, 5, 6]]}
    ]},
    {"time_ms": 0, "poses": []},
    {"time_ms": 200.5, "poses": [
      {"landmarks": [[0.3, 0.4, 0]], "world_landmarks": [[7, 8, 9]]}
    ]}
  ]
}`

func TestDetectByPlaybackTime(t *testing.T) {

	cfg := detector.DefaultConfig(landmark.Hand)
	cfg.MaxPoses = 5

	d, err := Load(cfg, strings.NewReader(recording))

	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if d.Len() != 3 || d.Duration() != 200500*time.Microsecond {
		t.Fatalf("len=%d duration=%v", d.Len(), d.Duration())
	}

	tests := []struct {
		ts     time.Duration
		count  int
		firstX float64
	}{
		{-time.Millisecond, 0, 0},
		{0, 0, 0},
		{100 * time.Millisecond, 2, 0.1},
		{150 * time.Millisecond, 2, 0.1},
		{200 * time.Millisecond, 2, 0.1},
		{201 * time.Millisecond, 1, 0.3},
		{time.Hour, 1, 0.3},
	}

	for _, tc := range tests {
		// fresh detector so every case selects its frame from scratch
		d, _ := Load(cfg, strings.NewReader(recording))
		dets, err := d.Detect(nil, tc.ts)

		if err != nil {
			t.Errorf("ts %v: unexpected error %v", tc.ts, err)
			continue
		}

		if len(dets) != tc.count {
			t.Errorf("ts %v: %d detections, want %d", tc.ts, len(dets), tc.count)
			continue
		}

		if tc.count > 0 && dets[0].Landmarks[0].X != tc.firstX {
			t.Errorf("ts %v: first landmark x = %f, want %f", tc.ts, dets[0].Landmarks[0].X, tc.firstX)
		}
	}
}

func TestDetectServesFrameOnce(t *testing.T) {

	cfg := detector.DefaultConfig(landmark.Hand)
	d, err := Load(cfg, strings.NewReader(recording))

	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		ts    time.Duration
		count int
	}{
		{100 * time.Millisecond, 2},
		// ticks faster than the recording land on the frame already served
		{133 * time.Millisecond, 0},
		{166 * time.Millisecond, 0},
		{201 * time.Millisecond, 1},
		{300 * time.Millisecond, 0},
		// rewinding serves the earlier frame again
		{120 * time.Millisecond, 2},
	}

	for _, tc := range tests {
		dets, err := d.Detect(nil, tc.ts)

		if err != nil {
			t.Fatalf("ts %v: unexpected error %v", tc.ts, err)
		}

		if len(dets) != tc.count {
			t.Errorf("ts %v: %d detections, want %d", tc.ts, len(dets), tc.count)
		}
	}
}

func TestDetectLimitsSubjects(t *testing.T) {

	cfg := detector.DefaultConfig(landmark.Hand)
	cfg.MaxPoses = 1

	d, _ := Load(cfg, strings.NewReader(recording))
	dets, _ := d.Detect(nil, 150*time.Millisecond)

	if len(dets) != 1 {
		t.Fatalf("%d detections, want 1", len(dets))
	}

	if w := dets[0].WorldLandmarks[0]; w.X != 1 || w.Y != 2 || w.Z != 3 {
		t.Errorf("world landmark %v, want (1, 2, 3)", w)
	}
}

func TestOpenAndClose(t *testing.T) {

	path := filepath.Join(t.TempDir(), "session.json")

	if err := os.WriteFile(path, []byte(recording), 0o644); err != nil {
		t.Fatalf("error writing recording: %v", err)
	}

	cfg := detector.DefaultConfig(landmark.Body)
	cfg.ModelPath = path

	d, err := Open(cfg)

	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	d.Close()

	if _, err := d.Detect(nil, time.Second); !errors.Is(err, detector.ErrNotReady) {
		t.Errorf("expected ErrNotReady after Close, got %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load(detector.Config{}, strings.NewReader("{not json")); err == nil {
		t.Error("Load accepted malformed input")
	}
}
