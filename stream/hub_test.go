package stream

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
	"gonum.org/v1/gonum/spatial/r3"
)

func testPose(t *testing.T, cx float64) *pose.Pose {
	t.Helper()

	det := pose.Detection{
		Landmarks:      make([]r3.Vec, landmark.HandCount),
		WorldLandmarks: make([]r3.Vec, landmark.HandCount),
	}

	for i := range det.Landmarks {
		det.Landmarks[i] = r3.Vec{X: cx, Y: float64(i) / 20}
		det.WorldLandmarks[i] = r3.Vec{Y: -0.01 * float64(i)}
	}

	p, err := pose.New(9, landmark.Hand, det)

	if err != nil {
		t.Fatalf("pose.New failed: %v", err)
	}

	return p
}

func TestEncodeSkipsAbsentSlots(t *testing.T) {

	data, err := Encode([]*pose.Pose{nil, testPose(t, 0.25), nil})

	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	var msgs []PoseMessage

	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(msgs) != 1 || msgs[0].Slot != 1 || msgs[0].ID != 9 {
		t.Fatalf("messages %+v, want one for slot 1", msgs)
	}

	if len(msgs[0].Landmarks) != landmark.HandCount || math.Abs(msgs[0].Center[0]-0.25) > 1e-9 {
		t.Errorf("message carries %d landmarks, center %v", len(msgs[0].Landmarks), msgs[0].Center)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubBroadcastsBusEvents(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(log.New(io.Discard, "", 0))
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)

	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	bus := pose.NewBus()
	detach := hub.Attach(bus, pose.SmoothedPoses)

	bus.Publish(pose.ExactPoses, []*pose.Pose{testPose(t, 0.9)})
	bus.Publish(pose.SmoothedPoses, []*pose.Pose{testPose(t, 0.4)})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()

	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msgs []PoseMessage

	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if len(msgs) != 1 || math.Abs(msgs[0].Center[0]-0.4) > 1e-9 {
		t.Errorf("received %+v, want the smoothed pose only", msgs)
	}

	detach()

	if bus.Len(pose.SmoothedPoses) != 0 {
		t.Errorf("detach left the hub subscribed")
	}

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHubStopsOnCancel(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(log.New(io.Discard, "", 0))
	stopped := make(chan struct{})

	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// calls after shutdown must not block
	hub.Broadcast([]byte("late"))
}
