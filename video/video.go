// Package video wraps an OpenCV capture so frames come with the playback
// time the detection tick is gated on
package video

import (
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// ErrEndOfStream is returned by Read once a non looping file is exhausted
var ErrEndOfStream = errors.New("end of video stream")

// Source is a video file or capture device
type Source struct {
	cap   *gocv.VideoCapture
	frame gocv.Mat
	// live sources have no playback position so time is taken from the
	// wall clock since opening
	live  bool
	loop  bool
	start time.Time
	last  time.Duration
}

// OpenFile opens a video file.  With loop set the file rewinds to the first
// frame when it ends.
func OpenFile(path string, loop bool) (*Source, error) {

	c, err := gocv.VideoCaptureFile(path)

	if err != nil {
		return nil, fmt.Errorf("error opening video %s: %w", path, err)
	}

	return &Source{
		cap:   c,
		frame: gocv.NewMat(),
		loop:  loop,
		start: time.Now(),
	}, nil
}

// OpenDevice opens a camera by device id
func OpenDevice(id int) (*Source, error) {

	c, err := gocv.OpenVideoCapture(id)

	if err != nil {
		return nil, fmt.Errorf("error opening capture device %d: %w", id, err)
	}

	return &Source{
		cap:   c,
		frame: gocv.NewMat(),
		live:  true,
		start: time.Now(),
	}, nil
}

// Read grabs the next frame.  The returned Mat is reused by the next call
// and must not be closed by the caller.
func (s *Source) Read() (*gocv.Mat, time.Duration, error) {

	if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
		if s.live || !s.loop {
			return nil, s.last, ErrEndOfStream
		}

		s.cap.Set(gocv.VideoCapturePosFrames, 0)

		if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
			return nil, s.last, ErrEndOfStream
		}
	}

	s.last = s.position()

	return &s.frame, s.last, nil
}

func (s *Source) position() time.Duration {

	if s.live {
		return time.Since(s.start)
	}

	return time.Duration(s.cap.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))
}

// FPS returns the frame rate reported by the source, or 30 when unknown
func (s *Source) FPS() float64 {

	if fps := s.cap.Get(gocv.VideoCaptureFPS); fps > 0 {
		return fps
	}

	return 30
}

// Size returns the frame width and height
func (s *Source) Size() (int, int) {
	return int(s.cap.Get(gocv.VideoCaptureFrameWidth)), int(s.cap.Get(gocv.VideoCaptureFrameHeight))
}

// Close releases the capture and frame buffer
func (s *Source) Close() error {

	s.frame.Close()

	return s.cap.Close()
}
