/*
Example running a pose driven tree installation headless.  Frames from a video
file or camera are passed through a landmark model, or a landmark recording
is replayed, and the resulting pose events drive the scene and are streamed
to websocket listeners at /poses.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/swdee/go-posetree"
	"github.com/swdee/go-posetree/detector"
	"github.com/swdee/go-posetree/detector/dnn"
	"github.com/swdee/go-posetree/detector/replay"
	"github.com/swdee/go-posetree/pose"
	"github.com/swdee/go-posetree/scene"
	"github.com/swdee/go-posetree/stream"
	"github.com/swdee/go-posetree/video"
	"gocv.io/x/gocv"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	vidFile := flag.String("v", "", "Video file to run landmark detection on")
	camID := flag.Int("c", -1, "Camera device id to capture from instead of a video file")
	modelFile := flag.String("m", "", "ONNX landmark model file")
	replayFile := flag.String("r", "", "Landmark recording to replay instead of running a model")
	envFile := flag.String("e", "", "Optional .env file with POSETREE_* parameters")
	httpAddr := flag.String("a", "localhost:8080", "HTTP Address to run server on, format address:port")
	fps := flag.Int("fps", 60, "Render ticks per second")

	flag.Parse()

	var files []string

	if *envFile != "" {
		files = append(files, *envFile)
	}

	params, err := posetree.LoadParams(files...)

	if err != nil {
		log.Fatalf("Error loading parameters: %v", err)
	}

	src, err := openSource(*vidFile, *camID)

	if err != nil {
		log.Fatalf("Error opening video: %v", err)
	}

	if src != nil {
		defer src.Close()
	} else if *replayFile == "" {
		log.Fatal("A landmark model needs a video file (-v) or camera (-c) to run on")
	}

	cfg := detector.DefaultConfig(params.PoseType)
	cfg.MaxPoses = params.MaxPoses

	det, err := openDetector(cfg, *modelFile, *replayFile)

	if err != nil {
		log.Fatalf("Error creating detector: %v", err)
	}

	sc, err := scene.NewContext(params, det, nil)

	if err != nil {
		log.Fatalf("Error creating scene: %v", err)
	}

	defer sc.Close()

	if _, err := sc.Build(); err != nil {
		log.Fatalf("Error building scene: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := stream.NewHub(nil)
	go hub.Run(ctx)
	detach := hub.Attach(sc.Bus(), pose.SmoothedPoses)
	defer detach()

	mux := http.NewServeMux()
	mux.Handle("/poses", hub)
	srv := &http.Server{Addr: *httpAddr, Handler: mux}

	go func() {
		log.Printf("Listening for pose listeners at ws://%s/poses", *httpAddr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	run(ctx, sc, src, *fps)

	shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Shutdown(shutdown)
}

func openSource(vidFile string, camID int) (*video.Source, error) {
	switch {
	case vidFile != "":
		return video.OpenFile(vidFile, true)
	case camID >= 0:
		return video.OpenDevice(camID)
	}
	return nil, nil
}

func openDetector(cfg detector.Config, modelFile, replayFile string) (detector.Detector, error) {

	if replayFile != "" {
		cfg.ModelPath = replayFile
		return replay.Open(cfg)
	}

	if modelFile == "" {
		return nil, errors.New("either a model (-m) or a recording (-r) is required")
	}

	cfg.ModelPath = modelFile

	return dnn.New(cfg, dnn.ParamsFor(cfg.Type))
}

// run drives the scene until ctx is cancelled.  Detection is ticked at the
// video rate and rendering at fps, both from this goroutine.
func run(ctx context.Context, sc *scene.Context, src *video.Source, fps int) {

	frameRate := 30.0

	if src != nil {
		frameRate = src.FPS()
	}

	renderTicker := time.NewTicker(time.Second / time.Duration(max(fps, 1)))
	defer renderTicker.Stop()

	frameTicker := time.NewTicker(time.Duration(float64(time.Second) / frameRate))
	defer frameTicker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	start := time.Now()
	aligned := 0

	for {
		select {
		case <-ctx.Done():
			log.Println("Shutting down")
			return

		case <-frameTicker.C:
			var frame *gocv.Mat
			ts := time.Since(start)

			if src != nil {
				var err error
				frame, ts, err = src.Read()

				if err != nil {
					log.Printf("Error reading frame: %v", err)
					return
				}
			}

			if _, err := sc.DetectTick(frame, ts); err != nil {
				log.Printf("Detection error: %v", err)
			}

		case now := <-renderTicker.C:
			aligned += sc.RenderTick(now)

		case <-statsTicker.C:
			hits, misses := sc.Cache().Stats()
			log.Printf("Trees=%d, Aligned=%d, Shell cache hits=%d misses=%d",
				len(sc.Trees()), aligned, hits, misses)
			aligned = 0
		}
	}
}
