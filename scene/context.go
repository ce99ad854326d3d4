// Package scene owns every live part of an installation: the pose pipeline
// and its bus, the trees following subject slots, their bones and their
// skinned shells.  A Context is driven by two ticks from a single goroutine.
package scene

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/swdee/go-posetree"
	"github.com/swdee/go-posetree/detector"
	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
	"github.com/swdee/go-posetree/skeleton"
	"github.com/swdee/go-posetree/skin"
	"gocv.io/x/gocv"
)

// Context is a scene.  It is not safe for concurrent use apart from its
// mesh cache, which may be shared.
type Context struct {
	// Params are the installation parameters the scene was built with
	Params posetree.Params
	// Root is the frame root trees are attached to by default
	Root *skeleton.Frame

	bus      *pose.Bus
	pipeline *pose.Pipeline
	detector detector.Detector
	cache    *skin.Cache
	logger   *log.Logger
	rng      *rand.Rand

	trees  []*skeleton.Tree
	bones  []*skeleton.Bone
	meshes []*skin.Mesh
	unsubs []func()

	lastVideoTime time.Duration
	detected      bool
}

// NewContext returns an empty scene.  det may be nil and set later with
// SetDetector, until then detection ticks do nothing.  A nil logger uses the
// standard logger.
func NewContext(p posetree.Params, det detector.Detector, logger *log.Logger) (*Context, error) {

	if err := p.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = log.Default()
	}

	gen, err := skin.NewGenerator(p.SkinParams())

	if err != nil {
		return nil, fmt.Errorf("error creating shell generator: %w", err)
	}

	bus := pose.NewBus()
	pipeline := pose.NewPipeline(p.PipelineParams(), bus)
	pipeline.SetLogger(logger)

	return &Context{
		Params:   p,
		Root:     skeleton.NewFrame(),
		bus:      bus,
		pipeline: pipeline,
		detector: det,
		cache:    skin.NewCache(gen, p.MeshCacheSize),
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetDetector replaces the detector, e.g. once a model finished loading
func (c *Context) SetDetector(det detector.Detector) {
	c.detector = det
	c.detected = false
}

// Seed makes the slot choice of grown trees reproducible
func (c *Context) Seed(seed int64) {
	c.rng = rand.New(rand.NewSource(seed))
}

// Bus returns the bus pose events are published on
func (c *Context) Bus() *pose.Bus {
	return c.bus
}

// Pipeline returns the pose ingestion pipeline
func (c *Context) Pipeline() *pose.Pipeline {
	return c.pipeline
}

// Cache returns the shell cache
func (c *Context) Cache() *skin.Cache {
	return c.cache
}

// Trees returns every tree in creation order
func (c *Context) Trees() []*skeleton.Tree {
	return c.trees
}

// Bones returns every bone of every tree
func (c *Context) Bones() []*skeleton.Bone {
	return c.bones
}

// Meshes returns the shell of every limb, empty when HideMesh is set
func (c *Context) Meshes() []*skin.Mesh {
	return c.meshes
}

// AddTree creates a tree following slot and attaches it to parent, or to
// Root when parent is nil
func (c *Context) AddTree(parent *skeleton.Frame, slot int, alignRoot bool) (*skeleton.Tree, error) {

	if slot < 0 || slot >= c.Params.MaxPoses {
		return nil, fmt.Errorf("slot %d out of range [0,%d)", slot, c.Params.MaxPoses)
	}

	if parent == nil {
		parent = c.Root
	}

	t := skeleton.NewTree(c.Params.TreeParams(), parent, slot, alignRoot)

	return t, c.register(t)
}

// Grow spawns a child tree at the end of every limb of t, following a
// random slot, and repeats for levels nesting levels.  It returns the trees
// created.
func (c *Context) Grow(t *skeleton.Tree, levels int) ([]*skeleton.Tree, error) {

	var grown []*skeleton.Tree

	if levels <= 0 {
		return grown, nil
	}

	for _, end := range t.Ends() {
		child := t.Spawn(end, c.rng.Intn(c.Params.MaxPoses), c.alignChildren())

		if err := c.register(child); err != nil {
			return grown, err
		}

		grown = append(grown, child)

		more, err := c.Grow(child, levels-1)
		grown = append(grown, more...)

		if err != nil {
			return grown, err
		}
	}

	return grown, nil
}

// Build adds one root tree on slot 0 and grows it by GrowLevels
func (c *Context) Build() (*skeleton.Tree, error) {

	root, err := c.AddTree(nil, 0, c.Params.AlignAllPosesUp)

	if err != nil {
		return nil, err
	}

	if _, err := c.Grow(root, c.Params.GrowLevels); err != nil {
		return nil, err
	}

	c.logger.Printf("Scene built with %d trees, %d bones, %d shells",
		len(c.trees), len(c.bones), len(c.meshes))

	return root, nil
}

// alignChildren reports whether grown trees reorient their pose to point
// outward from the bone they grow on
func (c *Context) alignChildren() bool {
	return c.Params.AlignAllPosesUp || c.Params.PoseType == landmark.Hand
}

func (c *Context) register(t *skeleton.Tree) error {

	c.unsubs = append(c.unsubs, c.bus.Subscribe(pose.SmoothedPoses, t.OnPoses))
	c.trees = append(c.trees, t)
	c.bones = append(c.bones, t.Bones()...)

	if c.Params.HideMesh {
		return nil
	}

	scale := c.Params.ScaleFactor * t.BranchWidthScale

	for _, limb := range t.Limbs() {
		shape, err := c.cache.Get(scale)

		if err != nil {
			return fmt.Errorf("error creating shell: %w", err)
		}

		mesh, err := skin.Bind(shape, t.Root, limb)

		if err != nil {
			return fmt.Errorf("error binding shell: %w", err)
		}

		c.meshes = append(c.meshes, mesh)
	}

	return nil
}

// RenderTick aligns every tree that is due and steps every bone toward its
// target.  It returns the number of trees aligned.
func (c *Context) RenderTick(now time.Time) int {

	aligned := 0

	for _, t := range c.trees {
		if t.Update(now) {
			aligned++
		}
	}

	for _, b := range c.bones {
		b.Step(c.Params.LerpFactor)
	}

	return aligned
}

// DetectTick runs the detector on frame when the video's playback time ts
// moved since the last detection, and ingests the result.  It reports
// whether pose events were published.  A missing or not ready detector is
// not an error.  Playback moving backward clears the pose history.
func (c *Context) DetectTick(frame *gocv.Mat, ts time.Duration) (bool, error) {

	if c.detector == nil {
		return false, nil
	}

	if c.detected && ts == c.lastVideoTime {
		return false, nil
	}

	dets, err := c.detector.Detect(frame, ts)

	if errors.Is(err, detector.ErrNotReady) {
		return false, nil
	}

	// the video looped or was rewound, history belongs to the old position
	if c.detected && ts < c.lastVideoTime {
		c.pipeline.Reset()
	}

	c.lastVideoTime = ts
	c.detected = true

	if err != nil {
		return false, fmt.Errorf("error detecting landmarks: %w", err)
	}

	_, ok := c.pipeline.Ingest(dets)

	return ok, nil
}

// Close detaches every tree from the bus and closes the detector
func (c *Context) Close() error {

	for _, unsub := range c.unsubs {
		unsub()
	}

	c.unsubs = nil

	if c.detector == nil {
		return nil
	}

	return c.detector.Close()
}
