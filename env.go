package posetree

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/swdee/go-posetree/landmark"
	"github.com/swdee/go-posetree/pose"
)

// EnvPrefix is prepended to every environment variable LoadParams reads
const EnvPrefix = "POSETREE_"

// LoadParams builds Params from the environment.  The given .env files are
// loaded first without overriding variables already set, then every
// POSETREE_* variable present replaces the default for the selected pose
// type.  Durations accept Go syntax ("150ms") or a bare number of
// milliseconds.
func LoadParams(files ...string) (Params, error) {

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Params{}, fmt.Errorf("error loading env files: %w", err)
		}
	}

	env := &envReader{}

	typ, err := landmark.ParseType(env.get("POSE_TYPE", landmark.Body.String()))

	if err != nil {
		return Params{}, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	p := DefaultParams(typ)

	p.MaxPoses = env.getInt("MAX_POSES", p.MaxPoses)
	p.PoseBufferSize = env.getInt("POSE_BUFFER_SIZE", p.PoseBufferSize)
	p.DistinctPoseThreshold = env.getFloat("DISTINCT_POSE_THRESHOLD", p.DistinctPoseThreshold)
	p.ProminentPoseThreshold = env.getFloat("PROMINENT_POSE_THRESHOLD", p.ProminentPoseThreshold)
	p.UpdateTimeDelta = env.getDuration("UPDATE_TIME_DELTA", p.UpdateTimeDelta)
	p.LerpFactor = env.getFloat("LERP_FACTOR", p.LerpFactor)
	p.BranchWidthScale = env.getFloat("BRANCH_WIDTH_SCALE", p.BranchWidthScale)
	p.BranchLengthScale = env.getFloat("BRANCH_LENGTH_SCALE", p.BranchLengthScale)
	p.StartingTrunkSize = env.getFloat("STARTING_TRUNK_SIZE", p.StartingTrunkSize)
	p.ScaleFactor = env.getFloat("SCALE_FACTOR", p.ScaleFactor)
	p.AlignAllPosesUp = env.getBool("ALIGN_ALL_POSES_UP", p.AlignAllPosesUp)
	p.LimbModifiers = env.getFloats("LIMB_MODIFIERS", p.LimbModifiers)
	p.SlotExpiryCycles = env.getInt("SLOT_EXPIRY_CYCLES", p.SlotExpiryCycles)
	p.MeshCacheSize = env.getInt("MESH_CACHE_SIZE", p.MeshCacheSize)
	p.GrowLevels = env.getInt("GROW_LEVELS", p.GrowLevels)
	p.HideMesh = env.getBool("HIDE_MESH", p.HideMesh)

	if s := env.get("SLOT_ASSIGNMENT", ""); s != "" {
		a, err := pose.ParseAssignment(s)
		env.fail(err)
		p.SlotAssignment = a
	}

	if env.err != nil {
		return Params{}, fmt.Errorf("%w: %w", ErrInvalidParams, env.err)
	}

	return p, p.Validate()
}

// envReader reads prefixed variables, collecting parse failures
type envReader struct {
	err error
}

func (e *envReader) fail(err error) {
	if err != nil {
		e.err = errors.Join(e.err, err)
	}
}

func (e *envReader) lookup(key string) (string, bool) {

	value, ok := os.LookupEnv(EnvPrefix + key)
	value = strings.TrimSpace(value)

	return value, ok && value != ""
}

func (e *envReader) get(key, defaultValue string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (e *envReader) getInt(key string, defaultValue int) int {

	value, ok := e.lookup(key)

	if !ok {
		return defaultValue
	}

	v, err := strconv.Atoi(value)

	if err != nil {
		e.fail(fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}

	return v
}

func (e *envReader) getFloat(key string, defaultValue float64) float64 {

	value, ok := e.lookup(key)

	if !ok {
		return defaultValue
	}

	v, err := strconv.ParseFloat(value, 64)

	if err != nil {
		e.fail(fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}

	return v
}

func (e *envReader) getBool(key string, defaultValue bool) bool {

	value, ok := e.lookup(key)

	if !ok {
		return defaultValue
	}

	v, err := strconv.ParseBool(value)

	if err != nil {
		e.fail(fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}

	return v
}

func (e *envReader) getDuration(key string, defaultValue time.Duration) time.Duration {

	value, ok := e.lookup(key)

	if !ok {
		return defaultValue
	}

	if ms, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond))
	}

	v, err := time.ParseDuration(value)

	if err != nil {
		e.fail(fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
		return defaultValue
	}

	return v
}

// getFloats reads a comma separated list
func (e *envReader) getFloats(key string, defaultValue []float64) []float64 {

	value, ok := e.lookup(key)

	if !ok {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	out := make([]float64, 0, len(parts))

	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)

		if err != nil {
			e.fail(fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return defaultValue
		}

		out = append(out, v)
	}

	return out
}
