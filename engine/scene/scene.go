package scene

import (
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/csg"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/Carmen-Shannon/oxy-rt/log"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("scene")

// DefaultSamplesPerPixel is the number of samples the path-tracing passes take per pixel and frame.
const DefaultSamplesPerPixel = 12

// Animation returns the transform of a primitive at the given number of animated seconds.
type Animation func(elapsed float32) geometry.Transform

// FrameUpdate reports what changed during one Scene.Update.
type FrameUpdate struct {
	// FrameNumber is the number of the frame the update prepared, starting at 1.
	FrameNumber uint32

	// TransformsChanged is true when at least one primitive transform was rewritten. The
	// acceleration structure must be refit before the next dispatch.
	TransformsChanged bool

	// CameraMoved is true when the view-projection matrix changed since the previous update.
	CameraMoved bool

	// Accumulation is the accumulated-frame counter after the update.
	Accumulation uint32
}

// Scene holds the host-retained source data of everything the frame graph draws: the
// primitive store, the CSG tree, the camera and the light. The frame orchestrator reads it
// every frame and rebuilds every device object from it after a device loss.
//
// The scene also owns the per-frame state the passes read through the scene constants:
// the render mode, the accumulated-frame counter, the frame number, the elapsed time and
// the random seeds. Input handlers may run on the engine's tick goroutine; every method
// is safe for concurrent use.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// Store returns the primitive store.
	//
	// Returns:
	//   - geometry.Store: the store
	Store() geometry.Store

	// CSGTree returns the CSG tree CSG primitives are evaluated against, or nil.
	//
	// Returns:
	//   - *csg.Tree: the tree
	CSGTree() *csg.Tree

	// Camera returns the scene's camera.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// Light returns the scene's light.
	//
	// Returns:
	//   - light.Light: the light
	Light() light.Light

	// Mode returns the active render mode.
	//
	// Returns:
	//   - common.RenderMode: the mode
	Mode() common.RenderMode

	// SetMode switches the render mode. A change restarts accumulation.
	//
	// Parameters:
	//   - mode: the new mode
	//
	// Returns:
	//   - error: a ValidationError for an unknown mode
	SetMode(mode common.RenderMode) error

	// RenderFull reports whether every pass writes the full frame rather than a
	// checkerboard subset.
	//
	// Returns:
	//   - bool: the render-full flag
	RenderFull() bool

	// SetRenderFull sets the render-full flag.
	//
	// Parameters:
	//   - full: the new flag
	SetRenderFull(full bool)

	// SamplesPerPixel returns the number of samples per pixel and frame.
	//
	// Returns:
	//   - uint32: the sample count
	SamplesPerPixel() uint32

	// Accumulation returns the number of frames accumulated since the last reset.
	//
	// Returns:
	//   - uint32: the counter
	Accumulation() uint32

	// ResetAccumulation restarts accumulation on the next Update.
	ResetAccumulation()

	// FrameNumber returns the number of the last prepared frame.
	//
	// Returns:
	//   - uint32: the frame number
	FrameNumber() uint32

	// ElapsedTime returns the animated seconds since the scene was created.
	//
	// Returns:
	//   - float32: the elapsed time
	ElapsedTime() float32

	// Animating reports whether primitive animations and the light orbit advance.
	//
	// Returns:
	//   - bool: true while animating
	Animating() bool

	// SetAnimating pauses or resumes animation. Paused scenes keep their elapsed time.
	//
	// Parameters:
	//   - animating: true to animate
	SetAnimating(animating bool)

	// Animate attaches an animation to a procedural primitive, replacing any previous one.
	//
	// Parameters:
	//   - global: the global primitive index
	//   - anim: the animation, nil to detach
	//
	// Returns:
	//   - error: a ValidationError if the index is out of range
	Animate(global int, anim Animation) error

	// HandleKey applies a key press: 1-7 select the render mode, R resets accumulation,
	// N toggles full-frame rendering and the camera keys move the camera. Releases are ignored.
	//
	// Parameters:
	//   - ev: the key event
	//
	// Returns:
	//   - bool: true if the key was consumed
	HandleKey(ev common.KeyEvent) bool

	// HandleMouse turns the camera while the primary button is dragged.
	//
	// Parameters:
	//   - ev: the mouse event
	HandleMouse(ev common.MouseEvent)

	// Update advances the scene by one frame: animations run on the worker pool, the camera
	// recomputes its matrices, the accumulated-frame counter advances or resets and new
	// random seeds are drawn.
	//
	// Parameters:
	//   - deltaTime: elapsed seconds since the previous frame
	//
	// Returns:
	//   - FrameUpdate: what changed
	//   - error: the first animation whose transform the store rejected; the frame does not
	//     advance
	Update(deltaTime float32) (FrameUpdate, error)

	// Constants returns the scene constants of one pass of the current frame.
	//
	// Parameters:
	//   - passIndex: the sub-pass index within the frame's mode
	//   - width, height: the output resolution
	//
	// Returns:
	//   - GPUSceneConstants: the constants
	Constants(passIndex uint32, width, height int) GPUSceneConstants
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.RWMutex

	name  string
	store geometry.Store
	tree  *csg.Tree
	cam   camera.Camera
	lt    light.Light

	mode            common.RenderMode
	renderFull      bool
	samplesPerPixel uint32

	accumulation  uint32
	resetPending  bool
	cameraVersion uint64
	frameNumber   uint32
	elapsed       float32
	animating     bool
	animations    map[int]Animation

	seed  int64
	rng   *rand.Rand
	seeds mgl32.Vec4

	// computePool runs the per-primitive transform prep of Update. Workers persist across frames.
	computePool    worker.DynamicWorkerPool
	computeWorkers int
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates a Scene over a primitive store. Without options the scene gets the
// default fly camera, the default light, the raytracing mode, full-frame rendering and
// DefaultSamplesPerPixel samples.
//
// Parameters:
//   - name: the name of the scene
//   - store: the primitive store (must not be nil)
//   - tree: the CSG tree, required when the store holds CSG primitives
//   - options: functional options to further configure the scene
//
// Returns:
//   - Scene: the newly created scene
//   - error: a ValidationError for a missing store or tree, an unknown mode or an
//     animation of an unknown primitive
func NewScene(name string, store geometry.Store, tree *csg.Tree, options ...SceneBuilderOption) (Scene, error) {
	if store == nil {
		return nil, common.NewValidationError("scene", "%s: a primitive store is required", name)
	}
	if tree == nil && store.Offsets().Count(common.IntersectionTypeCSG) > 0 {
		return nil, common.NewValidationError("scene", "%s: %d CSG primitives but no CSG tree", name, store.Offsets().Count(common.IntersectionTypeCSG))
	}

	s := &scene{
		mu:              &sync.RWMutex{},
		name:            name,
		store:           store,
		tree:            tree,
		mode:            common.RenderModeRaytracing,
		renderFull:      true,
		samplesPerPixel: DefaultSamplesPerPixel,
		animating:       true,
		animations:      make(map[int]Animation),
		seed:            time.Now().UnixNano(),
		computeWorkers:  max(runtime.NumCPU()-1, 1),
	}

	for _, option := range options {
		option(s)
	}

	if s.mode < 0 || s.mode >= common.RenderModeCount {
		return nil, common.NewValidationError("scene", "%s: unknown render mode %d", name, int(s.mode))
	}
	total := store.Offsets().Total()
	for global := range s.animations {
		if global < 0 || global >= total {
			return nil, common.NewValidationError("scene", "%s: animation of primitive %d out of range [0,%d)", name, global, total)
		}
	}
	if s.cam == nil {
		s.cam = camera.NewCamera(camera.WithController(camera.NewCameraController()))
	}
	if s.lt == nil {
		s.lt = light.NewLight()
	}
	s.cameraVersion = s.cam.Version()
	s.rng = rand.New(rand.NewSource(s.seed))
	s.drawSeeds()

	// Queue size of 256 accommodates typical animated primitive counts with headroom.
	s.computePool = worker.NewDynamicWorkerPool(s.computeWorkers, 256, 1*time.Second)

	logger.Infof("created scene %s: %d triangle and %d procedural primitives, %d CSG nodes",
		name, len(store.Triangles()), total, s.csgNodeCount())
	return s, nil
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) Store() geometry.Store {
	return s.store
}

func (s *scene) CSGTree() *csg.Tree {
	return s.tree
}

func (s *scene) Camera() camera.Camera {
	return s.cam
}

func (s *scene) Light() light.Light {
	return s.lt
}

func (s *scene) Mode() common.RenderMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

func (s *scene) SetMode(mode common.RenderMode) error {
	if mode < 0 || mode >= common.RenderModeCount {
		return common.NewValidationError("scene", "%s: unknown render mode %d", s.name, int(mode))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != mode {
		logger.Infof("%s: render mode %s", s.name, mode)
		s.mode = mode
		s.resetPending = true
	}
	return nil
}

func (s *scene) RenderFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.renderFull
}

func (s *scene) SetRenderFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderFull = full
}

func (s *scene) SamplesPerPixel() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samplesPerPixel
}

func (s *scene) Accumulation() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accumulation
}

func (s *scene) ResetAccumulation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetPending = true
}

func (s *scene) FrameNumber() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frameNumber
}

func (s *scene) ElapsedTime() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsed
}

func (s *scene) Animating() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.animating
}

func (s *scene) SetAnimating(animating bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.animating = animating
}

func (s *scene) Animate(global int, anim Animation) error {
	if total := s.store.Offsets().Total(); global < 0 || global >= total {
		return common.NewValidationError("scene", "%s: animation of primitive %d out of range [0,%d)", s.name, global, total)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if anim == nil {
		delete(s.animations, global)
		return nil
	}
	s.animations[global] = anim
	return nil
}

func (s *scene) HandleKey(ev common.KeyEvent) bool {
	if ev.Action == common.KeyRelease {
		return false
	}

	switch ev.Key {
	case common.Key1, common.Key2, common.Key3, common.Key4, common.Key5, common.Key6, common.Key7:
		return s.SetMode(common.RenderMode(ev.Key-common.Key1)) == nil
	case common.KeyR:
		s.ResetAccumulation()
		return true
	case common.KeyN:
		s.mu.Lock()
		s.renderFull = !s.renderFull
		s.mu.Unlock()
		return true
	}

	ctrl := s.cam.Controller()
	if ctrl == nil {
		return false
	}
	switch ev.Key {
	case common.KeyW, common.KeyA, common.KeyS, common.KeyD, common.KeyI, common.KeyO:
		ctrl.HandleKey(ev.Key)
		return true
	}
	return false
}

func (s *scene) HandleMouse(ev common.MouseEvent) {
	if !ev.Dragging {
		return
	}
	if ctrl := s.cam.Controller(); ctrl != nil {
		ctrl.Turn(ev.DeltaX, ev.DeltaY)
	}
}

// animate evaluates every animation at the current elapsed time on the worker pool and writes
// the new transform and attribute pair of each primitive into the store. The error is the one
// of the lowest animated primitive that failed.
// Caller must hold the write lock.
func (s *scene) animate() (bool, error) {
	if len(s.animations) == 0 {
		return false, nil
	}

	indices := make([]int, 0, len(s.animations))
	for global := range s.animations {
		indices = append(indices, global)
	}
	sort.Ints(indices)

	// A WaitGroup provides per-frame barrier sync since pool.Wait() blocks until
	// workers idle-exit which is unsuitable for frame-rate workloads.
	var wg sync.WaitGroup
	errs := make([]error, len(indices))
	elapsed := s.elapsed
	for taskID, global := range indices {
		anim := s.animations[global]
		wg.Add(1)
		s.computePool.SubmitTask(worker.Task{
			ID: taskID,
			Do: func() (any, error) {
				defer wg.Done()
				errs[taskID] = s.animatePrimitive(global, anim(elapsed))
				return nil, errs[taskID]
			},
		})
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return true, fmt.Errorf("%s: animate primitive %d: %w", s.name, indices[i], err)
		}
	}
	return true, nil
}

func (s *scene) animatePrimitive(global int, t geometry.Transform) error {
	prim, err := s.store.Primitive(global)
	if err != nil {
		return err
	}
	if err := s.store.SetTransform(global, t); err != nil {
		return err
	}
	prim.Transform = t
	return s.store.ApplyAttributes(global, geometry.Attributes(prim))
}

// drawSeeds draws the four per-frame random seeds. Caller must hold the write lock.
func (s *scene) drawSeeds() {
	s.seeds = mgl32.Vec4{s.rng.Float32(), s.rng.Float32(), s.rng.Float32(), s.rng.Float32()}
}

func (s *scene) csgNodeCount() int {
	if s.tree == nil {
		return 0
	}
	return s.tree.Len()
}

func (s *scene) Update(deltaTime float32) (FrameUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed bool
	if s.animating {
		s.elapsed += deltaTime
		s.lt.Orbit(deltaTime)
		var err error
		if changed, err = s.animate(); err != nil {
			return FrameUpdate{}, err
		}
	}

	s.cam.Update()
	version := s.cam.Version()
	moved := version != s.cameraVersion
	s.cameraVersion = version

	if moved || s.resetPending {
		s.accumulation = 0
		s.resetPending = false
	} else {
		s.accumulation++
	}
	s.frameNumber++
	s.drawSeeds()

	return FrameUpdate{
		FrameNumber:       s.frameNumber,
		TransformsChanged: changed,
		CameraMoved:       moved,
		Accumulation:      s.accumulation,
	}, nil
}

func (s *scene) Constants(passIndex uint32, width, height int) GPUSceneConstants {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var renderFull uint32
	if s.renderFull {
		renderFull = 1
	}
	return GPUSceneConstants{
		Camera:          s.cam.GPU(),
		Light:           s.lt.GPU(),
		RandomSeeds:     s.seeds,
		ElapsedTime:     s.elapsed,
		FrameNumber:     s.frameNumber,
		Accumulation:    s.accumulation,
		SamplesPerPixel: s.samplesPerPixel,
		Mode:            uint32(s.mode),
		CSGNodeCount:    uint32(s.csgNodeCount()),
		RenderFull:      renderFull,
		Resolution:      [2]uint32{uint32(width), uint32(height)},
		PassIndex:       passIndex,
	}
}
