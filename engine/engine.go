package engine

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
	"github.com/Carmen-Shannon/oxy-rt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-rt/engine/window"
	"github.com/Carmen-Shannon/oxy-rt/log"
)

var logger = log.New("engine")

type resize struct {
	width, height int
}

// engine implements the Engine interface.
// Coordinates the tick, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates
	resizeChannel   chan resize        // Latest pending resize, consumed by the render loop

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window       window.Window
	orchestrator frame.Orchestrator

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	maxFrames        uint64        // frames to render before quitting; 0 = until the window closes

	mu     sync.Mutex
	frames uint64
	err    error
}

// Engine is the main entry point for the engine.
// It owns the tick loop, the render loop that drives the frame orchestrator, and the window.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance, nil when running headless
	Window() window.Window

	// Orchestrator returns the frame orchestrator the render loop drives.
	//
	// Returns:
	//   - frame.Orchestrator: the orchestrator
	Orchestrator() frame.Orchestrator

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// The callback runs on the tick goroutine, concurrently with the render loop: it may read
	// orchestrator statistics and scene state but must not record GPU work.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Frames returns the number of frames the render loop completed.
	//
	// Returns:
	//   - uint64: the frame count
	Frames() uint64

	// Run starts the engine. With a window it blocks until the window closes; headless it
	// renders until the frame limit is reached or Quit is called.
	//
	// Returns:
	//   - error: the error that stopped the render loop, nil after a normal shutdown
	Run() error

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Window key and mouse events are routed to the orchestrator's scene; window resizes are
// handed to the render loop.
//
// Parameters:
//   - options: functional options for engine configuration (orchestrator, window, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: a ValidationError if no orchestrator was given
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel:  make(chan time.Duration, 1),
		resizeChannel:    make(chan resize, 1),
		quitChannel:      make(chan struct{}),
		running:          false,
		wg:               sync.WaitGroup{},
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.orchestrator == nil {
		return nil, common.NewValidationError("engine", "a frame orchestrator is required")
	}
	e.profiler = profiler.NewProfiler(e.orchestrator)

	if e.window != nil {
		sc := e.orchestrator.Scene()
		e.window.SetKeyCallback(func(ev common.KeyEvent) {
			sc.HandleKey(ev)
		})
		e.window.SetMouseCallback(func(ev common.MouseEvent) {
			sc.HandleMouse(ev)
		})
		e.window.SetResizeCallback(func(width, height int) {
			e.queueResize(width, height)
		})
		e.window.SetUpdateCallback(func() {
			select {
			case <-e.quitChannel:
				if e.window.IsRunning() {
					_ = e.window.Close()
				}
			default:
			}
		})
	}

	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Orchestrator() frame.Orchestrator {
	return e.orchestrator
}

func (e *engine) Run() error {
	e.running = true
	e.handle()

	if e.window != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.handleRender()
		}()
		e.window.ProcessMessages()
	} else {
		e.handleRender()
	}
	e.signalQuit()
	e.wg.Wait()

	if err := e.orchestrator.WaitIdle(); err != nil {
		logger.Warningf("frames in flight did not complete: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Infof("engine stopped after %d frames", e.frames)
	return e.err
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the tick and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()
}

// queueResize replaces any resize the render loop has not consumed yet.
func (e *engine) queueResize(width, height int) {
	r := resize{width: width, height: height}
	select {
	case e.resizeChannel <- r:
	default:
		select {
		case <-e.resizeChannel:
		default:
		}
		e.resizeChannel <- r
	}
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// stop records the error that ended the render loop and signals quit.
func (e *engine) stop(err error) {
	e.mu.Lock()
	if e.err == nil {
		e.err = err
	}
	e.mu.Unlock()
	e.signalQuit()
}

// handleRender runs the uncapped (or frame-limited) render loop. It is the only goroutine
// that records GPU work: pending resizes are applied here before the next frame.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("render loop recovered from panic: %v", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case r := <-e.resizeChannel:
			if err := e.orchestrator.Resize(r.width, r.height); err != nil {
				logger.Errorf("resize to %dx%d: %v", r.width, r.height, err)
				e.stop(err)
				return
			}
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			if err := e.orchestrator.RenderFrame(dt); err != nil {
				logger.Errorf("render frame: %v", err)
				e.stop(err)
				return
			}

			e.mu.Lock()
			e.frames++
			done := e.maxFrames > 0 && e.frames >= e.maxFrames
			e.mu.Unlock()

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			if e.profilingEnabled && e.profiler != nil {
				e.profiler.Tick()
			}

			if done {
				e.signalQuit()
				return
			}

			// Frame rate limiting
			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Second / time.Duration(fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Second / time.Duration(fps)
}

func (e *engine) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}
