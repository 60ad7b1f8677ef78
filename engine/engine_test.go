package engine

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/Carmen-Shannon/oxy-rt/examples"
)

func newOrchestrator(t *testing.T) frame.Orchestrator {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithShaderCompiler(nil), renderer.WithResolution(4, 4))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	sc, err := examples.CoffeeMug(scene.WithComputeWorkers(1), scene.WithSeed(1))
	if err != nil {
		t.Fatalf("CoffeeMug: %v", err)
	}
	o, err := frame.NewOrchestrator(r, sc, frame.WithPhotonCapacity(64))
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func TestNewEngineRequiresOrchestrator(t *testing.T) {
	_, err := NewEngine()
	var verr *common.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("NewEngine() error = %v, want a ValidationError", err)
	}
}

func TestRunHeadless(t *testing.T) {
	o := newOrchestrator(t)
	rendered := 0
	e, err := NewEngine(WithOrchestrator(o), WithMaxFrames(3))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.SetRenderCallback(func(float32) { rendered++ })

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Frames() != 3 || rendered != 3 {
		t.Errorf("Frames() = %d, render callbacks = %d, want 3", e.Frames(), rendered)
	}
	if got := o.Stats().Frames; got != 3 {
		t.Errorf("orchestrator frames = %d, want 3", got)
	}
	// Quit after Run returned is a no-op.
	e.Quit()
}

func TestResizeAppliedByRenderLoop(t *testing.T) {
	o := newOrchestrator(t)
	e, err := NewEngine(WithOrchestrator(o), WithMaxFrames(1))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	impl := e.(*engine)
	impl.queueResize(2, 2)
	impl.queueResize(8, 6)

	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w, h := o.Renderer().Resolution(); w != 8 || h != 6 {
		t.Errorf("Resolution() = %dx%d, want 8x6", w, h)
	}
}

func TestSetRenderFrameLimit(t *testing.T) {
	e := &engine{}
	e.SetRenderFrameLimit(0)
	if e.renderFrameLimit != 0 {
		t.Errorf("limit = %v, want uncapped", e.renderFrameLimit)
	}
	e.SetRenderFrameLimit(100)
	if e.renderFrameLimit.Milliseconds() != 10 {
		t.Errorf("limit = %v, want 10ms", e.renderFrameLimit)
	}
}

func TestTickCallbackRunsWhileRendering(t *testing.T) {
	o := newOrchestrator(t)
	e, err := NewEngine(WithOrchestrator(o), WithMaxFrames(20), WithRenderFrameLimit(100), WithTickRate(200))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	impl := e.(*engine)
	if impl.engineTickRate != 5*time.Millisecond {
		t.Errorf("tick rate = %v, want 5ms", impl.engineTickRate)
	}

	var ticks atomic.Int32
	e.SetTickCallback(func(float32) {
		_ = o.Stats()
		ticks.Add(1)
	})
	if err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ticks.Load() == 0 {
		t.Error("tick callback never ran during a 200ms render")
	}
}
