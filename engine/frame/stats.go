package frame

import (
	"time"
)

// PassTiming is the host time spent recording one pass of the last frame.
type PassTiming struct {
	Pass     string
	Duration time.Duration
}

// Stats are the counters of an Orchestrator.
type Stats struct {
	// Frames counts presented frames.
	Frames uint64

	// DroppedFrames counts frames abandoned because the device was lost.
	DroppedFrames uint64

	// DeviceResets counts device recreations.
	DeviceResets int

	// Rebuilds and Refits count top-level acceleration structure builds by kind.
	Rebuilds int
	Refits   int

	// Rebinds counts descriptor table revalidations against a different root signature.
	Rebinds int

	// LastFrame is the host time of the last presented frame.
	LastFrame time.Duration

	// Passes are the per-pass timings of the last presented frame in execution order.
	Passes []PassTiming
}

// passClock collects the pass timings of one frame.
type passClock struct {
	passes []PassTiming
	start  time.Time
}

func (c *passClock) begin() {
	c.start = time.Now()
}

func (c *passClock) end(pass string) {
	c.passes = append(c.passes, PassTiming{Pass: pass, Duration: time.Since(c.start)})
}

func (c *passClock) reset() {
	c.passes = nil
}
