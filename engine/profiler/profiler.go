package profiler

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
	"github.com/Carmen-Shannon/oxy-rt/log"
)

var logger = log.New("profiler")

// StatsSource supplies the frame counters the profiler reports. frame.Orchestrator implements it.
type StatsSource interface {
	Stats() frame.Stats
}

// Profiler tracks frame rate, frame-graph counters and memory statistics for performance monitoring.
// Outputs stats to the log at a configurable interval.
type Profiler struct {
	source         StatsSource
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	lastLine       string
}

// NewProfiler creates a new Profiler reading the frame counters of source.
// Update interval defaults to 1 second.
//
// Parameters:
//   - source: the frame counter source, usually the frame orchestrator; may be nil
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(source StatsSource) *Profiler {
	return &Profiler{
		source:         source,
		frameCount:     0,
		lastTime:       time.Now(),
		updateInterval: time.Second,
		memStats:       runtime.MemStats{},
	}
}

// SetInterval changes how often Tick logs.
//
// Parameters:
//   - interval: the logging interval
func (p *Profiler) SetInterval(interval time.Duration) {
	p.updateInterval = interval
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, per-pass host time of the last frame, acceleration structure
// rebuilds and refits, device resets, heap usage, allocation rate and GC pauses.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed >= p.updateInterval {
		fps := float64(p.frameCount) / elapsed.Seconds()

		runtime.ReadMemStats(&p.memStats)
		// Alloc: Bytes of allocated heap objects (live memory)
		// Sys: Total bytes of memory obtained from the OS (actual process footprint)
		allocMB := float64(p.memStats.Alloc) / 1024 / 1024
		sysMB := float64(p.memStats.Sys) / 1024 / 1024

		allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
		allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

		gcCount := p.memStats.NumGC
		var lastPauseUs, maxPauseUs uint64
		if gcCount > 0 {
			// PauseNs is a circular buffer of last 256 GC pauses
			lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

			startIdx := p.lastGCCount
			if gcCount-startIdx > 256 {
				startIdx = gcCount - 256
			}
			for i := startIdx; i < gcCount; i++ {
				pause := p.memStats.PauseNs[i%256] / 1000
				if pause > maxPauseUs {
					maxPauseUs = pause
				}
			}
		}

		p.lastLine = fmt.Sprintf("FPS: %.2f%s | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
			fps, p.frameSummary(), allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)
		logger.Info(p.lastLine)

		p.frameCount = 0
		p.lastTime = currentTime
		p.lastGCCount = gcCount
		p.lastTotalAlloc = p.memStats.TotalAlloc
		return true
	}

	return false
}

// LastLine returns the most recent line Tick logged.
//
// Returns:
//   - string: the line, empty before the first report
func (p *Profiler) LastLine() string {
	return p.lastLine
}

func (p *Profiler) frameSummary() string {
	if p.source == nil {
		return ""
	}
	s := p.source.Stats()
	passes := make([]string, 0, len(s.Passes))
	for _, pass := range s.Passes {
		passes = append(passes, fmt.Sprintf("%s %s", pass.Pass, pass.Duration.Round(time.Microsecond)))
	}
	return fmt.Sprintf(" | Frame: %s [%s] | AS: %d rebuilds, %d refits | Resets: %d, dropped %d",
		s.LastFrame.Round(time.Microsecond), strings.Join(passes, ", "), s.Rebuilds, s.Refits, s.DeviceResets, s.DroppedFrames)
}
