package profiler

import (
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/engine/frame"
)

type fixedStats frame.Stats

func (f fixedStats) Stats() frame.Stats {
	return frame.Stats(f)
}

func TestTick(t *testing.T) {
	p := NewProfiler(fixedStats{
		Rebuilds:     2,
		Refits:       5,
		DeviceResets: 1,
		Passes:       []frame.PassTiming{{Pass: "photon-mapping", Duration: time.Millisecond}},
	})

	if p.Tick() {
		t.Fatal("Tick logged before the interval elapsed")
	}
	p.SetInterval(0)
	if !p.Tick() {
		t.Fatal("Tick did not log after the interval elapsed")
	}
	for _, want := range []string{"2 rebuilds", "5 refits", "Resets: 1", "photon-mapping 1ms"} {
		if !strings.Contains(p.LastLine(), want) {
			t.Errorf("LastLine() = %q, missing %q", p.LastLine(), want)
		}
	}
}

func TestTickWithoutSource(t *testing.T) {
	p := NewProfiler(nil)
	p.SetInterval(0)
	if !p.Tick() || strings.Contains(p.LastLine(), "Frame:") {
		t.Errorf("LastLine() = %q", p.LastLine())
	}
}
