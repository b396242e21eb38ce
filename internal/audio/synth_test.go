package audio

import (
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/gopxl/beep"

	"github.com/MRamiBalles/ChernOS/internal/domain/reactor"
	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/infra/storage"
	"github.com/MRamiBalles/ChernOS/internal/plugins"
)

const testRate = 8000

func newTestSynth(bus *events.Bus) *Synth {
	return New(bus, nil, Options{
		SampleRate: testRate,
		Rand:       rand.New(rand.NewPCG(1, 2)),
	})
}

func peak(buf [][2]float64) float64 {
	var p float64
	for _, s := range buf {
		p = math.Max(p, math.Max(math.Abs(s[0]), math.Abs(s[1])))
	}
	return p
}

// TestOscillatorWaves verifies every wave stays within [-1, 1]
func TestOscillatorWaves(t *testing.T) {
	for _, w := range []Wave{WaveSine, WaveTriangle, WaveSquare, WaveSaw} {
		osc := NewOscillator(440, 0, w, beep.SampleRate(44100))
		samples := make([][2]float64, 200)
		n, ok := osc.Stream(samples)
		if !ok || n != 200 {
			t.Fatalf("wave %d: expected 200 samples, got %d ok=%v", w, n, ok)
		}
		for i := 0; i < n; i++ {
			if samples[i][0] < -1.0 || samples[i][0] > 1.0 {
				t.Errorf("wave %d: sample %d out of range: %f", w, i, samples[i][0])
			}
		}
	}
}

// TestOscillatorDuration verifies a finite oscillator ends
func TestOscillatorDuration(t *testing.T) {
	rate := beep.SampleRate(1000)
	osc := NewOscillator(100, 50*time.Millisecond, WaveSquare, rate)

	samples := make([][2]float64, 80)
	n, ok := osc.Stream(samples)
	if !ok || n != 50 {
		t.Errorf("Expected 50 samples, got %d ok=%v", n, ok)
	}
	if n, ok = osc.Stream(samples); ok || n != 0 {
		t.Errorf("Expected drained oscillator, got %d ok=%v", n, ok)
	}
}

func TestStartPlaysAmbience(t *testing.T) {
	s := newTestSynth(nil)
	s.Start()
	s.Start()

	if got := s.Active(); !slices.Equal(got, []string{SoundHum, SoundMusicAmbient}) {
		t.Fatalf("Expected hum and music, got %v", got)
	}

	buf := s.Render(testRate / 10)
	levels := storage.DefaultPreferences().Soundscape
	limit := levels.Master * (0.04*levels.Hum + 0.01*levels.Music)
	if p := peak(buf); p == 0 || p > limit+1e-9 {
		t.Errorf("Expected peak in (0, %f], got %f", limit, p)
	}
}

func TestSirenEndsOnItsOwn(t *testing.T) {
	s := newTestSynth(nil)
	s.Play(SoundSirenLow)

	if got := s.Active(); !slices.Equal(got, []string{SoundSirenLow}) {
		t.Fatalf("Expected siren, got %v", got)
	}

	s.Render(testRate * 2)
	if got := s.Active(); len(got) != 0 {
		t.Errorf("Expected siren to finish, still active: %v", got)
	}
}

func TestStopSilences(t *testing.T) {
	s := newTestSynth(nil)
	s.Play(SoundCoolant)
	s.Play(SoundSirenLow)
	s.Play(SoundSirenLow)

	s.Stop(SoundCoolant)
	s.Stop(SoundSirenLow)

	if got := s.Active(); len(got) != 0 {
		t.Errorf("Expected nothing active, got %v", got)
	}
	if p := peak(s.Render(256)); p != 0 {
		t.Errorf("Expected silence, got peak %f", p)
	}
}

func TestSoundscapeMuteAndRestore(t *testing.T) {
	s := newTestSynth(nil)
	s.Play(SoundHum)

	s.SetSoundscape(storage.Soundscape{Master: 0, Hum: 1, Alarms: 1, Music: 1})
	if p := peak(s.Render(testRate / 10)); p != 0 {
		t.Errorf("Expected silence at zero master, got %f", p)
	}

	s.SetSoundscape(storage.Soundscape{Master: 1, Hum: 1, Alarms: 1, Music: 1})
	if p := peak(s.Render(testRate / 10)); p < 0.035 || p > 0.04+1e-9 {
		t.Errorf("Expected hum peak near 0.04, got %f", p)
	}
}

func TestAttachReactsToBus(t *testing.T) {
	bus := events.NewBus(nil, nil)
	s := newTestSynth(bus)
	s.Attach()

	var lines []string
	bus.SubscribeTypes(func(e events.Event) error {
		lines = append(lines, e.Payload.(events.LogAppendPayload).Line)
		return nil
	}, events.EventTypeLogAppend)

	bus.Emit(events.FaultPayload{Kind: reactor.FaultGhost, Source: "operator"})
	bus.Emit(events.AudioPlayPayload{ID: SoundCoolant})
	bus.Emit(events.AudioPlayPayload{ID: "beep"})

	got := s.Active()
	for _, want := range []string{SoundCoolant, SoundSirenLow, "beep"} {
		if !slices.Contains(got, want) {
			t.Errorf("Expected %q active, got %v", want, got)
		}
	}
	if len(lines) != 1 || !strings.HasSuffix(lines[0], "audio test: playing pseudo-tone id=beep") {
		t.Errorf("Unexpected log lines %q", lines)
	}

	bus.Emit(events.AudioStopPayload{ID: SoundCoolant})
	if slices.Contains(s.Active(), SoundCoolant) {
		t.Error("Expected coolant stopped")
	}
}

// TestTestToneLogCanTriggerPlay runs a plugin that plays a sound for every
// log line, so announcing a test tone re-enters Play from the bus.
func TestTestToneLogCanTriggerPlay(t *testing.T) {
	bus := events.NewBus(nil, nil)
	s := newTestSynth(bus)
	s.Attach()

	host := plugins.NewHost(bus, nil)
	defer host.Close()
	const echo = `
ID = "log-echo"
NAME = "Log Echo"
VERSION = "1.0"
EVENTS = ["log:append"]

def on_event(type, payload):
    play("hum")
`
	if _, err := host.Load("log-echo.star", []byte(echo)); err != nil {
		t.Fatalf("Load: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Emit(events.AudioPlayPayload{ID: "tone"})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audio:play for a test tone did not return")
	}

	got := s.Active()
	for _, want := range []string{SoundHum, "tone"} {
		if !slices.Contains(got, want) {
			t.Errorf("Expected %q active, got %v", want, got)
		}
	}
}
