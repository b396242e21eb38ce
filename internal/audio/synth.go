// Package audio synthesizes the control room soundscape: the reactor hum,
// coolant pumps, alarm sirens and operator test tones.
package audio

import (
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/speaker"

	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/infra/storage"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
)

// Well-known sound ids. Anything else plays a test tone.
const (
	SoundHum          = "hum"
	SoundCoolant      = "coolant"
	SoundSirenLow     = "siren-low"
	SoundMusicAmbient = "music-ambient"
)

const (
	DefaultSampleRate = 44100

	sirenDuration    = 1200 * time.Millisecond
	testToneDuration = 800 * time.Millisecond
)

// group selects which soundscape level scales a voice.
type group int

const (
	groupMaster group = iota
	groupHum
	groupAlarms
	groupMusic
)

type voice struct {
	id     string
	group  group
	gain   float64
	ctrl   *beep.Ctrl
	volume *effects.Volume
	done   atomic.Bool // set from the mixer when a one-shot ends
}

// Options configures a Synth.
type Options struct {
	SampleRate int
	Soundscape storage.Soundscape
	Rand       *rand.Rand
}

// Synth mixes every active voice into one stream.
type Synth struct {
	mu       sync.Mutex
	rate     beep.SampleRate
	mixer    *beep.Mixer
	loops    map[string]*voice // hum, coolant, music-ambient
	oneShots []*voice
	levels   storage.Soundscape
	rng      *rand.Rand

	mixMu   sync.Mutex // guards the mixer when no speaker owns it
	speaker bool

	bus    *events.Bus
	logger *logger.Logger
}

// New creates a silent synth. Call EnableSpeaker to route it to the sound card.
func New(bus *events.Bus, log *logger.Logger, opts Options) *Synth {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if opts.Soundscape == (storage.Soundscape{}) {
		opts.Soundscape = storage.DefaultPreferences().Soundscape
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Synth{
		rate:   beep.SampleRate(opts.SampleRate),
		mixer:  &beep.Mixer{},
		loops:  make(map[string]*voice),
		levels: opts.Soundscape,
		rng:    opts.Rand,
		bus:    bus,
		logger: log.Named("audio"),
	}
}

// EnableSpeaker initializes the speaker and starts playing the mixer.
func (s *Synth) EnableSpeaker() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.speaker {
		return nil
	}
	if err := speaker.Init(s.rate, s.rate.N(time.Second/10)); err != nil {
		return err
	}
	speaker.Play(s.mixer)
	s.speaker = true
	return nil
}

// Close stops all sounds and releases the speaker.
func (s *Synth) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.withMixer(func() { s.mixer.Clear() })
	s.loops = make(map[string]*voice)
	s.oneShots = nil
	if s.speaker {
		speaker.Close()
		s.speaker = false
	}
}

// withMixer runs fn with exclusive access to the mixer. Caller holds s.mu.
func (s *Synth) withMixer(fn func()) {
	if s.speaker {
		speaker.Lock()
		defer speaker.Unlock()
	} else {
		s.mixMu.Lock()
		defer s.mixMu.Unlock()
	}
	fn()
}

// Start plays the ambience that is always on.
func (s *Synth) Start() {
	s.Play(SoundHum)
	s.Play(SoundMusicAmbient)
}

// Attach subscribes the synth to the bus. Faults and stage transitions sound the siren.
func (s *Synth) Attach() (detach func()) {
	return s.bus.SubscribeTypes(func(e events.Event) error {
		switch p := e.Payload.(type) {
		case events.AudioPlayPayload:
			s.Play(p.ID)
		case events.AudioStopPayload:
			s.Stop(p.ID)
		case events.FaultPayload, events.ReactorStagePayload:
			s.Play(SoundSirenLow)
		}
		return nil
	}, events.EventTypeAudioPlay, events.EventTypeAudioStop, events.EventTypeReactorFault, events.EventTypeReactorStage)
}

// Play starts a sound. Looping sounds already playing are left alone.
// The bus is only used after s.mu is released: log subscribers may publish
// audio:play and re-enter Play.
func (s *Synth) Play(id string) {
	if s.play(id) && s.bus != nil {
		s.bus.Logf("audio test: playing pseudo-tone id=%s", id)
	}
}

// play starts the voice and reports whether id was a test tone.
func (s *Synth) play(id string) (testTone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneOneShots()

	switch id {
	case SoundHum:
		s.startLoop(id, groupHum, 0.04, NewOscillator(50, 0, WaveSine, s.rate))
	case SoundCoolant:
		s.startLoop(id, groupHum, 0.03, NewOscillator(19, 0, WaveTriangle, s.rate))
	case SoundMusicAmbient:
		s.startLoop(id, groupMusic, 0.01, NewOscillator(220, 0, WaveTriangle, s.rate))
	case SoundSirenLow:
		s.startOneShot(id, groupAlarms, 0.08, NewOscillator(560, sirenDuration, WaveSaw, s.rate))
	default:
		freq := 300 + s.rng.Float64()*400
		s.startOneShot(id, groupMaster, 0.02, NewOscillator(freq, testToneDuration, WaveSquare, s.rate))
		return true
	}
	return false
}

func (s *Synth) startLoop(id string, g group, gain float64, src beep.Streamer) {
	if _, ok := s.loops[id]; ok {
		return
	}
	v := s.newVoice(id, g, gain, src)
	s.loops[id] = v
	s.withMixer(func() { s.mixer.Add(v.ctrl) })
}

func (s *Synth) startOneShot(id string, g group, gain float64, src beep.Streamer) {
	v := s.newVoice(id, g, gain, nil)
	v.volume.Streamer = beep.Seq(src, beep.Callback(func() { v.done.Store(true) }))
	s.oneShots = append(s.oneShots, v)
	s.withMixer(func() { s.mixer.Add(v.ctrl) })
}

func (s *Synth) newVoice(id string, g group, gain float64, src beep.Streamer) *voice {
	v := &voice{id: id, group: g, gain: gain}
	v.volume = newVolume(src, s.effectiveGain(g, gain))
	v.ctrl = &beep.Ctrl{Streamer: v.volume}
	return v
}

// Stop silences a sound. Stopping a one-shot id stops every instance of it.
func (s *Synth) Stop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.withMixer(func() {
		if v, ok := s.loops[id]; ok {
			v.ctrl.Paused = true
			v.ctrl.Streamer = nil // the mixer drops drained streamers
			delete(s.loops, id)
		}
		for _, v := range s.oneShots {
			if v.id == id {
				v.ctrl.Paused = true
				v.ctrl.Streamer = nil
				v.done.Store(true)
			}
		}
	})
	s.pruneOneShots()
}

func (s *Synth) pruneOneShots() {
	kept := s.oneShots[:0]
	for _, v := range s.oneShots {
		if !v.done.Load() {
			kept = append(kept, v)
		}
	}
	clear(s.oneShots[len(kept):])
	s.oneShots = kept
}

// Active returns the ids of sounds currently playing, sorted.
func (s *Synth) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneOneShots()
	ids := make([]string, 0, len(s.loops)+len(s.oneShots))
	for id := range s.loops {
		ids = append(ids, id)
	}
	for _, v := range s.oneShots {
		ids = append(ids, v.id)
	}
	sort.Strings(ids)
	return ids
}

// SetSoundscape changes the mixer levels of every voice.
func (s *Synth) SetSoundscape(levels storage.Soundscape) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.levels = levels
	s.withMixer(func() {
		for _, v := range s.loops {
			setGain(v.volume, s.effectiveGain(v.group, v.gain))
		}
		for _, v := range s.oneShots {
			setGain(v.volume, s.effectiveGain(v.group, v.gain))
		}
	})
}

func (s *Synth) effectiveGain(g group, gain float64) float64 {
	level := 1.0
	switch g {
	case groupHum:
		level = s.levels.Hum
	case groupAlarms:
		level = s.levels.Alarms
	case groupMusic:
		level = s.levels.Music
	}
	return gain * level * s.levels.Master
}

// Render pulls n frames from the mixer. Only valid without a speaker; used by
// tests and headless drills.
func (s *Synth) Render(n int) [][2]float64 {
	buf := make([][2]float64, n)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.speaker {
		return buf
	}
	s.withMixer(func() { s.mixer.Stream(buf) })
	return buf
}
