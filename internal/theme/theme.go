// Package theme holds the control room colour themes and the controller that
// switches between them.
package theme

import (
	"context"
	"strings"
	"sync"

	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/infra/storage"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
)

// Name identifies a theme.
type Name string

const (
	Green        Name = "green"
	Amber        Name = "amber"
	Redline      Name = "redline"
	BlackChamber Name = "blackchamber"
	Night        Name = "night"
)

// Names lists the themes in menu order.
var Names = []Name{Green, Amber, Redline, BlackChamber, Night}

// Palette is the pair of colours a display needs.
type Palette struct {
	Accent     string `json:"accent"`
	Background string `json:"background"`
}

var palettes = map[Name]Palette{
	Green:        {Accent: "#22c55e", Background: "#020806"},
	Amber:        {Accent: "#facc6b", Background: "#1a1208"},
	Redline:      {Accent: "#fb7185", Background: "#050009"},
	BlackChamber: {Accent: "#38bdf8", Background: "#020617"},
	Night:        {Accent: "#a5b4fc", Background: "#020617"},
}

// Parse resolves a theme name case-insensitively.
func Parse(s string) (Name, bool) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	_, ok := palettes[n]
	return n, ok
}

// Palette returns the colours of a theme. Unknown names get the green palette.
func (n Name) Palette() Palette {
	if p, ok := palettes[n]; ok {
		return p
	}
	return palettes[Green]
}

// Crisis thresholds for automatic escalation.
const (
	RedlineCrisis      = 7.0
	BlackChamberCrisis = 9.0
)

// Escalate returns the theme a crisis index forces, if any.
func Escalate(crisisIndex float64) (Name, bool) {
	switch {
	case crisisIndex >= BlackChamberCrisis:
		return BlackChamber, true
	case crisisIndex >= RedlineCrisis:
		return Redline, true
	}
	return "", false
}

// Controller tracks the current theme. It applies theme:set events and
// escalates on reactor updates; every switch is persisted.
type Controller struct {
	mu      sync.RWMutex
	current Name
	prefs   storage.PreferenceRepository
	bus     *events.Bus
	logger  *logger.Logger

	onChange []func(Name, Palette)
}

// NewController creates a controller starting from the stored preference.
// prefs may be nil, in which case nothing is persisted.
func NewController(ctx context.Context, bus *events.Bus, prefs storage.PreferenceRepository, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.NewNop()
	}
	c := &Controller{
		current: Green,
		prefs:   prefs,
		bus:     bus,
		logger:  log.Named("theme"),
	}
	if prefs != nil {
		p, err := prefs.Load(ctx)
		if err != nil {
			c.logger.Warn("failed to load theme preference", "error", err)
		}
		if n, ok := Parse(p.Theme); ok {
			c.current = n
		}
	}
	return c
}

// Current returns the active theme.
func (c *Controller) Current() Name {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// OnChange registers a callback run after every theme switch.
func (c *Controller) OnChange(fn func(Name, Palette)) {
	c.mu.Lock()
	c.onChange = append(c.onChange, fn)
	c.mu.Unlock()
}

// Set publishes a theme:set event. The controller itself reacts to it once attached.
func (c *Controller) Set(n Name) {
	c.bus.Emit(events.ThemeSetPayload{Theme: string(n)})
}

// Attach subscribes the controller to the bus.
func (c *Controller) Attach() (detach func()) {
	return c.bus.SubscribeTypes(c.handle, events.EventTypeThemeSet, events.EventTypeReactorUpdate)
}

func (c *Controller) handle(e events.Event) error {
	switch p := e.Payload.(type) {
	case events.ThemeSetPayload:
		n, ok := Parse(p.Theme)
		if !ok {
			return nil
		}
		c.apply(n)
		c.persist(n)
	case events.ReactorUpdatePayload:
		if n, ok := Escalate(p.CrisisIndex); ok && n != c.Current() {
			c.apply(n)
			c.persist(n)
		}
	}
	return nil
}

func (c *Controller) apply(n Name) {
	c.mu.Lock()
	if c.current == n {
		c.mu.Unlock()
		return
	}
	c.current = n
	callbacks := append(([]func(Name, Palette))(nil), c.onChange...)
	c.mu.Unlock()

	c.logger.Info("theme applied", "theme", string(n))
	for _, fn := range callbacks {
		fn(n, n.Palette())
	}
}

func (c *Controller) persist(n Name) {
	if c.prefs == nil {
		return
	}
	ctx := context.Background()
	p, err := c.prefs.Load(ctx)
	if err != nil {
		c.logger.Warn("failed to load preferences", "error", err)
	}
	if p.Theme == string(n) {
		return
	}
	p.Theme = string(n)
	if err := c.prefs.Save(ctx, p); err != nil {
		c.logger.Error("failed to persist theme", "error", err)
	}
}
