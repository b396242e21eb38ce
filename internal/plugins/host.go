// Package plugins runs operator extensions written in Starlark.
//
// A plugin is a single *.star file:
//
//	ID = "sg-watch"
//	NAME = "Safeguard Watch"
//	VERSION = "1.0"
//	EVENTS = ["safeguard:inserted"]   # optional filter
//
//	def init():
//	    log("watching safeguards")
//
//	def on_event(type, payload):
//	    play("siren-low")
//
// Scripts see three builtins: log(msg), play(id) and theme(name).
package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/MRamiBalles/ChernOS/internal/events"
	"github.com/MRamiBalles/ChernOS/internal/platform/logger"
)

var (
	ErrInvalidPlugin   = errors.New("plugins: invalid plugin")
	ErrDuplicatePlugin = errors.New("plugins: duplicate plugin id")
)

// maxSteps bounds a single init or on_event call.
const maxSteps = 1_000_000

// Info describes a registered plugin.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type plugin struct {
	info    Info
	file    string
	onEvent starlark.Callable
	types   []events.EventType // nil = every type, empty = none
	busy    bool // set while on_event runs; events it publishes are not fed back
	detach  func()
}

// Host loads plugins and connects them to the bus.
type Host struct {
	mu      sync.Mutex
	plugins []*plugin
	bus     *events.Bus
	logger  *logger.Logger
}

// NewHost creates an empty host.
func NewHost(bus *events.Bus, log *logger.Logger) *Host {
	if log == nil {
		log = logger.NewNop()
	}
	return &Host{bus: bus, logger: log.Named("plugins")}
}

// LoadDir loads every *.star file in dir in name order. A missing directory
// is not an error. Broken plugins are skipped and reported together.
func (h *Host) LoadDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	var errs []error
	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := h.Load(f, src); err != nil {
			h.logger.Error("plugin failed to load", "file", f, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load executes a plugin script and registers it. Registration is announced
// before init() runs; an init failure is returned but the plugin stays registered.
func (h *Host) Load(filename string, src []byte) (Info, error) {
	thread := h.newThread(filename)
	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filename, src, h.builtins())
	if err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrInvalidPlugin, filename, err)
	}

	p := &plugin{file: filename}
	if p.info.ID, err = stringGlobal(globals, "ID"); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrInvalidPlugin, filename, err)
	}
	if p.info.Name, err = stringGlobal(globals, "NAME"); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrInvalidPlugin, filename, err)
	}
	if p.info.Version, err = stringGlobal(globals, "VERSION"); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrInvalidPlugin, filename, err)
	}
	if p.types, err = eventFilter(globals); err != nil {
		return Info{}, fmt.Errorf("%w: %s: %v", ErrInvalidPlugin, filename, err)
	}
	if fn, ok := globals["on_event"].(starlark.Callable); ok {
		p.onEvent = fn
	}

	h.mu.Lock()
	for _, existing := range h.plugins {
		if existing.info.ID == p.info.ID {
			h.mu.Unlock()
			return Info{}, fmt.Errorf("%w: %q", ErrDuplicatePlugin, p.info.ID)
		}
	}
	h.plugins = append(h.plugins, p)
	h.mu.Unlock()

	h.bus.Logf("Plugin registered: %s v%s", p.info.Name, p.info.Version)
	h.bus.Emit(events.PluginRegisteredPayload(p.info))
	h.logger.Event("PLUGIN_REGISTERED", p.info.ID, filename)

	if initFn, ok := globals["init"].(starlark.Callable); ok {
		if _, err := starlark.Call(h.newThread(filename), initFn, nil, nil); err != nil {
			return p.info, fmt.Errorf("plugin %s init: %w", p.info.ID, err)
		}
	}

	if p.onEvent != nil && (p.types == nil || len(p.types) > 0) {
		p.detach = h.bus.SubscribeTypes(h.dispatcher(p), p.types...)
	}
	return p.info, nil
}

func (h *Host) dispatcher(p *plugin) events.Handler {
	return func(e events.Event) error {
		if p.busy {
			return nil
		}
		payload, err := toStarlark(e.Payload)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p.info.ID, err)
		}

		p.busy = true
		defer func() { p.busy = false }()

		args := starlark.Tuple{starlark.String(e.Type), payload}
		if _, err := starlark.Call(h.newThread(p.file), p.onEvent, args, nil); err != nil {
			return fmt.Errorf("plugin %s: %w", p.info.ID, err)
		}
		return nil
	}
}

// Plugins lists the registered plugins in load order.
func (h *Host) Plugins() []Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Info, len(h.plugins))
	for i, p := range h.plugins {
		out[i] = p.info
	}
	return out
}

// Close detaches every plugin from the bus.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.plugins {
		if p.detach != nil {
			p.detach()
		}
	}
}

func (h *Host) newThread(name string) *starlark.Thread {
	t := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			h.logger.Info(msg, "plugin", name)
		},
	}
	t.SetMaxExecutionSteps(maxSteps)
	return t
}

func (h *Host) builtins() starlark.StringDict {
	return starlark.StringDict{
		"log": starlark.NewBuiltin("log", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var msg string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
				return nil, err
			}
			h.bus.LogLine(msg)
			return starlark.None, nil
		}),
		"play": starlark.NewBuiltin("play", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var id string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &id); err != nil {
				return nil, err
			}
			h.bus.Emit(events.AudioPlayPayload{ID: id})
			return starlark.None, nil
		}),
		"theme": starlark.NewBuiltin("theme", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
				return nil, err
			}
			h.bus.Emit(events.ThemeSetPayload{Theme: name})
			return starlark.None, nil
		}),
	}
}

func stringGlobal(globals starlark.StringDict, name string) (string, error) {
	v, ok := globals[name]
	if !ok {
		return "", fmt.Errorf("missing %s", name)
	}
	s, ok := starlark.AsString(v)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string, got %s", name, v.Type())
	}
	return s, nil
}

func eventFilter(globals starlark.StringDict) ([]events.EventType, error) {
	v, ok := globals["EVENTS"]
	if !ok {
		return nil, nil
	}
	seq, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("EVENTS must be a list, got %s", v.Type())
	}

	known := make(map[events.EventType]bool, len(events.AllTypes))
	for _, t := range events.AllTypes {
		known[t] = true
	}

	types := []events.EventType{}
	iter := seq.Iterate()
	defer iter.Done()
	var item starlark.Value
	for iter.Next(&item) {
		s, ok := starlark.AsString(item)
		if !ok || !known[events.EventType(s)] {
			return nil, fmt.Errorf("unknown event type %s", item)
		}
		types = append(types, events.EventType(s))
	}
	return types, nil
}

// toStarlark converts a payload through its JSON form, so scripts see the
// same field names as WebSocket clients.
func toStarlark(p events.Payload) (starlark.Value, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return jsonValue(v), nil
}

func jsonValue(v any) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(v)
	case string:
		return starlark.String(v)
	case float64:
		if v == float64(int64(v)) {
			return starlark.MakeInt64(int64(v))
		}
		return starlark.Float(v)
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			elems[i] = jsonValue(e)
		}
		return starlark.NewList(elems)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			d.SetKey(starlark.String(k), jsonValue(v[k]))
		}
		return d
	}
	return starlark.None
}
