// Package config loads the control room configuration from CUE files.
// Every field has a schema default, so an empty or missing file is a valid config.
package config

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// ErrInvalidConfig wraps schema and decoding failures.
var ErrInvalidConfig = errors.New("config: invalid configuration")

const schemaSrc = `
server: {
	addr:            string | *":8080"
	static_dir:      string | *""
	max_connections: int & >=0 | *256
}
storage: {
	path: string | *"data/chernos.db"
}
simulation: {
	frame_rate:      int & >0 & <=240 | *60
	seed:            int & >=0 | *0
	auto_faults:     bool | *false
	auto_fault_rate: number & >0 | *0.02
	network_mode:    "online" | "degraded" | "offline" | *"online"
	latches: {
		alpha: bool | *false
		beta:  bool | *false
		gamma: bool | *false
	}
}
hub: {
	profile:             "default" | "stress" | "low" | *"default"
	send_buffer:         int & >=0 | *0
	broadcast_buffer:    int & >=0 | *0
	command_interval_ms: int & >=0 | *0
}
log: {
	level:     "debug" | "info" | "warn" | "error" | *"info"
	json_file: string | *""
	journal:   bool | *false
}
audio: {
	enabled:     bool | *false
	sample_rate: int & >=8000 & <=192000 | *44100
}
plugins: {
	dir: string | *"plugins"
}
`

// Config is the decoded configuration.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Storage    StorageConfig    `json:"storage"`
	Simulation SimulationConfig `json:"simulation"`
	Hub        HubConfig        `json:"hub"`
	Log        LogConfig        `json:"log"`
	Audio      AudioConfig      `json:"audio"`
	Plugins    PluginsConfig    `json:"plugins"`
}

type ServerConfig struct {
	Addr           string `json:"addr"`
	StaticDir      string `json:"static_dir"`
	MaxConnections int    `json:"max_connections"` // 0 = unlimited
}

type StorageConfig struct {
	Path string `json:"path"`
}

type LatchConfig struct {
	Alpha bool `json:"alpha"`
	Beta  bool `json:"beta"`
	Gamma bool `json:"gamma"`
}

type SimulationConfig struct {
	FrameRate     int         `json:"frame_rate"`
	Seed          int64       `json:"seed"` // 0 = time-based
	AutoFaults    bool        `json:"auto_faults"`
	AutoFaultRate float64     `json:"auto_fault_rate"`
	NetworkMode   string      `json:"network_mode"`
	Latches       LatchConfig `json:"latches"`
}

type LogConfig struct {
	Level    string `json:"level"`
	JSONFile string `json:"json_file"`
	Journal  bool   `json:"journal"`
}

type AudioConfig struct {
	Enabled    bool `json:"enabled"`
	SampleRate int  `json:"sample_rate"`
}

type PluginsConfig struct {
	Dir string `json:"dir"`
}

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := LoadBytes("", nil)
	if err != nil {
		panic(fmt.Sprintf("config schema defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads a CUE file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadBytes("", nil)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return LoadBytes(path, content)
}

// LoadBytes validates CUE source against the schema and decodes it.
// filename is only used in error messages.
func LoadBytes(filename string, content []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString("close({" + schemaSrc + "})")
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("%w: schema: %v", ErrInvalidConfig, err)
	}

	value := schema
	if len(content) > 0 {
		file := ctx.CompileBytes(content, cue.Filename(filename))
		if err := file.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		value = schema.Unify(file)
	}

	if err := value.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := value.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidConfig, err)
	}
	return &cfg, nil
}

// Lookup decodes a single path from a CUE file, e.g. "simulation.frame_rate".
// Used by tools that only need one setting.
func Lookup(path, field string, target any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	ctx := cuecontext.New()
	value := ctx.CompileBytes(content, cue.Filename(path)).LookupPath(cue.ParsePath(field))
	if err := value.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, field, err)
	}
	return value.Decode(target)
}
