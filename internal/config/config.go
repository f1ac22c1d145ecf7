package config

import (
	"os"
	"strconv"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Kit and samples
	KitPath   string
	SampleDir string

	// Output
	Output  string        // "oto" or "headless"
	Latency time.Duration // device buffer size

	// Loading
	LoadTimeout   time.Duration // per sample
	GlobalTimeout time.Duration // whole batch

	// Initial pattern globals, overridden by the kit
	Tempo    float64
	Swing    float64
	Drive    float64
	MasterDB float64
	AccentDB float64 // ghost-note offset applied to accented steps

	// Control surfaces
	MIDIIn string // input port name, empty disables MIDI
	TUI    bool

	LogFile string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("STEPSEQ_PORT", 8080),

		KitPath:   envStr("STEPSEQ_KIT", "kit.yaml"),
		SampleDir: envStr("STEPSEQ_SAMPLE_DIR", "samples"),

		Output:  envStr("STEPSEQ_OUTPUT", "oto"),
		Latency: envDuration("STEPSEQ_LATENCY_MS", 40*time.Millisecond),

		LoadTimeout:   envDuration("STEPSEQ_LOAD_TIMEOUT_MS", 2*time.Second),
		GlobalTimeout: envDuration("STEPSEQ_GLOBAL_TIMEOUT_MS", 20*time.Second),

		Tempo:    envFloat("STEPSEQ_TEMPO", 120),
		Swing:    envFloat("STEPSEQ_SWING", 0),
		Drive:    envFloat("STEPSEQ_DRIVE", 0),
		MasterDB: envFloat("STEPSEQ_MASTER_DB", 0),
		AccentDB: envFloat("STEPSEQ_ACCENT_DB", -7),

		MIDIIn: envStr("STEPSEQ_MIDI_IN", ""),
		TUI:    envBool("STEPSEQ_TUI", false),

		LogFile: envStr("STEPSEQ_LOG_FILE", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration reads a whole number of milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}
