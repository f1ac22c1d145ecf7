package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/satindergrewal/stepseq/internal/loader"
	"github.com/satindergrewal/stepseq/internal/pattern"
)

// ErrInvalidKit is returned for kit files that cannot be applied.
var ErrInvalidKit = errors.New("invalid kit")

// Kit maps tracks to sample references and optionally carries a starting
// pattern.
//
//	name: 808
//	tracks:
//	  kick: kick.wav
//	  snare: https://example.com/snare.wav
//	pattern:
//	  tempo: 96
//	  tracks:
//	    kick:  {steps: "x...x...x...x..."}
//	    snare: {steps: "....x.......x...", accents: "............x..."}
type Kit struct {
	Name    string            `yaml:"name"`
	Tracks  map[string]string `yaml:"tracks"`
	Pattern *KitPattern       `yaml:"pattern,omitempty"`
}

// KitPattern is the starting pattern of a kit. Unset globals keep the
// configured defaults.
type KitPattern struct {
	Tempo    *float64            `yaml:"tempo,omitempty"`
	Swing    *float64            `yaml:"swing,omitempty"`
	Drive    *float64            `yaml:"drive,omitempty"`
	MasterDB *float64            `yaml:"master_db,omitempty"`
	Tracks   map[string]KitTrack `yaml:"tracks"`
}

// KitTrack is one row of a kit pattern.
type KitTrack struct {
	Steps    string  `yaml:"steps"`
	Accents  string  `yaml:"accents,omitempty"`
	VolumeDB float64 `yaml:"volume_db,omitempty"`
	Pitch    int     `yaml:"pitch,omitempty"`
	Mute     bool    `yaml:"mute,omitempty"`
	Solo     bool    `yaml:"solo,omitempty"`
}

// LoadKit reads and parses a kit file.
func LoadKit(path string) (*Kit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kit: %w", err)
	}
	k, err := ParseKit(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

// ParseKit parses kit YAML and checks every track name and step string.
func ParseKit(data []byte) (*Kit, error) {
	var k Kit
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKit, err)
	}
	for name := range k.Tracks {
		if _, err := pattern.ParseTrackID(name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKit, err)
		}
	}
	if k.Pattern != nil {
		for name, t := range k.Pattern.Tracks {
			if _, err := pattern.ParseTrackID(name); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidKit, err)
			}
			if _, err := ParseSteps(t.Steps); err != nil {
				return nil, fmt.Errorf("%w: %s steps: %v", ErrInvalidKit, name, err)
			}
			if t.Accents != "" {
				if _, err := ParseSteps(t.Accents); err != nil {
					return nil, fmt.Errorf("%w: %s accents: %v", ErrInvalidKit, name, err)
				}
			}
		}
	}
	return &k, nil
}

// Refs returns the sample reference of every track named in the kit.
func (k *Kit) Refs() map[pattern.TrackID]loader.ResourceRef {
	refs := make(map[pattern.TrackID]loader.ResourceRef, len(k.Tracks))
	for name, ref := range k.Tracks {
		id, err := pattern.ParseTrackID(name)
		if err != nil {
			continue
		}
		refs[id] = loader.ResourceRef(ref)
	}
	return refs
}

// StartingPattern builds the initial pattern from cfg's globals overlaid with
// the kit's pattern section.
func (k *Kit) StartingPattern(cfg Config) (pattern.Pattern, error) {
	p := pattern.New()
	p.Tempo = cfg.Tempo
	p.Swing = cfg.Swing
	p.Drive = cfg.Drive
	p.MasterDB = cfg.MasterDB
	if k == nil || k.Pattern == nil {
		return p, p.Validate()
	}

	kp := k.Pattern
	if kp.Tempo != nil {
		p.Tempo = *kp.Tempo
	}
	if kp.Swing != nil {
		p.Swing = *kp.Swing
	}
	if kp.Drive != nil {
		p.Drive = *kp.Drive
	}
	if kp.MasterDB != nil {
		p.MasterDB = *kp.MasterDB
	}
	for name, t := range kp.Tracks {
		id, err := pattern.ParseTrackID(name)
		if err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidKit, err)
		}
		row := &p.Tracks[id]
		if row.Steps, err = ParseSteps(t.Steps); err != nil {
			return p, fmt.Errorf("%w: %s steps: %v", ErrInvalidKit, name, err)
		}
		if t.Accents != "" {
			if row.Accents, err = ParseSteps(t.Accents); err != nil {
				return p, fmt.Errorf("%w: %s accents: %v", ErrInvalidKit, name, err)
			}
		}
		row.VolumeDB = t.VolumeDB
		row.Pitch = t.Pitch
		row.Mute = t.Mute
		row.Solo = t.Solo
	}
	return p, p.Validate()
}

// ParseSteps reads a 16-step grid string. "x", "X" and "1" are on; ".", "-"
// and "0" are off; spaces and "|" are ignored. An empty string is all off.
func ParseSteps(s string) ([]bool, error) {
	steps := make([]bool, 0, pattern.NumSteps)
	for _, r := range s {
		switch r {
		case 'x', 'X', '1':
			steps = append(steps, true)
		case '.', '-', '0':
			steps = append(steps, false)
		case ' ', '|':
		default:
			return nil, fmt.Errorf("unexpected %q", r)
		}
	}
	if len(steps) == 0 {
		return make([]bool, pattern.NumSteps), nil
	}
	if len(steps) != pattern.NumSteps {
		return nil, fmt.Errorf("%d steps, want %d", len(steps), pattern.NumSteps)
	}
	return steps, nil
}
