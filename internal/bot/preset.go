package bot

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var builtinPresets []byte

// Preset is one named engine strength.
type Preset struct {
	Name       string `yaml:"name"`
	SkillLevel int    `yaml:"skill_level"`
	// Elo limits strength through UCI_Elo when positive.
	Elo            int `yaml:"elo"`
	Depth          int `yaml:"depth"`
	MoveTimeMillis int `yaml:"movetime_ms"`
	HashMB         int `yaml:"hash_mb"`
	Threads        int `yaml:"threads"`
}

// Presets is an ordered preset table with a default.
type Presets struct {
	Default string   `yaml:"default"`
	List    []Preset `yaml:"presets"`

	byName map[string]Preset
}

// DefaultPresets parses the embedded table.
func DefaultPresets() (*Presets, error) {
	return ParsePresets(builtinPresets)
}

func ParsePresets(raw []byte) (*Presets, error) {
	var p Presets
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if len(p.List) == 0 {
		return nil, fmt.Errorf("no presets defined")
	}
	p.byName = make(map[string]Preset, len(p.List))
	for i := range p.List {
		pr := &p.List[i]
		pr.Name = normalizeName(pr.Name)
		if err := pr.validate(); err != nil {
			return nil, err
		}
		if _, dup := p.byName[pr.Name]; dup {
			return nil, fmt.Errorf("duplicate preset %q", pr.Name)
		}
		p.byName[pr.Name] = *pr
	}
	p.Default = normalizeName(p.Default)
	if p.Default == "" {
		p.Default = p.List[0].Name
	}
	if _, ok := p.byName[p.Default]; !ok {
		return nil, fmt.Errorf("default preset %q is not defined", p.Default)
	}
	return &p, nil
}

func (pr Preset) validate() error {
	switch {
	case pr.Name == "":
		return fmt.Errorf("preset name required")
	case pr.SkillLevel < 0 || pr.SkillLevel > 20:
		return fmt.Errorf("preset %s: skill level %d out of range 0-20", pr.Name, pr.SkillLevel)
	case pr.Elo < 0:
		return fmt.Errorf("preset %s: elo must be >= 0: %d", pr.Name, pr.Elo)
	case pr.HashMB <= 0:
		return fmt.Errorf("preset %s: hash size must be > 0: %d", pr.Name, pr.HashMB)
	case pr.Threads < 0:
		return fmt.Errorf("preset %s: threads must be >= 0: %d", pr.Name, pr.Threads)
	case pr.Depth <= 0 && pr.MoveTimeMillis <= 0:
		return fmt.Errorf("preset %s does not define search limits", pr.Name)
	}
	return nil
}

// Lookup resolves name, falling back to the default preset for "".
func (p *Presets) Lookup(name string) (Preset, error) {
	n := normalizeName(name)
	if n == "" {
		n = p.Default
	}
	pr, ok := p.byName[n]
	if !ok {
		return Preset{}, fmt.Errorf("unknown difficulty: %s", name)
	}
	return pr, nil
}

// Names lists the preset names in table order.
func (p *Presets) Names() []string {
	out := make([]string, len(p.List))
	for i, pr := range p.List {
		out[i] = pr.Name
	}
	return out
}

func (pr Preset) options() Options {
	return Options{
		Threads:    pr.Threads,
		SkillLevel: pr.SkillLevel,
		HashMB:     pr.HashMB,
		Elo:        pr.Elo,
	}
}

func (pr Preset) limits() Limits {
	return Limits{Depth: pr.Depth, MoveTimeMillis: pr.MoveTimeMillis}
}

func normalizeName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
