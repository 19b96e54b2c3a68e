/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package quiz

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Count is a non-negative budget, or Unlimited.
type Count int

const Unlimited Count = -1

func (c Count) IsUnlimited() bool {
	return c < 0
}

func (c Count) String() string {
	if c.IsUnlimited() {
		return "unlimited"
	}
	return strconv.Itoa(int(c))
}

func (c Count) MarshalJSON() ([]byte, error) {
	if c.IsUnlimited() {
		return []byte(`"unlimited"`), nil
	}
	return []byte(strconv.Itoa(int(c))), nil
}

func (c *Count) UnmarshalJSON(data []byte) error {
	return c.parse(strings.Trim(string(data), `"`))
}

func (c *Count) UnmarshalYAML(node *yaml.Node) error {
	return c.parse(node.Value)
}

func (c *Count) parse(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unlimited", "infinity", "inf", "-1":
		*c = Unlimited
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("invalid count %q", s)
	}
	*c = Count(n)
	return nil
}

// Mode is one difficulty preset.
type Mode struct {
	Name           string                 `json:"name" yaml:"-"`
	Title          string                 `json:"title" yaml:"title"`
	Lives          Count                  `json:"lives" yaml:"lives"`
	ClipSeconds    int                    `json:"clip_seconds" yaml:"clip_seconds"`
	TimeoutSeconds int                    `json:"timeout_seconds" yaml:"timeout_seconds"`
	Lifelines      map[LifelineKind]Count `json:"lifelines" yaml:"lifelines"`
}

func (m Mode) validate() error {
	if m.Lives == 0 {
		return errors.New("lives must be positive or unlimited")
	}
	if m.ClipSeconds < 1 {
		return fmt.Errorf("clip duration must be at least 1 second, got %d", m.ClipSeconds)
	}
	if m.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", m.TimeoutSeconds)
	}
	for kind := range m.Lifelines {
		if _, ok := ParseLifelineKind(string(kind)); !ok {
			return fmt.Errorf("unknown lifeline %q", kind)
		}
	}
	return nil
}

func oneOfEach(total Count) map[LifelineKind]Count {
	m := make(map[LifelineKind]Count, len(LifelineKinds))
	for _, kind := range LifelineKinds {
		m[kind] = total
	}
	return m
}

// DefaultModes returns the built-in presets keyed by name.
func DefaultModes() map[string]Mode {
	trivial := oneOfEach(Unlimited)
	trivial[LifelineTime] = 0

	suddenDeath := oneOfEach(1)
	suddenDeath[LifelineTime] = 0

	return map[string]Mode{
		"trivial": {
			Name:           "trivial",
			Title:          "Trivial",
			Lives:          Unlimited,
			ClipSeconds:    20,
			TimeoutSeconds: 0,
			Lifelines:      trivial,
		},
		"default": {
			Name:           "default",
			Title:          "Default",
			Lives:          Unlimited,
			ClipSeconds:    20,
			TimeoutSeconds: 60,
			Lifelines:      oneOfEach(1),
		},
		"intense": {
			Name:           "intense",
			Title:          "Intense",
			Lives:          3,
			ClipSeconds:    10,
			TimeoutSeconds: 20,
			Lifelines:      oneOfEach(1),
		},
		"suddendeath": {
			Name:           "suddendeath",
			Title:          "Sudden Death",
			Lives:          1,
			ClipSeconds:    10,
			TimeoutSeconds: 0,
			Lifelines:      suddenDeath,
		},
	}
}

// LoadModes returns the built-in presets overlaid with the modes defined in
// the YAML file at path. An empty path yields the built-in presets.
func LoadModes(path string) (map[string]Mode, error) {
	modes := DefaultModes()
	if path == "" {
		return modes, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read modes file %q: %w", path, err)
	}

	return ParseModes(modes, data)
}

// ParseModes decodes a YAML mapping of mode name to Mode on top of base.
// Lifelines missing from an override inherit the base mode's allowance.
func ParseModes(base map[string]Mode, data []byte) (map[string]Mode, error) {
	var overrides map[string]Mode
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal modes: %w", err)
	}

	for name, m := range overrides {
		m.Name = name
		if m.Title == "" {
			m.Title = name
		}

		if prev, ok := base[name]; ok {
			merged := make(map[LifelineKind]Count, len(LifelineKinds))
			for k, v := range prev.Lifelines {
				merged[k] = v
			}
			for k, v := range m.Lifelines {
				merged[k] = v
			}
			m.Lifelines = merged
		}

		if err := m.validate(); err != nil {
			return nil, fmt.Errorf("mode %q: %w", name, err)
		}
		base[name] = m
	}

	return base, nil
}
