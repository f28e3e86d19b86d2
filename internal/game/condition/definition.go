// Package condition defines combat conditions (unconscious, dead, dazed) and
// tracks which of them are active on each combatant. Definitions load from
// YAML so deployments can tune or extend the built-in set.
package condition

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in condition IDs the engine itself applies.
const (
	Unconscious = "unconscious"
	Dead        = "dead"
	Dazed       = "dazed"
)

// ConditionDef is the static definition of a condition, loaded from YAML.
type ConditionDef struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	DurationType   string `yaml:"duration_type"`  // "rounds" | "permanent"
	MaxStacks      int    `yaml:"max_stacks"`     // 0 = unstackable
	Incapacitating bool   `yaml:"incapacitating"` // holder loses their turns entirely
	AttackPenalty  int    `yaml:"attack_penalty"` // per stack, subtracted from attack rolls
}

// Registry holds all known ConditionDefs keyed by ID.
type Registry struct {
	defs map[string]*ConditionDef
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*ConditionDef)}
}

// DefaultRegistry returns a Registry seeded with the conditions the engine
// applies on its own: unconscious and dead (both incapacitating) and dazed.
// Deployments that load a content directory get these overridden per file.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(&ConditionDef{
		ID:             Unconscious,
		Name:           "Unconscious",
		Description:    "Knocked out. No actions until the encounter ends.",
		DurationType:   "permanent",
		Incapacitating: true,
	})
	reg.Register(&ConditionDef{
		ID:             Dead,
		Name:           "Dead",
		Description:    "Out of the fight for good.",
		DurationType:   "permanent",
		Incapacitating: true,
	})
	reg.Register(&ConditionDef{
		ID:            Dazed,
		Name:          "Dazed",
		Description:   "Shaken by a heavy hit.",
		DurationType:  "rounds",
		MaxStacks:     3,
		AttackPenalty: 1,
	})
	return reg
}

// Register adds def to the registry, overwriting any existing entry with the same ID.
// Precondition: def must not be nil and def.ID must not be empty.
func (r *Registry) Register(def *ConditionDef) {
	r.defs[def.ID] = def
}

// Get returns the ConditionDef for id, or (nil, false) if not found.
func (r *Registry) Get(id string) (*ConditionDef, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// MustGet returns the ConditionDef for id and panics when it is missing.
// Intended for the built-in IDs every registry is expected to carry.
func (r *Registry) MustGet(id string) *ConditionDef {
	d, ok := r.defs[id]
	if !ok {
		panic("condition: unknown condition id " + id)
	}
	return d
}

// All returns a snapshot slice of all registered ConditionDefs.
func (r *Registry) All() []*ConditionDef {
	out := make([]*ConditionDef, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	return out
}

// LoadDirectory reads every *.yaml file in dir, parses each as a ConditionDef,
// and returns a Registry seeded with the defaults and overlaid with the files.
// Precondition: dir must be a readable directory.
// Postcondition: Returns a non-nil Registry, or an error if any file fails to parse.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading condition dir %q: %w", dir, err)
	}
	reg := DefaultRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var def ConditionDef
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		if def.ID == "" {
			return nil, fmt.Errorf("parsing %q: missing id", path)
		}
		reg.Register(&def)
	}
	return reg, nil
}
