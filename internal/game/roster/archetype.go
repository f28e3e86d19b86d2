// Package roster provides fighter archetypes loaded from YAML and a stats
// provider that assigns them to actors entering combat.
package roster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/skirmish/internal/game/dice"
)

// Archetype defines a reusable fighter build loaded from YAML. HPDice is
// the dice expression rolled for max hit points, e.g. "2d8+4"; an
// ArmorClass of 0 derives 10 + DEX modifier.
type Archetype struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	HPDice      string   `yaml:"hp_dice"`
	Dexterity   int      `yaml:"dexterity"`
	ArmorClass  int      `yaml:"armor_class"`
	Taunts      []string `yaml:"taunts"`

	hpExpr dice.Expression
}

// Validate checks that the archetype satisfies basic invariants and caches
// the parsed hit point expression.
//
// Precondition: a must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, HPDice parses,
// Dexterity is in [1, 30], and ArmorClass is 0 or >= 10.
func (a *Archetype) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("archetype: id must not be empty")
	}
	if a.Name == "" {
		return fmt.Errorf("archetype %q: name must not be empty", a.ID)
	}
	expr, err := dice.Parse(a.HPDice)
	if err != nil {
		return fmt.Errorf("archetype %q: hp_dice: %w", a.ID, err)
	}
	a.hpExpr = expr
	if a.Dexterity < 1 || a.Dexterity > 30 {
		return fmt.Errorf("archetype %q: dexterity %d must be in [1, 30]", a.ID, a.Dexterity)
	}
	if a.ArmorClass != 0 && a.ArmorClass < 10 {
		return fmt.Errorf("archetype %q: armor_class must be 0 (derived) or >= 10", a.ID)
	}
	return nil
}

// HPExpression returns the parsed hit point expression.
//
// Precondition: Validate must have succeeded.
func (a *Archetype) HPExpression() dice.Expression {
	return a.hpExpr
}

// LoadArchetypeFromBytes parses a single archetype from raw YAML bytes.
func LoadArchetypeFromBytes(data []byte) (*Archetype, error) {
	var a Archetype
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("parsing archetype YAML: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadArchetypes reads all *.yaml files in dir and returns the parsed
// archetypes.
//
// Postcondition: Returns all archetypes or an error on the first parse or
// validate failure; on error, the partial result is discarded.
func LoadArchetypes(dir string) ([]*Archetype, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading archetype dir %q: %w", dir, err)
	}

	var archetypes []*Archetype
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		a, err := LoadArchetypeFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		archetypes = append(archetypes, a)
	}
	return archetypes, nil
}
