// Package catalog holds the static set of cultural objects known to the guide.
// The catalog is compiled into the binary and never changes after load.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"heritage-guide/internal/domain"
)

//go:embed catalog.yaml
var embedded []byte

// CategoryAll is the pseudo-category that selects every object.
const CategoryAll = "all"

var categories = []string{"batik", "weapon", "clothing", "artifact", "instrument"}

// Localized is a text field in both supported locales.
type Localized struct {
	EN string `yaml:"en" json:"en"`
	ID string `yaml:"id" json:"id"`
}

// Get returns the text for the locale.
func (l Localized) Get(loc domain.Locale) string {
	if loc == domain.LocaleID {
		return l.ID
	}
	return l.EN
}

// Object is a single cultural object.
type Object struct {
	ID              string    `yaml:"id" json:"id"`
	Category        string    `yaml:"category" json:"category"`
	Name            Localized `yaml:"name" json:"name"`
	Description     Localized `yaml:"description" json:"description"`
	History         Localized `yaml:"history" json:"history"`
	Philosophy      Localized `yaml:"philosophy" json:"philosophy"`
	CulturalMeaning Localized `yaml:"cultural_meaning" json:"culturalMeaning"`
	Origin          Localized `yaml:"origin" json:"origin"`
	VisualCue       string    `yaml:"visual_cue" json:"-"`
	Image           string    `yaml:"image" json:"image,omitempty"`
	ModelURL        string    `yaml:"model_url" json:"modelUrl,omitempty"`
}

// Catalog is an immutable, ordered list of objects. Safe for concurrent use.
type Catalog struct {
	objects []Object
	byID    map[string]int
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := Load(embedded)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog is invalid: %v", err))
	}
	return c
})

// Default returns the catalog compiled into the binary.
func Default() *Catalog {
	return defaultCatalog()
}

// Load parses a YAML catalog and checks its invariants.
func Load(data []byte) (*Catalog, error) {
	var objects []Object
	if err := yaml.Unmarshal(data, &objects); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(objects) == 0 {
		return nil, errors.New("catalog: no objects")
	}

	c := &Catalog{objects: objects, byID: make(map[string]int, len(objects))}
	for i, o := range objects {
		if err := validate(o); err != nil {
			return nil, err
		}
		if _, dup := c.byID[o.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate id %q", o.ID)
		}
		c.byID[o.ID] = i
	}
	return c, nil
}

func validate(o Object) error {
	if strings.TrimSpace(o.ID) == "" {
		return errors.New("catalog: object without id")
	}
	if !isCategory(o.Category) {
		return fmt.Errorf("catalog: %s: unknown category %q", o.ID, o.Category)
	}
	fields := map[string]Localized{
		"name":             o.Name,
		"description":      o.Description,
		"history":          o.History,
		"philosophy":       o.Philosophy,
		"cultural_meaning": o.CulturalMeaning,
		"origin":           o.Origin,
	}
	for field, text := range fields {
		if strings.TrimSpace(text.EN) == "" || strings.TrimSpace(text.ID) == "" {
			return fmt.Errorf("catalog: %s: %s must be set for both locales", o.ID, field)
		}
	}
	return nil
}

func isCategory(s string) bool {
	for _, c := range categories {
		if c == s {
			return true
		}
	}
	return false
}

// All returns every object in catalog order.
func (c *Catalog) All() []Object {
	out := make([]Object, len(c.objects))
	copy(out, c.objects)
	return out
}

// ByID looks up an object by its exact id.
func (c *Catalog) ByID(id string) (Object, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Object{}, false
	}
	return c.objects[i], true
}

// ByCategory returns the objects in a category, or all of them for CategoryAll.
func (c *Catalog) ByCategory(category string) []Object {
	if category == CategoryAll {
		return c.All()
	}
	var out []Object
	for _, o := range c.objects {
		if o.Category == category {
			out = append(out, o)
		}
	}
	return out
}

// Categories lists CategoryAll followed by the fixed categories.
func Categories() []string {
	return append([]string{CategoryAll}, categories...)
}

// MatchName finds the first object whose name in either locale contains the
// given name, or is contained in it, ignoring case. Blank names never match.
func (c *Catalog) MatchName(name string) (Object, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return Object{}, false
	}
	for _, o := range c.objects {
		for _, n := range []string{o.Name.EN, o.Name.ID} {
			hay := strings.ToLower(n)
			if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
				return o, true
			}
		}
	}
	return Object{}, false
}
