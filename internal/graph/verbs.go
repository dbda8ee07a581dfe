package graph

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/enliterate-io/enliterate/internal/models"
)

// AnyLabel matches any source or target label in a verb declaration.
const AnyLabel = "*"

// HasRightsVerb links content nodes to their rights node. It is implicit in
// every glossary.
const HasRightsVerb = "has_rights"

// Verb declares one entry of the closed verb glossary: allowed endpoint
// labels plus reverse/symmetric metadata. A verb has at most one reverse OR
// the symmetric flag, never both.
type Verb struct {
	Name         string   `yaml:"name"`
	SourceLabels []string `yaml:"source_labels"`
	TargetLabels []string `yaml:"target_labels"`
	Reverse      string   `yaml:"reverse,omitempty"`
	Symmetric    bool     `yaml:"symmetric,omitempty"`
}

// EdgeType returns the uppercased relationship type stored in the graph.
func (v Verb) EdgeType() string {
	return strings.ToUpper(v.Name)
}

// AllowsSource reports whether label may be the verb's source.
func (v Verb) AllowsSource(label models.PoolLabel) bool {
	return allowsLabel(v.SourceLabels, label)
}

// AllowsTarget reports whether label may be the verb's target.
func (v Verb) AllowsTarget(label models.PoolLabel) bool {
	return allowsLabel(v.TargetLabels, label)
}

func allowsLabel(allowed []string, label models.PoolLabel) bool {
	for _, l := range allowed {
		if l == AnyLabel || l == string(label) {
			return true
		}
	}
	return false
}

// Glossary is the closed set of allowed edge verbs.
type Glossary struct {
	verbs map[string]Verb
	order []string
}

// DefaultGlossary returns the built-in verb table.
func DefaultGlossary() *Glossary {
	g := &Glossary{verbs: make(map[string]Verb)}
	for _, v := range []Verb{
		{Name: "embodies", SourceLabels: []string{"Idea"}, TargetLabels: []string{"Manifest"}, Reverse: "is_embodiment_of"},
		{Name: "elicits", SourceLabels: []string{"Manifest"}, TargetLabels: []string{"Experience"}, Reverse: "is_elicited_by"},
		{Name: "influences", SourceLabels: []string{"Idea", "Emanation"}, TargetLabels: []string{AnyLabel}, Reverse: "is_influenced_by"},
		{Name: "refines", SourceLabels: []string{"Evolutionary"}, TargetLabels: []string{"Idea"}, Reverse: "is_refined_by"},
		{Name: "version_of", SourceLabels: []string{"Evolutionary"}, TargetLabels: []string{"Manifest"}, Reverse: "has_version"},
		{Name: "co_occurs_with", SourceLabels: []string{"Relational"}, TargetLabels: []string{"Relational"}, Symmetric: true},
		{Name: "located_at", SourceLabels: []string{"Manifest"}, TargetLabels: []string{"Spatial"}, Reverse: "hosts"},
		{Name: "adjacent_to", SourceLabels: []string{"Spatial"}, TargetLabels: []string{"Spatial"}, Symmetric: true},
		{Name: "validated_by", SourceLabels: []string{"Practical"}, TargetLabels: []string{"Experience"}, Reverse: "validates"},
		{Name: "supports", SourceLabels: []string{"Evidence"}, TargetLabels: []string{"Idea"}},
		{Name: "refutes", SourceLabels: []string{"Evidence"}, TargetLabels: []string{"Idea"}},
		{Name: "codifies", SourceLabels: []string{"Idea"}, TargetLabels: []string{"Practical"}, Reverse: "derived_from"},
		{Name: "feeds_back", SourceLabels: []string{"Emanation"}, TargetLabels: []string{"Idea"}, Reverse: "is_fed_by"},
		{Name: HasRightsVerb, SourceLabels: []string{AnyLabel}, TargetLabels: []string{"ProvenanceAndRights"}},
	} {
		g.add(v)
	}
	return g
}

// LoadGlossary reads a YAML verb table from path.
func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading verb glossary: %w", err)
	}
	var verbs []Verb
	if err := yaml.Unmarshal(data, &verbs); err != nil {
		return nil, fmt.Errorf("parsing verb glossary: %w", err)
	}
	g := &Glossary{verbs: make(map[string]Verb)}
	for _, v := range verbs {
		if v.Name == "" {
			return nil, fmt.Errorf("verb glossary entry missing name")
		}
		if v.Reverse != "" && v.Symmetric {
			return nil, fmt.Errorf("verb %q declares both reverse and symmetric", v.Name)
		}
		g.add(v)
	}
	if _, ok := g.verbs[HasRightsVerb]; !ok {
		g.add(Verb{Name: HasRightsVerb, SourceLabels: []string{AnyLabel}, TargetLabels: []string{"ProvenanceAndRights"}})
	}
	return g, nil
}

func (g *Glossary) add(v Verb) {
	if _, exists := g.verbs[v.Name]; !exists {
		g.order = append(g.order, v.Name)
	}
	g.verbs[v.Name] = v
}

// Lookup returns the verb entry by name.
func (g *Glossary) Lookup(name string) (Verb, bool) {
	v, ok := g.verbs[name]
	return v, ok
}

// Contains reports whether the glossary declares the verb, by name or by
// uppercased edge type.
func (g *Glossary) Contains(name string) bool {
	if _, ok := g.verbs[name]; ok {
		return true
	}
	_, ok := g.verbs[strings.ToLower(name)]
	return ok
}

// Verbs returns all entries in declaration order.
func (g *Glossary) Verbs() []Verb {
	out := make([]Verb, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.verbs[name])
	}
	return out
}

// EdgeTypes returns every relationship type the glossary can produce,
// including reverses.
func (g *Glossary) EdgeTypes() []string {
	seen := make(map[string]struct{})
	var out []string
	addType := func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, name := range g.order {
		v := g.verbs[name]
		addType(v.EdgeType())
		if v.Reverse != "" {
			addType(strings.ToUpper(v.Reverse))
		}
	}
	return out
}

// ReverseOf resolves a forward edge type to its declared reverse edge type.
// Returns empty when the verb has no reverse.
func (g *Glossary) ReverseOf(name string) string {
	v, ok := g.verbs[name]
	if !ok || v.Reverse == "" {
		return ""
	}
	return strings.ToUpper(v.Reverse)
}
