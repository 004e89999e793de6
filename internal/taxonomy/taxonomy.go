package taxonomy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ExclusiveGroup is a set of labels where specific members suppress generic
// ones when they are assigned together.
type ExclusiveGroup struct {
	Name     string   `yaml:"name"`
	Specific []string `yaml:"specific"`
	Generic  []string `yaml:"generic"`
}

func (g ExclusiveGroup) Members() []string {
	out := make([]string, 0, len(g.Specific)+len(g.Generic))
	out = append(out, g.Specific...)
	return append(out, g.Generic...)
}

// Taxonomy is the closed label set for one run, along with the instruction
// template sent to the classifier. It is not modified after construction.
type Taxonomy struct {
	Labels       []string         `yaml:"labels"`
	Groups       []ExclusiveGroup `yaml:"exclusive_groups"`
	Instructions string           `yaml:"instructions"`

	index map[string]int
}

const categoriesPlaceholder = "{categories}"

var ErrInvalidTaxonomy = errors.New("invalid taxonomy")

// New validates and indexes a taxonomy. An empty instruction template falls
// back to DefaultInstructions.
func New(labels []string, groups []ExclusiveGroup, instructions string) (*Taxonomy, error) {
	t := &Taxonomy{
		Labels:       append([]string(nil), labels...),
		Groups:       append([]ExclusiveGroup(nil), groups...),
		Instructions: instructions,
	}
	if strings.TrimSpace(t.Instructions) == "" {
		t.Instructions = DefaultInstructions
	}
	if err := t.init(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Taxonomy) init() error {
	if len(t.Labels) == 0 {
		return fmt.Errorf("%w: no labels", ErrInvalidTaxonomy)
	}
	t.index = make(map[string]int, len(t.Labels))
	for i, label := range t.Labels {
		if strings.TrimSpace(label) == "" {
			return fmt.Errorf("%w: empty label at position %d", ErrInvalidTaxonomy, i)
		}
		if _, dup := t.index[label]; dup {
			return fmt.Errorf("%w: duplicate label %q", ErrInvalidTaxonomy, label)
		}
		t.index[label] = i
	}
	for _, g := range t.Groups {
		seen := make(map[string]bool)
		for _, m := range g.Members() {
			if !t.Contains(m) {
				return fmt.Errorf("%w: group %q member %q is not a label", ErrInvalidTaxonomy, g.Name, m)
			}
			if seen[m] {
				return fmt.Errorf("%w: group %q lists %q twice", ErrInvalidTaxonomy, g.Name, m)
			}
			seen[m] = true
		}
	}
	if !strings.Contains(t.Instructions, categoriesPlaceholder) {
		return fmt.Errorf("%w: instructions must contain %s", ErrInvalidTaxonomy, categoriesPlaceholder)
	}
	return nil
}

func (t *Taxonomy) Contains(label string) bool {
	_, ok := t.index[label]
	return ok
}

func (t *Taxonomy) Len() int {
	return len(t.Labels)
}

// SystemPrompt renders the instruction template with the label list.
func (t *Taxonomy) SystemPrompt() string {
	var lines strings.Builder
	for i, label := range t.Labels {
		if i > 0 {
			lines.WriteString("\n")
		}
		lines.WriteString("- " + label)
	}
	return strings.ReplaceAll(t.Instructions, categoriesPlaceholder, lines.String())
}

// Validate drops labels outside the vocabulary and resolves exclusive
// groups. The result is a subsequence of raw; repeats are kept as given.
func (t *Taxonomy) Validate(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, label := range raw {
		if t.Contains(label) {
			out = append(out, label)
		}
	}
	for _, g := range t.Groups {
		out = resolveGroup(out, g)
	}
	return out
}

// resolveGroup removes generic members when more than one group member is
// present and at least one of them is specific. Two generics with no
// specific member are left alone.
func resolveGroup(labels []string, g ExclusiveGroup) []string {
	specific := toSet(g.Specific)
	generic := toSet(g.Generic)

	present, hasSpecific := 0, false
	for _, label := range labels {
		switch {
		case specific[label]:
			present++
			hasSpecific = true
		case generic[label]:
			present++
		}
	}
	if present <= 1 || !hasSpecific {
		return labels
	}

	out := labels[:0:0]
	for _, label := range labels {
		if generic[label] {
			continue
		}
		out = append(out, label)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// LoadFile reads a taxonomy from YAML. Labels missing from the file are an
// error; a missing instructions block uses DefaultInstructions.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy yaml: %w", err)
	}
	return New(t.Labels, t.Groups, t.Instructions)
}

// Load returns the taxonomy at path, or the built-in one when path is empty.
func Load(path string) (*Taxonomy, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	return LoadFile(path)
}
