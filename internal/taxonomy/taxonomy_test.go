package taxonomy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tax := Default()

	tests := []struct {
		name string
		raw  []string
		want []string
	}{
		{
			name: "no conflict",
			raw:  []string{"Coins", "Binomial Random Variables"},
			want: []string{"Coins", "Binomial Random Variables"},
		},
		{
			name: "specific type removes generics",
			raw:  []string{ContinuousRandomVariables, "Normal Random Variables", DiscreteRandomVariables},
			want: []string{"Normal Random Variables"},
		},
		{
			name: "unknown label dropped",
			raw:  []string{"NotARealCategory", "Dice"},
			want: []string{"Dice"},
		},
		{
			name: "both generics without specific pass through",
			raw:  []string{ContinuousRandomVariables, DiscreteRandomVariables},
			want: []string{ContinuousRandomVariables, DiscreteRandomVariables},
		},
		{
			name: "single generic kept",
			raw:  []string{"Dice", DiscreteRandomVariables},
			want: []string{"Dice", DiscreteRandomVariables},
		},
		{
			name: "two specifics both kept",
			raw:  []string{"Poisson Random Variables", "Exponential Random Variables", ContinuousRandomVariables},
			want: []string{"Poisson Random Variables", "Exponential Random Variables"},
		},
		{
			name: "generic dropped after unknown filtered",
			raw:  []string{"Random Variables", DiscreteRandomVariables, "Binomial Random Variables", "Coins"},
			want: []string{"Binomial Random Variables", "Coins"},
		},
		{
			name: "case sensitive membership",
			raw:  []string{"dice", "Dice"},
			want: []string{"Dice"},
		},
		{
			name: "repeats kept as given",
			raw:  []string{"Cards", "Combinatorics", "Cards"},
			want: []string{"Cards", "Combinatorics", "Cards"},
		},
		{
			name: "repeated specific still removes generics",
			raw:  []string{"Poisson Random Variables", DiscreteRandomVariables, "Poisson Random Variables"},
			want: []string{"Poisson Random Variables", "Poisson Random Variables"},
		},
		{
			name: "empty input",
			raw:  nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tax.Validate(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Validate(%q) mismatch (-want +got):\n%s", tt.raw, diff)
			}
		})
	}
}

func TestValidatePreservesOrderAndClosure(t *testing.T) {
	tax := Default()
	inputs := [][]string{
		{"Geometry", "Calculus", "Uniform Random Variables", ContinuousRandomVariables},
		{"Markov Chains", "bogus", "Random Walks", "Martingales", "Stochastic Processes"},
		{DiscreteRandomVariables, "Hypergeometric Random Variables", "Cards", "Combinatorics"},
		{"Linear Algebra", "Game Theory", "Algebraic Manipulation", "Grids"},
	}
	for _, raw := range inputs {
		got := tax.Validate(raw)

		pos := 0
		for _, label := range got {
			require.True(t, tax.Contains(label), "label %q outside vocabulary", label)
			for pos < len(raw) && raw[pos] != label {
				pos++
			}
			require.Less(t, pos, len(raw), "output %v is not a subsequence of %v", got, raw)
			pos++
		}

		hasSpecific := false
		for _, label := range got {
			for _, s := range RandomVariableGroup.Specific {
				if label == s {
					hasSpecific = true
				}
			}
		}
		if hasSpecific {
			require.NotContains(t, got, ContinuousRandomVariables)
			require.NotContains(t, got, DiscreteRandomVariables)
		}
	}
}

func TestValidateIsDeterministicAndDoesNotMutateInput(t *testing.T) {
	tax := Default()
	raw := []string{ContinuousRandomVariables, "Normal Random Variables", "Dice"}
	before := append([]string(nil), raw...)

	first := tax.Validate(raw)
	second := tax.Validate(raw)

	require.Equal(t, first, second)
	require.Equal(t, before, raw)
}

func TestSystemPromptListsEveryLabel(t *testing.T) {
	tax := Default()
	prompt := tax.SystemPrompt()

	require.NotContains(t, prompt, categoriesPlaceholder)
	for _, label := range DefaultLabels {
		require.Contains(t, prompt, "- "+label+"\n")
	}
	require.Contains(t, prompt, "6. **Try multiple times** - If unsure, think again before responding\n")
	require.Contains(t, prompt, "- **Free sundae**: If it's a counting problem → [\"Combinatorics\"], if it doesn't fit → []\n")
}

func TestNewRejectsInvalidTaxonomies(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		groups []ExclusiveGroup
		instr  string
	}{
		{name: "no labels"},
		{name: "duplicate label", labels: []string{"A", "A"}},
		{name: "blank label", labels: []string{"A", " "}},
		{
			name:   "group member outside vocabulary",
			labels: []string{"A", "B"},
			groups: []ExclusiveGroup{{Name: "g", Specific: []string{"A"}, Generic: []string{"C"}}},
		},
		{
			name:   "member listed twice",
			labels: []string{"A", "B"},
			groups: []ExclusiveGroup{{Name: "g", Specific: []string{"A"}, Generic: []string{"A"}}},
		},
		{name: "template without placeholder", labels: []string{"A"}, instr: "classify things"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.labels, tt.groups, tt.instr)
			if !errors.Is(err, ErrInvalidTaxonomy) {
				t.Fatalf("expected ErrInvalidTaxonomy, got %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	content := `
labels:
  - Dice
  - Coins
  - Discrete Random Variables
  - Binomial Random Variables
exclusive_groups:
  - name: rv
    specific: [Binomial Random Variables]
    generic: [Discrete Random Variables]
instructions: |
  Pick from:
  {categories}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tax, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 4, tax.Len())
	require.Equal(t, []string{"Binomial Random Variables", "Dice"},
		tax.Validate([]string{"Discrete Random Variables", "Binomial Random Variables", "Dice", "Cards"}))
	require.True(t, strings.HasPrefix(tax.SystemPrompt(), "Pick from:\n- Dice\n- Coins"))
}

func TestLoadEmptyPathUsesDefault(t *testing.T) {
	tax, err := Load("")
	require.NoError(t, err)
	require.Equal(t, DefaultLabels, tax.Labels)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
