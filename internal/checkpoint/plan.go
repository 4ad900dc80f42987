package checkpoint

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ekisa-team/flamingo/internal/tensor"
)

// DefaultPrefix is the wrapper prefix training code puts on parameter names.
const DefaultPrefix = "model."

// RenameKeys strips prefix from every key carrying it and drops the others.
// When no key carries the prefix, mapping is returned unchanged. The input is
// not modified.
func RenameKeys(mapping map[string]*tensor.Tensor, prefix string) map[string]*tensor.Tensor {
	if prefix == "" {
		return mapping
	}

	out := make(map[string]*tensor.Tensor)
	for key, t := range mapping {
		if name, ok := strings.CutPrefix(key, prefix); ok {
			out[name] = t
		}
	}
	if len(out) == 0 {
		return mapping
	}
	return out
}

// Mismatch records a parameter whose checkpoint shape differs from the model's.
type Mismatch struct {
	Name       string
	Checkpoint []int
	Model      []int
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: checkpoint %v, model %v", m.Name, m.Checkpoint, m.Model)
}

// LoadPlan is the comparison of a mapping against model parameters.
type LoadPlan struct {
	// Exact is set when names and shapes match one to one.
	Exact bool

	// Apply holds the shape-compatible parameters present on both sides.
	Apply map[string]*tensor.Tensor

	Missing    []string
	Unexpected []string
	Mismatched []Mismatch
}

// Plan compares mapping with the model parameter shapes.
func Plan(mapping map[string]*tensor.Tensor, shapes map[string][]int) LoadPlan {
	p := LoadPlan{Apply: make(map[string]*tensor.Tensor)}

	for name, t := range mapping {
		want, ok := shapes[name]
		switch {
		case !ok:
			p.Unexpected = append(p.Unexpected, name)
		case t == nil:
			p.Mismatched = append(p.Mismatched, Mismatch{Name: name, Model: want})
		case !slices.Equal(want, t.Shape):
			p.Mismatched = append(p.Mismatched, Mismatch{Name: name, Checkpoint: t.Shape, Model: want})
		default:
			p.Apply[name] = t
		}
	}
	for name := range shapes {
		if _, ok := mapping[name]; !ok {
			p.Missing = append(p.Missing, name)
		}
	}

	slices.Sort(p.Missing)
	slices.Sort(p.Unexpected)
	slices.SortFunc(p.Mismatched, func(a, b Mismatch) int { return strings.Compare(a.Name, b.Name) })

	p.Exact = len(p.Missing) == 0 && len(p.Unexpected) == 0 && len(p.Mismatched) == 0
	return p
}

// Skipped returns the names that will not be applied, sorted.
func (p LoadPlan) Skipped() []string {
	out := slices.Clone(p.Unexpected)
	for _, m := range p.Mismatched {
		out = append(out, m.Name)
	}
	slices.Sort(out)
	return out
}

// Applied returns the names that will be applied, sorted.
func (p LoadPlan) Applied() []string {
	return slices.Sorted(maps.Keys(p.Apply))
}

// RequireExact fails unless the plan is an exact match.
func (p LoadPlan) RequireExact() error {
	if p.Exact {
		return nil
	}
	return fmt.Errorf("%w: %d missing, %d unexpected, %d mismatched",
		ErrNotExact, len(p.Missing), len(p.Unexpected), len(p.Mismatched))
}
