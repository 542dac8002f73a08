package pipeline

import (
	"slices"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/lower"
	"github.com/roach88/nopia/internal/resolver"
)

// IdentityEntry is one row of the finished identity map.
type IdentityEntry struct {
	Key    string             `json:"key"`
	Handle ir.LocalTypeHandle `json:"handle"`
}

// Plan is the result of one compilation: the local types to materialize,
// the identity map for code generation, the lowered constructs and the
// diagnostics.
type Plan struct {
	Name        string                `json:"name"`
	Mode        diag.BuildMode        `json:"mode"`
	LocalTypes  []ir.LocalType        `json:"local_types"`
	Identity    []IdentityEntry       `json:"identity"`
	Resolutions []resolver.Resolution `json:"resolutions,omitempty"`
	Lowered     []lower.Lowered       `json:"lowered,omitempty"`
	Diagnostics []diag.Diagnostic     `json:"diagnostics"`

	// Emittable is false when an error blocks emission of the image.
	Emittable bool   `json:"emittable"`
	Hash      string `json:"hash"`
}

// Image returns the module image the metadata writer materializes.
func (p *Plan) Image() ir.ModuleImage {
	var from []string
	for _, lt := range p.LocalTypes {
		if !slices.Contains(from, lt.SourceModule) {
			from = append(from, lt.SourceModule)
		}
	}
	slices.Sort(from)
	return ir.ModuleImage{
		Name:         p.Name,
		LocalTypes:   p.LocalTypes,
		EmbeddedFrom: from,
	}
}

// Errors returns the error diagnostics.
func (p *Plan) Errors() []diag.Diagnostic {
	var out []diag.Diagnostic
	for _, d := range p.Diagnostics {
		if d.Severity == diag.SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// LocalType finds a planned local type by qualified name.
func (p *Plan) LocalType(name string) (ir.LocalType, bool) {
	for _, lt := range p.LocalTypes {
		if lt.QualifiedName() == name {
			return lt, true
		}
	}
	return ir.LocalType{}, false
}
