// Package resolver maps local types found in other, already compiled modules
// back onto the identity space of the current compilation.
//
// A foreign clone carries only its identity marker. The resolver scans the
// directly referenced interop modules for a type with the same identity key
// and, when exactly one exists, asks the registry for the local clone so the
// foreign clone and the current compilation's own uses converge on the same
// handle. Outcomes are kept in an explicit resolution table.
package resolver

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/registry"
)

// Outcome classifies a resolution.
type Outcome string

const (
	// Resolved: exactly one canonical candidate; Handle is set.
	Resolved Outcome = "resolved"
	// Rejected: one candidate, but it cannot be embedded.
	Rejected Outcome = "rejected"
	// Ambiguous: candidates in more than one interop module.
	Ambiguous Outcome = "ambiguous"
	// Unresolved: no directly referenced interop module defines the identity.
	Unresolved Outcome = "unresolved"
	// Poisoned: a generic instantiation carrying an embedded type argument
	// crossed a module boundary.
	Poisoned Outcome = "poisoned"
)

// Resolution is one row of the resolution table.
type Resolution struct {
	Ref        ir.ForeignRef      `json:"ref"`
	Outcome    Outcome            `json:"outcome"`
	Module     string             `json:"module,omitempty"`
	Handle     ir.LocalTypeHandle `json:"handle,omitempty"`
	Candidates []string           `json:"candidates,omitempty"`
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.log = l
	}
}

type candidate struct {
	mod *ir.InteropModule
	typ *ir.EmbeddableType
}

// Resolver resolves foreign clones against the directly referenced interop
// modules held by the registry.
type Resolver struct {
	reg *registry.Registry
	agg *diag.Aggregator
	log *slog.Logger

	compiled map[string]*ir.CompiledModule
	order    []string

	mu    sync.Mutex
	index map[ir.IdentityKey][]candidate
	table map[ir.IdentityKey]Resolution
}

// New creates a resolver. compiled are the already compiled modules the
// current compilation references.
func New(reg *registry.Registry, agg *diag.Aggregator, compiled []*ir.CompiledModule, opts ...Option) *Resolver {
	r := &Resolver{
		reg:      reg,
		agg:      agg,
		log:      slog.Default(),
		compiled: make(map[string]*ir.CompiledModule, len(compiled)),
		index:    make(map[ir.IdentityKey][]candidate),
		table:    make(map[ir.IdentityKey]Resolution),
	}
	for _, c := range compiled {
		r.compiled[c.Name] = c
		r.order = append(r.order, c.Name)
	}
	slices.Sort(r.order)

	for _, mod := range reg.Modules() {
		for i := range mod.Types {
			t := &mod.Types[i]
			if t.Kind == ir.KindClass {
				continue
			}
			key := ir.KeyOf(mod, t)
			r.index[key] = append(r.index[key], candidate{mod: mod, typ: t})
		}
	}
	for key, cs := range r.index {
		slices.SortFunc(cs, func(a, b candidate) int {
			switch {
			case a.mod.Name < b.mod.Name:
				return -1
			case a.mod.Name > b.mod.Name:
				return 1
			}
			return 0
		})
		r.index[key] = cs
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps the foreign clone ref, used at site, onto a local type.
//
// An unresolved ref is reported as an error when the site participates in a
// checked expression and as a warning otherwise. Ambiguity is reported once
// per pair of candidate modules.
func (r *Resolver) Resolve(ref ir.ForeignRef, site ir.UseSite) Resolution {
	key := ref.Key()
	cands := r.index[key]

	res := Resolution{Ref: ref}
	for _, c := range cands {
		res.Candidates = append(res.Candidates, c.mod.Name)
	}

	switch len(cands) {
	case 0:
		res.Outcome = Unresolved
		r.reportUnresolved(ref.Name, site)
	case 1:
		c := cands[0]
		res.Module = c.mod.Name
		if h, ok := r.reg.Use(c.mod, c.typ, site); ok {
			res.Outcome = Resolved
			res.Handle = h
		} else {
			res.Outcome = Rejected
		}
	default:
		res.Outcome = Ambiguous
		for i := 0; i < len(cands); i++ {
			for j := i + 1; j < len(cands); j++ {
				r.agg.Report(diag.Cause{
					Code:     diag.CodeDuplicateInteropType,
					Location: site.Location,
					Args:     []string{ref.Name, cands[i].mod.Name, cands[j].mod.Name},
				})
			}
		}
	}

	r.log.Debug("foreign local type resolved",
		"type", ref.Name, "from", ref.EmbeddingModule, "outcome", res.Outcome)
	r.record(key, res)
	return res
}

// ResolveSite resolves a use site whose type was read from a compiled
// module: a reference to one of its local types, a canonical type it names
// without embedding, or a generic instantiation that may carry either.
func (r *Resolver) ResolveSite(site ir.UseSite) Resolution {
	if site.Type.IsGeneric() {
		return r.resolveGeneric(site)
	}
	if !site.Type.Local {
		return r.resolveCanonical(site)
	}

	ref, ok := r.foreignRef(site.Type)
	if !ok {
		ref = ir.ForeignRef{EmbeddingModule: site.Type.Module, Name: site.Type.Name}
		r.reportUnresolved(site.Type.Name, site)
		return Resolution{Ref: ref, Outcome: Unresolved}
	}
	return r.Resolve(ref, site)
}

// resolveCanonical handles a type the compiled module did not embed. When
// it belongs to a directly referenced interop module it is embedded like a
// direct use; any other type needs no local clone and is not reported.
func (r *Resolver) resolveCanonical(site ir.UseSite) Resolution {
	res := Resolution{Ref: ir.ForeignRef{EmbeddingModule: site.Origin, Name: site.Type.Name}}
	mod, t, ok := r.reg.Lookup(site.Type)
	if !ok {
		res.Outcome = Unresolved
		return res
	}
	res.Module = mod.Name
	res.Candidates = []string{mod.Name}
	if h, ok := r.reg.Use(mod, t, site); ok {
		res.Outcome = Resolved
		res.Handle = h
	} else {
		res.Outcome = Rejected
	}
	return res
}

// reportUnresolved reports a missing canonical view: an error when the site
// is part of a checked expression, a warning otherwise.
func (r *Resolver) reportUnresolved(name string, site ir.UseSite) {
	sev := diag.SeverityWarning
	if site.Checked {
		sev = diag.SeverityError
	}
	r.agg.Report(diag.Cause{
		Code:     diag.CodeNoCanonicalView,
		Location: site.Location,
		Args:     []string{name},
		InBody:   site.InBody,
		Severity: sev,
	})
}

// resolveGeneric rejects an instantiation that crosses a module boundary
// with an embedded type argument as a whole. None of its arguments are
// embedded.
func (r *Resolver) resolveGeneric(site ir.UseSite) Resolution {
	inst := site.Type
	definedIn := site.Origin
	if definedIn == "" {
		definedIn = inst.Module
	}
	ref := ir.ForeignRef{EmbeddingModule: definedIn, Name: inst.String()}

	if site.Origin != "" && r.carriesEmbedded(inst.Args) {
		r.agg.Report(diag.Cause{
			Code:     diag.CodeGenericsUsedAcrossModules,
			Location: site.Location,
			Args:     []string{inst.String(), definedIn},
			InBody:   site.InBody,
		})
		r.log.Debug("generic instantiation poisoned", "type", inst.String(), "module", definedIn)
		return Resolution{Ref: ref, Outcome: Poisoned}
	}

	// Arguments that are foreign clones still resolve one by one.
	res := Resolution{Ref: ref, Outcome: Resolved}
	for _, arg := range inst.Args {
		if !arg.Local {
			continue
		}
		argSite := site
		argSite.Type = arg
		if sub := r.ResolveSite(argSite); sub.Outcome != Resolved {
			res.Outcome = sub.Outcome
		}
	}
	return res
}

func (r *Resolver) carriesEmbedded(args []ir.TypeRef) bool {
	for _, a := range args {
		if a.Local {
			return true
		}
		if _, _, ok := r.reg.Lookup(a); ok {
			return true
		}
		if r.carriesEmbedded(a.Args) {
			return true
		}
	}
	return false
}

func (r *Resolver) foreignRef(t ir.TypeRef) (ir.ForeignRef, bool) {
	c, ok := r.compiled[t.Module]
	if !ok {
		return ir.ForeignRef{}, false
	}
	return c.LocalType(t.Name)
}

func (r *Resolver) record(key ir.IdentityKey, res Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.table[key]; ok && prev.Outcome == Resolved {
		return
	}
	r.table[key] = res
}

// Table returns the resolution table ordered by identity key.
func (r *Resolver) Table() []Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]ir.IdentityKey, 0, len(r.table))
	for k := range r.table {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b ir.IdentityKey) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	out := make([]Resolution, len(keys))
	for i, k := range keys {
		out[i] = r.table[k]
	}
	return out
}

// CheckIndirect warns when a compiled reference embeds identities from a
// directly referenced interop module that the current compilation did not
// embed. It runs after the registry has finished; one warning is reported
// per (interop module, compiled module) pair.
func (r *Resolver) CheckIndirect() {
	for _, name := range r.order {
		c := r.compiled[name]
		for _, ref := range c.LocalTypes {
			for _, cand := range r.index[ref.Key()] {
				if _, ok := r.reg.Handle(ref.Key()); ok {
					continue
				}
				r.agg.Report(diag.Cause{
					Code: diag.CodeIndirectReferenceToEmbedded,
					Args: []string{cand.mod.Name, c.Name},
				})
			}
		}
	}
}
