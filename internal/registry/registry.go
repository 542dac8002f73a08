// Package registry accumulates the distinct interop type identities that must
// be cloned into the module being compiled.
//
// Entries live in an arena keyed by identity key, so repeated requests for
// the same type converge on one handle and two independent runs over the same
// inputs hand out the same handles. The registry also decides member pruning:
// interface members no use site reaches are replaced by vtable gaps.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/legality"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

// WithSourceTypes declares the qualified names of types defined in the
// module being compiled; clones may not take those names.
func WithSourceTypes(names ...string) Option {
	return func(r *Registry) {
		for _, n := range names {
			r.sourceTypes[n] = true
		}
	}
}

// Registry is the per-compilation local type arena.
//
// Thread-safety: all methods are safe for concurrent use, but the order of
// first inserts decides which of two colliding names wins. Callers that want
// deterministic output must serialize inserts in a stable order.
type Registry struct {
	mu sync.Mutex

	agg *diag.Aggregator
	log *slog.Logger

	modules     []*ir.InteropModule
	byModule    map[string]*ir.InteropModule
	sourceTypes map[string]bool

	entries       map[ir.IdentityKey]*entry
	names         map[string]ir.IdentityKey
	moduleChecked map[string]bool
}

type entry struct {
	key    ir.IdentityKey
	handle ir.LocalTypeHandle
	mod    *ir.InteropModule
	typ    *ir.EmbeddableType
	shape  *ir.Shape

	violations []legality.Violation
	rejected   bool

	firstUse  ir.Location
	used      map[string]bool
	retainAll bool
}

// New creates a registry over the directly referenced interop modules.
func New(agg *diag.Aggregator, modules []*ir.InteropModule, opts ...Option) *Registry {
	r := &Registry{
		agg:           agg,
		log:           slog.Default(),
		modules:       modules,
		byModule:      make(map[string]*ir.InteropModule, len(modules)),
		sourceTypes:   make(map[string]bool),
		entries:       make(map[ir.IdentityKey]*entry),
		names:         make(map[string]ir.IdentityKey),
		moduleChecked: make(map[string]bool),
	}
	for _, m := range modules {
		r.byModule[m.Name] = m
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Modules returns the directly referenced interop modules.
func (r *Registry) Modules() []*ir.InteropModule {
	return r.modules
}

// Lookup finds the interop type a reference names among the directly
// referenced modules.
func (r *Registry) Lookup(ref ir.TypeRef) (*ir.InteropModule, *ir.EmbeddableType, bool) {
	mod, ok := r.byModule[ref.Module]
	if !ok {
		return nil, nil, false
	}
	t, ok := mod.Lookup(ref.Name)
	if !ok {
		return nil, nil, false
	}
	return mod, t, true
}

// RequestLocalType returns the handle of the clone of t, creating it on the
// first request. Subsequent requests for the same identity key return the
// same handle. The boolean is false when t cannot be embedded; the reasons
// have been reported to the aggregator.
func (r *Registry) RequestLocalType(mod *ir.InteropModule, t *ir.EmbeddableType, loc ir.Location) (ir.LocalTypeHandle, bool) {
	return r.Use(mod, t, ir.UseSite{Kind: ir.UseReference, Location: loc})
}

// Use requests the clone of t for a use site and records what the site
// touches, which drives member pruning.
func (r *Registry) Use(mod *ir.InteropModule, t *ir.EmbeddableType, site ir.UseSite) (ir.LocalTypeHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.request(mod, t, site)
	if !ok {
		return "", false
	}
	switch {
	case site.Kind.RetainsAll():
		r.retainAll(e, site)
	case site.Kind == ir.UseMember && site.Member != "":
		r.markMember(e, site.Member, site)
	}
	return e.handle, true
}

// Handle returns the handle assigned to key, if the key has a live clone.
func (r *Registry) Handle(key ir.IdentityKey) (ir.LocalTypeHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok || e.rejected {
		return "", false
	}
	return e.handle, true
}

// Identity returns the finished map from identity key to handle.
func (r *Registry) Identity() map[ir.IdentityKey]ir.LocalTypeHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[ir.IdentityKey]ir.LocalTypeHandle, len(r.entries))
	for k, e := range r.entries {
		if !e.rejected {
			out[k] = e.handle
		}
	}
	return out
}

func (r *Registry) request(mod *ir.InteropModule, t *ir.EmbeddableType, site ir.UseSite) (*entry, bool) {
	r.checkModule(mod)

	key := ir.KeyOf(mod, t)
	if e, ok := r.entries[key]; ok {
		if e.mod.Name != mod.Name {
			a, b := e.mod.Name, mod.Name
			if b < a {
				a, b = b, a
			}
			r.agg.Report(diag.Cause{
				Code:     diag.CodeDuplicateInteropType,
				Location: site.Location,
				Args:     []string{t.DisplayName(), a, b},
				InBody:   site.InBody,
			})
		}
		if !site.Location.IsZero() && (e.firstUse.IsZero() || site.Location.Before(e.firstUse)) {
			e.firstUse = site.Location
		}
		if e.rejected {
			r.reportViolations(e, site)
			return e, false
		}
		return e, true
	}

	e := &entry{
		key:      key,
		handle:   ir.MustHandleOf(key),
		mod:      mod,
		typ:      t,
		firstUse: site.Location,
		used:     make(map[string]bool),
	}
	r.entries[key] = e

	res := legality.Check(t, site.Location)
	e.shape = res.Shape
	e.violations = res.Violations

	name := t.QualifiedName()
	if res.OK() {
		if other, taken := r.names[name]; r.sourceTypes[name] || (taken && other != key) {
			e.violations = append(e.violations, legality.Violation{
				Symbol:   name,
				Rule:     diag.CodeLocalTypeNameClash,
				Location: site.Location,
				Args:     []string{t.DisplayName(), mod.Name},
			})
		} else {
			r.names[name] = key
		}
	}

	if len(e.violations) > 0 {
		e.rejected = true
		e.shape = nil
		r.log.Debug("local type rejected", "type", name, "module", mod.Name, "violations", len(e.violations))
		r.reportViolations(e, site)
		return e, false
	}

	r.log.Debug("local type registered", "type", name, "module", mod.Name, "handle", e.handle.Short())

	for _, base := range t.Bases {
		r.requestRef(base, ir.UseSite{Kind: ir.UseReference, Location: site.Location, InBody: site.InBody})
	}
	return e, true
}

func (r *Registry) requestRef(ref ir.TypeRef, site ir.UseSite) (*entry, bool) {
	mod, t, ok := r.Lookup(ref)
	if !ok {
		return nil, false
	}
	return r.request(mod, t, site)
}

func (r *Registry) reportViolations(e *entry, site ir.UseSite) {
	for _, v := range e.violations {
		r.agg.Report(v.Cause(site.InBody))
	}
}

// checkModule reports module-level attribute problems once per module.
func (r *Registry) checkModule(mod *ir.InteropModule) {
	if r.moduleChecked[mod.Name] {
		return
	}
	r.moduleChecked[mod.Name] = true
	for _, v := range legality.CheckModule(mod) {
		r.agg.Report(v.Cause(false))
	}
}

func (r *Registry) retainAll(e *entry, site ir.UseSite) {
	if e.retainAll {
		return
	}
	e.retainAll = true
	for _, base := range e.typ.Bases {
		if be, ok := r.requestRef(base, ir.UseSite{Kind: ir.UseReference, Location: site.Location, InBody: site.InBody}); ok {
			r.retainAll(be, site)
		}
	}
}

// markMember records a member use, following base interfaces when the member
// is declared on one of them.
func (r *Registry) markMember(e *entry, member string, site ir.UseSite) bool {
	for _, m := range e.typ.Members {
		if m.Name == member || slices.Contains(m.Accessors, member) {
			e.used[m.Name] = true
			return true
		}
	}
	for _, base := range e.typ.Bases {
		be, ok := r.requestRef(base, ir.UseSite{Kind: ir.UseReference, Location: site.Location, InBody: site.InBody})
		if ok && r.markMember(be, member, site) {
			return true
		}
	}
	return false
}

// Finish completes the plan: types reached from retained member signatures
// are embedded too, unused interface members are pruned into gaps and the
// local types are returned sorted by namespace, name and handle.
func (r *Registry) Finish() []ir.LocalType {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		before := len(r.entries)
		for _, key := range r.sortedKeys() {
			e := r.entries[key]
			if e.rejected {
				continue
			}
			site := ir.UseSite{Kind: ir.UseReference, Location: e.firstUse}
			for _, m := range r.prune(e).Members {
				for _, ref := range signatureRefs(m) {
					r.requestRef(ref, site)
				}
			}
		}
		if len(r.entries) == before {
			break
		}
	}

	var out []ir.LocalType
	for _, key := range r.sortedKeys() {
		e := r.entries[key]
		if e.rejected {
			continue
		}
		out = append(out, ir.LocalType{
			Handle:       e.handle,
			Key:          e.key,
			Marker:       e.key.Marker(),
			Namespace:    e.typ.Namespace,
			Name:         e.typ.Name,
			Kind:         e.typ.Kind,
			GUID:         e.typ.GUID,
			SourceModule: e.mod.Name,
			Shape:        r.prune(e),
			Attributes:   attributes(e),
			FirstUse:     e.firstUse,
		})
	}
	slices.SortFunc(out, func(a, b ir.LocalType) int {
		if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
			return c
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.Handle), string(b.Handle))
	})

	r.log.Debug("registry finished", "local_types", len(out), "requested", len(r.entries))
	return out
}

func (r *Registry) sortedKeys() []ir.IdentityKey {
	keys := make([]ir.IdentityKey, 0, len(r.entries))
	for k := range r.entries {
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
	return keys
}

// prune returns the clone shape with unused interface members folded into
// gaps. Consecutive unused slots merge into one gap; slots after the last
// retained member are dropped.
func (r *Registry) prune(e *entry) ir.Shape {
	shape := *e.shape
	if shape.Kind != ir.KindInterface || e.retainAll {
		shape.Members = slices.Clone(shape.Members)
		return shape
	}

	var (
		members []ir.Member
		pending int
		gaps    int
	)
	for _, m := range e.shape.Members {
		if m.Kind == ir.MemberGap {
			pending += m.SlotCount()
			continue
		}
		if !e.used[m.Name] {
			pending += m.SlotCount()
			continue
		}
		if pending > 0 {
			gaps++
			members = append(members, gapMember(gaps, pending))
			pending = 0
		}
		members = append(members, m)
	}
	shape.Members = members
	return shape
}

func gapMember(n, slots int) ir.Member {
	return ir.Member{
		Name:        fmt.Sprintf("_VtblGap%d_%d", n, slots),
		Kind:        ir.MemberGap,
		Access:      ir.AccessPublic,
		SpecialName: true,
		Slots:       slots,
	}
}

// signatureRefs lists every type a member's signature mentions, including
// generic arguments.
func signatureRefs(m ir.Member) []ir.TypeRef {
	var refs []ir.TypeRef
	var walk func(ir.TypeRef)
	walk = func(t ir.TypeRef) {
		refs = append(refs, t)
		for _, a := range t.Args {
			walk(a)
		}
	}
	if m.Type != nil {
		walk(*m.Type)
	}
	for _, p := range m.Params {
		walk(p.Type)
	}
	return refs
}

func attributes(e *entry) []string {
	t := e.typ
	var attrs []string
	if t.Kind == ir.KindInterface {
		attrs = append(attrs, "ComImport", fmt.Sprintf("Guid(%q)", t.GUID.UUID.String()))
		if t.CoClass != nil {
			attrs = append(attrs, fmt.Sprintf("CoClass(%s)", t.CoClass.Class))
		}
		if t.EventSource != nil {
			attrs = append(attrs, fmt.Sprintf("ComEventInterface(%s, %s)",
				t.EventSource.SourceInterface, t.EventSource.EventProvider))
		}
	}
	return append(attrs, "CompilerGenerated", e.key.Marker().String())
}
