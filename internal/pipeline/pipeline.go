// Package pipeline runs the embedding subsystem over one compilation.
//
// Data flows one way: use sites are discovered per file, checked and
// registered, foreign clones are resolved onto the same identity space, the
// registry is finished, and only then are constructions and event accesses
// lowered against the final identity map.
//
// Discovery may run on several goroutines, but it only classifies use sites
// against the immutable module graph. Every registry insert happens in a
// single reducer stage that walks files in path order, so the output is
// byte-identical no matter how many workers ran.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/lower"
	"github.com/roach88/nopia/internal/registry"
	"github.com/roach88/nopia/internal/resolver"
)

// ErrNilCompilation is returned when Run is called without a compilation.
var ErrNilCompilation = errors.New("pipeline: nil compilation")

// Option configures a run.
type Option func(*runner)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		r.log = l
	}
}

// WithWorkers bounds the number of discovery goroutines.
//
// Default: runtime.GOMAXPROCS(0). Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(r *runner) {
		r.workers = max(n, 1)
	}
}

type runner struct {
	log     *slog.Logger
	workers int
}

type requestKind int

const (
	reqDirect requestKind = iota
	reqForeign
	reqConstruction
	reqEvent
)

// request is one reducer step produced by discovery.
type request struct {
	kind         requestKind
	site         ir.UseSite
	mod          *ir.InteropModule
	typ          *ir.EmbeddableType
	construction int
	event        int
}

type discovered struct {
	file     *SourceFile
	requests []request
}

// Run executes the embedding subsystem over comp.
//
// Errors are operational only (cancellation, missing input); embedding
// problems are reported as diagnostics in the plan.
func Run(ctx context.Context, comp *Compilation, opts ...Option) (*Plan, error) {
	if comp == nil {
		return nil, ErrNilCompilation
	}
	r := &runner{
		log:     slog.Default(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}

	agg := diag.NewAggregator(comp.Mode)
	reg := registry.New(agg, comp.InteropModules,
		registry.WithLogger(r.log),
		registry.WithSourceTypes(comp.SourceTypes...),
	)
	res := resolver.New(reg, agg, comp.Compiled, resolver.WithLogger(r.log))

	// Constructs are rewritten in place once resolved; keep the caller's
	// compilation untouched.
	files := make([]SourceFile, len(comp.Files))
	for i, f := range comp.Files {
		f.Constructions = slices.Clone(f.Constructions)
		f.Events = slices.Clone(f.Events)
		files[i] = f
	}
	slices.SortStableFunc(files, func(a, b SourceFile) int {
		return strings.Compare(a.Path, b.Path)
	})

	found, err := r.discover(ctx, reg, files)
	if err != nil {
		return nil, err
	}

	// Single reducer: every registry insert happens here, in file order.
	for i := range found {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("reduce %s: %w", found[i].file.Path, err)
		}
		for _, req := range found[i].requests {
			r.apply(reg, res, found[i].file, req)
		}
	}

	localTypes := reg.Finish()
	res.CheckIndirect()

	// Metadata-only builds emit no bodies: constructions are only checked.
	tr := lower.New(reg, agg,
		lower.WithLogger(r.log),
		lower.WithRuntime(lower.NewRuntime(comp.MissingRuntime...)),
	)
	var lowered []lower.Lowered
	for i := range found {
		if agg.Mode() == diag.BuildFull {
			lowered = append(lowered, r.lowerFile(tr, found[i].file)...)
		} else {
			checkFile(tr, found[i].file)
		}
	}

	plan := &Plan{
		Name:        comp.Name,
		Mode:        agg.Mode(),
		LocalTypes:  localTypes,
		Identity:    identityEntries(reg.Identity()),
		Resolutions: res.Table(),
		Lowered:     lowered,
		Diagnostics: agg.Diagnostics(),
		Emittable:   !agg.HasErrors(),
	}
	hash, err := ir.PlanHash(plan.Image())
	if err != nil {
		return nil, fmt.Errorf("hash plan: %w", err)
	}
	plan.Hash = hash

	errs, warns := agg.Count()
	r.log.Info("compilation planned",
		"module", comp.Name,
		"local_types", len(localTypes),
		"lowered", len(lowered),
		"errors", errs,
		"warnings", warns,
		"hash", hash[:12],
	)
	return plan, nil
}

// discover classifies every file's use sites in parallel. Workers only read
// the module graph; the registry is not touched.
func (r *runner) discover(ctx context.Context, reg *registry.Registry, files []SourceFile) ([]discovered, error) {
	out := make([]discovered, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("discover %s: %w", files[i].Path, err)
			}
			out[i] = discovered{file: &files[i], requests: classify(reg, &files[i])}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func classify(reg *registry.Registry, f *SourceFile) []request {
	var reqs []request
	for _, site := range f.Uses {
		reqs = append(reqs, classifySite(reg, site)...)
	}
	for i := range f.Constructions {
		reqs = append(reqs, request{kind: reqConstruction, construction: i})
	}
	for i := range f.Events {
		reqs = append(reqs, request{kind: reqEvent, event: i})
	}
	return reqs
}

func classifySite(reg *registry.Registry, site ir.UseSite) []request {
	if site.Origin != "" || site.Type.Local {
		return []request{{kind: reqForeign, site: site}}
	}

	var reqs []request
	if mod, t, ok := reg.Lookup(site.Type); ok {
		reqs = append(reqs, request{kind: reqDirect, site: site, mod: mod, typ: t})
	}
	// Generic arguments written in this compilation are embedded one by one.
	for _, arg := range site.Type.Args {
		argSite := site
		argSite.Type = arg
		argSite.Kind = ir.UseReference
		argSite.Member = ""
		reqs = append(reqs, classifySite(reg, argSite)...)
	}
	return reqs
}

func (r *runner) apply(reg *registry.Registry, res *resolver.Resolver, f *SourceFile, req request) {
	switch req.kind {
	case reqDirect:
		reg.Use(req.mod, req.typ, req.site)
	case reqForeign:
		res.ResolveSite(req.site)
	case reqConstruction:
		c := &f.Constructions[req.construction]
		mod, t, ok := r.resolveConstruct(reg, res, &c.Type, c.Location, c.InBody)
		if !ok || t.CoClass == nil || c.Args > 0 {
			return
		}
		site := ir.UseSite{Type: c.Type, Kind: ir.UseReference, Location: c.Location, InBody: c.InBody, Checked: true}
		reg.Use(mod, t, site)
		// The lowered initializers call the setters.
		site.Kind = ir.UseMember
		for _, init := range c.Initializers {
			site.Member = "set_" + init.Property
			reg.Use(mod, t, site)
		}
	case reqEvent:
		e := &f.Events[req.event]
		mod, t, ok := r.resolveConstruct(reg, res, &e.Type, e.Location, e.InBody)
		if !ok {
			return
		}
		site := ir.UseSite{Type: e.Type, Kind: ir.UseMember, Member: e.Event, Location: e.Location, InBody: e.InBody, Checked: true}
		reg.Use(mod, t, site)
		if t.EventSource == nil {
			return
		}
		// The source interface is embedded with only the matching method.
		if smod, src, ok := reg.Lookup(t.EventSource.SourceInterface); ok && src.Kind == ir.KindInterface {
			site.Type = t.EventSource.SourceInterface
			reg.Use(smod, src, site)
		}
	}
}

// resolveConstruct finds the interface a construct names. A foreign clone is
// resolved first and ref is rewritten to the canonical interop type.
func (r *runner) resolveConstruct(reg *registry.Registry, res *resolver.Resolver, ref *ir.TypeRef, loc ir.Location, inBody bool) (*ir.InteropModule, *ir.EmbeddableType, bool) {
	if ref.Local {
		out := res.ResolveSite(ir.UseSite{Type: *ref, Kind: ir.UseReference, Origin: ref.Module, Location: loc, InBody: inBody, Checked: true})
		if out.Outcome != resolver.Resolved {
			return nil, nil, false
		}
		*ref = ir.TypeRef{Module: out.Module, Name: out.Ref.Name}
	}
	return reg.Lookup(*ref)
}

func (r *runner) lowerFile(tr *lower.Transformer, f *SourceFile) []lower.Lowered {
	var out []lower.Lowered
	for _, c := range f.Constructions {
		if c.Type.Local {
			continue
		}
		if l, ok := tr.LowerConstruction(c); ok {
			out = append(out, l)
		}
	}
	for _, e := range f.Events {
		if e.Type.Local {
			continue
		}
		if l, ok := tr.LowerEvent(e); ok {
			out = append(out, l)
		}
	}
	return out
}

func checkFile(tr *lower.Transformer, f *SourceFile) {
	for _, c := range f.Constructions {
		if !c.Type.Local {
			tr.CheckConstruction(c)
		}
	}
}

func identityEntries(m map[ir.IdentityKey]ir.LocalTypeHandle) []IdentityEntry {
	keys := make([]ir.IdentityKey, 0, len(m))
	for k := range m {
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
	out := make([]IdentityEntry, len(keys))
	for i, k := range keys {
		out[i] = IdentityEntry{Key: k.String(), Handle: m[k]}
	}
	return out
}
