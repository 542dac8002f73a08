package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/lower"
	"github.com/roach88/nopia/internal/resolver"
	tu "github.com/roach88/nopia/internal/testutil"
)

var quiet = WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

func run(t *testing.T, comp *Compilation, opts ...Option) *Plan {
	t.Helper()
	plan, err := Run(context.Background(), comp, append([]Option{quiet}, opts...)...)
	require.NoError(t, err)
	return plan
}

func codes(p *Plan) []diag.Code {
	var out []diag.Code
	for _, d := range p.Diagnostics {
		out = append(out, d.Code)
	}
	return out
}

// wideCompilation exercises every stage across many files.
func wideCompilation() *Compilation {
	it := tu.Interface("I", tu.NullGUID(0x10), tu.Method("M1"), tu.Method("M2"), tu.Property("P", tu.Core("int")))
	it.CoClass = &ir.CoClassBinding{Class: tu.Ref("A", "C"), ClassGUID: tu.NullGUID(0xc)}
	a := tu.Module("A", tu.NullGUID(1),
		it,
		tu.Class("C", tu.NullGUID(0xc)),
		tu.Struct("S", tu.Field("F", tu.Core("int"))),
		tu.Enum("Color", "Red", "Green"),
		tu.Interface("J", tu.NullGUID(0x20), tu.Method("N", tu.Param("s", tu.Ref("A", "S")))),
	)
	comp := &Compilation{Name: "App", Mode: diag.BuildFull, InteropModules: []*ir.InteropModule{a}}
	for i := 9; i >= 0; i-- {
		path := fmt.Sprintf("f%02d.cs", i)
		comp.Files = append(comp.Files, SourceFile{
			Path: path,
			Uses: []ir.UseSite{
				tu.MemberUse(tu.Ref("A", "I"), fmt.Sprintf("M%d", i%2+1), tu.Loc(path, 1)),
				tu.Use(tu.Ref("A", "Color"), ir.UseReference, tu.Loc(path, 2)),
				tu.MemberUse(tu.Ref("A", "J"), "N", tu.Loc(path, 3)),
			},
			Constructions: []lower.Construction{{Type: tu.Ref("A", "I"), Location: tu.Loc(path, 4), InBody: true}},
		})
	}
	return comp
}

// =============================================================================
// Determinism
// =============================================================================

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	base := run(t, wideCompilation(), WithWorkers(1))
	for _, workers := range []int{2, 4, 16} {
		got := run(t, wideCompilation(), WithWorkers(workers))
		if diff := cmp.Diff(base, got); diff != "" {
			t.Fatalf("workers=%d plan differs (-want +got):\n%s", workers, diff)
		}
	}
	assert.True(t, base.Emittable)
	assert.Len(t, base.Hash, 64)
}

func TestRunDoesNotMutateCompilation(t *testing.T) {
	a := tu.Module("A", tu.NullGUID(1), tu.Interface("I", tu.NullGUID(0x10)))
	comp := &Compilation{
		Name:           "App",
		InteropModules: []*ir.InteropModule{a},
		Compiled:       []*ir.CompiledModule{embedder("B", a, "I")},
		Files: []SourceFile{{
			Path:          "a.cs",
			Constructions: []lower.Construction{{Type: ir.TypeRef{Module: "B", Name: "I", Local: true}}},
		}},
	}
	run(t, comp)
	assert.True(t, comp.Files[0].Constructions[0].Type.Local)
	assert.Equal(t, "B", comp.Files[0].Constructions[0].Type.Module)
}

func TestPlanContents(t *testing.T) {
	plan := run(t, wideCompilation())

	var names []string
	for _, lt := range plan.LocalTypes {
		names = append(names, lt.Name)
	}
	assert.Equal(t, []string{"Color", "I", "J", "S"}, names, "S is pulled in by J.N")
	assert.Len(t, plan.Identity, 4)
	assert.Len(t, plan.Lowered, 10)
	assert.Empty(t, plan.Diagnostics)

	i, ok := plan.LocalType("I")
	require.True(t, ok)
	var members []string
	for _, m := range i.Shape.Members {
		members = append(members, m.Name)
	}
	assert.Equal(t, []string{"M1", "M2"}, members)

	img := plan.Image()
	assert.Equal(t, []string{"A"}, img.EmbeddedFrom)
	h, err := ir.PlanHash(img)
	require.NoError(t, err)
	assert.Equal(t, plan.Hash, h)
}

// =============================================================================
// Scenarios
// =============================================================================

func TestStructScenario(t *testing.T) {
	m := tu.Module("M", tu.NullGUID(0x9), tu.Struct("S", tu.Field("F", tu.Core("int"))))
	comp := &Compilation{
		Name:           "App",
		InteropModules: []*ir.InteropModule{m},
		Files: []SourceFile{
			{Path: "x.cs", Uses: []ir.UseSite{tu.Use(tu.Ref("M", "S"), ir.UseReference, tu.Loc("x.cs", 1))}},
			{Path: "y.cs", Uses: []ir.UseSite{tu.Use(tu.Ref("M", "S"), ir.UseReference, tu.Loc("y.cs", 1))}},
		},
	}

	plan := run(t, comp)
	require.Len(t, plan.LocalTypes, 1)
	s := plan.LocalTypes[0]
	assert.Equal(t, "S", s.Name)
	assert.Equal(t, ir.IdentityMarker{Scope: tu.GUID(0x9), Identifier: "S"}, s.Marker)
	assert.Equal(t, ir.AccessPublic, s.Shape.Members[0].Access)

	private := tu.Field("g", tu.Core("int"))
	private.Access = ir.AccessPrivate
	m.Types[0].Members = append(m.Types[0].Members, private)

	plan = run(t, comp)
	assert.Empty(t, plan.LocalTypes)
	assert.Equal(t, []diag.Code{diag.CodeInteropStructContainsMethod}, codes(plan))
	assert.False(t, plan.Emittable)
}

func TestConstructionScenario(t *testing.T) {
	it := tu.Interface("I", tu.NullGUID(0x1), tu.Method("M"))
	it.CoClass = &ir.CoClassBinding{Class: tu.Ref("P", "C"), ClassGUID: tu.NullGUID(0xc)}
	p := tu.Module("P", tu.NullGUID(0xa), it, tu.Class("C", tu.NullGUID(0xc)))

	good := &Compilation{Name: "App", InteropModules: []*ir.InteropModule{p}, Files: []SourceFile{{
		Path:          "a.cs",
		Constructions: []lower.Construction{{Type: tu.Ref("P", "I"), Location: tu.Loc("a.cs", 1), InBody: true}},
	}}}
	plan := run(t, good)
	require.Len(t, plan.Lowered, 1)
	assert.Equal(t, `ldstr "00000000-0000-0000-0000-00000000000c"`, plan.Lowered[0].Code[0].String())
	assert.Equal(t, "castclass I", plan.Lowered[0].Code[4].String())
	require.Len(t, plan.LocalTypes, 1)

	bad := &Compilation{Name: "App", InteropModules: []*ir.InteropModule{p}, Files: []SourceFile{{
		Path:          "a.cs",
		Constructions: []lower.Construction{{Type: tu.Ref("P", "I"), Args: 1, Location: tu.Loc("a.cs", 1), InBody: true}},
	}}}
	plan = run(t, bad)
	assert.Empty(t, plan.Lowered)
	assert.Empty(t, plan.LocalTypes, "the rejected construction adds no local type")
	assert.Equal(t, []diag.Code{diag.CodeBadCtorArgCount}, codes(plan))
}

func TestInitializerPropertiesStayInClone(t *testing.T) {
	it := tu.Interface("I", tu.NullGUID(0x1), tu.Method("M1"), tu.Property("P", tu.Core("int")))
	it.CoClass = &ir.CoClassBinding{Class: tu.Ref("P", "C"), ClassGUID: tu.NullGUID(0xc)}
	p := tu.Module("P", tu.NullGUID(0xa), it, tu.Class("C", tu.NullGUID(0xc)))

	comp := &Compilation{Name: "App", InteropModules: []*ir.InteropModule{p}, Files: []SourceFile{{
		Path: "a.cs",
		Constructions: []lower.Construction{{
			Type:         tu.Ref("P", "I"),
			Initializers: []lower.Initializer{{Property: "P", Value: "v"}},
			Location:     tu.Loc("a.cs", 1),
			InBody:       true,
		}},
	}}}

	plan := run(t, comp)
	require.Len(t, plan.Lowered, 1)
	code := plan.Lowered[0].Code
	assert.Equal(t, "callvirt I::set_P(int)", code[len(code)-1].String())

	lt, ok := plan.LocalType("I")
	require.True(t, ok)
	var names []string
	for _, m := range lt.Shape.Members {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"_VtblGap1_1", "P"}, names)
	assert.Empty(t, plan.Diagnostics)
}

func embedder(name string, mod *ir.InteropModule, types ...string) *ir.CompiledModule {
	c := &ir.CompiledModule{Name: name, EmbeddedFrom: []string{mod.Name}}
	for _, tn := range types {
		t, _ := mod.Lookup(tn)
		c.LocalTypes = append(c.LocalTypes, ir.ForeignRef{
			EmbeddingModule: name,
			Marker:          ir.KeyOf(mod, t).Marker(),
			GUID:            t.GUID,
			Kind:            t.Kind,
			Name:            t.QualifiedName(),
		})
	}
	return c
}

func TestCrossModuleConvergence(t *testing.T) {
	a := tu.Module("A", tu.NullGUID(1), tu.Interface("I", tu.NullGUID(0x6), tu.Method("M1")))
	comp := &Compilation{
		Name:           "App",
		InteropModules: []*ir.InteropModule{a},
		Compiled:       []*ir.CompiledModule{embedder("B", a, "I")},
		Files: []SourceFile{{
			Path: "a.cs",
			Uses: []ir.UseSite{
				tu.Use(tu.Ref("A", "I"), ir.UseReference, tu.Loc("a.cs", 1)),
				{Type: ir.TypeRef{Module: "B", Name: "I", Local: true}, Kind: ir.UseReference, Origin: "B", Location: tu.Loc("a.cs", 2), Checked: true},
			},
		}},
	}

	plan := run(t, comp)
	require.Len(t, plan.LocalTypes, 1)
	require.Len(t, plan.Resolutions, 1)
	assert.Equal(t, resolver.Resolved, plan.Resolutions[0].Outcome)
	assert.Equal(t, plan.LocalTypes[0].Handle, plan.Resolutions[0].Handle)
	assert.Empty(t, plan.Diagnostics)
}

// B referenced A without embedding, so its signatures name A's types
// directly.
func TestCanonicalTypeReadFromCompiledModule(t *testing.T) {
	a := tu.Module("A", tu.NullGUID(1), tu.Interface("I", tu.NullGUID(0x6), tu.Method("M1")))
	comp := &Compilation{
		Name:           "App",
		InteropModules: []*ir.InteropModule{a},
		Compiled:       []*ir.CompiledModule{{Name: "B"}},
		Files: []SourceFile{{Path: "f.cs", Uses: []ir.UseSite{
			{Type: tu.Ref("A", "I"), Kind: ir.UseReference, Origin: "B", Location: tu.Loc("f.cs", 1), Checked: true},
		}}},
	}

	plan := run(t, comp)
	require.Len(t, plan.LocalTypes, 1)
	assert.Equal(t, "I", plan.LocalTypes[0].QualifiedName())
	assert.Empty(t, plan.Diagnostics)
	assert.True(t, plan.Emittable)
}

func TestGenericPoisoning(t *testing.T) {
	a := tu.Module("A", tu.NullGUID(1), tu.Interface("ITest33", tu.NullGUID(0x6)))
	inst := ir.TypeRef{Name: "List", Args: []ir.TypeRef{{Module: "B", Name: "ITest33", Local: true}}}
	comp := &Compilation{
		Name:           "App",
		InteropModules: []*ir.InteropModule{a},
		Compiled:       []*ir.CompiledModule{embedder("B", a, "ITest33")},
		Files: []SourceFile{{Path: "a.cs", Uses: []ir.UseSite{
			{Type: inst, Kind: ir.UseReference, Origin: "B", Location: tu.Loc("a.cs", 1), Checked: true},
			{Type: inst, Kind: ir.UseReference, Origin: "B", Location: tu.Loc("a.cs", 2), Checked: true},
		}}},
	}

	plan := run(t, comp)
	assert.Empty(t, plan.LocalTypes)
	require.Len(t, plan.Errors(), 1)
	assert.Equal(t, diag.CodeGenericsUsedAcrossModules, plan.Errors()[0].Code)
	assert.Equal(t, []string{"List<ITest33>", "B"}, plan.Errors()[0].Args)
}

func TestEventSubscriptionEmbedsSourceInterface(t *testing.T) {
	facade := tu.Interface("IEvents", tu.NullGUID(0x21), tu.Event("E", tu.Ref("P", "D")), tu.Event("F", tu.Ref("P", "D")))
	facade.EventSource = &ir.EventSourceBinding{SourceInterface: tu.Ref("P", "ISource"), EventProvider: tu.Ref("P", "IEvents_EventProvider")}
	source := tu.Interface("ISource", tu.NullGUID(0x22), tu.Method("F"), tu.Method("E"), tu.Method("G"))
	p := tu.Module("P", tu.NullGUID(1), facade, source, tu.Delegate("D", tu.Void))

	comp := &Compilation{Name: "App", InteropModules: []*ir.InteropModule{p}, Files: []SourceFile{{
		Path: "a.cs",
		Events: []lower.EventAccess{{
			Type: tu.Ref("P", "IEvents"), Event: "E", Target: "src", Handler: "Program::OnE",
			Location: tu.Loc("a.cs", 3), InBody: true,
		}},
	}}}

	plan := run(t, comp)
	require.Len(t, plan.Lowered, 1)
	assert.Equal(t, lower.KindEventAdd, plan.Lowered[0].Kind)

	src, ok := plan.LocalType("ISource")
	require.True(t, ok)
	var members []string
	for _, m := range src.Shape.Members {
		members = append(members, m.Name)
	}
	assert.Equal(t, []string{"_VtblGap1_1", "E"}, members, "only the matching method is kept")

	_, ok = plan.LocalType("D")
	assert.True(t, ok, "handler delegate is embedded through the event signature")
}

// =============================================================================
// Build modes and failures
// =============================================================================

func TestMetadataOnlySuppressesBodyDiagnostics(t *testing.T) {
	it := tu.Interface("I", tu.NullGUID(0x1))
	nested := tu.Interface("Inner", tu.NullGUID(0x2))
	nested.DeclaringType = "Outer"
	p := tu.Module("P", tu.NullGUID(1), it, nested)

	comp := &Compilation{Name: "App", Mode: diag.BuildMetadataOnly, InteropModules: []*ir.InteropModule{p}, Files: []SourceFile{{
		Path: "a.cs",
		Uses: []ir.UseSite{tu.Use(tu.Ref("P", "Outer.Inner"), ir.UseReference, tu.Loc("a.cs", 1))},
		Constructions: []lower.Construction{
			{Type: tu.Ref("P", "I"), Location: tu.Loc("a.cs", 2), InBody: true},
		},
	}}}

	plan := run(t, comp)
	assert.Equal(t, []diag.Code{diag.CodeNestedType}, codes(plan), "structural stays, CS0144 is dropped")
	assert.Empty(t, plan.Lowered)

	comp.Mode = diag.BuildFull
	plan = run(t, comp)
	assert.ElementsMatch(t, []diag.Code{diag.CodeNestedType, diag.CodeNoNewAbstract}, codes(plan))
}

func TestMetadataOnlyChecksDeclarationConstructions(t *testing.T) {
	it := tu.Interface("I", tu.NullGUID(0x1))
	it.CoClass = &ir.CoClassBinding{Class: tu.Ref("P", "C"), ClassGUID: tu.NullGUID(0xc)}
	p := tu.Module("P", tu.NullGUID(0xa), it, tu.Class("C", tu.NullGUID(0xc)))

	comp := &Compilation{Name: "App", Mode: diag.BuildMetadataOnly, InteropModules: []*ir.InteropModule{p}, Files: []SourceFile{{
		Path: "a.cs",
		Constructions: []lower.Construction{
			{Type: tu.Ref("P", "I"), Args: 1, Location: tu.Loc("a.cs", 1), InBody: false},
			{Type: tu.Ref("P", "I"), Args: 2, Location: tu.Loc("a.cs", 2), InBody: true},
		},
	}}}

	plan := run(t, comp)
	assert.Empty(t, plan.Lowered)
	require.Len(t, plan.Diagnostics, 1)
	assert.Equal(t, diag.CodeBadCtorArgCount, plan.Diagnostics[0].Code)
	assert.Equal(t, []string{"I", "1"}, plan.Diagnostics[0].Args)
}

func TestRunNilCompilation(t *testing.T) {
	_, err := Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilCompilation)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, wideCompilation(), quiet)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
