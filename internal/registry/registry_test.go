package registry

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	tu "github.com/roach88/nopia/internal/testutil"
)

func newRegistry(t *testing.T, mods []*ir.InteropModule, opts ...Option) (*Registry, *diag.Aggregator) {
	t.Helper()
	agg := diag.NewAggregator(diag.BuildFull)
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(agg, mods, opts...), agg
}

func codes(agg *diag.Aggregator) []diag.Code {
	var out []diag.Code
	for _, d := range agg.Diagnostics() {
		out = append(out, d.Code)
	}
	return out
}

func memberNames(lt ir.LocalType) []string {
	names := make([]string, len(lt.Shape.Members))
	for i, m := range lt.Shape.Members {
		names[i] = m.Name
	}
	return names
}

// =============================================================================
// Idempotent registration
// =============================================================================

func TestStructRequestedTwiceYieldsOneLocalType(t *testing.T) {
	mod := tu.Module("M", tu.NullGUID(7), tu.Struct("S", tu.Field("F", tu.Core("int"))))
	s, _ := mod.Lookup("S")
	reg, agg := newRegistry(t, []*ir.InteropModule{mod})

	h1, ok := reg.RequestLocalType(mod, s, tu.Loc("x.cs", 1))
	require.True(t, ok)
	h2, ok := reg.RequestLocalType(mod, s, tu.Loc("y.cs", 2))
	require.True(t, ok)
	assert.Equal(t, h1, h2)

	types := reg.Finish()
	require.Len(t, types, 1)
	lt := types[0]
	assert.Equal(t, "S", lt.Name)
	assert.Equal(t, ir.IdentityMarker{Scope: tu.GUID(7), Identifier: "S"}, lt.Marker)
	require.Len(t, lt.Shape.Members, 1)
	assert.Equal(t, "F", lt.Shape.Members[0].Name)
	assert.Equal(t, ir.AccessPublic, lt.Shape.Members[0].Access)
	assert.Equal(t, tu.Loc("x.cs", 1), lt.FirstUse)
	assert.Empty(t, agg.Diagnostics())
}

func TestStructWithPrivateFieldIsRejected(t *testing.T) {
	private := tu.Field("g", tu.Core("int"))
	private.Access = ir.AccessPrivate
	mod := tu.Module("M", tu.NullGUID(7), tu.Struct("S", tu.Field("F", tu.Core("int")), private))
	s, _ := mod.Lookup("S")
	reg, agg := newRegistry(t, []*ir.InteropModule{mod})

	_, ok := reg.RequestLocalType(mod, s, tu.Loc("x.cs", 1))
	assert.False(t, ok)
	_, ok = reg.RequestLocalType(mod, s, tu.Loc("y.cs", 2))
	assert.False(t, ok)

	assert.Empty(t, reg.Finish())
	assert.Equal(t, []diag.Code{diag.CodeInteropStructContainsMethod}, codes(agg))
}

func TestHandleIsContentAddressed(t *testing.T) {
	mod := tu.Module("Pia1", tu.NullGUID(1), tu.Interface("ITest1", tu.NullGUID(2)))
	it, _ := mod.Lookup("ITest1")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	h, ok := reg.RequestLocalType(mod, it, tu.Loc("a.cs", 1))
	require.True(t, ok)
	assert.Equal(t, ir.MustHandleOf(ir.NewIdentityKey(tu.GUID(2), "ITest1")), h)

	got, ok := reg.Handle(ir.KeyOf(mod, it))
	require.True(t, ok)
	assert.Equal(t, h, got)
	assert.Equal(t, map[ir.IdentityKey]ir.LocalTypeHandle{ir.KeyOf(mod, it): h}, reg.Identity())
}

func TestConcurrentRequestsConverge(t *testing.T) {
	mod := tu.Module("Pia1", tu.NullGUID(1), tu.Interface("ITest1", tu.NullGUID(2), tu.Method("M1")))
	it, _ := mod.Lookup("ITest1")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	var wg sync.WaitGroup
	handles := make([]ir.LocalTypeHandle, 20)
	for i := range handles {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], _ = reg.RequestLocalType(mod, it, tu.Loc("a.cs", i+1))
		}()
	}
	wg.Wait()

	for _, h := range handles {
		assert.Equal(t, handles[0], h)
	}
	types := reg.Finish()
	require.Len(t, types, 1)
	assert.Equal(t, tu.Loc("a.cs", 1), types[0].FirstUse, "earliest location wins regardless of arrival order")
}

// =============================================================================
// Naming and identity collisions
// =============================================================================

func TestNameClashBetweenModules(t *testing.T) {
	pia1 := tu.Module("Pia1", tu.NullGUID(1), tu.Interface("ITest1", tu.NullGUID(10)))
	pia2 := tu.Module("Pia2", tu.NullGUID(2), tu.Interface("ITest1", tu.NullGUID(20)))
	a, _ := pia1.Lookup("ITest1")
	b, _ := pia2.Lookup("ITest1")
	reg, agg := newRegistry(t, []*ir.InteropModule{pia1, pia2})

	_, ok := reg.RequestLocalType(pia1, a, tu.Loc("a.cs", 1))
	require.True(t, ok)
	_, ok = reg.RequestLocalType(pia2, b, tu.Loc("a.cs", 2))
	assert.False(t, ok)

	types := reg.Finish()
	require.Len(t, types, 1)
	assert.Equal(t, "Pia1", types[0].SourceModule)

	diags := agg.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeLocalTypeNameClash, diags[0].Code)
	assert.Equal(t, []string{"ITest1", "Pia2"}, diags[0].Args)
}

func TestNameClashWithSourceType(t *testing.T) {
	mod := tu.Module("Pia1", tu.NullGUID(1), tu.Struct("S", tu.Field("F", tu.Core("int"))))
	s, _ := mod.Lookup("S")
	reg, agg := newRegistry(t, []*ir.InteropModule{mod}, WithSourceTypes("S"))

	_, ok := reg.RequestLocalType(mod, s, tu.Loc("a.cs", 1))
	assert.False(t, ok)
	assert.Empty(t, reg.Finish())
	assert.Equal(t, []diag.Code{diag.CodeLocalTypeNameClash}, codes(agg))
}

func TestSameIdentityInTwoModules(t *testing.T) {
	pia1 := tu.Module("Pia1", tu.NullGUID(1), tu.Interface("ITest1", tu.NullGUID(10)))
	pia2 := tu.Module("Pia2", tu.NullGUID(2), tu.Interface("ITest1", tu.NullGUID(10)))
	a, _ := pia1.Lookup("ITest1")
	b, _ := pia2.Lookup("ITest1")
	reg, agg := newRegistry(t, []*ir.InteropModule{pia1, pia2})

	h1, _ := reg.RequestLocalType(pia2, b, tu.Loc("a.cs", 1))
	h2, _ := reg.RequestLocalType(pia1, a, tu.Loc("a.cs", 2))
	reg.RequestLocalType(pia1, a, tu.Loc("a.cs", 3))
	assert.Equal(t, h1, h2)

	assert.Len(t, reg.Finish(), 1)
	diags := agg.Diagnostics()
	require.Len(t, diags, 1)
	assert.Equal(t, diag.CodeDuplicateInteropType, diags[0].Code)
	assert.Equal(t, []string{"ITest1", "Pia1", "Pia2"}, diags[0].Args)
}

func TestModuleAttributesReportedOnce(t *testing.T) {
	mod := &ir.InteropModule{Name: "Bare", Types: []ir.EmbeddableType{
		tu.Interface("I1", tu.NullGUID(1)),
		tu.Interface("I2", tu.NullGUID(2)),
	}}
	reg, agg := newRegistry(t, []*ir.InteropModule{mod})

	for _, name := range []string{"I1", "I2", "I1"} {
		it, _ := mod.Lookup(name)
		reg.RequestLocalType(mod, it, tu.Loc("a.cs", 1))
	}
	assert.Equal(t, []diag.Code{diag.CodeModuleMissingGuid, diag.CodeModuleMissingTypeLibPIA}, codes(agg))
}

// =============================================================================
// Member pruning
// =============================================================================

func TestUnusedInterfaceMembersBecomeGaps(t *testing.T) {
	mod := tu.Module("Pia1", tu.NullGUID(1), tu.Interface("ITest1", tu.NullGUID(2),
		tu.Method("M1"), tu.Method("M2"), tu.Gap("_VtblGap1_2", 2), tu.Method("M3"),
		tu.Method("M4"), tu.Property("P", tu.Core("int")), tu.Method("M5"),
	))
	it, _ := mod.Lookup("ITest1")
	ref := tu.Ref("Pia1", "ITest1")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	reg.Use(mod, it, tu.MemberUse(ref, "M2", tu.Loc("a.cs", 1)))
	reg.Use(mod, it, tu.MemberUse(ref, "set_P", tu.Loc("a.cs", 2)))

	types := reg.Finish()
	require.Len(t, types, 1)
	assert.Equal(t, []string{"_VtblGap1_1", "M2", "_VtblGap2_4", "P"}, memberNames(types[0]))
	assert.Equal(t, 4, types[0].Shape.Members[2].Slots, "declared gap, M3 and M4 merge")
}

func TestReferenceOnlyInterfaceHasNoMembers(t *testing.T) {
	mod := tu.Module("Pia1", tu.NullGUID(1), tu.Interface("ITest1", tu.NullGUID(2), tu.Method("M1")))
	it, _ := mod.Lookup("ITest1")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	reg.RequestLocalType(mod, it, tu.Loc("a.cs", 1))
	types := reg.Finish()
	require.Len(t, types, 1)
	assert.Empty(t, types[0].Shape.Members)
}

func TestRetainAllKinds(t *testing.T) {
	for _, kind := range []ir.UseKind{ir.UseImplements, ir.UseDynamic, ir.UseReflection} {
		t.Run(string(kind), func(t *testing.T) {
			base := tu.Interface("IBase", tu.NullGUID(3), tu.Method("B1"))
			derived := tu.Interface("IDerived", tu.NullGUID(2), tu.Method("M1"), tu.Method("M2"))
			derived.Bases = []ir.TypeRef{tu.Ref("Pia1", "IBase")}
			mod := tu.Module("Pia1", tu.NullGUID(1), base, derived)
			it, _ := mod.Lookup("IDerived")
			reg, _ := newRegistry(t, []*ir.InteropModule{mod})

			reg.Use(mod, it, tu.Use(tu.Ref("Pia1", "IDerived"), kind, tu.Loc("a.cs", 1)))

			types := reg.Finish()
			require.Len(t, types, 2)
			assert.Equal(t, []string{"B1"}, memberNames(types[0]))
			assert.Equal(t, []string{"M1", "M2"}, memberNames(types[1]))
		})
	}
}

func TestMemberUsedThroughDerivedInterface(t *testing.T) {
	base := tu.Interface("IBase", tu.NullGUID(3), tu.Method("B0"), tu.Method("B1"))
	derived := tu.Interface("IDerived", tu.NullGUID(2), tu.Method("M1"))
	derived.Bases = []ir.TypeRef{tu.Ref("Pia1", "IBase")}
	mod := tu.Module("Pia1", tu.NullGUID(1), base, derived)
	it, _ := mod.Lookup("IDerived")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	reg.Use(mod, it, tu.MemberUse(tu.Ref("Pia1", "IDerived"), "B1", tu.Loc("a.cs", 1)))

	types := reg.Finish()
	require.Len(t, types, 2)
	assert.Equal(t, "IBase", types[0].Name)
	assert.Equal(t, []string{"_VtblGap1_1", "B1"}, memberNames(types[0]))
	assert.Empty(t, types[1].Shape.Members)
}

func TestEnumsAndStructsAreNeverPruned(t *testing.T) {
	mod := tu.Module("Pia1", tu.NullGUID(1), tu.Enum("Color", "Red", "Green"))
	e, _ := mod.Lookup("Color")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	reg.RequestLocalType(mod, e, tu.Loc("a.cs", 1))
	types := reg.Finish()
	require.Len(t, types, 1)
	assert.Equal(t, []string{"Red", "Green", ".ctor"}, memberNames(types[0]))
}

// =============================================================================
// Finish
// =============================================================================

func TestFinishEmbedsSignatureTypes(t *testing.T) {
	it := tu.Interface("ITest1", tu.NullGUID(2),
		tu.Method("M1", tu.Param("s", tu.Ref("Pia1", "S"))),
		tu.Method("M2", tu.Param("c", tu.Ref("Pia1", "Color"))),
	)
	mod := tu.Module("Pia1", tu.NullGUID(1), it, tu.Struct("S", tu.Field("F", tu.Core("int"))), tu.Enum("Color", "Red"))
	iface, _ := mod.Lookup("ITest1")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	reg.Use(mod, iface, tu.MemberUse(tu.Ref("Pia1", "ITest1"), "M1", tu.Loc("a.cs", 1)))

	types := reg.Finish()
	names := make([]string, len(types))
	for i, lt := range types {
		names[i] = lt.Name
	}
	assert.Equal(t, []string{"ITest1", "S"}, names, "pruned M2 does not pull in Color")
	assert.Equal(t, tu.Loc("a.cs", 1), types[1].FirstUse)
}

func TestFinishIsSortedAndRepeatable(t *testing.T) {
	a := tu.Interface("A", tu.NullGUID(5))
	a.Namespace = "Z"
	b := tu.Interface("B", tu.NullGUID(6))
	b.Namespace = "Y"
	c := tu.Interface("C", tu.NullGUID(7))
	c.Namespace = "Y"
	mod := tu.Module("Pia1", tu.NullGUID(1), a, b, c)
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	for _, name := range []string{"Z.A", "Y.C", "Y.B"} {
		it, ok := mod.Lookup(name)
		require.True(t, ok, name)
		reg.RequestLocalType(mod, it, tu.Loc("a.cs", 1))
	}

	first := reg.Finish()
	var order []string
	for _, lt := range first {
		order = append(order, lt.QualifiedName())
	}
	assert.Equal(t, []string{"Y.B", "Y.C", "Z.A"}, order)
	assert.Equal(t, first, reg.Finish())
}

func TestInterfaceAttributes(t *testing.T) {
	it := tu.Interface("ITest1", tu.NullGUID(2))
	it.CoClass = &ir.CoClassBinding{Class: tu.Ref("Pia1", "C"), ClassGUID: tu.NullGUID(9)}
	mod := tu.Module("Pia1", tu.NullGUID(1), it)
	iface, _ := mod.Lookup("ITest1")
	reg, _ := newRegistry(t, []*ir.InteropModule{mod})

	reg.RequestLocalType(mod, iface, tu.Loc("a.cs", 1))
	types := reg.Finish()
	require.Len(t, types, 1)
	assert.Equal(t, []string{
		"ComImport",
		`Guid("00000000-0000-0000-0000-000000000002")`,
		"CoClass(C)",
		"CompilerGenerated",
		`TypeIdentifier("00000000-0000-0000-0000-000000000002", "ITest1")`,
	}, types[0].Attributes)
}
