// Package legality decides, per type kind, whether an interop type may be
// cloned into the consuming module and what the clone looks like.
//
// The checker never stops at the first problem: every violation it can
// observe for a type is returned together with the shape (when one exists).
package legality

import (
	"fmt"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
)

// Attribute names reported by missing-attribute violations.
const (
	AttrComImport           = "ComImportAttribute"
	AttrGuid                = "GuidAttribute"
	AttrImportedFromTypeLib = "ImportedFromTypeLibAttribute"
	AttrPrimaryInterop      = "PrimaryInteropAssemblyAttribute"
)

// Violation is one rule a type (or module) breaks.
type Violation struct {
	// Symbol names the offending type, member or module.
	Symbol   string      `json:"symbol"`
	Rule     diag.Code   `json:"rule"`
	Location ir.Location `json:"location"`
	Args     []string    `json:"args"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s at %s", v.Rule, v.Symbol, v.Location)
}

// Cause converts the violation for the aggregator.
func (v Violation) Cause(inBody bool) diag.Cause {
	return diag.Cause{Code: v.Rule, Location: v.Location, Args: v.Args, InBody: inBody}
}

// Result is the outcome of checking one type. Shape is nil when the type has
// no legal clone.
type Result struct {
	Shape      *ir.Shape
	Violations []Violation
}

// OK reports whether the type can be embedded.
func (r Result) OK() bool {
	return r.Shape != nil && len(r.Violations) == 0
}

type checker struct {
	t    *ir.EmbeddableType
	loc  ir.Location
	errs []Violation
}

func (c *checker) violate(symbol string, rule diag.Code, args ...string) {
	c.errs = append(c.errs, Violation{
		Symbol:   symbol,
		Rule:     rule,
		Location: c.loc,
		Args:     args,
	})
}

// Check validates t for embedding at loc.
func Check(t *ir.EmbeddableType, loc ir.Location) Result {
	c := &checker{t: t, loc: loc}
	name := t.DisplayName()

	if t.DeclaringType != "" {
		c.violate(name, diag.CodeNestedType, name)
	}
	if t.Arity > 0 {
		c.violate(name, diag.CodeGenericsUsedInNoPIAType, name)
	}

	var shape *ir.Shape
	switch t.Kind {
	case ir.KindInterface:
		shape = c.checkInterface()
	case ir.KindStruct:
		shape = c.checkStruct()
	case ir.KindEnum:
		shape = c.checkEnum()
	case ir.KindDelegate:
		shape = c.checkDelegate()
	case ir.KindClass:
		c.violate(name, diag.CodeNewCoClassOnLink, name)
	default:
		// Unknown kinds are rejected by description validation; nothing
		// can be cloned.
	}

	if len(c.errs) > 0 {
		shape = nil
	}
	return Result{Shape: shape, Violations: c.errs}
}

func (c *checker) checkInterface() *ir.Shape {
	t := c.t
	name := t.QualifiedName()
	if !t.ComImport {
		c.violate(name, diag.CodeInteropTypeMissingAttribute, name, AttrComImport)
	}
	if !t.GUID.Valid {
		c.violate(name, diag.CodeInteropTypeMissingAttribute, name, AttrGuid)
	}

	members := make([]ir.Member, 0, len(t.Members))
	for _, m := range t.Members {
		if m.Kind == ir.MemberMethod && m.HasBody {
			symbol := name + "." + m.Name
			c.violate(symbol, diag.CodeInteropMethodWithBody, symbol)
		}
		m.HasBody = false
		members = append(members, cloneMember(m))
	}
	return &ir.Shape{
		Kind:    ir.KindInterface,
		Bases:   cloneRefs(t.Bases),
		Members: members,
	}
}

func (c *checker) checkStruct() *ir.Shape {
	t := c.t
	name := t.QualifiedName()

	var fields []ir.Member
	for _, m := range t.Members {
		if m.Kind != ir.MemberField || m.Access != ir.AccessPublic || m.Static || m.Literal {
			c.violate(name+"."+m.Name, diag.CodeInteropStructContainsMethod, name)
			continue
		}
		fields = append(fields, cloneMember(m))
	}
	return &ir.Shape{Kind: ir.KindStruct, Members: fields}
}

// IntegralTypes are the legal enum underlying types.
var IntegralTypes = map[string]bool{
	"sbyte": true, "byte": true,
	"short": true, "ushort": true,
	"int": true, "uint": true,
	"long": true, "ulong": true,
}

func (c *checker) checkEnum() *ir.Shape {
	t := c.t
	underlying := t.Underlying
	if underlying == "" {
		underlying = "int"
	}

	var members []ir.Member
	for _, m := range t.Members {
		if m.Kind == ir.MemberField && m.Literal && m.Access == ir.AccessPublic {
			members = append(members, cloneMember(m))
		}
	}
	// Runtime-provided default constructor stub.
	members = append(members, ir.Member{
		Name:        ".ctor",
		Kind:        ir.MemberConstructor,
		Access:      ir.AccessPublic,
		SpecialName: true,
	})
	return &ir.Shape{Kind: ir.KindEnum, Underlying: underlying, Members: members}
}

func (c *checker) checkDelegate() *ir.Shape {
	return &ir.Shape{Kind: ir.KindDelegate, Members: DelegateMembers(c.t)}
}

// Well-known core types used by synthesized delegate members.
var (
	objectType      = ir.TypeRef{Name: "object"}
	intPtrType      = ir.TypeRef{Name: "System.IntPtr"}
	asyncCallback   = ir.TypeRef{Name: "System.AsyncCallback"}
	asyncResultType = ir.TypeRef{Name: "System.IAsyncResult"}
	voidType        = ir.TypeRef{Name: "void"}
)

// DelegateMembers derives the four canonical delegate members from the
// declared Invoke method. Without Invoke only the constructor is produced.
func DelegateMembers(t *ir.EmbeddableType) []ir.Member {
	members := []ir.Member{{
		Name:        ".ctor",
		Kind:        ir.MemberConstructor,
		Access:      ir.AccessPublic,
		SpecialName: true,
		Params: []ir.Param{
			{Name: "object", Type: objectType},
			{Name: "method", Type: intPtrType},
		},
	}}

	invoke, ok := t.Member("Invoke")
	if !ok {
		return members
	}
	ret := voidType
	if invoke.Type != nil {
		ret = *invoke.Type
	}
	params := cloneParams(invoke.Params)

	begin := append(cloneParams(invoke.Params),
		ir.Param{Name: "callback", Type: asyncCallback},
		ir.Param{Name: "object", Type: objectType},
	)

	return append(members,
		ir.Member{Name: "Invoke", Kind: ir.MemberMethod, Access: ir.AccessPublic, Type: refPtr(ret), Params: params},
		ir.Member{Name: "BeginInvoke", Kind: ir.MemberMethod, Access: ir.AccessPublic, Type: refPtr(asyncResultType), Params: begin},
		ir.Member{Name: "EndInvoke", Kind: ir.MemberMethod, Access: ir.AccessPublic, Type: refPtr(ret),
			Params: []ir.Param{{Name: "result", Type: asyncResultType}}},
	)
}

// CheckModule validates the module-level attributes that every embedding
// from mod depends on. Violations carry no location: they belong to the
// module, not to a use site.
func CheckModule(mod *ir.InteropModule) []Violation {
	var errs []Violation
	if !mod.GUID.Valid {
		errs = append(errs, Violation{
			Symbol: mod.Name,
			Rule:   diag.CodeModuleMissingGuid,
			Args:   []string{mod.Name, AttrGuid},
		})
	}
	if !mod.ImportedFromTypeLib && !mod.IsPrimary {
		errs = append(errs, Violation{
			Symbol: mod.Name,
			Rule:   diag.CodeModuleMissingTypeLibPIA,
			Args:   []string{mod.Name, AttrImportedFromTypeLib, AttrPrimaryInterop},
		})
	}
	return errs
}

func refPtr(r ir.TypeRef) *ir.TypeRef {
	return &r
}

func cloneRefs(refs []ir.TypeRef) []ir.TypeRef {
	if len(refs) == 0 {
		return nil
	}
	out := make([]ir.TypeRef, len(refs))
	copy(out, refs)
	return out
}

func cloneParams(ps []ir.Param) []ir.Param {
	if len(ps) == 0 {
		return nil
	}
	out := make([]ir.Param, len(ps))
	copy(out, ps)
	return out
}

func cloneMember(m ir.Member) ir.Member {
	if m.Type != nil {
		m.Type = refPtr(*m.Type)
	}
	m.Params = cloneParams(m.Params)
	if len(m.Accessors) > 0 {
		m.Accessors = append([]string(nil), m.Accessors...)
	}
	return m
}
