// Package lower rewrites object construction against an embedded interop
// interface and event subscription on an event-source facade interface into
// explicit runtime calls.
//
// Both rewrites run after the registry has finished, and only for constructs
// whose interface has a live local type in the identity map.
package lower

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
)

// Op is an instruction opcode.
type Op string

const (
	OpLdstr     Op = "ldstr"
	OpLdnull    Op = "ldnull"
	OpLdarg0    Op = "ldarg.0"
	OpLdloc     Op = "ldloc"
	OpLdtoken   Op = "ldtoken"
	OpLdftn     Op = "ldftn"
	OpNewobj    Op = "newobj"
	OpCall      Op = "call"
	OpCallvirt  Op = "callvirt"
	OpCastclass Op = "castclass"
	OpDup       Op = "dup"
)

// Instr is one emitted instruction.
type Instr struct {
	Op      Op     `json:"op"`
	Operand string `json:"operand,omitempty"`
}

func (i Instr) String() string {
	if i.Operand == "" {
		return string(i.Op)
	}
	return string(i.Op) + " " + i.Operand
}

// Initializer is a property set in an object initializer.
type Initializer struct {
	Property string `json:"property" yaml:"property"`
	// Value is the already lowered value expression, loaded with ldloc.
	Value string `json:"value" yaml:"value"`
}

// Construction is `new I(args) { initializers }`.
type Construction struct {
	Type         ir.TypeRef    `json:"type"`
	Args         int           `json:"args"`
	Initializers []Initializer `json:"initializers,omitempty"`
	Location     ir.Location   `json:"location"`
	InBody       bool          `json:"in_body"`
}

// EventAccess is `target.E += handler` or `target.E -= handler`.
type EventAccess struct {
	Type   ir.TypeRef `json:"type"`
	Event  string     `json:"event"`
	Remove bool       `json:"remove,omitempty"`

	// Target is the local holding the event source object.
	Target string `json:"target"`

	// HandlerTarget is "this", a local name, or empty for a static handler.
	HandlerTarget string `json:"handler_target,omitempty"`
	Handler       string `json:"handler"`

	Location ir.Location `json:"location"`
	InBody   bool        `json:"in_body"`
}

// ConstructKind names the rewritten construct.
type ConstructKind string

const (
	KindConstruction ConstructKind = "construction"
	KindEventAdd     ConstructKind = "event-add"
	KindEventRemove  ConstructKind = "event-remove"
)

// Lowered is a rewritten construct ready for ordinary code generation.
type Lowered struct {
	Kind     ConstructKind      `json:"kind"`
	Type     string             `json:"type"`
	Handle   ir.LocalTypeHandle `json:"handle"`
	Location ir.Location        `json:"location"`
	Code     []Instr            `json:"code"`
}

// Listing renders the code one instruction per line.
func (l Lowered) Listing() string {
	lines := make([]string, len(l.Code))
	for i, in := range l.Code {
		lines[i] = in.String()
	}
	return strings.Join(lines, "\n")
}

// Resolver is the view of the finished registry the transformer needs.
type Resolver interface {
	Lookup(ref ir.TypeRef) (*ir.InteropModule, *ir.EmbeddableType, bool)
	Handle(key ir.IdentityKey) (ir.LocalTypeHandle, bool)
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Transformer) {
		t.log = l
	}
}

// WithRuntime sets the runtime member availability.
func WithRuntime(rt Runtime) Option {
	return func(t *Transformer) {
		t.rt = rt
	}
}

// Transformer performs the two rewrites.
type Transformer struct {
	types Resolver
	agg   *diag.Aggregator
	rt    Runtime
	log   *slog.Logger
}

// New creates a transformer over a finished identity map.
func New(types Resolver, agg *diag.Aggregator, opts ...Option) *Transformer {
	t := &Transformer{
		types: types,
		agg:   agg,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transformer) report(code diag.Code, loc ir.Location, inBody bool, args ...string) {
	t.agg.Report(diag.Cause{Code: code, Location: loc, Args: args, InBody: inBody})
}

// requireMembers reports every member the runtime lacks.
func (t *Transformer) requireMembers(loc ir.Location, inBody bool, members ...WellKnownMember) bool {
	ok := true
	for _, m := range members {
		if !t.rt.Has(m) {
			t.report(diag.CodeMissingPredefinedMember, loc, inBody, m.Type, m.Member)
			ok = false
		}
	}
	return ok
}

// LowerConstruction rewrites `new I()` into COM activation:
//
//	ldstr "<class guid>"
//	newobj System.Guid::.ctor(string)
//	call System.Runtime.InteropServices.Marshal::GetTypeFromCLSID(System.Guid)
//	call System.Activator::CreateInstance(System.Type)
//	castclass I
//
// A class without a GUID activates through the zero GUID and
// System.Type::GetTypeFromCLSID instead.
func (t *Transformer) LowerConstruction(c Construction) (Lowered, bool) {
	mod, iface, ok := t.types.Lookup(c.Type)
	if !ok || !t.checkConstruction(iface, c) {
		return Lowered{}, false
	}
	name := iface.QualifiedName()

	handle, ok := t.types.Handle(ir.KeyOf(mod, iface))
	if !ok {
		// Rejected or unresolved: the reason has already been reported.
		return Lowered{}, false
	}

	guid := uuid.Nil
	resolve := TypeGetTypeFromCLSID
	if cls := iface.CoClass; cls.ClassGUID.Valid {
		guid = cls.ClassGUID.UUID
		resolve = MarshalGetTypeFromCLSID
	}
	if !t.requireMembers(c.Location, c.InBody, GuidCtor, resolve, ActivatorCreateInstance) {
		return Lowered{}, false
	}

	code := []Instr{
		{OpLdstr, strconv.Quote(guid.String())},
		{OpNewobj, "System.Guid::.ctor(string)"},
		{OpCall, resolve.String() + "(System.Guid)"},
		{OpCall, "System.Activator::CreateInstance(System.Type)"},
		{OpCastclass, name},
	}
	for _, init := range c.Initializers {
		owner, typ := name, "object"
		if decl, prop, ok := t.findProperty(iface, init.Property, nil); ok {
			owner = decl.QualifiedName()
			if prop.Type != nil {
				typ = prop.Type.String()
			}
		}
		code = append(code,
			Instr{OpDup, ""},
			Instr{OpLdloc, init.Value},
			Instr{OpCallvirt, fmt.Sprintf("%s::set_%s(%s)", owner, init.Property, typ)},
		)
	}

	t.log.Debug("lowered construction", "type", name, "class_guid", guid.String())
	return Lowered{
		Kind:     KindConstruction,
		Type:     name,
		Handle:   handle,
		Location: c.Location,
		Code:     code,
	}, true
}

// CheckConstruction reports a construction that can never be activated:
// an interface without a coclass, or constructor arguments. It emits no
// code, so builds that skip lowering still see these errors.
func (t *Transformer) CheckConstruction(c Construction) bool {
	_, iface, ok := t.types.Lookup(c.Type)
	if !ok {
		return false
	}
	return t.checkConstruction(iface, c)
}

func (t *Transformer) checkConstruction(iface *ir.EmbeddableType, c Construction) bool {
	name := iface.QualifiedName()
	if iface.CoClass == nil {
		t.report(diag.CodeNoNewAbstract, c.Location, c.InBody, name)
		return false
	}
	if c.Args > 0 {
		t.report(diag.CodeBadCtorArgCount, c.Location, c.InBody, name, strconv.Itoa(c.Args))
		return false
	}
	return true
}

// findProperty returns the interface declaring prop, searching base
// interfaces depth first.
func (t *Transformer) findProperty(iface *ir.EmbeddableType, prop string, seen map[*ir.EmbeddableType]bool) (*ir.EmbeddableType, ir.Member, bool) {
	if seen[iface] {
		return nil, ir.Member{}, false
	}
	if m, ok := iface.Member(prop); ok && m.Kind == ir.MemberProperty {
		return iface, m, true
	}
	if seen == nil {
		seen = make(map[*ir.EmbeddableType]bool)
	}
	seen[iface] = true
	for _, b := range iface.Bases {
		if _, base, ok := t.types.Lookup(b); ok {
			if decl, m, ok := t.findProperty(base, prop, seen); ok {
				return decl, m, true
			}
		}
	}
	return nil, ir.Member{}, false
}

// LowerEvent rewrites an event add or remove on an event-source facade into
// a call through ComAwareEventInfo. Events on interfaces that are not
// facades are left to ordinary lowering and reported as not rewritten.
func (t *Transformer) LowerEvent(e EventAccess) (Lowered, bool) {
	mod, iface, ok := t.types.Lookup(e.Type)
	if !ok || iface.EventSource == nil {
		return Lowered{}, false
	}
	name := iface.QualifiedName()
	eventName := name + "." + e.Event

	handle, ok := t.types.Handle(ir.KeyOf(mod, iface))
	if !ok {
		return Lowered{}, false
	}

	_, src, ok := t.types.Lookup(iface.EventSource.SourceInterface)
	if !ok || src.Kind != ir.KindInterface {
		t.report(diag.CodeMissingSourceInterface, e.Location, e.InBody, name, eventName)
		return Lowered{}, false
	}
	if m, ok := src.Member(e.Event); !ok || m.Kind != ir.MemberMethod {
		t.report(diag.CodeMissingMethodOnSourceInterface, e.Location, e.InBody, src.QualifiedName(), e.Event, eventName)
		return Lowered{}, false
	}

	kind, handler := KindEventAdd, EventInfoAddEventHandler
	if e.Remove {
		kind, handler = KindEventRemove, EventInfoRemoveHandler
	}
	if !t.requireMembers(e.Location, e.InBody, TypeGetTypeFromHandle, ComAwareEventInfoCtor, handler) {
		return Lowered{}, false
	}

	delegate := "System.Delegate"
	if ev, ok := iface.Member(e.Event); ok && ev.Type != nil {
		delegate = ev.Type.String()
	}

	handlerTarget := Instr{Op: OpLdnull}
	switch e.HandlerTarget {
	case "":
	case "this":
		handlerTarget = Instr{Op: OpLdarg0}
	default:
		handlerTarget = Instr{OpLdloc, e.HandlerTarget}
	}

	code := []Instr{
		{OpLdtoken, name},
		{OpCall, TypeGetTypeFromHandle.String() + "(System.RuntimeTypeHandle)"},
		{OpLdstr, strconv.Quote(e.Event)},
		{OpNewobj, ComAwareEventInfoCtor.String() + "(System.Type, string)"},
		{OpLdloc, e.Target},
		handlerTarget,
		{OpLdftn, e.Handler},
		{OpNewobj, delegate + "::.ctor(object, System.IntPtr)"},
		{OpCallvirt, handler.String() + "(object, System.Delegate)"},
	}

	t.log.Debug("lowered event access", "event", eventName, "kind", kind)
	return Lowered{
		Kind:     kind,
		Type:     name,
		Handle:   handle,
		Location: e.Location,
		Code:     code,
	}, true
}
