package ir

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind classifies a type declared in an interop module.
type Kind string

const (
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindDelegate  Kind = "delegate"
	// KindClass is a coclass. Classes are never embeddable; they appear only
	// as targets of CoClass bindings.
	KindClass Kind = "class"
)

// ValidKinds defines the kinds a compilation description may use.
var ValidKinds = map[Kind]bool{
	KindInterface: true,
	KindStruct:    true,
	KindEnum:      true,
	KindDelegate:  true,
	KindClass:     true,
}

// MemberKind classifies a member of an embeddable type.
type MemberKind string

const (
	MemberMethod      MemberKind = "method"
	MemberProperty    MemberKind = "property"
	MemberEvent       MemberKind = "event"
	MemberField       MemberKind = "field"
	MemberConstructor MemberKind = "constructor"
	// MemberGap is a reserved vtable slot range.
	MemberGap MemberKind = "gap"
)

// Access is the declared accessibility of a member.
type Access string

const (
	AccessPublic    Access = "public"
	AccessInternal  Access = "internal"
	AccessProtected Access = "protected"
	AccessPrivate   Access = "private"
)

// TypeRef names a type as it appears in a signature or at a use site.
type TypeRef struct {
	// Module is the declaring module. Empty for core library types
	// (int, string, System.Object, ...).
	Module string `json:"module,omitempty" yaml:"module,omitempty"`

	// Name is the namespace-qualified name without generic arguments.
	Name string `json:"name" yaml:"name"`

	// Args are generic type arguments.
	Args []TypeRef `json:"args,omitempty" yaml:"args,omitempty"`

	// Local is set when the reference points at a clone carried by the
	// (compiled) Module rather than at a genuine definition.
	Local bool `json:"local,omitempty" yaml:"local,omitempty"`
}

// IsGeneric reports whether the reference carries type arguments.
func (r TypeRef) IsGeneric() bool {
	return len(r.Args) > 0
}

// String renders the reference the way diagnostics name it, e.g. "List<ITest33>".
func (r TypeRef) String() string {
	if len(r.Args) == 0 {
		return r.Name
	}
	args := make([]string, len(r.Args))
	for i, a := range r.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>", r.Name, strings.Join(args, ", "))
}

// Param is a method parameter.
type Param struct {
	Name string  `json:"name"`
	Type TypeRef `json:"type"`
}

// Member is a member of an embeddable type.
type Member struct {
	Name        string     `json:"name"`
	Kind        MemberKind `json:"kind"`
	Access      Access     `json:"access,omitempty"`
	Static      bool       `json:"static,omitempty"`
	SpecialName bool       `json:"special_name,omitempty"`
	HasBody     bool       `json:"has_body,omitempty"`

	// Type is the field type, property type, event handler type or method return type.
	Type *TypeRef `json:"type,omitempty"`

	Params []Param `json:"params,omitempty"`

	// Literal marks an enum constant; Value holds its integral value.
	Literal bool  `json:"literal,omitempty"`
	Value   int64 `json:"value,omitempty"`

	// Accessors names the methods backing a property or event
	// (get_X/set_X, add_E/remove_E).
	Accessors []string `json:"accessors,omitempty"`

	// Slots is the number of vtable slots a gap reserves.
	Slots int `json:"slots,omitempty"`
}

// IsSlot reports whether the member occupies vtable slots.
func (m Member) IsSlot() bool {
	return m.SlotCount() > 0
}

// SlotCount is the number of vtable slots the member occupies. Properties and
// events occupy one slot per accessor.
func (m Member) SlotCount() int {
	switch m.Kind {
	case MemberMethod:
		return 1
	case MemberGap:
		if m.Slots < 1 {
			return 1
		}
		return m.Slots
	case MemberProperty, MemberEvent:
		return len(m.Accessors)
	}
	return 0
}

// CoClassBinding pairs an interop interface with its activatable class.
type CoClassBinding struct {
	Class     TypeRef       `json:"class"`
	ClassGUID uuid.NullUUID `json:"class_guid"`
}

// EventSourceBinding marks an interface as an event-source facade: its events
// are implemented by the add/remove methods of SourceInterface.
type EventSourceBinding struct {
	SourceInterface TypeRef `json:"source_interface"`
	EventProvider   TypeRef `json:"event_provider"`
}

// EmbeddableType is a type declared inside an interop module that is a
// candidate for cloning.
type EmbeddableType struct {
	Namespace string        `json:"namespace,omitempty"`
	Name      string        `json:"name"`
	Kind      Kind          `json:"kind"`
	GUID      uuid.NullUUID `json:"guid"`
	ComImport bool          `json:"com_import,omitempty"`
	Arity     int           `json:"arity,omitempty"`

	// DeclaringType is non-empty for nested types.
	DeclaringType string `json:"declaring_type,omitempty"`

	Bases      []TypeRef `json:"bases,omitempty"`
	Underlying string    `json:"underlying,omitempty"`
	Members    []Member  `json:"members,omitempty"`

	CoClass     *CoClassBinding     `json:"coclass,omitempty"`
	EventSource *EventSourceBinding `json:"event_source,omitempty"`
}

// QualifiedName returns Namespace.Name (or DeclaringType.Name for nested types).
func (t *EmbeddableType) QualifiedName() string {
	prefix := t.Namespace
	if t.DeclaringType != "" {
		prefix = t.DeclaringType
	}
	if prefix == "" {
		return t.Name
	}
	return prefix + "." + t.Name
}

// DisplayName names the type in diagnostics; generic definitions render
// their parameters, e.g. "ITest20<T>".
func (t *EmbeddableType) DisplayName() string {
	name := t.QualifiedName()
	if t.Arity == 0 {
		return name
	}
	params := make([]string, t.Arity)
	for i := range params {
		if i == 0 {
			params[i] = "T"
		} else {
			params[i] = fmt.Sprintf("T%d", i+1)
		}
	}
	return fmt.Sprintf("%s<%s>", name, strings.Join(params, ", "))
}

// Member looks up a member by name.
func (t *EmbeddableType) Member(name string) (Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// InteropModule is an external compiled module marked as typelib-imported.
type InteropModule struct {
	Name                string           `json:"name"`
	GUID                uuid.NullUUID    `json:"guid"`
	ImportedFromTypeLib bool             `json:"imported_from_typelib,omitempty"`
	IsPrimary           bool             `json:"is_primary,omitempty"`
	Types               []EmbeddableType `json:"types"`
}

// Lookup finds a type by qualified name.
func (m *InteropModule) Lookup(qualifiedName string) (*EmbeddableType, bool) {
	for i := range m.Types {
		if m.Types[i].QualifiedName() == qualifiedName {
			return &m.Types[i], true
		}
	}
	return nil, false
}

// Scope returns the module-level identity scope (zero GUID when absent).
func (m *InteropModule) Scope() uuid.UUID {
	if m.GUID.Valid {
		return m.GUID.UUID
	}
	return uuid.Nil
}
