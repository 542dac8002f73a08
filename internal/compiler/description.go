package compiler

import (
	"gopkg.in/guregu/null.v3"

	"github.com/roach88/nopia/internal/lower"
)

// Description is a compilation description: what the binder would hand the
// embedding subsystem for one module. It is the input format of the CLI and
// of harness scenarios.
//
// Type references are written in the textual form ParseTypeRef accepts.
type Description struct {
	Name string `json:"name" yaml:"name"`

	// Mode is "full" (default) or "metadata-only".
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	Modules     []ModuleDesc   `json:"modules" yaml:"modules"`
	Compiled    []CompiledDesc `json:"compiled,omitempty" yaml:"compiled,omitempty"`
	SourceTypes []string       `json:"source_types,omitempty" yaml:"source_types,omitempty"`
	Files       []FileDesc     `json:"files,omitempty" yaml:"files,omitempty"`

	// MissingRuntime names well-known members the target runtime lacks,
	// e.g. "System.Type::GetTypeFromCLSID".
	MissingRuntime []string `json:"missing_runtime,omitempty" yaml:"missing_runtime,omitempty"`
}

// ModuleDesc describes a directly referenced interop module.
type ModuleDesc struct {
	Name    string     `json:"name" yaml:"name"`
	GUID    string     `json:"guid,omitempty" yaml:"guid,omitempty"`
	TypeLib bool       `json:"imported_from_typelib,omitempty" yaml:"imported_from_typelib,omitempty"`
	Primary bool       `json:"primary,omitempty" yaml:"primary,omitempty"`
	Types   []TypeDesc `json:"types,omitempty" yaml:"types,omitempty"`
}

// TypeDesc describes one type of an interop module.
type TypeDesc struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Name      string `json:"name" yaml:"name"`
	Kind      string `json:"kind" yaml:"kind"`
	GUID      string `json:"guid,omitempty" yaml:"guid,omitempty"`

	// ComImport defaults to true for interfaces and classes.
	ComImport null.Bool `json:"com_import" yaml:"com_import"`

	Arity         int      `json:"arity,omitempty" yaml:"arity,omitempty"`
	DeclaringType string   `json:"declaring_type,omitempty" yaml:"declaring_type,omitempty"`
	Bases         []string `json:"bases,omitempty" yaml:"bases,omitempty"`
	Underlying    string   `json:"underlying,omitempty" yaml:"underlying,omitempty"`

	Members []MemberDesc `json:"members,omitempty" yaml:"members,omitempty"`

	// Literals is enum shorthand: public constants valued 0, 1, 2, ...
	Literals []string `json:"literals,omitempty" yaml:"literals,omitempty"`

	CoClass     *CoClassDesc     `json:"coclass,omitempty" yaml:"coclass,omitempty"`
	EventSource *EventSourceDesc `json:"event_source,omitempty" yaml:"event_source,omitempty"`
}

// CoClassDesc binds an interface to its activatable class.
type CoClassDesc struct {
	Class string `json:"class" yaml:"class"`
	GUID  string `json:"guid,omitempty" yaml:"guid,omitempty"`
}

// EventSourceDesc marks an interface as an event-source facade.
type EventSourceDesc struct {
	Source   string `json:"source" yaml:"source"`
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
}

// MemberDesc describes a member. Access defaults to public, a method's
// return type to void, and property and event accessors to the usual
// get_/set_ and add_/remove_ pairs.
type MemberDesc struct {
	Name        string      `json:"name" yaml:"name"`
	Kind        string      `json:"kind" yaml:"kind"`
	Type        string      `json:"type,omitempty" yaml:"type,omitempty"`
	Params      []ParamDesc `json:"params,omitempty" yaml:"params,omitempty"`
	Access      string      `json:"access,omitempty" yaml:"access,omitempty"`
	Static      bool        `json:"static,omitempty" yaml:"static,omitempty"`
	SpecialName bool        `json:"special_name,omitempty" yaml:"special_name,omitempty"`
	Body        bool        `json:"body,omitempty" yaml:"body,omitempty"`
	Literal     bool        `json:"literal,omitempty" yaml:"literal,omitempty"`
	Value       int64       `json:"value,omitempty" yaml:"value,omitempty"`
	Accessors   []string    `json:"accessors,omitempty" yaml:"accessors,omitempty"`
	Slots       int         `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// ParamDesc is a method parameter.
type ParamDesc struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// CompiledDesc describes an already compiled referenced module.
type CompiledDesc struct {
	Name         string        `json:"name" yaml:"name"`
	EmbeddedFrom []string      `json:"embedded_from,omitempty" yaml:"embedded_from,omitempty"`
	LocalTypes   []ForeignDesc `json:"local_types,omitempty" yaml:"local_types,omitempty"`
}

// ForeignDesc is a local type carried by a compiled module.
//
// With From set the identity is computed from the named interop module of
// the same description; otherwise Scope and Identifier give it directly.
type ForeignDesc struct {
	Name       string `json:"name" yaml:"name"`
	From       string `json:"from,omitempty" yaml:"from,omitempty"`
	Scope      string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty"`
	GUID       string `json:"guid,omitempty" yaml:"guid,omitempty"`
}

// FileDesc groups the use sites of one source file.
type FileDesc struct {
	Path          string             `json:"path" yaml:"path"`
	Uses          []UseDesc          `json:"uses,omitempty" yaml:"uses,omitempty"`
	Constructions []ConstructionDesc `json:"constructions,omitempty" yaml:"constructions,omitempty"`
	Events        []EventDesc        `json:"events,omitempty" yaml:"events,omitempty"`
}

// UseDesc is one use site. InBody and Checked default to true; Column
// defaults to 1.
type UseDesc struct {
	Type    string    `json:"type" yaml:"type"`
	Kind    string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Member  string    `json:"member,omitempty" yaml:"member,omitempty"`
	Origin  string    `json:"origin,omitempty" yaml:"origin,omitempty"`
	Line    int       `json:"line,omitempty" yaml:"line,omitempty"`
	Column  int       `json:"column,omitempty" yaml:"column,omitempty"`
	InBody  null.Bool `json:"in_body" yaml:"in_body"`
	Checked null.Bool `json:"checked" yaml:"checked"`
}

// ConstructionDesc is `new I(args) { initializers }`.
type ConstructionDesc struct {
	Type         string              `json:"type" yaml:"type"`
	Args         int                 `json:"args,omitempty" yaml:"args,omitempty"`
	Initializers []lower.Initializer `json:"initializers,omitempty" yaml:"initializers,omitempty"`
	Line         int                 `json:"line,omitempty" yaml:"line,omitempty"`
	Column       int                 `json:"column,omitempty" yaml:"column,omitempty"`
	InBody       null.Bool           `json:"in_body" yaml:"in_body"`
}

// EventDesc is an event subscription or unsubscription.
type EventDesc struct {
	Type          string    `json:"type" yaml:"type"`
	Event         string    `json:"event" yaml:"event"`
	Remove        bool      `json:"remove,omitempty" yaml:"remove,omitempty"`
	Target        string    `json:"target" yaml:"target"`
	HandlerTarget string    `json:"handler_target,omitempty" yaml:"handler_target,omitempty"`
	Handler       string    `json:"handler" yaml:"handler"`
	Line          int       `json:"line,omitempty" yaml:"line,omitempty"`
	Column        int       `json:"column,omitempty" yaml:"column,omitempty"`
	InBody        null.Bool `json:"in_body" yaml:"in_body"`
}
