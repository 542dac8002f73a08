package ir

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Location is a use-site position reported by the binder.
type Location struct {
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty"`
}

// IsZero reports whether the location carries no position (module-level causes).
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Column == 0
}

func (l Location) String() string {
	if l.IsZero() {
		return "<module>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Before orders locations by file, line, column.
func (l Location) Before(other Location) bool {
	if l.File != other.File {
		return l.File < other.File
	}
	if l.Line != other.Line {
		return l.Line < other.Line
	}
	return l.Column < other.Column
}

// UseKind describes how a use site touches an interop type.
type UseKind string

const (
	// UseReference mentions the type (signature, local, cast, default(T)).
	UseReference UseKind = "reference"
	// UseMember accesses a named member of the type.
	UseMember UseKind = "member"
	// UseImplements is a source class implementing the interface; every
	// member must be retained.
	UseImplements UseKind = "implements"
	// UseDynamic is late-bound access; every member must be retained.
	UseDynamic UseKind = "dynamic"
	// UseReflection is reflective access; every member must be retained.
	UseReflection UseKind = "reflection"
)

// RetainsAll reports whether the use kind forces all members to be kept.
func (k UseKind) RetainsAll() bool {
	return k == UseImplements || k == UseDynamic || k == UseReflection
}

// UseSite is one (type, kind, location) tuple from the binder.
type UseSite struct {
	Type   TypeRef `json:"type"`
	Kind   UseKind `json:"kind"`
	Member string  `json:"member,omitempty"`

	// Origin names the compiled module whose metadata the reference was read
	// from. Empty for references written in the current compilation.
	Origin string `json:"origin,omitempty"`

	Location Location `json:"location"`

	// InBody marks uses inside method bodies (absent from metadata-only images).
	InBody bool `json:"in_body,omitempty"`

	// Checked marks uses that participate in a checked expression reachable
	// from emitted code.
	Checked bool `json:"checked,omitempty"`
}

// Shape is the clonable shape the legality checker produces.
type Shape struct {
	Kind       Kind      `json:"kind"`
	Bases      []TypeRef `json:"bases,omitempty"`
	Underlying string    `json:"underlying,omitempty"`
	Members    []Member  `json:"members"`
}

// LocalType is the clone emitted into the current module.
type LocalType struct {
	Handle       LocalTypeHandle `json:"handle"`
	Key          IdentityKey     `json:"key"`
	Marker       IdentityMarker  `json:"marker"`
	Namespace    string          `json:"namespace,omitempty"`
	Name         string          `json:"name"`
	Kind         Kind            `json:"kind"`
	GUID         uuid.NullUUID   `json:"guid"`
	SourceModule string          `json:"source_module"`
	Shape        Shape           `json:"shape"`
	Attributes   []string        `json:"attributes"`
	FirstUse     Location        `json:"first_use"`
}

// QualifiedName returns Namespace.Name.
func (lt *LocalType) QualifiedName() string {
	if lt.Namespace == "" {
		return lt.Name
	}
	return lt.Namespace + "." + lt.Name
}

// ForeignRef is a local type found in another, already compiled module.
type ForeignRef struct {
	EmbeddingModule string         `json:"embedding_module"`
	Marker          IdentityMarker `json:"marker"`
	GUID            uuid.NullUUID  `json:"guid"`
	Kind            Kind           `json:"kind"`
	Name            string         `json:"name"`
}

// Key returns the identity key the foreign clone claims.
func (f ForeignRef) Key() IdentityKey {
	return f.Marker.Key()
}

// CompiledModule is an already compiled referenced module.
type CompiledModule struct {
	Name       string       `json:"name"`
	LocalTypes []ForeignRef `json:"local_types"`

	// EmbeddedFrom lists the interop modules this module embedded types from.
	EmbeddedFrom []string `json:"embedded_from,omitempty"`
}

// LocalType finds a clone by qualified name.
func (c *CompiledModule) LocalType(name string) (ForeignRef, bool) {
	for _, lt := range c.LocalTypes {
		if lt.Name == name {
			return lt, true
		}
	}
	return ForeignRef{}, false
}

// ModuleImage is the emitted module: the final list of local types to
// materialize, each with its clone shape and identity marker.
type ModuleImage struct {
	Name         string      `json:"name"`
	LocalTypes   []LocalType `json:"local_types"`
	EmbeddedFrom []string    `json:"embedded_from,omitempty"`
}

// AsCompiled is the view a later compilation gets when it references img.
func (img ModuleImage) AsCompiled() CompiledModule {
	c := CompiledModule{
		Name:         img.Name,
		EmbeddedFrom: append([]string(nil), img.EmbeddedFrom...),
	}
	for _, lt := range img.LocalTypes {
		c.LocalTypes = append(c.LocalTypes, ForeignRef{
			EmbeddingModule: img.Name,
			Marker:          lt.Marker,
			GUID:            lt.GUID,
			Kind:            lt.Kind,
			Name:            lt.QualifiedName(),
		})
	}
	return c
}

// canonical builds the hashable form of the image.
func (img ModuleImage) canonical() Object {
	types := make(Array, len(img.LocalTypes))
	for i, lt := range img.LocalTypes {
		members := make(Array, len(lt.Shape.Members))
		for j, m := range lt.Shape.Members {
			members[j] = String(m.Signature())
		}
		bases := make([]string, len(lt.Shape.Bases))
		for j, b := range lt.Shape.Bases {
			bases[j] = b.String()
		}
		types[i] = Object{
			"handle":     String(string(lt.Handle)),
			"scope":      String(lt.Marker.Scope.String()),
			"identifier": String(lt.Marker.Identifier),
			"kind":       String(string(lt.Kind)),
			"underlying": String(lt.Shape.Underlying),
			"bases":      Strings(bases),
			"members":    members,
			"attributes": Strings(lt.Attributes),
		}
	}
	return Object{
		"name":          String(img.Name),
		"version":       String(PlanVersion),
		"embedded_from": Strings(img.EmbeddedFrom),
		"local_types":   types,
	}
}

// Signature renders a member compactly, e.g. "method public M1(int a): void".
func (m Member) Signature() string {
	var b strings.Builder
	b.WriteString(string(m.Kind))
	if m.Access != "" {
		b.WriteString(" " + string(m.Access))
	}
	if m.Static {
		b.WriteString(" static")
	}
	if m.SpecialName {
		b.WriteString(" specialname")
	}
	b.WriteString(" " + m.Name)
	switch m.Kind {
	case MemberMethod, MemberConstructor:
		params := make([]string, len(m.Params))
		for i, p := range m.Params {
			params[i] = p.Type.String() + " " + p.Name
		}
		b.WriteString("(" + strings.Join(params, ", ") + ")")
	case MemberGap:
		fmt.Fprintf(&b, "[%d]", m.SlotCount())
	}
	if m.Type != nil {
		b.WriteString(": " + m.Type.String())
	}
	if m.Literal {
		fmt.Fprintf(&b, " = %d", m.Value)
	}
	return b.String()
}
