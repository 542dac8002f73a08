package ir

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// IdentityKey identifies an embeddable type across modules.
//
// Scope is the type's own GUID for interfaces that carry one, otherwise the
// declaring module's GUID. Name is the NFC-normalised qualified name.
type IdentityKey struct {
	Scope uuid.UUID `json:"scope"`
	Name  string    `json:"name"`
}

// NewIdentityKey builds a key with a normalised name.
func NewIdentityKey(scope uuid.UUID, name string) IdentityKey {
	return IdentityKey{Scope: scope, Name: norm.NFC.String(name)}
}

// KeyOf computes the identity key of t declared in mod.
func KeyOf(mod *InteropModule, t *EmbeddableType) IdentityKey {
	if t.Kind == KindInterface && t.GUID.Valid {
		return NewIdentityKey(t.GUID.UUID, t.QualifiedName())
	}
	return NewIdentityKey(mod.Scope(), t.QualifiedName())
}

// String renders the key as "{scope}name".
func (k IdentityKey) String() string {
	return fmt.Sprintf("{%s}%s", k.Scope, k.Name)
}

// Less orders keys by name, then scope.
func (k IdentityKey) Less(other IdentityKey) bool {
	if k.Name != other.Name {
		return k.Name < other.Name
	}
	return k.Scope.String() < other.Scope.String()
}

// IdentityMarker is the synthesized (scope, identifier) pair attached to a
// clone so other modules recognise it as a local copy rather than an
// authoritative definition.
type IdentityMarker struct {
	Scope      uuid.UUID `json:"scope"`
	Identifier string    `json:"identifier"`
}

// Marker returns the identity marker for the key.
func (k IdentityKey) Marker() IdentityMarker {
	return IdentityMarker{Scope: k.Scope, Identifier: k.Name}
}

// Key returns the identity key a marker denotes.
func (m IdentityMarker) Key() IdentityKey {
	return NewIdentityKey(m.Scope, m.Identifier)
}

// String renders the marker like the attribute it becomes.
func (m IdentityMarker) String() string {
	return fmt.Sprintf("TypeIdentifier(%q, %q)", m.Scope.String(), m.Identifier)
}

// LocalTypeHandle is the deterministic handle of a local type: a
// domain-separated hash of its identity key.
type LocalTypeHandle string

// Short returns a 12 character prefix for human-readable output.
func (h LocalTypeHandle) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}
