package testutil

import (
	"github.com/google/uuid"

	"github.com/roach88/nopia/internal/ir"
)

// Void is the void return type.
var Void = ir.TypeRef{Name: "void"}

// Core returns a reference to a core library type such as "int".
func Core(name string) ir.TypeRef {
	return ir.TypeRef{Name: name}
}

// Ref returns a reference to a type declared in module.
func Ref(module, name string) ir.TypeRef {
	return ir.TypeRef{Module: module, Name: name}
}

// Loc returns a use-site location.
func Loc(file string, line int) ir.Location {
	return ir.Location{File: file, Line: line, Column: 1}
}

// Module builds a well-formed interop module: it carries a GUID and is
// marked as imported from a type library.
func Module(name string, guid uuid.NullUUID, types ...ir.EmbeddableType) *ir.InteropModule {
	return &ir.InteropModule{
		Name:                name,
		GUID:                guid,
		ImportedFromTypeLib: true,
		Types:               types,
	}
}

// Interface builds a ComImport interface.
func Interface(name string, guid uuid.NullUUID, members ...ir.Member) ir.EmbeddableType {
	return ir.EmbeddableType{
		Name:      name,
		Kind:      ir.KindInterface,
		GUID:      guid,
		ComImport: true,
		Members:   members,
	}
}

// Struct builds a struct type.
func Struct(name string, members ...ir.Member) ir.EmbeddableType {
	return ir.EmbeddableType{Name: name, Kind: ir.KindStruct, Members: members}
}

// Enum builds an int enum whose literals take the values 0, 1, 2, ...
func Enum(name string, literals ...string) ir.EmbeddableType {
	t := ir.EmbeddableType{Name: name, Kind: ir.KindEnum, Underlying: "int"}
	self := ir.TypeRef{Name: name}
	for i, l := range literals {
		t.Members = append(t.Members, ir.Member{
			Name:    l,
			Kind:    ir.MemberField,
			Access:  ir.AccessPublic,
			Static:  true,
			Literal: true,
			Value:   int64(i),
			Type:    &self,
		})
	}
	return t
}

// Delegate builds a delegate with the given Invoke signature.
func Delegate(name string, ret ir.TypeRef, params ...ir.Param) ir.EmbeddableType {
	return ir.EmbeddableType{
		Name: name,
		Kind: ir.KindDelegate,
		Members: []ir.Member{{
			Name:   "Invoke",
			Kind:   ir.MemberMethod,
			Access: ir.AccessPublic,
			Type:   &ret,
			Params: params,
		}},
	}
}

// Class builds a coclass.
func Class(name string, guid uuid.NullUUID) ir.EmbeddableType {
	return ir.EmbeddableType{Name: name, Kind: ir.KindClass, GUID: guid, ComImport: true}
}

// Method builds a public void method.
func Method(name string, params ...ir.Param) ir.Member {
	ret := Void
	return ir.Member{
		Name:   name,
		Kind:   ir.MemberMethod,
		Access: ir.AccessPublic,
		Type:   &ret,
		Params: params,
	}
}

// Param builds a parameter.
func Param(name string, typ ir.TypeRef) ir.Param {
	return ir.Param{Name: name, Type: typ}
}

// Field builds a public instance field.
func Field(name string, typ ir.TypeRef) ir.Member {
	return ir.Member{Name: name, Kind: ir.MemberField, Access: ir.AccessPublic, Type: &typ}
}

// Property builds a read/write property.
func Property(name string, typ ir.TypeRef) ir.Member {
	return ir.Member{
		Name:      name,
		Kind:      ir.MemberProperty,
		Access:    ir.AccessPublic,
		Type:      &typ,
		Accessors: []string{"get_" + name, "set_" + name},
	}
}

// Event builds an event with add/remove accessors.
func Event(name string, handler ir.TypeRef) ir.Member {
	return ir.Member{
		Name:      name,
		Kind:      ir.MemberEvent,
		Access:    ir.AccessPublic,
		Type:      &handler,
		Accessors: []string{"add_" + name, "remove_" + name},
	}
}

// Gap builds a reserved vtable gap of n slots.
func Gap(name string, n int) ir.Member {
	return ir.Member{Name: name, Kind: ir.MemberGap, Slots: n, SpecialName: true}
}

// Use builds a use site.
func Use(ref ir.TypeRef, kind ir.UseKind, loc ir.Location) ir.UseSite {
	return ir.UseSite{Type: ref, Kind: kind, Location: loc, InBody: true, Checked: true}
}

// MemberUse builds a member access use site.
func MemberUse(ref ir.TypeRef, member string, loc ir.Location) ir.UseSite {
	u := Use(ref, ir.UseMember, loc)
	u.Member = member
	return u
}
