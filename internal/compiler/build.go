package compiler

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/guregu/null.v3"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/lower"
	"github.com/roach88/nopia/internal/pipeline"
)

// Build validates d and turns it into a compilation.
//
// Normalisation applied on the way:
//   - empty member access becomes public
//   - a method without a type returns void
//   - properties and events get default accessor names
//   - interfaces and classes are ComImport unless com_import is false
//   - an unqualified type reference that names a type of the declaring
//     module refers to that type
//   - enum literals shorthand expands to public static constants
func Build(d *Description) (*pipeline.Compilation, error) {
	if errs := Validate(d); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	comp := &pipeline.Compilation{
		Name:        d.Name,
		Mode:        diag.BuildFull,
		SourceTypes: append([]string(nil), d.SourceTypes...),
	}
	if d.Mode != "" {
		comp.Mode = diag.BuildMode(d.Mode)
	}

	for _, m := range d.Modules {
		comp.InteropModules = append(comp.InteropModules, buildModule(m))
	}
	for _, c := range d.Compiled {
		comp.Compiled = append(comp.Compiled, buildCompiled(c, comp.InteropModules))
	}
	for _, f := range d.Files {
		comp.Files = append(comp.Files, buildFile(f))
	}
	for _, name := range d.MissingRuntime {
		m, _ := lower.ParseMember(name)
		comp.MissingRuntime = append(comp.MissingRuntime, m)
	}
	return comp, nil
}

// nullGUID parses an already validated GUID; empty means absent.
func nullGUID(s string) uuid.NullUUID {
	if s == "" {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.MustParse(s), Valid: true}
}

func boolOr(b null.Bool, def bool) bool {
	if b.Valid {
		return b.Bool
	}
	return def
}

func location(path string, line, column int) ir.Location {
	if line > 0 && column == 0 {
		column = 1
	}
	return ir.Location{File: path, Line: line, Column: column}
}

// mustRef parses an already validated reference.
func mustRef(s string) ir.TypeRef {
	ref, err := ParseTypeRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// moduleRef parses s and qualifies it with the declaring module when the
// module declares a type of that name.
func moduleRef(m ModuleDesc, s string) ir.TypeRef {
	ref := mustRef(s)
	qualify(m, &ref)
	return ref
}

func qualify(m ModuleDesc, ref *ir.TypeRef) {
	if ref.Module == "" && !ref.Local {
		if _, ok := findType(m, ref.Name); ok {
			ref.Module = m.Name
		}
	}
	for i := range ref.Args {
		qualify(m, &ref.Args[i])
	}
}

func buildModule(m ModuleDesc) *ir.InteropModule {
	mod := &ir.InteropModule{
		Name:                m.Name,
		GUID:                nullGUID(m.GUID),
		ImportedFromTypeLib: m.TypeLib,
		IsPrimary:           m.Primary,
	}
	for _, t := range m.Types {
		mod.Types = append(mod.Types, buildType(m, t))
	}
	return mod
}

func buildType(m ModuleDesc, t TypeDesc) ir.EmbeddableType {
	kind := ir.Kind(t.Kind)
	out := ir.EmbeddableType{
		Namespace:     t.Namespace,
		Name:          t.Name,
		Kind:          kind,
		GUID:          nullGUID(t.GUID),
		ComImport:     boolOr(t.ComImport, kind == ir.KindInterface || kind == ir.KindClass),
		Arity:         t.Arity,
		DeclaringType: t.DeclaringType,
		Underlying:    t.Underlying,
	}
	for _, b := range t.Bases {
		out.Bases = append(out.Bases, moduleRef(m, b))
	}
	for _, mem := range t.Members {
		out.Members = append(out.Members, buildMember(m, mem))
	}
	if kind == ir.KindEnum {
		self := ir.TypeRef{Module: m.Name, Name: qualifiedName(t)}
		for i, l := range t.Literals {
			out.Members = append(out.Members, ir.Member{
				Name:    l,
				Kind:    ir.MemberField,
				Access:  ir.AccessPublic,
				Static:  true,
				Literal: true,
				Value:   int64(i),
				Type:    &self,
			})
		}
	}
	if t.CoClass != nil {
		out.CoClass = &ir.CoClassBinding{
			Class:     moduleRef(m, t.CoClass.Class),
			ClassGUID: nullGUID(t.CoClass.GUID),
		}
		// The class GUID defaults to the GUID the class itself declares.
		if !out.CoClass.ClassGUID.Valid && out.CoClass.Class.Module == m.Name {
			if cls, ok := findType(m, out.CoClass.Class.Name); ok {
				out.CoClass.ClassGUID = nullGUID(cls.GUID)
			}
		}
	}
	if es := t.EventSource; es != nil {
		out.EventSource = &ir.EventSourceBinding{SourceInterface: moduleRef(m, es.Source)}
		provider := es.Provider
		if provider == "" {
			provider = t.Name + "_EventProvider"
		}
		out.EventSource.EventProvider = moduleRef(m, provider)
	}
	return out
}

func buildMember(m ModuleDesc, d MemberDesc) ir.Member {
	mem := ir.Member{
		Name:        d.Name,
		Kind:        ir.MemberKind(d.Kind),
		Access:      ir.Access(d.Access),
		Static:      d.Static,
		SpecialName: d.SpecialName,
		HasBody:     d.Body,
		Literal:     d.Literal,
		Value:       d.Value,
		Accessors:   append([]string(nil), d.Accessors...),
		Slots:       d.Slots,
	}
	if mem.Access == "" {
		mem.Access = ir.AccessPublic
	}
	switch {
	case d.Type != "":
		ref := moduleRef(m, d.Type)
		mem.Type = &ref
	case mem.Kind == ir.MemberMethod:
		mem.Type = &ir.TypeRef{Name: "void"}
	}
	for _, p := range d.Params {
		mem.Params = append(mem.Params, ir.Param{Name: p.Name, Type: moduleRef(m, p.Type)})
	}
	if len(mem.Accessors) == 0 {
		switch mem.Kind {
		case ir.MemberProperty:
			mem.Accessors = []string{"get_" + d.Name, "set_" + d.Name}
		case ir.MemberEvent:
			mem.Accessors = []string{"add_" + d.Name, "remove_" + d.Name}
		}
	}
	if mem.Kind == ir.MemberGap {
		mem.SpecialName = true
	}
	return mem
}

func buildCompiled(c CompiledDesc, modules []*ir.InteropModule) *ir.CompiledModule {
	out := &ir.CompiledModule{
		Name:         c.Name,
		EmbeddedFrom: append([]string(nil), c.EmbeddedFrom...),
	}
	for _, lt := range c.LocalTypes {
		ref := ir.ForeignRef{
			EmbeddingModule: c.Name,
			Name:            lt.Name,
			Kind:            ir.Kind(lt.Kind),
			GUID:            nullGUID(lt.GUID),
		}
		if lt.From != "" {
			for _, mod := range modules {
				if mod.Name != lt.From {
					continue
				}
				t, _ := mod.Lookup(lt.Name)
				ref.Marker = ir.KeyOf(mod, t).Marker()
				ref.Kind = t.Kind
				ref.GUID = t.GUID
			}
		} else {
			identifier := lt.Identifier
			if identifier == "" {
				identifier = lt.Name
			}
			ref.Marker = ir.IdentityMarker{Scope: uuid.MustParse(lt.Scope), Identifier: identifier}
		}
		if ref.Kind == "" {
			ref.Kind = ir.KindInterface
		}
		out.LocalTypes = append(out.LocalTypes, ref)
	}
	return out
}

func buildFile(f FileDesc) pipeline.SourceFile {
	out := pipeline.SourceFile{Path: f.Path}
	for _, u := range f.Uses {
		kind := ir.UseKind(u.Kind)
		if kind == "" {
			kind = ir.UseReference
			if u.Member != "" {
				kind = ir.UseMember
			}
		}
		out.Uses = append(out.Uses, ir.UseSite{
			Type:     mustRef(u.Type),
			Kind:     kind,
			Member:   u.Member,
			Origin:   u.Origin,
			Location: location(f.Path, u.Line, u.Column),
			InBody:   boolOr(u.InBody, true),
			Checked:  boolOr(u.Checked, true),
		})
	}
	for _, c := range f.Constructions {
		out.Constructions = append(out.Constructions, lower.Construction{
			Type:         mustRef(c.Type),
			Args:         c.Args,
			Initializers: append([]lower.Initializer(nil), c.Initializers...),
			Location:     location(f.Path, c.Line, c.Column),
			InBody:       boolOr(c.InBody, true),
		})
	}
	for _, e := range f.Events {
		out.Events = append(out.Events, lower.EventAccess{
			Type:          mustRef(e.Type),
			Event:         e.Event,
			Remove:        e.Remove,
			Target:        e.Target,
			HandlerTarget: e.HandlerTarget,
			Handler:       e.Handler,
			Location:      location(f.Path, e.Line, e.Column),
			InBody:        boolOr(e.InBody, true),
		})
	}
	return out
}

// CheckOrigins reports use sites whose origin names no compiled module of
// comp. Compiled references may come from the image store, so this runs on
// the finished compilation rather than in Validate.
func CheckOrigins(comp *pipeline.Compilation) []ValidationError {
	known := make(map[string]bool, len(comp.Compiled))
	for _, c := range comp.Compiled {
		known[c.Name] = true
	}

	var v validator
	for i, f := range comp.Files {
		for j, u := range f.Uses {
			if u.Origin == "" || known[u.Origin] {
				continue
			}
			v.add(fmt.Sprintf("files[%d].uses[%d].origin", i, j), ErrUnresolvedOrigin,
				"%s: origin %q is not a compiled reference", u.Location, u.Origin)
		}
	}
	return v.errs
}
