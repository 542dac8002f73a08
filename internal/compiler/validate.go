package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/legality"
	"github.com/roach88/nopia/internal/lower"
)

// Validation error codes (E100-E199)
const (
	ErrNameEmpty         = "E101" // required name missing
	ErrInvalidGUID       = "E102" // GUID does not parse
	ErrUnknownKind       = "E103" // unknown type kind
	ErrUnknownMemberKind = "E104" // unknown member kind
	ErrDuplicateName     = "E105" // duplicate module/type/file/member name
	ErrEnumUnderlying    = "E106" // enum underlying type not integral
	ErrDelegateNoInvoke  = "E107" // delegate without an Invoke method
	ErrInvalidTypeRef    = "E108" // type reference does not parse
	ErrUnknownUseKind    = "E109" // unknown use-site kind
	ErrUnknownBuildMode  = "E110" // mode is not full or metadata-only
	ErrUnknownRuntime    = "E111" // missing_runtime names no well-known member
	ErrUnknownAccess     = "E112" // unknown member accessibility
	ErrCyclicBases       = "E113" // interface inherits from itself
	ErrUnknownOrigin     = "E114" // foreign clone names an unknown module or type
	ErrUnresolvedOrigin  = "E115" // use site origin names no compiled reference
)

// ValidationError represents a description validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is returned by Build when a description is invalid.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(errs), strings.Join(msgs, "; "))
}

var validMemberKinds = map[ir.MemberKind]bool{
	ir.MemberMethod:      true,
	ir.MemberProperty:    true,
	ir.MemberEvent:       true,
	ir.MemberField:       true,
	ir.MemberConstructor: true,
	ir.MemberGap:         true,
}

var validAccess = map[ir.Access]bool{
	"":                 true,
	ir.AccessPublic:    true,
	ir.AccessInternal:  true,
	ir.AccessProtected: true,
	ir.AccessPrivate:   true,
}

var validUseKinds = map[ir.UseKind]bool{
	"":               true,
	ir.UseReference:  true,
	ir.UseMember:     true,
	ir.UseImplements: true,
	ir.UseDynamic:    true,
	ir.UseReflection: true,
}

// Validate checks a description against schema rules.
// Returns all errors found (does not fail-fast).
//
// Validation only rejects descriptions that cannot be turned into a type
// graph. Embedding rules (missing attributes, nested types, ...) are left to
// the legality checker so they surface as diagnostics.
func Validate(d *Description) []ValidationError {
	v := &validator{}

	if strings.TrimSpace(d.Name) == "" {
		v.add("name", ErrNameEmpty, "compilation name is required")
	}
	switch diag.BuildMode(d.Mode) {
	case "", diag.BuildFull, diag.BuildMetadataOnly:
	default:
		v.add("mode", ErrUnknownBuildMode, "invalid mode %q, must be %q or %q", d.Mode, diag.BuildFull, diag.BuildMetadataOnly)
	}

	modules := make(map[string]bool)
	for i, m := range d.Modules {
		field := fmt.Sprintf("modules[%d]", i)
		if m.Name == "" {
			v.add(field+".name", ErrNameEmpty, "module name is required")
		} else if modules[m.Name] {
			v.add(field+".name", ErrDuplicateName, "duplicate module name: %q", m.Name)
		}
		modules[m.Name] = true
		v.guid(field+".guid", m.GUID)
		v.module(field, m)
	}

	for i, c := range d.Compiled {
		field := fmt.Sprintf("compiled[%d]", i)
		if c.Name == "" {
			v.add(field+".name", ErrNameEmpty, "compiled module name is required")
		} else if modules[c.Name] {
			v.add(field+".name", ErrDuplicateName, "duplicate module name: %q", c.Name)
		}
		modules[c.Name] = true
		for j, lt := range c.LocalTypes {
			v.foreign(fmt.Sprintf("%s.local_types[%d]", field, j), lt, d)
		}
	}

	paths := make(map[string]bool)
	for i, f := range d.Files {
		field := fmt.Sprintf("files[%d]", i)
		if f.Path == "" {
			v.add(field+".path", ErrNameEmpty, "file path is required")
		} else if paths[f.Path] {
			v.add(field+".path", ErrDuplicateName, "duplicate file path: %q", f.Path)
		}
		paths[f.Path] = true
		v.file(field, f)
	}

	for i, name := range d.MissingRuntime {
		if m, ok := lower.ParseMember(name); !ok || !slices.Contains(lower.KnownMembers, m) {
			v.add(fmt.Sprintf("missing_runtime[%d]", i), ErrUnknownRuntime, "unknown runtime member %q", name)
		}
	}

	for _, c := range AnalyzeBases(d) {
		v.add(c.Field, ErrCyclicBases, "%s", c.Message)
	}
	return v.errs
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

func (v *validator) guid(field, s string) {
	if s == "" {
		return
	}
	if _, err := uuid.Parse(s); err != nil {
		v.add(field, ErrInvalidGUID, "invalid GUID %q: %v", s, err)
	}
}

func (v *validator) ref(field, s string) {
	if _, err := ParseTypeRef(s); err != nil {
		v.add(field, ErrInvalidTypeRef, "%v", err)
	}
}

func (v *validator) module(field string, m ModuleDesc) {
	names := make(map[string]bool)
	for i, t := range m.Types {
		tf := fmt.Sprintf("%s.types[%d]", field, i)
		if t.Name == "" {
			v.add(tf+".name", ErrNameEmpty, "type name is required")
		}
		qn := qualifiedName(t)
		if names[qn] {
			v.add(tf+".name", ErrDuplicateName, "duplicate type name: %q", qn)
		}
		names[qn] = true

		kind := ir.Kind(t.Kind)
		if !ir.ValidKinds[kind] {
			v.add(tf+".kind", ErrUnknownKind, "invalid kind %q", t.Kind)
		}
		v.guid(tf+".guid", t.GUID)
		for j, b := range t.Bases {
			v.ref(fmt.Sprintf("%s.bases[%d]", tf, j), b)
		}
		if t.CoClass != nil {
			v.ref(tf+".coclass.class", t.CoClass.Class)
			v.guid(tf+".coclass.guid", t.CoClass.GUID)
		}
		if t.EventSource != nil {
			v.ref(tf+".event_source.source", t.EventSource.Source)
			if t.EventSource.Provider != "" {
				v.ref(tf+".event_source.provider", t.EventSource.Provider)
			}
		}

		switch kind {
		case ir.KindEnum:
			if t.Underlying != "" && !legality.IntegralTypes[t.Underlying] {
				v.add(tf+".underlying", ErrEnumUnderlying, "enum %q has non-integral underlying type %q", qn, t.Underlying)
			}
		case ir.KindDelegate:
			if !hasInvoke(t) {
				v.add(tf+".members", ErrDelegateNoInvoke, "delegate %q has no Invoke method", qn)
			}
		}

		members := make(map[string]bool)
		for j, mem := range t.Members {
			mf := fmt.Sprintf("%s.members[%d]", tf, j)
			if mem.Name == "" {
				v.add(mf+".name", ErrNameEmpty, "member name is required")
			} else if members[mem.Name] && mem.Kind != string(ir.MemberMethod) {
				// Methods may be overloaded.
				v.add(mf+".name", ErrDuplicateName, "duplicate member name: %q", mem.Name)
			}
			members[mem.Name] = true
			if !validMemberKinds[ir.MemberKind(mem.Kind)] {
				v.add(mf+".kind", ErrUnknownMemberKind, "invalid member kind %q", mem.Kind)
			}
			if !validAccess[ir.Access(mem.Access)] {
				v.add(mf+".access", ErrUnknownAccess, "invalid access %q", mem.Access)
			}
			if mem.Type != "" {
				v.ref(mf+".type", mem.Type)
			}
			for k, p := range mem.Params {
				v.ref(fmt.Sprintf("%s.params[%d].type", mf, k), p.Type)
			}
		}
	}
}

func hasInvoke(t TypeDesc) bool {
	for _, m := range t.Members {
		if m.Name == "Invoke" && m.Kind == string(ir.MemberMethod) {
			return true
		}
	}
	return false
}

func (v *validator) foreign(field string, lt ForeignDesc, d *Description) {
	if lt.Name == "" {
		v.add(field+".name", ErrNameEmpty, "local type name is required")
	}
	v.guid(field+".guid", lt.GUID)
	if lt.Kind != "" && !ir.ValidKinds[ir.Kind(lt.Kind)] {
		v.add(field+".kind", ErrUnknownKind, "invalid kind %q", lt.Kind)
	}
	if lt.From == "" {
		if lt.Scope == "" {
			v.add(field+".scope", ErrInvalidGUID, "scope is required when from is not set")
		}
		v.guid(field+".scope", lt.Scope)
		return
	}
	m, ok := findModule(d, lt.From)
	if !ok {
		v.add(field+".from", ErrUnknownOrigin, "unknown interop module %q", lt.From)
		return
	}
	if _, ok := findType(m, lt.Name); !ok {
		v.add(field+".name", ErrUnknownOrigin, "module %q declares no type %q", lt.From, lt.Name)
	}
}

func (v *validator) file(field string, f FileDesc) {
	for i, u := range f.Uses {
		uf := fmt.Sprintf("%s.uses[%d]", field, i)
		v.ref(uf+".type", u.Type)
		if !validUseKinds[ir.UseKind(u.Kind)] {
			v.add(uf+".kind", ErrUnknownUseKind, "invalid use kind %q", u.Kind)
		}
	}
	for i, c := range f.Constructions {
		v.ref(fmt.Sprintf("%s.constructions[%d].type", field, i), c.Type)
	}
	for i, e := range f.Events {
		ef := fmt.Sprintf("%s.events[%d]", field, i)
		v.ref(ef+".type", e.Type)
		if e.Event == "" {
			v.add(ef+".event", ErrNameEmpty, "event name is required")
		}
	}
}

func qualifiedName(t TypeDesc) string {
	prefix := t.Namespace
	if t.DeclaringType != "" {
		prefix = t.DeclaringType
	}
	if prefix == "" {
		return t.Name
	}
	return prefix + "." + t.Name
}

func findModule(d *Description, name string) (ModuleDesc, bool) {
	for _, m := range d.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return ModuleDesc{}, false
}

func findType(m ModuleDesc, name string) (TypeDesc, bool) {
	for _, t := range m.Types {
		if qualifiedName(t) == name {
			return t, true
		}
	}
	return TypeDesc{}, false
}
