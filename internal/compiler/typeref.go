package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/nopia/internal/ir"
)

// ParseTypeRef parses the textual type reference used in descriptions:
//
//	int                       core library type
//	Interop:Ns.IFoo           type declared in module Interop
//	~Other:Ns.IFoo            local clone carried by compiled module Other
//	List<~Other:ITest33>      generic instantiation
func ParseTypeRef(s string) (ir.TypeRef, error) {
	p := &refParser{src: s}
	ref, err := p.parse()
	if err != nil {
		return ir.TypeRef{}, err
	}
	if p.pos != len(p.src) {
		return ir.TypeRef{}, fmt.Errorf("type reference %q: unexpected %q at offset %d", s, p.src[p.pos:], p.pos)
	}
	return ref, nil
}

// FormatTypeRef is the inverse of ParseTypeRef.
func FormatTypeRef(r ir.TypeRef) string {
	var b strings.Builder
	if r.Local {
		b.WriteByte('~')
	}
	if r.Module != "" {
		b.WriteString(r.Module + ":")
	}
	b.WriteString(r.Name)
	if len(r.Args) > 0 {
		args := make([]string, len(r.Args))
		for i, a := range r.Args {
			args[i] = FormatTypeRef(a)
		}
		b.WriteString("<" + strings.Join(args, ", ") + ">")
	}
	return b.String()
}

type refParser struct {
	src string
	pos int
}

func (p *refParser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

func (p *refParser) ident() string {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("<>,:~ ", rune(p.src[p.pos])) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *refParser) parse() (ir.TypeRef, error) {
	var ref ir.TypeRef
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '~' {
		ref.Local = true
		p.pos++
	}

	name := p.ident()
	if p.pos < len(p.src) && p.src[p.pos] == ':' {
		p.pos++
		ref.Module = name
		name = p.ident()
	}
	if name == "" {
		return ir.TypeRef{}, fmt.Errorf("type reference %q: missing name at offset %d", p.src, p.pos)
	}
	ref.Name = name
	if ref.Local && ref.Module == "" {
		return ir.TypeRef{}, fmt.Errorf("type reference %q: local clone %q needs a module", p.src, name)
	}

	if p.pos < len(p.src) && p.src[p.pos] == '<' {
		p.pos++
		for {
			arg, err := p.parse()
			if err != nil {
				return ir.TypeRef{}, err
			}
			ref.Args = append(ref.Args, arg)
			p.skipSpace()
			if p.pos >= len(p.src) {
				return ir.TypeRef{}, fmt.Errorf("type reference %q: unterminated argument list", p.src)
			}
			if p.src[p.pos] == '>' {
				p.pos++
				break
			}
			if p.src[p.pos] != ',' {
				return ir.TypeRef{}, fmt.Errorf("type reference %q: unexpected %q at offset %d", p.src, p.src[p.pos], p.pos)
			}
			p.pos++
		}
	}
	p.skipSpace()
	return ref, nil
}
