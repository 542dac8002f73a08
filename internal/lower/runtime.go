package lower

import (
	"slices"
	"strings"
)

// WellKnownMember names a runtime member the rewrites call.
type WellKnownMember struct {
	Type   string `json:"type"`
	Member string `json:"member"`
}

func (m WellKnownMember) String() string {
	return m.Type + "::" + m.Member
}

// Runtime members used by the rewrites.
var (
	GuidCtor                 = WellKnownMember{"System.Guid", ".ctor"}
	MarshalGetTypeFromCLSID  = WellKnownMember{"System.Runtime.InteropServices.Marshal", "GetTypeFromCLSID"}
	TypeGetTypeFromCLSID     = WellKnownMember{"System.Type", "GetTypeFromCLSID"}
	TypeGetTypeFromHandle    = WellKnownMember{"System.Type", "GetTypeFromHandle"}
	ActivatorCreateInstance  = WellKnownMember{"System.Activator", "CreateInstance"}
	ComAwareEventInfoCtor    = WellKnownMember{"System.Runtime.InteropServices.ComAwareEventInfo", ".ctor"}
	EventInfoAddEventHandler = WellKnownMember{"System.Reflection.EventInfo", "AddEventHandler"}
	EventInfoRemoveHandler   = WellKnownMember{"System.Reflection.EventInfo", "RemoveEventHandler"}
)

// KnownMembers lists every runtime member the rewrites may need.
var KnownMembers = []WellKnownMember{
	GuidCtor,
	MarshalGetTypeFromCLSID,
	TypeGetTypeFromCLSID,
	TypeGetTypeFromHandle,
	ActivatorCreateInstance,
	ComAwareEventInfoCtor,
	EventInfoAddEventHandler,
	EventInfoRemoveHandler,
}

// ParseMember parses "Type::Member" or the dotted "Type.Member" form.
func ParseMember(s string) (WellKnownMember, bool) {
	if t, m, ok := strings.Cut(s, "::"); ok && t != "" && m != "" {
		return WellKnownMember{Type: t, Member: m}, true
	}
	if strings.HasSuffix(s, "..ctor") {
		return WellKnownMember{Type: strings.TrimSuffix(s, "..ctor"), Member: ".ctor"}, true
	}
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return WellKnownMember{}, false
	}
	return WellKnownMember{Type: s[:i], Member: s[i+1:]}, true
}

// Runtime describes which well-known members the target runtime provides.
// The zero value provides all of them.
type Runtime struct {
	missing map[WellKnownMember]bool
}

// NewRuntime returns a runtime that lacks the given members.
func NewRuntime(missing ...WellKnownMember) Runtime {
	rt := Runtime{missing: make(map[WellKnownMember]bool, len(missing))}
	for _, m := range missing {
		rt.missing[m] = true
	}
	return rt
}

// Has reports whether the runtime provides m.
func (rt Runtime) Has(m WellKnownMember) bool {
	return !rt.missing[m]
}

// Missing returns the members the runtime lacks, sorted.
func (rt Runtime) Missing() []WellKnownMember {
	var out []WellKnownMember
	for m := range rt.missing {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b WellKnownMember) int {
		return strings.Compare(a.String(), b.String())
	})
	return out
}
