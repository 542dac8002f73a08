package diag

import (
	"fmt"
	"strings"
)

// Code identifies a diagnostic cause kind.
type Code string

// Diagnostic codes. The numbering follows the host compiler's catalog.
const (
	// Legality (structural shape disqualifies a type)
	CodeNewCoClassOnLink            Code = "CS1752"
	CodeNestedType                  Code = "CS1754"
	CodeInteropTypeMissingAttribute Code = "CS1756"
	CodeInteropStructContainsMethod Code = "CS1757"
	CodeGenericsUsedInNoPIAType     Code = "CS1768"
	CodeInteropMethodWithBody       Code = "CS1774"

	// Module-level attributes
	CodeModuleMissingGuid       Code = "CS1747"
	CodeModuleMissingTypeLibPIA Code = "CS1759"

	// Resolution and ambiguity
	CodeNoCanonicalView             Code = "CS1748"
	CodeDuplicateInteropType        Code = "CS1758"
	CodeGenericsUsedAcrossModules   Code = "CS1769"
	CodeIndirectReferenceToEmbedded Code = "CS1762"

	// Naming
	CodeLocalTypeNameClash Code = "CS1761"

	// Lowering
	CodeNoNewAbstract                  Code = "CS0144"
	CodeBadCtorArgCount                Code = "CS1729"
	CodeMissingSourceInterface         Code = "CS1767"
	CodeMissingMethodOnSourceInterface Code = "CS1766"
	CodeMissingPredefinedMember        Code = "CS0656"
)

// Severity is Error or Warning; the subsystem never produces informational
// diagnostics.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Entry describes one catalog code.
type Entry struct {
	Severity Severity
	Format   string

	// Structural codes are fatal in both full and metadata-only builds.
	Structural bool
}

var catalog = map[Code]Entry{
	CodeModuleMissingGuid: {SeverityError,
		"Cannot embed interop types from assembly '%s' because it is missing the '%s' attribute.", true},
	CodeNoCanonicalView: {SeverityError,
		"Cannot find the interop type that matches the embedded interop type '%s'. Are you missing an assembly reference?", false},
	CodeNewCoClassOnLink: {SeverityError,
		"Interop type '%s' cannot be embedded. Use the applicable interface instead.", true},
	CodeNestedType: {SeverityError,
		"Type '%s' cannot be embedded because it is a nested type. Consider disabling interop type embedding for this reference.", true},
	CodeInteropTypeMissingAttribute: {SeverityError,
		"Interop type '%s' cannot be embedded because it is missing the required '%s' attribute.", true},
	CodeInteropStructContainsMethod: {SeverityError,
		"Embedded interop struct '%s' can contain only public instance fields.", true},
	CodeDuplicateInteropType: {SeverityError,
		"Cannot embed interop type '%s' found in both assembly '%s' and '%s'. Consider disabling interop type embedding for one of them.", true},
	CodeModuleMissingTypeLibPIA: {SeverityError,
		"Cannot embed interop types from assembly '%s' because it is missing either the '%s' attribute or the '%s' attribute.", true},
	CodeLocalTypeNameClash: {SeverityError,
		"Embedding the interop type '%s' from assembly '%s' causes a name clash in the current assembly. Consider disabling interop type embedding.", true},
	CodeIndirectReferenceToEmbedded: {SeverityWarning,
		"A reference was created to embedded interop assembly '%s' because of an indirect reference to that assembly from assembly '%s'. Consider changing the embedding setting on either assembly.", false},
	CodeMissingMethodOnSourceInterface: {SeverityError,
		"Source interface '%s' is missing method '%s' which is required to embed event '%s'.", false},
	CodeMissingSourceInterface: {SeverityError,
		"Interface '%s' has an invalid source interface which is required to embed event '%s'.", false},
	CodeGenericsUsedInNoPIAType: {SeverityError,
		"Type '%s' cannot be embedded because it has a generic argument. Consider disabling interop type embedding for this reference.", true},
	CodeGenericsUsedAcrossModules: {SeverityError,
		"Type '%s' from assembly '%s' cannot be used across assembly boundaries because it has a generic type argument that is an embedded interop type.", true},
	CodeInteropMethodWithBody: {SeverityError,
		"Embedded interop method '%s' contains a body.", true},
	CodeNoNewAbstract: {SeverityError,
		"Cannot create an instance of the abstract type or interface '%s'", false},
	CodeBadCtorArgCount: {SeverityError,
		"'%s' does not contain a constructor that takes %s arguments", false},
	CodeMissingPredefinedMember: {SeverityError,
		"Missing compiler required member '%s.%s'", false},
}

// Lookup returns the catalog entry for code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// Codes returns every catalog code.
func Codes() []Code {
	codes := make([]Code, 0, len(catalog))
	for c := range catalog {
		codes = append(codes, c)
	}
	return codes
}

// IsStructural reports whether code is fatal in every build mode.
func IsStructural(code Code) bool {
	return catalog[code].Structural
}

// Format renders the message for code with args. Missing arguments render as
// empty strings and surplus arguments are appended.
func Format(code Code, args []string) string {
	e, ok := catalog[code]
	if !ok {
		return fmt.Sprintf("%s: %s", code, strings.Join(args, ", "))
	}
	want := strings.Count(e.Format, "%s")
	vals := make([]any, want)
	for i := range vals {
		if i < len(args) {
			vals[i] = args[i]
		} else {
			vals[i] = ""
		}
	}
	msg := fmt.Sprintf(e.Format, vals...)
	if len(args) > want {
		msg += " (" + strings.Join(args[want:], ", ") + ")"
	}
	return msg
}
