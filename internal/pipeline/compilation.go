package pipeline

import (
	"github.com/roach88/nopia/internal/diag"
	"github.com/roach88/nopia/internal/ir"
	"github.com/roach88/nopia/internal/lower"
)

// Compilation is everything the binder hands the embedding subsystem for one
// module.
type Compilation struct {
	// Name of the module being compiled.
	Name string

	Mode diag.BuildMode

	// InteropModules are the directly referenced interop modules.
	InteropModules []*ir.InteropModule

	// Compiled are already compiled referenced modules that may carry
	// their own local types.
	Compiled []*ir.CompiledModule

	// SourceTypes are the qualified names declared by the module itself.
	SourceTypes []string

	Files []SourceFile

	// MissingRuntime lists well-known runtime members the target lacks.
	MissingRuntime []lower.WellKnownMember
}

// SourceFile groups the use sites and interop constructs found in one file.
// Discovery runs per file.
type SourceFile struct {
	Path          string
	Uses          []ir.UseSite
	Constructions []lower.Construction
	Events        []lower.EventAccess
}
