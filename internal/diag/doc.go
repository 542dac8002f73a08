// Package diag turns embedding violations and resolution failures into the
// compiler's diagnostic stream.
//
// Every cause kind maps to exactly one code in the catalog. The Aggregator
// deduplicates on (code, arguments) so a cause is reported once no matter how
// many use sites trigger it, and applies the build-mode policy: structural
// codes are fatal in every build, while diagnostics tied to method bodies are
// dropped from metadata-only builds.
package diag
