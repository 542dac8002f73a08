// Package harness provides conformance testing for interop type embedding.
//
// The harness compiles a sequence of compilation descriptions against one
// shared image store, so a later step can reference the images earlier steps
// emitted, and validates the resulting plans against scenario assertions.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	steps:
//	  - description: descriptions/lib.yaml
//	    emit: true
//	  - description: descriptions/app.yaml
//	    refs: [Lib]
//	    mode: metadata-only
//	assertions:
//	  - type: local_types
//	    names: [Ns.I]
//	  - type: resolution
//	    name: Ns.I
//	    outcome: resolved
//	  - type: diagnostic
//	    step: 0
//	    code: CS1757
//	    args: [Ns.S]
//
// Description paths are resolved relative to the scenario file.
//
// # Assertion Types
//
//   - local_types: the plan embeds exactly the named types, in order
//   - members: a clone retains exactly the named members, gaps included
//   - diagnostic: a diagnostic with the code (and args) is reported
//   - no_diagnostics: nothing is reported
//   - resolution: a foreign clone resolves with the given outcome
//   - lowered: a lowered construct contains the given instructions
//   - emittable: the plan can or cannot be emitted
//
// An assertion applies to the last step unless it names one.
//
// # Properties
//
// Besides its own assertions every scenario must hold two properties:
// plans are identical whatever the number of discovery workers, and
// re-emitting an unchanged image does not touch the store. RunDir checks
// both for a directory of scenarios.
//
// # Golden Snapshots
//
// RunWithGolden compares a scenario's plans against
// testdata/golden/{name}.golden, written as canonical JSON. Handles and
// plan hashes are not part of the snapshot.
package harness
