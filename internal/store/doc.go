// Package store persists emitted module images in SQLite.
//
// A later compilation that references an already compiled module reads its
// image back as an ir.CompiledModule: each stored local type becomes a
// foreign clone carrying its identity marker, which the resolver maps onto
// the new compilation's identity space.
//
// # Determinism
//
//   - Images are keyed by module name and tagged with their plan hash;
//     writing the same image twice is a no-op
//   - All queries order by name/handle COLLATE BINARY
//   - Attributes and embedded-from lists are stored as canonical JSON
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
