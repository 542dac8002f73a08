// Package ir provides the data model for interop type embedding.
//
// This package contains type definitions and identity computation only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Identity is content-addressed: a LocalTypeHandle is derived from the
//     identity key, never from pointer identity
//   - GUIDs are github.com/google/uuid values; a type without its own GUID
//     uses its module's GUID as identity scope
//   - Names entering an identity key are NFC normalised
//   - All JSON tags use snake_case
package ir
