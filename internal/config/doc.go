// Package config loads and merges the declarative configuration tree.
//
// The on-disk format is YAML: one root document, optionally pulling in
// further documents through a top-level "includes" list. Files merge in
// load order with last-defined-wins semantics: mapping values merge
// recursively, scalar and list values replace. The same merge rule
// resolves per-instance sections against their enclosing plugin-global
// section.
//
// The merged raw tree is validated against an embedded CUE schema
// before any typed decoding happens, so malformed configuration fails
// the whole run up front with structural context.
package config
