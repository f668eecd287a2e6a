// Package reconcile implements the field-level mapping between local
// configuration sections and the flat attribute structure spoken by a
// remote instance's HTTP API.
//
// The atomic unit is the remote map: a static, ordered table of
// (local field, remote field, options) entries owned by each section
// type. The converter and the diff builder iterate the table directly;
// there is no runtime reflection over section fields.
//
// Three operations cover the whole lifecycle of a section:
//
//   - LocalAttrs decodes a remote attribute set into local field values
//     (used when fetching remote state).
//   - CreateAttrs encodes a local section into the payload for creating
//     a resource on the remote.
//   - UpdateAttrs compares a local section against a remote snapshot and
//     produces the minimal update payload plus the change records that
//     justify it. Conversion and diff are computed together because
//     whether a field enters the payload depends on whether it changed.
//
// All operations are pure transforms over immutable inputs.
package reconcile
