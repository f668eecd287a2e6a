package reconcile

import "log/slog"

// Change records one field whose resolved local value differs from the
// observed remote value. Old and New are pre-formatted for reporting.
type Change struct {
	// Tree is the dotted configuration path of the owning section.
	Tree  string
	Field string
	Old   string
	New   string
}

func (c Change) String() string {
	return c.Tree + "." + c.Field + ": " + c.Old + " -> " + c.New
}

// Delta is the outcome of one UpdateAttrs pass: the outgoing payload
// and the change records that justify it. Changed is false exactly when
// no change records were produced, in which case no network write
// should occur.
type Delta struct {
	Changed bool
	Attrs   Attrs
	Changes []Change
}

// UpdateOpts controls UpdateAttrs.
type UpdateOpts struct {
	// CheckUnmanaged forces fields whose entries enable unmanaged
	// detection to be compared anyway, pushing the local schema default
	// onto the remote.
	CheckUnmanaged bool

	// SetUnchanged includes every compared-equal field in the payload,
	// for remote APIs requiring full-object updates. Entries may also
	// opt in individually.
	SetUnchanged bool

	// Log receives one debug line per up-to-date or unmanaged field.
	// slog.Default when nil.
	Log *slog.Logger
}

// UpdateAttrs compares a local section against a snapshot of the remote
// section and builds the minimal update payload.
//
// Per entry:
//
//   - An entry with CheckUnmanaged whose field the user left at its
//     schema default is unmanaged: it is never compared or reported.
//     With SetUnchanged the current remote value is written back into
//     the payload verbatim, so the update does not reset it; without
//     SetUnchanged the field stays out of the payload entirely.
//   - A managed field that differs produces a Change and the encoded
//     local value in the payload.
//   - A managed field that is equal enters the payload only under
//     SetUnchanged.
//
// The remote snapshot must already hold decoded (local-typed) values,
// as produced via LocalAttrs.
func UpdateAttrs(tree string, local, remote Section, remoteMap []Entry, opts UpdateOpts) Delta {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	delta := Delta{Attrs: make(Attrs, len(remoteMap))}
	for i := range remoteMap {
		e := &remoteMap[i]
		remoteValue := remote.FieldValue(e.Local)
		setUnchanged := e.SetUnchanged || opts.SetUnchanged
		managed := !e.CheckUnmanaged || opts.CheckUnmanaged || local.IsSet(e.Local)
		if !managed {
			log.Debug("field unmanaged", "field", tree+"."+e.Local, "value", e.format(remoteValue))
			if setUnchanged {
				delta.Attrs[e.Remote] = e.encode(remote, remoteValue)
			}
			continue
		}
		localValue := local.FieldValue(e.Local)
		if e.equal(localValue, remoteValue) {
			log.Debug("field up to date", "field", tree+"."+e.Local, "value", e.format(remoteValue))
			if setUnchanged {
				delta.Attrs[e.Remote] = e.encode(local, localValue)
			}
			continue
		}
		delta.Changes = append(delta.Changes, Change{
			Tree:  tree,
			Field: e.Local,
			Old:   e.format(remoteValue),
			New:   e.format(localValue),
		})
		delta.Attrs[e.Remote] = e.encode(local, localValue)
	}
	delta.Changed = len(delta.Changes) > 0
	return delta
}
