package reconcile

import "log/slog"

// LocalAttrs parses a remote attribute set and returns the local
// equivalents, keyed by local field name. Section constructors use the
// result when building a snapshot of the remote configuration.
//
// A missing remote attribute is fatal unless the entry is Optional, in
// which case the field is simply absent from the result and the local
// schema default applies.
func LocalAttrs(remoteMap []Entry, remoteAttrs Attrs) (map[string]any, error) {
	local := make(map[string]any, len(remoteMap))
	for i := range remoteMap {
		e := &remoteMap[i]
		if e.RootDecoder != nil {
			v, err := e.RootDecoder(remoteAttrs)
			if err != nil {
				return nil, &ConversionError{Field: e.Local, Remote: e.Remote, Message: "decoding failed", Err: err}
			}
			local[e.Local] = v
			continue
		}
		remoteValue, ok := remoteAttrs[e.Remote]
		if !ok {
			if e.Optional {
				continue
			}
			return nil, &ConversionError{Field: e.Local, Remote: e.Remote, Message: "remote attribute not found"}
		}
		v, err := e.decode(remoteValue)
		if err != nil {
			return nil, &ConversionError{Field: e.Local, Remote: e.Remote, Message: "decoding failed", Err: err}
		}
		local[e.Local] = v
	}
	return local, nil
}

// CreateOpts controls CreateAttrs.
type CreateOpts struct {
	// Log receives one debug line per field. slog.Default when nil.
	Log *slog.Logger
}

// CreateAttrs encodes a local section into the remote attribute payload
// for creating a resource. Every entry participates except Optional
// entries the user did not explicitly set.
func CreateAttrs(tree string, local Section, remoteMap []Entry, opts CreateOpts) Attrs {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := make(Attrs, len(remoteMap))
	for i := range remoteMap {
		e := &remoteMap[i]
		if e.Optional && !local.IsSet(e.Local) {
			log.Debug("field unmanaged at creation", "field", tree+"."+e.Local)
			continue
		}
		value := local.FieldValue(e.Local)
		log.Debug("field set at creation", "field", tree+"."+e.Local, "value", e.format(value))
		attrs[e.Remote] = e.encode(local, value)
	}
	return attrs
}
