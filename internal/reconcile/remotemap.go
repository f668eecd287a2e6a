package reconcile

import (
	"fmt"
	"reflect"
	"strconv"
)

// Attrs is the flat key/value structure returned by or sent to a remote
// API for one configuration section. It is transient: it exists only
// within one reconciliation pass.
type Attrs = map[string]any

// Section is implemented by configuration section types that own a
// remote map. FieldValue returns the resolved local value for a field
// named in the remote map; IsSet reports whether the user explicitly
// set the field (as opposed to it holding its schema default).
//
// Implementations use a plain switch over field names, keeping the
// field enumeration static and declared next to the remote map itself.
type Section interface {
	FieldValue(name string) any
	IsSet(name string) bool
}

// Entry maps one local field to one remote attribute, with optional
// conversion rules. Entries are declared in static, ordered tables
// (one per section type) and never mutated at runtime. Field names
// need only be unique within one section's table.
type Entry struct {
	// Local is the local field name, as understood by the owning
	// section's FieldValue and IsSet.
	Local string

	// Remote is the attribute name on the wire.
	Remote string

	// Decoder converts a remote value to its local equivalent.
	// Identity when nil. A type mismatch must be reported as an error:
	// the remote being in an unexpected state is fatal for the
	// instance, never silently coerced.
	Decoder func(v any) (any, error)

	// Encoder converts a local value to its remote equivalent.
	// Identity when nil.
	Encoder func(v any) any

	// RootDecoder, when set, receives the whole remote attribute set
	// instead of a single value, for fields derived from more than one
	// remote attribute. Takes precedence over Decoder.
	RootDecoder func(attrs Attrs) (any, error)

	// RootEncoder, when set, receives the whole local section instead
	// of a single value. Takes precedence over Encoder.
	RootEncoder func(sec Section) any

	// Formatter renders a local value for change logs. FormatValue
	// when nil.
	Formatter func(v any) string

	// Equals compares a local value with a decoded remote value.
	// reflect.DeepEqual when nil.
	Equals func(local, remote any) bool

	// Optional controls LocalAttrs and CreateAttrs: an optional field
	// may be absent from the remote attribute set (the local default is
	// kept), and is omitted from create payloads unless explicitly set.
	Optional bool

	// CheckUnmanaged enables unmanaged-field detection for this entry:
	// when the user left the field at its schema default, UpdateAttrs
	// neither compares nor reports it.
	CheckUnmanaged bool

	// SetUnchanged forces the field into update payloads even when it
	// did not change. Required by remote APIs that only accept
	// full-object PUTs. For an unmanaged field this writes the current
	// remote value back verbatim, so the update does not reset it.
	SetUnchanged bool
}

func (e *Entry) decode(v any) (any, error) {
	if e.Decoder == nil {
		return v, nil
	}
	return e.Decoder(v)
}

func (e *Entry) encode(sec Section, v any) any {
	if e.RootEncoder != nil {
		return e.RootEncoder(sec)
	}
	if e.Encoder == nil {
		return v
	}
	return e.Encoder(v)
}

func (e *Entry) format(v any) string {
	if e.Formatter != nil {
		return e.Formatter(v)
	}
	return FormatValue(v)
}

func (e *Entry) equal(local, remote any) bool {
	if e.Equals != nil {
		return e.Equals(local, remote)
	}
	return reflect.DeepEqual(local, remote)
}

// FormatValue renders a field value for change logs and reports.
// Strings are quoted, nil renders as "null", everything else uses its
// default formatting.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case fmt.Stringer:
		return strconv.Quote(val.String())
	default:
		return fmt.Sprintf("%v", val)
	}
}

// AsString decodes a remote value expected to be a string or null.
// Null decodes to the empty string.
func AsString(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	default:
		return "", fmt.Errorf("expected string, got %T (%v)", v, v)
	}
}

// AsFloat decodes a remote numeric value. JSON numbers arrive as
// float64; integers are widened.
func AsFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("expected number, got %T (%v)", v, v)
	}
}

// AsInt decodes a remote integer value. JSON numbers arrive as float64
// and must be integral.
func AsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		if val != float64(int(val)) {
			return 0, fmt.Errorf("expected integer, got %v", val)
		}
		return int(val), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T (%v)", v, v)
	}
}

// AsBool decodes a remote boolean value.
func AsBool(v any) (bool, error) {
	val, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T (%v)", v, v)
	}
	return val, nil
}
