package reconcile

import "fmt"

// ConversionError reports a failure converting between a local field
// and its remote attribute: the remote attribute is missing and not
// optional, or its value does not decode to the local field's type.
// It is fatal for the instance being reconciled.
type ConversionError struct {
	// Field is the local field name.
	Field string

	// Remote is the remote attribute name.
	Remote string

	// Tree is the dotted configuration path of the owning section,
	// filled in by the caller when known.
	Tree string

	Message string
	Err     error
}

func (e *ConversionError) Error() string {
	field := e.Field
	if e.Tree != "" {
		field = e.Tree + "." + field
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (remote attribute %q): %s: %v", field, e.Remote, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (remote attribute %q): %s", field, e.Remote, e.Message)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
