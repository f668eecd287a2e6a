package config

// Error reports a configuration problem detected before any network
// I/O: a file that does not load, a tree that fails schema validation,
// or a section that does not decode. Fatal to the whole run.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
