package engine

// InstanceState tracks an instance's progress through one
// reconciliation run.
//
// The happy path is UNRESOLVED -> RENDERED -> READY -> RECONCILED,
// with an INITIALIZING detour when the remote needs first-time setup.
// Any step may drop to FAILED; a failure never aborts the run, only
// the failing instance and anything that depends on it.
type InstanceState int

const (
	StateUnresolved InstanceState = iota
	StateRendered
	StateInitializing
	StateReady
	StateReconciled
	StateFailed
)

var stateNames = map[InstanceState]string{
	StateUnresolved:   "UNRESOLVED",
	StateRendered:     "RENDERED",
	StateInitializing: "INITIALIZING",
	StateReady:        "READY",
	StateReconciled:   "RECONCILED",
	StateFailed:       "FAILED",
}

func (s InstanceState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}
