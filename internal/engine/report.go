package engine

import (
	"time"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/reconcile"
)

// Result is the outcome of reconciling a single instance.
type Result struct {
	Ref   config.InstanceRef
	State InstanceState

	// Changed reports whether an update was pushed to the remote.
	Changed bool

	// Changes lists the individual field changes that were pushed.
	Changes []reconcile.Change

	// Reason is a short human-readable failure description, empty
	// unless State is FAILED.
	Reason string

	// Err is the underlying failure, nil unless State is FAILED.
	Err error
}

// Report aggregates one reconciliation run.
type Report struct {
	// RunID uniquely identifies the run, and keys its persisted
	// history.
	RunID string

	Started  time.Time
	Finished time.Time

	// Results holds one entry per instance, in execution order.
	Results []Result
}

// Failed reports whether any instance failed.
func (r *Report) Failed() bool {
	for _, res := range r.Results {
		if res.State == StateFailed {
			return true
		}
	}
	return false
}

// Updated reports whether any instance pushed a change.
func (r *Report) Updated() bool {
	for _, res := range r.Results {
		if res.Changed {
			return true
		}
	}
	return false
}

// Result returns the entry for an instance, or nil.
func (r *Report) Result(ref config.InstanceRef) *Result {
	for i := range r.Results {
		if r.Results[i].Ref == ref {
			return &r.Results[i]
		}
	}
	return nil
}

// PluginGroup is one plugin's results, in execution order.
type PluginGroup struct {
	Plugin  string
	Results []Result
}

// ByPlugin groups results by plugin for reporting. Groups appear in
// order of each plugin's first reconciled instance; execution order is
// preserved within a group.
func (r *Report) ByPlugin() []PluginGroup {
	index := make(map[string]int)
	var groups []PluginGroup
	for _, res := range r.Results {
		i, ok := index[res.Ref.Plugin]
		if !ok {
			i = len(groups)
			index[res.Ref.Plugin] = i
			groups = append(groups, PluginGroup{Plugin: res.Ref.Plugin})
		}
		groups[i].Results = append(groups[i].Results, res)
	}
	return groups
}
