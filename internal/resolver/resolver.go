// Package resolver orders instances for reconciliation.
//
// It builds a directed graph with one node per declared
// (plugin, instance) pair and one edge per instance reference found in
// an instance's configuration, validates every reference against the
// installed and configured plugins, rejects dependency cycles, and
// produces an execution order in which every instance comes strictly
// after the instances it references.
package resolver

import (
	"fmt"
	"strings"

	"github.com/trimtab-dev/trimtab/internal/config"
)

// Node is one declared instance and its outgoing references.
type Node struct {
	Ref  config.InstanceRef
	Deps []config.InstanceRef
}

// Input is the dependency graph to resolve. Instances must be listed
// in declaration order: plugins in configuration order, instances in
// document order within each plugin. Ties in the execution order are
// broken by this ordering.
type Input struct {
	Instances []Node

	// Installed reports whether a plugin of the given name exists at
	// all, regardless of whether it has configuration. Used to pick
	// between the "not installed" and "no configuration defined"
	// reference errors.
	Installed func(name string) bool
}

// ExecutionOrder validates all references and returns a topological
// ordering of the instances: dependencies first. Errors are
// configuration errors; no network I/O happens here.
func ExecutionOrder(in Input) ([]config.InstanceRef, error) {
	r := &resolver{
		deps:      make(map[config.InstanceRef][]config.InstanceRef, len(in.Instances)),
		known:     make(map[config.InstanceRef]bool, len(in.Instances)),
		plugins:   make(map[string]bool),
		installed: in.Installed,
		done:      make(map[config.InstanceRef]bool, len(in.Instances)),
	}
	for _, n := range in.Instances {
		r.deps[n.Ref] = n.Deps
		r.known[n.Ref] = true
		r.plugins[n.Ref.Plugin] = true
	}

	for _, n := range in.Instances {
		if r.done[n.Ref] {
			continue
		}
		if err := r.visit(n.Ref, nil); err != nil {
			return nil, err
		}
	}
	return r.order, nil
}

type resolver struct {
	deps      map[config.InstanceRef][]config.InstanceRef
	known     map[config.InstanceRef]bool
	plugins   map[string]bool
	installed func(string) bool

	done  map[config.InstanceRef]bool
	order []config.InstanceRef
}

// visit is a depth-first traversal appending post-order, so every
// dependency lands in the order before its dependents. path is the
// current traversal stack, used for cycle detection and reference
// error context.
func (r *resolver) visit(ref config.InstanceRef, path []config.InstanceRef) error {
	if !r.plugins[ref.Plugin] || !r.known[ref] {
		return &ReferenceError{
			From:   last(path),
			Target: ref,
			Reason: r.referenceReason(ref),
		}
	}

	for i, on := range path {
		if on == ref {
			return &CycleError{Path: append(append([]config.InstanceRef{}, path[i:]...), ref)}
		}
	}

	for _, dep := range r.deps[ref] {
		if r.done[dep] {
			continue
		}
		if err := r.visit(dep, append(path, ref)); err != nil {
			return err
		}
	}

	r.done[ref] = true
	r.order = append(r.order, ref)
	return nil
}

func (r *resolver) referenceReason(ref config.InstanceRef) string {
	if !r.plugins[ref.Plugin] {
		if r.installed != nil && r.installed(ref.Plugin) {
			return fmt.Sprintf("plugin %q disabled, or no configuration defined for it", ref.Plugin)
		}
		return fmt.Sprintf("plugin %q not installed", ref.Plugin)
	}
	return fmt.Sprintf("target instance %q not defined in plugin %q configuration", ref.Instance, ref.Plugin)
}

func last(path []config.InstanceRef) *config.InstanceRef {
	if len(path) == 0 {
		return nil
	}
	p := path[len(path)-1]
	return &p
}

// ReferenceError is an instance reference pointing at a plugin or
// instance that does not exist.
type ReferenceError struct {
	// From is the referencing instance, nil when the bad reference
	// was a declared root rather than an edge.
	From   *config.InstanceRef
	Target config.InstanceRef
	Reason string
}

func (e *ReferenceError) Error() string {
	var b strings.Builder
	b.WriteString(`unable to resolve instance dependency "`)
	if e.From != nil {
		b.WriteString(e.From.String())
		b.WriteString(" -> ")
	}
	b.WriteString(e.Target.String())
	b.WriteString(`": `)
	b.WriteString(e.Reason)
	return b.String()
}

// CycleError reports a dependency cycle. Path holds the closed walk,
// with the revisited instance appearing both first and last.
type CycleError struct {
	Path []config.InstanceRef
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString("detected dependency cycle in configuration for instance references:")
	for i, ref := range e.Path {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, ref)
	}
	return b.String()
}
