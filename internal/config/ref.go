package config

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// InstanceRef names a declared instance of an installed plugin. It is
// the node identity of the dependency graph and the target of instance
// references declared in configuration.
//
// Names are NFC-normalized on construction so that visually identical
// instance names always map to the same node.
type InstanceRef struct {
	Plugin   string
	Instance string
}

// NewInstanceRef builds a normalized reference.
func NewInstanceRef(plugin, instance string) InstanceRef {
	return InstanceRef{
		Plugin:   norm.NFC.String(plugin),
		Instance: norm.NFC.String(instance),
	}
}

// String renders the reference the way dependency errors report it.
func (r InstanceRef) String() string {
	return fmt.Sprintf("%s.instances[%q]", r.Plugin, r.Instance)
}
