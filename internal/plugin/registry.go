package plugin

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Registry holds the installed plugins, keyed by NFC-normalized name.
type Registry struct {
	plugins map[string]Plugin
	order   []string
}

// NewRegistry builds a registry from the given plugins.
func NewRegistry(plugins ...Plugin) (*Registry, error) {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a plugin. Duplicate names are an error.
func (r *Registry) Register(p Plugin) error {
	name := norm.NFC.String(p.Name())
	if _, ok := r.plugins[name]; ok {
		return fmt.Errorf("plugin %q registered twice", name)
	}
	r.plugins[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get looks up a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	p, ok := r.plugins[norm.NFC.String(name)]
	return p, ok
}

// Names returns all registered plugin names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	sort.Strings(names)
	return names
}
