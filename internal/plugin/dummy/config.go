package dummy

import (
	"fmt"
	"sort"

	"github.com/trimtab-dev/trimtab/internal/config"
	"github.com/trimtab-dev/trimtab/internal/plugin"
	"github.com/trimtab-dev/trimtab/internal/reconcile"
)

// Settings is the reconciled configuration section of a Dummy
// instance, mirroring the remote's /settings resource.
type Settings struct {
	// TrashID selects a quality definition profile from the local
	// metadata directory. When set, TrashValue and TrashValue2 are
	// filled in from the profile during rendering.
	TrashID string `yaml:"trash_id"`

	TrashValue  *float64 `yaml:"trash_value"`
	TrashValue2 *float64 `yaml:"trash_value2"`

	InstanceValue *string `yaml:"instance_value"`

	// InstanceName references another Dummy instance. During post-init
	// rendering the referenced instance's value is read live and used
	// as this instance's InstanceValue.
	InstanceName string `yaml:"instance_name"`

	// set tracks which fields the user explicitly configured (or a
	// render pass filled in), keyed by local field name.
	set map[string]bool
}

// settingsRemoteMap drives conversion between Settings and the remote
// /settings attributes. The remote API replaces the whole resource on
// update, so every entry carries SetUnchanged. trash_value2 is
// unmanaged unless explicitly set: a remote-side value survives
// updates untouched.
var settingsRemoteMap = []reconcile.Entry{
	{Local: "instance_value", Remote: "instanceValue", Decoder: nullableString, SetUnchanged: true},
	{Local: "trash_value", Remote: "trashValue", Decoder: nullableFloat, SetUnchanged: true},
	{Local: "trash_value2", Remote: "trashValue2", Decoder: nullableFloat, CheckUnmanaged: true, SetUnchanged: true},
}

func nullableString(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, err := reconcile.AsString(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func nullableFloat(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	f, err := reconcile.AsFloat(v)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FieldValue implements reconcile.Section.
func (s *Settings) FieldValue(name string) any {
	switch name {
	case "instance_value":
		if s.InstanceValue == nil {
			return nil
		}
		return *s.InstanceValue
	case "trash_value":
		if s.TrashValue == nil {
			return nil
		}
		return *s.TrashValue
	case "trash_value2":
		if s.TrashValue2 == nil {
			return nil
		}
		return *s.TrashValue2
	}
	return nil
}

// IsSet implements reconcile.Section.
func (s *Settings) IsSet(name string) bool {
	return s.set[name]
}

func (s *Settings) markSet(name string) {
	if s.set == nil {
		s.set = make(map[string]bool)
	}
	s.set[name] = true
}

func (s *Settings) copy() Settings {
	out := *s
	out.set = make(map[string]bool, len(s.set))
	for k, v := range s.set {
		out.set[k] = v
	}
	return out
}

// settingsFromAttrs builds a remote Settings snapshot out of decoded
// local-typed values, as produced by reconcile.LocalAttrs. Every
// mapped field counts as set: the snapshot reflects observed state,
// not user intent.
func settingsFromAttrs(locals map[string]any) (Settings, error) {
	s := Settings{set: make(map[string]bool, len(locals))}
	for field, v := range locals {
		s.set[field] = true
		if v == nil {
			continue
		}
		switch field {
		case "instance_value":
			val, ok := v.(string)
			if !ok {
				return Settings{}, fmt.Errorf("field %q: expected string, got %T", field, v)
			}
			s.InstanceValue = &val
		case "trash_value":
			val, ok := v.(float64)
			if !ok {
				return Settings{}, fmt.Errorf("field %q: expected float, got %T", field, v)
			}
			s.TrashValue = &val
		case "trash_value2":
			val, ok := v.(float64)
			if !ok {
				return Settings{}, fmt.Errorf("field %q: expected float, got %T", field, v)
			}
			s.TrashValue2 = &val
		}
	}
	return s, nil
}

// Instance is one Dummy instance's fully resolved configuration:
// plugin-global values deep-merged with instance-specific overrides.
type Instance struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Protocol string `yaml:"protocol"`

	// URLBase is the URL path prefix under which the instance is
	// served, for instances behind a path-routing reverse proxy.
	URLBase string `yaml:"url_base"`

	// APIKey authenticates with the instance. Left empty, the key is
	// fetched during the handshake, which only works on instances with
	// authentication disabled.
	APIKey string `yaml:"api_key"`

	// Version is the expected remote version. Informational only.
	Version string `yaml:"version"`

	Settings Settings `yaml:"settings"`

	name       string
	pluginName string
}

// HostURL implements plugin.Instance.
func (i *Instance) HostURL() string {
	return fmt.Sprintf("%s://%s:%d", i.Protocol, i.Hostname, i.Port)
}

// InstanceRefs implements plugin.Referrer.
func (i *Instance) InstanceRefs() []config.InstanceRef {
	if i.Settings.InstanceName == "" {
		return nil
	}
	return []config.InstanceRef{config.NewInstanceRef(i.pluginName, i.Settings.InstanceName)}
}

func (i *Instance) copy() *Instance {
	out := *i
	out.Settings = i.Settings.copy()
	return &out
}

// Config is the decoded top-level Dummy configuration section.
type Config struct {
	pluginName string
	global     config.Tree
	instances  map[string]config.Tree
	order      []string
}

const (
	// implicitInstance is the name under which a configuration without
	// an instances block is reconciled.
	implicitInstance = "default"

	instancesKey = "instances"
)

func decodeConfig(pluginName string, tree config.Tree, instanceOrder []string) (*Config, error) {
	c := &Config{
		pluginName: pluginName,
		global:     make(config.Tree, len(tree)),
		instances:  make(map[string]config.Tree),
	}
	for key, value := range tree {
		if key == instancesKey {
			continue
		}
		c.global[key] = value
	}

	for name := range config.Sub(tree, instancesKey) {
		c.instances[name] = config.Sub(config.Sub(tree, instancesKey), name)
	}

	// Declaration order first, then anything only present in the
	// merged tree, for a deterministic result.
	seen := make(map[string]bool, len(c.instances))
	for _, name := range instanceOrder {
		if _, ok := c.instances[name]; ok && !seen[name] {
			c.order = append(c.order, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range c.instances {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	c.order = append(c.order, rest...)
	return c, nil
}

// InstanceNames implements plugin.Config.
func (c *Config) InstanceNames() []string {
	if len(c.instances) == 0 {
		return []string{implicitInstance}
	}
	return c.order
}

// Instance implements plugin.Config. Global values are inherited by
// every instance; instance-specific values take precedence. The
// default hostname is the instance name, or the plugin name for the
// implicit single instance.
func (c *Config) Instance(name string) (plugin.Instance, error) {
	trees := []config.Tree{c.global}
	if len(c.instances) > 0 {
		tree, ok := c.instances[name]
		if !ok {
			return nil, fmt.Errorf("instance %q not defined in plugin %q configuration", name, c.pluginName)
		}
		trees = append(trees, tree)
	} else if name != implicitInstance {
		return nil, fmt.Errorf("instance %q not defined in plugin %q configuration", name, c.pluginName)
	}

	merged, err := config.Merge(trees...)
	if err != nil {
		return nil, fmt.Errorf("merging configuration for instance %q: %w", name, err)
	}

	hostname := name
	if name == implicitInstance {
		hostname = c.pluginName
	}
	inst := &Instance{
		Hostname:   hostname,
		Port:       5000,
		Protocol:   "http",
		name:       name,
		pluginName: c.pluginName,
	}
	if err := config.DecodeSection(merged, inst); err != nil {
		return nil, fmt.Errorf("decoding configuration for instance %q: %w", name, err)
	}

	settings := config.Sub(merged, "settings")
	inst.Settings.set = make(map[string]bool, len(settings))
	for key := range settings {
		inst.Settings.set[key] = true
	}
	return inst, nil
}
