package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// File is a fully loaded and merged configuration document.
type File struct {
	// Path is the root configuration file.
	Path string

	// Files lists every file contributing to the tree, in load order.
	Files []string

	// Tree is the merged raw configuration.
	Tree Tree

	// Settings is the decoded global "trimtab" section.
	Settings Settings

	// PluginOrder records the order in which plugin sections were
	// declared across all loaded files.
	PluginOrder []string

	// InstanceOrder records, per plugin section, the order in which
	// instance names were declared across all loaded files. Used as
	// the tie-breaker when linearizing the dependency graph.
	InstanceOrder map[string][]string
}

// PluginSections returns the raw tree of every top-level plugin
// section, excluding the reserved "trimtab" key.
func (f *File) PluginSections() map[string]Tree {
	sections := make(map[string]Tree)
	for key := range f.Tree {
		if key == settingsKey {
			continue
		}
		sections[key] = Sub(f.Tree, key)
	}
	return sections
}

const (
	settingsKey = "trimtab"
	includesKey = "includes"
)

// Load reads a configuration file, follows its includes depth-first,
// merges everything in load order (later files win), validates the
// merged tree against the embedded schema, and decodes the global
// settings section.
func Load(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("resolving configuration path %q", path), Err: err}
	}

	file := &File{
		Path:          abs,
		InstanceOrder: make(map[string][]string),
	}
	trees, err := loadTrees(abs, file, nil)
	if err != nil {
		return nil, err
	}

	merged, err := Merge(trees...)
	if err != nil {
		return nil, &Error{Message: "merging configuration files", Err: err}
	}
	file.Tree = merged

	if err := Validate(merged); err != nil {
		return nil, err
	}

	file.Settings = DefaultSettings()
	if Has(merged, settingsKey) {
		if err := DecodeSection(Sub(merged, settingsKey), &file.Settings); err != nil {
			return nil, &Error{Message: "decoding trimtab settings", Err: err}
		}
	}
	return file, nil
}

// loadTrees loads one file plus its includes, appending to file.Files
// and file.InstanceOrder as it goes. The visited stack guards against
// include loops.
func loadTrees(path string, file *File, visited []string) ([]Tree, error) {
	if slices.Contains(visited, path) {
		return nil, &Error{Message: fmt.Sprintf("configuration file %q includes itself (include chain: %v)", path, visited)}
	}
	visited = append(visited, path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("reading configuration file %q", path), Err: err}
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, &Error{Message: fmt.Sprintf("parsing configuration file %q", path), Err: err}
	}

	file.Files = append(file.Files, path)

	// An empty file parses to a zero node; treat it as an empty tree.
	if root.Kind == 0 {
		return []Tree{{}}, nil
	}

	decoded, err := decodeNode(&root)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("parsing configuration file %q", path), Err: err}
	}
	tree, ok := decoded.(Tree)
	if decoded == nil {
		tree, ok = Tree{}, true
	}
	if !ok {
		return nil, &Error{Message: fmt.Sprintf("configuration file %q: expected a mapping at the top level, got %T", path, decoded)}
	}

	recordDeclarationOrder(&root, file)

	trees := []Tree{tree}
	if includes, ok := tree[includesKey]; ok {
		delete(tree, includesKey)
		list, ok := includes.([]any)
		if !ok {
			return nil, &Error{Message: fmt.Sprintf("configuration file %q: includes must be a list, got %T", path, includes)}
		}
		for _, item := range list {
			include, ok := item.(string)
			if !ok {
				return nil, &Error{Message: fmt.Sprintf("configuration file %q: include entries must be strings, got %T", path, item)}
			}
			if !filepath.IsAbs(include) {
				include = filepath.Join(filepath.Dir(path), include)
			}
			sub, err := loadTrees(include, file, visited)
			if err != nil {
				return nil, err
			}
			trees = append(trees, sub...)
		}
	}
	return trees, nil
}

// recordDeclarationOrder walks the top-level mapping and appends any
// not-yet-seen plugin section keys and instance names declared under a
// plugin section's "instances" key, preserving document order.
func recordDeclarationOrder(root *yaml.Node, file *File) {
	order := file.InstanceOrder
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		plugin := doc.Content[i].Value
		if plugin == settingsKey || plugin == includesKey {
			continue
		}
		if !slices.Contains(file.PluginOrder, plugin) {
			file.PluginOrder = append(file.PluginOrder, plugin)
		}
		section := doc.Content[i+1]
		if section.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(section.Content); j += 2 {
			if section.Content[j].Value != "instances" {
				continue
			}
			instances := section.Content[j+1]
			if instances.Kind != yaml.MappingNode {
				continue
			}
			for k := 0; k+1 < len(instances.Content); k += 2 {
				name := instances.Content[k].Value
				if !slices.Contains(order[plugin], name) {
					order[plugin] = append(order[plugin], name)
				}
			}
		}
	}
}
