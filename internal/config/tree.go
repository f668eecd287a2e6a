package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Tree is one node of the raw configuration: a mapping from key to
// scalar, list, or nested Tree. A key being present in a Tree is what
// marks the corresponding field as explicitly set by the user.
type Tree = map[string]any

// Sub returns the nested tree under key, or an empty tree when the key
// is absent or null.
func Sub(tree Tree, key string) Tree {
	switch val := tree[key].(type) {
	case Tree:
		return val
	default:
		return Tree{}
	}
}

// Has reports whether key is present in the tree, regardless of value.
func Has(tree Tree, key string) bool {
	_, ok := tree[key]
	return ok
}

// DecodeSection decodes a raw tree into a typed section struct through
// a YAML round trip, honoring the struct's yaml tags.
func DecodeSection(tree Tree, out any) error {
	raw, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("encoding section: %w", err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding section: %w", err)
	}
	return nil
}

// decodeNode converts a parsed YAML node into plain Go values: mappings
// become Tree, sequences []any, scalars their natural Go type. Mapping
// key order is lost here; Load captures instance declaration order
// separately before conversion.
func decodeNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return decodeNode(node.Content[0])
	case yaml.AliasNode:
		return decodeNode(node.Alias)
	case yaml.MappingNode:
		tree := make(Tree, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var key string
			if err := node.Content[i].Decode(&key); err != nil {
				return nil, fmt.Errorf("line %d: mapping key: %w", node.Content[i].Line, err)
			}
			value, err := decodeNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			tree[key] = value
		}
		return tree, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			value, err := decodeNode(item)
			if err != nil {
				return nil, err
			}
			list = append(list, value)
		}
		return list, nil
	default:
		if node.Tag == "!!null" {
			return explicitNull{}, nil
		}
		var value any
		if err := node.Decode(&value); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return value, nil
	}
}

// explicitNull stands in for a YAML null inside raw trees. A nil
// interface value is invisible to the merge library, so an instance
// section could not null out a value inherited from the plugin-global
// section; the sentinel keeps the override observable. It marshals
// back to null, so typed decoding through DecodeSection sees the real
// value.
type explicitNull struct{}

func (explicitNull) MarshalYAML() (any, error) {
	return nil, nil
}

// Plain returns a deep copy of the tree with explicit-null sentinels
// replaced by real nils, for encoders that do not consult MarshalYAML.
func Plain(tree Tree) Tree {
	out := make(Tree, len(tree))
	for key, value := range tree {
		out[key] = plainValue(value)
	}
	return out
}

func plainValue(v any) any {
	switch val := v.(type) {
	case explicitNull:
		return nil
	case Tree:
		return Plain(val)
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = plainValue(item)
		}
		return list
	default:
		return v
	}
}

// Value reads a key from a tree, mapping the explicit-null sentinel
// back to nil.
func Value(tree Tree, key string) any {
	if _, ok := tree[key].(explicitNull); ok {
		return nil
	}
	return tree[key]
}
