package config

import "dario.cat/mergo"

// Merge combines trees in order of priority, lowest first. Mapping
// values merge recursively; scalar and list values from a later tree
// replace earlier ones. Inputs are never mutated.
func Merge(trees ...Tree) (Tree, error) {
	merged := Tree{}
	for _, tree := range trees {
		// An explicit null in a later tree is an explicitNull sentinel,
		// a non-zero value, so it overrides like any other scalar.
		if err := mergo.Merge(&merged, copyTree(tree), mergo.WithOverride); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// copyTree deep-copies a tree so merge targets never alias nested maps
// of their sources.
func copyTree(tree Tree) Tree {
	out := make(Tree, len(tree))
	for key, value := range tree {
		out[key] = copyValue(value)
	}
	return out
}

func copyValue(value any) any {
	switch val := value.(type) {
	case Tree:
		return copyTree(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return value
	}
}
