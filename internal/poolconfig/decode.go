package poolconfig

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML text into a RawConfig. An empty document yields an
// empty RawConfig.
func Parse(data []byte) (RawConfig, error) {
	var raw RawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if raw == nil {
		raw = RawConfig{}
	}
	return raw, nil
}

// UnmarshalYAML decodes a top-level mapping, enforcing that environment
// blocks hold only counts. A null block is decoded as an empty block.
func (r *RawConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.AliasNode {
		return r.UnmarshalYAML(node.Alias)
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: top level must be a mapping", node.Line)
	}

	pairs, err := mappingPairs(node)
	if err != nil {
		return err
	}
	out := make(RawConfig, len(pairs))
	for _, kv := range pairs {
		value, err := decodeValue(kv.value)
		if err != nil {
			return fmt.Errorf("key %q: %w", kv.key.Value, err)
		}
		out[kv.key.Value] = value
	}
	*r = out
	return nil
}

func decodeValue(node *yaml.Node) (Value, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return Value{Block: map[string]int{}}, nil
		}
		n, err := decodeCount(node)
		if err != nil {
			return Value{}, err
		}
		return Count(n), nil
	case yaml.MappingNode:
		pairs, err := mappingPairs(node)
		if err != nil {
			return Value{}, err
		}
		block := make(map[string]int, len(pairs))
		for _, kv := range pairs {
			valueNode := kv.value
			if valueNode.Kind == yaml.AliasNode {
				valueNode = valueNode.Alias
			}
			if valueNode.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("line %d: %w", valueNode.Line, ErrNestingTooDeep)
			}
			n, err := decodeCount(valueNode)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", kv.key.Value, err)
			}
			block[kv.key.Value] = n
		}
		return Value{Block: block}, nil
	default:
		return Value{}, fmt.Errorf("line %d: %w", node.Line, ErrInvalidValue)
	}
}

type keyValue struct {
	key, value *yaml.Node
}

// mappingPairs returns the entries of a mapping node with merge keys
// (<<: *anchor) expanded. Explicit keys win over merged ones, and earlier
// merge sources win over later ones.
func mappingPairs(node *yaml.Node) ([]keyValue, error) {
	var pairs, merged []keyValue
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		if keyNode.Kind == yaml.ScalarNode && keyNode.ShortTag() == "!!merge" {
			sources, err := mergeSources(valueNode)
			if err != nil {
				return nil, err
			}
			for _, src := range sources {
				inner, err := mappingPairs(src)
				if err != nil {
					return nil, err
				}
				merged = append(merged, inner...)
			}
			continue
		}
		if seen[keyNode.Value] {
			return nil, fmt.Errorf("line %d: duplicate key %q", keyNode.Line, keyNode.Value)
		}
		seen[keyNode.Value] = true
		pairs = append(pairs, keyValue{key: keyNode, value: valueNode})
	}
	for _, kv := range merged {
		if seen[kv.key.Value] {
			continue
		}
		seen[kv.key.Value] = true
		pairs = append(pairs, kv)
	}
	return pairs, nil
}

// mergeSources resolves the value of a merge key to the mappings it names.
func mergeSources(node *yaml.Node) ([]*yaml.Node, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.MappingNode:
		return []*yaml.Node{node}, nil
	case yaml.SequenceNode:
		sources := make([]*yaml.Node, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind == yaml.AliasNode {
				item = item.Alias
			}
			if item.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("line %d: merge value must be a mapping: %w", item.Line, ErrInvalidValue)
			}
			sources = append(sources, item)
		}
		return sources, nil
	default:
		return nil, fmt.Errorf("line %d: merge value must be a mapping: %w", node.Line, ErrInvalidValue)
	}
}

func decodeCount(node *yaml.Node) (int, error) {
	var n int
	if err := node.Decode(&n); err != nil {
		return 0, fmt.Errorf("line %d: %q: %w", node.Line, node.Value, ErrInvalidValue)
	}
	if n < 0 {
		return 0, fmt.Errorf("line %d: %d: %w", node.Line, n, ErrInvalidValue)
	}
	return n, nil
}

// FromMap builds a RawConfig from a generic mapping such as one produced by
// a JSON or YAML decoder. Values must be integers (integral floats are
// accepted) or mappings of integers; nil values are empty blocks.
func FromMap(m map[string]any) (RawConfig, error) {
	out := make(RawConfig, len(m))
	for key, v := range m {
		switch typed := v.(type) {
		case nil:
			out[key] = Value{Block: map[string]int{}}
		case map[string]int:
			for k, n := range typed {
				if n < 0 {
					return nil, fmt.Errorf("key %q: %q: %w", key, k, ErrInvalidValue)
				}
			}
			out[key] = Block(typed)
		case map[string]any:
			block := make(map[string]int, len(typed))
			for k, inner := range typed {
				n, err := toCount(inner)
				if err != nil {
					return nil, fmt.Errorf("key %q: %q: %w", key, k, err)
				}
				block[k] = n
			}
			out[key] = Value{Block: block}
		default:
			n, err := toCount(v)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", key, err)
			}
			out[key] = Count(n)
		}
	}
	return out, nil
}

func toCount(v any) (int, error) {
	var n int
	switch typed := v.(type) {
	case int:
		n = typed
	case int32:
		n = int(typed)
	case int64:
		n = int(typed)
	case uint:
		n = int(typed)
	case float64:
		if typed != math.Trunc(typed) {
			return 0, ErrInvalidValue
		}
		n = int(typed)
	case map[string]any, map[string]int:
		return 0, ErrNestingTooDeep
	default:
		return 0, ErrInvalidValue
	}
	if n < 0 {
		return 0, ErrInvalidValue
	}
	return n, nil
}
