package markdown

import (
	"time"

	"gopkg.in/yaml.v3"
)

// ValueKind discriminates the tagged-value tree used for front-matter,
// modelling arbitrary YAML as string | number | boolean | date |
// sequence | mapping.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindDate
	KindSequence
	KindMapping
)

// Value is one node of the front-matter tree.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	Date time.Time
	Seq  []Value
	Map  *OrderedMap
}

func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func DateValue(t time.Time) Value { return Value{Kind: KindDate, Date: t} }
func SequenceValue(vs []Value) Value {
	return Value{Kind: KindSequence, Seq: vs}
}
func MappingValue(m *OrderedMap) Value { return Value{Kind: KindMapping, Map: m} }

// OrderedMap preserves front-matter key insertion order so round-trip
// writes do not reorder unrelated keys.
type OrderedMap struct {
	keys   []string
	values map[string]Value
}

// NewOrderedMap returns an empty OrderedMap.
func NewOrderedMap() *OrderedMap {
	return &OrderedMap{values: make(map[string]Value)}
}

// Set inserts or updates a key, appending it to the key order if new.
func (m *OrderedMap) Set(key string, v Value) {
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value for key and whether it was present.
func (m *OrderedMap) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key, preserving the order of the rest.
func (m *OrderedMap) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Rename changes a key's name in place, preserving its position and value.
func (m *OrderedMap) Rename(oldKey, newKey string) bool {
	v, ok := m.values[oldKey]
	if !ok {
		return false
	}
	if oldKey == newKey {
		return true
	}
	delete(m.values, oldKey)
	m.values[newKey] = v
	for i, k := range m.keys {
		if k == oldKey {
			m.keys[i] = newKey
			break
		}
	}
	return true
}

// Keys returns keys in insertion order.
func (m *OrderedMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of keys.
func (m *OrderedMap) Len() int { return len(m.keys) }

// RenderFrontMatter serialises om back to a `---\n...\n---\n` YAML
// block, preserving key order, or "" if om is empty. Built from a
// yaml.Node tree (rather than yaml.Marshal on a plain map) because
// Go map iteration order is not insertion order.
func RenderFrontMatter(om *OrderedMap) (string, error) {
	if om == nil || om.Len() == 0 {
		return "", nil
	}

	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range om.Keys() {
		v, _ := om.Get(k)
		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, valueToNode(v))
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", err
	}
	return "---\n" + string(out) + "---\n", nil
}

func valueToNode(v Value) *yaml.Node {
	switch v.Kind {
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Str}
	case KindNumber:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float"}
		_ = n.Encode(v.Num)
		return n
	case KindBool:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool"}
		_ = n.Encode(v.Bool)
		return n
	case KindDate:
		n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp"}
		_ = n.Encode(v.Date)
		return n
	case KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Seq {
			n.Content = append(n.Content, valueToNode(item))
		}
		return n
	case KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if v.Map != nil {
			for _, k := range v.Map.Keys() {
				mv, _ := v.Map.Get(k)
				n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, valueToNode(mv))
			}
		}
		return n
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Str}
	}
}
