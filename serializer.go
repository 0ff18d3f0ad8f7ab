package param

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Snapshot is a serializable view of an instance's effective values,
// preserving parameter declaration order in both JSON and YAML output.
type Snapshot struct {
	in *Instance
}

// Snapshot returns the instance's serializable view. Values are read at
// marshal time, not captured here.
func (in *Instance) Snapshot() *Snapshot {
	return &Snapshot{in: in}
}

func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pname := range s.in.cls.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(pname)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		v, _ := s.in.Get(pname)
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", pname, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Snapshot) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, pname := range s.in.cls.order {
		keyNode := &yaml.Node{}
		if err := keyNode.Encode(pname); err != nil {
			return nil, err
		}
		v, _ := s.in.Get(pname)
		valNode := &yaml.Node{}
		if err := valNode.Encode(v); err != nil {
			return nil, fmt.Errorf("parameter %q: %w", pname, err)
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// SaveJSON serializes the effective values as a JSON object.
func (in *Instance) SaveJSON() ([]byte, error) {
	return json.Marshal(in.Snapshot())
}

// SaveYAML serializes the effective values as a YAML mapping.
func (in *Instance) SaveYAML() ([]byte, error) {
	return yaml.Marshal(in.Snapshot())
}

// LoadJSON applies a JSON object of parameter values through the batched
// update pipeline: every value is validated, watchers see one settled
// change set, and a failing value rolls the whole load back.
func (in *Instance) LoadJSON(data []byte) error {
	var values Values
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decoding values: %w", err)
	}
	return in.Update(normalizeDecoded(in.cls, values))
}

// LoadYAML is LoadJSON for YAML input.
func (in *Instance) LoadYAML(data []byte) error {
	var values Values
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decoding values: %w", err)
	}
	return in.Update(normalizeDecoded(in.cls, values))
}

// normalizeDecoded undoes decoder-specific value shapes: JSON numbers all
// arrive as float64, so integer-kind parameters get their values restored
// to int when the float is exact.
func normalizeDecoded(c *Class, values Values) Values {
	for name, v := range values {
		p, ok := c.params[name]
		if !ok {
			continue
		}
		if p.kind != KindInteger {
			continue
		}
		if f, ok := v.(float64); ok && f == float64(int(f)) {
			values[name] = int(f)
		}
	}
	return values
}

// SchemaEntry describes one parameter's declaration for external tooling.
type SchemaEntry struct {
	Kind      Kind       `json:"kind" yaml:"kind"`
	Doc       string     `json:"doc,omitempty" yaml:"doc,omitempty"`
	Label     string     `json:"label,omitempty" yaml:"label,omitempty"`
	Default   any        `json:"default" yaml:"default"`
	AllowNone bool       `json:"allow_none,omitempty" yaml:"allow_none,omitempty"`
	Constant  bool       `json:"constant,omitempty" yaml:"constant,omitempty"`
	ReadOnly  bool       `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	Bounds    []*float64 `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Regex     string     `json:"regex,omitempty" yaml:"regex,omitempty"`
	Objects   []any      `json:"objects,omitempty" yaml:"objects,omitempty"`
}

// Schema returns the resolved declarations of every parameter, keyed by
// name, for documentation and UI generation.
func (c *Class) Schema() map[string]SchemaEntry {
	out := make(map[string]SchemaEntry, len(c.order))
	for _, pname := range c.order {
		p := c.params[pname]
		label, _ := p.SlotOrDefault(SlotLabel).(string)
		entry := SchemaEntry{
			Kind:      p.kind,
			Doc:       p.Doc(),
			Label:     label,
			Default:   p.Default(),
			AllowNone: p.AllowsNone(),
			Constant:  p.IsConstant(),
			ReadOnly:  p.IsReadOnly(),
		}
		if lower, upper := p.BoundsValues(); lower != nil || upper != nil {
			entry.Bounds = []*float64{lower, upper}
		}
		if pattern, _ := p.SlotOrDefault(SlotRegex).(string); pattern != "" {
			entry.Regex = pattern
		}
		if objects, _ := p.SlotOrDefault(SlotObjects).([]any); len(objects) > 0 {
			entry.Objects = objects
		}
		out[pname] = entry
	}
	return out
}
