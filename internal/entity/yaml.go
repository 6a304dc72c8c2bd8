package entity

import (
	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts either a bare scalar (`3`, `true`, `forest`) or the
// explicit {kind, num, str, bool} mapping.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		type plain Value
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*v = Value(p)
		return nil
	}

	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	val, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// MarshalYAML writes values as bare scalars.
func (v Value) MarshalYAML() (any, error) {
	return v.Raw(), nil
}
