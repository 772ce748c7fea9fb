package field

import (
	"fmt"
	"strings"
)

// InputID names an input port: the node kind it belongs to plus the field
// name within that kind. IDs are value types, safe as map keys, and stable
// across sessions (they survive serialization as "Kind.field" strings).
type InputID struct {
	Node  string
	Field string
}

func (id InputID) String() string { return id.Node + "." + id.Field }

// OutputID names an output port, with the same shape and guarantees as
// InputID. The two are distinct types so an edge cannot be built backwards.
type OutputID struct {
	Node  string
	Field string
}

func (id OutputID) String() string { return id.Node + "." + id.Field }

// ParseInputID reverses InputID.String.
func ParseInputID(s string) (InputID, error) {
	node, name, err := splitPortKey(s)
	if err != nil {
		return InputID{}, err
	}
	return InputID{Node: node, Field: name}, nil
}

// ParseOutputID reverses OutputID.String.
func ParseOutputID(s string) (OutputID, error) {
	node, name, err := splitPortKey(s)
	if err != nil {
		return OutputID{}, err
	}
	return OutputID{Node: node, Field: name}, nil
}

func splitPortKey(s string) (string, string, error) {
	node, name, ok := strings.Cut(s, ".")
	if !ok || node == "" || name == "" {
		return "", "", fmt.Errorf("malformed port id %q: want \"Kind.field\"", s)
	}
	return node, name, nil
}

// Meta is the per-port metadata every port carries: whether the port is
// exposed for incoming connections, and the stored fallback value the port
// reverts to when it has no incoming edge.
type Meta struct {
	Visible bool
	Storage Field
}
