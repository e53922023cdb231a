// Package sequence interprets the automation sequence tree reported by the
// imaging server: which step is running, what each step is doing, and how
// far along the whole plan is.
package sequence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is a node's execution state as reported by the server.
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusSkipped  Status = "SKIPPED"
	StatusFailed   Status = "FAILED"
)

// Node is one step, container, condition or trigger. Fields other than the
// structural ones are kept verbatim in Attrs.
type Node struct {
	Name       string
	Status     Status
	Items      []*Node
	Conditions []*Node
	Triggers   []*Node
	Attrs      map[string]any
}

// UnmarshalJSON splits structural fields from per-kind attributes. A
// collection present in the payload, even empty, stays non-nil so
// HasChildren can tell containers from plain steps.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node{Attrs: make(map[string]any, len(raw))}
	for key, val := range raw {
		switch key {
		case "Name":
			_ = json.Unmarshal(val, &n.Name)
		case "Status":
			_ = json.Unmarshal(val, &n.Status)
		case "Items":
			if err := decodeChildren(val, &n.Items); err != nil {
				return fmt.Errorf("%s.Items: %w", n.label(), err)
			}
		case "Conditions":
			if err := decodeChildren(val, &n.Conditions); err != nil {
				return fmt.Errorf("%s.Conditions: %w", n.label(), err)
			}
		case "Triggers":
			if err := decodeChildren(val, &n.Triggers); err != nil {
				return fmt.Errorf("%s.Triggers: %w", n.label(), err)
			}
		default:
			var v any
			if err := json.Unmarshal(val, &v); err == nil {
				n.Attrs[key] = v
			}
		}
	}
	return nil
}

func decodeChildren(raw json.RawMessage, dst *[]*Node) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	children := []*Node{}
	if err := json.Unmarshal(raw, &children); err != nil {
		return err
	}
	*dst = children
	return nil
}

func (n *Node) label() string {
	if n.Name == "" {
		return "<unnamed>"
	}
	return n.Name
}

// HasChildren reports whether the node carries any child collection.
func (n *Node) HasChildren() bool {
	return n.Items != nil || n.Conditions != nil || n.Triggers != nil
}

// Value walks nested attribute objects along path.
func (n *Node) Value(path ...string) (any, bool) {
	if n == nil || len(path) == 0 {
		return nil, false
	}
	var cur any = n.Attrs
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Float returns the attribute at path as a number, 0 when absent.
func (n *Node) Float(path ...string) float64 {
	v, _ := n.Value(path...)
	return toFloat(v)
}

// Int truncates Float to an int.
func (n *Node) Int(path ...string) int {
	return int(n.Float(path...))
}

// Text returns the attribute at path as a string. Numbers and booleans are
// formatted; anything else yields "".
func (n *Node) Text(path ...string) string {
	v, _ := n.Value(path...)
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return formatNumber(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// Child returns the first descendant, in Items then Conditions then
// Triggers order, whose name contains substr.
func (n *Node) Child(substr string) *Node {
	if n == nil {
		return nil
	}
	for _, coll := range n.collections() {
		for _, c := range coll {
			if c == nil {
				continue
			}
			if containsName(c.Name, substr) {
				return c
			}
			if found := c.Child(substr); found != nil {
				return found
			}
		}
	}
	return nil
}

func (n *Node) collections() [3][]*Node {
	return [3][]*Node{n.Items, n.Conditions, n.Triggers}
}

// Parse decodes a sequence forest. It accepts a bare array, a single root
// object, or the server envelope wrapping either.
func Parse(data []byte) ([]*Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("parse sequence: empty document")
	}
	if trimmed[0] == '{' {
		var env struct {
			Response json.RawMessage `json:"Response"`
		}
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Response) > 0 {
			return Parse(env.Response)
		}
		var root Node
		if err := json.Unmarshal(trimmed, &root); err != nil {
			return nil, fmt.Errorf("parse sequence: %w", err)
		}
		return []*Node{&root}, nil
	}
	var forest []*Node
	if err := json.Unmarshal(trimmed, &forest); err != nil {
		return nil, fmt.Errorf("parse sequence: %w", err)
	}
	return forest, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
