package modularity

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Hierarchy is a binary community tree. A node is either a leaf holding a
// group of actor labels or a split into two sub-communities. Values are
// immutable once constructed.
type Hierarchy struct {
	members     []string
	left, right *Hierarchy
}

// Leaf creates a terminal community
func Leaf(labels ...string) *Hierarchy {
	members := make([]string, len(labels))
	copy(members, labels)
	return &Hierarchy{members: members}
}

// NewSplit creates an internal node dividing a community in two
func NewSplit(left, right *Hierarchy) *Hierarchy {
	return &Hierarchy{left: left, right: right}
}

// IsSplit reports whether h divides into two sub-communities
func (h *Hierarchy) IsSplit() bool {
	return h != nil && h.left != nil && h.right != nil
}

// IsLeaf reports whether h is a terminal community
func (h *Hierarchy) IsLeaf() bool {
	return h != nil && h.left == nil && h.right == nil
}

// IsEmpty reports whether h holds no labels at all
func (h *Hierarchy) IsEmpty() bool {
	return len(h.Labels()) == 0
}

// Left returns the first sub-community of a split
func (h *Hierarchy) Left() *Hierarchy {
	if h == nil {
		return nil
	}
	return h.left
}

// Right returns the second sub-community of a split
func (h *Hierarchy) Right() *Hierarchy {
	if h == nil {
		return nil
	}
	return h.right
}

// Members returns a copy of a leaf's labels
func (h *Hierarchy) Members() []string {
	if !h.IsLeaf() {
		return nil
	}
	members := make([]string, len(h.members))
	copy(members, h.members)
	return members
}

// Labels returns every label in the tree in left-to-right leaf order
func (h *Hierarchy) Labels() []string {
	labels := make([]string, 0)
	for _, group := range Flatten(h) {
		labels = append(labels, group...)
	}
	return labels
}

// Depth returns the number of split levels below h
func (h *Hierarchy) Depth() int {
	if !h.IsSplit() {
		return 0
	}
	return 1 + max(h.left.Depth(), h.right.Depth())
}

// Flatten discards the hierarchy and returns the leaf groups left to right.
// A nil or empty tree flattens to an empty slice.
func Flatten(h *Hierarchy) [][]string {
	groups := make([][]string, 0)
	var walk func(*Hierarchy)
	walk = func(node *Hierarchy) {
		if node.IsSplit() {
			walk(node.left)
			walk(node.right)
			return
		}
		if members := node.Members(); len(members) > 0 {
			groups = append(groups, members)
		}
	}
	walk(h)
	return groups
}

// MarshalJSON encodes a split as [left, right] and a leaf as its label list
func (h *Hierarchy) MarshalJSON() ([]byte, error) {
	if h.IsSplit() {
		return json.Marshal([2]*Hierarchy{h.left, h.right})
	}
	members := h.Members()
	if members == nil {
		members = []string{}
	}
	return json.Marshal(members)
}

// UnmarshalJSON decodes the nested list form produced by MarshalJSON
func (h *Hierarchy) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("hierarchy must be a JSON array: %w", err)
	}

	if len(items) == 2 && isArray(items[0]) && isArray(items[1]) {
		left, right := &Hierarchy{}, &Hierarchy{}
		if err := left.UnmarshalJSON(items[0]); err != nil {
			return err
		}
		if err := right.UnmarshalJSON(items[1]); err != nil {
			return err
		}
		*h = Hierarchy{left: left, right: right}
		return nil
	}

	members := make([]string, 0, len(items))
	for _, item := range items {
		var label string
		if err := json.Unmarshal(item, &label); err != nil {
			return fmt.Errorf("leaf community entries must be labels: %w", err)
		}
		members = append(members, label)
	}
	*h = Hierarchy{members: members}
	return nil
}

func isArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}
