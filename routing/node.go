// Package routing maps request paths to the variant descriptors that affect
// the rendered page. The route tree mirrors the page hierarchy: every node is
// one path segment and may carry components whose code references variants.
package routing

import (
	"regexp"
	"slices"

	variants "github.com/goliatone/go-variants"
)

// SegmentKind classifies a route segment.
type SegmentKind int

const (
	Static SegmentKind = iota
	Group
	Dynamic
	CatchAll
	OptionalCatchAll
	Leaf
)

func (k SegmentKind) String() string {
	switch k {
	case Static:
		return "static"
	case Group:
		return "group"
	case Dynamic:
		return "dynamic"
	case CatchAll:
		return "catch-all"
	case OptionalCatchAll:
		return "optional-catch-all"
	case Leaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// Slot names a component attached to a node.
type Slot string

const (
	SlotLayout   Slot = "layout"
	SlotTemplate Slot = "template"
	SlotError    Slot = "error"
	SlotNotFound Slot = "not-found"
	SlotPage     Slot = "page"
	SlotDefault  Slot = "default"
)

// Slots lists every slot in composition order.
var Slots = []Slot{SlotLayout, SlotTemplate, SlotError, SlotNotFound, SlotPage, SlotDefault}

const (
	// PageSegment is the synthetic leaf holding a page component.
	PageSegment = "__PAGE__"
	// DefaultSegment is the synthetic leaf holding a default component.
	DefaultSegment = "__DEFAULT__"
)

var (
	groupSegment            = regexp.MustCompile(`^\(.+?\)$`)
	optionalCatchAllSegment = regexp.MustCompile(`^\[\[\.\.\.(.+?)\]\]$`)
	catchAllSegment         = regexp.MustCompile(`^\[\.\.\.(.+?)\]$`)
	dynamicSegment          = regexp.MustCompile(`^\[(.+?)\]$`)
)

// ParseSegment classifies a directory name and returns the parameter name of
// dynamic kinds.
func ParseSegment(name string) (SegmentKind, string) {
	switch {
	case name == PageSegment || name == DefaultSegment:
		return Leaf, ""
	case groupSegment.MatchString(name):
		return Group, ""
	}
	if m := optionalCatchAllSegment.FindStringSubmatch(name); m != nil {
		return OptionalCatchAll, m[1]
	}
	if m := catchAllSegment.FindStringSubmatch(name); m != nil {
		return CatchAll, m[1]
	}
	if m := dynamicSegment.FindStringSubmatch(name); m != nil {
		return Dynamic, m[1]
	}
	return Static, ""
}

// Node is one segment of the route tree. Trees are built once and read
// concurrently afterwards.
type Node struct {
	Segment    string
	Kind       SegmentKind
	Param      string
	Components map[Slot]string
	Variants   map[Slot][]*variants.Descriptor
	Children   []*Node
}

// NewNode creates a node for segment. The root of a tree uses "".
func NewNode(segment string) *Node {
	kind, param := ParseSegment(segment)
	return &Node{Segment: segment, Kind: kind, Param: param}
}

// Child returns the direct child named segment.
func (n *Node) Child(segment string) (*Node, bool) {
	for _, child := range n.Children {
		if child.Segment == segment {
			return child, true
		}
	}
	return nil, false
}

// Ensure returns the child named segment, creating it when missing.
func (n *Node) Ensure(segment string) *Node {
	if child, ok := n.Child(segment); ok {
		return child
	}
	child := NewNode(segment)
	n.Children = append(n.Children, child)
	return child
}

// Page returns the page leaf of n, creating it when missing.
func (n *Node) Page() *Node {
	return n.Ensure(PageSegment)
}

// SetComponent records the source file backing slot.
func (n *Node) SetComponent(slot Slot, file string) *Node {
	if n.Components == nil {
		n.Components = make(map[Slot]string)
	}
	n.Components[slot] = file
	return n
}

// Attach appends descriptors to slot, skipping ids already attached there.
func (n *Node) Attach(slot Slot, ds ...*variants.Descriptor) *Node {
	if n.Variants == nil {
		n.Variants = make(map[Slot][]*variants.Descriptor)
	}
	for _, d := range ds {
		if d == nil {
			continue
		}
		existing := n.Variants[slot]
		if slices.ContainsFunc(existing, func(e *variants.Descriptor) bool { return e.ID() == d.ID() }) {
			continue
		}
		n.Variants[slot] = append(existing, d)
	}
	return n
}

// leafSlot is the slot a leaf node's component occupies.
func (n *Node) leafSlot() Slot {
	if n.Segment == DefaultSegment {
		return SlotDefault
	}
	return SlotPage
}

// Walk visits root and its descendants depth first. Returning an error from
// fn stops the walk.
func Walk(root *Node, fn func(n *Node, depth int) error) error {
	return walk(root, 0, fn)
}

func walk(n *Node, depth int, fn func(*Node, int) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n, depth); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := walk(child, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}
