package routing

import (
	"errors"
	"fmt"
	"strings"

	variants "github.com/goliatone/go-variants"
)

var (
	// ErrNoMatch reports that no route in the tree matches a path. It is a
	// structural outcome, not a failure of the tree.
	ErrNoMatch = errors.New("routing: no matching route")
	// ErrNotImplemented reports route shapes variants cannot be composed
	// over yet.
	ErrNotImplemented = errors.New("routing: not implemented")
)

// Match returns the descriptors applicable to path: those on the layout and
// template of every node along the matched route plus the page (or default)
// component at its end.
func Match(root *Node, path string) (Set, error) {
	if root == nil {
		return Set{}, ErrNoMatch
	}
	ds, err := matchNode(root, splitPath(path))
	if err != nil {
		return Set{}, err
	}
	return NewSet(ds...), nil
}

func splitPath(path string) []string {
	segments := make([]string, 0, strings.Count(path, "/")+1)
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return append(segments, PageSegment)
}

// matchNode matches rest below n, whose own segment is already consumed.
func matchNode(n *Node, rest []string) ([]*variants.Descriptor, error) {
	own := ownDescriptors(n)
	head := rest[0]

	if head == PageSegment && len(rest) == 1 {
		leaf := leafChild(n)
		if leaf == nil {
			return nil, unsupportedLeaf(n)
		}
		return append(own, leaf.Variants[leaf.leafSlot()]...), nil
	}

	for _, child := range candidates(n, head) {
		switch child.Kind {
		case Group:
			return nil, fmt.Errorf("%w: group segment %q", ErrNotImplemented, child.Segment)
		case CatchAll, OptionalCatchAll:
			return nil, fmt.Errorf("%w: catch-all segment %q", ErrNotImplemented, child.Segment)
		}
		below, err := matchNode(child, rest[1:])
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return append(own, below...), nil
	}
	return nil, ErrNoMatch
}

// unsupportedLeaf reports children that could serve n's own path but whose
// composition is not supported: groups and optional catch-alls matching zero
// segments.
func unsupportedLeaf(n *Node) error {
	for _, child := range n.Children {
		switch child.Kind {
		case Group:
			return fmt.Errorf("%w: group segment %q", ErrNotImplemented, child.Segment)
		case OptionalCatchAll:
			return fmt.Errorf("%w: catch-all segment %q", ErrNotImplemented, child.Segment)
		}
	}
	return ErrNoMatch
}

func ownDescriptors(n *Node) []*variants.Descriptor {
	out := make([]*variants.Descriptor, 0, len(n.Variants[SlotLayout])+len(n.Variants[SlotTemplate]))
	out = append(out, n.Variants[SlotLayout]...)
	return append(out, n.Variants[SlotTemplate]...)
}

func leafChild(n *Node) *Node {
	if page, ok := n.Child(PageSegment); ok {
		return page
	}
	if def, ok := n.Child(DefaultSegment); ok {
		return def
	}
	return nil
}

// candidates orders the children that may consume head: literal matches,
// then dynamic segments, then group and catch-all segments.
func candidates(n *Node, head string) []*Node {
	var static, dynamic, other []*Node
	for _, child := range n.Children {
		switch child.Kind {
		case Static:
			if child.Segment == head {
				static = append(static, child)
			}
		case Dynamic:
			dynamic = append(dynamic, child)
		case Group, CatchAll, OptionalCatchAll:
			other = append(other, child)
		}
	}
	return append(append(static, dynamic...), other...)
}
