package routing

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

// ErrUnexpectedFile reports a file in the page tree that is not a route
// component.
var ErrUnexpectedFile = errors.New("routing: unexpected file in route tree")

// ComponentExtensions lists the source extensions recognised as components.
var ComponentExtensions = []string{".js", ".jsx", ".ts", ".tsx", ".html", ".tmpl", ".gohtml"}

var interceptingSegment = regexp.MustCompile(`^(\(\.\.\.\)|\(\.\)|(\(\.\.\))+)`)

// ComponentSlot returns the slot a component file name occupies.
func ComponentSlot(name string) (Slot, bool) {
	ext := path.Ext(name)
	if !slices.Contains(ComponentExtensions, ext) {
		return "", false
	}
	slot := Slot(strings.TrimSuffix(name, ext))
	if !slices.Contains(Slots, slot) {
		return "", false
	}
	return slot, true
}

type fileTree struct {
	name     string
	path     string
	children []*fileTree
}

func (t *fileTree) ensure(name, p string) *fileTree {
	for _, child := range t.children {
		if child.name == name {
			return child
		}
	}
	child := &fileTree{name: name, path: p}
	t.children = append(t.children, child)
	return child
}

// FromPaths builds the route tree for the component files in paths, which
// must live under appDir. Layout, template, error and not-found files become
// slots of their directory's node; page and default files become leaf
// children. Parallel and intercepting route directories are rejected with
// ErrNotImplemented.
func FromPaths(appDir string, paths []string) (*Node, error) {
	root := &fileTree{path: appDir}
	sorted := slices.Clone(paths)
	slices.Sort(sorted)
	for _, p := range sorted {
		rel, err := filepath.Rel(appDir, p)
		if err != nil {
			return nil, fmt.Errorf("routing: %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		if rel == "." || strings.HasPrefix(rel, "../") {
			return nil, fmt.Errorf("routing: %s is outside %s", p, appDir)
		}
		insertion := root
		parts := strings.Split(rel, "/")
		for i, part := range parts {
			insertion = insertion.ensure(part, filepath.Join(appDir, filepath.FromSlash(strings.Join(parts[:i+1], "/"))))
		}
	}
	return toNode(root, "")
}

func toNode(item *fileTree, segment string) (*Node, error) {
	switch {
	case strings.HasPrefix(segment, "@") && len(segment) > 1:
		return nil, fmt.Errorf("%w: variants in parallel routes (%s)", ErrNotImplemented, item.path)
	case interceptingSegment.MatchString(segment):
		return nil, fmt.Errorf("%w: variants in intercepting routes (%s)", ErrNotImplemented, item.path)
	}

	node := NewNode(segment)
	for _, child := range item.children {
		if len(child.children) > 0 {
			sub, err := toNode(child, child.name)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, sub)
			continue
		}
		slot, ok := ComponentSlot(child.name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedFile, child.path)
		}
		switch slot {
		case SlotPage:
			node.Ensure(PageSegment).SetComponent(SlotPage, child.path)
		case SlotDefault:
			node.Ensure(DefaultSegment).SetComponent(SlotDefault, child.path)
		default:
			if _, taken := node.Components[slot]; !taken {
				node.SetComponent(slot, child.path)
			}
		}
	}
	return node, nil
}

// Components lists every component file in the tree with its node.
func Components(root *Node) map[string]*Node {
	out := make(map[string]*Node)
	_ = Walk(root, func(n *Node, _ int) error {
		for _, file := range n.Components {
			out[file] = n
		}
		return nil
	})
	return out
}
