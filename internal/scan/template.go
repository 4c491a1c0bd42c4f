package scan

import (
	"fmt"
	"log/slog"
	"slices"
	"text/template/parse"
)

// VariantFunc is the template function whose first string argument names a
// variant.
const VariantFunc = "variant"

type templateRefs struct {
	variants []string
	includes []string
}

type templateIndex struct {
	logger *slog.Logger
	// trees maps template names to their references. Component files are
	// named by path; {{define}} blocks by their name.
	trees map[string]templateRefs
	memo  map[string][]string
}

func (s *Scanner) templateIndex(components []string) (*templateIndex, error) {
	idx := &templateIndex{
		logger: s.logger,
		trees:  make(map[string]templateRefs),
		memo:   make(map[string][]string),
	}
	files := make([]string, 0, len(components))
	for _, file := range components {
		if isTemplate(file) {
			files = append(files, file)
		}
	}
	for _, partial := range s.partials {
		matches, err := s.glob(partial.root, partial.pattern)
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	for _, file := range files {
		if err := idx.add(file); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *templateIndex) add(file string) error {
	if _, done := idx.trees[file]; done {
		return nil
	}
	data, err := readFile(file)
	if err != nil {
		return err
	}
	treeSet := make(map[string]*parse.Tree)
	tree := parse.New(file)
	tree.Mode = parse.SkipFuncCheck
	if _, err := tree.Parse(string(data), "", "", treeSet); err != nil {
		return fmt.Errorf("scan: parse template %s: %w", file, err)
	}
	for name, t := range treeSet {
		refs := templateRefs{}
		collectTemplateRefs(t.Root, &refs)
		if name != file {
			if _, dup := idx.trees[name]; dup {
				idx.logger.Warn("scan: template defined twice, keeping first", "name", name, "file", file)
				continue
			}
		}
		idx.trees[name] = refs
	}
	if _, ok := idx.trees[file]; !ok {
		idx.trees[file] = templateRefs{}
	}
	return nil
}

// refs returns the variants referenced by name and every template it
// includes.
func (idx *templateIndex) refs(name string) []string {
	seen := make(map[string]struct{})
	idx.visit(name, seen)
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (idx *templateIndex) visit(name string, into map[string]struct{}) {
	if cached, ok := idx.memo[name]; ok {
		for _, id := range cached {
			into[id] = struct{}{}
		}
		return
	}
	refs, ok := idx.trees[name]
	if !ok {
		idx.logger.Warn("scan: included template not found", "name", name)
		return
	}
	// Guard against include cycles while the entry is being computed.
	idx.memo[name] = nil
	local := make(map[string]struct{})
	for _, id := range refs.variants {
		local[id] = struct{}{}
	}
	for _, include := range refs.includes {
		idx.visit(include, local)
	}
	ids := make([]string, 0, len(local))
	for id := range local {
		ids = append(ids, id)
		into[id] = struct{}{}
	}
	idx.memo[name] = ids
}

func collectTemplateRefs(node parse.Node, refs *templateRefs) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectTemplateRefs(child, refs)
		}
	case *parse.ActionNode:
		collectTemplateRefs(n.Pipe, refs)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			collectTemplateRefs(cmd, refs)
		}
	case *parse.CommandNode:
		if len(n.Args) >= 2 {
			if ident, ok := n.Args[0].(*parse.IdentifierNode); ok && ident.Ident == VariantFunc {
				if id, ok := n.Args[1].(*parse.StringNode); ok {
					refs.variants = append(refs.variants, id.Text)
				}
			}
		}
		for _, arg := range n.Args {
			collectTemplateRefs(arg, refs)
		}
	case *parse.ChainNode:
		collectTemplateRefs(n.Node, refs)
	case *parse.IfNode:
		collectBranchRefs(&n.BranchNode, refs)
	case *parse.RangeNode:
		collectBranchRefs(&n.BranchNode, refs)
	case *parse.WithNode:
		collectBranchRefs(&n.BranchNode, refs)
	case *parse.TemplateNode:
		refs.includes = append(refs.includes, n.Name)
		collectTemplateRefs(n.Pipe, refs)
	}
}

func collectBranchRefs(n *parse.BranchNode, refs *templateRefs) {
	collectTemplateRefs(n.Pipe, refs)
	collectTemplateRefs(n.List, refs)
	collectTemplateRefs(n.ElseList, refs)
}
