package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	variants "github.com/goliatone/go-variants"
)

var (
	ErrDefaultExport = errors.New("scan: variants must be exported by name")
	ErrVariantID     = errors.New("scan: variant declaration has no usable id")
)

// factoryPattern matches the constructors that declare a variant, such as
// createCookieVariant or createExperimentVariant.
var factoryPattern = regexp.MustCompile(`^create\w*Variant$`)

var scriptExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs"}

type scriptImport struct {
	source string
	// names are the imported (not local) binding names.
	names []string
	// all is set for namespace imports and star re-exports.
	all bool
}

type scriptIndex struct {
	logger  *slog.Logger
	aliases map[string]string
	// exports maps a variant file to its exported binding names and ids.
	exports map[string]map[string]string
	memo    map[string][]string
}

func (s *Scanner) scriptIndex(ctx context.Context) (*scriptIndex, error) {
	idx := &scriptIndex{
		logger:  s.logger,
		aliases: s.aliases,
		exports: make(map[string]map[string]string, len(s.variantFiles)),
		memo:    make(map[string][]string),
	}
	for _, file := range s.variantFiles {
		exports, err := parseVariantFile(ctx, file)
		if err != nil {
			return nil, err
		}
		idx.exports[file] = exports
		s.logger.Debug("scan: variant file", "file", file, "exports", len(exports))
	}
	return idx, nil
}

// refs returns the variant ids file reaches through its imports.
func (idx *scriptIndex) refs(ctx context.Context, file string) ([]string, error) {
	seen := make(map[string]struct{})
	if err := idx.visit(ctx, file, seen); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func (idx *scriptIndex) visit(ctx context.Context, file string, into map[string]struct{}) error {
	if cached, ok := idx.memo[file]; ok {
		for _, id := range cached {
			into[id] = struct{}{}
		}
		return nil
	}
	idx.memo[file] = nil

	imports, err := parseImports(ctx, file)
	if err != nil {
		return err
	}
	local := make(map[string]struct{})
	for _, imp := range imports {
		target, ok := idx.resolve(filepath.Dir(file), imp.source)
		if !ok {
			continue
		}
		if exports, isVariantFile := idx.exports[target]; isVariantFile {
			for name, id := range exports {
				if imp.all || slices.Contains(imp.names, name) {
					local[id] = struct{}{}
				}
			}
			continue
		}
		if err := idx.visit(ctx, target, local); err != nil {
			return err
		}
	}

	ids := make([]string, 0, len(local))
	for id := range local {
		ids = append(ids, id)
		into[id] = struct{}{}
	}
	idx.memo[file] = ids
	return nil
}

// resolve maps an import specifier to a local source file. Package imports
// are not followed.
func (idx *scriptIndex) resolve(dir, specifier string) (string, bool) {
	var base string
	switch {
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"):
		base = filepath.Join(dir, filepath.FromSlash(specifier))
	default:
		for prefix, target := range idx.aliases {
			if strings.HasPrefix(specifier, prefix) {
				base = filepath.Join(target, filepath.FromSlash(strings.TrimPrefix(specifier, prefix)))
				break
			}
		}
	}
	if base == "" {
		return "", false
	}
	candidates := []string{base}
	for _, ext := range scriptExtensions {
		candidates = append(candidates, base+ext)
	}
	for _, ext := range scriptExtensions {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && isScript(candidate) {
			return candidate, true
		}
	}
	idx.logger.Warn("scan: unresolved import", "dir", dir, "import", specifier)
	return "", false
}

func languageFor(file string) *sitter.Language {
	switch filepath.Ext(file) {
	case ".tsx":
		return tsx.GetLanguage()
	case ".ts":
		return typescript.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// parseScript parses file and hands its root node to fn.
func parseScript(ctx context.Context, file string, fn func(root *sitter.Node, content []byte) error) error {
	content, err := readFile(file)
	if err != nil {
		return err
	}
	parser := sitter.NewParser()
	parser.SetLanguage(languageFor(file))
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fmt.Errorf("scan: parse %s: %w", file, err)
	}
	defer tree.Close()
	return fn(tree.RootNode(), content)
}

func parseImports(ctx context.Context, file string) ([]scriptImport, error) {
	var imports []scriptImport
	err := parseScript(ctx, file, func(root *sitter.Node, content []byte) error {
		for i := 0; i < int(root.NamedChildCount()); i++ {
			child := root.NamedChild(i)
			switch child.Type() {
			case "import_statement":
				if imp, ok := importStatement(child, content); ok {
					imports = append(imports, imp)
				}
			case "export_statement":
				if imp, ok := reexport(child, content); ok {
					imports = append(imports, imp)
				}
			}
		}
		return nil
	})
	return imports, err
}

func importStatement(node *sitter.Node, content []byte) (scriptImport, bool) {
	source := node.ChildByFieldName("source")
	if source == nil {
		return scriptImport{}, false
	}
	imp := scriptImport{source: stringContent(source, content)}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "import_clause" {
			continue
		}
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			part := clause.NamedChild(j)
			switch part.Type() {
			case "identifier":
				imp.names = append(imp.names, "default")
			case "namespace_import":
				imp.all = true
			case "named_imports":
				for k := 0; k < int(part.NamedChildCount()); k++ {
					specifier := part.NamedChild(k)
					if specifier.Type() != "import_specifier" {
						continue
					}
					if name := specifier.ChildByFieldName("name"); name != nil {
						imp.names = append(imp.names, stringContent(name, content))
					}
				}
			}
		}
	}
	return imp, true
}

// reexport reads "export ... from" statements.
func reexport(node *sitter.Node, content []byte) (scriptImport, bool) {
	source := node.ChildByFieldName("source")
	if source == nil {
		return scriptImport{}, false
	}
	imp := scriptImport{source: stringContent(source, content), all: true}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		clause := node.NamedChild(i)
		if clause.Type() != "export_clause" {
			continue
		}
		imp.all = false
		for j := 0; j < int(clause.NamedChildCount()); j++ {
			specifier := clause.NamedChild(j)
			if name := specifier.ChildByFieldName("name"); name != nil {
				imp.names = append(imp.names, stringContent(name, content))
			}
		}
	}
	return imp, true
}

// parseVariantFile returns the exported variant bindings of file mapped to
// their ids.
func parseVariantFile(ctx context.Context, file string) (map[string]string, error) {
	exports := make(map[string]string)
	err := parseScript(ctx, file, func(root *sitter.Node, content []byte) error {
		declared := make(map[string]string)
		var exported [][2]string
		for i := 0; i < int(root.NamedChildCount()); i++ {
			child := root.NamedChild(i)
			switch child.Type() {
			case "lexical_declaration":
				if err := collectDeclarations(child, content, file, declared); err != nil {
					return err
				}
			case "export_statement":
				if value := child.ChildByFieldName("value"); value != nil {
					if _, ok := variantCall(value, content); ok {
						return fmt.Errorf("%w: default export in %s", ErrDefaultExport, file)
					}
					continue
				}
				if decl := child.ChildByFieldName("declaration"); decl != nil && decl.Type() == "lexical_declaration" {
					names := make(map[string]string)
					if err := collectDeclarations(decl, content, file, names); err != nil {
						return err
					}
					for name, id := range names {
						declared[name] = id
						exported = append(exported, [2]string{name, name})
					}
					continue
				}
				for j := 0; j < int(child.NamedChildCount()); j++ {
					clause := child.NamedChild(j)
					if clause.Type() != "export_clause" {
						continue
					}
					for k := 0; k < int(clause.NamedChildCount()); k++ {
						specifier := clause.NamedChild(k)
						name := specifier.ChildByFieldName("name")
						if name == nil {
							continue
						}
						local := stringContent(name, content)
						public := local
						if alias := specifier.ChildByFieldName("alias"); alias != nil {
							public = stringContent(alias, content)
						}
						exported = append(exported, [2]string{local, public})
					}
				}
			}
		}
		for _, pair := range exported {
			id, ok := declared[pair[0]]
			if !ok {
				continue
			}
			if pair[1] == "default" {
				return fmt.Errorf("%w: default export of %s in %s", ErrDefaultExport, pair[0], file)
			}
			exports[pair[1]] = id
		}
		return nil
	})
	return exports, err
}

func collectDeclarations(decl *sitter.Node, content []byte, file string, into map[string]string) error {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		declarator := decl.NamedChild(i)
		if declarator.Type() != "variable_declarator" {
			continue
		}
		name := declarator.ChildByFieldName("name")
		value := declarator.ChildByFieldName("value")
		if name == nil || value == nil || name.Type() != "identifier" {
			continue
		}
		call, ok := variantCall(value, content)
		if !ok {
			continue
		}
		binding := stringContent(name, content)
		id := variantID(call, content)
		if err := variants.ValidateID(id); err != nil {
			return fmt.Errorf("%w: %s in %s: %w", ErrVariantID, binding, file, err)
		}
		into[binding] = id
	}
	return nil
}

// variantCall unwraps "as const" and satisfies wrappers and reports whether
// node calls a variant factory.
func variantCall(node *sitter.Node, content []byte) (*sitter.Node, bool) {
	for node != nil {
		switch node.Type() {
		case "as_expression", "satisfies_expression", "parenthesized_expression":
			node = node.NamedChild(0)
			continue
		case "call_expression":
			fn := node.ChildByFieldName("function")
			if fn == nil {
				return nil, false
			}
			name := stringContent(fn, content)
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
			return node, factoryPattern.MatchString(name)
		}
		return nil, false
	}
	return nil, false
}

// variantID reads the "id" property of the first object argument.
func variantID(call *sitter.Node, content []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return ""
	}
	obj := args.NamedChild(0)
	if obj.Type() != "object" {
		return ""
	}
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		value := pair.ChildByFieldName("value")
		if key == nil || value == nil || stringContent(key, content) != "id" {
			continue
		}
		if value.Type() != "string" {
			return ""
		}
		return stringContent(value, content)
	}
	return ""
}

// stringContent returns the text of node, without quotes for string nodes.
func stringContent(node *sitter.Node, content []byte) string {
	if node.Type() == "string" {
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			if child.Type() == "string_fragment" {
				return string(content[child.StartByte():child.EndByte()])
			}
		}
	}
	return trimQuotes(string(content[node.StartByte():node.EndByte()]))
}
