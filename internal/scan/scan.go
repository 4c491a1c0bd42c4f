// Package scan finds which variants each route component references and
// writes the route manifest consumed by the gateway. Go templates are read
// with text/template/parse; JS and TS sources with tree-sitter.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/goliatone/go-variants/routing"
)

// ComponentPattern matches route component files below the pages root.
const ComponentPattern = "**/{layout,template,error,not-found,page,default}.{js,jsx,ts,tsx,html,tmpl,gohtml}"

// DefaultIgnore excludes dependency trees from scanning.
var DefaultIgnore = []string{"**/node_modules/**", "**/.variants/**"}

var ErrNoComponents = errors.New("scan: no route components found")

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger for unresolved references.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVariantFiles declares the JS/TS modules exporting variants.
func WithVariantFiles(paths ...string) Option {
	return func(s *Scanner) {
		for _, p := range paths {
			if abs, err := filepath.Abs(p); err == nil {
				s.variantFiles = append(s.variantFiles, abs)
			}
		}
	}
}

// WithAlias maps an import prefix such as "@/" to dir.
func WithAlias(prefix, dir string) Option {
	return func(s *Scanner) {
		if abs, err := filepath.Abs(dir); err == nil && prefix != "" {
			s.aliases[prefix] = abs
		}
	}
}

// WithPartials adds the Go templates matching pattern below root as include
// targets for component templates.
func WithPartials(root, pattern string) Option {
	return func(s *Scanner) {
		s.partials = append(s.partials, partialGlob{root: root, pattern: pattern})
	}
}

// WithIgnore replaces DefaultIgnore.
func WithIgnore(patterns ...string) Option {
	return func(s *Scanner) {
		s.ignore = slices.Clone(patterns)
	}
}

type partialGlob struct {
	root    string
	pattern string
}

// Scanner walks a pages root.
type Scanner struct {
	appDir       string
	logger       *slog.Logger
	variantFiles []string
	aliases      map[string]string
	partials     []partialGlob
	ignore       []string
}

// New constructs a Scanner over appDir, the directory whose layout mirrors
// the URL space.
func New(appDir string, opts ...Option) (*Scanner, error) {
	abs, err := filepath.Abs(appDir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	s := &Scanner{
		appDir:  abs,
		logger:  slog.New(slog.DiscardHandler),
		aliases: make(map[string]string),
		ignore:  slices.Clone(DefaultIgnore),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Result is the outcome of a scan.
type Result struct {
	AppDir string
	Root   *routing.Node
	// Refs lists the variant ids referenced by each component file.
	Refs map[string][]string
}

// Manifest serialises the route tree with component paths relative to
// AppDir.
func (r *Result) Manifest() routing.Manifest {
	m := routing.NewManifest(r.Root, func(component string) []string {
		return r.Refs[component]
	})
	relativize(&m.Root, r.AppDir)
	return m
}

// IDs returns every referenced variant id, sorted.
func (r *Result) IDs() []string {
	seen := make(map[string]struct{})
	for _, ids := range r.Refs {
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func relativize(n *routing.ManifestNode, base string) {
	for slot, file := range n.Components {
		if rel, err := filepath.Rel(base, file); err == nil {
			n.Components[slot] = filepath.ToSlash(rel)
		}
	}
	for i := range n.Children {
		relativize(&n.Children[i], base)
	}
}

// Scan builds the route tree and resolves the references of every
// component.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	components, err := s.glob(s.appDir, ComponentPattern)
	if err != nil {
		return nil, err
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoComponents, s.appDir)
	}
	root, err := routing.FromPaths(s.appDir, components)
	if err != nil {
		return nil, err
	}

	templates, err := s.templateIndex(components)
	if err != nil {
		return nil, err
	}
	scripts, err := s.scriptIndex(ctx)
	if err != nil {
		return nil, err
	}

	refs := make(map[string][]string, len(components))
	for _, file := range components {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ids []string
		switch {
		case isTemplate(file):
			ids = templates.refs(file)
		case isScript(file):
			ids, err = scripts.refs(ctx, file)
			if err != nil {
				return nil, err
			}
		}
		refs[file] = ids
		s.logger.Debug("scan: component references", "file", file, "variants", ids)
	}
	return &Result{AppDir: s.appDir, Root: root, Refs: refs}, nil
}

// glob returns absolute paths of files under root matching pattern.
func (s *Scanner) glob(root, pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan: glob %s in %s: %w", pattern, root, err)
	}
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		if s.ignored(match) {
			continue
		}
		out = append(out, filepath.Join(root, filepath.FromSlash(match)))
	}
	slices.Sort(out)
	return out, nil
}

func (s *Scanner) ignored(rel string) bool {
	for _, pattern := range s.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func isTemplate(file string) bool {
	switch filepath.Ext(file) {
	case ".html", ".tmpl", ".gohtml":
		return true
	}
	return false
}

func isScript(file string) bool {
	switch filepath.Ext(file) {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs":
		return true
	}
	return false
}

func readFile(file string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("scan: %s does not exist", file)
		}
		return nil, fmt.Errorf("scan: read %s: %w", file, err)
	}
	return data, nil
}

func trimQuotes(raw string) string {
	return strings.Trim(raw, "\"'`")
}
