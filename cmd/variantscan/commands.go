package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	variants "github.com/goliatone/go-variants"
	"github.com/goliatone/go-variants/internal/hydrate"
	"github.com/goliatone/go-variants/internal/scan"
	"github.com/goliatone/go-variants/pkg/config"
	"github.com/goliatone/go-variants/routing"
)

var (
	verbose      bool
	configPaths  []string
	manifestPath string

	appDir       string
	variantFiles []string
	aliases      map[string]string
	partials     []string
	ignore       []string
)

var rootCmd = &cobra.Command{
	Use:   "variantscan",
	Short: "Build and inspect variant route manifests",
	Long: `variantscan walks a pages directory, finds which variants every route
component references and writes the manifest read by the variants gateway.`,
	SilenceUsage: true,
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Scan the pages directory and write the manifest",
	RunE:  runBuild,
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route tree of a manifest with its variants",
	RunE:  runRoutes,
}

var paramsCmd = &cobra.Command{
	Use:   "params <pattern>",
	Short: "List the variant tokens to pre-render for a route pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runParams,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log scan details")
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "Variants config files, later files overriding earlier ones")
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "manifest", "m", "", "Manifest path, defaults to the config manifest")

	buildCmd.Flags().StringVar(&appDir, "app", "app", "Pages directory mirroring the URL space")
	buildCmd.Flags().StringSliceVar(&variantFiles, "variants", nil, "JS/TS modules exporting variants")
	buildCmd.Flags().StringToStringVar(&aliases, "alias", nil, "Import alias to directory, e.g. @/=.")
	buildCmd.Flags().StringSliceVar(&partials, "partials", nil, "Template include globs as dir:pattern")
	buildCmd.Flags().StringSliceVar(&ignore, "ignore", scan.DefaultIgnore, "Glob patterns excluded from the scan")

	rootCmd.AddCommand(buildCmd, routesCmd, paramsCmd)
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	switch len(configPaths) {
	case 0:
		return nil, nil
	case 1:
		return config.Load(configPaths[0])
	}
	return config.LoadLayers(configPaths...)
}

func resolveManifest(cfg *config.Config) (string, error) {
	switch {
	case manifestPath != "":
		return manifestPath, nil
	case cfg != nil && cfg.ManifestPath() != "":
		return cfg.ManifestPath(), nil
	}
	return "", fmt.Errorf("no manifest: pass --manifest or set manifest in the config")
}

func runBuild(cmd *cobra.Command, _ []string) error {
	log := logger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out, err := resolveManifest(cfg)
	if err != nil {
		return err
	}

	opts := []scan.Option{
		scan.WithLogger(log),
		scan.WithVariantFiles(variantFiles...),
		scan.WithIgnore(ignore...),
	}
	for prefix, dir := range aliases {
		opts = append(opts, scan.WithAlias(prefix, dir))
	}
	for _, partial := range partials {
		dir, pattern, ok := strings.Cut(partial, ":")
		if !ok {
			return fmt.Errorf("partials %q: expected dir:pattern", partial)
		}
		opts = append(opts, scan.WithPartials(dir, pattern))
	}
	scanner, err := scan.New(appDir, opts...)
	if err != nil {
		return err
	}
	result, err := scanner.Scan(cmd.Context())
	if err != nil {
		return err
	}

	if cfg != nil {
		registry, err := cfg.Registry()
		if err != nil {
			return err
		}
		var missing []string
		for _, id := range result.IDs() {
			if _, ok := registry.Lookup(id); !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("variants referenced but not configured: %s", strings.Join(missing, ", "))
		}
	}

	if err := routing.SaveManifest(out, result.Manifest()); err != nil {
		return err
	}
	log.Info("manifest written", "path", out, "components", len(result.Refs), "variants", len(result.IDs()))
	return nil
}

func runRoutes(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path, err := resolveManifest(cfg)
	if err != nil {
		return err
	}
	format, err := hydrate.FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := routing.ParseManifest(data, format)
	if err != nil {
		return err
	}
	tree := treeprint.NewWithRoot(filepath.ToSlash(path))
	printNode(tree, m.Root)
	fmt.Fprint(cmd.OutOrStdout(), tree.String())
	return nil
}

func printNode(tree treeprint.Tree, n routing.ManifestNode) {
	for _, slot := range routing.Slots {
		file, ok := n.Components[slot]
		if !ok {
			continue
		}
		ids := n.Variants[slot]
		label := file
		if len(ids) > 0 {
			label = fmt.Sprintf("%s [%s]", file, strings.Join(ids, ", "))
		}
		tree.AddMetaNode(string(slot), label)
	}
	for _, child := range n.Children {
		printNode(tree.AddBranch(segmentLabel(child.Segment)), child)
	}
}

func segmentLabel(segment string) string {
	switch segment {
	case routing.PageSegment, routing.DefaultSegment:
		return strings.ToLower(strings.Trim(segment, "_"))
	case "":
		return "/"
	}
	return "/" + segment
}

func runParams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("params needs --config to know the allowed values")
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	var root *routing.Node
	if manifestPath != "" {
		root, err = routing.ReadManifest(manifestPath, registry.Lookup)
	} else {
		root, err = cfg.RouteTree(registry)
	}
	if err != nil {
		return err
	}
	tokens, err := routing.StaticParams(root, args[0])
	if err != nil {
		return err
	}
	slices.Sort(tokens)
	for _, token := range tokens {
		assigned, err := variants.ParseToken(token)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%v\n", token, assigned)
	}
	return nil
}
