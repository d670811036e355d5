package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/bridgezip/pkg/bridgezip"
	"github.com/ravi-parthasarathy/bridgezip/pkg/catalog"
)

// catalogSource builds the node catalog source from the config, or from file
// when non-empty. The returned closer releases the cache backend.
func (a *app) catalogSource(file string) (catalog.Source, func(), error) {
	cc := a.cfg.Catalog
	if file == "" {
		file = cc.File
	}

	var upstream catalog.Source
	if file != "" {
		upstream = catalog.FileSource{Path: file}
	} else {
		if cc.URL == "" {
			return nil, nil, fmt.Errorf("no catalog configured: set catalog.url or catalog.file")
		}
		h := catalog.NewHTTPSource(cc.URL)
		if cc.Timeout > 0 {
			h.Timeout = cc.Timeout
		}
		upstream = h
	}

	var store catalog.Store = catalog.NewMemoryStore(nil)
	closer := func() {}
	if cc.RedisAddr != "" {
		rs := catalog.NewRedisStore(redis.NewClient(&redis.Options{Addr: cc.RedisAddr}), "bridgezip:")
		store = rs
		closer = func() {
			if err := rs.Close(); err != nil {
				slog.Warn("close redis", "error", err)
			}
		}
		slog.Debug("catalog cache", "backend", "redis", "addr", cc.RedisAddr)
	}
	return catalog.NewCachedSource(upstream, store, cc.TTL, cc.CacheKey), closer, nil
}

func catalogCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the graph server's node catalog",
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "read the catalog from a saved object_info JSON file")

	fetch := func(cmd *cobra.Command) (*catalog.Document, error) {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()
		return a.fetchDefs(ctx, file)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "categories",
		Short: "List root node categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := fetch(cmd)
			if err != nil {
				return err
			}
			for _, c := range doc.Categories() {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List model files offered by loader nodes, by kind and folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := fetch(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, g := range doc.Models() {
				fmt.Fprintf(out, "%s (%d)\n", g.Kind, g.Count())
				for _, f := range g.Folders {
					fmt.Fprintf(out, "  %s/\n", f.Folder)
					for _, m := range f.Models {
						fmt.Fprintf(out, "    %s\n", m)
					}
				}
			}
			return nil
		},
	})

	var asJSON bool
	node := &cobra.Command{
		Use:   "node <query>",
		Short: "Show node definitions matching names (comma, plus or space separated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := fetch(cmd)
			if err != nil {
				return err
			}
			defs := doc.Lookup(args[0])
			if len(defs) == 0 {
				return fmt.Errorf("no node definitions match %q: %w", args[0], bridgezip.ErrNoMatch)
			}
			out := cmd.OutOrStdout()
			for _, d := range defs {
				if asJSON {
					fmt.Fprintf(out, "%s\n", d.Raw())
					continue
				}
				fmt.Fprint(out, describeNode(d))
			}
			return nil
		},
	}
	node.Flags().BoolVar(&asJSON, "json", false, "print raw definitions")
	cmd.AddCommand(node)

	return cmd
}

// describeNode renders a definition with ports in compressed shorthand.
func describeNode(d catalog.NodeDef) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  [%s]\n", d.Name, d.Category())
	for _, p := range d.Inputs() {
		fmt.Fprintf(&sb, "  in   %-20s %s\n", p.Name, bridgezip.ShorthandOf(p.Type))
	}
	for _, p := range d.Outputs() {
		fmt.Fprintf(&sb, "  out  %-20s %s\n", p.Name, bridgezip.ShorthandOf(p.Type))
	}
	if widgets := d.WidgetDefaults(); len(widgets) > 0 {
		parts := make([]string, len(widgets))
		for i, v := range widgets {
			parts[i] = bridgezip.Escape(v)
		}
		fmt.Fprintf(&sb, "  widgets %s\n", strings.Join(parts, ";"))
	}
	return sb.String()
}

// fetchDefs loads the catalog once through the configured cache.
func (a *app) fetchDefs(ctx context.Context, file string) (*catalog.Document, error) {
	src, closer, err := a.catalogSource(file)
	if err != nil {
		return nil, err
	}
	defer closer()
	return src.Fetch(ctx)
}
