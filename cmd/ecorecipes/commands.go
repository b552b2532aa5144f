package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/ecoimport"
	"github.com/appengine-ltd/ecorecipes/internal/export"
	"github.com/appengine-ltd/ecorecipes/internal/lookup"
	"github.com/appengine-ltd/ecorecipes/internal/refdocs"
	"github.com/appengine-ltd/ecorecipes/internal/resolver"
	"github.com/appengine-ltd/ecorecipes/internal/server"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the catalog and check every recipe for cycles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, doc, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := resolver.New(cat).Check(); err != nil {
				return fmt.Errorf("%s: %w", doc.Source, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (revision %s, %d items, %d crops, %d products, sha256 %s)\n",
				doc.Source, cat.Revision(), len(cat.Items()), len(cat.Crops()), cat.Len(), doc.SHA256)
			return nil
		},
	}
}

func newCostCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "cost <product> [quantity]",
		Short: "Print the base items and crops needed for a product",
		Example: `  ecorecipes cost Bread
  ecorecipes cost "Bean Stew" 4
  ecorecipes cost "4 bread"`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.loadResolver(cmd.Context())
			if err != nil {
				return err
			}
			name, qty, err := a.query(res, args)
			if err != nil {
				return err
			}
			cost, err := res.BaseCost(name, qty)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{"product": name, "quantity": qty, "cost": cost.Sorted()})
			}
			fmt.Fprintf(out, "%s x%s\n", name, formatAmount(qty))
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, e := range cost.Sorted() {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.ID, formatAmount(e.Amount), res.Catalog().Kind(e.ID))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newTreeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tree <product> [quantity]",
		Short: "Print the full craft tree for a product",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.loadResolver(cmd.Context())
			if err != nil {
				return err
			}
			name, qty, err := a.query(res, args)
			if err != nil {
				return err
			}
			tree, err := res.Tree(name, qty)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tree)
			}
			printTree(cmd.OutOrStdout(), tree)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of an indented tree")
	return cmd
}

func printTree(w io.Writer, n *resolver.Node) {
	n.Walk(func(x *resolver.Node) {
		indent := strings.Repeat("  ", x.Depth)
		if x.Kind != catalog.EntryProduct.String() {
			fmt.Fprintf(w, "%s%s %s (%s)\n", indent, x.ID, formatAmount(x.Needed), x.Kind)
			return
		}
		line := fmt.Sprintf("%s%s %s [%s] %s x %s", indent, x.ID, formatAmount(x.Needed), x.Table, formatAmount(x.Crafts), formatAmount(x.Yield))
		if x.Surplus > 0 {
			line += fmt.Sprintf(", %s spare", formatAmount(x.Surplus))
		}
		fmt.Fprintln(w, line)
	})
}

func newUsesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uses <id>",
		Short: "List the products whose recipe lists an item, crop or product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.loadResolver(cmd.Context())
			if err != nil {
				return err
			}
			id := args[0]
			cat := res.Catalog()
			if cat.Kind(id) == catalog.EntryUnknown {
				if m := lookup.New(cat.IDs()).Find(id); m.Found() {
					id = m.Best
				}
			}
			out := cmd.OutOrStdout()
			users := res.ProductsUsing(id)
			if len(users) == 0 {
				fmt.Fprintf(out, "%s (%s) is not used by any product\n", id, cat.Kind(id))
				return nil
			}
			fmt.Fprintf(out, "%s (%s) is used by:\n", id, cat.Kind(id))
			for _, p := range users {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "list items|crops|products",
		Short:     "List catalog entries of one kind",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"items", "crops", "products"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch args[0] {
			case "items":
				for _, id := range cat.Items() {
					fmt.Fprintln(out, id)
				}
			case "crops":
				for _, id := range cat.Crops() {
					fmt.Fprintln(out, id)
				}
			case "products":
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, p := range cat.Products() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d ingredients\n", p.Name, p.Table, formatAmount(p.Amount), len(p.Recipe))
				}
				return tw.Flush()
			}
			return nil
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog and recipe queries over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := a.loadResolver(ctx)
			if err != nil {
				return err
			}
			if err := res.Check(); err != nil {
				a.logger.Warn("catalog has unresolvable products", zap.Error(err))
			}
			srv, err := server.New(server.ConfigFrom(a.cfg), res, a.logger)
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func newConvertCmd(a *app) *cobra.Command {
	var endOnly bool
	cmd := &cobra.Command{
		Use:   "convert <Recipes.json> <out.json>",
		Short: "Convert an Eco recipe export into a catalog document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer in.Close()
			exp, err := ecoimport.Decode(in)
			if err != nil {
				return err
			}

			doc, rep := ecoimport.Convert(exp, ecoimport.Options{EndProductsOnly: endOnly})
			for _, s := range rep.Skipped {
				a.logger.Debug("skipped", zap.String("detail", s))
			}
			for _, d := range rep.Duplicates {
				a.logger.Debug("duplicate recipe", zap.String("product", d))
			}
			cat, err := doc.Catalog()
			if err != nil {
				return fmt.Errorf("converted document is invalid: %w", err)
			}
			if err := resolver.New(cat).Check(); err != nil {
				a.logger.Warn("converted catalog has unresolvable products", zap.Error(err))
			}

			if err := writeFileWith(args[1], doc.Encode); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d items, %d crops, %d products (%s)\n",
				args[1], len(doc.Items), len(doc.Crops), len(doc.Products), rep)
			return nil
		},
	}
	cmd.Flags().BoolVar(&endOnly, "end-products-only", false, "keep only products no other product consumes")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dir>",
		Short: "Write the catalog as CSV tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, _, err := a.loadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			paths, err := export.WriteCSV(args[0], cat)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			}
			return nil
		},
	}
}

func newDocsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "docs <dir>",
		Short: "Generate Markdown reference pages for the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.loadResolver(cmd.Context())
			if err != nil {
				return err
			}
			paths, err := refdocs.Write(args[0], refdocs.Generate(res))
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
			}
			return nil
		},
	}
}

func newInitConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write the effective configuration to a YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := a.cfg.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config and logger setup.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ecorecipes %s (%s) %s\n", version, commit, date)
		},
	}
}

// query splits positional arguments into a product name and quantity.
// A single argument may carry its own quantity ("4 bread", "bread x4").
func (a *app) query(res *resolver.Resolver, args []string) (string, float64, error) {
	if len(args) == 2 {
		qty, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
		if err != nil {
			return "", 0, &catalog.InvalidAmountError{Context: "quantity", Raw: args[1]}
		}
		return a.productName(res, args[0]), qty, nil
	}
	raw := args[0]
	if res.Catalog().Kind(raw) != catalog.EntryProduct {
		if name, qty, ok := lookup.SplitQuantity(raw); ok {
			return a.productName(res, name), qty, nil
		}
	}
	return a.productName(res, raw), 1, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeFileWith writes through a temp file in the target directory and
// renames it into place.
func writeFileWith(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ecorecipes-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := write(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
