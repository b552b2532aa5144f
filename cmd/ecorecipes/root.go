package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/config"
	"github.com/appengine-ltd/ecorecipes/internal/loader"
	"github.com/appengine-ltd/ecorecipes/internal/logging"
	"github.com/appengine-ltd/ecorecipes/internal/lookup"
	"github.com/appengine-ltd/ecorecipes/internal/resolver"
)

// app carries state shared by every subcommand once flags are parsed.
type app struct {
	configPath     string
	catalog        string
	checksum       string
	allowShadowing bool
	verbose        bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ecorecipes",
		Short: "Catalog loader and recipe resolver for Eco items, crops and products",
		Long: `ecorecipes loads a catalog of items, crops and craftable products and
answers recipe questions over it: what base resources a product needs, which
products consume an ingredient, and what the full craft tree looks like.

The catalog location may be a file path, an http(s) URL, or "embedded:" for
the sample catalog compiled into the binary.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", config.DefaultPath, "path to the YAML config file")
	flags.StringVar(&a.catalog, "catalog", "", "catalog location (file, URL or embedded:)")
	flags.StringVar(&a.checksum, "checksum", "", "expected SHA-256 of the catalog document")
	flags.BoolVar(&a.allowShadowing, "allow-shadowing", false, "accept product names that also appear in items")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newValidateCmd(a),
		newCostCmd(a),
		newTreeCmd(a),
		newUsesCmd(a),
		newListCmd(a),
		newServeCmd(a),
		newConvertCmd(a),
		newExportCmd(a),
		newDocsCmd(a),
		newInitConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup resolves configuration in order: file, environment, flags.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("catalog") {
		cfg.Catalog.Location = a.catalog
	}
	if flags.Changed("checksum") {
		cfg.Catalog.Checksum = a.checksum
	}
	if flags.Changed("allow-shadowing") {
		cfg.Catalog.AllowShadowing = a.allowShadowing
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging, a.verbose)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) loadCatalog(ctx context.Context) (*catalog.Catalog, *loader.Document, error) {
	l := loader.New(
		loader.WithHTTPClient(&http.Client{Timeout: a.cfg.GetFetchTimeout()}),
		loader.WithMaxBytes(a.cfg.Catalog.MaxBytes),
		loader.WithChecksum(a.cfg.Catalog.Checksum),
	)
	var opts []catalog.Option
	if a.cfg.Catalog.AllowShadowing {
		opts = append(opts, catalog.AllowProductShadowing())
	}

	a.logger.Debug("loading catalog", zap.String("location", a.cfg.Catalog.Location))
	cat, doc, err := l.LoadCatalog(ctx, a.cfg.Catalog.Location, opts...)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Debug("catalog loaded",
		zap.String("source", doc.Source),
		zap.String("sha256", doc.SHA256),
		zap.String("revision", cat.Revision().String()),
		zap.Int("products", cat.Len()),
	)
	return cat, doc, nil
}

func (a *app) loadResolver(ctx context.Context) (*resolver.Resolver, error) {
	cat, _, err := a.loadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	return resolver.New(cat), nil
}

// productName maps an approximate product name onto a catalog name. Names
// that do not resolve unambiguously are returned unchanged so the resolver
// reports them with suggestions.
func (a *app) productName(res *resolver.Resolver, raw string) string {
	cat := res.Catalog()
	if cat.Kind(raw) == catalog.EntryProduct {
		return raw
	}
	m := lookup.New(cat.ProductNames()).Find(raw)
	if !m.Found() {
		return raw
	}
	a.logger.Debug("resolved product name", zap.String("query", raw), zap.String("product", m.Best), zap.Float64("score", m.Score))
	return m.Best
}
