package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
)

const (
	CropsFile       = "crops.csv"
	ProductsFile    = "products.csv"
	IngredientsFile = "product_ingredients.csv"
)

// WriteCSV writes the crop, product and recipe tables into dir and returns
// the paths written. Rows are ordered case-insensitively by their first
// column; recipe lines keep their order within a product.
func WriteCSV(dir string, cat *catalog.Catalog) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	crops := cat.Crops()
	slices.SortStableFunc(crops, foldCompare)
	cropRows := [][]string{{"crop_name"}}
	for _, c := range crops {
		cropRows = append(cropRows, []string{c})
	}

	products := cat.Products()
	slices.SortStableFunc(products, func(a, b catalog.Product) int { return foldCompare(a.Name, b.Name) })
	productRows := [][]string{{"product_name", "table", "amount"}}
	ingredientRows := [][]string{{"product_name", "ingredient_id", "ingredient_amount"}}
	for _, p := range products {
		productRows = append(productRows, []string{p.Name, p.Table, formatAmount(p.Amount)})
		for _, ing := range p.Recipe {
			ingredientRows = append(ingredientRows, []string{p.Name, ing.ID, formatAmount(ing.Amount)})
		}
	}

	tables := []struct {
		name string
		rows [][]string
	}{
		{CropsFile, cropRows},
		{ProductsFile, productRows},
		{IngredientsFile, ingredientRows},
	}
	written := make([]string, 0, len(tables))
	for _, tbl := range tables {
		path := filepath.Join(dir, tbl.name)
		if err := writeTable(path, tbl.rows); err != nil {
			return written, fmt.Errorf("write %s: %w", tbl.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeTable(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func foldCompare(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
