package refdocs

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/resolver"
)

const IndexName = "README.md"

const noTable = "(no table)"

type File struct {
	Name    string
	Title   string
	Content string
}

// Generate renders one page per entry kind. Crops are only documented when
// the catalog carries a crops list.
func Generate(res *resolver.Resolver) []File {
	cat := res.Catalog()
	files := []File{generateItemsDoc(cat, res)}
	if cat.HasCropsKey() {
		files = append(files, generateCropsDoc(cat, res))
	}
	return append(files, generateProductsDoc(cat, res))
}

// Write stores the pages and an index in dir and returns the paths written,
// index last.
func Write(dir string, files []File) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	written := make([]string, 0, len(files)+1)
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	indexPath := filepath.Join(dir, IndexName)
	if err := os.WriteFile(indexPath, []byte(generateIndex(files)), 0o644); err != nil {
		return written, err
	}
	return append(written, indexPath), nil
}

func generateIndex(files []File) string {
	var b strings.Builder
	b.WriteString("# Recipe Catalog\n\n")
	b.WriteString("Generated with `ecorecipes docs`.\n\n")
	for _, f := range files {
		b.WriteString(fmt.Sprintf("- [%s](./%s)\n", f.Title, f.Name))
	}
	return b.String()
}

func generateItemsDoc(cat *catalog.Catalog, res *resolver.Resolver) File {
	return baseDoc("items.md", "Items", sortedFold(cat.Items()), res)
}

func generateCropsDoc(cat *catalog.Catalog, res *resolver.Resolver) File {
	return baseDoc("crops.md", "Crops", sortedFold(cat.Crops()), res)
}

func baseDoc(name, title string, ids []string, res *resolver.Resolver) File {
	var b strings.Builder
	b.WriteString("# " + title + "\n\n")
	b.WriteString(fmt.Sprintf("Total %s: **%d**.\n\n", strings.ToLower(title), len(ids)))
	b.WriteString("| ID | Used By |\n")
	b.WriteString("| --- | --- |\n")
	for _, id := range ids {
		b.WriteString("| ")
		b.WriteString(escape(id))
		b.WriteString(" | ")
		b.WriteString(escape(strings.Join(res.ProductsUsing(id), ", ")))
		b.WriteString(" |\n")
	}
	return File{Name: name, Title: title, Content: b.String()}
}

func generateProductsDoc(cat *catalog.Catalog, res *resolver.Resolver) File {
	byTable := make(map[string][]catalog.Product)
	for _, p := range cat.Products() {
		table := strings.TrimSpace(p.Table)
		if table == "" {
			table = noTable
		}
		byTable[table] = append(byTable[table], p)
	}
	tables := make([]string, 0, len(byTable))
	for t := range byTable {
		tables = append(tables, t)
	}
	tables = sortedFold(tables)

	var b strings.Builder
	b.WriteString("# Products\n\n")
	b.WriteString(fmt.Sprintf("Total products: **%d** across **%d** tables.\n", cat.Len(), len(tables)))
	for _, t := range tables {
		b.WriteString("\n## " + escape(t) + "\n")
		products := byTable[t]
		slices.SortStableFunc(products, func(x, y catalog.Product) int { return foldCompare(x.Name, y.Name) })
		for _, p := range products {
			writeProduct(&b, cat, res, p)
		}
	}
	return File{Name: "products.md", Title: "Products", Content: b.String()}
}

func writeProduct(b *strings.Builder, cat *catalog.Catalog, res *resolver.Resolver, p catalog.Product) {
	b.WriteString("\n### " + escape(p.Name) + "\n\n")
	b.WriteString(fmt.Sprintf("Yield per craft: %s.\n\n", formatFloat(p.Amount)))
	b.WriteString("| Ingredient | Kind | Amount |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, ing := range p.Recipe {
		b.WriteString("| ")
		b.WriteString(escape(ing.ID))
		b.WriteString(" | ")
		b.WriteString(cat.Kind(ing.ID).String())
		b.WriteString(" | ")
		b.WriteString(formatFloat(ing.Amount))
		b.WriteString(" |\n")
	}

	cost, err := res.BaseCost(p.Name, p.Amount)
	if err != nil {
		b.WriteString(fmt.Sprintf("\nBase cost unavailable: %s.\n", escape(err.Error())))
		return
	}
	b.WriteString("\nBase cost for one craft: ")
	parts := make([]string, 0, len(cost))
	for _, a := range cost.Sorted() {
		parts = append(parts, fmt.Sprintf("%s %s", formatFloat(a.Amount), escape(a.ID)))
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing")
	}
	b.WriteString(strings.Join(parts, ", ") + ".\n")
}

func sortedFold(in []string) []string {
	slices.SortStableFunc(in, foldCompare)
	return in
}

func foldCompare(a, b string) int {
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func escape(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "|", "\\|")
	v = strings.ReplaceAll(v, "\n", "<br>")
	return v
}
