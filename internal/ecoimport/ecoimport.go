package ecoimport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
)

var (
	cookSkills = map[string]bool{
		"Campfire Cooking": true,
		"Baking":           true,
		"Advanced Baking":  true,
		"Cooking":          true,
		"Advanced Cooking": true,
		"Butchery":         true,
		"Milling":          true,
	}
	cropSkills = map[string]bool{
		"Gathering": true,
		"Farming":   true,
	}
	excludedTables  = []string{"laboratory", "placeholdertable"}
	excludedPhrases = []string{"research paper", "skill", "book"}
)

const (
	oilTag        = "oil"
	butcherSubstr = "butcher"
)

// Export is the subset of Recipes.json the converter reads. The misspelt
// "Ammount" field is the export's own spelling.
type Export struct {
	Recipes []Recipe `json:"Recipes"`
}

type Recipe struct {
	CraftingTable string      `json:"CraftingTable"`
	SkillNeeds    []SkillNeed `json:"SkillNeeds"`
	Variants      []Variant   `json:"Variants"`
}

type SkillNeed struct {
	Skill string `json:"Skill"`
	Level int    `json:"Level"`
}

type Variant struct {
	Name        string   `json:"Name"`
	Ingredients []Input  `json:"Ingredients"`
	Products    []Output `json:"Products"`
}

type Input struct {
	Name    string  `json:"Name"`
	Tag     string  `json:"Tag"`
	Ammount float64 `json:"Ammount"`
}

type Output struct {
	Name    string   `json:"Name"`
	Ammount *float64 `json:"Ammount"`
}

// Decode reads an export from r.
func Decode(r io.Reader) (*Export, error) {
	var e Export
	if err := json.NewDecoder(r).Decode(&e); err != nil {
		return nil, fmt.Errorf("decode recipes export: %w", err)
	}
	return &e, nil
}

type Options struct {
	// EndProductsOnly keeps only products that no other product consumes.
	// Oils are always kept and butcher outputs always dropped.
	EndProductsOnly bool
}

// Document is a catalog document in revision 2 form.
type Document struct {
	Items    []string  `json:"items"`
	Crops    []string  `json:"crops"`
	Products []Product `json:"products"`
}

type Product struct {
	Name          string  `json:"name"`
	Table         string  `json:"table"`
	ProductAmount float64 `json:"product_amount"`
	Recipe        []Line  `json:"recipe"`
}

type Line struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

// Report summarises what Convert kept and dropped.
type Report struct {
	Recipes    int
	Excluded   int
	Ignored    int
	Duplicates []string
	Skipped    []string
}

func (r Report) String() string {
	return fmt.Sprintf("%d recipes read, %d excluded, %d ignored, %d duplicates, %d lines skipped",
		r.Recipes, r.Excluded, r.Ignored, len(r.Duplicates), len(r.Skipped))
}

// Convert classifies every recipe of the export as a product, a crop or
// neither, and assembles a document whose ids all resolve.
func Convert(e *Export, opts Options) (*Document, Report) {
	var (
		rep      Report
		products = []Product{}
		seen     = make(map[string]bool)
		crops    = make(map[string]bool)
	)

	for _, rec := range e.Recipes {
		rep.Recipes++
		if len(rec.Variants) == 0 {
			rep.Ignored++
			continue
		}
		v := rec.Variants[0]
		name := strings.TrimSpace(v.Name)
		table := strings.TrimSpace(rec.CraftingTable)
		if name == "" {
			rep.Ignored++
			continue
		}
		if excluded(table, name) {
			rep.Excluded++
			continue
		}

		switch {
		case isProduct(rec, v):
			if seen[name] {
				rep.Duplicates = append(rep.Duplicates, name)
				continue
			}
			p, ok := convertProduct(name, table, v, &rep)
			if !ok {
				continue
			}
			seen[name] = true
			products = append(products, p)
		case hasSkill(rec, cropSkills):
			crops[name] = true
		default:
			rep.Ignored++
		}
	}

	if opts.EndProductsOnly {
		products = endProducts(products)
	}
	return assemble(products, crops), rep
}

func convertProduct(name, table string, v Variant, rep *Report) (Product, bool) {
	yield := 1.0
	if len(v.Products) > 0 && v.Products[0].Ammount != nil {
		yield = *v.Products[0].Ammount
	}
	if catalog.CheckAmount("yield", yield) != nil {
		rep.Skipped = append(rep.Skipped, fmt.Sprintf("%s: yield %v", name, yield))
		return Product{}, false
	}

	p := Product{Name: name, Table: table, ProductAmount: yield, Recipe: []Line{}}
	for i, in := range v.Ingredients {
		id := strings.TrimSpace(in.Name)
		if id == "" {
			id = strings.TrimSpace(in.Tag)
		}
		if id == "" {
			rep.Skipped = append(rep.Skipped, fmt.Sprintf("%s: ingredient %d has no name or tag", name, i))
			continue
		}
		if catalog.CheckAmount("amount", in.Ammount) != nil {
			rep.Skipped = append(rep.Skipped, fmt.Sprintf("%s: %s amount %v", name, id, in.Ammount))
			continue
		}
		p.Recipe = append(p.Recipe, Line{ID: id, Amount: in.Ammount})
	}
	return p, true
}

func excluded(table, name string) bool {
	t := strings.ToLower(table)
	n := strings.ToLower(name)
	for _, ex := range excludedTables {
		if strings.Contains(t, ex) {
			return true
		}
	}
	for _, ph := range excludedPhrases {
		if strings.Contains(t, ph) || strings.Contains(n, ph) {
			return true
		}
	}
	return false
}

func isProduct(rec Recipe, v Variant) bool {
	if hasSkill(rec, cookSkills) {
		return true
	}
	for _, in := range v.Ingredients {
		if strings.EqualFold(strings.TrimSpace(in.Tag), oilTag) {
			return true
		}
	}
	return false
}

func hasSkill(rec Recipe, skills map[string]bool) bool {
	for _, sn := range rec.SkillNeeds {
		if skills[sn.Skill] {
			return true
		}
	}
	return false
}

func endProducts(products []Product) []Product {
	used := make(map[string]bool)
	for _, p := range products {
		for _, l := range p.Recipe {
			used[l.ID] = true
		}
	}
	out := make([]Product, 0, len(products))
	for _, p := range products {
		n := strings.ToLower(p.Name)
		if strings.Contains(n, butcherSubstr) {
			continue
		}
		if strings.Contains(n, oilTag) || !used[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

// assemble derives items from the ingredients that are neither products nor
// crops, so every recipe line resolves.
func assemble(products []Product, crops map[string]bool) *Document {
	isProduct := make(map[string]bool, len(products))
	for _, p := range products {
		isProduct[p.Name] = true
	}

	doc := &Document{Items: []string{}, Crops: []string{}, Products: products}
	for c := range crops {
		if !isProduct[c] {
			doc.Crops = append(doc.Crops, c)
		}
	}
	items := make(map[string]bool)
	for _, p := range products {
		for _, l := range p.Recipe {
			if !isProduct[l.ID] && !crops[l.ID] {
				items[l.ID] = true
			}
		}
	}
	for id := range items {
		doc.Items = append(doc.Items, id)
	}

	slices.Sort(doc.Items)
	slices.Sort(doc.Crops)
	slices.SortStableFunc(doc.Products, func(a, b Product) int { return strings.Compare(a.Name, b.Name) })
	return doc
}

// Encode writes the document as indented JSON.
func (d *Document) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

// Catalog validates the document by parsing its JSON form.
func (d *Document) Catalog() (*catalog.Catalog, error) {
	var buf bytes.Buffer
	if err := d.Encode(&buf); err != nil {
		return nil, err
	}
	return catalog.ParseJSON(buf.Bytes())
}
