package catalog

import "slices"

// QuantityKey records which field name carried a product's per-craft yield.
// Revision 1 documents use "amount", revision 2 documents use "product_amount".
type QuantityKey string

const (
	KeyAmount        QuantityKey = "amount"
	KeyProductAmount QuantityKey = "product_amount"
)

// Revision is the schema revision a document was written against.
type Revision int

const (
	RevisionV1 Revision = 1
	RevisionV2 Revision = 2
)

func (r Revision) String() string {
	switch r {
	case RevisionV1:
		return "v1"
	case RevisionV2:
		return "v2"
	default:
		return "unknown"
	}
}

// EntryKind classifies an id within a catalog.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	EntryItem
	EntryCrop
	EntryProduct
)

func (k EntryKind) String() string {
	switch k {
	case EntryItem:
		return "item"
	case EntryCrop:
		return "crop"
	case EntryProduct:
		return "product"
	default:
		return "unknown"
	}
}

// IsBase reports whether the kind is a non-craftable resource.
func (k EntryKind) IsBase() bool {
	return k == EntryItem || k == EntryCrop
}

// Ingredient is one line of a recipe.
type Ingredient struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

// Product is a craftable entry. Amount is the quantity yielded by one craft,
// whichever key the source document used for it.
type Product struct {
	Name        string
	Table       string
	Amount      float64
	QuantityKey QuantityKey
	Recipe      []Ingredient
}

func (p Product) clone() Product {
	p.Recipe = slices.Clone(p.Recipe)
	return p
}

// Catalog is a validated, immutable snapshot of items, crops and products.
// All accessors return copies; a Catalog is safe for concurrent readers.
type Catalog struct {
	items    []string
	crops    []string
	products []Product

	hasCrops bool
	revision Revision

	itemSet    map[string]struct{}
	cropSet    map[string]struct{}
	productIdx map[string]int
}

// Items returns item ids in document order.
func (c *Catalog) Items() []string { return slices.Clone(c.items) }

// Crops returns crop ids in document order. Revision 1 documents have none.
func (c *Catalog) Crops() []string { return slices.Clone(c.crops) }

// Products returns all products in document order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	for i, p := range c.products {
		out[i] = p.clone()
	}
	return out
}

// ProductNames returns product names in document order.
func (c *Catalog) ProductNames() []string {
	out := make([]string, len(c.products))
	for i, p := range c.products {
		out[i] = p.Name
	}
	return out
}

// Product looks up a product by name.
func (c *Catalog) Product(name string) (Product, bool) {
	i, ok := c.productIdx[name]
	if !ok {
		return Product{}, false
	}
	return c.products[i].clone(), true
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

// Revision returns the schema revision observed when parsing.
func (c *Catalog) Revision() Revision { return c.revision }

// HasCropsKey reports whether the source document carried a "crops" key.
func (c *Catalog) HasCropsKey() bool { return c.hasCrops }

func (c *Catalog) HasItem(id string) bool {
	_, ok := c.itemSet[id]
	return ok
}

func (c *Catalog) HasCrop(id string) bool {
	_, ok := c.cropSet[id]
	return ok
}

// Kind classifies id. A product name shadowing an item id (allowed with
// AllowProductShadowing) classifies as a product.
func (c *Catalog) Kind(id string) EntryKind {
	if _, ok := c.productIdx[id]; ok {
		return EntryProduct
	}
	if c.HasItem(id) {
		return EntryItem
	}
	if c.HasCrop(id) {
		return EntryCrop
	}
	return EntryUnknown
}

// IDs returns every id in the catalog: items, then crops, then products.
// Shadowed item ids appear once.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.items)+len(c.crops)+len(c.products))
	seen := make(map[string]bool, cap(out))
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range c.items {
		add(id)
	}
	for _, id := range c.crops {
		add(id)
	}
	for _, p := range c.products {
		add(p.Name)
	}
	return out
}

// Recipe returns a product's recipe and yield without copying, for hot
// paths such as the resolver. The returned slice must not be modified.
func (c *Catalog) Recipe(name string) ([]Ingredient, float64, bool) {
	i, ok := c.productIdx[name]
	if !ok {
		return nil, 0, false
	}
	p := &c.products[i]
	return p.Recipe, p.Amount, true
}
