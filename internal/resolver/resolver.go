package resolver

import (
	"math"
	"slices"
	"sort"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/lookup"
)

// ceilTolerance absorbs float noise when turning a requested quantity into a
// whole number of crafts (3 * 0.1 / 0.3 must be one craft, not two).
const ceilTolerance = 1e-9

// Resolver answers recipe queries over an immutable catalog. It never mutates
// the catalog and is safe for concurrent queries.
type Resolver struct {
	cat   *catalog.Catalog
	uses  map[string][]string
	names *lookup.Index
}

func New(cat *catalog.Catalog) *Resolver {
	r := &Resolver{
		cat:   cat,
		uses:  make(map[string][]string),
		names: lookup.New(cat.ProductNames()),
	}
	for _, name := range cat.ProductNames() {
		recipe, _, _ := cat.Recipe(name)
		for _, ing := range recipe {
			if !slices.Contains(r.uses[ing.ID], name) {
				r.uses[ing.ID] = append(r.uses[ing.ID], name)
			}
		}
	}
	return r
}

// Catalog returns the catalog the resolver was built over.
func (r *Resolver) Catalog() *catalog.Catalog { return r.cat }

// Cost maps base item and crop ids to the quantity required.
type Cost map[string]float64

// Amount is one entry of a Cost.
type Amount struct {
	ID     string  `json:"id"`
	Amount float64 `json:"amount"`
}

// Sorted returns the entries ordered by id.
func (c Cost) Sorted() []Amount {
	out := make([]Amount, 0, len(c))
	for id, v := range c {
		out = append(out, Amount{ID: id, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Scale returns a copy with every amount multiplied by f.
func (c Cost) Scale(f float64) Cost {
	out := make(Cost, len(c))
	for id, v := range c {
		out[id] = v * f
	}
	return out
}

// BaseCost returns the total quantity of every item and crop needed to craft
// quantity units of the named product, expanding intermediate products
// depth first. Each product is crafted ceil(needed / yield) times and each
// craft consumes its full recipe. Errors are terminal: no partial cost is
// returned.
func (r *Resolver) BaseCost(name string, quantity float64) (Cost, error) {
	if err := r.checkQuery(name, quantity); err != nil {
		return nil, err
	}
	w := newWalker(r.cat)
	out, err := w.cost(name, quantity)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ProductsUsing returns, in catalog order, the products whose recipe lists id
// directly. Unknown ids yield an empty result.
func (r *Resolver) ProductsUsing(id string) []string {
	return slices.Clone(r.uses[id])
}

// Requires returns the distinct ingredient ids of a product's recipe, in
// recipe order.
func (r *Resolver) Requires(name string) []string {
	recipe, _, ok := r.cat.Recipe(name)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(recipe))
	for _, ing := range recipe {
		if !slices.Contains(out, ing.ID) {
			out = append(out, ing.ID)
		}
	}
	return out
}

// Check walks every product once and returns the first cycle found, visiting
// products in catalog order and ingredients in recipe order.
func (r *Resolver) Check() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, r.cat.Len())
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = grey
		stack = append(stack, name)
		recipe, _, _ := r.cat.Recipe(name)
		for _, ing := range recipe {
			kind := r.cat.Kind(ing.ID)
			if kind == catalog.EntryUnknown {
				return &catalog.UnknownIngredientError{ID: ing.ID, ReferencedFrom: name}
			}
			if kind != catalog.EntryProduct {
				continue
			}
			switch color[ing.ID] {
			case grey:
				return &catalog.CyclicRecipeError{Path: cyclePath(stack, ing.ID)}
			case white:
				if err := visit(ing.ID); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for _, name := range r.cat.ProductNames() {
		if color[name] != white {
			continue
		}
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) checkQuery(name string, quantity float64) error {
	if r.cat.Kind(name) != catalog.EntryProduct {
		return &catalog.UnknownProductError{Name: name, Suggestions: r.names.Suggest(name, 3)}
	}
	return catalog.CheckAmount("quantity", quantity)
}

// walker carries the active expansion path. The path set, not the visited
// set, decides cycles. Finished subtrees are memoised per query, keyed by
// product and craft count, so a product reached again through another branch
// with the same need is not expanded twice.
type walker struct {
	cat    *catalog.Catalog
	path   []string
	onPath map[string]bool
	costs  map[craftKey]Cost
	nodes  map[nodeKey]*Node
}

type craftKey struct {
	name   string
	crafts float64
}

type nodeKey struct {
	name   string
	needed float64
	depth  int
}

func newWalker(cat *catalog.Catalog) *walker {
	return &walker{
		cat:    cat,
		onPath: make(map[string]bool),
		costs:  make(map[craftKey]Cost),
		nodes:  make(map[nodeKey]*Node),
	}
}

func (w *walker) enter(name string) error {
	if w.onPath[name] {
		return &catalog.CyclicRecipeError{Path: cyclePath(w.path, name)}
	}
	w.onPath[name] = true
	w.path = append(w.path, name)
	return nil
}

func (w *walker) leave(name string) {
	w.path = w.path[:len(w.path)-1]
	delete(w.onPath, name)
}

// cost returns the base cost of needed units of name. The returned map is
// held by the memo and must not be modified.
func (w *walker) cost(name string, needed float64) (Cost, error) {
	recipe, yield, _ := w.cat.Recipe(name)
	n := crafts(needed, yield)
	key := craftKey{name: name, crafts: n}
	if c, ok := w.costs[key]; ok {
		return c, nil
	}
	if err := w.enter(name); err != nil {
		return nil, err
	}
	out := make(Cost)
	for _, ing := range recipe {
		req := ing.Amount * n
		if math.IsInf(req, 0) {
			return nil, overflow(name, req)
		}
		switch w.cat.Kind(ing.ID) {
		case catalog.EntryItem, catalog.EntryCrop:
			if err := add(out, ing.ID, req, name); err != nil {
				return nil, err
			}
		case catalog.EntryProduct:
			sub, err := w.cost(ing.ID, req)
			if err != nil {
				return nil, err
			}
			for id, v := range sub {
				if err := add(out, id, v, name); err != nil {
					return nil, err
				}
			}
		default:
			return nil, &catalog.UnknownIngredientError{ID: ing.ID, ReferencedFrom: name}
		}
	}
	w.leave(name)
	w.costs[key] = out
	return out, nil
}

func add(out Cost, id string, v float64, name string) error {
	sum := out[id] + v
	if math.IsInf(sum, 0) {
		return overflow(name, sum)
	}
	out[id] = sum
	return nil
}

func overflow(name string, v float64) error {
	return &catalog.InvalidAmountError{Context: "cost of " + name + " overflows", Value: v}
}

// crafts returns how many times a recipe yielding yield units must run to
// cover needed units. Any positive need costs at least one craft.
func crafts(needed, yield float64) float64 {
	ratio := needed / yield
	c := math.Ceil(ratio)
	if c > 1 && c-ratio > 1-ceilTolerance {
		c--
	}
	if c < 1 {
		c = 1
	}
	return c
}

func cyclePath(stack []string, repeated string) []string {
	start := slices.Index(stack, repeated)
	if start < 0 {
		start = 0
	}
	out := slices.Clone(stack[start:])
	return append(out, repeated)
}
