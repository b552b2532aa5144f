package resolver

import (
	"math"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
)

// Node is one step of a craft tree. Base items and crops are leaves; product
// nodes record how many crafts cover the need and what is left over.
type Node struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Table       string  `json:"table,omitempty"`
	Needed      float64 `json:"needed"`
	Yield       float64 `json:"yield,omitempty"`
	Crafts      float64 `json:"crafts,omitempty"`
	Surplus     float64 `json:"surplus,omitempty"`
	Depth       int     `json:"depth"`
	Ingredients []*Node `json:"ingredients,omitempty"`
}

// Cost sums the leaves of the tree. For a tree returned by Tree it equals
// BaseCost for the same query.
func (n *Node) Cost() Cost {
	out := make(Cost)
	n.Walk(func(x *Node) {
		if len(x.Ingredients) == 0 && x.Kind != catalog.EntryProduct.String() {
			out[x.ID] += x.Needed
		}
	})
	return out
}

// Walk calls fn for n and every descendant, parents first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Ingredients {
		c.Walk(fn)
	}
}

// MaxDepth returns the depth of the deepest node below n. Shared subtrees
// are measured once.
func (n *Node) MaxDepth() int {
	return n.maxDepth(make(map[*Node]int))
}

func (n *Node) maxDepth(seen map[*Node]int) int {
	if d, ok := seen[n]; ok {
		return d
	}
	d := n.Depth
	for _, c := range n.Ingredients {
		if cd := c.maxDepth(seen); cd > d {
			d = cd
		}
	}
	seen[n] = d
	return d
}

// Tree expands the named product like BaseCost but keeps every intermediate
// step. It fails with the same errors BaseCost would. A product reached
// through several branches with the same need and depth shares one *Node.
func (r *Resolver) Tree(name string, quantity float64) (*Node, error) {
	if err := r.checkQuery(name, quantity); err != nil {
		return nil, err
	}
	return newWalker(r.cat).tree(name, quantity, 0)
}

func (w *walker) tree(name string, needed float64, depth int) (*Node, error) {
	key := nodeKey{name: name, needed: needed, depth: depth}
	if node, ok := w.nodes[key]; ok {
		return node, nil
	}
	if err := w.enter(name); err != nil {
		return nil, err
	}
	p, _ := w.cat.Product(name)
	n := crafts(needed, p.Amount)
	node := &Node{
		ID:      name,
		Kind:    catalog.EntryProduct.String(),
		Table:   p.Table,
		Needed:  needed,
		Yield:   p.Amount,
		Crafts:  n,
		Surplus: n*p.Amount - needed,
		Depth:   depth,
	}
	if node.Surplus < ceilTolerance {
		node.Surplus = 0
	}
	for _, ing := range p.Recipe {
		req := ing.Amount * n
		if math.IsInf(req, 0) {
			return nil, overflow(name, req)
		}
		kind := w.cat.Kind(ing.ID)
		switch kind {
		case catalog.EntryItem, catalog.EntryCrop:
			node.Ingredients = append(node.Ingredients, &Node{
				ID:     ing.ID,
				Kind:   kind.String(),
				Needed: req,
				Depth:  depth + 1,
			})
		case catalog.EntryProduct:
			child, err := w.tree(ing.ID, req, depth+1)
			if err != nil {
				return nil, err
			}
			node.Ingredients = append(node.Ingredients, child)
		default:
			return nil, &catalog.UnknownIngredientError{ID: ing.ID, ReferencedFrom: name}
		}
	}
	w.leave(name)
	w.nodes[key] = node
	return node, nil
}
