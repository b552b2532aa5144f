package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
)

func TestTreeMatchesBaseCost(t *testing.T) {
	r := mustResolver(t, workshop)
	for _, q := range []float64{1, 3} {
		tree, err := r.Tree("gate", q)
		require.NoError(t, err)
		cost, err := r.BaseCost("gate", q)
		require.NoError(t, err)
		if diff := cmp.Diff(cost, tree.Cost()); diff != "" {
			t.Fatalf("q=%v tree cost differs (-base +tree):\n%s", q, diff)
		}
	}
}

func TestTreeShape(t *testing.T) {
	r := mustResolver(t, planks)
	tree, err := r.Tree("table", 1)
	require.NoError(t, err)

	want := &Node{
		ID: "table", Kind: "product", Table: "bench", Needed: 1, Yield: 1, Crafts: 1, Depth: 0,
		Ingredients: []*Node{{
			ID: "plank", Kind: "product", Table: "saw", Needed: 4, Yield: 4, Crafts: 1, Depth: 1,
			Ingredients: []*Node{{ID: "wood", Kind: "item", Needed: 1, Depth: 2}},
		}},
	}
	if diff := cmp.Diff(want, tree); diff != "" {
		t.Fatalf("tree mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, tree.MaxDepth())
}

func TestTreeRecordsSurplus(t *testing.T) {
	r := mustResolver(t, planks)
	tree, err := r.Tree("plank", 5)
	require.NoError(t, err)
	assert.Equal(t, 2.0, tree.Crafts)
	assert.Equal(t, 3.0, tree.Surplus)
}

func TestTreeCycle(t *testing.T) {
	doc := `{"items": [], "products": [{"name": "self", "table": "t", "amount": 1, "recipe": [{"id": "self", "amount": 1}]}]}`
	r := mustResolver(t, doc)
	tree, err := r.Tree("self", 1)
	assert.Nil(t, tree)
	assert.ErrorIs(t, err, catalog.ErrCyclicRecipe)
}

func TestTreeWalkVisitsParentsFirst(t *testing.T) {
	r := mustResolver(t, planks)
	tree, err := r.Tree("table", 1)
	require.NoError(t, err)

	var order []string
	tree.Walk(func(n *Node) { order = append(order, n.ID) })
	assert.Equal(t, []string{"table", "plank", "wood"}, order)
}
