package catalog

import "encoding/json"

type documentJSON struct {
	Items    []string      `json:"items"`
	Crops    *[]string     `json:"crops,omitempty"`
	Products []productJSON `json:"products"`
}

type productJSON struct {
	Name          string       `json:"name"`
	Table         string       `json:"table"`
	Amount        *float64     `json:"amount,omitempty"`
	ProductAmount *float64     `json:"product_amount,omitempty"`
	Recipe        []Ingredient `json:"recipe"`
}

// MarshalJSON writes the catalog back in the shape it was read: each product
// keeps the quantity key it was declared with, and "crops" is emitted only when
// the source document had it.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	doc := documentJSON{
		Items:    c.items,
		Products: make([]productJSON, 0, len(c.products)),
	}
	if doc.Items == nil {
		doc.Items = []string{}
	}
	if c.hasCrops {
		crops := c.crops
		if crops == nil {
			crops = []string{}
		}
		doc.Crops = &crops
	}
	for _, p := range c.products {
		amount := p.Amount
		pj := productJSON{
			Name:   p.Name,
			Table:  p.Table,
			Recipe: p.Recipe,
		}
		if p.QuantityKey == KeyProductAmount {
			pj.ProductAmount = &amount
		} else {
			pj.Amount = &amount
		}
		doc.Products = append(doc.Products, pj)
	}
	return json.Marshal(doc)
}
