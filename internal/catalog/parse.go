package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

type options struct {
	allowShadowing bool
}

// Option configures Parse.
type Option func(*options)

// AllowProductShadowing accepts documents whose product names also appear in
// items or crops, as produced by older exporters that list end products as
// items. The product wins when the id is resolved.
func AllowProductShadowing() Option {
	return func(o *options) { o.allowShadowing = true }
}

// ParseJSON decodes a JSON document and parses it. Numbers are decoded as
// json.Number so that integers keep their exact value until conversion.
func ParseJSON(data []byte, opts ...Option) (*Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, &MalformedDocumentError{Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, &MalformedDocumentError{Reason: "trailing data after JSON document"}
	}
	return Parse(raw, opts...)
}

// ParseYAML decodes a YAML document with the same shape as the JSON schema.
func ParseYAML(data []byte, opts ...Option) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedDocumentError{Reason: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return Parse(raw, opts...)
}

// Parse validates an untyped document tree (as produced by encoding/json or
// yaml.v3) and returns an immutable Catalog. The first violation found is
// returned as one of the typed errors in this package; no partial catalog is
// ever returned.
func Parse(raw any, opts ...Option) (*Catalog, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	root, ok := asObject(raw)
	if !ok {
		return nil, &MalformedDocumentError{Reason: "document must be an object"}
	}

	c := &Catalog{revision: RevisionV1}

	itemsRaw, ok := root["items"]
	if !ok {
		return nil, &MalformedDocumentError{Path: "items", Reason: "required key is missing"}
	}
	items, err := parseIDList("items", itemsRaw)
	if err != nil {
		return nil, err
	}
	c.items = items

	if cropsRaw, ok := root["crops"]; ok && cropsRaw != nil {
		crops, err := parseIDList("crops", cropsRaw)
		if err != nil {
			return nil, err
		}
		c.crops = crops
		c.hasCrops = true
		c.revision = RevisionV2
	}

	productsRaw, ok := root["products"]
	if !ok {
		return nil, &MalformedDocumentError{Path: "products", Reason: "required key is missing"}
	}
	list, ok := productsRaw.([]any)
	if !ok {
		return nil, &MalformedDocumentError{Path: "products", Reason: "must be an array"}
	}
	c.products = make([]Product, 0, len(list))
	for i, v := range list {
		p, err := parseProduct(fmt.Sprintf("products[%d]", i), v)
		if err != nil {
			return nil, err
		}
		if p.QuantityKey == KeyProductAmount {
			c.revision = RevisionV2
		}
		c.products = append(c.products, p)
	}

	if err := c.index(o); err != nil {
		return nil, err
	}
	if err := c.checkReferences(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) index(o options) error {
	c.itemSet = make(map[string]struct{}, len(c.items))
	for _, id := range c.items {
		if _, dup := c.itemSet[id]; dup {
			return &DuplicateKeyError{Collection: "item", ID: id}
		}
		c.itemSet[id] = struct{}{}
	}

	c.cropSet = make(map[string]struct{}, len(c.crops))
	for _, id := range c.crops {
		if _, dup := c.cropSet[id]; dup {
			return &DuplicateKeyError{Collection: "crop", ID: id}
		}
		if _, clash := c.itemSet[id]; clash {
			return &DuplicateKeyError{Collection: "crop", ID: id, Conflict: "item"}
		}
		c.cropSet[id] = struct{}{}
	}

	c.productIdx = make(map[string]int, len(c.products))
	for i, p := range c.products {
		if _, dup := c.productIdx[p.Name]; dup {
			return &DuplicateKeyError{Collection: "product", ID: p.Name}
		}
		if !o.allowShadowing {
			if _, clash := c.itemSet[p.Name]; clash {
				return &DuplicateKeyError{Collection: "product", ID: p.Name, Conflict: "item"}
			}
			if _, clash := c.cropSet[p.Name]; clash {
				return &DuplicateKeyError{Collection: "product", ID: p.Name, Conflict: "crop"}
			}
		}
		c.productIdx[p.Name] = i
	}
	return nil
}

func (c *Catalog) checkReferences() error {
	for _, p := range c.products {
		for _, ing := range p.Recipe {
			if c.Kind(ing.ID) == EntryUnknown {
				return &UnknownIngredientError{ID: ing.ID, ReferencedFrom: p.Name}
			}
		}
	}
	return nil
}

func parseIDList(path string, v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, &MalformedDocumentError{Path: path, Reason: "must be an array of strings"}
	}
	out := make([]string, 0, len(list))
	for i, e := range list {
		s, ok := e.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, &MalformedDocumentError{Path: fmt.Sprintf("%s[%d]", path, i), Reason: "must be a non-empty string"}
		}
		out = append(out, s)
	}
	return out, nil
}

func parseProduct(path string, v any) (Product, error) {
	obj, ok := asObject(v)
	if !ok {
		return Product{}, &MalformedDocumentError{Path: path, Reason: "must be an object"}
	}

	var p Product
	name, err := requireString(obj, path, "name", false)
	if err != nil {
		return Product{}, err
	}
	p.Name = name
	table, err := requireString(obj, path, "table", true)
	if err != nil {
		return Product{}, err
	}
	p.Table = table

	legacy, hasLegacy := obj[string(KeyAmount)]
	current, hasCurrent := obj[string(KeyProductAmount)]
	switch {
	case hasLegacy && hasCurrent:
		return Product{}, &MalformedDocumentError{Path: path, Reason: `both "amount" and "product_amount" are set`}
	case hasCurrent:
		p.QuantityKey = KeyProductAmount
		p.Amount, err = parseAmount(path+".product_amount", current)
	case hasLegacy:
		p.QuantityKey = KeyAmount
		p.Amount, err = parseAmount(path+".amount", legacy)
	default:
		return Product{}, &MalformedDocumentError{Path: path, Reason: `one of "amount" or "product_amount" is required`}
	}
	if err != nil {
		return Product{}, err
	}

	recipeRaw, ok := obj["recipe"]
	if !ok {
		return Product{}, &MalformedDocumentError{Path: path + ".recipe", Reason: "required key is missing"}
	}
	lines, ok := recipeRaw.([]any)
	if !ok {
		return Product{}, &MalformedDocumentError{Path: path + ".recipe", Reason: "must be an array"}
	}
	p.Recipe = make([]Ingredient, 0, len(lines))
	for i, l := range lines {
		ipath := fmt.Sprintf("%s.recipe[%d]", path, i)
		lobj, ok := asObject(l)
		if !ok {
			return Product{}, &MalformedDocumentError{Path: ipath, Reason: "must be an object"}
		}
		id, err := requireString(lobj, ipath, "id", false)
		if err != nil {
			return Product{}, err
		}
		amtRaw, ok := lobj["amount"]
		if !ok {
			return Product{}, &MalformedDocumentError{Path: ipath + ".amount", Reason: "required key is missing"}
		}
		amt, err := parseAmount(ipath+".amount", amtRaw)
		if err != nil {
			return Product{}, err
		}
		p.Recipe = append(p.Recipe, Ingredient{ID: id, Amount: amt})
	}
	return p, nil
}

func requireString(obj map[string]any, path, key string, allowEmpty bool) (string, error) {
	v, ok := obj[key]
	if !ok {
		return "", &MalformedDocumentError{Path: path + "." + key, Reason: "required key is missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &MalformedDocumentError{Path: path + "." + key, Reason: "must be a string"}
	}
	if !allowEmpty && strings.TrimSpace(s) == "" {
		return "", &MalformedDocumentError{Path: path + "." + key, Reason: "must not be empty"}
	}
	return s, nil
}

func parseAmount(path string, v any) (float64, error) {
	f, ok := toFloat(v)
	if !ok {
		return 0, &MalformedDocumentError{Path: path, Reason: "must be a number"}
	}
	if err := CheckAmount(path, f); err != nil {
		return 0, err
	}
	return f, nil
}

// CheckAmount returns an InvalidAmountError unless v is positive and finite.
func CheckAmount(context string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &InvalidAmountError{Context: context, Value: v}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			// Out-of-range literals come back as ±Inf and are rejected as
			// invalid amounts rather than as malformed numbers.
			if math.IsInf(f, 0) {
				return f, true
			}
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// asObject accepts both map shapes produced by the JSON and YAML decoders.
func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}
