package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the catalog error taxonomy. Every typed error below
// matches exactly one of these through errors.Is.
var (
	ErrMalformedDocument = errors.New("malformed document")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrUnknownIngredient = errors.New("unknown ingredient")
	ErrCyclicRecipe      = errors.New("cyclic recipe")
	ErrUnknownProduct    = errors.New("unknown product")
)

// Error kinds reported by Kind() on every typed error.
const (
	KindMalformedDocument = "malformed_document"
	KindDuplicateKey      = "duplicate_key"
	KindInvalidAmount     = "invalid_amount"
	KindUnknownIngredient = "unknown_ingredient"
	KindCyclicRecipe      = "cyclic_recipe"
	KindUnknownProduct    = "unknown_product"
)

// MalformedDocumentError reports a structural or type mismatch at Path.
type MalformedDocumentError struct {
	Path   string
	Reason string
}

func (e *MalformedDocumentError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed document: %s", e.Reason)
	}
	return fmt.Sprintf("malformed document at %s: %s", e.Path, e.Reason)
}

func (e *MalformedDocumentError) Is(target error) bool { return target == ErrMalformedDocument }

func (e *MalformedDocumentError) Kind() string { return KindMalformedDocument }

// DuplicateKeyError reports an id that was declared twice. Collection is one of
// "item", "crop" or "product". Conflict names the other collection when the
// collision crosses collections (an item id reused as a crop id).
type DuplicateKeyError struct {
	Collection string
	ID         string
	Conflict   string
}

func (e *DuplicateKeyError) Error() string {
	if e.Conflict != "" && e.Conflict != e.Collection {
		return fmt.Sprintf("duplicate %s %q: already declared as %s", e.Collection, e.ID, e.Conflict)
	}
	return fmt.Sprintf("duplicate %s %q", e.Collection, e.ID)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }

func (e *DuplicateKeyError) Kind() string { return KindDuplicateKey }

// InvalidAmountError reports a quantity that is not strictly positive and finite.
// Raw holds the original text when the quantity could not be parsed at all.
type InvalidAmountError struct {
	Context string
	Value   float64
	Raw     string
}

func (e *InvalidAmountError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("invalid amount %q at %s: not a number", e.Raw, e.Context)
	}
	return fmt.Sprintf("invalid amount %v at %s: must be positive and finite", e.Value, e.Context)
}

func (e *InvalidAmountError) Is(target error) bool { return target == ErrInvalidAmount }

func (e *InvalidAmountError) Kind() string { return KindInvalidAmount }

// UnknownIngredientError reports a recipe line whose id resolves to nothing.
type UnknownIngredientError struct {
	ID             string
	ReferencedFrom string
}

func (e *UnknownIngredientError) Error() string {
	return fmt.Sprintf("unknown ingredient %q referenced from product %q", e.ID, e.ReferencedFrom)
}

func (e *UnknownIngredientError) Is(target error) bool { return target == ErrUnknownIngredient }

func (e *UnknownIngredientError) Kind() string { return KindUnknownIngredient }

// CyclicRecipeError reports a production chain that reaches itself. Path starts
// at the first product of the cycle and ends with the same product again.
type CyclicRecipeError struct {
	Path []string
}

func (e *CyclicRecipeError) Error() string {
	return fmt.Sprintf("cyclic recipe: %s", strings.Join(e.Path, " -> "))
}

func (e *CyclicRecipeError) Is(target error) bool { return target == ErrCyclicRecipe }

func (e *CyclicRecipeError) Kind() string { return KindCyclicRecipe }

// UnknownProductError reports a query for a product the catalog does not have.
type UnknownProductError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownProductError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown product %q", e.Name)
	}
	return fmt.Sprintf("unknown product %q (did you mean %s?)", e.Name, strings.Join(quoteAll(e.Suggestions), ", "))
}

func (e *UnknownProductError) Is(target error) bool { return target == ErrUnknownProduct }

func (e *UnknownProductError) Kind() string { return KindUnknownProduct }

// KindOf returns the taxonomy kind of err, or "" when err carries none.
func KindOf(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
