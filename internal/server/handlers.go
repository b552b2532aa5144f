package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/resolver"
)

type productView struct {
	Name     string               `json:"name"`
	Table    string               `json:"table"`
	Amount   float64              `json:"amount"`
	Recipe   []catalog.Ingredient `json:"recipe"`
	Requires []string             `json:"requires,omitempty"`
	UsedBy   []string             `json:"used_by,omitempty"`
}

type costResponse struct {
	Product  string            `json:"product"`
	Quantity float64           `json:"quantity"`
	Cost     []resolver.Amount `json:"cost"`
}

type treeResponse struct {
	Product  string         `json:"product"`
	Quantity float64        `json:"quantity"`
	Tree     *resolver.Node `json:"tree"`
}

type usesResponse struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Products []string `json:"products"`
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", s.etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == s.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(s.document)
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"items": s.cat.Items()})
}

func (s *Server) handleCrops(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"crops": s.cat.Crops()})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products := s.cat.Products()
	out := make([]productView, 0, len(products))
	for _, p := range products {
		out = append(out, productView{Name: p.Name, Table: p.Table, Amount: p.Amount, Recipe: p.Recipe})
	}
	writeJSON(w, http.StatusOK, map[string][]productView{"products": out})
}

func (s *Server) handleProduct(w http.ResponseWriter, r *http.Request) {
	name := s.productName(r)
	p, ok := s.cat.Product(name)
	if !ok {
		s.writeError(w, r, &catalog.UnknownProductError{Name: name, Suggestions: s.products.Suggest(name, 3)})
		return
	}
	writeJSON(w, http.StatusOK, productView{
		Name:     p.Name,
		Table:    p.Table,
		Amount:   p.Amount,
		Recipe:   p.Recipe,
		Requires: s.res.Requires(p.Name),
		UsedBy:   s.res.ProductsUsing(p.Name),
	})
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	name := s.productName(r)
	qty, err := s.quantity(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	key := name + "\x00" + strconv.FormatFloat(qty, 'g', -1, 64)
	if s.memo != nil {
		if v, ok := s.memo.Get(key); ok {
			s.metrics.cacheHits.Inc()
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, v)
			return
		}
		s.metrics.cacheMiss.Inc()
	}

	cost, err := s.res.BaseCost(name, qty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := costResponse{Product: name, Quantity: qty, Cost: cost.Sorted()}
	if s.memo != nil {
		s.memo.SetDefault(key, resp)
		w.Header().Set("X-Cache", "miss")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	name := s.productName(r)
	qty, err := s.quantity(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tree, err := s.res.Tree(name, qty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, treeResponse{Product: name, Quantity: qty, Tree: tree})
}

// handleUses answers with an empty list for ids the catalog does not know.
func (s *Server) handleUses(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if wantsFuzzy(r) && s.cat.Kind(id) == catalog.EntryUnknown {
		if m := s.ids.Find(id); m.Found() {
			id = m.Best
		}
	}
	products := s.res.ProductsUsing(id)
	if products == nil {
		products = []string{}
	}
	writeJSON(w, http.StatusOK, usesResponse{ID: id, Kind: s.cat.Kind(id).String(), Products: products})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"products": s.cat.Len(),
		"revision": s.cat.Revision().String(),
	})
}

// productName reads the {name} path value, resolving approximate names when
// the request asks for it.
func (s *Server) productName(r *http.Request) string {
	name := r.PathValue("name")
	if !wantsFuzzy(r) || s.cat.Kind(name) == catalog.EntryProduct {
		return name
	}
	if m := s.products.Find(name); m.Found() {
		return m.Best
	}
	return name
}

func wantsFuzzy(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("fuzzy"))
	return v == "1" || v == "true" || v == "yes"
}

func (s *Server) quantity(r *http.Request) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("qty"))
	if raw == "" {
		return 1, nil
	}
	qty, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &catalog.InvalidAmountError{Context: "qty", Raw: raw}
	}
	if err := catalog.CheckAmount("qty", qty); err != nil {
		return 0, err
	}
	if s.cfg.MaxQuantity > 0 && qty > s.cfg.MaxQuantity {
		return 0, &catalog.InvalidAmountError{Context: "qty above " + strconv.FormatFloat(s.cfg.MaxQuantity, 'g', -1, 64), Value: qty}
	}
	return qty, nil
}
