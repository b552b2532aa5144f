package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/resolver"
)

const workshop = `{
  "items": ["iron ore", "coal", "wood"],
  "crops": ["flax"],
  "products": [
    {"name": "iron bar", "table": "Furnace", "product_amount": 1, "recipe": [{"id": "iron ore", "amount": 2}, {"id": "coal", "amount": 1}]},
    {"name": "rope", "table": "Loom", "product_amount": 1, "recipe": [{"id": "flax", "amount": 3}]},
    {"name": "hinge", "table": "Anvil", "product_amount": 1, "recipe": [{"id": "iron bar", "amount": 1}]},
    {"name": "gate", "table": "Workbench", "product_amount": 1, "recipe": [
      {"id": "wood", "amount": 6}, {"id": "hinge", "amount": 2}, {"id": "iron bar", "amount": 1}, {"id": "rope", "amount": 1}
    ]},
    {"name": "ouroboros", "table": "Void", "product_amount": 1, "recipe": [{"id": "ouroboros", "amount": 1}]}
  ]
}`

func testConfig() Config {
	return Config{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
		CacheTTL:        time.Minute,
		MaxQuantity:     1000,
	}
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cat, err := catalog.ParseJSON([]byte(workshop))
	require.NoError(t, err)
	s, err := New(cfg, resolver.New(cat), zap.NewNop())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestDocumentRoundTrips(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()
	rec := get(t, h, "/data.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	cat, err := catalog.ParseJSON(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []string{"flax"}, cat.Crops())
	assert.Equal(t, 5, cat.Len())

	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, http.StatusNotModified, get(t, h, "/data.json", "If-None-Match", etag).Code)
}

func TestListings(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	items := decode[map[string][]string](t, get(t, h, "/api/items"))
	assert.Equal(t, []string{"iron ore", "coal", "wood"}, items["items"])

	crops := decode[map[string][]string](t, get(t, h, "/api/crops"))
	assert.Equal(t, []string{"flax"}, crops["crops"])

	products := decode[map[string][]productView](t, get(t, h, "/api/products"))
	require.Len(t, products["products"], 5)
	assert.Equal(t, "iron bar", products["products"][0].Name)
	assert.Equal(t, []catalog.Ingredient{{ID: "iron ore", Amount: 2}, {ID: "coal", Amount: 1}}, products["products"][0].Recipe)
}

func TestProductDetail(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	p := decode[productView](t, get(t, h, "/api/products/iron%20bar"))
	assert.Equal(t, "Furnace", p.Table)
	assert.Equal(t, []string{"iron ore", "coal"}, p.Requires)
	assert.Equal(t, []string{"hinge", "gate"}, p.UsedBy)

	rec := get(t, h, "/api/products/gates")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, catalog.KindUnknownProduct, body.Error.Kind)
	assert.Equal(t, []string{"gate"}, body.Error.Suggestions)
}

func TestCost(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	rec := get(t, h, "/api/cost/gate?qty=2")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	got := decode[costResponse](t, rec)
	want := costResponse{
		Product:  "gate",
		Quantity: 2,
		Cost: []resolver.Amount{
			{ID: "coal", Amount: 6},
			{ID: "flax", Amount: 6},
			{ID: "iron ore", Amount: 12},
			{ID: "wood", Amount: 12},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cost mismatch (-want +got):\n%s", diff)
	}

	again := get(t, h, "/api/cost/gate?qty=2")
	assert.Equal(t, "hit", again.Header().Get("X-Cache"))
	assert.JSONEq(t, rec.Body.String(), again.Body.String())
}

func TestCostWithoutMemo(t *testing.T) {
	cfg := testConfig()
	cfg.CacheTTL = 0
	h := newTestServer(t, cfg).Handler()
	rec := get(t, h, "/api/cost/rope")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, []resolver.Amount{{ID: "flax", Amount: 3}}, decode[costResponse](t, rec).Cost)
}

func TestFuzzyNames(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/cost/Iron-Bar").Code)

	rec := get(t, h, "/api/cost/Iron-Bar?fuzzy=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "iron bar", decode[costResponse](t, rec).Product)

	uses := decode[usesResponse](t, get(t, h, "/api/uses/FLAX?fuzzy=true"))
	assert.Equal(t, "flax", uses.ID)
	assert.Equal(t, "crop", uses.Kind)
	assert.Equal(t, []string{"rope"}, uses.Products)
}

func TestErrorStatuses(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()
	tests := []struct {
		target string
		status int
		kind   string
	}{
		{target: "/api/cost/gate?qty=0", status: http.StatusBadRequest, kind: catalog.KindInvalidAmount},
		{target: "/api/cost/gate?qty=abc", status: http.StatusBadRequest, kind: catalog.KindInvalidAmount},
		{target: "/api/cost/gate?qty=5000", status: http.StatusBadRequest, kind: catalog.KindInvalidAmount},
		{target: "/api/tree/gate?qty=-1", status: http.StatusBadRequest, kind: catalog.KindInvalidAmount},
		{target: "/api/cost/wood", status: http.StatusNotFound, kind: catalog.KindUnknownProduct},
		{target: "/api/cost/ouroboros", status: http.StatusUnprocessableEntity, kind: catalog.KindCyclicRecipe},
		{target: "/api/tree/ouroboros", status: http.StatusUnprocessableEntity, kind: catalog.KindCyclicRecipe},
	}
	for _, tc := range tests {
		rec := get(t, h, tc.target)
		assert.Equal(t, tc.status, rec.Code, tc.target)
		body := decode[errorBody](t, rec)
		assert.Equal(t, tc.kind, body.Error.Kind, tc.target)
		assert.NotEmpty(t, body.Error.Message, tc.target)
	}

	body := decode[errorBody](t, get(t, h, "/api/cost/ouroboros"))
	assert.Equal(t, []string{"ouroboros", "ouroboros"}, body.Error.Path)

	body = decode[errorBody](t, get(t, h, "/api/cost/gate?qty=abc"))
	assert.Equal(t, `invalid amount "abc" at qty: not a number`, body.Error.Message)
}

func TestTree(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()
	rec := get(t, h, "/api/tree/hinge?qty=3")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[treeResponse](t, rec)
	require.NotNil(t, got.Tree)
	assert.Equal(t, "hinge", got.Tree.ID)
	assert.Equal(t, 3.0, got.Tree.Crafts)
	require.Len(t, got.Tree.Ingredients, 1)
	assert.Equal(t, "iron bar", got.Tree.Ingredients[0].ID)
	assert.Equal(t, resolver.Cost{"iron ore": 6, "coal": 3}, got.Tree.Cost())
}

func TestUsesUnknownID(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()
	rec := get(t, h, "/api/uses/gold")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id": "gold", "kind": "unknown", "products": []}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	health := decode[map[string]any](t, get(t, h, "/healthz"))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "v2", health["revision"])

	get(t, h, "/api/cost/gate")
	get(t, h, "/api/cost/gate")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ecorecipes_catalog_products 5")
	assert.Contains(t, body, "ecorecipes_cost_cache_hits_total 1")
	assert.Contains(t, body, `route="GET /api/cost/{name...}"`)
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()

	rec := get(t, h, "/healthz", requestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = get(t, h, "/healthz")
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, testConfig()).Handler()
	req := httptest.NewRequest(http.MethodPost, "/api/items", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, testConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
