package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/resolver"
)

const tiny = `{"items": ["wood"], "products": [{"name": "plank", "table": "saw", "amount": 4, "recipe": [{"id": "wood", "amount": 1}]}]}`

const tinyYAML = `
items: [wood]
products:
  - name: plank
    table: saw
    amount: 4
    recipe:
      - {id: wood, amount: 1}
`

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestEmbeddedSampleIsValid(t *testing.T) {
	cat, doc, err := New().LoadCatalog(context.Background(), EmbeddedLocation)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, doc.Format)
	assert.Equal(t, catalog.RevisionV2, cat.Revision())
	assert.NotEmpty(t, cat.Crops())

	r := resolver.New(cat)
	require.NoError(t, r.Check())
	for _, name := range cat.ProductNames() {
		_, err := r.BaseCost(name, 1)
		require.NoError(t, err, name)
	}
}

func TestSampleReturnsCopy(t *testing.T) {
	a := Sample()
	a[0] = 'x'
	assert.Equal(t, byte('{'), Sample()[0])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "catalog.json")
	yamlPath := filepath.Join(dir, "catalog.yml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(tiny), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte(tinyYAML), 0o644))

	cat, doc, err := New().LoadCatalog(context.Background(), jsonPath)
	require.NoError(t, err)
	assert.Equal(t, digest(tiny), doc.SHA256)
	assert.Equal(t, []string{"plank"}, cat.ProductNames())

	cat, doc, err = New().LoadCatalog(context.Background(), yamlPath)
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, doc.Format)
	assert.Equal(t, []string{"wood"}, cat.Items())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := New().Load(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = New().Load(context.Background(), "  ")
	assert.Error(t, err)
}

func TestParseErrorKeepsSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"items": []}`), 0o644))

	_, doc, err := New().LoadCatalog(context.Background(), path)
	require.ErrorIs(t, err, catalog.ErrMalformedDocument)
	assert.Contains(t, err.Error(), path)
	assert.NotNil(t, doc)
}

func TestFetchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(tiny))
		case "/data":
			w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
			_, _ = w.Write([]byte(tinyYAML))
		default:
			http.Error(w, "catalog not published", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	l := New(WithHTTPClient(srv.Client()))
	doc, err := l.Load(context.Background(), srv.URL+"/data.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, doc.Format)
	assert.Equal(t, srv.URL+"/data.json", doc.Source)

	doc, err = l.Load(context.Background(), srv.URL+"/data")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, doc.Format)
	_, err = doc.Parse()
	require.NoError(t, err)

	_, err = l.Load(context.Background(), srv.URL+"/missing.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "catalog not published")
}

func TestFetchSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat(" ", 64) + tiny))
	}))
	defer srv.Close()

	_, err := New(WithHTTPClient(srv.Client()), WithMaxBytes(32)).Load(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(WithHTTPClient(srv.Client())).Load(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(tiny), 0o644))

	_, err := New(WithChecksum(strings.ToUpper(digest(tiny)))).Load(context.Background(), path)
	require.NoError(t, err)

	_, err = New(WithChecksum(digest("something else"))).Load(context.Background(), path)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("https://example.com/data.json"))
	assert.True(t, isURL("HTTP://example.com"))
	assert.False(t, isURL("data.json"))
	assert.False(t, isURL("file:///tmp/data.json"))
	assert.False(t, isURL("https://"))
}
