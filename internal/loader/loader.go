package loader

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
)

const (
	// EmbeddedLocation selects the sample catalog shipped with the binary.
	EmbeddedLocation = "embedded:"

	DefaultMaxBytes = 32 << 20
	DefaultTimeout  = 20 * time.Second

	maxErrorBody = 4096
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

var ErrTooLarge = errors.New("document exceeds size limit")

//go:embed sample/catalog.json
var sampleCatalog []byte

// Format is the encoding of a document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is a fetched, undecoded catalog document.
type Document struct {
	Bytes  []byte
	Format Format
	Source string
	SHA256 string
}

// Parse decodes the document and validates it into a Catalog.
func (d *Document) Parse(opts ...catalog.Option) (*catalog.Catalog, error) {
	var (
		cat *catalog.Catalog
		err error
	)
	switch d.Format {
	case FormatYAML:
		cat, err = catalog.ParseYAML(d.Bytes, opts...)
	default:
		cat, err = catalog.ParseJSON(d.Bytes, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Source, err)
	}
	return cat, nil
}

type Loader struct {
	client   *http.Client
	maxBytes int64
	checksum string
}

type Option func(*Loader)

// WithHTTPClient replaces the default client (20s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

func WithMaxBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithChecksum makes Load verify the document against a hex SHA-256 digest.
// An empty value disables the check.
func WithChecksum(hexDigest string) Option {
	return func(l *Loader) { l.checksum = strings.ToLower(strings.TrimSpace(hexDigest)) }
}

func New(opts ...Option) *Loader {
	l := &Loader{
		client:   &http.Client{Timeout: DefaultTimeout},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the document at location: EmbeddedLocation, an http(s) URL, or a
// file path.
func (l *Loader) Load(ctx context.Context, location string) (*Document, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, errors.New("no catalog location given")
	}

	var (
		doc *Document
		err error
	)
	switch {
	case location == EmbeddedLocation:
		doc = &Document{Bytes: Sample(), Format: FormatJSON, Source: EmbeddedLocation}
	case isURL(location):
		doc, err = l.fetch(ctx, location)
	default:
		doc, err = l.readFile(location)
	}
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(doc.Bytes)
	doc.SHA256 = hex.EncodeToString(sum[:])
	if l.checksum != "" && doc.SHA256 != l.checksum {
		return nil, fmt.Errorf("%w for %s: got %s want %s", ErrChecksumMismatch, doc.Source, doc.SHA256, l.checksum)
	}
	return doc, nil
}

// LoadCatalog loads and parses in one step.
func (l *Loader) LoadCatalog(ctx context.Context, location string, opts ...catalog.Option) (*catalog.Catalog, *Document, error) {
	doc, err := l.Load(ctx, location)
	if err != nil {
		return nil, nil, err
	}
	cat, err := doc.Parse(opts...)
	if err != nil {
		return nil, doc, err
	}
	return cat, doc, nil
}

func isURL(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func (l *Loader) fetch(ctx context.Context, location string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.1")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("fetch %s: %s: %s", location, resp.Status, strings.TrimSpace(string(b)))
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	u, _ := url.Parse(location)
	format := formatFromContentType(resp.Header.Get("Content-Type"))
	if f, ok := formatFromPath(u.Path); ok {
		format = f
	}
	return &Document{Bytes: data, Format: format, Source: location}, nil
}

func (l *Loader) readFile(path string) (*Document, error) {
	// #nosec G304 -- the path is chosen by the operator.
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := l.readLimited(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	format, _ := formatFromPath(path)
	return &Document{Bytes: data, Format: format, Source: path}, nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, l.maxBytes)
	}
	return data, nil
}

func formatFromPath(p string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".json":
		return FormatJSON, true
	}
	return FormatJSON, false
}

func formatFromContentType(ct string) Format {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return FormatJSON
	}
	if strings.Contains(mt, "yaml") {
		return FormatYAML
	}
	return FormatJSON
}

// Sample returns a copy of the embedded sample catalog.
func Sample() []byte {
	out := make([]byte, len(sampleCatalog))
	copy(out, sampleCatalog)
	return out
}
