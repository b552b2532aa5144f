package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/appengine-ltd/ecorecipes/internal/catalog"
	"github.com/appengine-ltd/ecorecipes/internal/config"
	"github.com/appengine-ltd/ecorecipes/internal/lookup"
	"github.com/appengine-ltd/ecorecipes/internal/resolver"
)

const requestIDHeader = "X-Request-ID"

type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// CacheTTL is how long cost results are memoised; zero disables the memo.
	CacheTTL    time.Duration
	MaxQuantity float64
}

// ConfigFrom converts the file configuration.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Addr:            c.Server.Addr,
		ReadTimeout:     c.GetReadTimeout(),
		WriteTimeout:    c.GetWriteTimeout(),
		ShutdownTimeout: c.GetShutdownTimeout(),
		CacheTTL:        c.GetCacheTTL(),
		MaxQuantity:     c.Server.MaxQuantity,
	}
}

type Server struct {
	cfg      Config
	cat      *catalog.Catalog
	res      *resolver.Resolver
	products *lookup.Index
	ids      *lookup.Index
	logger   *zap.Logger
	memo     *cache.Cache
	registry *prometheus.Registry
	metrics  *metrics
	document []byte
	etag     string
	handler  http.Handler
}

// New prepares a server over res. The served document is encoded once here.
func New(cfg Config, res *resolver.Resolver, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cat := res.Catalog()
	doc, err := cat.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	sum := sha256.Sum256(doc)

	reg := prometheus.NewRegistry()
	s := &Server{
		cfg:      cfg,
		cat:      cat,
		res:      res,
		products: lookup.New(cat.ProductNames()),
		ids:      lookup.New(cat.IDs()),
		logger:   logger,
		registry: reg,
		metrics:  newMetrics(reg),
		document: doc,
		etag:     `"` + hex.EncodeToString(sum[:8]) + `"`,
	}
	if cfg.CacheTTL > 0 {
		s.memo = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	s.metrics.products.Set(float64(cat.Len()))
	s.handler = s.routes()
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /data.json", s.handleDocument)
	mux.HandleFunc("GET /api/items", s.handleItems)
	mux.HandleFunc("GET /api/crops", s.handleCrops)
	mux.HandleFunc("GET /api/products", s.handleProducts)
	mux.HandleFunc("GET /api/products/{name...}", s.handleProduct)
	mux.HandleFunc("GET /api/cost/{name...}", s.handleCost)
	mux.HandleFunc("GET /api/tree/{name...}", s.handleTree)
	mux.HandleFunc("GET /api/uses/{id...}", s.handleUses)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return s.instrument(mux)
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within ShutdownTimeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		ErrorLog:     zap.NewStdLog(s.logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("products", s.cat.Len()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.metrics.duration.WithLabelValues(route).Observe(elapsed.Seconds())
		s.logger.Debug("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind        string   `json:"kind"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	Path        []string `json:"path,omitempty"`
}

// statusFor maps the catalog error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrUnknownProduct), errors.Is(err, catalog.ErrUnknownIngredient):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrCyclicRecipe):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := errorDetail{Kind: catalog.KindOf(err), Message: err.Error()}
	if detail.Kind == "" {
		detail.Kind = "internal"
	}
	var unk *catalog.UnknownProductError
	if errors.As(err, &unk) {
		detail.Suggestions = unk.Suggestions
	}
	var cyc *catalog.CyclicRecipeError
	if errors.As(err, &cyc) {
		detail.Path = cyc.Path
	}
	s.metrics.queryFails.WithLabelValues(detail.Kind).Inc()
	if status >= http.StatusInternalServerError {
		s.logger.Error("query failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: detail})
}
