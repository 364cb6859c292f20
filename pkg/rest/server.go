// Package rest exposes the datasets over HTTP: listing and detail views per
// dataset table, the schema endpoint and the error taxonomy mapping.
package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/blueprint"
	"github.com/tablodata/tablo/pkg/config"
	"github.com/tablodata/tablo/pkg/httputil"
	"github.com/tablodata/tablo/pkg/httputil/middleware"
	"github.com/tablodata/tablo/pkg/metrics"
	"github.com/tablodata/tablo/pkg/render"
	"github.com/tablodata/tablo/pkg/schema"
	"github.com/tablodata/tablo/pkg/storage"
)

// Server handles the read API over one schema set.
type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	mux      *http.ServeMux
	server   *http.Server
	cache    *schema.Cache
	factory  *blueprint.Factory
	source   storage.Source
	renderer *render.Renderer
	profiles []*auth.Profile
}

// NewServer wires the presentation engine behind an HTTP mux. The blueprint
// cache is invalidated whenever the schema cache reloads.
func NewServer(cfg *config.Config, cache *schema.Cache, source storage.Source, profiles []*auth.Profile, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	var signer *render.BlobSigner
	if cfg.REST.BlobSigningKey != "" {
		signer = render.NewBlobSigner([]byte(cfg.REST.BlobSigningKey), cfg.REST.BlobSigningTTL)
	}

	s := &Server{
		cfg:      cfg,
		log:      log,
		mux:      http.NewServeMux(),
		cache:    cache,
		factory:  blueprint.NewFactory(log),
		source:   source,
		renderer: render.New(cfg.REST.BaseURL, source, signer, log),
		profiles: profiles,
	}
	s.registerHandlers()

	go func() {
		for range cache.Watch() {
			s.factory.Invalidate()
			log.Info("schema reloaded, blueprint cache invalidated")
		}
	}()
	return s
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.cache.Handler(s.mux, "/_schemas")
	s.mux.HandleFunc("/{dataset}/{table}", s.handleList)
	s.mux.HandleFunc("/{dataset}/{table}/{id}", s.handleDetail)
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var oidcCfg *middleware.OIDCConfig
	if s.cfg.REST.OIDC.Issuer != "" {
		oidcCfg = &middleware.OIDCConfig{
			Issuer:       s.cfg.REST.OIDC.Issuer,
			ClientID:     s.cfg.REST.OIDC.ClientID,
			ClientSecret: s.cfg.REST.OIDC.ClientSecret,
			ScopeClaim:   s.cfg.REST.OIDC.ScopeClaim,
		}
	}
	return middleware.Chain(s.mux,
		middleware.RequestID,
		middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: s.log}),
		middleware.CORSWithOptions(nil),
		middleware.Principal(oidcCfg, s.profiles),
	)
}

// Start runs the server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.cfg.REST.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", s.cfg.REST.ListenAddr))
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleIndex lists the datasets the caller may see.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}
	principal := s.principal(r)

	type datasetInfo struct {
		ID     string `json:"id"`
		Tables int    `json:"tables"`
	}
	out := make([]datasetInfo, 0)
	for id, ds := range s.cache.Snapshot().Datasets() {
		if !principal.HasDatasetAccess(ds) {
			continue
		}
		out = append(out, datasetInfo{ID: id, Tables: len(ds.Tables)})
	}
	httputil.JSON(w, http.StatusOK, map[string]any{"datasets": out})
}

// principal returns the request principal, falling back to anonymous when
// the middleware chain was bypassed (as in handler-level tests).
func (s *Server) principal(r *http.Request) *auth.Principal {
	if p, ok := httputil.Principal(r); ok {
		return p
	}
	return auth.Anonymous(s.profiles)
}

// resolve maps the path to a table and checks table-level access.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request, principal *auth.Principal) (*schema.Table, bool) {
	table, err := s.cache.Snapshot().Table(r.PathValue("dataset"), r.PathValue("table"))
	if err != nil {
		httputil.Error(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	if !principal.HasTableAccess(table) {
		metrics.ValidationRejections.WithLabelValues("table_access").Inc()
		s.log.Info("table access denied",
			zap.String("table", table.Key()),
			zap.String("principal", principal.String()))
		httputil.Error(w, http.StatusForbidden, "access denied to "+table.Key())
		return nil, false
	}
	return table, true
}

// pageSize resolves the page size, honoring the _pageSize override up to
// the configured cap.
func (s *Server) pageSize(r *http.Request) (int, error) {
	raw := r.URL.Query().Get(paramPageSize)
	if raw == "" {
		return s.cfg.REST.PageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errBadPageSize
	}
	if n > s.cfg.REST.MaxPageSize {
		n = s.cfg.REST.MaxPageSize
	}
	return n, nil
}
