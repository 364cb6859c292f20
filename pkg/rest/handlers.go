package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tablodata/tablo/pkg/auth"
	"github.com/tablodata/tablo/pkg/blueprint"
	"github.com/tablodata/tablo/pkg/httputil"
	"github.com/tablodata/tablo/pkg/metrics"
	"github.com/tablodata/tablo/pkg/pagination"
	"github.com/tablodata/tablo/pkg/query"
	"github.com/tablodata/tablo/pkg/render"
	"github.com/tablodata/tablo/pkg/schema"
	"github.com/tablodata/tablo/pkg/storage"
)

const (
	paramPage        = "page"
	paramPageSize    = "_pageSize"
	paramExpand      = "_expand"
	paramExpandScope = "_expandScope"
)

// reservedParams are handled by the server itself and skip field validation.
var reservedParams = map[string]struct{}{
	paramPage:        {},
	paramPageSize:    {},
	paramExpand:      {},
	paramExpandScope: {},
}

var errBadPageSize = errors.New("invalid " + paramPageSize + " value")

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	principal := s.principal(r)

	table, ok := s.resolve(w, r, principal)
	if !ok {
		return
	}
	defer func() {
		metrics.RequestDuration.WithLabelValues(table.DatasetID, table.ID, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	}()

	if err := query.Validate(r.Method, r.URL.Query(), principal, table, reservedParams); err != nil {
		status = s.writeError(w, r, err)
		return
	}
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", "GET, OPTIONS")
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	opts := s.renderOptions(r, principal)
	size, err := s.pageSize(r)
	if err != nil {
		status = s.writeError(w, r, err)
		return
	}
	sq, err := s.buildQuery(r, table)
	if err != nil {
		status = s.writeError(w, r, err)
		return
	}

	bp, err := s.factory.Blueprint(table, expandDepth(opts))
	if err != nil {
		status = s.writeError(w, r, err)
		return
	}
	// Expansion must be rejected up front: once rows stream, the status
	// line is out and a denial could only truncate the body.
	if err := checkExpansion(bp, opts); err != nil {
		status = s.writeError(w, r, err)
		return
	}

	// The page holds an open cursor from here on, so no rejection may
	// happen between GetPage and RenderList, which closes it.
	paginator := pagination.New(size)
	page, err := paginator.GetPage(r.URL.Query().Get(paramPage), func(offset, limit int) (storage.Iterator, error) {
		q := sq
		q.Offset = offset
		q.Limit = limit
		return s.source.Rows(r.Context(), q)
	})
	if err != nil {
		status = s.writeError(w, r, err)
		return
	}

	pageURL := func(n int) string {
		u := *r.URL
		q := u.Query()
		q.Set(paramPage, strconv.Itoa(n))
		u.RawQuery = q.Encode()
		return s.cfg.REST.BaseURL + u.String()
	}

	w.Header().Set("Content-Type", "application/hal+json")
	cw := &countingWriter{w: w}
	if err := s.renderer.RenderList(r.Context(), cw, bp, page, pageURL, opts); err != nil {
		if cw.n == 0 {
			status = s.writeError(w, r, err)
			return
		}
		// The body is partially written; the status line is already out.
		httputil.Logger(r).Error("aborting response mid-stream",
			zap.String("table", table.Key()), zap.Error(err))
	}
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := http.StatusOK
	principal := s.principal(r)

	table, ok := s.resolve(w, r, principal)
	if !ok {
		return
	}
	defer func() {
		metrics.RequestDuration.WithLabelValues(table.DatasetID, table.ID, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	}()

	// The identifier components count as present filters, so profiles with
	// mandatory filter sets on the key still activate on detail views.
	principal.AddQueryParams(table.Identifier...)
	principal.AddQueryParams(table.PrimaryID())

	if err := query.Validate(r.Method, r.URL.Query(), principal, table, reservedParams); err != nil {
		status = s.writeError(w, r, err)
		return
	}
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", "GET, OPTIONS")
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	row, err := s.fetchObject(r, table)
	if err != nil {
		status = s.writeError(w, r, err)
		return
	}

	opts := s.renderOptions(r, principal)
	bp, err := s.factory.Blueprint(table, expandDepth(opts))
	if err != nil {
		status = s.writeError(w, r, err)
		return
	}
	if err := checkExpansion(bp, opts); err != nil {
		status = s.writeError(w, r, err)
		return
	}
	obj, err := s.renderer.RenderObject(r.Context(), bp, row, opts)
	if err != nil {
		status = s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		httputil.Logger(r).Error("encoding detail response", zap.Error(err))
	}
}

// fetchObject resolves the path id to one row. On temporal tables a version
// selector in the query picks that exact slice instead of the stored
// current version.
func (s *Server) fetchObject(r *http.Request, table *schema.Table) (storage.Row, error) {
	id := r.PathValue("id")

	if table.IsTemporal() {
		if version := r.URL.Query().Get(table.Temporal.Identifier); version != "" {
			it, err := s.source.Rows(r.Context(), storage.Query{
				Table: table,
				Filters: []storage.Filter{
					{Column: schema.ToSnakeCase(table.PrimaryID()), Op: storage.OpExact, Value: id},
					{Column: schema.ToSnakeCase(table.Temporal.Identifier), Op: storage.OpExact, Value: version},
				},
				Limit: 1,
			})
			if err != nil {
				return nil, err
			}
			defer it.Close()
			if !it.Next() {
				if err := it.Err(); err != nil {
					return nil, err
				}
				return nil, &schema.ObjectNotFoundError{Kind: table.Key(), ID: id + "." + version}
			}
			return it.Row(), nil
		}
	}

	row, err := s.source.Lookup(r.Context(), table, id)
	if errors.Is(err, storage.ErrRowNotFound) {
		return nil, &schema.ObjectNotFoundError{Kind: table.Key(), ID: id}
	}
	return row, err
}

func (s *Server) renderOptions(r *http.Request, principal *auth.Principal) render.Options {
	q := r.URL.Query()
	return render.Options{
		Principal: principal,
		ExpandAll: q.Get(paramExpand) == "true",
		Expand:    splitScope(q.Get(paramExpandScope)),
	}
}

// checkExpansion validates the explicitly requested expansion scopes: every
// name must denote an embeddable relation the principal can read.
func checkExpansion(bp *blueprint.Blueprint, opts render.Options) error {
	for _, name := range opts.Expand {
		var match *blueprint.EmbeddedField
		for _, ef := range bp.Embedded {
			if ef.Name == name {
				match = ef
				break
			}
		}
		if match == nil {
			return &query.FilterSyntaxError{Param: paramExpandScope, Reason: name + " is not an embeddable relation"}
		}
		if !opts.Principal.HasFieldAccess(match.Field) {
			return &query.AccessDeniedError{Field: name, Scopes: opts.Principal.String()}
		}
	}
	return nil
}

func expandDepth(opts render.Options) int {
	if opts.ExpandAll || len(opts.Expand) > 0 {
		return 1
	}
	return 0
}

// countingWriter tracks whether any body bytes have been written, so error
// handling can still change the status code before the first write.
type countingWriter struct {
	w interface{ Write([]byte) (int, error) }
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

func splitScope(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
