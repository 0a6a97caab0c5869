package serve

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/agnosticeng/query-gateway/internal/catalog"
	"github.com/agnosticeng/query-gateway/internal/gateway"
	"github.com/samber/lo"
	slogctx "github.com/veqryn/slog-context"
)

//go:embed page.html
var pageTemplate string

type server struct {
	gw      *gateway.Gateway
	catalog *catalog.Catalog
	page    pageConfig
	tmpl    *template.Template
}

type pageData struct {
	Title   string
	Records []gateway.Record
}

type queryResponse struct {
	Name    string           `json:"name"`
	Records []gateway.Record `json:"records"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func newServer(gw *gateway.Gateway, cat *catalog.Catalog, page pageConfig) (*server, error) {
	tmpl, err := template.New("page").Parse(pageTemplate)

	if err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}

	return &server{
		gw:      gw,
		catalog: cat,
		page:    page.WithDefaults(),
		tmpl:    tmpl,
	}, nil
}

func (srv *server) Handler() http.Handler {
	var mux = http.NewServeMux()

	mux.HandleFunc("GET /{$}", srv.handlePage)
	mux.HandleFunc("GET /api/queries", srv.handleListQueries)
	mux.HandleFunc("GET /api/queries/{name}", srv.handleQuery)
	mux.HandleFunc("GET /api/stats", srv.handleStats)
	mux.HandleFunc("GET /healthz", srv.handleHealth)

	return mux
}

func (srv *server) pageRequest(vars map[string]any, params []any) (gateway.QueryRequest, error) {
	req, err := srv.catalog.Request(srv.page.Query, vars, params...)

	if errors.Is(err, catalog.ErrNotFound) {
		return gateway.NewQueryRequest(srv.page.Fallback, params...), nil
	}

	return req, err
}

func (srv *server) handlePage(w http.ResponseWriter, r *http.Request) {
	var vars, params = requestArgs(r.URL.Query())

	req, err := srv.pageRequest(vars, params)

	if err != nil {
		srv.writePageError(w, r, err)
		return
	}

	records, err := srv.gw.FetchRecords(r.Context(), req)

	if err != nil {
		srv.writePageError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if err := srv.tmpl.Execute(w, pageData{Title: srv.page.Title, Records: records}); err != nil {
		slogctx.FromCtx(r.Context()).Error("failed to render page", "error", err.Error())
	}
}

func (srv *server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, srv.catalog.Names())
}

func (srv *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var (
		name         = r.PathValue("name")
		vars, params = requestArgs(r.URL.Query())
	)

	req, err := srv.catalog.Request(name, vars, params...)

	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	records, err := srv.gw.FetchRecords(r.Context(), req)

	if err != nil {
		srv.writeError(w, r, err)
		return
	}

	if records == nil {
		records = []gateway.Record{}
	}

	writeJSON(w, r, http.StatusOK, queryResponse{Name: name, Records: records})
}

func (srv *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, srv.gw.Stat())
}

func (srv *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var ctx, cancel = context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := srv.gw.Ping(ctx); err != nil {
		srv.writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (srv *server) writePageError(w http.ResponseWriter, r *http.Request, err error) {
	var status = statusOf(err)

	logError(r, status, err)
	http.Error(w, http.StatusText(status), status)
}

func (srv *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status = statusOf(err)
		resp   = errorResponse{Error: err.Error()}
	)

	// backend details stay in the logs
	if status >= http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
	}

	if kind, ok := gateway.KindOf(err); ok {
		resp.Kind = kind.String()
	}

	logError(r, status, err)
	writeJSON(w, r, status, resp)
}

func logError(r *http.Request, status int, err error) {
	var logger = slogctx.FromCtx(r.Context())

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err.Error())
	} else {
		logger.Debug("request failed", "path", r.URL.Path, "status", status, "error", err.Error())
	}
}

func statusOf(err error) int {
	if errors.Is(err, catalog.ErrNotFound) {
		return http.StatusNotFound
	}

	if qerr, ok := lo.ErrorsAs[*gateway.QueryError](err); ok {
		switch qerr.Kind {
		case gateway.KindQueryRejected:
			return http.StatusBadRequest
		case gateway.KindConnectionFailure:
			return http.StatusServiceUnavailable
		case gateway.KindTimeout:
			return http.StatusGatewayTimeout
		case gateway.KindCanceled:
			return http.StatusRequestTimeout
		}
	}

	return http.StatusInternalServerError
}

// requestArgs splits URL query values into template variables and bind
// parameters. Repeated "param" values become positional parameters.
func requestArgs(values url.Values) (map[string]any, []any) {
	var vars = make(map[string]any)

	for k, v := range values {
		if k == "param" || len(v) == 0 {
			continue
		}

		vars[k] = v[0]
	}

	var params = lo.Map(values["param"], func(v string, _ int) any { return v })
	return vars, params
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slogctx.FromCtx(r.Context()).Warn("failed to encode response", "path", r.URL.Path, "error", err.Error())
	}
}
