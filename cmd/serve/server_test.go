package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/agnosticeng/query-gateway/internal/catalog"
	"github.com/agnosticeng/query-gateway/internal/engine"
	"github.com/agnosticeng/query-gateway/internal/engine/enginetest"
	"github.com/agnosticeng/query-gateway/internal/gateway"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	cat, err := catalog.FromFS(fstest.MapFS{
		"todos.edgeql":   {Data: []byte("select Todo{title};")},
		"open_todos.sql": {Data: []byte(`select title from todos where done = {{ .DONE | default "false" }}`)},
		"by_title.sql":   {Data: []byte("select title from todos where title = $1")},
	})

	if err != nil {
		t.Fatal(err)
	}

	return cat
}

func todosDriver() *enginetest.Driver {
	return enginetest.NewDriver().WithRows(
		"select Todo{title};",
		[]string{"title"},
		[]any{"Buy milk"},
		[]any{"Write spec"},
	)
}

func newTestHandler(t *testing.T, d engine.Driver, cat *catalog.Catalog, conf gateway.Config) http.Handler {
	t.Helper()

	gw, err := gateway.New(context.Background(), d, conf)

	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(gw.Close)

	srv, err := newServer(gw, cat, pageConfig{})

	if err != nil {
		t.Fatal(err)
	}

	return srv.Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()

	var rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var resp errorResponse

	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", rec.Body.String(), err)
	}

	return resp
}

func TestPageRendersTodos(t *testing.T) {
	var rec = get(t, newTestHandler(t, todosDriver(), testCatalog(t), gateway.Config{}), "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var (
		body   = rec.Body.String()
		first  = strings.Index(body, "Buy milk")
		second = strings.Index(body, "Write spec")
	)

	if first < 0 || second < 0 || first > second {
		t.Fatalf("todos missing or out of order:\n%s", body)
	}

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestPageFallsBackToDefaultQuery(t *testing.T) {
	var rec = get(t, newTestHandler(t, todosDriver(), catalog.New(), gateway.Config{}), "/")

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Write spec") {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPageEscapesValues(t *testing.T) {
	var d = enginetest.NewDriver().WithRows("select Todo{title};", []string{"title"}, []any{"<script>alert(1)</script>"})

	var rec = get(t, newTestHandler(t, d, catalog.New(), gateway.Config{}), "/")

	if strings.Contains(rec.Body.String(), "<script>") {
		t.Fatalf("value was not escaped:\n%s", rec.Body.String())
	}
}

func TestPageBackendDown(t *testing.T) {
	var d = enginetest.NewDriver().WithConnectError(errors.New("connection refused"))

	var rec = get(t, newTestHandler(t, d, testCatalog(t), gateway.Config{}), "/")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestQueryJSON(t *testing.T) {
	var rec = get(t, newTestHandler(t, todosDriver(), testCatalog(t), gateway.Config{}), "/api/queries/todos")

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var want = `{"name":"todos","records":[{"title":"Buy milk"},{"title":"Write spec"}]}`

	if got := strings.TrimSpace(rec.Body.String()); got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestQueryEmptyResult(t *testing.T) {
	var d = enginetest.NewDriver().WithRows("select Todo{title};", []string{"title"})

	var rec = get(t, newTestHandler(t, d, testCatalog(t), gateway.Config{}), "/api/queries/todos")

	if got := strings.TrimSpace(rec.Body.String()); got != `{"name":"todos","records":[]}` {
		t.Fatalf("unexpected body %s", got)
	}
}

func TestQueryVarsAndParams(t *testing.T) {
	var (
		mu      sync.Mutex
		queries []string
		args    [][]any
	)

	var d = enginetest.NewDriver().WithQueryFunc(func(ctx context.Context, query string, a []any) (*engine.RowSet, error) {
		mu.Lock()
		defer mu.Unlock()
		queries = append(queries, query)
		args = append(args, a)
		return &engine.RowSet{Columns: []string{"title"}}, nil
	})

	var h = newTestHandler(t, d, testCatalog(t), gateway.Config{})

	if rec := get(t, h, "/api/queries/open_todos?DONE=true"); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	if rec := get(t, h, "/api/queries/by_title?param=Buy+milk"); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	mu.Lock()
	defer mu.Unlock()

	if queries[0] != "select title from todos where done = true" {
		t.Fatalf("unexpected rendered query %q", queries[0])
	}

	if len(args[1]) != 1 || args[1][0] != "Buy milk" {
		t.Fatalf("unexpected bind params %v", args[1])
	}
}

func TestQueryErrorStatuses(t *testing.T) {
	var slow = enginetest.NewDriver().WithQueryFunc(func(ctx context.Context, query string, args []any) (*engine.RowSet, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	var cases = []struct {
		name   string
		driver engine.Driver
		conf   gateway.Config
		target string
		status int
		kind   string
	}{
		{"unknown name", todosDriver(), gateway.Config{}, "/api/queries/missing", http.StatusNotFound, ""},
		{"rejected", todosDriver(), gateway.Config{}, "/api/queries/open_todos", http.StatusBadRequest, "query_rejected"},
		{"unreachable", enginetest.NewDriver().WithConnectError(errors.New("connection refused")), gateway.Config{}, "/api/queries/todos", http.StatusServiceUnavailable, "connection_failure"},
		{"timeout", slow, gateway.Config{QueryTimeout: 20 * time.Millisecond}, "/api/queries/todos", http.StatusGatewayTimeout, "timeout"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rec = get(t, newTestHandler(t, tc.driver, testCatalog(t), tc.conf), tc.target)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}

			if resp := decodeError(t, rec); resp.Kind != tc.kind || len(resp.Error) == 0 {
				t.Fatalf("unexpected error body %+v", resp)
			}
		})
	}
}

func TestServerErrorHidesBackendDetails(t *testing.T) {
	var (
		d   = enginetest.NewDriver().WithConnectError(errors.New("dial tcp 10.0.0.7:5656: connection refused"))
		rec = get(t, newTestHandler(t, d, testCatalog(t), gateway.Config{}), "/api/queries/todos")
	)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	if strings.Contains(rec.Body.String(), "10.0.0.7") {
		t.Fatalf("backend details leaked: %s", rec.Body.String())
	}

	var resp = decodeError(t, rec)

	if resp.Error != http.StatusText(http.StatusServiceUnavailable) || resp.Kind != "connection_failure" {
		t.Fatalf("unexpected error body %+v", resp)
	}
}

func TestListQueries(t *testing.T) {
	var (
		rec   = get(t, newTestHandler(t, todosDriver(), testCatalog(t), gateway.Config{}), "/api/queries")
		names []string
	)

	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(names, []string{"by_title.sql", "open_todos.sql", "todos.edgeql"}) {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestHealthAndStats(t *testing.T) {
	var h = newTestHandler(t, todosDriver(), testCatalog(t), gateway.Config{MaxConns: 3})

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}

	var (
		rec   = get(t, h, "/api/stats")
		stats gateway.Stats
	)

	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}

	if stats.Max != 3 || stats.Total != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	var down = newTestHandler(t, enginetest.NewDriver().WithConnectError(errors.New("no route to host")), testCatalog(t), gateway.Config{})

	if rec := get(t, down, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStatusOf(t *testing.T) {
	var cases = []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", catalog.ErrNotFound), http.StatusNotFound},
		{&gateway.QueryError{Kind: gateway.KindQueryRejected}, http.StatusBadRequest},
		{&gateway.QueryError{Kind: gateway.KindConnectionFailure}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", &gateway.QueryError{Kind: gateway.KindTimeout}), http.StatusGatewayTimeout},
		{&gateway.QueryError{Kind: gateway.KindCanceled}, http.StatusRequestTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusOf(tc.err); got != tc.status {
			t.Fatalf("%v: got %d, want %d", tc.err, got, tc.status)
		}
	}
}
