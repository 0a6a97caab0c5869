package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()

	c, err := FromFS(fstest.MapFS{
		"todos.edgeql":          {Data: []byte("select Todo{title}{{ if .LIMIT }} limit {{ .LIMIT }}{{ end }};")},
		"nested/open_todos.sql": {Data: []byte("select title from todos where done = false order by {{ .ORDER | default \"id\" }}")},
		"README.md":             {Data: []byte("not a query")},
	})

	if err != nil {
		t.Fatal(err)
	}

	return c
}

func TestCatalogNames(t *testing.T) {
	var names = testCatalog(t).Names()

	if !slices.Equal(names, []string{"open_todos.sql", "todos.edgeql"}) {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestCatalogResolve(t *testing.T) {
	var c = testCatalog(t)

	var cases = []struct {
		name string
		vars map[string]any
		want string
	}{
		{"todos", nil, "select Todo{title};"},
		{"todos.edgeql", map[string]any{"LIMIT": 10}, "select Todo{title} limit 10;"},
		{"open_todos", nil, "select title from todos where done = false order by id"},
		{"open_todos", map[string]any{"ORDER": "title"}, "select title from todos where done = false order by title"},
	}

	for _, tc := range cases {
		q, err := c.Resolve(tc.name, tc.vars)

		if err != nil {
			t.Fatal(err)
		}

		if q != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, q, tc.want)
		}
	}
}

func TestCatalogNotFound(t *testing.T) {
	var c = testCatalog(t)

	for _, name := range []string{"missing", "README.md", "catalog"} {
		if _, err := c.Resolve(name, nil); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestCatalogRequest(t *testing.T) {
	req, err := testCatalog(t).Request("todos", nil, "Buy milk")

	if err != nil {
		t.Fatal(err)
	}

	if req.Query() != "select Todo{title};" || len(req.Params()) != 1 {
		t.Fatalf("unexpected request %q %v", req.Query(), req.Params())
	}
}

func TestCatalogParseError(t *testing.T) {
	_, err := FromFS(fstest.MapFS{"bad.sql": {Data: []byte("select {{ .X ")}})

	if err == nil || !strings.Contains(err.Error(), "bad.sql") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCatalogEmpty(t *testing.T) {
	var c = New()

	if len(c.Names()) != 0 {
		t.Fatalf("expected no names, got %v", c.Names())
	}

	if _, err := c.Resolve("todos", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogOpenDir(t *testing.T) {
	var dir = t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "todos.edgeql"), []byte("select Todo{title};"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Open(context.Background(), dir)

	if err != nil {
		t.Fatal(err)
	}

	if q, err := c.Resolve("todos", nil); err != nil || q != "select Todo{title};" {
		t.Fatalf("unexpected resolve result %q %v", q, err)
	}
}

func TestCatalogOpenEmptyLocation(t *testing.T) {
	c, err := Open(context.Background(), "")

	if err != nil {
		t.Fatal(err)
	}

	if len(c.Names()) != 0 {
		t.Fatalf("expected empty catalog, got %v", c.Names())
	}
}
