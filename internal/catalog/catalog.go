package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"slices"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/agnosticeng/objstr"
	objstrutils "github.com/agnosticeng/objstr/utils"
	"github.com/agnosticeng/query-gateway/internal/gateway"
	"github.com/agnosticeng/query-gateway/internal/utils"
	"github.com/samber/lo"
)

var ErrNotFound = errors.New("query not found")

var extensions = []string{".sql", ".edgeql"}

// Catalog holds named query templates. A template name is its file name;
// lookups also accept the name without extension.
type Catalog struct {
	tmpl *template.Template
}

func newTemplate() *template.Template {
	return template.New("catalog").Option("missingkey=default").Funcs(sprig.TxtFuncMap())
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{tmpl: newTemplate()}
}

// Load reads every query file under target, which may be any location the
// object store in ctx understands (file://, s3://, ...).
func Load(ctx context.Context, target *url.URL) (*Catalog, error) {
	var (
		store = objstr.FromContextOrDefault(ctx)
		tmpl  = newTemplate()
	)

	files, err := store.ListPrefix(ctx, target)

	if err != nil {
		return nil, fmt.Errorf("failed to list queries at %s: %w", target, err)
	}

	for _, file := range files {
		if !isQueryFile(file.URL.Path) {
			continue
		}

		content, err := objstrutils.ReadObject(ctx, store, file.URL)

		if err != nil {
			return nil, err
		}

		if _, err := tmpl.New(path.Base(file.URL.Path)).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file.URL, err)
		}
	}

	return &Catalog{tmpl: tmpl}, nil
}

// Open loads a catalog from a local directory or, failing that, from a URL.
// An empty location yields an empty catalog.
func Open(ctx context.Context, location string) (*Catalog, error) {
	if len(location) == 0 {
		return New(), nil
	}

	if stat, err := os.Stat(location); err == nil && stat.IsDir() {
		return FromFS(os.DirFS(location))
	}

	u, err := url.Parse(location)

	if err != nil {
		return nil, fmt.Errorf("invalid catalog location %q: %w", location, err)
	}

	return Load(ctx, u)
}

func FromFS(fsys fs.FS) (*Catalog, error) {
	var tmpl = newTemplate()

	var err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !isQueryFile(p) {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)

		if err != nil {
			return err
		}

		if _, err := tmpl.New(path.Base(p)).Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return &Catalog{tmpl: tmpl}, nil
}

func (c *Catalog) Names() []string {
	var names = lo.FilterMap(c.tmpl.Templates(), func(t *template.Template, _ int) (string, bool) {
		return t.Name(), isQueryFile(t.Name())
	})

	slices.Sort(names)
	return names
}

func (c *Catalog) lookup(name string) (string, bool) {
	if isQueryFile(name) && c.tmpl.Lookup(name) != nil {
		return name, true
	}

	for _, ext := range extensions {
		if c.tmpl.Lookup(name+ext) != nil {
			return name + ext, true
		}
	}

	return "", false
}

func (c *Catalog) Resolve(name string, vars map[string]any) (string, error) {
	fullName, ok := c.lookup(name)

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	q, err := utils.RenderTemplate(c.tmpl, fullName, vars)

	if err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", fullName, err)
	}

	return q, nil
}

func (c *Catalog) Request(name string, vars map[string]any, params ...any) (gateway.QueryRequest, error) {
	q, err := c.Resolve(name, vars)

	if err != nil {
		return gateway.QueryRequest{}, err
	}

	return gateway.NewQueryRequest(q, params...), nil
}

func isQueryFile(p string) bool {
	return slices.Contains(extensions, path.Ext(p))
}
