package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestRender(t *testing.T) {
	var dir = t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "todos.edgeql"), []byte("select Todo{title} limit {{ .LIMIT }};"), 0o644); err != nil {
		t.Fatal(err)
	}

	var (
		buf bytes.Buffer
		app = &cli.App{Writer: &buf, Commands: []*cli.Command{Command()}}
	)

	if err := app.Run([]string{"app", "render", "--var", "LIMIT=2", dir}); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(buf.String(), "todos.edgeql\n") || !strings.Contains(buf.String(), "select Todo{title} limit 2;") {
		t.Fatalf("unexpected output:\n%s", buf.String())
	}
}

func TestRenderUnknownName(t *testing.T) {
	var app = &cli.App{Writer: &bytes.Buffer{}, Commands: []*cli.Command{Command()}}

	if err := app.Run([]string{"app", "render", t.TempDir(), "missing"}); err == nil {
		t.Fatal("expected error for unknown query")
	}
}
