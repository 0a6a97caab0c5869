package pg

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/agnosticeng/query-gateway/internal/engine"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyError(t *testing.T) {
	var cases = []struct {
		name  string
		err   error
		alive bool
		want  error
	}{
		{"syntax error", &pgconn.PgError{Code: "42601", Message: `syntax error at or near "selec"`}, true, engine.ErrRejected},
		{"undefined table", fmt.Errorf("query: %w", &pgconn.PgError{Code: "42P01"}), true, engine.ErrRejected},
		{"protocol violation", &pgconn.PgError{Code: "08P01"}, true, engine.ErrUnavailable},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, true, engine.ErrTimeout},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, false, engine.ErrUnavailable},
		{"auth", &pgconn.PgError{Code: "28P01"}, false, engine.ErrUnavailable},
		{"deadline", fmt.Errorf("read: %w", context.DeadlineExceeded), false, engine.ErrTimeout},
		{"network", errors.New("unexpected EOF"), false, engine.ErrUnavailable},
		{"argument count", errors.New("expected 1 arguments, got 2"), true, engine.ErrRejected},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := classifyError(c.err, c.alive); !errors.Is(err, c.want) {
				t.Fatalf("got %v, want %v", err, c.want)
			}
		})
	}
}

func TestDriverInvalidDsn(t *testing.T) {
	var d = NewDriver(DriverConfig{Dsn: "postgres://%zz"})

	if _, err := d.Connect(context.Background()); !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
