package backend

import "testing"

func TestNewDriver(t *testing.T) {
	var cases = []struct {
		kind string
		name string
	}{
		{"", "edgedb"},
		{"clickhouse", "clickhouse"},
		{"Postgres", "postgres"},
		{"edgedb", "edgedb"},
	}

	for _, tc := range cases {
		d, err := NewDriver(Config{Kind: tc.kind})

		if err != nil {
			t.Fatalf("%q: %v", tc.kind, err)
		}

		if d.Name() != tc.name {
			t.Fatalf("%q: got driver %s, want %s", tc.kind, d.Name(), tc.name)
		}
	}
}

func TestNewDriverUnknownKind(t *testing.T) {
	if _, err := NewDriver(Config{Kind: "mongo"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}

	if err := (Config{Kind: "mongo"}).WithDefaults().Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}
