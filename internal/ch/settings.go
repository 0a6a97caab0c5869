package ch

import (
	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/iancoleman/strcase"
)

// NormalizeSettings converts config keys (often camelCase once they went
// through env or YAML decoding) to ClickHouse's snake_case setting names.
func NormalizeSettings(settings map[string]any) clickhouse.Settings {
	var m = make(clickhouse.Settings, len(settings))

	for k, v := range settings {
		if v == nil {
			continue
		}

		m[strcase.ToSnake(k)] = v
	}

	return m
}
