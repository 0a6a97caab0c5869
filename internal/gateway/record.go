package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

type Field struct {
	Name  string
	Value any
}

// Record is one result row. Field order follows the query projection.
type Record struct {
	fields []Field
}

func NewRecord(fields ...Field) Record {
	return Record{fields: slices.Clone(fields)}
}

func newRecordFromRow(columns []string, row []any) (Record, error) {
	if len(columns) != len(row) {
		return Record{}, fmt.Errorf("row has %d values for %d columns", len(row), len(columns))
	}

	return Record{
		fields: lo.Map(columns, func(name string, i int) Field {
			return Field{Name: name, Value: row[i]}
		}),
	}, nil
}

func (r Record) Len() int {
	return len(r.fields)
}

func (r Record) Fields() []Field {
	return slices.Clone(r.fields)
}

func (r Record) Names() []string {
	return lo.Map(r.fields, func(f Field, _ int) string { return f.Name })
}

func (r Record) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}

	return nil, false
}

// Value is Get without the presence flag, for use from templates.
func (r Record) Value(name string) any {
	v, _ := r.Get(name)
	return v
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}

		k, err := json.Marshal(f.Name)

		if err != nil {
			return nil, err
		}

		v, err := json.Marshal(f.Value)

		if err != nil {
			return nil, fmt.Errorf("failed to marshal field %s: %w", f.Name, err)
		}

		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Record) MarshalYAML() (any, error) {
	var node = &yaml.Node{Kind: yaml.MappingNode}

	for _, f := range r.fields {
		var k, v yaml.Node

		if err := k.Encode(f.Name); err != nil {
			return nil, err
		}

		if err := v.Encode(f.Value); err != nil {
			return nil, fmt.Errorf("failed to encode field %s: %w", f.Name, err)
		}

		node.Content = append(node.Content, &k, &v)
	}

	return node, nil
}
