package edgedb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/agnosticeng/query-gateway/internal/engine"
)

// decodeRowSet turns a QueryJSON result (a JSON array) into a row set. Object
// elements keep the key order of the shape; scalar elements become a single
// "value" column.
func decodeRowSet(data []byte) (*engine.RowSet, error) {
	var dec = json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '['); err != nil {
		return nil, err
	}

	var rs = &engine.RowSet{}

	for dec.More() {
		keys, values, err := decodeElement(dec)

		if err != nil {
			return nil, err
		}

		if rs.Columns == nil {
			rs.Columns = keys
		} else if !slices.Equal(rs.Columns, keys) {
			return nil, fmt.Errorf("row %d has columns %v, expected %v", len(rs.Rows), keys, rs.Columns)
		}

		rs.Rows = append(rs.Rows, values)
	}

	if err := expectDelim(dec, ']'); err != nil {
		return nil, err
	}

	return rs, nil
}

func decodeElement(dec *json.Decoder) ([]string, []any, error) {
	tok, err := dec.Token()

	if err != nil {
		return nil, nil, err
	}

	if tok != json.Delim('{') {
		value, err := finishValue(dec, tok)
		return []string{"value"}, []any{value}, err
	}

	var (
		keys   []string
		values []any
	)

	for dec.More() {
		tok, err := dec.Token()

		if err != nil {
			return nil, nil, err
		}

		key, ok := tok.(string)

		if !ok {
			return nil, nil, fmt.Errorf("unexpected object key %v", tok)
		}

		var value any

		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("failed to decode field %s: %w", key, err)
		}

		keys = append(keys, key)
		values = append(values, value)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, err
	}

	return keys, values, nil
}

// finishValue completes a value whose first token was already consumed.
func finishValue(dec *json.Decoder, tok json.Token) (any, error) {
	delim, ok := tok.(json.Delim)

	if !ok {
		return tok, nil
	}

	switch delim {
	case '[':
		var res = []any{}

		for dec.More() {
			var v any

			if err := dec.Decode(&v); err != nil {
				return nil, err
			}

			res = append(res, v)
		}

		return res, expectDelim(dec, ']')
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()

	if err != nil {
		return err
	}

	if tok != want {
		return fmt.Errorf("expected %v, got %v", want, tok)
	}

	return nil
}
