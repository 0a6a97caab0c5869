package gateway

import (
	"slices"
	"strings"
)

type QueryRequest struct {
	query  string
	params []any
}

func NewQueryRequest(query string, params ...any) QueryRequest {
	return QueryRequest{
		query:  query,
		params: slices.Clone(params),
	}
}

func (r QueryRequest) Query() string {
	return r.query
}

func (r QueryRequest) Params() []any {
	return slices.Clone(r.params)
}

func (r QueryRequest) empty() bool {
	return len(strings.TrimSpace(r.query)) == 0
}
