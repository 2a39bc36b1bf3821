package query

import (
	"fmt"
	"strings"
)

// RangeQuery 范围查询，未设置的边界忽略
type RangeQuery struct {
	Field string `json:"field"`
	Gt    any    `json:"gt,omitempty"`
	Gte   any    `json:"gte,omitempty"`
	Lt    any    `json:"lt,omitempty"`
	Lte   any    `json:"lte,omitempty"`
}

func Range(field string) *RangeQuery {
	return &RangeQuery{Field: field}
}

func (q *RangeQuery) WithGt(v any) *RangeQuery  { q.Gt = v; return q }
func (q *RangeQuery) WithGte(v any) *RangeQuery { q.Gte = v; return q }
func (q *RangeQuery) WithLt(v any) *RangeQuery  { q.Lt = v; return q }
func (q *RangeQuery) WithLte(v any) *RangeQuery { q.Lte = v; return q }

func (q *RangeQuery) Type() QueryType {
	return QueryTypeRange
}

func (q *RangeQuery) ToSQL() (string, []any, error) {
	if err := checkField(q.Field); err != nil {
		return "", nil, err
	}

	var conditions []string
	var args []any
	for _, bound := range []struct {
		op    string
		value any
	}{
		{">", q.Gt}, {">=", q.Gte}, {"<", q.Lt}, {"<=", q.Lte},
	} {
		if bound.value == nil {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s %s ?", q.Field, bound.op))
		args = append(args, bound.value)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}
