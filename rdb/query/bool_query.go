package query

import (
	"fmt"
	"strings"
)

// BoolQuery 布尔组合查询
type BoolQuery struct {
	Must           []Query `json:"must,omitempty"`
	Should         []Query `json:"should,omitempty"`
	MustNot        []Query `json:"must_not,omitempty"`
	MinShouldMatch *int    `json:"minimum_should_match,omitempty"`
}

func Bool() *BoolQuery {
	return &BoolQuery{}
}

func (q *BoolQuery) WithMust(queries ...Query) *BoolQuery {
	q.Must = append(q.Must, queries...)
	return q
}

func (q *BoolQuery) WithShould(queries ...Query) *BoolQuery {
	q.Should = append(q.Should, queries...)
	return q
}

func (q *BoolQuery) WithMustNot(queries ...Query) *BoolQuery {
	q.MustNot = append(q.MustNot, queries...)
	return q
}

func (q *BoolQuery) WithMinShouldMatch(n int) *BoolQuery {
	q.MinShouldMatch = &n
	return q
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func renderAll(queries []Query) ([]string, []any, error) {
	conditions := make([]string, 0, len(queries))
	var args []any
	for _, query := range queries {
		sql, queryArgs, err := query.ToSQL()
		if err != nil {
			return nil, nil, err
		}
		conditions = append(conditions, sql)
		args = append(args, queryArgs...)
	}
	return conditions, args, nil
}

func (q *BoolQuery) ToSQL() (string, []any, error) {
	var conditions []string
	var args []any

	if len(q.Must) > 0 {
		must, mustArgs, err := renderAll(q.Must)
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, "("+strings.Join(must, " AND ")+")")
		args = append(args, mustArgs...)
	}

	if len(q.Should) > 0 {
		should, shouldArgs, err := renderAll(q.Should)
		if err != nil {
			return "", nil, err
		}
		// MinShouldMatch 不为 1 时按满足条件的个数计数
		if q.MinShouldMatch != nil && *q.MinShouldMatch != 1 {
			cases := make([]string, len(should))
			for i, condition := range should {
				cases[i] = fmt.Sprintf("CASE WHEN (%s) THEN 1 ELSE 0 END", condition)
			}
			conditions = append(conditions, fmt.Sprintf("(%s) >= %d", strings.Join(cases, " + "), *q.MinShouldMatch))
		} else {
			conditions = append(conditions, "("+strings.Join(should, " OR ")+")")
		}
		args = append(args, shouldArgs...)
	}

	if len(q.MustNot) > 0 {
		mustNot, mustNotArgs, err := renderAll(q.MustNot)
		if err != nil {
			return "", nil, err
		}
		for i := range mustNot {
			mustNot[i] = "NOT (" + mustNot[i] + ")"
		}
		conditions = append(conditions, "("+strings.Join(mustNot, " AND ")+")")
		args = append(args, mustNotArgs...)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}
	return strings.Join(conditions, " AND "), args, nil
}
