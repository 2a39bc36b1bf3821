package query

import (
	"fmt"
	"strings"
)

// TermQuery 精确匹配
type TermQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func Term(field string, value any) *TermQuery {
	return &TermQuery{Field: field, Value: value}
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) ToSQL() (string, []any, error) {
	if err := checkField(q.Field); err != nil {
		return "", nil, err
	}
	if q.Value == nil {
		return fmt.Sprintf("%s IS NULL", q.Field), nil, nil
	}
	return fmt.Sprintf("%s = ?", q.Field), []any{q.Value}, nil
}

// TermsQuery 匹配任意一个值
type TermsQuery struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
}

func Terms(field string, values ...any) *TermsQuery {
	return &TermsQuery{Field: field, Values: values}
}

func (q *TermsQuery) Type() QueryType {
	return QueryTypeTerms
}

func (q *TermsQuery) ToSQL() (string, []any, error) {
	if err := checkField(q.Field); err != nil {
		return "", nil, err
	}
	if len(q.Values) == 0 {
		return "1=0", nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Values)), ",")
	return fmt.Sprintf("%s IN (%s)", q.Field, placeholders), append([]any(nil), q.Values...), nil
}
