package query

import (
	"fmt"
	"strings"
)

// PrefixQuery 前缀匹配，值中的 % 和 _ 按字面匹配
type PrefixQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func Prefix(field, value string) *PrefixQuery {
	return &PrefixQuery{Field: field, Value: value}
}

func (q *PrefixQuery) Type() QueryType {
	return QueryTypePrefix
}

func (q *PrefixQuery) ToSQL() (string, []any, error) {
	if err := checkField(q.Field); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s LIKE ? ESCAPE '!'", q.Field), []any{escapeLike(q.Value) + "%"}, nil
}

// WildcardQuery 通配符匹配，* 匹配任意字符串，? 匹配单个字符
type WildcardQuery struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func Wildcard(field, value string) *WildcardQuery {
	return &WildcardQuery{Field: field, Value: value}
}

func (q *WildcardQuery) Type() QueryType {
	return QueryTypeWildcard
}

func (q *WildcardQuery) ToSQL() (string, []any, error) {
	if err := checkField(q.Field); err != nil {
		return "", nil, err
	}
	pattern := escapeLike(q.Value)
	pattern = strings.ReplaceAll(pattern, "*", "%")
	pattern = strings.ReplaceAll(pattern, "?", "_")
	return fmt.Sprintf("%s LIKE ? ESCAPE '!'", q.Field), []any{pattern}, nil
}

// escapeLike 使用 ! 作为转义符，mysql 与 postgres 对反斜杠字面量的处理不一致
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// ExistsQuery 字段非空
type ExistsQuery struct {
	Field string `json:"field"`
}

func Exists(field string) *ExistsQuery {
	return &ExistsQuery{Field: field}
}

func (q *ExistsQuery) Type() QueryType {
	return QueryTypeExists
}

func (q *ExistsQuery) ToSQL() (string, []any, error) {
	if err := checkField(q.Field); err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("%s IS NOT NULL", q.Field), nil, nil
}
