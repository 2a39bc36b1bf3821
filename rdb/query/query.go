package query

import (
	"fmt"
	"regexp"
)

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool     QueryType = "bool"
	QueryTypeTerm     QueryType = "term"
	QueryTypeTerms    QueryType = "terms"
	QueryTypeRange    QueryType = "range"
	QueryTypeExists   QueryType = "exists"
	QueryTypeWildcard QueryType = "wildcard"
	QueryTypePrefix   QueryType = "prefix"
)

// Query 查询节点，渲染为使用 ? 占位的 where 片段
type Query interface {
	Type() QueryType
	ToSQL() (string, []any, error)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// checkField 字段名会直接拼进语句，只允许标识符
func checkField(field string) error {
	if !identRe.MatchString(field) {
		return fmt.Errorf("invalid field name %q", field)
	}
	return nil
}
