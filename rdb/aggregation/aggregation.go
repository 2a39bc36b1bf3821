package aggregation

import (
	"fmt"
	"regexp"
	"strings"
)

// AggregationType 聚合类型
type AggregationType string

const (
	AggTypeSum   AggregationType = "sum"
	AggTypeAvg   AggregationType = "avg"
	AggTypeMax   AggregationType = "max"
	AggTypeMin   AggregationType = "min"
	AggTypeCount AggregationType = "count"
)

// Aggregation 单行单列的聚合表达式
type Aggregation interface {
	Type() AggregationType
	Name() string

	// ToSQL 渲染为 select 列表中的表达式，不带别名
	// 表达式中的 ? 按顺序绑定返回的参数，排在过滤条件的参数之前
	ToSQL() (string, []any, error)
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// MetricAggregation 指标聚合基础结构
type MetricAggregation struct {
	AggName  string
	Field    string
	Distinct bool
}

func (m *MetricAggregation) Name() string {
	return m.AggName
}

func (m *MetricAggregation) render(fn string) (string, []any, error) {
	if !identRe.MatchString(m.Field) {
		return "", nil, fmt.Errorf("invalid field name %q", m.Field)
	}
	if m.Distinct {
		return fmt.Sprintf("%s(DISTINCT %s)", fn, m.Field), nil, nil
	}
	return fmt.Sprintf("%s(%s)", fn, m.Field), nil, nil
}

func newMetric(typ AggregationType, field string) MetricAggregation {
	return MetricAggregation{AggName: string(typ) + "_" + strings.ReplaceAll(field, ".", "_"), Field: field}
}
