package aggregation

// CountAggregation 计数聚合，Field 为空时统计行数
type CountAggregation struct {
	MetricAggregation
}

func Count(field string) *CountAggregation {
	if field == "" {
		return &CountAggregation{MetricAggregation{AggName: "count"}}
	}
	return &CountAggregation{newMetric(AggTypeCount, field)}
}

// CountDistinct 去重计数
func CountDistinct(field string) *CountAggregation {
	a := Count(field)
	a.Distinct = true
	return a
}

func (a *CountAggregation) Type() AggregationType {
	return AggTypeCount
}

func (a *CountAggregation) ToSQL() (string, []any, error) {
	if a.Field == "" {
		return "COUNT(*)", nil, nil
	}
	return a.render("COUNT")
}

// SumAggregation 求和聚合
type SumAggregation struct {
	MetricAggregation
}

func Sum(field string) *SumAggregation {
	return &SumAggregation{newMetric(AggTypeSum, field)}
}

func (a *SumAggregation) Type() AggregationType {
	return AggTypeSum
}

func (a *SumAggregation) ToSQL() (string, []any, error) {
	return a.render("SUM")
}

// AvgAggregation 平均值聚合
type AvgAggregation struct {
	MetricAggregation
}

func Avg(field string) *AvgAggregation {
	return &AvgAggregation{newMetric(AggTypeAvg, field)}
}

func (a *AvgAggregation) Type() AggregationType {
	return AggTypeAvg
}

func (a *AvgAggregation) ToSQL() (string, []any, error) {
	return a.render("AVG")
}

type MaxAggregation struct {
	MetricAggregation
}

func Max(field string) *MaxAggregation {
	return &MaxAggregation{newMetric(AggTypeMax, field)}
}

func (a *MaxAggregation) Type() AggregationType {
	return AggTypeMax
}

func (a *MaxAggregation) ToSQL() (string, []any, error) {
	return a.render("MAX")
}

type MinAggregation struct {
	MetricAggregation
}

func Min(field string) *MinAggregation {
	return &MinAggregation{newMetric(AggTypeMin, field)}
}

func (a *MinAggregation) Type() AggregationType {
	return AggTypeMin
}

func (a *MinAggregation) ToSQL() (string, []any, error) {
	return a.render("MIN")
}
