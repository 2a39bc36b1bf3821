package rdb

import (
	"github.com/jmoiron/sqlx"
)

// Record 一行查询结果，保留列顺序
type Record struct {
	columns []string
	values  map[string]any
}

func NewRecord(columns []string, values []any) *Record {
	r := &Record{columns: columns, values: make(map[string]any, len(columns))}
	for i, column := range columns {
		if i < len(values) {
			r.values[column] = values[i]
		}
	}
	return r
}

func (r *Record) Columns() []string { return r.columns }

func (r *Record) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Fields 列名到值的映射
func (r *Record) Fields() map[string]any {
	fields := make(map[string]any, len(r.values))
	for k, v := range r.values {
		fields[k] = v
	}
	return fields
}

// eachRow 逐行调用 fn，maxRows > 0 时读满 maxRows 行后不再向驱动取下一行
func eachRow(rows *sqlx.Rows, maxRows int, fn func() error) (int64, error) {
	var n int64
	for maxRows <= 0 || n < int64(maxRows) {
		if !rows.Next() {
			break
		}
		if err := fn(); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// scanRecords 读取结果集，[]byte 统一转为 string
func scanRecords(rows *sqlx.Rows, maxRows int) ([]*Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []*Record
	_, err = eachRow(rows, maxRows, func() error {
		row := make(map[string]any, len(columns))
		if err := rows.MapScan(row); err != nil {
			return err
		}
		values := make([]any, len(columns))
		for i, column := range columns {
			values[i] = row[column]
			if b, ok := values[i].([]byte); ok {
				values[i] = string(b)
			}
		}
		records = append(records, NewRecord(columns, values))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scanStructs 每行按列名写入一个新的 T
func scanStructs[T any](rows *sqlx.Rows, maxRows int) ([]*T, error) {
	var out []*T
	_, err := eachRow(rows, maxRows, func() error {
		v := new(T)
		if err := rows.StructScan(v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
