package rdb

import (
	"context"
	"database/sql"
	"reflect"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/hatlonely/orm/rdb/aggregation"
	"github.com/hatlonely/orm/rdb/query"
)

// EntityState 实体实例的生命周期状态
type EntityState int

const (
	StateNew EntityState = iota
	StatePersisted
	StateRemoved
)

func (s EntityState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StatePersisted:
		return "persisted"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Tracked 嵌入到实体结构体中记录生命周期状态
type Tracked struct {
	state EntityState
}

func (t *Tracked) EntityState() EntityState { return t.state }

func (t *Tracked) tracked() *Tracked { return t }

// Entity 嵌入了 Tracked 的结构体指针
type Entity interface {
	EntityState() EntityState
	tracked() *Tracked
}

// Model 某个实体类型上的增删改查
type Model[T any, PT interface {
	*T
	Entity
}] struct {
	schema *Schema
	exec   *Executor
}

// NewModel 绑定已注册的 Schema 与执行器
func NewModel[T any, PT interface {
	*T
	Entity
}](exec *Executor, schema *Schema) (*Model[T, PT], error) {
	if exec == nil {
		return nil, errors.New("executor is nil")
	}
	if schema == nil || schema.binding == nil {
		return nil, errors.New("schema is not registered")
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if schema.binding.typ != typ {
		return nil, errors.Errorf("schema %s is registered for %s, not %s", schema.table, schema.binding.typ, typ)
	}
	return &Model[T, PT]{schema: schema, exec: exec}, nil
}

func MustNewModel[T any, PT interface {
	*T
	Entity
}](exec *Executor, schema *Schema) *Model[T, PT] {
	m, err := NewModel[T, PT](exec, schema)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Model[T, PT]) Schema() *Schema { return m.schema }

func (m *Model[T, PT]) Executor() *Executor { return m.exec }

// FindOptions findAll 的可选条件，组合顺序固定为 select -> where -> order by -> limit
type FindOptions struct {
	Fields  string
	Where   string
	Args    []any
	OrderBy string
	Limit   *Limit

	err error
}

// Limit 行数限制，Offset 为 nil 时只限制行数
type Limit struct {
	Offset *int
	Count  int
}

type FindOption func(*FindOptions)

// Select 替换查询的列
func Select(fields ...string) FindOption {
	return func(o *FindOptions) {
		o.Fields = strings.Join(fields, ",")
	}
}

// Where 过滤条件，参数使用 ? 占位
func Where(clause string, args ...any) FindOption {
	return func(o *FindOptions) {
		o.Where = clause
		o.Args = args
	}
}

// WhereQuery 由查询树渲染过滤条件
func WhereQuery(q query.Query) FindOption {
	return func(o *FindOptions) {
		clause, args, err := q.ToSQL()
		if err != nil {
			o.err = errors.Wrap(ErrInvalidCondition, err.Error())
			return
		}
		o.Where = clause
		o.Args = args
	}
}

func OrderBy(expr string) FindOption {
	return func(o *FindOptions) {
		o.OrderBy = expr
	}
}

func LimitCount(count int) FindOption {
	return func(o *FindOptions) {
		o.Limit = &Limit{Count: count}
	}
}

func LimitOffset(offset, count int) FindOption {
	return func(o *FindOptions) {
		o.Limit = &Limit{Offset: &offset, Count: count}
	}
}

func (o *FindOptions) compose(base string) (string, []any, error) {
	if o.err != nil {
		return "", nil, o.err
	}
	var b strings.Builder
	b.WriteString(base)
	args := append([]any(nil), o.Args...)
	if o.Where != "" {
		b.WriteString(" where ")
		b.WriteString(o.Where)
	}
	if o.OrderBy != "" {
		b.WriteString(" order by ")
		b.WriteString(o.OrderBy)
	}
	if o.Limit != nil {
		if o.Limit.Count < 0 || (o.Limit.Offset != nil && *o.Limit.Offset < 0) {
			return "", nil, errors.Wrap(ErrInvalidCondition, "invalid limit")
		}
		b.WriteString(" limit ?")
		args = append(args, o.Limit.Count)
		if o.Limit.Offset != nil {
			b.WriteString(" offset ?")
			args = append(args, *o.Limit.Offset)
		}
	}
	return b.String(), args, nil
}

func newFindOptions(opts []FindOption) *FindOptions {
	o := &FindOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// materialize 读取实体，列值由驱动直接写入 rdb 标签对应的字段
func (m *Model[T, PT]) materialize(ctx context.Context, stmt string, args []any, opts ...ReadOption) ([]*T, error) {
	entities, err := ReadStructs[T](ctx, m.exec, stmt, args, opts...)
	if err != nil {
		return nil, errors.WithMessagef(err, "materialize %s", m.schema.table)
	}
	for _, e := range entities {
		PT(e).tracked().state = StatePersisted
	}
	return entities, nil
}

// FindByKey 按主键查询，不存在返回 ErrRecordNotFound
func (m *Model[T, PT]) FindByKey(ctx context.Context, pk any) (*T, error) {
	stmt := m.schema.selectSQL + " where " + m.schema.primaryKey.Name + "=?"
	entities, err := m.materialize(ctx, stmt, []any{pk}, WithMaxRows(2))
	if err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, errors.WithStack(ErrRecordNotFound)
	case 1:
		return entities[0], nil
	default:
		return nil, newPersistenceError(m.schema.table, MsgAmbiguousKey, int64(len(entities)))
	}
}

// FindAll 按条件查询多行
func (m *Model[T, PT]) FindAll(ctx context.Context, opts ...FindOption) ([]*T, error) {
	o := newFindOptions(opts)
	base := m.schema.selectSQL
	if o.Fields != "" {
		base = "select " + o.Fields + " from " + m.schema.table
	}
	stmt, args, err := o.compose(base)
	if err != nil {
		return nil, err
	}
	return m.materialize(ctx, stmt, args)
}

// Count 单行单列的聚合查询，如 count(id)，没有结果或结果为 NULL 时返回 0
// opts 中只有过滤条件生效
func (m *Model[T, PT]) Count(ctx context.Context, aggregate string, opts ...FindOption) (int64, error) {
	value, err := m.scalar(ctx, aggregate, nil, opts)
	if err != nil {
		return 0, err
	}
	return int64(value), nil
}

// Aggregate 与 Count 相同，聚合表达式由 aggregation 渲染，表达式的参数排在过滤条件参数之前
func (m *Model[T, PT]) Aggregate(ctx context.Context, agg aggregation.Aggregation, opts ...FindOption) (float64, error) {
	expr, args, err := agg.ToSQL()
	if err != nil {
		return 0, errors.Wrap(ErrInvalidCondition, err.Error())
	}
	value, err := m.scalar(ctx, expr, args, opts)
	if err != nil {
		return 0, errors.WithMessagef(err, "aggregate %s on %s", agg.Name(), m.schema.table)
	}
	return value, nil
}

func (m *Model[T, PT]) scalar(ctx context.Context, expr string, exprArgs []any, opts []FindOption) (float64, error) {
	o := newFindOptions(opts)
	filter := &FindOptions{
		Where: o.Where,
		Args:  append(append([]any(nil), exprArgs...), o.Args...),
		err:   o.err,
	}
	stmt, args, err := filter.compose("select " + expr + " as _num_ from " + m.schema.table)
	if err != nil {
		return 0, err
	}

	var value sql.NullFloat64
	err = m.exec.query(ctx, stmt, args, []ReadOption{WithMaxRows(1)}, func(rows *sqlx.Rows, maxRows int) (int64, error) {
		return eachRow(rows, maxRows, func() error {
			return rows.Scan(&value)
		})
	})
	if err != nil {
		return 0, err
	}
	return value.Float64, nil
}

// Save 插入一行，未设置的字段按缺省规则补齐，生成函数每个字段只调用一次
func (m *Model[T, PT]) Save(ctx context.Context, e *T) error {
	t := PT(e).tracked()
	if t.state == StateRemoved {
		return newPersistenceError(m.schema.table, MsgStaleEntity, 0)
	}

	v := reflect.ValueOf(e).Elem()
	b := m.schema.binding
	for _, f := range m.schema.allFields() {
		if !f.Default.IsSet() || !b.isZero(v, f.Name) {
			continue
		}
		if err := b.set(v, f.Name, f.Default.Resolve()); err != nil {
			return errors.WithMessagef(err, "resolve default of %s.%s", m.schema.table, f.Name)
		}
	}

	affected, err := m.exec.Write(ctx, m.schema.insertSQL, b.values(v, m.schema.Columns()))
	if err != nil {
		return err
	}
	if affected != 1 {
		return newPersistenceError(m.schema.table, MsgUnexpectedAffectedRows, affected)
	}
	t.state = StatePersisted
	return nil
}

// Update 用实例当前的非主键字段覆盖对应行
// 不会先读取再比较，并发修改同一行时后写入者覆盖先写入者
func (m *Model[T, PT]) Update(ctx context.Context, e *T) error {
	if PT(e).tracked().state == StateRemoved {
		return newPersistenceError(m.schema.table, MsgStaleEntity, 0)
	}
	if m.schema.updateSQL == "" {
		return newPersistenceError(m.schema.table, MsgNothingToUpdate, 0)
	}

	v := reflect.ValueOf(e).Elem()
	args := m.schema.binding.values(v, append(m.schema.Fields(), m.schema.primaryKey.Name))
	affected, err := m.exec.Write(ctx, m.schema.updateSQL, args)
	if err != nil {
		return err
	}
	if affected != 1 {
		return newPersistenceError(m.schema.table, MsgNoSuchRow, affected)
	}
	PT(e).tracked().state = StatePersisted
	return nil
}

// Remove 按主键删除一行
func (m *Model[T, PT]) Remove(ctx context.Context, pk any) error {
	affected, err := m.exec.Write(ctx, m.schema.deleteSQL, []any{pk})
	if err != nil {
		return err
	}
	if affected != 1 {
		return newPersistenceError(m.schema.table, MsgNoSuchRow, affected)
	}
	return nil
}

// Delete 删除实例对应的行，之后该实例不能再用于 Save/Update/Delete
func (m *Model[T, PT]) Delete(ctx context.Context, e *T) error {
	t := PT(e).tracked()
	if t.state == StateRemoved {
		return newPersistenceError(m.schema.table, MsgStaleEntity, 0)
	}
	pk := m.schema.binding.field(reflect.ValueOf(e).Elem(), m.schema.primaryKey.Name).Interface()
	if err := m.Remove(ctx, pk); err != nil {
		return err
	}
	t.state = StateRemoved
	return nil
}
