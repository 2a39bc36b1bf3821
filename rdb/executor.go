package rdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatlonely/orm/cfg"
	"github.com/hatlonely/orm/log"
)

// ExecutorOptions 执行器观测配置
type ExecutorOptions struct {
	// Name 用作指标前缀、日志 component 字段与 tracer 名
	Name string `cfg:"name" def:"rdb"`

	EnableMetrics bool `cfg:"enableMetrics"`
	EnableTracing bool `cfg:"enableTracing"`

	// SlowThreshold 超过该耗时的语句以 warn 级别记录
	SlowThreshold time.Duration `cfg:"slowThreshold" def:"1s"`
}

type ExecutorOption func(*Executor)

func WithLogger(logger log.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRegisterer 指标注册位置，默认 prometheus.DefaultRegisterer
func WithRegisterer(reg prometheus.Registerer) ExecutorOption {
	return func(e *Executor) {
		e.registerer = reg
	}
}

// WithTracerProvider 链路上报位置，默认使用 otel 全局 TracerProvider
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *Executor) {
		e.tracerProvider = tp
	}
}

// Executor 借出连接、绑定参数、执行并归还连接
type Executor struct {
	pool *Pool

	name          string
	slowThreshold time.Duration
	logger        log.Logger
	registerer    prometheus.Registerer
	metrics       *Metrics

	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
}

func NewExecutorWithOptions(pool *Pool, options *ExecutorOptions, opts ...ExecutorOption) (*Executor, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if options == nil {
		options = &ExecutorOptions{}
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "set executor defaults failed")
	}

	e := &Executor{
		pool:          pool,
		name:          options.Name,
		slowThreshold: options.SlowThreshold,
		logger:        log.Discard(),
		registerer:    prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", options.Name)

	if options.EnableMetrics {
		m, err := NewMetrics(options.Name, pool, e.registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create metrics")
		}
		e.metrics = m
	}
	if options.EnableTracing {
		if e.tracerProvider == nil {
			e.tracerProvider = otel.GetTracerProvider()
		}
		e.tracer = e.tracerProvider.Tracer(fmt.Sprintf("rdb.%s", options.Name))
	}
	return e, nil
}

// NewExecutor 使用缺省配置创建执行器，不采集指标和链路
func NewExecutor(pool *Pool, opts ...ExecutorOption) *Executor {
	e, err := NewExecutorWithOptions(pool, &ExecutorOptions{}, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Executor) Pool() *Pool { return e.pool }

type readOptions struct {
	maxRows int
}

type ReadOption func(*readOptions)

// WithMaxRows 最多读取 n 行，由驱动逐行读取时截断，不改写语句
func WithMaxRows(n int) ReadOption {
	return func(o *readOptions) {
		o.maxRows = n
	}
}

type writeOptions struct {
	autocommit *bool
}

type WriteOption func(*writeOptions)

// WithAutocommit 覆盖连接池的缺省写入模式
func WithAutocommit(autocommit bool) WriteOption {
	return func(o *writeOptions) {
		o.autocommit = &autocommit
	}
}

// bind 校验占位符数量并改写为驱动写法，参数值不会进入语句文本
func (e *Executor) bind(query string, args []any) (string, error) {
	stmt, n, ok := rebind(e.pool.bindType, query)
	if !ok {
		return "", errors.WithStack(&QueryError{
			SQL: query,
			Msg: fmt.Sprintf("placeholder inside quoted text or comment is not supported by driver %s", e.pool.driver),
		})
	}
	if n != len(args) {
		return "", errors.WithStack(&QueryError{
			SQL: query,
			Msg: fmt.Sprintf("placeholder count mismatch: %d placeholders, %d params", n, len(args)),
		})
	}
	return stmt, nil
}

// query 借出连接执行只读语句，scan 在归还连接前读取结果集并返回行数
func (e *Executor) query(ctx context.Context, query string, args []any, opts []ReadOption, scan func(rows *sqlx.Rows, maxRows int) (int64, error)) error {
	o := &readOptions{}
	for _, opt := range opts {
		opt(o)
	}

	stmt, err := e.bind(query, args)
	if err != nil {
		return err
	}

	return e.observe(ctx, "read", query, len(args), func(ctx context.Context) (int64, error) {
		var n int64
		err := e.pool.WithConn(ctx, func(conn *Conn) error {
			rows, err := conn.conn.QueryxContext(ctx, stmt, args...)
			if err != nil {
				return &QueryError{SQL: query, Err: err}
			}
			defer rows.Close()
			n, err = scan(rows, o.maxRows)
			if err != nil {
				return &QueryError{SQL: query, Err: err}
			}
			return nil
		})
		return n, err
	})
}

// Read 执行只读语句，返回按列名映射的行
func (e *Executor) Read(ctx context.Context, query string, args []any, opts ...ReadOption) ([]*Record, error) {
	var records []*Record
	err := e.query(ctx, query, args, opts, func(rows *sqlx.Rows, maxRows int) (int64, error) {
		var err error
		records, err = scanRecords(rows, maxRows)
		return int64(len(records)), err
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadStructs 与 Read 相同，每行按 rdb 标签写入一个 T，列值由驱动直接转换为字段类型
// 结果中多余的列忽略，NULL 列需要使用 sql.Null* 或指针字段
func ReadStructs[T any](ctx context.Context, e *Executor, query string, args []any, opts ...ReadOption) ([]*T, error) {
	var out []*T
	err := e.query(ctx, query, args, opts, func(rows *sqlx.Rows, maxRows int) (int64, error) {
		var err error
		out, err = scanStructs[T](rows, maxRows)
		return int64(len(out)), err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Write 执行写语句，返回影响行数
// 非自动提交模式下在显式事务中执行，失败先回滚再返回原始错误
func (e *Executor) Write(ctx context.Context, query string, args []any, opts ...WriteOption) (int64, error) {
	o := &writeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	autocommit := e.pool.Autocommit()
	if o.autocommit != nil {
		autocommit = *o.autocommit
	}

	stmt, err := e.bind(query, args)
	if err != nil {
		return 0, err
	}

	var affected int64
	err = e.observe(ctx, "write", query, len(args), func(ctx context.Context) (int64, error) {
		err := e.pool.WithConn(ctx, func(conn *Conn) error {
			var err error
			if autocommit {
				affected, err = execAutocommit(ctx, conn, query, stmt, args)
			} else {
				affected, err = execInTx(ctx, conn, query, stmt, args)
			}
			return err
		})
		return affected, err
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func execAutocommit(ctx context.Context, conn *Conn, query, stmt string, args []any) (int64, error) {
	res, err := conn.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, &QueryError{SQL: query, Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, &QueryError{SQL: query, Err: err}
	}
	return affected, nil
}

// rollbackTx 单独提出便于测试注入回滚失败
var rollbackTx = func(tx *sql.Tx) error {
	return tx.Rollback()
}

func execInTx(ctx context.Context, conn *Conn, query, stmt string, args []any) (affected int64, err error) {
	tx, err := conn.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, &TransactionError{Op: "begin", Err: err}
	}

	done := false
	defer func() {
		if done {
			return
		}
		if p := recover(); p != nil {
			_ = rollbackTx(tx)
			panic(p)
		}
	}()

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err == nil {
		affected, err = res.RowsAffected()
	}
	if err != nil {
		done = true
		qerr := &QueryError{SQL: query, Err: err}
		// ctx 取消时 database/sql 已自动回滚，此时 ErrTxDone 不算回滚失败
		if rerr := rollbackTx(tx); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			return 0, &TransactionError{Op: "rollback", Err: rerr, Cause: qerr}
		}
		return 0, qerr
	}

	done = true
	if err := tx.Commit(); err != nil {
		return 0, &TransactionError{Op: "commit", Err: err}
	}
	return affected, nil
}

// observe 统一记录日志、指标和链路，日志只包含语句和参数个数
func (e *Executor) observe(ctx context.Context, operation, query string, params int, fn func(context.Context) (int64, error)) error {
	start := time.Now()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, fmt.Sprintf("rdb.%s", operation),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("component", e.name),
				attribute.String("db.system", e.pool.driver),
				attribute.String("db.statement", query),
				attribute.Int("db.params", params),
			),
		)
		defer span.End()
	}

	if e.metrics != nil {
		e.metrics.activeStatements.WithLabelValues(operation).Inc()
		defer e.metrics.activeStatements.WithLabelValues(operation).Dec()
	}

	rows, err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("db.rows", rows))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		e.metrics.statementCounter.WithLabelValues(operation, status).Inc()
		e.metrics.statementDuration.WithLabelValues(operation).Observe(duration.Seconds())
		if err == nil {
			e.metrics.rowsHistogram.WithLabelValues(operation).Observe(float64(rows))
		}
	}

	attrs := []any{"sql", query, "params", params, "rows", rows, "duration", duration}
	switch {
	case err != nil:
		e.logger.ErrorContext(ctx, "statement failed", append(attrs, "error", err)...)
	case e.slowThreshold > 0 && duration > e.slowThreshold:
		e.logger.WarnContext(ctx, "slow statement", attrs...)
	default:
		e.logger.InfoContext(ctx, "statement", attrs...)
	}

	if err != nil {
		return errors.WithStack(err)
	}
	return nil
}
