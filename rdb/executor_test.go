package rdb

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hatlonely/orm/log"
)

func newTestExecutor(t *testing.T, pool *Pool, opts ...ExecutorOption) *Executor {
	t.Helper()
	exec := NewExecutor(pool, opts...)
	_, err := exec.Write(context.Background(), "create table if not exists items (id varchar(50) not null primary key, name varchar(100), qty bigint)", nil)
	if err != nil {
		t.Fatalf("create table error = %v", err)
	}
	return exec
}

func countItems(exec *Executor) int64 {
	records, err := exec.Read(context.Background(), "select count(*) as n from items", nil)
	So(err, ShouldBeNil)
	n, _ := records[0].Get("n")
	return n.(int64)
}

func TestExecutorRead(t *testing.T) {
	Convey("测试读语句", t, func() {
		ctx := context.Background()
		exec := newTestExecutor(t, newTestPool(t, nil))
		for _, id := range []string{"a", "b", "c"} {
			_, err := exec.Write(ctx, "insert into items(id,name,qty) values (?,?,?)", []any{id, "item-" + id, 1})
			So(err, ShouldBeNil)
		}

		Convey("按列名返回并保留列顺序", func() {
			records, err := exec.Read(ctx, "select qty,id,name from items where id=?", []any{"b"})
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			So(records[0].Columns(), ShouldResemble, []string{"qty", "id", "name"})
			name, ok := records[0].Get("name")
			So(ok, ShouldBeTrue)
			So(name, ShouldEqual, "item-b")
			So(records[0].Fields(), ShouldResemble, map[string]any{"qty": int64(1), "id": "b", "name": "item-b"})
		})

		Convey("按 rdb 标签读入结构体", func() {
			type Audit struct {
				Qty int64 `rdb:"qty"`
			}
			type item struct {
				Audit
				ID   string `rdb:"id"`
				Name string `rdb:"name"`
			}
			items, err := ReadStructs[item](ctx, exec, "select id, name, qty, 'x' as extra from items order by id", nil)
			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 3)
			So(items[1].ID, ShouldEqual, "b")
			So(items[1].Name, ShouldEqual, "item-b")
			So(items[1].Qty, ShouldEqual, 1)

			items, err = ReadStructs[item](ctx, exec, "select id from items order by id", nil, WithMaxRows(1))
			So(err, ShouldBeNil)
			So(items, ShouldHaveLength, 1)
			So(exec.Pool().Stats().InUse, ShouldEqual, 0)
		})

		Convey("最多读取 maxRows 行", func() {
			records, err := exec.Read(ctx, "select id from items order by id", nil, WithMaxRows(2))
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 2)

			records, err = exec.Read(ctx, "select id from items", nil)
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 3)

			// 第三行求值时溢出报错，读满两行后不再向驱动取下一行
			overflow := "select id, abs(case when id = 'c' then -9223372036854775808 else qty end) as n from items"
			records, err = exec.Read(ctx, overflow, nil, WithMaxRows(2))
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 2)
			_, err = exec.Read(ctx, overflow, nil)
			So(err, ShouldNotBeNil)
		})

		Convey("占位符与参数个数不一致时不执行", func() {
			_, err := exec.Read(ctx, "select id from items where id=? and name=?", []any{"a"})
			var qe *QueryError
			So(errors.As(err, &qe), ShouldBeTrue)
			So(qe.Msg, ShouldContainSubstring, "placeholder count mismatch")
			So(qe.Err, ShouldBeNil)
		})

		Convey("语法错误返回 QueryError", func() {
			_, err := exec.Read(ctx, "select id form items", nil)
			var qe *QueryError
			So(errors.As(err, &qe), ShouldBeTrue)
			So(qe.SQL, ShouldEqual, "select id form items")
			So(exec.Pool().Stats().InUse, ShouldEqual, 0)
		})

		Convey("ctx 取消后连接仍然归还", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := exec.Read(cancelled, "select id from items", nil)
			So(err, ShouldNotBeNil)
			So(exec.Pool().Stats().InUse, ShouldEqual, 0)
		})
	})
}

func TestExecutorWrite(t *testing.T) {
	Convey("测试写语句", t, func() {
		ctx := context.Background()
		exec := newTestExecutor(t, newTestPool(t, nil))
		_, err := exec.Write(ctx, "insert into items(id,name,qty) values (?,?,?)", []any{"a", "apple", 1})
		So(err, ShouldBeNil)

		Convey("返回影响行数", func() {
			affected, err := exec.Write(ctx, "update items set qty=qty+1 where id=?", []any{"a"})
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 1)

			affected, err = exec.Write(ctx, "update items set qty=qty+1 where id=?", []any{"missing"})
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 0)
		})

		Convey("事务模式下成功提交", func() {
			affected, err := exec.Write(ctx, "insert into items(id,name,qty) values (?,?,?)", []any{"b", "banana", 2}, WithAutocommit(false))
			So(err, ShouldBeNil)
			So(affected, ShouldEqual, 1)
			So(countItems(exec), ShouldEqual, 2)
		})

		Convey("事务模式下失败回滚且行数不变", func() {
			_, err := exec.Write(ctx, "insert into items(id,name,qty) values (?,?,?)", []any{"a", "dup", 1}, WithAutocommit(false))
			var qe *QueryError
			So(errors.As(err, &qe), ShouldBeTrue)
			var te *TransactionError
			So(errors.As(err, &te), ShouldBeFalse)
			So(countItems(exec), ShouldEqual, 1)
			So(exec.Pool().Stats().InUse, ShouldEqual, 0)
		})

		Convey("回滚失败时同时保留两个错误", func() {
			original := rollbackTx
			rollbackTx = func(tx *sql.Tx) error {
				_ = tx.Rollback()
				return errors.New("rollback broken")
			}
			defer func() { rollbackTx = original }()

			_, err := exec.Write(ctx, "insert into items(id,name,qty) values (?,?,?)", []any{"a", "dup", 1}, WithAutocommit(false))
			var te *TransactionError
			So(errors.As(err, &te), ShouldBeTrue)
			So(te.Op, ShouldEqual, "rollback")
			So(te.Err.Error(), ShouldEqual, "rollback broken")
			var qe *QueryError
			So(errors.As(err, &qe), ShouldBeTrue)
			So(countItems(exec), ShouldEqual, 1)
		})
	})
}

func TestExecutorObservability(t *testing.T) {
	Convey("测试日志、指标与链路", t, func() {
		ctx := context.Background()
		pool := newTestPool(t, nil)

		var buf bytes.Buffer
		logger, err := log.NewLogWithWriter(&buf, "info")
		So(err, ShouldBeNil)
		reg := prometheus.NewRegistry()
		recorder := tracetest.NewSpanRecorder()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

		exec, err := NewExecutorWithOptions(pool, &ExecutorOptions{
			Name:          "blog",
			EnableMetrics: true,
			EnableTracing: true,
		}, WithLogger(logger), WithRegisterer(reg), WithTracerProvider(tp))
		So(err, ShouldBeNil)

		_, err = exec.Write(ctx, "create table items (id varchar(50) primary key, secret varchar(50))", nil)
		So(err, ShouldBeNil)
		_, err = exec.Write(ctx, "insert into items(id,secret) values (?,?)", []any{"a", "p4ssw0rd"})
		So(err, ShouldBeNil)
		_, err = exec.Read(ctx, "select * from items", nil)
		So(err, ShouldBeNil)
		_, err = exec.Read(ctx, "select * from nothing", nil)
		So(err, ShouldNotBeNil)

		Convey("日志只记录语句和参数个数", func() {
			out := buf.String()
			So(out, ShouldContainSubstring, "component=blog")
			So(out, ShouldContainSubstring, `sql="insert into items(id,secret) values (?,?)"`)
			So(out, ShouldContainSubstring, "params=2")
			So(out, ShouldContainSubstring, "statement failed")
			So(out, ShouldNotContainSubstring, "p4ssw0rd")
		})

		Convey("指标按操作和结果计数", func() {
			So(testutil.ToFloat64(exec.metrics.statementCounter.WithLabelValues("write", "success")), ShouldEqual, 2)
			So(testutil.ToFloat64(exec.metrics.statementCounter.WithLabelValues("read", "success")), ShouldEqual, 1)
			So(testutil.ToFloat64(exec.metrics.statementCounter.WithLabelValues("read", "error")), ShouldEqual, 1)

			families, err := reg.Gather()
			So(err, ShouldBeNil)
			var names []string
			for _, f := range families {
				names = append(names, f.GetName())
			}
			So(strings.Join(names, ","), ShouldContainSubstring, "blog_pool_max_open_connections")

			_, err = NewMetrics("blog", pool, reg)
			So(err, ShouldNotBeNil)
		})

		Convey("每条语句一个 span", func() {
			spans := recorder.Ended()
			So(spans, ShouldHaveLength, 4)
			So(spans[0].Name(), ShouldEqual, "rdb.write")
			So(spans[3].Name(), ShouldEqual, "rdb.read")
			So(spans[3].Status().Code.String(), ShouldEqual, "Error")
		})
	})
}

func TestSlowStatement(t *testing.T) {
	Convey("测试慢语句告警", t, func() {
		var buf bytes.Buffer
		logger, _ := log.NewLogWithWriter(&buf, "warn")
		exec, err := NewExecutorWithOptions(newTestPool(t, nil), &ExecutorOptions{SlowThreshold: 1}, WithLogger(logger))
		So(err, ShouldBeNil)

		_, err = exec.Read(context.Background(), "select 1", nil)
		So(err, ShouldBeNil)
		So(buf.String(), ShouldContainSubstring, "slow statement")
	})
}
