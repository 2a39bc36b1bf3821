package rdb

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type article struct {
	Tracked

	ID        string  `rdb:"id"`
	Title     string  `rdb:"title"`
	Views     int64   `rdb:"views"`
	Published bool    `rdb:"published"`
	Body      string  `rdb:"body"`
	CreatedAt float64 `rdb:"createdAt"`
}

func articleFields() []Field {
	seq := 0
	return []Field{
		StringField("id").Type("varchar(50)").Key().DefaultRule(Generator(func() string {
			seq++
			return fmt.Sprintf("a%04d", seq)
		})),
		StringField("title"),
		IntegerField("views").DefaultValue(0),
		BooleanField("published"),
		TextField("body"),
		FloatField("createdAt").Type("double precision").DefaultRule(Generator(func() float64 {
			return float64(time.Now().UnixNano()) / 1e9
		})),
	}
}

type containerSpec struct {
	image   string
	port    nat.Port
	env     map[string]string
	driver  string
	waitDSN func(host string, port nat.Port) string
}

// startDatabase 启动数据库容器，docker 不可用时跳过
func startDatabase(ctx context.Context, t *testing.T, spec containerSpec) (string, int) {
	t.Helper()
	if testing.Short() {
		t.Skip("skip integration in short mode")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        spec.image,
			ExposedPorts: []string{string(spec.port)},
			Env:          spec.env,
			WaitingFor:   wait.ForSQL(spec.port, spec.driver, spec.waitDSN).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("skip integration: cannot start %s container: %v", spec.image, err)
	}
	t.Cleanup(func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, spec.port)
	require.NoError(t, err)
	port, err := strconv.Atoi(mapped.Port())
	require.NoError(t, err)
	return host, port
}

func TestIntegrationMySQL(t *testing.T) {
	ctx := context.Background()
	host, port := startDatabase(ctx, t, containerSpec{
		image: "mysql:8",
		port:  "3306/tcp",
		env: map[string]string{
			"MYSQL_ROOT_PASSWORD": "root",
			"MYSQL_DATABASE":      "orm",
		},
		driver: "mysql",
		waitDSN: func(host string, port nat.Port) string {
			return fmt.Sprintf("root:root@tcp(%s:%s)/orm", host, port.Port())
		},
	})

	runModelSuite(ctx, t, &PoolOptions{
		Driver: "mysql", Host: host, Port: port, User: "root", Password: "root",
		Database: "orm", Charset: "utf8mb4", MinPoolSize: 2, MaxPoolSize: 5,
	})
}

func TestIntegrationPostgres(t *testing.T) {
	ctx := context.Background()
	host, port := startDatabase(ctx, t, containerSpec{
		image: "postgres:16-alpine",
		port:  "5432/tcp",
		env: map[string]string{
			"POSTGRES_PASSWORD": "postgres",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_DB":       "orm",
		},
		driver: "pgx",
		waitDSN: func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://postgres:postgres@%s:%s/orm?sslmode=disable", host, port.Port())
		},
	})

	runModelSuite(ctx, t, &PoolOptions{
		Driver: "pgx", Host: host, Port: port, User: "postgres", Password: "postgres",
		Database: "orm", MinPoolSize: 2, MaxPoolSize: 5,
	})
}

// runModelSuite 在真实数据库上跑一遍实体的增删改查，两种方言共用
func runModelSuite(ctx context.Context, t *testing.T, options *PoolOptions) {
	pool, err := NewPoolWithOptions(ctx, options)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.Equal(t, 2, pool.Stats().Idle)

	exec := NewExecutor(pool)
	schema, err := RegisterEntity[article](NewRegistry(), "articles", articleFields()...)
	require.NoError(t, err)
	_, err = exec.Write(ctx, schema.CreateTableSQL(), nil)
	require.NoError(t, err)
	m := MustNewModel[article](exec, schema)

	first := &article{Title: "hello", Body: "it's a '?' literal", Published: true}
	require.NoError(t, m.Save(ctx, first))
	time.Sleep(5 * time.Millisecond)
	second := &article{Title: "world", Views: 3}
	require.NoError(t, m.Save(ctx, second))
	require.NotEqual(t, first.ID, second.ID)

	got, err := m.FindByKey(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Title)
	require.Equal(t, "it's a '?' literal", got.Body)
	require.True(t, got.Published)
	require.InDelta(t, first.CreatedAt, got.CreatedAt, 1e-3)

	latest, err := m.FindAll(ctx, OrderBy("createdAt desc"), LimitCount(1))
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, second.ID, latest[0].ID)

	n, err := m.Count(ctx, "count(id)", Where("views > ?", 1))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	second.Views = 10
	require.NoError(t, m.Update(ctx, second))
	n, err = m.Count(ctx, "sum(views)")
	require.NoError(t, err)
	require.EqualValues(t, 10, n)

	// 事务模式下主键冲突回滚，行数不变
	_, err = exec.Write(ctx, schema.InsertSQL(), []any{first.ID, "dup", 0, false, "", 0.0}, WithAutocommit(false))
	require.Error(t, err)
	n, err = m.Count(ctx, "count(id)")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.NoError(t, m.Remove(ctx, first.ID))
	_, err = m.FindByKey(ctx, first.ID)
	require.ErrorIs(t, err, ErrRecordNotFound)
	require.Equal(t, 0, pool.Stats().InUse)
}
