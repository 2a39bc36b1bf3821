package rdb

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/hatlonely/orm/cfg"
	"github.com/hatlonely/orm/log"
)

// PoolOptions 连接池配置
type PoolOptions struct {
	// 驱动：mysql, sqlite3, pgx
	Driver string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 pgx"`
	// 直接指定 DSN 时忽略 Host/Port/User/Password/Database/Charset
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"127.0.0.1"`
	Port     int    `cfg:"port" validate:"gte=0,lte=65535"`
	User     string `cfg:"user"`
	Password string `cfg:"password"`
	Database string `cfg:"database"`
	Charset  string `cfg:"charset" def:"utf8"`

	// 写操作的缺省模式，关闭时每次写入都在显式事务中执行
	Autocommit *bool `cfg:"autocommit" def:"true"`

	MinPoolSize int `cfg:"minPoolSize" def:"1" validate:"gte=0,ltefield=MaxPoolSize"`
	MaxPoolSize int `cfg:"maxPoolSize" def:"10" validate:"gte=1"`

	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime"`
	ConnectTimeout  time.Duration `cfg:"connectTimeout" def:"10s"`
}

type PoolOption func(*Pool)

func WithPoolLogger(logger log.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pool 进程级连接池，由组合根创建并显式关闭
type Pool struct {
	db         *sqlx.DB
	driver     string
	bindType   int
	autocommit bool
	maxSize    int
	logger     log.Logger
	closed     atomic.Bool
}

// NewPoolWithOptions 建立连接池，确认可连接后预热 MinPoolSize 个连接
// 缺省值写入 options 的副本，调用方的配置不会被修改
func NewPoolWithOptions(ctx context.Context, options *PoolOptions, opts ...PoolOption) (*Pool, error) {
	if options == nil {
		return nil, &ConnectionError{Msg: "options cannot be nil"}
	}
	copied := *options
	options = &copied
	if options.Port == 0 {
		switch options.Driver {
		case "pgx":
			options.Port = 5432
		case "mysql", "":
			options.Port = 3306
		}
	}
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "set pool defaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid pool options")
	}

	dsn, err := buildDSN(options)
	if err != nil {
		return nil, &ConnectionError{Msg: "build dsn", Err: err}
	}

	raw, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, &ConnectionError{Msg: "open", Err: err}
	}
	// 结果集中不属于实体的列直接忽略
	db := sqlx.NewDb(raw, options.Driver).Unsafe()
	db.Mapper = columnMapper(options.Driver)
	db.SetMaxOpenConns(options.MaxPoolSize)
	db.SetMaxIdleConns(options.MaxPoolSize)
	if options.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(options.ConnMaxLifetime)
	}

	p := &Pool{
		db:         db,
		driver:     options.Driver,
		bindType:   sqlx.BindType(options.Driver),
		autocommit: *options.Autocommit,
		maxSize:    options.MaxPoolSize,
		logger:     log.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	pingCtx := ctx
	if options.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, options.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Msg: "ping", Err: err}
	}
	if err := p.warmUp(pingCtx, options.MinPoolSize); err != nil {
		_ = db.Close()
		return nil, err
	}

	p.logger.InfoContext(ctx, "pool opened",
		"driver", options.Driver, "host", options.Host, "port", options.Port, "database", options.Database,
		"minPoolSize", options.MinPoolSize, "maxPoolSize", options.MaxPoolSize)
	return p, nil
}

// warmUp 同时持有 n 个连接再全部归还，使其留在空闲队列中
func (p *Pool) warmUp(ctx context.Context, n int) error {
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := p.db.Conn(ctx)
		if err != nil {
			return &ConnectionError{Msg: "warm up", Err: err}
		}
		conns = append(conns, c)
	}
	return nil
}

func buildDSN(options *PoolOptions) (string, error) {
	if options.DSN != "" {
		return options.DSN, nil
	}
	switch options.Driver {
	case "mysql":
		c := mysql.NewConfig()
		c.User = options.User
		c.Passwd = options.Password
		c.Net = "tcp"
		c.Addr = net.JoinHostPort(options.Host, strconv.Itoa(options.Port))
		c.DBName = options.Database
		c.ParseTime = true
		// update 写入相同值时也按匹配行计数
		c.ClientFoundRows = true
		c.Timeout = options.ConnectTimeout
		c.Params = map[string]string{"charset": options.Charset}
		return c.FormatDSN(), nil
	case "sqlite3":
		if options.Database == "" {
			return "", errors.New("sqlite3 requires database path")
		}
		if strings.Contains(options.Database, "?") {
			return options.Database, nil
		}
		return options.Database + "?_busy_timeout=5000", nil
	case "pgx":
		u := &url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(options.Host, strconv.Itoa(options.Port)),
			Path:   "/" + options.Database,
		}
		if options.User != "" {
			u.User = url.UserPassword(options.User, options.Password)
		}
		q := url.Values{}
		q.Set("client_encoding", options.Charset)
		if options.ConnectTimeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(options.ConnectTimeout.Seconds())))
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", errors.Errorf("unsupported driver: %s", options.Driver)
	}
}

// Conn 从连接池借出的连接，同一时刻只服务一条语句，用完必须 Release
type Conn struct {
	conn *sqlx.Conn
	once sync.Once
}

// Release 归还连接，可重复调用
func (c *Conn) Release() error {
	var err error
	c.once.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Acquire 借出一个连接，池满时阻塞直到有连接归还或 ctx 结束
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.closed.Load() {
		return nil, &ConnectionError{Msg: MsgPoolClosed}
	}
	c, err := p.db.Connx(ctx)
	if err != nil {
		if p.closed.Load() || errors.Is(err, sql.ErrConnDone) {
			return nil, &ConnectionError{Msg: MsgPoolClosed, Err: err}
		}
		return nil, &ConnectionError{Msg: "acquire", Err: err}
	}
	return &Conn{conn: c}, nil
}

// WithConn 借出连接执行 fn，无论正常返回、出错、panic 还是 ctx 取消都会归还
func (p *Pool) WithConn(ctx context.Context, fn func(conn *Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// Close 关闭连接池，之后的 Acquire 返回 ConnectionError("pool closed")
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Info("pool closed", "driver", p.driver)
	return p.db.Close()
}

func (p *Pool) Closed() bool { return p.closed.Load() }

func (p *Pool) Driver() string { return p.driver }

// Autocommit 写操作的缺省模式
func (p *Pool) Autocommit() bool { return p.autocommit }

func (p *Pool) MaxSize() int { return p.maxSize }

// PoolStats 连接池状态快照
type PoolStats struct {
	MaxOpen      int
	Open         int
	InUse        int
	Idle         int
	WaitCount    int64
	WaitDuration time.Duration
}

func (p *Pool) Stats() PoolStats {
	s := p.db.Stats()
	return PoolStats{
		MaxOpen:      s.MaxOpenConnections,
		Open:         s.OpenConnections,
		InUse:        s.InUse,
		Idle:         s.Idle,
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration,
	}
}
