package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hatlonely/orm/cfg"
	"github.com/hatlonely/orm/log"
	"github.com/hatlonely/orm/models"
	"github.com/hatlonely/orm/rdb"
	"github.com/hatlonely/orm/ref"
	"github.com/hatlonely/orm/uid"
)

// Options blog.yaml 的结构
type Options struct {
	Pool     rdb.PoolOptions     `cfg:"pool"`
	Executor rdb.ExecutorOptions `cfg:"executor"`
	// Logger 名为 default 的日志器用于应用日志，名为 rdb 的用于语句日志
	Logger      log.ManagerOptions `cfg:"logger"`
	IDGenerator ref.TypeOptions    `cfg:"idGenerator"`
}

type app struct {
	logs   *log.Manager
	logger log.Logger
	pool   *rdb.Pool
	exec   *rdb.Executor
	ids    uid.StrGenerator
	store  *models.Store
}

func loadOptions(cmd *cobra.Command) (*Options, error) {
	files := []string{configPath}
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}

	options := &Options{}
	err := cfg.LoadWithOptions(options, &cfg.LoadOptions{
		Files:     files,
		EnvPrefix: envPrefix,
		// 未显式指定配置文件时允许只用环境变量
		Optional: !cmd.Flags().Changed("config"),
	})
	if err != nil {
		return nil, errors.WithMessage(err, "load config failed")
	}
	return options, nil
}

// newApp 组合根：日志 -> 连接池 -> 执行器 -> 实体
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	options, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}

	logs, err := log.NewManagerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create loggers failed")
	}

	a := &app{logs: logs, logger: logs.GetDefault()}
	a.pool, err = rdb.NewPoolWithOptions(ctx, &options.Pool, rdb.WithPoolLogger(logs.GetLogger("rdb")))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.exec, err = rdb.NewExecutorWithOptions(a.pool, &options.Executor, rdb.WithLogger(logs.GetLogger("rdb")))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.ids, err = uid.NewStrGeneratorWithOptions(&options.IDGenerator)
	if err != nil {
		a.Close()
		return nil, errors.WithMessage(err, "create id generator failed")
	}

	a.store, err = models.NewStore(rdb.NewRegistry(), a.exec, a.ids)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("close pool failed", "error", err)
		}
	}
	_ = a.logs.Close()
}

// withApp 为每个子命令创建并在返回时关闭应用
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, args)
	}
}
