package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/orm/rdb"
)

func runCmd(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestBlogCommands(t *testing.T) {
	Convey("测试博客命令行", t, func() {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "blog.db")
		config := filepath.Join(dir, "blog.yaml")
		So(os.WriteFile(config, []byte(fmt.Sprintf(`
pool:
  driver: sqlite3
  database: %s
logger:
  default:
    level: error
  rdb:
    level: error
`, dbPath)), 0644), ShouldBeNil)

		So(runCmd("--config", config, "init"), ShouldBeNil)

		ctx := context.Background()
		pool, err := rdb.NewPoolWithOptions(ctx, &rdb.PoolOptions{Driver: "sqlite3", Database: dbPath})
		So(err, ShouldBeNil)
		defer pool.Close()
		exec := rdb.NewExecutor(pool)

		count := func(table string) int64 {
			records, err := exec.Read(ctx, "select count(*) as n from "+table, nil)
			So(err, ShouldBeNil)
			n, _ := records[0].Get("n")
			return n.(int64)
		}

		Convey("添加用户、博客并删除", func() {
			So(runCmd("--config", config, "user", "add", "--name", "alice", "--email", "alice@example.com", "--password", "secret"), ShouldBeNil)
			So(count("users"), ShouldEqual, 1)

			Convey("重复邮箱被拒绝", func() {
				err := runCmd("--config", config, "user", "add", "--name", "bob", "--email", "alice@example.com", "--password", "x")
				So(err, ShouldNotBeNil)
				So(count("users"), ShouldEqual, 1)
			})

			records, err := exec.Read(ctx, "select id from users", nil)
			So(err, ShouldBeNil)
			userID, _ := records[0].Get("id")

			So(runCmd("--config", config, "blog", "add", "--user-id", userID.(string), "--name", "hello", "--content", "world"), ShouldBeNil)
			So(count("blogs"), ShouldEqual, 1)

			records, err = exec.Read(ctx, "select id, user_name from blogs", nil)
			So(err, ShouldBeNil)
			blogID, _ := records[0].Get("id")
			userName, _ := records[0].Get("user_name")
			So(userName, ShouldEqual, "alice")

			So(runCmd("--config", config, "comment", "--blog-id", blogID.(string), "--user-id", userID.(string), "--content", "first"), ShouldBeNil)
			So(count("comments"), ShouldEqual, 1)

			So(runCmd("--config", config, "stats"), ShouldBeNil)
			So(runCmd("--config", config, "blog", "list", "--page", "1"), ShouldBeNil)

			So(runCmd("--config", config, "blog", "rm", blogID.(string)), ShouldBeNil)
			So(count("blogs"), ShouldEqual, 0)
			So(count("comments"), ShouldEqual, 0)

			So(runCmd("--config", config, "blog", "rm", blogID.(string)), ShouldNotBeNil)
		})

		Convey("作者不存在时不能发博客", func() {
			So(runCmd("--config", config, "blog", "add", "--user-id", "missing", "--name", "x", "--content", "y"), ShouldNotBeNil)
			So(count("blogs"), ShouldEqual, 0)
		})

		Convey("用户 id 使用配置的生成器", func() {
			uuidConfig := filepath.Join(dir, "uuid.yaml")
			So(os.WriteFile(uuidConfig, []byte(fmt.Sprintf(`
pool:
  driver: sqlite3
  database: %s
logger:
  default:
    level: error
  rdb:
    level: error
idGenerator:
  type: UUIDGenerator
  options:
    withHyphens: true
`, dbPath)), 0644), ShouldBeNil)

			So(runCmd("--config", uuidConfig, "user", "add", "--name", "carol", "--email", "carol@example.com", "--password", "secret"), ShouldBeNil)
			records, err := exec.Read(ctx, "select id from users where email=?", []any{"carol@example.com"})
			So(err, ShouldBeNil)
			So(records, ShouldHaveLength, 1)
			id, _ := records[0].Get("id")
			So(id, ShouldHaveLength, 36)
			So(id, ShouldContainSubstring, "-")
		})

		Convey("显式指定的配置文件不存在时报错", func() {
			So(runCmd("--config", filepath.Join(dir, "missing.yaml"), "stats"), ShouldNotBeNil)
		})
	})
}
