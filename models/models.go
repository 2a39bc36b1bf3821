package models

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/orm/rdb"
	"github.com/hatlonely/orm/uid"
)

type User struct {
	rdb.Tracked

	ID        string  `rdb:"id"`
	Email     string  `rdb:"email"`
	Password  string  `rdb:"password"`
	Admin     bool    `rdb:"admin"`
	Name      string  `rdb:"name"`
	Image     string  `rdb:"image"`
	CreatedAt float64 `rdb:"created_at"`
}

type Blog struct {
	rdb.Tracked

	ID        string  `rdb:"id"`
	UserID    string  `rdb:"user_id"`
	UserName  string  `rdb:"user_name"`
	UserImage string  `rdb:"user_image"`
	Name      string  `rdb:"name"`
	Summary   string  `rdb:"summary"`
	Content   string  `rdb:"content"`
	CreatedAt float64 `rdb:"created_at"`
}

type Comment struct {
	rdb.Tracked

	ID        string  `rdb:"id"`
	BlogID    string  `rdb:"blog_id"`
	UserID    string  `rdb:"user_id"`
	UserName  string  `rdb:"user_name"`
	UserImage string  `rdb:"user_image"`
	Content   string  `rdb:"content"`
	CreatedAt float64 `rdb:"created_at"`
}

// now 秒级浮点时间戳
func now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func idField(generator uid.StrGenerator) rdb.Field {
	return rdb.StringField("id").Key().Type("varchar(50)").DefaultRule(rdb.Generator(generator.Generate))
}

func createdAtField() rdb.Field {
	return rdb.FloatField("created_at").DefaultRule(rdb.Generator(now))
}

// Store 博客三张表的 Model
type Store struct {
	Users    *rdb.Model[User, *User]
	Blogs    *rdb.Model[Blog, *Blog]
	Comments *rdb.Model[Comment, *Comment]
}

// NewStore 在 registry 中注册实体并绑定执行器，generator 为 nil 时使用 uid.NextID
func NewStore(registry *rdb.Registry, exec *rdb.Executor, generator uid.StrGenerator) (*Store, error) {
	if generator == nil {
		generator = uid.NewTimestampUUIDGenerator()
	}

	userSchema, err := rdb.RegisterEntity[User](registry, "users",
		idField(generator),
		rdb.StringField("email").Type("varchar(50)"),
		rdb.StringField("password").Type("varchar(50)"),
		rdb.BooleanField("admin"),
		rdb.StringField("name").Type("varchar(50)"),
		rdb.StringField("image").Type("varchar(500)"),
		createdAtField(),
	)
	if err != nil {
		return nil, errors.WithMessage(err, "register users failed")
	}

	blogSchema, err := rdb.RegisterEntity[Blog](registry, "blogs",
		idField(generator),
		rdb.StringField("user_id").Type("varchar(50)"),
		rdb.StringField("user_name").Type("varchar(50)"),
		rdb.StringField("user_image").Type("varchar(500)"),
		rdb.StringField("name").Type("varchar(50)"),
		rdb.StringField("summary").Type("varchar(200)"),
		rdb.TextField("content"),
		createdAtField(),
	)
	if err != nil {
		return nil, errors.WithMessage(err, "register blogs failed")
	}

	commentSchema, err := rdb.RegisterEntity[Comment](registry, "comments",
		idField(generator),
		rdb.StringField("blog_id").Type("varchar(50)"),
		rdb.StringField("user_id").Type("varchar(50)"),
		rdb.StringField("user_name").Type("varchar(50)"),
		rdb.StringField("user_image").Type("varchar(500)"),
		rdb.TextField("content"),
		createdAtField(),
	)
	if err != nil {
		return nil, errors.WithMessage(err, "register comments failed")
	}

	users, err := rdb.NewModel[User, *User](exec, userSchema)
	if err != nil {
		return nil, err
	}
	blogs, err := rdb.NewModel[Blog, *Blog](exec, blogSchema)
	if err != nil {
		return nil, err
	}
	comments, err := rdb.NewModel[Comment, *Comment](exec, commentSchema)
	if err != nil {
		return nil, err
	}
	return &Store{Users: users, Blogs: blogs, Comments: comments}, nil
}

// Schemas 按建表顺序返回
func (s *Store) Schemas() []*rdb.Schema {
	return []*rdb.Schema{s.Users.Schema(), s.Blogs.Schema(), s.Comments.Schema()}
}

// HashPassword sha1("<id>:<password>") 的十六进制
func HashPassword(id, password string) string {
	sum := sha1.Sum([]byte(id + ":" + password))
	return hex.EncodeToString(sum[:])
}

// CheckPassword 校验明文密码
func (u *User) CheckPassword(password string) bool {
	return u.Password == HashPassword(u.ID, password)
}

// GravatarURL 按邮箱生成默认头像地址
func GravatarURL(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("http://www.gravatar.com/avatar/%s?d=mm&s=120", hex.EncodeToString(sum[:]))
}
