package rdb

import (
	"reflect"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func schemaErrorMsg(err error) string {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Msg
	}
	return ""
}

func TestBuildSchema(t *testing.T) {
	Convey("测试 BuildSchema", t, func() {
		Convey("渲染四条语句模板", func() {
			s, err := BuildSchema("users",
				StringField("name"),
				StringField("id").Key(),
				IntegerField("age"),
			)
			So(err, ShouldBeNil)
			So(s.Table(), ShouldEqual, "users")
			So(s.PrimaryKey(), ShouldEqual, "id")
			So(s.Fields(), ShouldResemble, []string{"name", "age"})
			So(s.Columns(), ShouldResemble, []string{"id", "name", "age"})
			So(s.SelectSQL(), ShouldEqual, "select id,name,age from users")
			So(s.InsertSQL(), ShouldEqual, "insert into users(id,name,age) values (?,?,?)")
			So(s.UpdateSQL(), ShouldEqual, "update users set name=?,age=? where id=?")
			So(s.DeleteSQL(), ShouldEqual, "delete from users where id=?")
			So(s.CreateTableSQL(), ShouldEqual,
				"create table if not exists users (id varchar(100) not null primary key, name varchar(100), age bigint)")
		})

		Convey("只有主键时 update 模板为空", func() {
			s, err := BuildSchema("tags", StringField("id").Key())
			So(err, ShouldBeNil)
			So(s.SelectSQL(), ShouldEqual, "select id from tags")
			So(s.InsertSQL(), ShouldEqual, "insert into tags(id) values (?)")
			So(s.UpdateSQL(), ShouldEqual, "")
			So(s.DeleteSQL(), ShouldEqual, "delete from tags where id=?")
		})

		Convey("声明不合法", func() {
			cases := []struct {
				table  string
				fields []Field
				msg    string
			}{
				{"t", []Field{StringField("a")}, MsgMissingPrimaryKey},
				{"t", nil, MsgMissingPrimaryKey},
				{"t", []Field{StringField("a").Key(), StringField("b").Key()}, MsgDuplicatePrimaryKey},
				{"t", []Field{StringField("a").Key(), StringField("a")}, MsgDuplicateField},
				{"t", []Field{BooleanField("flag").Key()}, MsgInvalidPrimaryKey},
				{"t", []Field{TextField("body").Key()}, MsgInvalidPrimaryKey},
				{"", []Field{StringField("a").Key()}, MsgEmptyName},
				{"t", []Field{StringField("").Key()}, MsgEmptyName},
			}
			for _, c := range cases {
				s, err := BuildSchema(c.table, c.fields...)
				So(s, ShouldBeNil)
				So(schemaErrorMsg(err), ShouldEqual, c.msg)
			}
		})
	})
}

func TestField(t *testing.T) {
	Convey("测试字段描述", t, func() {
		Convey("缺省存储类型", func() {
			So(StringField("a").Column, ShouldEqual, "varchar(100)")
			So(IntegerField("a").Column, ShouldEqual, "bigint")
			So(FloatField("a").Column, ShouldEqual, "real")
			So(BooleanField("a").Column, ShouldEqual, "boolean")
			So(TextField("a").Column, ShouldEqual, "text")
			So(StringField("a").Type("varchar(50)").Column, ShouldEqual, "varchar(50)")
		})

		Convey("修饰方法返回副本", func() {
			base := StringField("a")
			key := base.Key()
			So(base.PrimaryKey, ShouldBeFalse)
			So(key.PrimaryKey, ShouldBeTrue)
		})

		Convey("缺省值规则", func() {
			So(NoDefault.IsSet(), ShouldBeFalse)
			So(NoDefault.Resolve(), ShouldBeNil)
			So(Static("x").Resolve(), ShouldEqual, "x")
			So(BooleanField("a").Default.Resolve(), ShouldEqual, false)

			calls := 0
			rule := Generator(func() int { calls++; return calls })
			So(rule.IsGenerator(), ShouldBeTrue)
			So(rule.Resolve(), ShouldEqual, 1)
			So(rule.Resolve(), ShouldEqual, 2)
			So(Generator[int](nil).IsSet(), ShouldBeFalse)
		})
	})
}

type registryUser struct {
	Tracked

	ID    string `rdb:"id"`
	Name  string
	Email string `rdb:"email"`
	Note  string `rdb:"-"`
	note  string
}

type registryMissing struct {
	Tracked

	ID string `rdb:"id"`
}

type registryExtraTag struct {
	Tracked

	ID    string `rdb:"id"`
	Phone string `rdb:"phone"`
}

func TestRegistry(t *testing.T) {
	Convey("测试实体注册", t, func() {
		r := NewRegistry()
		fields := []Field{StringField("id").Key(), StringField("Name"), StringField("email")}

		Convey("按标签或字段名绑定", func() {
			s, err := RegisterEntity[registryUser](r, "users", fields...)
			So(err, ShouldBeNil)
			So(r.Len(), ShouldEqual, 1)

			cached, ok := r.Lookup(reflect.TypeOf(registryUser{}))
			So(ok, ShouldBeTrue)
			So(cached, ShouldEqual, s)
		})

		Convey("相同声明重复注册返回缓存", func() {
			s1, err := RegisterEntity[registryUser](r, "users", fields...)
			So(err, ShouldBeNil)
			s2, err := RegisterEntity[registryUser](r, "users", fields...)
			So(err, ShouldBeNil)
			So(s2, ShouldEqual, s1)
		})

		Convey("不同声明重复注册返回错误", func() {
			_, err := RegisterEntity[registryUser](r, "users", fields...)
			So(err, ShouldBeNil)
			_, err = RegisterEntity[registryUser](r, "users", StringField("id").Key(), StringField("Name").Type("text"), StringField("email"))
			So(schemaErrorMsg(err), ShouldEqual, MsgConflictingRegistration)
		})

		Convey("声明的字段在结构体中不存在", func() {
			_, err := RegisterEntity[registryMissing](r, "missing", StringField("id").Key(), StringField("name"))
			So(schemaErrorMsg(err), ShouldEqual, MsgUnmappedField)
			So(r.Len(), ShouldEqual, 0)
		})

		Convey("带标签的字段没有声明", func() {
			_, err := RegisterEntity[registryExtraTag](r, "extra", StringField("id").Key())
			So(schemaErrorMsg(err), ShouldEqual, MsgUnmappedField)
		})

		Convey("主键声明不合法时不缓存", func() {
			_, err := RegisterEntity[registryUser](r, "users", StringField("id"), StringField("Name"), StringField("email"))
			So(schemaErrorMsg(err), ShouldEqual, MsgMissingPrimaryKey)
			So(r.Len(), ShouldEqual, 0)

			_, err = RegisterEntity[registryUser](r, "users", fields...)
			So(err, ShouldBeNil)
		})

		Convey("MustRegisterEntity 失败时 panic", func() {
			So(func() { MustRegisterEntity[registryMissing](r, "missing", StringField("x")) }, ShouldPanic)
		})
	})
}
