package rdb

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrInvalidCondition = errors.New("invalid condition")
)

// 错误原因，作为各类错误的 Msg
const (
	MsgMissingPrimaryKey       = "missing primary key"
	MsgDuplicatePrimaryKey     = "duplicate primary key"
	MsgDuplicateField          = "duplicate field"
	MsgEmptyName               = "empty name"
	MsgInvalidPrimaryKey       = "invalid primary key"
	MsgUnmappedField           = "unmapped field"
	MsgConflictingRegistration = "conflicting registration"
	MsgPoolClosed              = "pool closed"
	MsgNoSuchRow               = "no such row"
	MsgStaleEntity             = "stale entity"
	MsgAmbiguousKey            = "ambiguous key"
	MsgNothingToUpdate         = "nothing to update"
	MsgUnexpectedAffectedRows  = "unexpected affected rows"
)

// SchemaError 实体声明不合法，注册阶段返回
type SchemaError struct {
	Table string
	Field string
	Msg   string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("schema error")
	if e.Table != "" {
		b.WriteString(": ")
		b.WriteString(e.Table)
	}
	if e.Field != "" {
		b.WriteString(".")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	return b.String()
}

// ConnectionError 连接池不可用、建连失败或已关闭
type ConnectionError struct {
	Msg string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return "connection error: " + e.Msg
	}
	return fmt.Sprintf("connection error: %s: %v", e.Msg, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
func (e *ConnectionError) Cause() error  { return e.Err }

// QueryError 语句执行失败，携带语句原文（不含参数值）
type QueryError struct {
	SQL string
	Msg string
	Err error
}

func (e *QueryError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "query failed"
	}
	if e.Err == nil {
		return fmt.Sprintf("query error: %s [%s]", msg, e.SQL)
	}
	return fmt.Sprintf("query error: %s [%s]: %v", msg, e.SQL, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
func (e *QueryError) Cause() error  { return e.Err }

// TransactionError 事务的 begin/commit/rollback 失败
// Cause 是触发回滚的原始错误，rollback 失败时两者同时保留
type TransactionError struct {
	Op    string
	Err   error
	Cause error
}

func (e *TransactionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("transaction error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transaction error: %s: %v (cause: %v)", e.Op, e.Err, e.Cause)
}

func (e *TransactionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// PersistenceError 写操作影响行数不符合预期，或实例状态不允许该操作
type PersistenceError struct {
	Table    string
	Msg      string
	Affected int64
}

func (e *PersistenceError) Error() string {
	if e.Msg == MsgUnexpectedAffectedRows {
		return fmt.Sprintf("persistence error: %s: %s: %d", e.Table, e.Msg, e.Affected)
	}
	return fmt.Sprintf("persistence error: %s: %s", e.Table, e.Msg)
}

func newSchemaError(table, field, msg string) error {
	return errors.WithStack(&SchemaError{Table: table, Field: field, Msg: msg})
}

func newPersistenceError(table, msg string, affected int64) error {
	return errors.WithStack(&PersistenceError{Table: table, Msg: msg, Affected: affected})
}
