package rdb

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// countPlaceholders 统计语句中的 ? 个数
// 引号内的字面量、标识符以及注释中的 ? 不计数
func countPlaceholders(query string) int {
	count := 0
	for i := 0; i < len(query); i++ {
		switch c := query[i]; c {
		case '\'', '"', '`':
			i = skipQuoted(query, i, c) - 1
		case '-':
			if i+1 < len(query) && query[i+1] == '-' {
				end := strings.IndexByte(query[i:], '\n')
				if end == -1 {
					return count
				}
				i += end
			}
		case '/':
			if i+1 < len(query) && query[i+1] == '*' {
				end := strings.Index(query[i+2:], "*/")
				if end == -1 {
					return count
				}
				i += end + 3
			}
		case '?':
			count++
		}
	}
	return count
}

// skipQuoted 返回引号结束位置之后的下标，支持 '' 转义和单引号内的反斜杠转义
func skipQuoted(query string, start int, quote byte) int {
	for i := start + 1; i < len(query); i++ {
		switch query[i] {
		case '\\':
			if quote == '\'' {
				i++
			}
		case quote:
			if i+1 < len(query) && query[i+1] == quote {
				i++
				continue
			}
			return i + 1
		}
	}
	return len(query)
}

// rebind 把 ? 改写为驱动的占位符写法，返回改写后的语句和占位符个数
// sqlx.Rebind 逐字符替换，$n 写法下引号或注释中出现 ? 时编号会错位，这种语句直接拒绝
func rebind(bindType int, query string) (string, int, bool) {
	n := countPlaceholders(query)
	if bindType == sqlx.QUESTION || bindType == sqlx.UNKNOWN {
		return query, n, true
	}
	if strings.Count(query, "?") != n {
		return "", n, false
	}
	return sqlx.Rebind(bindType, query), n, true
}
