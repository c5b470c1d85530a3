package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Clause はWHERE句の断片です。Expr はそのまま埋め込まれるため、
// 値は必ず Args でバインドしてください。
type Clause struct {
	Expr string
	Args []any
	err  error
}

func Where(expr string, args ...any) Clause {
	return Clause{Expr: expr, Args: args}
}

func Eq(column string, value any) Clause {
	if value == nil {
		return Clause{Expr: quote(column) + " IS NULL"}
	}
	return Clause{Expr: quote(column) + " = ?", Args: []any{value}}
}

func IsNull(column string) Clause {
	return Clause{Expr: quote(column) + " IS NULL"}
}

// In は column IN (...) です。空のリストは常に偽になります。
func In[T any](column string, values []T) Clause {
	if len(values) == 0 {
		return Clause{Expr: "0"}
	}
	q, args, err := sqlx.In(quote(column)+" IN (?)", values)
	return Clause{Expr: q, Args: args, err: err}
}

// NotIn は column NOT IN (...) です。空のリストは常に真になります。
func NotIn[T any](column string, values []T) Clause {
	if len(values) == 0 {
		return Clause{Expr: "1"}
	}
	q, args, err := sqlx.In(quote(column)+" NOT IN (?)", values)
	return Clause{Expr: q, Args: args, err: err}
}

// Or は各句を括弧で囲んで OR で連結します。
func Or(clauses ...Clause) Clause {
	if len(clauses) == 0 {
		return Clause{Expr: "0"}
	}
	parts := make([]string, len(clauses))
	var args []any
	for i, c := range clauses {
		if c.err != nil {
			return Clause{err: c.err}
		}
		parts[i] = "(" + c.Expr + ")"
		args = append(args, c.Args...)
	}
	return Clause{Expr: strings.Join(parts, " OR "), Args: args}
}

// Order は ORDER BY の1項目です。
type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Glue は FindOneBy の条件の連結方法です。空は OR 扱いです。
type Glue string

const (
	GlueAnd Glue = "AND"
	GlueOr  Glue = "OR"
)

// joinWhere は "((a) AND (b))" の形で句を連結します。句がなければ空文字です。
func joinWhere(where []Clause) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}
	parts := make([]string, len(where))
	var args []any
	for i, c := range where {
		if c.err != nil {
			return "", nil, fmt.Errorf("invalid where clause: %w", c.err)
		}
		parts[i] = "(" + c.Expr + ")"
		args = append(args, c.Args...)
	}
	encoded, err := encodeArgs(args)
	if err != nil {
		return "", nil, err
	}
	return " WHERE (" + strings.Join(parts, " AND ") + ")", encoded, nil
}

func orderBy(def interface{ HasColumn(string) bool }, orders []Order) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	parts := make([]string, len(orders))
	for i, o := range orders {
		if !def.HasColumn(o.Column) {
			return "", fmt.Errorf("%w: order by %s", ErrUnknownColumn, o.Column)
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		parts[i] = quote(o.Column) + " " + dir
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "") + "`"
}
