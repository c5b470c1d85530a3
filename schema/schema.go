package schema

import (
	"fmt"
	"sort"
	"strings"
)

// TableName はローカルDBのテーブル名です。tables.go に定義された定数以外は使いません。
type TableName string

// Column はカラム名とSQLiteの型指定です。
type Column struct {
	Name string
	Type string
}

// TableDefinition は1テーブル分の定義です。
// SurvivesPartialReset が true のテーブル(オペレーターの作業中データ)は、
// 強制リセット以外では DROP されません。
type TableDefinition struct {
	Name                 TableName
	Columns              []Column
	SurvivesPartialReset bool
}

var byName map[TableName]TableDefinition

func init() {
	byName = make(map[TableName]TableDefinition, len(definitions))
	for _, def := range definitions {
		if _, dup := byName[def.Name]; dup {
			panic(fmt.Sprintf("schema: duplicate table definition %s", def.Name))
		}
		byName[def.Name] = def
	}
}

// Definitions は全テーブル定義を宣言順で返します。
func Definitions() []TableDefinition {
	out := make([]TableDefinition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup はテーブル定義を返します。
func Lookup(name TableName) (TableDefinition, bool) {
	def, ok := byName[name]
	return def, ok
}

// MustLookup は未定義テーブルでパニックします（プログラミングエラー扱い）。
func MustLookup(name TableName) TableDefinition {
	def, ok := byName[name]
	if !ok {
		panic(fmt.Sprintf("schema: table %q is not declared", name))
	}
	return def
}

func (d TableDefinition) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

func (d TableDefinition) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// CreateStatement は冪等な CREATE TABLE IF NOT EXISTS 文を生成します。
func (d TableDefinition) CreateStatement() string {
	cols := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		cols[i] = fmt.Sprintf("`%s` %s", c.Name, c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s)", d.Name, strings.Join(cols, ", "))
}

func (d TableDefinition) DropStatement() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS `%s`", d.Name)
}

// Project はテーブルに存在しないキーを取り除いたコピーを返します。
// サーバーから届くレコードには表示用の余分なフィールドが含まれるため、
// 取込前に必ずこれを通します。
func (d TableDefinition) Project(record map[string]any) map[string]any {
	out := make(map[string]any, len(record))
	for k, v := range record {
		if d.HasColumn(k) {
			out[k] = v
		}
	}
	return out
}

// UnknownColumns は定義にないキーをソートして返します。
func (d TableDefinition) UnknownColumns(record map[string]any) []string {
	var unknown []string
	for k := range record {
		if !d.HasColumn(k) {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}
