package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"nomade/schema"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrUnknownTable  = errors.New("unknown table")
	ErrUnknownColumn = errors.New("unknown column")
)

// QueryError は失敗したSQLを保持します。呼び出し元でログに残せるようにするためです。
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v [sql: %s]", e.Err, e.SQL)
}

func (e *QueryError) Unwrap() error { return e.Err }

// DBTX は *sqlx.DB と *sqlx.Tx の共通部分です。
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

// Store はローカルSQLiteデータベースへの唯一の入口です。
// 接続は1本に固定しているため、トランザクション中の処理は必ず
// InTx が渡す Store を使ってください（外側の Store を使うとブロックします）。
type Store struct {
	db *sqlx.DB
	q  DBTX
	tx *sqlx.Tx
}

// Open はSQLiteファイルを開きます。":memory:" はテスト用です。
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return New(db), nil
}

// New は既存の接続から Store を作ります。
func New(db *sqlx.DB) *Store {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return &Store{db: db, q: db}
}

func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

// InTx は fn を1つのトランザクションで実行します。
// fn がエラーを返すとロールバックし、入れ子の呼び出しは外側のトランザクションに合流します。
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) (err error) {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	txStore := &Store{db: s.db, q: tx, tx: tx}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Printf("WARN: rollback failed: %v", rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	return fn(txStore)
}

// ResetDatabase はテーブルを作り直します。
// force が false の場合、SurvivesPartialReset のテーブルは残します。
func (s *Store) ResetDatabase(ctx context.Context, force bool) error {
	return s.InTx(ctx, func(tx *Store) error {
		dropped := 0
		for _, def := range schema.Definitions() {
			if !force && def.SurvivesPartialReset {
				continue
			}
			if _, err := tx.exec(ctx, def.DropStatement()); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", def.Name, err)
			}
			dropped++
		}
		for _, def := range schema.Definitions() {
			if _, err := tx.exec(ctx, def.CreateStatement()); err != nil {
				return fmt.Errorf("failed to create table %s: %w", def.Name, err)
			}
		}
		log.Printf("INFO: [Store] reset done (force=%t, dropped=%d)", force, dropped)
		return nil
	})
}

// EnsureSchema は足りないテーブルだけを作成します。既存のデータには触れません。
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, def := range schema.Definitions() {
		if _, err := s.exec(ctx, def.CreateStatement()); err != nil {
			return fmt.Errorf("failed to create table %s: %w", def.Name, err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		log.Printf("ERROR: %s | %v", query, err)
		return nil, &QueryError{SQL: query, Err: err}
	}
	return res, nil
}

func lookup(table schema.TableName) (schema.TableDefinition, error) {
	def, ok := schema.Lookup(table)
	if !ok {
		return schema.TableDefinition{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return def, nil
}

func checkColumns(def schema.TableDefinition, columns ...string) error {
	for _, c := range columns {
		if !def.HasColumn(c) {
			return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, def.Name, c)
		}
	}
	return nil
}
