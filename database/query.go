package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"nomade/schema"
	"sort"
	"strings"
)

// SQLiteの既定のバインド変数上限
const maxVariables = 999

// Query は任意のSQLを実行し、行を Record で返します。該当なしは空スライスです。
func (s *Store) Query(ctx context.Context, query string, args ...any) ([]Record, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	rows, err := s.q.QueryxContext(ctx, query, encoded...)
	if err != nil {
		log.Printf("ERROR: %s | %v", query, err)
		return nil, &QueryError{SQL: query, Err: err}
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		m := map[string]interface{}{}
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, normalizeRow(m))
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{SQL: query, Err: err}
	}
	return out, nil
}

// Exec は任意のSQLを実行し、影響行数を返します。
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	encoded, err := encodeArgs(args)
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, query, encoded...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n, nil
}

// Select は sqlx の構造体スキャンです。
func (s *Store) Select(ctx context.Context, dest interface{}, query string, args ...any) error {
	encoded, err := encodeArgs(args)
	if err != nil {
		return err
	}
	if err := s.q.SelectContext(ctx, dest, s.q.Rebind(query), encoded...); err != nil {
		return &QueryError{SQL: query, Err: err}
	}
	return nil
}

// Get は1行を構造体に読みます。該当なしは sql.ErrNoRows をそのまま返します。
func (s *Store) Get(ctx context.Context, dest interface{}, query string, args ...any) error {
	encoded, err := encodeArgs(args)
	if err != nil {
		return err
	}
	err = s.q.GetContext(ctx, dest, s.q.Rebind(query), encoded...)
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err != nil {
		return &QueryError{SQL: query, Err: err}
	}
	return nil
}

// FindBy は where を AND で連結して検索します。
func (s *Store) FindBy(ctx context.Context, table schema.TableName, where []Clause, order ...Order) ([]Record, error) {
	def, err := lookup(table)
	if err != nil {
		return nil, err
	}
	w, args, err := joinWhere(where)
	if err != nil {
		return nil, err
	}
	o, err := orderBy(def, order)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, "SELECT * FROM "+quote(string(table))+w+o, args...)
}

func (s *Store) FindAll(ctx context.Context, table schema.TableName, order ...Order) ([]Record, error) {
	return s.FindBy(ctx, table, nil, order...)
}

// FindOneBy は条件に合う最初の1行を返します。該当なしは nil, nil です。
// 文字列は LIKE、それ以外は = で比較し、条件同士は glue で連結します。
func (s *Store) FindOneBy(ctx context.Context, table schema.TableName, conditions map[string]any, glue Glue) (Record, error) {
	def, err := lookup(table)
	if err != nil {
		return nil, err
	}
	if glue == "" {
		glue = GlueOr
	}

	keys := make([]string, 0, len(conditions))
	for k := range conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := checkColumns(def, keys...); err != nil {
		return nil, err
	}

	parts := make([]string, 0, len(keys))
	var args []any
	for _, k := range keys {
		v := conditions[k]
		switch v.(type) {
		case nil:
			parts = append(parts, quote(k)+" IS NULL")
			continue
		case string:
			parts = append(parts, quote(k)+" LIKE ?")
		default:
			parts = append(parts, quote(k)+" = ?")
		}
		args = append(args, v)
	}

	query := "SELECT * FROM " + quote(string(table))
	if len(parts) > 0 {
		query += " WHERE " + strings.Join(parts, " "+string(glue)+" ")
	}
	rows, err := s.Query(ctx, query+" LIMIT 1", args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *Store) Count(ctx context.Context, table schema.TableName, where ...Clause) (int, error) {
	if _, err := lookup(table); err != nil {
		return 0, err
	}
	w, args, err := joinWhere(where)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.Get(ctx, &n, "SELECT COUNT(*) FROM "+quote(string(table))+w, args...); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Insert はレコードを一括挿入し、最初に挿入された行のIDを返します。
// カラムは全レコードのキーの和集合で、欠けている値は NULL になります。
func (s *Store) Insert(ctx context.Context, table schema.TableName, records ...Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	def, err := lookup(table)
	if err != nil {
		return 0, err
	}

	seen := map[string]bool{}
	var cols []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	if err := checkColumns(def, cols...); err != nil {
		return 0, err
	}

	if len(cols) == 0 {
		var first int64
		for i := range records {
			res, err := s.exec(ctx, "INSERT INTO "+quote(string(table))+" DEFAULT VALUES")
			if err != nil {
				return 0, err
			}
			if i == 0 {
				first, _ = res.LastInsertId()
			}
		}
		return first, nil
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	chunk := maxVariables / len(cols)

	var firstID int64
	for start := 0; start < len(records); start += chunk {
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		values := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(cols))
		for i, r := range batch {
			values[i] = placeholder
			for _, c := range cols {
				args = append(args, r[c])
			}
		}
		encoded, err := encodeArgs(args)
		if err != nil {
			return 0, fmt.Errorf("failed to encode %s row: %w", table, err)
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			quote(string(table)), strings.Join(quoted, ", "), strings.Join(values, ", "))
		res, err := s.exec(ctx, query, encoded...)
		if err != nil {
			return 0, err
		}
		if start == 0 {
			if id, ok := ToInt64(batch[0]["id"]); ok && batch[0]["id"] != nil {
				firstID = id
				continue
			}
			last, err := res.LastInsertId()
			if err != nil {
				return 0, fmt.Errorf("failed to read last insert id: %w", err)
			}
			firstID = last - int64(len(batch)) + 1
		}
	}
	return firstID, nil
}

// Update は where に合う行の values のカラムを更新し、影響行数を返します。
func (s *Store) Update(ctx context.Context, table schema.TableName, values Record, where ...Clause) (int64, error) {
	def, err := lookup(table)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}
	cols := make([]string, 0, len(values))
	for k := range values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	if err := checkColumns(def, cols...); err != nil {
		return 0, err
	}

	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
		args = append(args, values[c])
	}
	setArgs, err := encodeArgs(args)
	if err != nil {
		return 0, err
	}
	w, whereArgs, err := joinWhere(where)
	if err != nil {
		return 0, err
	}

	query := "UPDATE " + quote(string(table)) + " SET " + strings.Join(sets, ", ") + w
	res, err := s.exec(ctx, query, append(setArgs, whereArgs...)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpdateSet は SET 句を式で指定する更新です (quantite = quantite - ? など)。
// set にはカラム名を直接書くため、呼び出し側の固定文字列だけを渡してください。
func (s *Store) UpdateSet(ctx context.Context, table schema.TableName, set string, setArgs []any, where ...Clause) (int64, error) {
	if _, err := lookup(table); err != nil {
		return 0, err
	}
	encoded, err := encodeArgs(setArgs)
	if err != nil {
		return 0, err
	}
	w, whereArgs, err := joinWhere(where)
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, "UPDATE "+quote(string(table))+" SET "+set+w, append(encoded, whereArgs...)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteBy は where に合う行を削除します。条件なしは全件削除です。
func (s *Store) DeleteBy(ctx context.Context, table schema.TableName, where ...Clause) (int64, error) {
	if _, err := lookup(table); err != nil {
		return 0, err
	}
	w, args, err := joinWhere(where)
	if err != nil {
		return 0, err
	}
	res, err := s.exec(ctx, "DELETE FROM "+quote(string(table))+w, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
