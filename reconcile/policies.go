package reconcile

import (
	"context"
	"fmt"
	"log"
	"nomade/database"
	"nomade/schema"
	"strings"
)

// mapper はサーバーのレコードをローカルのカラム名に合わせます。
type mapper func(database.Record) database.Record

// project は各レコードを複製して fn を適用し、テーブルにないキーを落とします。
func project(table schema.TableName, recs []database.Record, fn mapper) []database.Record {
	def := schema.MustLookup(table)
	out := make([]database.Record, 0, len(recs))
	for _, r := range recs {
		c := r.Clone()
		if fn != nil {
			c = fn(c)
		}
		out = append(out, database.Record(def.Project(c)))
	}
	return out
}

// rename は from のキーを to に移します。to が既にあれば上書きしません。
func rename(r database.Record, from, to string) {
	v, ok := r[from]
	if !ok {
		return
	}
	delete(r, from)
	if _, exists := r[to]; !exists {
		r[to] = v
	}
}

// dedupe はキーが重複するレコードを後勝ちでまとめます。順序は最初の出現位置です。
func dedupe(recs []database.Record, columns ...string) []database.Record {
	idx := map[string]int{}
	out := make([]database.Record, 0, len(recs))
	for _, r := range recs {
		k := naturalKey(r, columns)
		if i, ok := idx[k]; ok {
			out[i] = r
			continue
		}
		idx[k] = len(out)
		out = append(out, r)
	}
	return out
}

func naturalKey(r database.Record, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = database.KeyString(r[c])
	}
	return strings.Join(parts, "\x1f")
}

type replaceOptions struct {
	// skipIfEmpty: 受信が空のときはローカルを消さない
	skipIfEmpty bool
	dedupeKey   []string
	// scope が空なら全件削除
	scope []database.Clause
}

// fullReplace はローカルの行を削除して受信分を入れ直します。
func fullReplace(ctx context.Context, tx *database.Store, table schema.TableName, rows []database.Record, opts replaceOptions) (int, error) {
	if opts.skipIfEmpty && len(rows) == 0 {
		return 0, nil
	}
	if _, err := tx.DeleteBy(ctx, table, opts.scope...); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if len(opts.dedupeKey) > 0 {
		rows = dedupe(rows, opts.dedupeKey...)
	}
	if _, err := tx.Insert(ctx, table, rows...); err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", table, err)
	}
	return len(rows), nil
}

type child struct {
	table  schema.TableName
	column string
}

type mergeSpec struct {
	table schema.TableName
	// preserve のカラムはローカルの値を残します (作業中の状態)
	preserve []string
	// insertOnly の場合、既存行は更新しません
	insertOnly bool
	// prune が非nilなら、受信にない行のうち prune に合うものを子テーブルごと削除します
	prune    *database.Clause
	children []child
}

// mergeByIdentity は id で突き合わせて、既存行は更新、新規は挿入します。
// 受信にないローカル行は prune に合う場合だけ削除します。
func mergeByIdentity(ctx context.Context, tx *database.Store, spec mergeSpec, rows []database.Record) (int, error) {
	rows = dedupe(rows, "id")

	existing, err := tx.FindAll(ctx, spec.table)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", spec.table, err)
	}
	known := make(map[string]bool, len(existing))
	for _, e := range existing {
		known[database.KeyString(e["id"])] = true
	}

	preserved := map[string]bool{"id": true}
	for _, c := range spec.preserve {
		preserved[c] = true
	}

	incoming := make([]any, 0, len(rows))
	var toInsert []database.Record
	touched := 0
	for _, r := range rows {
		id := r["id"]
		if id == nil {
			log.Printf("WARN: [Import] %s record without id skipped", spec.table)
			continue
		}
		incoming = append(incoming, id)
		if !known[database.KeyString(id)] {
			toInsert = append(toInsert, r)
			continue
		}
		if spec.insertOnly {
			continue
		}
		values := database.Record{}
		for k, v := range r {
			if !preserved[k] {
				values[k] = v
			}
		}
		if len(values) == 0 {
			continue
		}
		if _, err := tx.Update(ctx, spec.table, values, database.Eq("id", id)); err != nil {
			return 0, fmt.Errorf("failed to update %s %v: %w", spec.table, id, err)
		}
		touched++
	}

	if _, err := tx.Insert(ctx, spec.table, toInsert...); err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", spec.table, err)
	}
	touched += len(toInsert)

	if spec.prune != nil {
		stale, err := tx.FindBy(ctx, spec.table, []database.Clause{database.NotIn("id", incoming), *spec.prune})
		if err != nil {
			return 0, fmt.Errorf("failed to find stale %s: %w", spec.table, err)
		}
		if len(stale) > 0 {
			ids := make([]int64, len(stale))
			for i, s := range stale {
				ids[i] = s.Int("id")
			}
			for _, c := range spec.children {
				if _, err := tx.DeleteBy(ctx, c.table, database.In(c.column, ids)); err != nil {
					return 0, fmt.Errorf("failed to prune %s: %w", c.table, err)
				}
			}
			if _, err := tx.DeleteBy(ctx, spec.table, database.In("id", ids)); err != nil {
				return 0, fmt.Errorf("failed to prune %s: %w", spec.table, err)
			}
			log.Printf("INFO: [Import] pruned %d %s rows absent from snapshot", len(ids), spec.table)
		}
	}
	return touched, nil
}

// adjuster は挿入直前のレコードを補正します。false を返すと挿入しません。
type adjuster func(ctx context.Context, tx *database.Store, r database.Record) (database.Record, bool, error)

type absentSpec struct {
	table schema.TableName
	key   []string
	// scope は「既にある」と見なすローカル行の範囲
	scope  []database.Clause
	adjust adjuster
}

// insertIfAbsent は自然キーがローカルにまだない行だけを挿入します。
func insertIfAbsent(ctx context.Context, tx *database.Store, spec absentSpec, rows []database.Record) (int, error) {
	existing, err := tx.FindBy(ctx, spec.table, spec.scope)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", spec.table, err)
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[naturalKey(e, spec.key)] = true
	}

	var toInsert []database.Record
	for _, r := range rows {
		k := naturalKey(r, spec.key)
		if seen[k] {
			continue
		}
		seen[k] = true
		if spec.adjust != nil {
			adjusted, keep, err := spec.adjust(ctx, tx, r)
			if err != nil {
				return 0, err
			}
			if !keep {
				continue
			}
			r = adjusted
		}
		toInsert = append(toInsert, r)
	}

	if _, err := tx.Insert(ctx, spec.table, toInsert...); err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", spec.table, err)
	}
	return len(toInsert), nil
}

type preserveSpec struct {
	table schema.TableName
	key   string
	// preserveQuery は下書きから参照されているキーを1列で返すSQL
	preserveQuery string
}

// deleteThenReinsert は、受信にあるキーと下書きから参照されていないキーの行を消し、
// 残った行 (下書きが参照しているもの) に to_delete を立ててから受信分を入れます。
func deleteThenReinsert(ctx context.Context, tx *database.Store, spec preserveSpec, rows []database.Record) (int, error) {
	refs, err := tx.Query(ctx, spec.preserveQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to read draft references for %s: %w", spec.table, err)
	}
	keep := make([]any, 0, len(refs))
	for _, r := range refs {
		for _, v := range r {
			if v != nil {
				keep = append(keep, v)
			}
		}
	}

	rows = dedupe(rows, spec.key)
	incoming := make([]any, 0, len(rows))
	for _, r := range rows {
		if v := r[spec.key]; v != nil {
			incoming = append(incoming, v)
		}
	}

	if _, err := tx.DeleteBy(ctx, spec.table, database.Or(
		database.In(spec.key, incoming),
		database.NotIn(spec.key, keep),
	)); err != nil {
		return 0, fmt.Errorf("failed to clear %s: %w", spec.table, err)
	}
	if _, err := tx.Update(ctx, spec.table, database.Record{"to_delete": 1}); err != nil {
		return 0, fmt.Errorf("failed to flag %s: %w", spec.table, err)
	}

	for _, r := range rows {
		r["to_delete"] = 0
	}
	if _, err := tx.Insert(ctx, spec.table, rows...); err != nil {
		return 0, fmt.Errorf("failed to insert %s: %w", spec.table, err)
	}
	return len(rows), nil
}
