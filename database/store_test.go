package database

import (
	"context"
	"errors"
	"nomade/schema"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.ResetDatabase(context.Background(), true); err != nil {
		t.Fatalf("ResetDatabase: %v", err)
	}
	return s
}

func TestInsert_ReturnsFirstIDAndEncodesValues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.Insert(ctx, schema.Mouvement,
		Record{"reference": "A", "quantity": 1, "is_ref": true},
		Record{"reference": "B", "quantity": 2, "is_ref": false, "date_drop": nil},
		Record{"reference": "C"},
	)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if first != 1 {
		t.Errorf("first id = %d, want 1", first)
	}

	rows, err := s.FindAll(ctx, schema.Mouvement, Asc("id"))
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Int("is_ref") != 1 || rows[1].Int("is_ref") != 0 {
		t.Errorf("bool encoding = %v / %v, want 1 / 0", rows[0]["is_ref"], rows[1]["is_ref"])
	}
	if rows[2]["quantity"] != nil {
		t.Errorf("missing key should be NULL, got %v", rows[2]["quantity"])
	}
	if rows[1].String("reference") != "B" {
		t.Errorf("reference = %q, want B", rows[1].String("reference"))
	}
}

func TestInsert_ExplicitIDAndJSONValues(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.Insert(ctx, schema.FreeField, Record{"id": 42, "label": "color", "elements": []string{"red", "blue"}})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
	row, err := s.FindOneBy(ctx, schema.FreeField, map[string]any{"id": 42}, GlueAnd)
	if err != nil || row == nil {
		t.Fatalf("FindOneBy: %v, %v", row, err)
	}
	if got := row.String("elements"); got != `["red","blue"]` {
		t.Errorf("elements = %s, want JSON array", got)
	}
}

func TestInsert_ChunksLargeBatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var recs []Record
	for i := 0; i < 1200; i++ {
		recs = append(recs, Record{"menu": "m", "label": "l", "translation": i})
	}
	if _, err := s.Insert(ctx, schema.Translations, recs...); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	n, err := s.Count(ctx, schema.Translations)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1200 {
		t.Errorf("count = %d, want 1200", n)
	}
}

func TestInsert_RejectsUnknownTableAndColumn(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.Insert(ctx, "nope", Record{"a": 1}); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("err = %v, want ErrUnknownTable", err)
	}
	if _, err := s.Insert(ctx, schema.Emplacement, Record{"id": 1, "bogus": 1}); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("err = %v, want ErrUnknownColumn", err)
	}
	n, _ := s.Count(ctx, schema.Emplacement)
	if n != 0 {
		t.Errorf("rejected insert wrote %d rows", n)
	}
}

func TestFindOneBy_LikeForStringsAndGlue(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Insert(ctx, schema.Emplacement,
		Record{"id": 1, "label": "Quai A"},
		Record{"id": 2, "label": "Quai B"},
	)

	row, err := s.FindOneBy(ctx, schema.Emplacement, map[string]any{"label": "quai b"}, "")
	if err != nil {
		t.Fatalf("FindOneBy: %v", err)
	}
	if row == nil || row.Int("id") != 2 {
		t.Errorf("LIKE match = %v, want id 2", row)
	}

	row, err = s.FindOneBy(ctx, schema.Emplacement, map[string]any{"id": 1, "label": "Quai B"}, GlueAnd)
	if err != nil {
		t.Fatalf("FindOneBy: %v", err)
	}
	if row != nil {
		t.Errorf("AND glue matched %v, want nil", row)
	}

	row, _ = s.FindOneBy(ctx, schema.Emplacement, map[string]any{"id": 1, "label": "Quai B"}, GlueOr)
	if row == nil {
		t.Error("OR glue should match")
	}
}

func TestClauses_EmptyInAndNotIn(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Insert(ctx, schema.Nature, Record{"id": 1, "label": "a"}, Record{"id": 2, "label": "b"})

	rows, err := s.FindBy(ctx, schema.Nature, []Clause{In("id", []int{})})
	if err != nil {
		t.Fatalf("FindBy: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("empty IN matched %d rows, want 0", len(rows))
	}

	rows, _ = s.FindBy(ctx, schema.Nature, []Clause{NotIn("id", []int{})})
	if len(rows) != 2 {
		t.Errorf("empty NOT IN matched %d rows, want 2", len(rows))
	}

	rows, _ = s.FindBy(ctx, schema.Nature, []Clause{Or(In("id", []int{1}), Eq("label", "b"))}, Desc("id"))
	if len(rows) != 2 || rows[0].Int("id") != 2 {
		t.Errorf("OR/Desc result = %v", rows)
	}
}

func TestUpdateAndDeleteBy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Insert(ctx, schema.DispatchPack, Record{"id": 1, "code": "P1"}, Record{"id": 2, "code": "P2"})

	n, err := s.Update(ctx, schema.DispatchPack, Record{"treated": true}, Eq("code", "P1"))
	if err != nil || n != 1 {
		t.Fatalf("Update = %d, %v", n, err)
	}
	if c, _ := s.Count(ctx, schema.DispatchPack, Eq("treated", 1)); c != 1 {
		t.Errorf("treated count = %d, want 1", c)
	}

	n, err = s.DeleteBy(ctx, schema.DispatchPack, In("id", []int64{1, 2}))
	if err != nil || n != 2 {
		t.Errorf("DeleteBy = %d, %v", n, err)
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx *Store) error {
		if _, err := tx.Insert(ctx, schema.Emplacement, Record{"id": 1, "label": "L"}); err != nil {
			return err
		}
		return tx.InTx(ctx, func(inner *Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}
	if n, _ := s.Count(ctx, schema.Emplacement); n != 0 {
		t.Errorf("rows after rollback = %d, want 0", n)
	}
}

func TestResetDatabase_PartialKeepsOperatorTables(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Insert(ctx, schema.Mouvement, Record{"reference": "R"})
	s.Insert(ctx, schema.Emplacement, Record{"id": 1, "label": "L"})

	if err := s.ResetDatabase(ctx, false); err != nil {
		t.Fatalf("ResetDatabase: %v", err)
	}
	if n, _ := s.Count(ctx, schema.Mouvement); n != 1 {
		t.Errorf("mouvement rows = %d, want 1", n)
	}
	if n, _ := s.Count(ctx, schema.Emplacement); n != 0 {
		t.Errorf("emplacement rows = %d, want 0", n)
	}

	if err := s.ResetDatabase(ctx, true); err != nil {
		t.Fatalf("ResetDatabase(force): %v", err)
	}
	if n, _ := s.Count(ctx, schema.Mouvement); n != 0 {
		t.Errorf("mouvement rows after force = %d, want 0", n)
	}
}

func TestKeyString_NormalizesNumbers(t *testing.T) {
	if KeyString(12.0) != KeyString(int64(12)) {
		t.Error("12.0 and int64(12) should share a key")
	}
	if KeyString("12") != "12" {
		t.Error("string keys are kept as is")
	}
	if KeyString(nil) == KeyString("") {
		t.Error("nil and empty string must differ")
	}
}
