package reconcile

import (
	"context"
	"errors"
	"nomade/database"
	"nomade/loader"
	"nomade/schema"
	"nomade/snapshot"
	"strconv"
	"strings"
	"testing"
)

type fakeRights struct {
	ok  bool
	err error
}

func (f fakeRights) InventoryManagerRight(ctx context.Context) (bool, error) {
	return f.ok, f.err
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	s, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.ResetDatabase(context.Background(), true); err != nil {
		t.Fatalf("ResetDatabase: %v", err)
	}
	return s
}

func payload(t *testing.T, js string) snapshot.Payload {
	t.Helper()
	p, err := loader.ReadPayload(strings.NewReader(js))
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	return p
}

func mustInsert(t *testing.T, s *database.Store, table schema.TableName, recs ...database.Record) {
	t.Helper()
	if _, err := s.Insert(context.Background(), table, recs...); err != nil {
		t.Fatalf("Insert %s: %v", table, err)
	}
}

func count(t *testing.T, s *database.Store, table schema.TableName, where ...database.Clause) int {
	t.Helper()
	n, err := s.Count(context.Background(), table, where...)
	if err != nil {
		t.Fatalf("Count %s: %v", table, err)
	}
	return n
}

const fullSnapshot = `{
	"locations": [{"id": 1, "label": "L1"}, {"id": 2, "label": "L2"}],
	"preparations": [{"id": 10, "number": "P-10", "emplacement": "E1"}],
	"articlesPrepa": [
		{"id_prepa": 10, "reference": "A1", "label": "Art 1", "quantity": 4, "is_ref": 0, "location": "L1", "barCode": "BC-A1"},
		{"id_prepa": 10, "reference": "R1", "label": "Ref 1", "quantity": 5, "is_ref": 1, "location": "L2", "barCode": "BC-R1"}
	],
	"articlesPrepaByRefArticle": [
		{"reference": "A9", "label": "Child", "location": "L1", "barCode": "BC1", "quantity": 5, "reference_article": "R1"}
	],
	"livraisons": [{"id": 20, "number": "L-20", "location": "E2"}],
	"articlesLivraison": [{"id_livraison": 20, "reference": "A2", "quantity": 2, "is_ref": 0, "barCode": "BC-A2"}],
	"collectes": [{"id": 30, "number": "C-30", "location_from": "L1"}],
	"articlesCollecte": [{"id_collecte": 30, "reference": "A3", "quantity": 1, "is_ref": 0}],
	"inventoryMission": [{"id_mission": "M1", "reference": "A1", "is_ref": 0, "barCode": "BC-A1"}],
	"trackingTaking": [{"date": "2024-01-01T10:00:00", "ref_article": "PACK1", "type": "prise", "location": "L1"}],
	"stockTaking": [{"date": "2024-01-01T11:00:00", "ref_article": "A1", "location": "L1"}],
	"demandeLivraisonArticles": [{"id": 1, "bar_code": "B3", "reference": "A3"}],
	"demandeLivraisonTypes": [{"id": 9, "label": "Standard"}],
	"natures": [{"id": 1, "label": "N1"}, {"id": 1, "label": "N1b"}],
	"translations": [{"id": 7, "menu": "home", "label": "title", "translation": "Accueil"}],
	"status": [{"id": 1, "label": "draft"}],
	"transferOrders": [{"id": 40, "number": "T-40", "treated": 0}],
	"transferOrderArticles": [{"id": 99, "transfer_order_id": 40, "barcode": "BC-T"}],
	"anomalies": [{"id": 5, "reference": "A1", "barCode": "BC-X", "quantity": 1}]
}`

func TestImport_StepOrderAndIdempotence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := New(s, fakeRights{ok: true})
	p := payload(t, fullSnapshot)

	first, err := e.Import(ctx, p)
	if err != nil {
		t.Fatalf("first Import: %v", err)
	}
	if first.Steps[0].Name != "locations" || first.Steps[len(first.Steps)-1].Name != "anomalies" {
		t.Errorf("step order = %v", first.Steps)
	}

	before := map[schema.TableName]int{}
	for _, def := range schema.Definitions() {
		before[def.Name] = count(t, s, def.Name)
	}

	if _, err := e.Import(ctx, p); err != nil {
		t.Fatalf("second Import: %v", err)
	}
	for _, def := range schema.Definitions() {
		if got := count(t, s, def.Name); got != before[def.Name] {
			t.Errorf("%s: %d rows after re-import, want %d", def.Name, got, before[def.Name])
		}
	}

	if before[schema.Nature] != 1 {
		t.Errorf("natures = %d, want 1 after dedupe", before[schema.Nature])
	}
	n, err := s.FindOneBy(ctx, schema.Nature, map[string]any{"id": 1}, database.GlueAnd)
	if err != nil || n == nil {
		t.Fatalf("FindOneBy nature: %v", err)
	}
	if n.String("label") != "N1b" {
		t.Errorf("nature label = %q, want last occurrence N1b", n.String("label"))
	}
	if before[schema.MouvementTraca] != 2 {
		t.Errorf("tracking rows = %d, want 2", before[schema.MouvementTraca])
	}
	if count(t, s, schema.MouvementTraca, database.Eq("fromStock", 1)) != 1 {
		t.Errorf("stock taking row should carry fromStock=1")
	}
	if count(t, s, schema.ArticleInventaire, database.Eq("location", "N/A")) != 1 {
		t.Errorf("inventory mission location should default to N/A")
	}
}

func TestImport_UnknownCollectionsAndEmptyLocations(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, schema.Emplacement, database.Record{"id": 1, "label": "kept"})

	e := New(s, nil)
	report, err := e.Import(ctx, payload(t, `{"somethingNew": [{"x": 1}], "locations": []}`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if !report.AnomaliesSkipped {
		t.Errorf("anomalies should be skipped without a rights source")
	}
	if count(t, s, schema.Emplacement) != 1 {
		t.Errorf("empty locations collection must not clear local locations")
	}
}

func TestImport_PreservesDraftReferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, schema.DemandeLivraison, database.Record{"type_id": 7, "comment": "draft"})
	mustInsert(t, s, schema.ArticleInDemandeLivraison, database.Record{"article_bar_code": "B1", "demande_id": 1, "quantity_to_pick": 2})
	mustInsert(t, s, schema.DemandeLivraisonArticle,
		database.Record{"id": 1, "bar_code": "B1"},
		database.Record{"id": 2, "bar_code": "B2"},
	)
	mustInsert(t, s, schema.DemandeLivraisonType,
		database.Record{"id": 7, "label": "old"},
		database.Record{"id": 8, "label": "unused"},
	)

	e := New(s, fakeRights{})
	_, err := e.Import(ctx, payload(t, `{
		"demandeLivraisonArticles": [{"id": 3, "bar_code": "B3"}],
		"demandeLivraisonTypes": [{"id": 9, "label": "new"}]
	}`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	tests := []struct {
		table    schema.TableName
		key      string
		value    any
		present  bool
		toDelete int64
	}{
		{schema.DemandeLivraisonArticle, "bar_code", "B1", true, 1},
		{schema.DemandeLivraisonArticle, "bar_code", "B2", false, 0},
		{schema.DemandeLivraisonArticle, "bar_code", "B3", true, 0},
		{schema.DemandeLivraisonType, "id", 7, true, 1},
		{schema.DemandeLivraisonType, "id", 8, false, 0},
		{schema.DemandeLivraisonType, "id", 9, true, 0},
	}
	for _, tt := range tests {
		rows, err := s.FindBy(ctx, tt.table, []database.Clause{database.Eq(tt.key, tt.value)})
		if err != nil {
			t.Fatalf("FindBy: %v", err)
		}
		if !tt.present {
			if len(rows) != 0 {
				t.Errorf("%s %v should have been removed", tt.table, tt.value)
			}
			continue
		}
		if len(rows) != 1 {
			t.Errorf("%s %v: %d rows, want 1", tt.table, tt.value, len(rows))
			continue
		}
		if got := rows[0].Int("to_delete"); got != tt.toDelete {
			t.Errorf("%s %v: to_delete = %d, want %d", tt.table, tt.value, got, tt.toDelete)
		}
	}

	// 下書きが参照していても、サーバーが再送した行は最新の1行だけになる
	if _, err := e.Import(ctx, payload(t, `{"demandeLivraisonArticles": [{"id": 1, "bar_code": "B1", "label": "fresh"}]}`)); err != nil {
		t.Fatalf("second Import: %v", err)
	}
	rows, err := s.FindBy(ctx, schema.DemandeLivraisonArticle, []database.Clause{database.Eq("bar_code", "B1")})
	if err != nil {
		t.Fatalf("FindBy: %v", err)
	}
	if len(rows) != 1 || rows[0].Int("to_delete") != 0 || rows[0].String("label") != "fresh" {
		t.Errorf("resent B1 = %v, want one fresh row with to_delete=0", rows)
	}
}

func TestImport_MergeKeepsOperatorState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, schema.Preparation,
		database.Record{"id": 1, "numero": "P-1", "started": 1, "emplacement": "LOCAL"},
		database.Record{"id": 2, "numero": "P-2", "started": 0},
		database.Record{"id": 3, "numero": "P-3", "started": 0},
	)
	mustInsert(t, s, schema.ArticlePrepa,
		database.Record{"id_prepa": 2, "reference": "X", "quantite": 1, "is_ref": 0, "has_moved": 0, "deleted": 0},
		database.Record{"id_prepa": 3, "reference": "Y", "quantite": 1, "is_ref": 0, "has_moved": 1, "deleted": 0},
	)
	mustInsert(t, s, schema.TransferOrder, database.Record{"id": 40, "number": "T-40", "treated": 1})

	e := New(s, nil)
	_, err := e.Import(ctx, payload(t, `{
		"preparations": [
			{"id": 1, "number": "P-1-srv", "started": 0, "emplacement": "SRV"},
			{"id": 4, "number": "P-4"}
		],
		"transferOrders": [{"id": 40, "number": "T-40b", "treated": 0}]
	}`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	for id, want := range map[int]bool{1: true, 2: false, 3: true, 4: true} {
		got := count(t, s, schema.Preparation, database.Eq("id", id)) == 1
		if got != want {
			t.Errorf("preparation %d present = %t, want %t", id, got, want)
		}
	}
	if count(t, s, schema.ArticlePrepa, database.Eq("id_prepa", 2)) != 0 {
		t.Errorf("items of pruned preparation 2 should be removed")
	}

	p1, err := s.FindOneBy(ctx, schema.Preparation, map[string]any{"id": 1}, database.GlueAnd)
	if err != nil || p1 == nil {
		t.Fatalf("FindOneBy: %v", err)
	}
	if p1.String("numero") != "P-1-srv" {
		t.Errorf("numero = %q, want server value", p1.String("numero"))
	}
	if p1.Int("started") != 1 || p1.String("emplacement") != "LOCAL" {
		t.Errorf("local state overwritten: started=%d emplacement=%q", p1.Int("started"), p1.String("emplacement"))
	}

	to, err := s.FindOneBy(ctx, schema.TransferOrder, map[string]any{"id": 40}, database.GlueAnd)
	if err != nil || to == nil {
		t.Fatalf("FindOneBy: %v", err)
	}
	if to.Int("treated") != 1 || to.String("number") != "T-40b" {
		t.Errorf("transfer order = %v, want treated kept and number updated", to)
	}
}

func TestImport_SplitsAggregateAgainstPicks(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		picked   int
		wantRows int
		wantQty  int64
	}{
		{"partly picked", 5, 3, 1, 2},
		{"fully picked", 3, 3, 0, 0},
		{"not picked", 4, 0, 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)
			mustInsert(t, s, schema.Preparation, database.Record{"id": 10, "numero": "P-10", "started": 1})
			if tt.picked > 0 {
				mustInsert(t, s, schema.ArticlePrepa, database.Record{
					"id_prepa": 10, "reference": "A9", "is_ref": 1, "quantite": tt.picked,
					"has_moved": 1, "deleted": 0, "isSelectableByUser": 1,
					"reference_article_reference": "R1",
				})
			}

			js := `{"preparations": [{"id": 10, "number": "P-10"}],
				"articlesPrepa": [{"id_prepa": 10, "reference": "R1", "is_ref": 1, "quantity": ` +
				strconv.Itoa(tt.total) + `}]}`
			if _, err := New(s, nil).Import(ctx, payload(t, js)); err != nil {
				t.Fatalf("Import: %v", err)
			}

			rows, err := s.FindBy(ctx, schema.ArticlePrepa, []database.Clause{database.Eq("reference", "R1")})
			if err != nil {
				t.Fatalf("FindBy: %v", err)
			}
			if len(rows) != tt.wantRows {
				t.Fatalf("R1 rows = %d, want %d", len(rows), tt.wantRows)
			}
			if tt.wantRows == 1 {
				if got := rows[0].Int("quantite"); got != tt.wantQty {
					t.Errorf("quantite = %d, want %d", got, tt.wantQty)
				}
				if got := rows[0].Int("original_quantity"); got != int64(tt.total) {
					t.Errorf("original_quantity = %d, want %d", got, tt.total)
				}
			}
		})
	}
}

func TestImport_AnomaliesFollowRights(t *testing.T) {
	js := `{"anomalies": [{"id": 5, "reference": "A1", "barCode": "BC-X"}]}`
	tests := []struct {
		name    string
		rights  Rights
		want    int
		skipped bool
	}{
		{"granted", fakeRights{ok: true}, 1, false},
		{"denied", fakeRights{ok: false}, 0, true},
		{"lookup failed", fakeRights{err: errors.New("no session")}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			report, err := New(s, tt.rights).Import(context.Background(), payload(t, js))
			if err != nil {
				t.Fatalf("Import: %v", err)
			}
			if report.AnomaliesSkipped != tt.skipped {
				t.Errorf("AnomaliesSkipped = %t, want %t", report.AnomaliesSkipped, tt.skipped)
			}
			if got := count(t, s, schema.AnomalieInventaire); got != tt.want {
				t.Errorf("anomalies = %d, want %d", got, tt.want)
			}
			if tt.want == 1 && count(t, s, schema.AnomalieInventaire, database.Eq("barcode", "BC-X")) != 1 {
				t.Errorf("barCode should be stored as barcode")
			}
		})
	}
}

func TestImport_CancelledLeavesStoreUntouched(t *testing.T) {
	s := newTestStore(t)
	mustInsert(t, s, schema.Emplacement, database.Record{"id": 1, "label": "old"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(s, nil).Import(ctx, payload(t, `{"locations": [{"id": 2, "label": "new"}]}`))
	if !errors.Is(err, ErrImportCancelled) {
		t.Fatalf("err = %v, want ErrImportCancelled", err)
	}
	if count(t, s, schema.Emplacement, database.Eq("label", "old")) != 1 || count(t, s, schema.Emplacement) != 1 {
		t.Errorf("cancelled import must not change the store")
	}
}

func TestImportPartialRefArticles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, schema.ArticlePrepaByRefArticle,
		database.Record{"reference": "A1", "reference_article": "R1", "quantity": 3},
		database.Record{"reference": "A2", "reference_article": "R2", "quantity": 4},
	)

	n, err := New(s, nil).ImportPartialRefArticles(ctx, payload(t, `{
		"articlesPrepaByRefArticle": [{"reference": "A5", "reference_article": "R1", "quantity": 6, "barCode": "BC5"}]
	}`))
	if err != nil {
		t.Fatalf("ImportPartialRefArticles: %v", err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
	for ref, want := range map[string]int{"A1": 0, "A2": 1, "A5": 1} {
		if got := count(t, s, schema.ArticlePrepaByRefArticle, database.Eq("reference", ref)); got != want {
			t.Errorf("%s rows = %d, want %d", ref, got, want)
		}
	}
	if count(t, s, schema.ArticlePrepaByRefArticle, database.Eq("barcode", "BC5"), database.Eq("isSelectableByUser", 1)) != 1 {
		t.Errorf("partial rows should be mapped like a full import")
	}
}

func TestImport_TrackingKeyedAmongUnfinishedRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustInsert(t, s, schema.MouvementTraca,
		database.Record{"type": "prise", "date": "2024-01-01T10:00:00", "ref_article": "PACK1", "finished": 0, "fromStock": 0},
		database.Record{"type": "prise", "date": "2024-01-01T12:00:00", "ref_article": "PACK2", "finished": 1, "fromStock": 0},
	)

	_, err := New(s, nil).Import(ctx, payload(t, `{"trackingTaking": [
		{"date": "2024-01-01T10:00:00", "ref_article": "PACK1", "type": "prise"},
		{"date": "2024-01-01T12:00:00", "ref_article": "PACK2", "type": "prise"}
	]}`))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if n := count(t, s, schema.MouvementTraca, database.Eq("ref_article", "PACK1")); n != 1 {
		t.Errorf("PACK1 rows = %d, want 1 (unfinished local row kept)", n)
	}
	if n := count(t, s, schema.MouvementTraca, database.Eq("ref_article", "PACK2")); n != 2 {
		t.Errorf("PACK2 rows = %d, want 2 (finished local row does not block the server row)", n)
	}
}
