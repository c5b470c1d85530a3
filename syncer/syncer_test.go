package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"nomade/database"
	"nomade/model"
	"nomade/picking"
	"nomade/reconcile"
	"nomade/schema"
	"nomade/snapshot"
	"os"
	"path/filepath"
	"testing"
)

type recorder struct {
	calls []string
	sent  []model.Movement
	err   error
}

func (r *recorder) SendMovements(ctx context.Context, movements []model.Movement) error {
	r.calls = append(r.calls, "send")
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, movements...)
	return nil
}

func (r *recorder) source() FileSource {
	return FileSource{Load: func() (snapshot.Payload, error) {
		r.calls = append(r.calls, "fetch")
		return snapshot.Payload{
			snapshot.Locations: {{"id": 7, "label": "NEW"}},
		}, nil
	}}
}

// setup は出荷1件をピックしてドロップ済みの移動を1件作ります。
func setup(t *testing.T) (*database.Store, *picking.Ledger, *reconcile.Engine) {
	t.Helper()
	ctx := context.Background()
	s, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.ResetDatabase(ctx, true); err != nil {
		t.Fatalf("ResetDatabase: %v", err)
	}
	if _, err := s.Insert(ctx, schema.Preparation, database.Record{"id": 1, "numero": "P-1", "started": 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := s.Insert(ctx, schema.ArticlePrepa, database.Record{
		"id": 1, "id_prepa": 1, "reference": "A1", "quantite": 2, "original_quantity": 2,
		"is_ref": 0, "has_moved": 0, "deleted": 0, "isSelectableByUser": 0, "emplacement": "L1",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	l := picking.NewLedger(s)
	res, err := l.Pick(ctx, picking.PickRequest{Family: picking.Preparation, OrderID: 1, ItemID: 1, Quantity: 2})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if err := l.Drop(ctx, res.MovementID, "QUAI"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	return s, l, reconcile.New(s, nil)
}

func TestRun_SendsBeforeImport(t *testing.T) {
	ctx := context.Background()
	s, l, e := setup(t)
	rec := &recorder{}

	res, err := New(l, e, rec.source(), rec).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.calls) != 2 || rec.calls[0] != "send" || rec.calls[1] != "fetch" {
		t.Errorf("calls = %v, want [send fetch]", rec.calls)
	}
	if res.Sent != 1 || len(rec.sent) != 1 || rec.sent[0].Location != "QUAI" {
		t.Errorf("sent = %d %+v", res.Sent, rec.sent)
	}
	if res.Report == nil {
		t.Fatalf("missing import report")
	}
	if n, _ := s.Count(ctx, schema.Emplacement, database.Eq("label", "NEW")); n != 1 {
		t.Errorf("snapshot not imported")
	}
	if pending, _ := l.PendingMovements(ctx); len(pending) != 0 {
		t.Errorf("movements still pending after send: %+v", pending)
	}

	rec.calls = nil
	res, err = New(l, e, rec.source(), rec).Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Sent != 0 || len(rec.calls) != 1 || rec.calls[0] != "fetch" {
		t.Errorf("second run sent=%d calls=%v", res.Sent, rec.calls)
	}
}

func TestRun_SendFailureSkipsImport(t *testing.T) {
	ctx := context.Background()
	s, l, e := setup(t)
	rec := &recorder{err: errors.New("offline")}

	if _, err := New(l, e, rec.source(), rec).Run(ctx); err == nil {
		t.Fatalf("Run should fail when sending fails")
	}
	if len(rec.calls) != 1 || rec.calls[0] != "send" {
		t.Errorf("calls = %v, want only send", rec.calls)
	}
	if n, _ := s.Count(ctx, schema.Emplacement); n != 0 {
		t.Errorf("snapshot imported despite failed send")
	}
	if pending, _ := l.PendingMovements(ctx); len(pending) != 1 {
		t.Errorf("movement should stay pending, got %d", len(pending))
	}
}

func TestRun_NoSinkWithPendingMovements(t *testing.T) {
	_, l, e := setup(t)
	if _, err := New(l, e, nil, nil).Run(context.Background()); err == nil {
		t.Errorf("Run without sink should fail while movements are pending")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "movements.json")
	mvts := []model.Movement{{ID: 1, UUID: "u-1", Reference: "A1", Quantity: 2, Location: "QUAI"}}
	if err := (FileSink{Path: path}).SendMovements(context.Background(), mvts); err != nil {
		t.Fatalf("SendMovements: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got []model.Movement
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].UUID != "u-1" || got[0].Location != "QUAI" {
		t.Errorf("written = %+v", got)
	}
}
