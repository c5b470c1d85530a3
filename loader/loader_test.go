package loader

import (
	"bytes"
	"encoding/json"
	"nomade/snapshot"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

func TestReadPayload_KeepsNumbersExact(t *testing.T) {
	p, err := ReadPayload(strings.NewReader(`{"locations":[{"id":9007199254740993,"label":"L1"}],"natures":[]}`))
	if err != nil {
		t.Fatalf("ReadPayload: %v", err)
	}
	locs := p.Records(snapshot.Locations)
	if len(locs) != 1 {
		t.Fatalf("locations = %d, want 1", len(locs))
	}
	if n, ok := locs[0]["id"].(json.Number); !ok || n.String() != "9007199254740993" {
		t.Errorf("id = %#v, want exact json.Number", locs[0]["id"])
	}
	if got := len(p.Records(snapshot.Handlings)); got != 0 {
		t.Errorf("absent collection has %d records", got)
	}
}

func TestReadPayload_Invalid(t *testing.T) {
	if _, err := ReadPayload(strings.NewReader(`[1,2]`)); err == nil {
		t.Error("expected error for non-object payload")
	}
}

func TestReadCSVCollection_UTF8(t *testing.T) {
	src := "\ufeffid,label,color\n1,Palette,\n2,Colis,#ff0000\n"
	recs, err := ReadCSVCollection(strings.NewReader(src), "utf-8")
	if err != nil {
		t.Fatalf("ReadCSVCollection: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0]["id"] != "1" {
		t.Errorf("id = %#v, want \"1\"", recs[0]["id"])
	}
	if recs[0]["color"] != nil {
		t.Errorf("empty cell = %#v, want nil", recs[0]["color"])
	}
	if recs[1].String("label") != "Colis" {
		t.Errorf("label = %q, want Colis", recs[1].String("label"))
	}
}

func TestReadCSVCollection_ShiftJIS(t *testing.T) {
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, japanese.ShiftJIS.NewEncoder())
	w.Write([]byte("id,label\n1,棚A\n"))
	w.Close()

	recs, err := ReadCSVCollection(&buf, "shift_jis")
	if err != nil {
		t.Fatalf("ReadCSVCollection: %v", err)
	}
	if len(recs) != 1 || recs[0].String("label") != "棚A" {
		t.Errorf("records = %v, want label 棚A", recs)
	}
}

func TestReadCSVCollection_UnknownEncoding(t *testing.T) {
	if _, err := ReadCSVCollection(strings.NewReader("a\n1\n"), "latin9"); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}

func TestReadCSVCollection_KeepsLeadingZeros(t *testing.T) {
	recs, err := ReadCSVCollection(strings.NewReader("bar_code,reference,quantity\n04901234567894,007, 3 \n"), "")
	if err != nil {
		t.Fatalf("ReadCSVCollection: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if got := recs[0].String("bar_code"); got != "04901234567894" {
		t.Errorf("bar_code = %q, want 04901234567894", got)
	}
	if got := recs[0].String("reference"); got != "007" {
		t.Errorf("reference = %q, want 007", got)
	}
	if got := recs[0].Int("quantity"); got != 3 {
		t.Errorf("quantity = %d, want 3", got)
	}
}
