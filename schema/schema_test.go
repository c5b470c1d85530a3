package schema

import (
	"strings"
	"testing"
)

func TestDefinitions_UniqueAndLookup(t *testing.T) {
	defs := Definitions()
	if len(defs) == 0 {
		t.Fatal("no table definitions")
	}
	for _, def := range defs {
		got, ok := Lookup(def.Name)
		if !ok {
			t.Fatalf("Lookup(%s) not found", def.Name)
		}
		if len(got.Columns) == 0 {
			t.Errorf("%s has no columns", def.Name)
		}
	}
	if _, ok := Lookup("nope"); ok {
		t.Error("Lookup(nope) should fail")
	}
}

func TestMustLookup_PanicsOnUnknown(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for undeclared table")
		}
	}()
	MustLookup("missing_table")
}

func TestSurvivingTables(t *testing.T) {
	want := map[TableName]bool{
		Mouvement:                 true,
		MouvementTraca:            true,
		DemandeLivraison:          true,
		ArticleInDemandeLivraison: true,
		SaisieInventaire:          true,
	}
	for _, def := range Definitions() {
		if def.SurvivesPartialReset != want[def.Name] {
			t.Errorf("%s SurvivesPartialReset = %v, want %v", def.Name, def.SurvivesPartialReset, want[def.Name])
		}
	}
}

func TestCreateStatement(t *testing.T) {
	stmt := MustLookup(Emplacement).CreateStatement()
	want := "CREATE TABLE IF NOT EXISTS `emplacement` (`id` INTEGER PRIMARY KEY, `label` TEXT)"
	if stmt != want {
		t.Errorf("CreateStatement = %q, want %q", stmt, want)
	}
	if !strings.HasPrefix(MustLookup(Mouvement).DropStatement(), "DROP TABLE IF EXISTS") {
		t.Error("DropStatement must be idempotent")
	}
}

func TestProject(t *testing.T) {
	def := MustLookup(Translations)
	in := map[string]any{"menu": "m", "label": "l", "translation": "t", "extra": 1}
	out := def.Project(in)
	if len(out) != 3 {
		t.Fatalf("Project kept %d keys, want 3: %v", len(out), out)
	}
	if _, ok := out["extra"]; ok {
		t.Error("extra key should be dropped")
	}
	if unk := def.UnknownColumns(in); len(unk) != 1 || unk[0] != "extra" {
		t.Errorf("UnknownColumns = %v, want [extra]", unk)
	}
}

func TestPickableTablesShareLedgerColumns(t *testing.T) {
	for _, name := range []TableName{ArticlePrepa, ArticleLivraison, ArticleCollecte} {
		def := MustLookup(name)
		for _, col := range []string{"quantite", "original_quantity", "has_moved", "deleted", "isSelectableByUser", "reference_article_reference"} {
			if !def.HasColumn(col) {
				t.Errorf("%s missing ledger column %s", name, col)
			}
		}
	}
}
