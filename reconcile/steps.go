package reconcile

import (
	"context"
	"fmt"
	"nomade/database"
	"nomade/schema"
	"nomade/snapshot"
)

type stepFunc func(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error)

type step struct {
	name string
	run  stepFunc
}

// 取込順は固定です。後続のステップが前のステップで入れた行を参照します。
func (e *Engine) steps(withAnomalies bool) []step {
	steps := []step{
		{"locations", importLocations},
		{"refArticles", importRefArticles},
		{"preparations", importPreparations},
		{"articlesPrepa", importArticlesPrepa},
		{"livraisons", importLivraisons},
		{"inventoryMission", importInventoryMission},
		{"handlings", importHandlings},
		{"collectes", importCollectes},
		{"tracking", importTracking},
		{"demandeLivraison", importDeliveryRequests},
		{"natures", importNatures},
		{"allowedNatures", importAllowedNatures},
		{"freeFields", importFreeFields},
		{"translations", importTranslations},
		{"dispatches", importDispatches},
		{"status", importStatus},
		{"transferOrders", importTransferOrders},
	}
	if withAnomalies {
		steps = append(steps, step{"anomalies", importAnomalies})
	}
	return steps
}

// 明細行 (出荷・入荷・回収) 共通の変換
func pickableMapper(r database.Record) database.Record {
	rename(r, "quantity", "quantite")
	rename(r, "location", "emplacement")
	rename(r, "barCode", "barcode")
	if _, ok := r["original_quantity"]; !ok {
		r["original_quantity"] = r["quantite"]
	}
	r["has_moved"] = 0
	r["deleted"] = 0
	r["isSelectableByUser"] = 0
	return r
}

func importLocations(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.Emplacement, p.Records(snapshot.Locations), nil)
	return fullReplace(ctx, tx, schema.Emplacement, rows, replaceOptions{skipIfEmpty: true})
}

func refArticleMapper(r database.Record) database.Record {
	rename(r, "barCode", "barcode")
	r["isSelectableByUser"] = 1
	return r
}

func importRefArticles(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.ArticlePrepaByRefArticle, p.Records(snapshot.ArticlesPrepaByRefArticle), refArticleMapper)
	return fullReplace(ctx, tx, schema.ArticlePrepaByRefArticle, rows, replaceOptions{})
}

// 着手済み・完了済み、またはピック済みの明細を持つ出荷は削除しません。
var untouchedPreparation = database.Where(
	"COALESCE(`started`, 0) = 0 AND `date_end` IS NULL AND `id` NOT IN " +
		"(SELECT `id_prepa` FROM `article_prepa` WHERE `has_moved` = 1 AND `id_prepa` IS NOT NULL)")

func importPreparations(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.Preparation, p.Records(snapshot.Preparations), func(r database.Record) database.Record {
		rename(r, "number", "numero")
		if _, ok := r["started"]; !ok {
			r["started"] = 0
		}
		return r
	})
	return mergeByIdentity(ctx, tx, mergeSpec{
		table:    schema.Preparation,
		preserve: []string{"started", "date_end", "emplacement"},
		prune:    &untouchedPreparation,
		children: []child{{schema.ArticlePrepa, "id_prepa"}},
	}, rows)
}

func importArticlesPrepa(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.ArticlePrepa, p.Records(snapshot.ArticlesPrepa), pickableMapper)
	return insertIfAbsent(ctx, tx, absentSpec{
		table:  schema.ArticlePrepa,
		key:    []string{"id_prepa", "reference", "is_ref"},
		scope:  []database.Clause{database.Eq("deleted", 0)},
		adjust: splitAgainstPicked,
	}, rows)
}

// splitAgainstPicked は、集約行(リファレンス品)について既にユーザーが選択して
// ピックした数量を差し引きます。全量ピック済みなら挿入しません。
func splitAgainstPicked(ctx context.Context, tx *database.Store, r database.Record) (database.Record, bool, error) {
	if r.Int("is_ref") != 1 {
		return r, true, nil
	}
	var picked int64
	err := tx.Get(ctx, &picked, `
		SELECT COALESCE(SUM(quantite), 0) FROM article_prepa
		WHERE id_prepa = ? AND isSelectableByUser = 1 AND deleted = 0
		  AND reference_article_reference = ?`,
		r["id_prepa"], r.String("reference"))
	if err != nil {
		return nil, false, fmt.Errorf("failed to sum picked quantity for %s: %w", r.String("reference"), err)
	}
	if picked == 0 {
		return r, true, nil
	}
	total := r.Int("quantite")
	if picked >= total {
		return nil, false, nil
	}
	r["quantite"] = total - picked
	r["original_quantity"] = total
	return r, true, nil
}

func importLivraisons(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	orders := project(schema.Livraison, p.Records(snapshot.Livraisons), func(r database.Record) database.Record {
		rename(r, "number", "numero")
		rename(r, "location", "emplacement")
		return r
	})
	n, err := mergeByIdentity(ctx, tx, mergeSpec{table: schema.Livraison, insertOnly: true}, orders)
	if err != nil {
		return 0, err
	}
	articles := project(schema.ArticleLivraison, p.Records(snapshot.ArticlesLivraison), pickableMapper)
	m, err := insertIfAbsent(ctx, tx, absentSpec{
		table: schema.ArticleLivraison,
		key:   []string{"id_livraison", "reference", "is_ref"},
		scope: []database.Clause{database.Eq("deleted", 0)},
	}, articles)
	return n + m, err
}

func importInventoryMission(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.ArticleInventaire, p.Records(snapshot.InventoryMission), func(r database.Record) database.Record {
		rename(r, "barCode", "barcode")
		if r.String("location") == "" {
			r["location"] = "N/A"
		}
		return r
	})
	return fullReplace(ctx, tx, schema.ArticleInventaire, rows, replaceOptions{})
}

func importHandlings(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.Handling, p.Records(snapshot.Handlings), nil)
	n, err := mergeByIdentity(ctx, tx, mergeSpec{table: schema.Handling}, rows)
	if err != nil {
		return 0, err
	}
	attachments := project(schema.HandlingAttachment, p.Records(snapshot.HandlingAttachments), nil)
	m, err := fullReplace(ctx, tx, schema.HandlingAttachment, attachments, replaceOptions{})
	return n + m, err
}

var unfinishedCollecte = database.Where(
	"`location_to` IS NULL AND `date_end` IS NULL AND `id` NOT IN " +
		"(SELECT `id_collecte` FROM `article_collecte` WHERE `has_moved` = 1 AND `id_collecte` IS NOT NULL)")

func importCollectes(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	orders := project(schema.Collecte, p.Records(snapshot.Collectes), nil)
	n, err := mergeByIdentity(ctx, tx, mergeSpec{
		table:      schema.Collecte,
		insertOnly: true,
		prune:      &unfinishedCollecte,
		children:   []child{{schema.ArticleCollecte, "id_collecte"}},
	}, orders)
	if err != nil {
		return 0, err
	}
	articles := project(schema.ArticleCollecte, p.Records(snapshot.ArticlesCollecte), pickableMapper)
	m, err := insertIfAbsent(ctx, tx, absentSpec{
		table: schema.ArticleCollecte,
		key:   []string{"id_collecte", "reference", "is_ref"},
		scope: []database.Clause{database.Eq("deleted", 0)},
	}, articles)
	return n + m, err
}

func importTracking(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	var recs []database.Record
	recs = append(recs, p.Records(snapshot.TrackingTaking)...)
	for _, r := range p.Records(snapshot.StockTaking) {
		c := r.Clone()
		c["fromStock"] = 1
		recs = append(recs, c)
	}
	rows := project(schema.MouvementTraca, recs, func(r database.Record) database.Record {
		if _, ok := r["type"]; !ok {
			r["type"] = "prise"
		}
		if _, ok := r["fromStock"]; !ok {
			r["fromStock"] = 0
		}
		return r
	})
	return insertIfAbsent(ctx, tx, absentSpec{
		table: schema.MouvementTraca,
		key:   []string{"type", "date", "ref_article"},
		scope: []database.Clause{database.Where("COALESCE(`finished`, 0) <> 1")},
	}, rows)
}

func importDeliveryRequests(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	articles := project(schema.DemandeLivraisonArticle, p.Records(snapshot.DemandeLivraisonArticles), nil)
	n, err := deleteThenReinsert(ctx, tx, preserveSpec{
		table:         schema.DemandeLivraisonArticle,
		key:           "bar_code",
		preserveQuery: "SELECT DISTINCT article_bar_code FROM article_in_demande_livraison",
	}, articles)
	if err != nil {
		return 0, err
	}
	types := project(schema.DemandeLivraisonType, p.Records(snapshot.DemandeLivraisonTypes), nil)
	m, err := deleteThenReinsert(ctx, tx, preserveSpec{
		table:         schema.DemandeLivraisonType,
		key:           "id",
		preserveQuery: "SELECT DISTINCT type_id FROM demande_livraison",
	}, types)
	return n + m, err
}

func importNatures(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.Nature, p.Records(snapshot.Natures), nil)
	return fullReplace(ctx, tx, schema.Nature, rows, replaceOptions{dedupeKey: []string{"id"}})
}

func importAllowedNatures(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.AllowedNatureLocation, p.Records(snapshot.AllowedNatureInLocations), nil)
	return fullReplace(ctx, tx, schema.AllowedNatureLocation, rows, replaceOptions{})
}

func importFreeFields(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.FreeField, p.Records(snapshot.FreeFields), nil)
	return fullReplace(ctx, tx, schema.FreeField, rows, replaceOptions{dedupeKey: []string{"id"}})
}

func importTranslations(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.Translations, p.Records(snapshot.Translations), func(r database.Record) database.Record {
		delete(r, "id")
		return r
	})
	return fullReplace(ctx, tx, schema.Translations, rows, replaceOptions{})
}

func importDispatches(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	dispatches := project(schema.Dispatch, p.Records(snapshot.Dispatches), nil)
	n, err := fullReplace(ctx, tx, schema.Dispatch, dispatches, replaceOptions{dedupeKey: []string{"id"}})
	if err != nil {
		return 0, err
	}
	packs := project(schema.DispatchPack, p.Records(snapshot.DispatchPacks), nil)
	m, err := fullReplace(ctx, tx, schema.DispatchPack, packs, replaceOptions{dedupeKey: []string{"id"}})
	return n + m, err
}

func importStatus(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.Status, p.Records(snapshot.Status), nil)
	return fullReplace(ctx, tx, schema.Status, rows, replaceOptions{dedupeKey: []string{"id"}})
}

func importTransferOrders(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	orders := project(schema.TransferOrder, p.Records(snapshot.TransferOrders), nil)
	n, err := mergeByIdentity(ctx, tx, mergeSpec{
		table:    schema.TransferOrder,
		preserve: []string{"treated"},
	}, orders)
	if err != nil {
		return 0, err
	}
	articles := project(schema.TransferOrderArticle, p.Records(snapshot.TransferOrderArticles), func(r database.Record) database.Record {
		delete(r, "id")
		return r
	})
	m, err := fullReplace(ctx, tx, schema.TransferOrderArticle, articles, replaceOptions{})
	return n + m, err
}

func importAnomalies(ctx context.Context, tx *database.Store, p snapshot.Payload) (int, error) {
	rows := project(schema.AnomalieInventaire, p.Records(snapshot.Anomalies), func(r database.Record) database.Record {
		rename(r, "barCode", "barcode")
		return r
	})
	return insertIfAbsent(ctx, tx, absentSpec{
		table: schema.AnomalieInventaire,
		key:   []string{"id"},
	}, rows)
}
