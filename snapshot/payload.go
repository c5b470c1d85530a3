package snapshot

import "nomade/database"

// サーバーが返すスナップショットのコレクション名
const (
	Locations                 = "locations"
	Preparations              = "preparations"
	ArticlesPrepa             = "articlesPrepa"
	ArticlesPrepaByRefArticle = "articlesPrepaByRefArticle"
	Livraisons                = "livraisons"
	ArticlesLivraison         = "articlesLivraison"
	InventoryMission          = "inventoryMission"
	Handlings                 = "handlings"
	HandlingAttachments       = "handlingAttachments"
	Collectes                 = "collectes"
	ArticlesCollecte          = "articlesCollecte"
	TrackingTaking            = "trackingTaking"
	StockTaking               = "stockTaking"
	DemandeLivraisonArticles  = "demandeLivraisonArticles"
	DemandeLivraisonTypes     = "demandeLivraisonTypes"
	Natures                   = "natures"
	AllowedNatureInLocations  = "allowedNatureInLocations"
	FreeFields                = "freeFields"
	Translations              = "translations"
	Dispatches                = "dispatches"
	DispatchPacks             = "dispatchPacks"
	Status                    = "status"
	TransferOrders            = "transferOrders"
	TransferOrderArticles     = "transferOrderArticles"
	Anomalies                 = "anomalies"
)

// Collections は既知のコレクション名の一覧です。
var Collections = []string{
	Locations, Preparations, ArticlesPrepa, ArticlesPrepaByRefArticle,
	Livraisons, ArticlesLivraison, InventoryMission, Handlings,
	HandlingAttachments, Collectes, ArticlesCollecte, TrackingTaking,
	StockTaking, DemandeLivraisonArticles, DemandeLivraisonTypes, Natures,
	AllowedNatureInLocations, FreeFields, Translations, Dispatches,
	DispatchPacks, Status, TransferOrders, TransferOrderArticles, Anomalies,
}

// Payload はコレクション名からレコード配列へのマップです。
// 存在しないキーは空として扱います。
type Payload map[string][]database.Record

// Records はコレクションを返します。nil の場合も空スライスです。
func (p Payload) Records(collection string) []database.Record {
	if p == nil {
		return []database.Record{}
	}
	recs, ok := p[collection]
	if !ok || recs == nil {
		return []database.Record{}
	}
	return recs
}

// Known は collection が既知のコレクション名かどうかです。
func Known(collection string) bool {
	for _, c := range Collections {
		if c == collection {
			return true
		}
	}
	return false
}

// Merge は other のコレクションを p に追加します (CSV取込の結果を合成する用)。
func (p Payload) Merge(other Payload) {
	for k, recs := range other {
		p[k] = append(p[k], recs...)
	}
}
