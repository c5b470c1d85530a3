package schema

const (
	Emplacement               TableName = "emplacement"
	Preparation               TableName = "preparation"
	ArticlePrepa              TableName = "article_prepa"
	ArticlePrepaByRefArticle  TableName = "article_prepa_by_ref_article"
	Livraison                 TableName = "livraison"
	ArticleLivraison          TableName = "article_livraison"
	Collecte                  TableName = "collecte"
	ArticleCollecte           TableName = "article_collecte"
	ArticleInventaire         TableName = "article_inventaire"
	AnomalieInventaire        TableName = "anomalie_inventaire"
	SaisieInventaire          TableName = "saisie_inventaire"
	Handling                  TableName = "handling"
	HandlingAttachment        TableName = "handling_attachment"
	Mouvement                 TableName = "mouvement"
	MouvementTraca            TableName = "mouvement_traca"
	DemandeLivraison          TableName = "demande_livraison"
	ArticleInDemandeLivraison TableName = "article_in_demande_livraison"
	DemandeLivraisonArticle   TableName = "demande_livraison_article"
	DemandeLivraisonType      TableName = "demande_livraison_type"
	Nature                    TableName = "nature"
	AllowedNatureLocation     TableName = "allowed_nature_location"
	FreeField                 TableName = "free_field"
	Translations              TableName = "translations"
	Dispatch                  TableName = "dispatch"
	DispatchPack              TableName = "dispatch_pack"
	Status                    TableName = "status"
	TransferOrder             TableName = "transfer_order"
	TransferOrderArticle      TableName = "transfer_order_article"
)

const (
	typeID      = "INTEGER PRIMARY KEY"
	typeAutoID  = "INTEGER PRIMARY KEY AUTOINCREMENT"
	typeInt     = "INTEGER"
	typeFlag    = "INTEGER DEFAULT 0"
	typeText    = "TEXT"
	typeDefault = "INTEGER DEFAULT 1"
)

// 出荷・入荷・回収の明細テーブルは数量分割のために同じカラム構成を持ちます。
func pickableColumns(orderColumn string, extra ...Column) []Column {
	cols := []Column{
		{"id", typeAutoID},
		{"label", typeText},
		{"reference", typeText},
		{"quantite", typeInt},
		{"is_ref", typeInt},
		{orderColumn, typeInt},
		{"has_moved", typeFlag},
		{"emplacement", typeText},
		{"barcode", typeText},
		{"original_quantity", typeInt},
		{"reference_article_reference", typeText},
		{"deleted", typeFlag},
		{"isSelectableByUser", typeFlag},
	}
	return append(cols, extra...)
}

var definitions = []TableDefinition{
	{Name: Emplacement, Columns: []Column{
		{"id", typeID},
		{"label", typeText},
	}},
	{Name: Preparation, Columns: []Column{
		{"id", typeID},
		{"numero", typeText},
		{"emplacement", typeText},
		{"date_end", typeText},
		{"destination", typeText},
		{"started", typeFlag},
		{"requester", typeText},
		{"type", typeText},
		{"comment", typeText},
	}},
	{Name: ArticlePrepa, Columns: pickableColumns("id_prepa",
		Column{"type_quantite", typeText},
	)},
	{Name: ArticlePrepaByRefArticle, Columns: []Column{
		{"id", typeAutoID},
		{"reference", typeText},
		{"label", typeText},
		{"location", typeText},
		{"barcode", typeText},
		{"quantity", typeInt},
		{"reference_article", typeText},
		{"isSelectableByUser", typeDefault},
	}},
	{Name: Livraison, Columns: []Column{
		{"id", typeID},
		{"numero", typeText},
		{"emplacement", typeText},
		{"date_end", typeText},
		{"started", typeFlag},
		{"requester", typeText},
		{"type", typeText},
		{"comment", typeText},
	}},
	{Name: ArticleLivraison, Columns: pickableColumns("id_livraison")},
	{Name: Collecte, Columns: []Column{
		{"id", typeID},
		{"number", typeText},
		{"location_from", typeText},
		{"location_to", typeText},
		{"date_end", typeText},
		{"started", typeFlag},
		{"forStock", typeFlag},
		{"requester", typeText},
		{"type", typeText},
		{"comment", typeText},
	}},
	{Name: ArticleCollecte, Columns: pickableColumns("id_collecte",
		Column{"reference_label", typeText},
	)},
	{Name: ArticleInventaire, Columns: []Column{
		{"id", typeAutoID},
		{"id_mission", typeText},
		{"reference", typeText},
		{"is_ref", typeInt},
		{"location", typeText},
		{"barcode", typeText},
	}},
	{Name: AnomalieInventaire, Columns: []Column{
		{"id", typeID},
		{"reference", typeText},
		{"is_ref", typeInt},
		{"quantity", typeInt},
		{"countedQuantity", typeInt},
		{"location", typeText},
		{"is_treatable", typeInt},
		{"barcode", typeText},
	}},
	{Name: SaisieInventaire, SurvivesPartialReset: true, Columns: []Column{
		{"id", typeAutoID},
		{"id_mission", typeText},
		{"date", typeText},
		{"reference", typeText},
		{"is_ref", typeInt},
		{"quantity", typeInt},
		{"location", typeText},
	}},
	{Name: Handling, Columns: []Column{
		{"id", typeID},
		{"number", typeText},
		{"typeLabel", typeText},
		{"requester", typeText},
		{"desiredDate", typeText},
		{"comment", typeText},
		{"destination", typeText},
		{"source", typeText},
		{"statusId", typeInt},
		{"emergency", typeText},
		{"freeFields", typeText},
		{"carriedOutOperationCount", typeInt},
	}},
	{Name: HandlingAttachment, Columns: []Column{
		{"id", typeAutoID},
		{"fileName", typeText},
		{"href", typeText},
		{"handlingId", typeInt},
	}},
	{Name: Mouvement, SurvivesPartialReset: true, Columns: []Column{
		{"id", typeAutoID},
		{"uuid", typeText},
		{"reference", typeText},
		{"barcode", typeText},
		{"quantity", typeInt},
		{"date_pickup", typeText},
		{"location_from", typeText},
		{"date_drop", typeText},
		{"location", typeText},
		{"type", typeText},
		{"is_ref", typeInt},
		{"selected_by_article", typeFlag},
		{"id_article_prepa", typeInt},
		{"id_prepa", typeInt},
		{"id_article_livraison", typeInt},
		{"id_livraison", typeInt},
		{"id_article_collecte", typeInt},
		{"id_collecte", typeInt},
		{"sent", typeFlag},
		{"cancelled", typeFlag},
	}},
	{Name: MouvementTraca, SurvivesPartialReset: true, Columns: []Column{
		{"id", typeAutoID},
		{"date", typeText},
		{"ref_article", typeText},
		{"type", typeText},
		{"operateur", typeText},
		{"comment", typeText},
		{"signature", typeText},
		{"photo", typeText},
		{"nature_id", typeInt},
		{"location", typeText},
		{"quantity", typeInt},
		{"freeFields", typeText},
		{"isGroup", typeFlag},
		{"subPacks", typeText},
		{"packParent", typeText},
		{"finished", typeFlag},
		{"fromStock", typeFlag},
	}},
	{Name: DemandeLivraison, SurvivesPartialReset: true, Columns: []Column{
		{"id", typeAutoID},
		{"location_id", typeInt},
		{"comment", typeText},
		{"type_id", typeInt},
		{"user_id", typeInt},
		{"last_error", typeText},
		{"free_fields", typeText},
	}},
	{Name: ArticleInDemandeLivraison, SurvivesPartialReset: true, Columns: []Column{
		{"article_bar_code", typeText},
		{"demande_id", typeInt},
		{"quantity_to_pick", typeInt},
	}},
	{Name: DemandeLivraisonArticle, Columns: []Column{
		{"id", typeInt},
		{"label", typeText},
		{"reference", typeText},
		{"reference_label", typeText},
		{"bar_code", typeText},
		{"location_label", typeText},
		{"location_id", typeInt},
		{"to_delete", typeFlag},
	}},
	{Name: DemandeLivraisonType, Columns: []Column{
		{"id", typeInt},
		{"label", typeText},
		{"to_delete", typeFlag},
	}},
	{Name: Nature, Columns: []Column{
		{"id", typeID},
		{"label", typeText},
		{"color", typeText},
		{"hide", typeFlag},
	}},
	{Name: AllowedNatureLocation, Columns: []Column{
		{"location_id", typeInt},
		{"nature_id", typeInt},
	}},
	{Name: FreeField, Columns: []Column{
		{"id", typeID},
		{"label", typeText},
		{"typeId", typeInt},
		{"categoryType", typeText},
		{"typing", typeText},
		{"elements", typeText},
		{"defaultValue", typeText},
		{"requiredCreate", typeFlag},
		{"requiredEdit", typeFlag},
	}},
	{Name: Translations, Columns: []Column{
		{"id", typeAutoID},
		{"menu", typeText},
		{"label", typeText},
		{"translation", typeText},
	}},
	{Name: Dispatch, Columns: []Column{
		{"id", typeID},
		{"number", typeText},
		{"requester", typeText},
		{"startDate", typeText},
		{"endDate", typeText},
		{"emergency", typeText},
		{"locationFromLabel", typeText},
		{"locationToLabel", typeText},
		{"typeId", typeInt},
		{"typeLabel", typeText},
		{"statusLabel", typeText},
		{"treatedStatusId", typeInt},
		{"partial", typeFlag},
	}},
	{Name: DispatchPack, Columns: []Column{
		{"id", typeID},
		{"code", typeText},
		{"natureId", typeInt},
		{"quantity", typeInt},
		{"dispatchId", typeInt},
		{"lastLocation", typeText},
		{"treated", typeFlag},
		{"already_treated", typeFlag},
	}},
	{Name: Status, Columns: []Column{
		{"id", typeID},
		{"label", typeText},
		{"typeId", typeInt},
		{"state", typeText},
		{"category", typeText},
		{"displayOrder", typeInt},
	}},
	{Name: TransferOrder, Columns: []Column{
		{"id", typeID},
		{"number", typeText},
		{"requester", typeText},
		{"destination", typeText},
		{"treated", typeFlag},
	}},
	{Name: TransferOrderArticle, Columns: []Column{
		{"id", typeAutoID},
		{"barcode", typeText},
		{"label", typeText},
		{"reference", typeText},
		{"location", typeText},
		{"transfer_order_id", typeInt},
	}},
}
