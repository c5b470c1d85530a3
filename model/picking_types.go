package model

// Pickable は数量を分割してピックできる行です。
// 個品の明細行 (Article) と参照集約行 (RefArticle) が実装します。
type Pickable interface {
	PickID() int64
	PickReference() string
	Available() int
	SourceLocation() string
	ByReference() bool
}

// Article は出荷・入荷・回収いずれかの明細行です。
// OrderID は所属するオーダーのID (id_prepa / id_livraison / id_collecte) です。
type Article struct {
	ID               int64  `db:"id" json:"id"`
	Label            string `db:"label" json:"label"`
	Reference        string `db:"reference" json:"reference"`
	Quantity         int    `db:"quantite" json:"quantity"`
	IsRef            int    `db:"is_ref" json:"isRef"`
	OrderID          int64  `db:"order_id" json:"orderId"`
	HasMoved         int    `db:"has_moved" json:"hasMoved"`
	Location         string `db:"emplacement" json:"location"`
	Barcode          string `db:"barcode" json:"barcode"`
	OriginalQuantity int    `db:"original_quantity" json:"originalQuantity"`
	ParentReference  string `db:"reference_article_reference" json:"referenceArticleReference"`
	Deleted          int    `db:"deleted" json:"deleted"`
	SelectableByUser int    `db:"isSelectableByUser" json:"isSelectableByUser"`
}

func (a Article) PickID() int64          { return a.ID }
func (a Article) PickReference() string  { return a.Reference }
func (a Article) Available() int         { return a.Quantity }
func (a Article) SourceLocation() string { return a.Location }
func (a Article) ByReference() bool      { return false }

// Treated は has_moved が立っているかどうかです。
func (a Article) Treated() bool { return a.HasMoved == 1 }

// RefArticle はリファレンス単位で選択可能な集約行です (article_prepa_by_ref_article)。
type RefArticle struct {
	ID               int64  `db:"id" json:"id"`
	Reference        string `db:"reference" json:"reference"`
	Label            string `db:"label" json:"label"`
	Location         string `db:"location" json:"location"`
	Barcode          string `db:"barcode" json:"barcode"`
	Quantity         int    `db:"quantity" json:"quantity"`
	ReferenceArticle string `db:"reference_article" json:"referenceArticle"`
}

func (r RefArticle) PickID() int64          { return r.ID }
func (r RefArticle) PickReference() string  { return r.Reference }
func (r RefArticle) Available() int         { return r.Quantity }
func (r RefArticle) SourceLocation() string { return r.Location }
func (r RefArticle) ByReference() bool      { return true }

// Movement はピックごとに1行追加される移動記録です。
// DateDrop が空のものはまだ持ち運び中です。
type Movement struct {
	ID                int64  `db:"id" json:"id"`
	UUID              string `db:"uuid" json:"uuid"`
	Reference         string `db:"reference" json:"reference"`
	Barcode           string `db:"barcode" json:"barcode"`
	Quantity          int    `db:"quantity" json:"quantity"`
	DatePickup        string `db:"date_pickup" json:"datePickup"`
	LocationFrom      string `db:"location_from" json:"locationFrom"`
	DateDrop          string `db:"date_drop" json:"dateDrop"`
	Location          string `db:"location" json:"location"`
	Type              string `db:"type" json:"type"`
	IsRef             int    `db:"is_ref" json:"isRef"`
	SelectedByArticle int    `db:"selected_by_article" json:"selectedByArticle"`
	ItemID            int64  `db:"item_id" json:"itemId"`
	OrderID           int64  `db:"order_id" json:"orderId"`
	Family            string `db:"family" json:"family"`
}

// Open は未ドロップかどうかです。
func (m Movement) Open() bool { return m.DateDrop == "" }

// Order は出荷・入荷・回収のヘッダ行の共通部分です。
type Order struct {
	ID          int64  `db:"id" json:"id"`
	Number      string `db:"number" json:"number"`
	Started     int    `db:"started" json:"started"`
	DateEnd     string `db:"date_end" json:"dateEnd"`
	EndLocation string `db:"end_location" json:"endLocation"`
	Requester   string `db:"requester" json:"requester"`
	Type        string `db:"type" json:"type"`
	Comment     string `db:"comment" json:"comment"`
}

func (o Order) Finished() bool { return o.DateEnd != "" }

// InventoryEntry は棚卸しの入力1件です (saisie_inventaire)。
type InventoryEntry struct {
	ID        int64  `db:"id" json:"id"`
	MissionID string `db:"id_mission" json:"missionId"`
	Date      string `db:"date" json:"date"`
	Reference string `db:"reference" json:"reference"`
	IsRef     int    `db:"is_ref" json:"isRef"`
	Quantity  int    `db:"quantity" json:"quantity"`
	Location  string `db:"location" json:"location"`
}
