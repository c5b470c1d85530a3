package picking

import (
	"errors"
	"fmt"
	"nomade/schema"
	"strings"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrQuantityExceeded = errors.New("quantity exceeds available quantity")
	ErrItemNotFound     = errors.New("item not found")
	ErrAlreadyTreated   = errors.New("item already treated")
	ErrUnsupportedItem  = errors.New("item kind not supported for this order family")
	ErrMovementNotFound = errors.New("movement not found")
	ErrMovementClosed   = errors.New("movement already dropped")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderFinished    = errors.New("order already finished")
	ErrUnknownFamily    = errors.New("unknown order family")
)

// MovementType はピックで作られる移動の種別です。
const MovementType = "prise-dépose"

// Family はオーダーの種類ごとのテーブルとカラムの対応です。
type Family struct {
	Name                string
	OrderTable          schema.TableName
	ItemTable           schema.TableName
	OrderColumn         string
	MovementItemColumn  string
	MovementOrderColumn string
	EndLocationColumn   string
	NumberColumn        string
	byRef               bool
}

var (
	Preparation = Family{
		Name:                "preparation",
		OrderTable:          schema.Preparation,
		ItemTable:           schema.ArticlePrepa,
		OrderColumn:         "id_prepa",
		MovementItemColumn:  "id_article_prepa",
		MovementOrderColumn: "id_prepa",
		EndLocationColumn:   "emplacement",
		NumberColumn:        "numero",
		byRef:               true,
	}
	Delivery = Family{
		Name:                "delivery",
		OrderTable:          schema.Livraison,
		ItemTable:           schema.ArticleLivraison,
		OrderColumn:         "id_livraison",
		MovementItemColumn:  "id_article_livraison",
		MovementOrderColumn: "id_livraison",
		EndLocationColumn:   "emplacement",
		NumberColumn:        "numero",
	}
	Collection = Family{
		Name:                "collection",
		OrderTable:          schema.Collecte,
		ItemTable:           schema.ArticleCollecte,
		OrderColumn:         "id_collecte",
		MovementItemColumn:  "id_article_collecte",
		MovementOrderColumn: "id_collecte",
		EndLocationColumn:   "location_to",
		NumberColumn:        "number",
	}
)

// FamilyByName は API や CLI で渡される名前から Family を返します。
func FamilyByName(name string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "preparation", "prepa":
		return Preparation, nil
	case "delivery", "livraison":
		return Delivery, nil
	case "collection", "collecte":
		return Collection, nil
	}
	return Family{}, fmt.Errorf("%w: %q", ErrUnknownFamily, name)
}

// SupportsByRef はリファレンス単位のピック (集約行) が使えるかどうかです。
func (f Family) SupportsByRef() bool { return f.byRef }

func (f Family) valid() bool { return f.ItemTable != "" }

func (f Family) articleSelect() string {
	return fmt.Sprintf(`
		SELECT id,
		       COALESCE(label, '') AS label,
		       COALESCE(reference, '') AS reference,
		       COALESCE(quantite, 0) AS quantite,
		       COALESCE(is_ref, 0) AS is_ref,
		       COALESCE(%s, 0) AS order_id,
		       COALESCE(has_moved, 0) AS has_moved,
		       COALESCE(emplacement, '') AS emplacement,
		       COALESCE(barcode, '') AS barcode,
		       COALESCE(original_quantity, 0) AS original_quantity,
		       COALESCE(reference_article_reference, '') AS reference_article_reference,
		       COALESCE(deleted, 0) AS deleted,
		       COALESCE(isSelectableByUser, 0) AS isSelectableByUser
		FROM %s`, f.OrderColumn, f.ItemTable)
}

func (f Family) orderSelect() string {
	return fmt.Sprintf(`
		SELECT id,
		       COALESCE(%s, '') AS number,
		       COALESCE(started, 0) AS started,
		       COALESCE(date_end, '') AS date_end,
		       COALESCE(%s, '') AS end_location,
		       COALESCE(requester, '') AS requester,
		       COALESCE(type, '') AS type,
		       COALESCE(comment, '') AS comment
		FROM %s`, f.NumberColumn, f.EndLocationColumn, f.OrderTable)
}
