package picking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"nomade/database"
	"nomade/metrics"
	"nomade/model"
	"nomade/schema"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger は明細の数量分割とピック・移動記録を扱います。
// 元の行の読み取りから書き込みまでを1トランザクションで行い、
// 同一端末内の同時ピックは mu で直列化します。
type Ledger struct {
	store *database.Store
	mu    sync.Mutex
	now   func() time.Time
}

func NewLedger(store *database.Store) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

type PickRequest struct {
	Family   Family
	OrderID  int64
	ItemID   int64
	ByRef    bool
	Quantity int
}

type PickResult struct {
	TreatedItemID   int64  `json:"treatedItemId"`
	MovementID      int64  `json:"movementId"`
	MovementUUID    string `json:"movementUuid"`
	Merged          bool   `json:"merged"`
	SourceExhausted bool   `json:"sourceExhausted"`
}

// PickItem は Pickable からリクエストを組み立ててピックします。
func (l *Ledger) PickItem(ctx context.Context, f Family, orderID int64, item model.Pickable, quantity int) (*PickResult, error) {
	return l.Pick(ctx, PickRequest{
		Family:   f,
		OrderID:  orderID,
		ItemID:   item.PickID(),
		ByRef:    item.ByReference(),
		Quantity: quantity,
	})
}

// Pick は明細 (または集約行) から quantity 分をピックし、移動を1件記録します。
func (l *Ledger) Pick(ctx context.Context, req PickRequest) (*PickResult, error) {
	if !req.Family.valid() {
		return nil, ErrUnknownFamily
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuantity, req.Quantity)
	}
	if req.ByRef && !req.Family.byRef {
		return nil, fmt.Errorf("%w: by-reference pick on %s", ErrUnsupportedItem, req.Family.Name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var res *PickResult
	err := l.store.InTx(ctx, func(tx *database.Store) error {
		var err error
		if req.ByRef {
			res, err = l.pickByRef(ctx, tx, req)
		} else {
			res, err = l.pickUnit(ctx, tx, req)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: [Pick] %s order=%d item=%d byRef=%t qty=%d -> treated=%d movement=%d merged=%t",
		req.Family.Name, req.OrderID, req.ItemID, req.ByRef, req.Quantity, res.TreatedItemID, res.MovementID, res.Merged)
	metrics.Picked(req.Family.Name, req.Quantity)
	return res, nil
}

func (l *Ledger) pickUnit(ctx context.Context, tx *database.Store, req PickRequest) (*PickResult, error) {
	f := req.Family
	src, err := loadArticle(ctx, tx, f, req.ItemID)
	if err != nil {
		return nil, err
	}
	if src == nil || src.OrderID != req.OrderID {
		return nil, fmt.Errorf("%w: %s item %d in order %d", ErrItemNotFound, f.Name, req.ItemID, req.OrderID)
	}
	if src.Treated() {
		return nil, fmt.Errorf("%w: %s item %d", ErrAlreadyTreated, f.Name, src.ID)
	}
	if req.Quantity > src.Quantity {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrQuantityExceeded, req.Quantity, src.Quantity)
	}

	target, err := findTreated(ctx, tx, f, src.OrderID, src.IsRef, src.Reference, src.ID, false)
	if err != nil {
		return nil, err
	}

	res := &PickResult{}
	if req.Quantity == src.Quantity {
		res.SourceExhausted = true
		if target != nil {
			if err := addQuantity(ctx, tx, f.ItemTable, target.ID, req.Quantity); err != nil {
				return nil, err
			}
			if _, err := tx.Update(ctx, f.ItemTable, database.Record{"deleted": 1, "has_moved": 1, "quantite": 0}, database.Eq("id", src.ID)); err != nil {
				return nil, fmt.Errorf("failed to close %s item %d: %w", f.Name, src.ID, err)
			}
			res.TreatedItemID, res.Merged = target.ID, true
		} else {
			if _, err := tx.Update(ctx, f.ItemTable, database.Record{"has_moved": 1}, database.Eq("id", src.ID)); err != nil {
				return nil, fmt.Errorf("failed to mark %s item %d: %w", f.Name, src.ID, err)
			}
			res.TreatedItemID = src.ID
		}
	} else {
		if err := addQuantity(ctx, tx, f.ItemTable, src.ID, -req.Quantity); err != nil {
			return nil, err
		}
		if target != nil {
			if err := addQuantity(ctx, tx, f.ItemTable, target.ID, req.Quantity); err != nil {
				return nil, err
			}
			res.TreatedItemID, res.Merged = target.ID, true
		} else {
			id, err := tx.Insert(ctx, f.ItemTable, database.Record{
				"label":              src.Label,
				"reference":          src.Reference,
				"quantite":           req.Quantity,
				"original_quantity":  req.Quantity,
				"is_ref":             src.IsRef,
				f.OrderColumn:        src.OrderID,
				"has_moved":          1,
				"emplacement":        src.Location,
				"barcode":            src.Barcode,
				"deleted":            0,
				"isSelectableByUser": 1,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to split %s item %d: %w", f.Name, src.ID, err)
			}
			res.TreatedItemID = id
		}
	}

	err = l.appendMovement(ctx, tx, f, res, pickedLine{
		orderID:      src.OrderID,
		reference:    src.Reference,
		barcode:      src.Barcode,
		locationFrom: src.Location,
		quantity:     req.Quantity,
		isRef:        src.IsRef,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// pickByRef はリファレンス集約行からユーザーが選んだ数量をピックします。
// 選んだ分は article_prepa の選択済み行として実体化し、親の集約明細を減らします。
func (l *Ledger) pickByRef(ctx context.Context, tx *database.Store, req PickRequest) (*PickResult, error) {
	f := req.Family
	ref, err := loadRefArticle(ctx, tx, req.ItemID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: reference item %d", ErrItemNotFound, req.ItemID)
	}
	if req.Quantity > ref.Quantity {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrQuantityExceeded, req.Quantity, ref.Quantity)
	}

	var parent *model.Article
	if ref.ReferenceArticle != "" {
		parent, err = findParent(ctx, tx, f, req.OrderID, ref.ReferenceArticle)
		if err != nil {
			return nil, err
		}
		if parent != nil && parent.Treated() {
			return nil, fmt.Errorf("%w: reference %s", ErrAlreadyTreated, parent.Reference)
		}
		if parent != nil && req.Quantity > parent.Quantity {
			return nil, fmt.Errorf("%w: requested %d, remaining for %s %d", ErrQuantityExceeded, req.Quantity, parent.Reference, parent.Quantity)
		}
	}

	target, err := findTreated(ctx, tx, f, req.OrderID, 1, ref.Reference, 0, true)
	if err != nil {
		return nil, err
	}

	res := &PickResult{SourceExhausted: req.Quantity == ref.Quantity}
	if target != nil {
		if err := addQuantity(ctx, tx, f.ItemTable, target.ID, req.Quantity); err != nil {
			return nil, err
		}
		res.TreatedItemID, res.Merged = target.ID, true
	} else {
		id, err := tx.Insert(ctx, f.ItemTable, database.Record{
			"label":                       ref.Label,
			"reference":                   ref.Reference,
			"quantite":                    req.Quantity,
			"original_quantity":           req.Quantity,
			"is_ref":                      1,
			f.OrderColumn:                 req.OrderID,
			"has_moved":                   1,
			"emplacement":                 ref.Location,
			"barcode":                     ref.Barcode,
			"reference_article_reference": ref.ReferenceArticle,
			"deleted":                     0,
			"isSelectableByUser":          1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to materialize reference item %d: %w", ref.ID, err)
		}
		res.TreatedItemID = id
	}

	if res.SourceExhausted {
		_, err = tx.DeleteBy(ctx, schema.ArticlePrepaByRefArticle, database.Eq("id", ref.ID))
	} else {
		_, err = tx.UpdateSet(ctx, schema.ArticlePrepaByRefArticle, "`quantity` = `quantity` - ?", []any{req.Quantity}, database.Eq("id", ref.ID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume reference item %d: %w", ref.ID, err)
	}

	if parent != nil {
		if err := consumeParent(ctx, tx, f, parent, req.Quantity); err != nil {
			return nil, err
		}
	}

	err = l.appendMovement(ctx, tx, f, res, pickedLine{
		orderID:      req.OrderID,
		reference:    ref.Reference,
		barcode:      ref.Barcode,
		locationFrom: ref.Location,
		quantity:     req.Quantity,
		isRef:        0,
		byArticle:    true,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// consumeParent は親の集約明細の残数を、選択済み行の合計から計算し直します。
// 合計が元の数量に達したら親は論理削除します。
func consumeParent(ctx context.Context, tx *database.Store, f Family, parent *model.Article, picked int) error {
	remaining := parent.Quantity - picked
	if parent.OriginalQuantity > 0 {
		var total int
		err := tx.Get(ctx, &total, fmt.Sprintf(`
			SELECT COALESCE(SUM(quantite), 0) FROM %s
			WHERE %s = ? AND isSelectableByUser = 1 AND deleted = 0 AND reference_article_reference = ?`,
			f.ItemTable, f.OrderColumn), parent.OrderID, parent.Reference)
		if err != nil {
			return fmt.Errorf("failed to sum picked quantity for %s: %w", parent.Reference, err)
		}
		remaining = parent.OriginalQuantity - total
	}

	values := database.Record{"quantite": remaining}
	if remaining <= 0 {
		values = database.Record{"quantite": 0, "deleted": 1}
		log.Printf("INFO: [Pick] reference %s fully picked in order %d", parent.Reference, parent.OrderID)
	}
	if _, err := tx.Update(ctx, f.ItemTable, values, database.Eq("id", parent.ID)); err != nil {
		return fmt.Errorf("failed to update parent %s: %w", parent.Reference, err)
	}
	return nil
}

type pickedLine struct {
	orderID      int64
	reference    string
	barcode      string
	locationFrom string
	quantity     int
	isRef        int
	byArticle    bool
}

func (l *Ledger) appendMovement(ctx context.Context, tx *database.Store, f Family, res *PickResult, line pickedLine) error {
	uid := uuid.NewString()
	id, err := tx.Insert(ctx, schema.Mouvement, database.Record{
		"uuid":                uid,
		"reference":           line.reference,
		"barcode":             line.barcode,
		"quantity":            line.quantity,
		"date_pickup":         l.now().Format(time.RFC3339),
		"location_from":       line.locationFrom,
		"type":                MovementType,
		"is_ref":              line.isRef,
		"selected_by_article": line.byArticle,
		f.MovementItemColumn:  res.TreatedItemID,
		f.MovementOrderColumn: line.orderID,
	})
	if err != nil {
		return fmt.Errorf("failed to record movement for %s: %w", line.reference, err)
	}
	res.MovementID, res.MovementUUID = id, uid
	return nil
}

func addQuantity(ctx context.Context, tx *database.Store, table schema.TableName, id int64, delta int) error {
	if _, err := tx.UpdateSet(ctx, table, "`quantite` = COALESCE(`quantite`, 0) + ?", []any{delta}, database.Eq("id", id)); err != nil {
		return fmt.Errorf("failed to update quantity of %s %d: %w", table, id, err)
	}
	return nil
}

func loadArticle(ctx context.Context, tx *database.Store, f Family, id int64) (*model.Article, error) {
	var a model.Article
	err := tx.Get(ctx, &a, f.articleSelect()+" WHERE id = ? AND COALESCE(deleted, 0) = 0", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s item %d: %w", f.Name, id, err)
	}
	return &a, nil
}

func loadRefArticle(ctx context.Context, tx *database.Store, id int64) (*model.RefArticle, error) {
	var r model.RefArticle
	err := tx.Get(ctx, &r, refArticleSelect+" WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference item %d: %w", id, err)
	}
	return &r, nil
}

const refArticleSelect = `
	SELECT id,
	       COALESCE(reference, '') AS reference,
	       COALESCE(label, '') AS label,
	       COALESCE(location, '') AS location,
	       COALESCE(barcode, '') AS barcode,
	       COALESCE(quantity, 0) AS quantity,
	       COALESCE(reference_article, '') AS reference_article
	FROM article_prepa_by_ref_article`

// findTreated は同じキーのピック済み行を探します。分割した数量はここに合算されます。
func findTreated(ctx context.Context, tx *database.Store, f Family, orderID int64, isRef int, reference string, excludeID int64, selectableOnly bool) (*model.Article, error) {
	q := f.articleSelect() + fmt.Sprintf(` WHERE %s = ? AND reference = ? AND COALESCE(is_ref, 0) = ?
		AND has_moved = 1 AND COALESCE(deleted, 0) = 0 AND id <> ?`, f.OrderColumn)
	if selectableOnly {
		q += " AND isSelectableByUser = 1"
	}
	var a model.Article
	err := tx.Get(ctx, &a, q+" ORDER BY id LIMIT 1", orderID, reference, isRef, excludeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find treated %s item %s: %w", f.Name, reference, err)
	}
	return &a, nil
}

// findParent は集約行の親 (reference_article を参照する集約明細) を返します。
// 親がない場合も集約行のピックはできます。
func findParent(ctx context.Context, tx *database.Store, f Family, orderID int64, reference string) (*model.Article, error) {
	var a model.Article
	err := tx.Get(ctx, &a, f.articleSelect()+fmt.Sprintf(` WHERE %s = ? AND reference = ? AND is_ref = 1
		AND COALESCE(deleted, 0) = 0 AND COALESCE(isSelectableByUser, 0) = 0 ORDER BY id LIMIT 1`, f.OrderColumn),
		orderID, reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find parent %s: %w", reference, err)
	}
	return &a, nil
}
