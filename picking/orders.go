package picking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"nomade/barcode"
	"nomade/database"
	"nomade/metrics"
	"nomade/model"
	"nomade/schema"
	"time"
)

// ResetPicks はオーダーのピックを取り消します。
// 選択で作られた行を削除し、残りの行を元の数量・未処理に戻します。
// まだ送信していない移動は取消扱いにします (削除はしません)。
func (l *Ledger) ResetPicks(ctx context.Context, f Family, orderIDs []int64) (int64, error) {
	if !f.valid() {
		return 0, ErrUnknownFamily
	}
	if len(orderIDs) == 0 {
		return 0, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var restored int64
	err := l.store.InTx(ctx, func(tx *database.Store) error {
		inOrders := database.In(f.OrderColumn, orderIDs)
		removed, err := tx.DeleteBy(ctx, f.ItemTable, inOrders, database.Eq("isSelectableByUser", 1))
		if err != nil {
			return fmt.Errorf("failed to remove selected %s items: %w", f.Name, err)
		}
		restored, err = tx.UpdateSet(ctx, f.ItemTable,
			"`deleted` = 0, `has_moved` = 0, `quantite` = COALESCE(`original_quantity`, `quantite`)", nil, inOrders)
		if err != nil {
			return fmt.Errorf("failed to restore %s items: %w", f.Name, err)
		}
		cancelled, err := tx.Update(ctx, schema.Mouvement, database.Record{"cancelled": 1},
			database.In(f.MovementOrderColumn, orderIDs), database.Eq("sent", 0), database.Eq("cancelled", 0))
		if err != nil {
			return fmt.Errorf("failed to cancel movements: %w", err)
		}
		log.Printf("INFO: [Reset] %s orders %v: removed %d selected rows, restored %d, cancelled %d movements",
			f.Name, orderIDs, removed, restored, cancelled)
		return nil
	})
	return restored, err
}

func (l *Ledger) StartOrder(ctx context.Context, f Family, orderID int64) error {
	if !f.valid() {
		return ErrUnknownFamily
	}
	n, err := l.store.Update(ctx, f.OrderTable, database.Record{"started": 1}, database.Eq("id", orderID))
	if err != nil {
		return fmt.Errorf("failed to start %s %d: %w", f.Name, orderID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", ErrOrderNotFound, f.Name, orderID)
	}
	return nil
}

// FinishOrder はオーダーを完了にし、持ち運び中の移動をすべて location にドロップします。
// 閉じた移動の件数を返します。
func (l *Ledger) FinishOrder(ctx context.Context, f Family, orderID int64, location string) (int64, error) {
	if !f.valid() {
		return 0, ErrUnknownFamily
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().Format(time.RFC3339)
	var closed int64
	err := l.store.InTx(ctx, func(tx *database.Store) error {
		n, err := tx.Update(ctx, f.OrderTable,
			database.Record{"date_end": now, f.EndLocationColumn: location},
			database.Eq("id", orderID), database.IsNull("date_end"))
		if err != nil {
			return fmt.Errorf("failed to finish %s %d: %w", f.Name, orderID, err)
		}
		if n == 0 {
			exists, err := tx.Count(ctx, f.OrderTable, database.Eq("id", orderID))
			if err != nil {
				return err
			}
			if exists == 0 {
				return fmt.Errorf("%w: %s %d", ErrOrderNotFound, f.Name, orderID)
			}
			return fmt.Errorf("%w: %s %d", ErrOrderFinished, f.Name, orderID)
		}
		closed, err = tx.Update(ctx, schema.Mouvement,
			database.Record{"date_drop": now, "location": location},
			database.Eq(f.MovementOrderColumn, orderID), database.IsNull("date_drop"), database.Eq("cancelled", 0))
		if err != nil {
			return fmt.Errorf("failed to drop movements of %s %d: %w", f.Name, orderID, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("INFO: [Finish] %s %d at %s, %d movements dropped", f.Name, orderID, location, closed)
	metrics.Dropped(int(closed))
	return closed, nil
}

// ResetFinished は完了状態を解除します (サーバーが完了を拒否した場合)。
func (l *Ledger) ResetFinished(ctx context.Context, f Family, orderIDs []int64) (int64, error) {
	if !f.valid() {
		return 0, ErrUnknownFamily
	}
	return l.store.Update(ctx, f.OrderTable,
		database.Record{"date_end": nil, f.EndLocationColumn: nil},
		database.In("id", orderIDs))
}

// DeleteOrders はオーダーと明細を削除します。移動記録は残します。
func (l *Ledger) DeleteOrders(ctx context.Context, f Family, orderIDs []int64) error {
	if !f.valid() {
		return ErrUnknownFamily
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.InTx(ctx, func(tx *database.Store) error {
		if _, err := tx.DeleteBy(ctx, f.ItemTable, database.In(f.OrderColumn, orderIDs)); err != nil {
			return fmt.Errorf("failed to delete %s items: %w", f.Name, err)
		}
		if _, err := tx.DeleteBy(ctx, f.OrderTable, database.In("id", orderIDs)); err != nil {
			return fmt.Errorf("failed to delete %s orders: %w", f.Name, err)
		}
		return nil
	})
}

func (l *Ledger) Order(ctx context.Context, f Family, orderID int64) (*model.Order, error) {
	if !f.valid() {
		return nil, ErrUnknownFamily
	}
	var o model.Order
	err := l.store.Get(ctx, &o, f.orderSelect()+" WHERE id = ?", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %d", ErrOrderNotFound, f.Name, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Items はオーダーの明細を未処理とピック済みに分けて返します。
func (l *Ledger) Items(ctx context.Context, f Family, orderID int64) (untreated, treated []model.Article, err error) {
	if !f.valid() {
		return nil, nil, ErrUnknownFamily
	}
	var all []model.Article
	q := f.articleSelect() + fmt.Sprintf(" WHERE %s = ? AND COALESCE(deleted, 0) = 0 ORDER BY id", f.OrderColumn)
	if err := l.store.Select(ctx, &all, q, orderID); err != nil {
		return nil, nil, fmt.Errorf("failed to list %s items: %w", f.Name, err)
	}
	untreated, treated = []model.Article{}, []model.Article{}
	for _, a := range all {
		if a.Treated() {
			treated = append(treated, a)
		} else {
			untreated = append(untreated, a)
		}
	}
	return untreated, treated, nil
}

// RefArticles は出荷の未処理の集約明細にぶら下がる選択候補を返します。
func (l *Ledger) RefArticles(ctx context.Context, orderID int64) ([]model.RefArticle, error) {
	refs := []model.RefArticle{}
	err := l.store.Select(ctx, &refs, refArticleSelect+`
		WHERE reference_article IN (
			SELECT reference FROM article_prepa
			WHERE id_prepa = ? AND is_ref = 1 AND COALESCE(deleted, 0) = 0
			  AND COALESCE(has_moved, 0) = 0 AND COALESCE(isSelectableByUser, 0) = 0)
		ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reference items of order %d: %w", orderID, err)
	}
	return refs, nil
}

// FindByBarcode はスキャンしたコードに合う未処理の明細を探します。
// 出荷では明細に見つからなければ集約行の候補も探します。
func (l *Ledger) FindByBarcode(ctx context.Context, f Family, orderID int64, code string) (model.Pickable, error) {
	if !f.valid() {
		return nil, ErrUnknownFamily
	}
	candidates := barcode.Candidates(code)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: empty barcode", ErrItemNotFound)
	}

	in := database.In("barcode", candidates)
	var a model.Article
	err := l.store.Get(ctx, &a, f.articleSelect()+fmt.Sprintf(
		" WHERE %s = ? AND COALESCE(deleted, 0) = 0 AND COALESCE(has_moved, 0) = 0 AND %s ORDER BY id LIMIT 1",
		f.OrderColumn, in.Expr), append([]any{orderID}, in.Args...)...)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up barcode %s: %w", code, err)
	}

	if f.byRef {
		var r model.RefArticle
		err := l.store.Get(ctx, &r, refArticleSelect+fmt.Sprintf(` WHERE %s AND reference_article IN (
			SELECT reference FROM article_prepa
			WHERE id_prepa = ? AND is_ref = 1 AND COALESCE(deleted, 0) = 0 AND COALESCE(has_moved, 0) = 0)
			ORDER BY id LIMIT 1`, in.Expr), append(in.Args, orderID)...)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up barcode %s: %w", code, err)
		}
	}
	return nil, fmt.Errorf("%w: barcode %s in %s %d", ErrItemNotFound, code, f.Name, orderID)
}
