package picking

import (
	"context"
	"fmt"
	"log"
	"nomade/database"
	"nomade/metrics"
	"nomade/model"
	"nomade/schema"
	"strings"
	"time"
)

const movementSelect = `
	SELECT id,
	       COALESCE(uuid, '') AS uuid,
	       COALESCE(reference, '') AS reference,
	       COALESCE(barcode, '') AS barcode,
	       COALESCE(quantity, 0) AS quantity,
	       COALESCE(date_pickup, '') AS date_pickup,
	       COALESCE(location_from, '') AS location_from,
	       COALESCE(date_drop, '') AS date_drop,
	       COALESCE(location, '') AS location,
	       COALESCE(type, '') AS type,
	       COALESCE(is_ref, 0) AS is_ref,
	       COALESCE(selected_by_article, 0) AS selected_by_article,
	       COALESCE(id_article_prepa, id_article_livraison, id_article_collecte, 0) AS item_id,
	       COALESCE(id_prepa, id_livraison, id_collecte, 0) AS order_id,
	       CASE
	           WHEN id_prepa IS NOT NULL THEN 'preparation'
	           WHEN id_livraison IS NOT NULL THEN 'delivery'
	           WHEN id_collecte IS NOT NULL THEN 'collection'
	           ELSE ''
	       END AS family
	FROM mouvement`

// Drop は持ち運び中の移動を location に置きます。1件につき1回だけです。
func (l *Ledger) Drop(ctx context.Context, movementID int64, location string) error {
	location = strings.TrimSpace(location)
	if location == "" {
		return fmt.Errorf("drop location is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.InTx(ctx, func(tx *database.Store) error {
		n, err := tx.Update(ctx, schema.Mouvement,
			database.Record{"date_drop": l.now().Format(time.RFC3339), "location": location},
			database.Eq("id", movementID), database.IsNull("date_drop"), database.Eq("cancelled", 0))
		if err != nil {
			return fmt.Errorf("failed to drop movement %d: %w", movementID, err)
		}
		if n == 1 {
			metrics.Dropped(1)
			return nil
		}
		exists, err := tx.Count(ctx, schema.Mouvement, database.Eq("id", movementID))
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %d", ErrMovementNotFound, movementID)
		}
		return fmt.Errorf("%w: %d", ErrMovementClosed, movementID)
	})
}

// Movements はオーダーの移動を記録順に返します。取消済みは含みません。
func (l *Ledger) Movements(ctx context.Context, f Family, orderID int64) ([]model.Movement, error) {
	if !f.valid() {
		return nil, ErrUnknownFamily
	}
	out := []model.Movement{}
	q := movementSelect + fmt.Sprintf(" WHERE %s = ? AND cancelled = 0 ORDER BY id", f.MovementOrderColumn)
	if err := l.store.Select(ctx, &out, q, orderID); err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	return out, nil
}

// PendingMovements はドロップ済みで未送信の移動を返します。
func (l *Ledger) PendingMovements(ctx context.Context) ([]model.Movement, error) {
	out := []model.Movement{}
	q := movementSelect + " WHERE date_drop IS NOT NULL AND sent = 0 AND cancelled = 0 ORDER BY id"
	if err := l.store.Select(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("failed to list pending movements: %w", err)
	}
	return out, nil
}

func (l *Ledger) MarkMovementsSent(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := l.store.Update(ctx, schema.Mouvement, database.Record{"sent": 1}, database.In("id", ids))
	if err != nil {
		return 0, fmt.Errorf("failed to mark movements sent: %w", err)
	}
	log.Printf("INFO: [Sync] %d movements marked as sent", n)
	return n, nil
}

// RecordCount は棚卸しの数量入力を1件保存します。
func (l *Ledger) RecordCount(ctx context.Context, entry model.InventoryEntry) (int64, error) {
	if entry.Quantity < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidQuantity, entry.Quantity)
	}
	if entry.Date == "" {
		entry.Date = l.now().Format(time.RFC3339)
	}
	id, err := l.store.Insert(ctx, schema.SaisieInventaire, database.Record{
		"id_mission": entry.MissionID,
		"date":       entry.Date,
		"reference":  entry.Reference,
		"is_ref":     entry.IsRef,
		"quantity":   entry.Quantity,
		"location":   entry.Location,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record inventory count for %s: %w", entry.Reference, err)
	}
	return id, nil
}
