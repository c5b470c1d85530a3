package server

import (
	"encoding/json"
	"log"
	"net/http"
	"nomade/database"
	"nomade/metrics"
	"nomade/picking"
	"nomade/reconcile"
	"nomade/schema"
)

// SetupRoutes はローカルAPIのハンドラを登録します。
func SetupRoutes(mux *http.ServeMux, store *database.Store, ledger *picking.Ledger, engine *reconcile.Engine) {
	mux.HandleFunc("POST /api/snapshot/import", reconcile.ImportHandler(engine))

	mux.HandleFunc("GET /api/orders/{family}/{id}/items", picking.ItemsHandler(ledger))
	mux.HandleFunc("GET /api/orders/{family}/{id}/movements", picking.MovementsHandler(ledger))
	mux.HandleFunc("POST /api/orders/{family}/{id}/start", picking.StartOrderHandler(ledger))
	mux.HandleFunc("POST /api/orders/{family}/{id}/finish", picking.FinishOrderHandler(ledger))
	mux.HandleFunc("POST /api/pick", picking.PickHandler(ledger))
	mux.HandleFunc("POST /api/picks/reset", picking.ResetPicksHandler(ledger))
	mux.HandleFunc("GET /api/items/by-barcode", picking.ByBarcodeHandler(ledger))

	mux.HandleFunc("GET /api/movements/pending", picking.PendingMovementsHandler(ledger))
	mux.HandleFunc("POST /api/movements/{id}/drop", picking.DropHandler(ledger))
	mux.HandleFunc("POST /api/inventory/counts", picking.CountHandler(ledger))

	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/config", GetConfigHandler())
	mux.HandleFunc("POST /api/config", SaveConfigHandler())

	mux.HandleFunc("GET /api/tables", func(w http.ResponseWriter, r *http.Request) {
		counts := map[string]int{}
		for _, def := range schema.Definitions() {
			n, err := store.Count(r.Context(), def.Name)
			if err != nil {
				log.Printf("Error counting %s: %v", def.Name, err)
				writeJSONError(w, "テーブル件数の取得に失敗しました。", http.StatusInternalServerError)
				return
			}
			counts[string(def.Name)] = n
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(counts)
	})
}
