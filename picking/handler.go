package picking

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"nomade/model"
	"strconv"
)

type pickBody struct {
	Family   string `json:"family"`
	OrderID  int64  `json:"orderId"`
	ItemID   int64  `json:"itemId"`
	ByRef    bool   `json:"byRef"`
	Quantity int    `json:"quantity"`
}

type resetBody struct {
	Family   string  `json:"family"`
	OrderIDs []int64 `json:"orderIds"`
}

type locationBody struct {
	Location string `json:"location"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// statusFor はドメインエラーをHTTPステータスに対応づけます。
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrUnknownFamily), errors.Is(err, ErrUnsupportedItem):
		return http.StatusBadRequest
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrMovementNotFound), errors.Is(err, ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQuantityExceeded), errors.Is(err, ErrAlreadyTreated),
		errors.Is(err, ErrMovementClosed), errors.Is(err, ErrOrderFinished):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("ERROR: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// PickHandler は POST /api/pick です。
func PickHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body pickBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		f, err := FamilyByName(body.Family)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := ledger.Pick(r.Context(), PickRequest{
			Family:   f,
			OrderID:  body.OrderID,
			ItemID:   body.ItemID,
			ByRef:    body.ByRef,
			Quantity: body.Quantity,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

// ResetPicksHandler は POST /api/picks/reset です。
func ResetPicksHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body resetBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		f, err := FamilyByName(body.Family)
		if err != nil {
			writeError(w, err)
			return
		}
		n, err := ledger.ResetPicks(r.Context(), f, body.OrderIDs)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]int64{"restored": n})
	}
}

// ItemsHandler は GET /api/orders/{family}/{id}/items です。
func ItemsHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := FamilyByName(r.PathValue("family"))
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		untreated, treated, err := ledger.Items(r.Context(), f, id)
		if err != nil {
			writeError(w, err)
			return
		}
		resp := map[string]any{"untreated": untreated, "treated": treated}
		if f.SupportsByRef() {
			refs, err := ledger.RefArticles(r.Context(), id)
			if err != nil {
				writeError(w, err)
				return
			}
			resp["refArticles"] = refs
		}
		writeJSON(w, resp)
	}
}

// FinishOrderHandler は POST /api/orders/{family}/{id}/finish です。
func FinishOrderHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := FamilyByName(r.PathValue("family"))
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		var body locationBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Location == "" {
			http.Error(w, "location is required", http.StatusBadRequest)
			return
		}
		closed, err := ledger.FinishOrder(r.Context(), f, id, body.Location)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]int64{"droppedMovements": closed})
	}
}

// DropHandler は POST /api/movements/{id}/drop です。
func DropHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid movement id", http.StatusBadRequest)
			return
		}
		var body locationBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Location == "" {
			http.Error(w, "location is required", http.StatusBadRequest)
			return
		}
		if err := ledger.Drop(r.Context(), id, body.Location); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"message": "dropped"})
	}
}

// PendingMovementsHandler は GET /api/movements/pending です。
func PendingMovementsHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mvts, err := ledger.PendingMovements(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, mvts)
	}
}

// ByBarcodeHandler は GET /api/items/by-barcode?family=&order=&code= です。
func ByBarcodeHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		family := q.Get("family")
		if family == "" {
			family = Preparation.Name
		}
		f, err := FamilyByName(family)
		if err != nil {
			writeError(w, err)
			return
		}
		orderID, err := strconv.ParseInt(q.Get("order"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		item, err := ledger.FindByBarcode(r.Context(), f, orderID, q.Get("code"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"byRef": item.ByReference(), "item": item})
	}
}

// StartOrderHandler は POST /api/orders/{family}/{id}/start です。
func StartOrderHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := FamilyByName(r.PathValue("family"))
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		if err := ledger.StartOrder(r.Context(), f, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]string{"message": "started"})
	}
}

// MovementsHandler は GET /api/orders/{family}/{id}/movements です。
func MovementsHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := FamilyByName(r.PathValue("family"))
		if err != nil {
			writeError(w, err)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}
		mvts, err := ledger.Movements(r.Context(), f, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, mvts)
	}
}

// CountHandler は POST /api/inventory/counts です。
func CountHandler(ledger *Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entry model.InventoryEntry
		if err := json.NewDecoder(r.Body).Decode(&entry); err != nil || entry.Reference == "" {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		id, err := ledger.RecordCount(r.Context(), entry)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]int64{"id": id})
	}
}
