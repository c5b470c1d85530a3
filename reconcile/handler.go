package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"nomade/loader"
)

// ImportHandler はリクエストボディのスナップショットを取り込みます。
func ImportHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		log.Println("HTTP request received: importing snapshot...")

		payload, err := loader.ReadPayload(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		report, err := engine.Import(r.Context(), payload)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrImportCancelled) {
				status = http.StatusServiceUnavailable
			}
			msg := fmt.Sprintf("failed to import snapshot: %v", err)
			log.Println(msg)
			http.Error(w, msg, status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	}
}
