package ports

import (
	"encoding/json"
	"net/http"

	"github.com/Amund211/atlas/internal/logging"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, value any) {
	marshalled, err := json.Marshal(value)
	if err != nil {
		logging.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to marshal response", "error", err.Error())
		writeJSONError(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(marshalled)
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	marshalled, _ := json.Marshal(struct {
		Success bool   `json:"success"`
		Cause   string `json:"cause"`
	}{
		Success: false,
		Cause:   message,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(marshalled)
}
