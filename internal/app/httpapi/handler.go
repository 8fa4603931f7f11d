// Package httpapi exposes the chip transfer REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playtower/chipbank/internal/app/domain/chip"
	"github.com/playtower/chipbank/internal/app/metrics"
	"github.com/playtower/chipbank/internal/app/services/transfer"
	"github.com/playtower/chipbank/pkg/logger"
)

// handler bundles the HTTP endpoints around the transfer service.
type handler struct {
	transfers *transfer.Service
	log       *logger.Logger
}

// envelope is the response shape shared by all endpoints.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// NewHandler returns the API router.
func NewHandler(transfers *transfer.Service, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{transfers: transfers, log: log}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/transfer-chips", h.transferChips)
		r.Get("/chip-balance/{playerId}", h.chipBalance)
		r.Get("/chip-history/{playerId}", h.chipHistory)
		r.Get("/chip-transactions/{playerId}", h.chipTransactions)
	})
	return r
}

func (h *handler) transferChips(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FromPlayerID int64 `json:"fromPlayerId"`
		ToPlayerID   int64 `json:"toPlayerId"`
		Amount       int64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, envelope{
			Message: "Validation failed",
			Errors:  decodeErrors(err),
		})
		return
	}

	result, err := h.transfers.Transfer(r.Context(), transfer.Request{
		FromPlayerID: payload.FromPlayerID,
		ToPlayerID:   payload.ToPlayerID,
		Amount:       payload.Amount,
	})
	if err != nil {
		var verr *transfer.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusUnprocessableEntity, envelope{
				Message: "Validation failed",
				Errors:  verr.Fields,
			})
			return
		}

		var insufficient *transfer.InsufficientBalanceError
		if errors.As(err, &insufficient) {
			writeJSON(w, http.StatusBadRequest, envelope{
				Message: "Insufficient chip balance",
				Data: map[string]int64{
					"current_balance":  insufficient.CurrentBalance,
					"requested_amount": insufficient.RequestedAmount,
				},
			})
			return
		}

		writeJSON(w, http.StatusInternalServerError, envelope{
			Message: fmt.Sprintf("Transfer failed: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Chip transfer completed successfully",
		Data: map[string]interface{}{
			"from_user_id":   result.FromPlayerID,
			"to_user_id":     result.ToPlayerID,
			"amount":         result.Amount,
			"transaction_id": result.TransferID,
			"from_balance":   result.FromBalance,
			"to_balance":     result.ToBalance,
		},
	})
}

func (h *handler) chipBalance(w http.ResponseWriter, r *http.Request) {
	playerID, ok := playerParam(r)
	if !ok {
		writePlayerNotFound(w)
		return
	}

	info, err := h.transfers.GetBalance(r.Context(), playerID)
	if err != nil {
		if errors.Is(err, chip.ErrPlayerNotFound) {
			writePlayerNotFound(w)
			return
		}
		h.serverError(w, err)
		return
	}

	var lastUpdated *time.Time
	if info.Exists {
		lastUpdated = &info.LastUpdatedAt
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]interface{}{
			"player_id":       info.PlayerID,
			"balance":         info.Balance,
			"last_updated_at": lastUpdated,
		},
	})
}

func (h *handler) chipHistory(w http.ResponseWriter, r *http.Request) {
	playerID, ok := playerParam(r)
	if !ok {
		writePlayerNotFound(w)
		return
	}

	entries, err := h.transfers.History(r.Context(), playerID)
	if err != nil {
		if errors.Is(err, chip.ErrPlayerNotFound) {
			writePlayerNotFound(w)
			return
		}
		h.serverError(w, err)
		return
	}
	if entries == nil {
		entries = []chip.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: entries})
}

func (h *handler) chipTransactions(w http.ResponseWriter, r *http.Request) {
	playerID, ok := playerParam(r)
	if !ok {
		writePlayerNotFound(w)
		return
	}

	transfers, err := h.transfers.Transfers(r.Context(), playerID)
	if err != nil {
		if errors.Is(err, chip.ErrPlayerNotFound) {
			writePlayerNotFound(w)
			return
		}
		h.serverError(w, err)
		return
	}
	if transfers == nil {
		transfers = []chip.Transfer{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: transfers})
}

func (h *handler) serverError(w http.ResponseWriter, err error) {
	h.log.WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, envelope{Message: "internal error"})
}

func playerParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "playerId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writePlayerNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, envelope{Message: "Player not found"})
}

// decodeJSON decodes the request body. Unknown fields are ignored.
func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	return json.NewDecoder(body).Decode(dst)
}

// decodeErrors maps JSON decoding failures onto the field-error shape the
// validation responses use.
func decodeErrors(err error) map[string][]string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return map[string][]string{
			typeErr.Field: {typeErr.Field + " must be an integer"},
		}
	}
	return map[string][]string{"body": {"request body must be valid JSON"}}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
