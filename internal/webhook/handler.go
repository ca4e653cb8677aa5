package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/meridianlabs/loyalty-engine/internal/loyalty"
)

// maxBodyBytes bounds a notification payload. Platform messages are small;
// anything bigger is garbage.
const maxBodyBytes = 1 << 20

// Processor handles one decoded order-lifecycle event.
type Processor interface {
	Process(ctx context.Context, ev loyalty.Event) (loyalty.Outcome, error)
}

// Deduper suppresses redelivered events. Seen reports whether the key was
// already applied; Mark records it. A nil Deduper disables suppression.
type Deduper interface {
	Seen(key string) bool
	Mark(key string)
}

// Handler is the HTTP endpoint for inbound order notifications.
type Handler struct {
	processor Processor
	dedup     Deduper
}

// NewHandler creates the notification endpoint. dedup may be nil.
func NewHandler(processor Processor, dedup Deduper) *Handler {
	return &Handler{processor: processor, dedup: dedup}
}

// ServeHTTP decodes the envelope and drives the processor.
//
// Status mapping: 400 for malformed payloads (never redelivered), 200 for
// applied and skipped events (both are terminal), 500 for processing
// failures so the notification system redelivers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	lg := zctx.From(r.Context())

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, "unreadable body")
		return
	}

	ev, err := DecodeEvent(payload)
	if err != nil {
		lg.Warn("Rejected malformed notification", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	if h.dedup != nil && h.dedup.Seen(ev.Key()) {
		lg.Info("Duplicate delivery suppressed",
			zap.String("order_id", ev.OrderID),
			zap.String("event_type", string(ev.Type)),
		)
		writeJSON(w, http.StatusOK, "duplicate delivery")
		return
	}

	out, err := h.processor.Process(r.Context(), ev)
	if err != nil {
		lg.Error("Event processing failed",
			zap.String("order_id", ev.OrderID),
			zap.String("event_type", string(ev.Type)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, "processing failed")
		return
	}

	if h.dedup != nil && out.Status == loyalty.StatusApplied {
		h.dedup.Mark(ev.Key())
	}
	writeJSON(w, http.StatusOK, string(out.Status))
}

func writeJSON(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
	})
}
