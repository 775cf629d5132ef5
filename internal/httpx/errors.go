package httpx

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/cart"
	"github.com/ariefcatur/go-marketplace-core/internal/checkout"
	"github.com/ariefcatur/go-marketplace-core/internal/ident"
	"github.com/ariefcatur/go-marketplace-core/internal/order"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

// writeErr maps the typed error taxonomy onto status codes. All typed errors
// are safe to show; anything unclassified is logged with context and
// surfaced as a generic failure.
func writeErr(w http.ResponseWriter, err error, log *zap.Logger) {
	var insufficient *stock.InsufficientStockError
	var invalid *order.InvalidTransitionError

	switch {
	case errors.Is(err, ident.ErrInvalid),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, stock.ErrZeroDelta),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidPaymentMethod):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, stock.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})

	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"available": insufficient.Available,
		})

	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "invalid transition",
			"status": invalid.Status,
			"event":  invalid.Event,
		})

	case errors.Is(err, stock.ErrStockConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})

	case errors.Is(err, redisx.ErrLockUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "resource busy, retry"})

	default:
		log.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
