package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/cart"
	"github.com/ariefcatur/go-marketplace-core/internal/redisx"
)

// BulkInvalidator drops every cached snapshot matching a key pattern.
type BulkInvalidator interface {
	DeletePattern(ctx context.Context, pattern string)
}

// CartHandler exposes the cart aggregate. The caller is already
// authenticated upstream; the user id arrives in the X-User-Id header.
type CartHandler struct {
	Svc       *cart.Service
	Snapshots BulkInvalidator
	Log       *zap.Logger
}

func (h *CartHandler) Register(r *chi.Mux) {
	r.Get("/cart", h.get)
	r.Post("/cart/items", h.addItem)
	r.Patch("/cart/items", h.updateItem)
	r.Delete("/cart/items", h.removeItem)
	r.Delete("/cart", h.clear)
	r.Delete("/cart/snapshots", h.invalidateSnapshots)
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-Id")
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user"})
		return "", false
	}
	return id, true
}

func reqCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), 5*time.Second)
}

type itemKeyReq struct {
	ProductID string  `json:"product_id"`
	OptionID  *string `json:"option_id,omitempty"`
}

func (h *CartHandler) addItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req cart.ItemInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	c, err := h.Svc.AddItem(ctx, uid, req)
	if err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) updateItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req struct {
		itemKeyReq
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	c, err := h.Svc.UpdateItem(ctx, uid, req.ProductID, req.OptionID, req.Delta)
	if err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CartHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req itemKeyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	if err := h.Svc.RemoveItem(ctx, uid, req.ProductID, req.OptionID); err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	if err := h.Svc.Clear(ctx, uid); err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// invalidateSnapshots drops every cached cart, e.g. after a storewide price
// or promotion change. Authoritative rows are untouched; the next read
// repopulates from storage.
func (h *CartHandler) invalidateSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r)
	defer cancel()

	h.Snapshots.DeletePattern(ctx, fmt.Sprintf(redisx.KeyCartSnapshot, "*"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	ctx, cancel := reqCtx(r)
	defer cancel()

	c, err := h.Svc.Get(ctx, uid)
	if err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
