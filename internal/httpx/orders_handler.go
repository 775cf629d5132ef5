package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-core/internal/checkout"
	"github.com/ariefcatur/go-marketplace-core/internal/order"
	"github.com/ariefcatur/go-marketplace-core/internal/stock"
)

type OrdersHandler struct {
	Checkout *checkout.Service
	Orders   *order.Service
	Ledger   *stock.Ledger
	Log      *zap.Logger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/checkout", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/events", h.transition)
	r.Post("/stock/adjust", h.adjustStock)
}

type createOrderReq struct {
	ExternalID      string              `json:"external_id"`
	VendorID        string              `json:"vendor_id"`
	PaymentMethod   order.PaymentMethod `json:"payment_method"`
	ShippingAddress string              `json:"shipping_address"`
}

type createOrderResp struct {
	Order      *order.Order `json:"order"`
	Idempotent bool         `json:"idempotent"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	o, existed, err := h.Checkout.CreateOrder(ctx, checkout.Input{
		ExternalID:      req.ExternalID,
		CustomerID:      uid,
		VendorID:        req.VendorID,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResp{Order: o, Idempotent: existed})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Orders.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// transition applies a lifecycle event. The actor (admin console, vendor
// dashboard, payment webhook) is identified by X-Actor-Id; authorization is
// the upstream gateway's responsibility.
func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Event order.Event `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	o, err := h.Orders.Transition(ctx, chi.URLParam(r, "id"), req.Event, r.Header.Get("X-Actor-Id"))
	if err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// adjustStock is the admin restock/correction endpoint; it rides the same
// atomic primitive as every other stock mutation.
func (h *OrdersHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string  `json:"product_id"`
		OptionID  *string `json:"option_id,omitempty"`
		Delta     int     `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := reqCtx(r)
	defer cancel()

	snap, err := h.Ledger.Adjust(ctx, req.ProductID, req.OptionID, req.Delta)
	if err != nil {
		writeErr(w, err, h.Log)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
