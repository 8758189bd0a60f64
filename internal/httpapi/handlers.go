package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/pricing"
)

func (a *API) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := actorFromContext(r.Context())
	if !ok || actor.UserID <= 0 {
		writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
		return domain.Actor{}, false
	}
	return actor, true
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// optionalCustomer parses the customer query parameter, if present.
func optionalCustomer(r *http.Request) (*domain.CustomerKey, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("customer"))
	if raw == "" {
		return nil, nil
	}
	key, err := domain.ParseCustomerKey(raw)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (a *API) handleListCarts(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	customer, err := optionalCustomer(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if customer != nil {
		if _, err := a.sync.Sync(r.Context(), actor.UserID, domain.SyncScope{Customer: customer}); err != nil {
			a.logger.Warn("customer sync before listing failed", zap.String("customer", customer.String()), zap.Error(err))
		}
	}

	headers, err := a.carts.LoadCartHeader(r.Context(), domain.CartHeaderQuery{
		UserID:   actor.UserID,
		Customer: customer,
		View:     domain.CartView(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("view")))),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"carts": headers})
}

func (a *API) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req domain.CreateCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	created, err := a.carts.CreateCart(r.Context(), actor.UserID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cart": created})
}

// handleGetCart refreshes the cart from the replicated ERP tables before
// loading it. A failed refresh still serves the local state.
func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	cartID, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if _, err := a.sync.Sync(r.Context(), actor.UserID, domain.SyncScope{CartID: cartID}); err != nil {
		a.logger.Warn("cart sync before load failed", zap.Int64("cartId", cartID), zap.Error(err))
	}

	loaded, err := a.carts.LoadCart(r.Context(), cartID, actor.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if loaded == nil {
		writeError(w, http.StatusNotFound, errors.New("cart not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": loaded})
}

func (a *API) handleUpdateCartHeader(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	cartID, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req domain.UpdateCartHeaderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := a.carts.UpdateCartHeader(r.Context(), actor.UserID, cartID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": updated})
}

func (a *API) handleCancelCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	cartID, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.carts.CancelCart(r.Context(), actor.UserID, cartID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAddToCart accepts the literal id "new" to create the cart from the
// request's customer key.
func (a *API) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var cartID int64
	if r.PathValue("id") != "new" {
		id, err := pathID(r, "id")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		cartID = id
	}
	var req domain.AddToCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.CartID = cartID
	if strings.TrimSpace(req.PriceLevel) != "" && !canOverridePriceLevel(actor.Role) {
		writeError(w, http.StatusForbidden, errors.New("price level override requires a sales or admin role"))
		return
	}

	updated, err := a.carts.AddToCart(r.Context(), actor.UserID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if cartID == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"cart": updated})
}

func (a *API) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	cartID, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req domain.UpdateCartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	updated, err := a.carts.UpdateCartItem(r.Context(), actor.UserID, cartID, lineID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": updated})
}

func (a *API) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	cartID, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	updated, err := a.carts.RemoveCartItem(r.Context(), actor.UserID, cartID, lineID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": updated})
}

// handleRefreshCart re-fetches the linked order straight from Sage.
func (a *API) handleRefreshCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	cartID, err := pathID(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	current, err := a.carts.LoadCart(r.Context(), cartID, actor.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if current == nil {
		writeError(w, http.StatusNotFound, errors.New("cart not found"))
		return
	}
	if current.Header.SalesOrderNo == "" {
		a.fail(w, r, domain.Invalid("salesOrderNo", "cart is not linked to an ERP order"))
		return
	}

	result, err := a.sync.SyncFromSage(r.Context(), actor.UserID, current.Header.SalesOrderNo)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	refreshed, err := a.carts.LoadCart(r.Context(), cartID, actor.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart": refreshed, "sync": result})
}

// handleSync runs a reconciliation pass. The unscoped pass is admin only.
func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	customer, err := optionalCustomer(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if customer == nil && actor.Role != roleAdmin {
		writeError(w, http.StatusForbidden, errors.New("global sync requires the admin role"))
		return
	}

	result, err := a.sync.Sync(r.Context(), actor.UserID, domain.SyncScope{Customer: customer})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleDuplicateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	var req domain.DuplicateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.AllowZeroPrice && actor.Role != roleAdmin {
		writeError(w, http.StatusForbidden, errors.New("allowZeroPrice requires the admin role"))
		return
	}
	resp, err := a.carts.DuplicateOrder(r.Context(), actor.UserID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handlePricing(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.actor(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	if strings.TrimSpace(query.Get("priceLevel")) != "" && !canOverridePriceLevel(actor.Role) {
		writeError(w, http.StatusForbidden, errors.New("price level override requires a sales or admin role"))
		return
	}
	customer, err := domain.ParseCustomerKey(query.Get("customer"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	record, err := a.carts.LookupPrice(r.Context(), actor.UserID, pricing.PriceRequest{
		Customer:      customer,
		ItemCode:      query.Get("item"),
		PriceLevel:    query.Get("priceLevel"),
		UnitOfMeasure: query.Get("uom"),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pricing":             record,
		"requiresManualPrice": record.RequiresManualPrice(),
	})
}
