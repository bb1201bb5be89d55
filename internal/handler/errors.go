package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bakery-cart/internal/cartapi"
	"github.com/xenking/bakery-cart/internal/domain/cart"
	"github.com/xenking/bakery-cart/internal/domain/coupon"
	"github.com/xenking/bakery-cart/internal/domain/product"
)

var couponMessages = map[cartapi.Reason]string{
	cartapi.ReasonInvalidCode:       "This coupon code is not valid.",
	cartapi.ReasonExpired:           "This coupon has expired.",
	cartapi.ReasonBelowMinimum:      "Your cart total is below the minimum for this coupon.",
	cartapi.ReasonUsageLimitReached: "This coupon has reached its usage limit.",
}

// mapCartError converts domain errors to a status code and error payload.
// Unknown errors map to 500 with a generic message.
func mapCartError(err error) (int, cartapi.ErrorBody) {
	var pnf *cart.ProductNotFoundError
	if errors.As(err, &pnf) {
		return http.StatusNotFound, cartapi.ErrorBody{Message: pnf.Error(), Reason: cartapi.ReasonNotFound}
	}

	var lnf *cart.LineNotFoundError
	if errors.As(err, &lnf) {
		return http.StatusNotFound, cartapi.ErrorBody{Message: lnf.Error(), Reason: cartapi.ReasonNotFound}
	}

	if errors.Is(err, cart.ErrEmptyProductID) {
		return http.StatusBadRequest, cartapi.ErrorBody{Message: err.Error(), Reason: cartapi.ReasonBadRequest}
	}

	var qErr *product.QuantityError
	if errors.As(err, &qErr) {
		return http.StatusUnprocessableEntity, cartapi.ErrorBody{Message: qErr.Error(), Reason: cartapi.ReasonInvalidQuantity}
	}
	if errors.Is(err, cart.ErrInvalidQuantity) {
		return http.StatusUnprocessableEntity, cartapi.ErrorBody{Message: err.Error(), Reason: cartapi.ReasonInvalidQuantity}
	}
	if errors.Is(err, product.ErrInvalidSelection) {
		return http.StatusUnprocessableEntity, cartapi.ErrorBody{Message: err.Error(), Reason: cartapi.ReasonBadRequest}
	}

	if reason := cartapi.Reason(coupon.Reason(err)); reason != "" {
		return http.StatusUnprocessableEntity, cartapi.ErrorBody{Message: couponMessages[reason], Reason: reason}
	}

	return http.StatusInternalServerError, cartapi.ErrorBody{Message: "internal error"}
}

// fail writes the mapped error response, logging server failures.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := mapCartError(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeError(w, status, body)
}

func writeError(w http.ResponseWriter, status int, body cartapi.ErrorBody) {
	body.Code = status
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v cartapi.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(cartapi.Marshal(v))
}
