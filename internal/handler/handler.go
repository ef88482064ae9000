// Package handler exposes the discount engine over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/discount-engine/internal/domain/discount"
)

const maxBodyBytes = 1 << 20

// Handler serves the discount API.
type Handler struct {
	engine      discount.Evaluator
	redemptions discount.RedemptionRecorder
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(engine discount.Evaluator, redemptions discount.RedemptionRecorder) *Handler {
	return &Handler{engine: engine, redemptions: redemptions}
}

// Mount registers the API routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/discounts/evaluate", h.Evaluate)
	r.Post("/redemptions", h.RecordRedemption)
}

// Evaluate runs the engine against the cart in the request body.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	in, err := decodeEvaluateRequest(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	res, err := h.engine.Evaluate(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var e jx.Encoder
	encodeResult(&e, res, in.CurrencyCode)
	writeJSON(w, http.StatusOK, e.Bytes())
}

// RecordRedemption stores a redemption reported by the order workflow after
// an order completes.
func (h *Handler) RecordRedemption(w http.ResponseWriter, r *http.Request) {
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	red, err := decodeRedemption(d)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if err := validateRedemption(&red); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.redemptions.Record(r.Context(), &red); err != nil {
		h.fail(w, r, err)
		return
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(red.ID) })
	})
	writeJSON(w, http.StatusCreated, e.Bytes())
}

// fail maps domain errors to HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, discount.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, discount.ErrCodeNotFound), errors.Is(err, discount.ErrDiscountNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, discount.ErrCodeLimitReached):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, status, e.Bytes())
}
