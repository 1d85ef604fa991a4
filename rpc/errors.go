package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"dineledger/core"
	"dineledger/native/admin"
	"dineledger/native/bank"
	"dineledger/native/common"
	"dineledger/native/payments"
	"dineledger/native/reviews"
	"dineledger/native/stable"
)

const (
	codeBadRequest   = "bad_request"
	codeUnauthorized = "unauthenticated"
	codeForbidden    = "forbidden"
	codeNotFound     = "not_found"
	codeConflict     = "conflict"
	codeInvalid      = "unprocessable"
	codePaused       = "paused"
	codeRateLimited  = "rate_limited"
	codeInternal     = "internal"
)

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusMapping struct {
	target error
	status int
	code   string
}

var errorStatuses = []statusMapping{
	{admin.ErrUnauthorized, http.StatusForbidden, codeForbidden},
	{core.ErrNotPayer, http.StatusForbidden, codeForbidden},
	{common.ErrModulePaused, http.StatusLocked, codePaused},
	{payments.ErrPaymentNotFound, http.StatusNotFound, codeNotFound},
	{reviews.ErrReviewNotFound, http.StatusNotFound, codeNotFound},
	{admin.ErrNotConfigured, http.StatusNotFound, codeNotFound},
	{payments.ErrAlreadyRegistered, http.StatusConflict, codeConflict},
	{reviews.ErrDuplicateReview, http.StatusConflict, codeConflict},
	{errIdempotencyConflict, http.StatusConflict, codeConflict},
	{errIdempotencyInFlight, http.StatusConflict, codeConflict},
	{payments.ErrInvalidRestaurant, http.StatusUnprocessableEntity, codeInvalid},
	{payments.ErrInvalidAmount, http.StatusUnprocessableEntity, codeInvalid},
	{payments.ErrInvalidName, http.StatusUnprocessableEntity, codeInvalid},
	{payments.ErrInvalidAddress, http.StatusUnprocessableEntity, codeInvalid},
	{payments.ErrFeeTooHigh, http.StatusUnprocessableEntity, codeInvalid},
	{reviews.ErrInvalidRating, http.StatusUnprocessableEntity, codeInvalid},
	{reviews.ErrReviewInactive, http.StatusUnprocessableEntity, codeInvalid},
	{reviews.ErrInvalidTipAmount, http.StatusUnprocessableEntity, codeInvalid},
	{reviews.ErrInvalidAddress, http.StatusUnprocessableEntity, codeInvalid},
	{stable.ErrInsufficientBalance, http.StatusUnprocessableEntity, codeInvalid},
	{stable.ErrInsufficientAllowance, http.StatusUnprocessableEntity, codeInvalid},
	{stable.ErrInvalidAmount, http.StatusUnprocessableEntity, codeInvalid},
	{stable.ErrInvalidAddress, http.StatusUnprocessableEntity, codeInvalid},
	{bank.ErrInsufficientFunds, http.StatusUnprocessableEntity, codeInvalid},
	{bank.ErrInvalidAmount, http.StatusUnprocessableEntity, codeInvalid},
	{bank.ErrInvalidAddress, http.StatusUnprocessableEntity, codeInvalid},
	{admin.ErrInvalidAdmin, http.StatusUnprocessableEntity, codeInvalid},
	{core.ErrUnknownModule, http.StatusNotFound, codeNotFound},
	{stable.ErrInvalidAmountString, http.StatusBadRequest, codeBadRequest},
	{errBadRequest, http.StatusBadRequest, codeBadRequest},
}

// errBadRequest marks malformed input detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

func statusForError(err error) (int, string) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, codeInternal
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeError maps a domain error onto its HTTP status. Internal failures are
// reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err)
		message = http.StatusText(status)
	}
	writeAPIError(w, status, code, message)
}
