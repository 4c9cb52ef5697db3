package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/accounts"
	"github.com/tech-arch1tect/fuelqr/services/dispense"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a service error to the HTTP status and the message safe to
// show the caller.
func statusFor(err error) (int, string) {
	var validation *faults.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.Is(err, accounts.ErrInvalidCorID):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, qrsession.ErrSessionNotFound),
		errors.Is(err, accounts.ErrAccountNotFound),
		errors.Is(err, finance.ErrConfigNotFound) && !faults.IsConfiguration(err):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, finance.ErrNotFound):
		return http.StatusNotFound, "owner is unknown to the finance backend"
	case errors.Is(err, accounts.ErrAccountExists),
		errors.Is(err, finance.ErrConfigExists),
		errors.Is(err, dispense.ErrSessionNotConsumed):
		return http.StatusConflict, err.Error()
	case errors.Is(err, dispense.ErrWrongPump):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, finance.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "fuel limit exceeded"
	case errors.Is(err, finance.ErrBackendValidation):
		return http.StatusBadGateway, "finance backend rejected the request"
	case errors.Is(err, finance.ErrAuthFailed),
		faults.IsConfiguration(err),
		faults.IsStorage(err),
		faults.IsExternal(err):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func httpError(err error) error {
	status, message := statusFor(err)
	return echo.NewHTTPError(status, message).SetInternal(err)
}
