package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	channeldomain "github.com/smallbiznis/payrun/internal/channel/domain"
	dispatchdomain "github.com/smallbiznis/payrun/internal/dispatch/domain"
	inbounddomain "github.com/smallbiznis/payrun/internal/inbound/domain"
	joblogdomain "github.com/smallbiznis/payrun/internal/joblog/domain"
	paymentrundomain "github.com/smallbiznis/payrun/internal/paymentrun/domain"
	reconciledomain "github.com/smallbiznis/payrun/internal/reconcile/domain"
	"github.com/smallbiznis/payrun/pkg/db/pagination"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware maps domain errors to HTTP statuses after the
// handler chain ran. Handlers push errors with AbortWithError and never
// write status codes themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var cfgErr *bankprofiledomain.ConfigValidationError
	if errors.As(err, &cfgErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "config_validation",
			Message: cfgErr.Error(),
		}
	}

	var transitionErr *paymentrundomain.IllegalTransitionError
	if errors.As(err, &transitionErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "illegal_transition",
			Message: transitionErr.Error(),
		}
	}

	var docErr *inbounddomain.DocumentError
	if errors.As(err, &docErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "document_error",
			Message: docErr.Error(),
		}
	}

	switch {
	case errors.Is(err, bankprofiledomain.ErrProfileUnavailable):
		return http.StatusConflict, errorPayload{
			Type:    "profile_unavailable",
			Message: "no active bank profile for this connection",
		}

	case errors.Is(err, bankprofiledomain.ErrProfileNotFound),
		errors.Is(err, paymentrundomain.ErrRunNotFound),
		errors.Is(err, paymentrundomain.ErrLineNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}

	case errors.Is(err, channeldomain.ErrChannelIO):
		return http.StatusBadGateway, errorPayload{
			Type:    "channel_io",
			Message: "bank channel unavailable",
		}

	case errors.Is(err, bankprofiledomain.ErrInvalidCompany),
		errors.Is(err, bankprofiledomain.ErrInvalidBankCode),
		errors.Is(err, bankprofiledomain.ErrInvalidChannelKind),
		errors.Is(err, paymentrundomain.ErrNoLines),
		errors.Is(err, dispatchdomain.ErrInvalidRequest),
		errors.Is(err, inbounddomain.ErrInvalidRequest),
		errors.Is(err, reconciledomain.ErrInvalidCompany),
		errors.Is(err, joblogdomain.ErrInvalidCompany),
		errors.Is(err, joblogdomain.ErrInvalidOperation),
		errors.Is(err, channeldomain.ErrKindNotFound),
		errors.Is(err, channeldomain.ErrInvalidConfig),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

var errInvalidRequest = errors.New("invalid_request")
