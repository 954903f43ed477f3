package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/wpphub/internal/apperr"
)

// ErrorBody is the error object of a failed API response.
type ErrorBody struct {
	Kind             apperr.Kind `json:"kind,omitempty"`
	Message          string      `json:"message"`
	ProviderResponse string      `json:"providerResponse,omitempty"`
	MessageID        string      `json:"messageId,omitempty"`
}

// ErrorResponse is the envelope of every failed API response.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.NotConfigured:
		return http.StatusConflict
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.ProviderRejected:
		return http.StatusBadGateway
	case apperr.UnknownTenant:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders apperr and echo errors as ErrorResponse JSON.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := ErrorBody{Message: http.StatusText(code)}

		var he *echo.HTTPError
		if e := apperr.As(err); e != nil {
			code = StatusFor(e.Kind)
			body = ErrorBody{Kind: e.Kind, Message: e.Error(), ProviderResponse: e.ProviderBody, MessageID: e.MessageID}
			if code >= http.StatusInternalServerError {
				logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
			}
		} else if errors.As(err, &he) {
			code = he.Code
			if msg, ok := he.Message.(string); ok {
				body.Message = msg
			} else {
				body.Message = http.StatusText(code)
			}
		} else {
			logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, ErrorResponse{Success: false, Error: body})
	}
}
