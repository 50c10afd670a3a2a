package errors

import (
	"errors"
	"net/http"

	"surgeonreach_go_backend/internal/ledger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden           ErrorType = "FORBIDDEN"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeInsufficientCredits ErrorType = "INSUFFICIENT_CREDITS"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Details    gin.H
	Internal   error
}

// Error implements the error interface
func (e *CustomError) Error() string {
	return e.Message
}

// newError creates a new CustomError
func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// New400Error creates a new bad request error
func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

// New401Error creates a new unauthorized error
func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

// New402Error creates a payment-required error carrying the shortfall so the
// client can route straight into the purchase flow
func New402Error(message string, required, current int64) *CustomError {
	err := newError(ErrorTypeInsufficientCredits, message, http.StatusPaymentRequired, nil)
	err.Details = gin.H{"required": required, "current": current}
	return err
}

// New403Error creates a new forbidden error
func New403Error() *CustomError {
	return newError(ErrorTypeForbidden, "Access forbidden", http.StatusForbidden, nil)
}

// New404Error creates a new not found error
func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

// New500Error creates a new internal server error
func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromLedgerError maps the ledger's typed errors onto HTTP responses.
// InsufficientCredits is an expected outcome and never reaches error-level
// logging; everything unrecognized is treated as a store failure.
func FromLedgerError(err error) *CustomError {
	var insufficient *ledger.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return New402Error("Insufficient credits", insufficient.Required, insufficient.Current)
	}
	var unknownFeature *ledger.UnknownFeatureError
	if errors.As(err, &unknownFeature) {
		return New400Error(unknownFeature.Error())
	}
	var invalidAmount *ledger.InvalidAmountError
	if errors.As(err, &invalidAmount) {
		return New400Error(invalidAmount.Error())
	}
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return New404Error("Account not found")
	}
	return New500Error(err)
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	var customErr *CustomError
	var ok bool

	if customErr, ok = err.(*CustomError); !ok {
		customErr = New500Error(err)
	}

	// Log internal server errors
	if customErr.Type == ErrorTypeInternalServerError {
		log.Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	}

	body := gin.H{
		"type":    customErr.Type,
		"message": customErr.Message,
	}
	for k, v := range customErr.Details {
		body[k] = v
	}

	c.JSON(customErr.StatusCode, gin.H{"error": body})
}

// LogAndReturn500 logs an internal error and returns a 500 error
func LogAndReturn500(internal error) *CustomError {
	log.Error().Err(internal).Msg("Internal Server Error")
	return New500Error(internal)
}
