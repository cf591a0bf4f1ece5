package middleware

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"lambda-proxy-bridge/pkg/ginadapter"
	"lambda-proxy-bridge/pkg/lambda"
)

// ValidationError describes one field that failed validation
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// ErrorResponse is the body of errors raised by this package
type ErrorResponse struct {
	Error            string            `json:"error"`
	Message          string            `json:"message"`
	ValidationErrors []ValidationError `json:"validation_errors,omitempty"`
	RequestID        string            `json:"request_id,omitempty"`
	Timestamp        string            `json:"timestamp"`
}

func abortWithError(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.GetString(RequestIDKey)
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)
	c.AbortWithStatusJSON(status, resp)
}

// BindingFailed answers 400 for a request body that could not be bound.
// Validation failures list the offending fields.
func BindingFailed(c *gin.Context, err error) {
	_ = c.Error(err).SetType(gin.ErrorTypeBind)

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		abortWithError(c, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request format",
			Message: err.Error(),
		})
		return
	}

	abortWithError(c, http.StatusBadRequest, ErrorResponse{
		Error:            "Validation failed",
		Message:          "Request validation failed",
		ValidationErrors: formatValidationErrors(fieldErrs),
	})
}

// ContentTypeValidation raises lambda.ErrUnsupportedMediaType (415) for
// request bodies whose media type is not one of allowedTypes. GET, HEAD and
// OPTIONS requests are not checked.
func ContentTypeValidation(allowedTypes ...string) gin.HandlerFunc {
	if len(allowedTypes) == 0 {
		allowedTypes = []string{"application/json"}
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		mt := requestMediaType(c.GetHeader("Content-Type"))
		for _, allowed := range allowedTypes {
			if strings.EqualFold(mt, allowed) {
				c.Next()
				return
			}
		}

		logrus.WithFields(logrus.Fields{
			"request_id":    c.GetString(RequestIDKey),
			"content_type":  mt,
			"allowed_types": allowedTypes,
		}).Debug("Unsupported content type")

		ginadapter.Fail(c, fmt.Errorf("content type '%s': %w", mt, lambda.ErrUnsupportedMediaType))
	}
}

func requestMediaType(header string) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(header, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// validationMessages maps validator tags to message formats taking the
// field name and the tag parameter
var validationMessages = map[string]string{
	"required": "%s is required%.0s",
	"min":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"oneof":    "%s must be one of: %s",
}

func formatValidationErrors(fieldErrs validator.ValidationErrors) []ValidationError {
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s is invalid", fe.Field())
		if format, ok := validationMessages[fe.Tag()]; ok {
			msg = fmt.Sprintf(format, fe.Field(), fe.Param())
		}
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Value:   fmt.Sprint(fe.Value()),
			Message: msg,
		})
	}
	return out
}
