package lambda

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

var (
	internalErrorBody = []byte(`{"error":"Internal server error"}`)
	malformedBodyBody = []byte(`{"error":"Malformed request body"}`)
	nullBody          = []byte("null")
)

// Invoker drives canonical requests through a downstream handler
type Invoker struct {
	Logger logrus.FieldLogger
	// BinaryContentTypes defaults to DefaultBinaryContentTypes
	BinaryContentTypes []string
}

// Invoke runs req through h with a default Invoker
func Invoke(ctx context.Context, h Handler, req *Request) *Response {
	return Invoker{}.Invoke(ctx, h, req)
}

// Invoke runs req through h and always returns a response. Handler errors
// and panics are converted by ErrorResponse; unclassified failures are
// logged and never exposed in the body.
func (iv Invoker) Invoke(ctx context.Context, h Handler, req *Request) (resp *Response) {
	logger := iv.logger().WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"method":     req.Method,
		"path":       req.Path,
		"event_kind": req.Kind.String(),
	})

	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"panic":       fmt.Sprint(r),
				"stack_trace": string(debug.Stack()),
			}).Error("Handler panicked")
			resp = ErrorResponse(fmt.Errorf("handler panic: %v", r))
		}
	}()

	if h == nil {
		logger.Error("No handler configured")
		return ErrorResponse(errors.New("no handler configured"))
	}

	resp, err := h.Handle(ctx, req)
	if err != nil {
		if IsClassified(err) {
			logger.WithError(err).Debug("Handler returned classified error")
		} else {
			logger.WithError(err).Error("Handler failed")
		}
		return ErrorResponse(err)
	}

	if resp == nil {
		logger.Error("Handler returned no response")
		return ErrorResponse(errors.New("handler returned no response"))
	}

	if resp.StatusCode < 100 || resp.StatusCode > 599 {
		logger.WithField("status_code", resp.StatusCode).Error("Handler returned invalid status code")
		return ErrorResponse(fmt.Errorf("invalid status code %d", resp.StatusCode))
	}

	binaryTypes := iv.BinaryContentTypes
	if binaryTypes == nil {
		binaryTypes = DefaultBinaryContentTypes
	}
	resp.DetectBinary(binaryTypes)
	return resp
}

func (iv Invoker) logger() logrus.FieldLogger {
	if iv.Logger == nil {
		return logrus.StandardLogger()
	}
	return iv.Logger
}

// ErrorResponse maps a failure to the response the caller receives
func ErrorResponse(err error) *Response {
	var notImplemented *NotImplementedError

	switch {
	case IsMalformedBody(err):
		return jsonResponse(http.StatusBadRequest, malformedBodyBody)
	case IsRouteNotFound(err):
		return NewResponse(http.StatusNotFound)
	case errors.Is(err, ErrMethodNotAllowed):
		return NewResponse(http.StatusMethodNotAllowed)
	case errors.Is(err, ErrUnsupportedMediaType):
		return NewResponse(http.StatusUnsupportedMediaType)
	case errors.As(err, &notImplemented):
		body := notImplemented.Body
		if body == nil {
			body = nullBody
		}
		return jsonResponse(http.StatusNotImplemented, body)
	default:
		return jsonResponse(http.StatusInternalServerError, internalErrorBody)
	}
}

func jsonResponse(status int, body []byte) *Response {
	resp := NewResponse(status)
	resp.Header.Set("Content-Type", DefaultContentType)
	resp.Body = append([]byte(nil), body...)
	return resp
}
