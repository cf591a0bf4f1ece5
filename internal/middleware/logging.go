package middleware

import (
	"bytes"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestIDKey is the key used to store request ID in context
const RequestIDKey = "request_id"

// maxLoggedBody bounds the error bodies copied into debug logs
const maxLoggedBody = 1024

// bodyCapture keeps a copy of what the handler wrote
type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	if w.buf.Len() < maxLoggedBody {
		w.buf.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	if w.buf.Len() < maxLoggedBody {
		w.buf.WriteString(s)
	}
	return w.ResponseWriter.WriteString(s)
}

// RequestID tags the request with an ID. An ID forwarded by the invocation
// event (X-Request-ID) is reused, otherwise a UUID is generated.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// StructuredLogger writes one entry per request. 5xx answers log at
// Error, 4xx at Warn and the rest at Info.
func StructuredLogger(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(c *gin.Context) {
		start := time.Now()
		query := c.Request.URL.RawQuery

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture

		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(requestFields(c)).WithFields(logrus.Fields{
			"status_code":   status,
			"latency_ms":    float64(time.Since(start).Microseconds()) / 1000,
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
			"response_size": c.Writer.Size(),
		})
		if query != "" {
			entry = entry.WithField("query", query)
		}
		if status >= 400 && gin.IsDebugging() && capture.buf.Len() > 0 {
			entry = entry.WithField("response_body", capture.buf.String())
		}

		entry.Log(levelFor(status), "Request completed")
	}
}

// ErrorTracker logs every error a handler attached with c.Error
func ErrorTracker(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		base := logger.WithFields(requestFields(c)).WithField("status_code", c.Writer.Status())
		for _, ginErr := range c.Errors {
			entry := base.WithError(ginErr.Err).WithField("error_type", errorTypeName(ginErr.Type))
			if ginErr.Type == gin.ErrorTypeBind {
				entry.Debug("Request binding failed")
				continue
			}
			entry.Error("Handler error")
		}
	}
}

func requestFields(c *gin.Context) logrus.Fields {
	fields := logrus.Fields{
		"request_id": c.GetString(RequestIDKey),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	}
	if userID := c.GetString(UserIDKey); userID != "" {
		fields["user_id"] = userID
	}
	return fields
}

func levelFor(status int) logrus.Level {
	switch {
	case status >= 500:
		return logrus.ErrorLevel
	case status >= 400:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

func errorTypeName(t gin.ErrorType) string {
	switch t {
	case gin.ErrorTypeBind:
		return "bind"
	case gin.ErrorTypeRender:
		return "render"
	case gin.ErrorTypePrivate:
		return "private"
	case gin.ErrorTypePublic:
		return "public"
	default:
		return fmt.Sprintf("%d", uint64(t))
	}
}
