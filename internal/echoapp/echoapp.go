// Package echoapp is a small gin application that reflects requests back to
// the caller. The binaries serve it behind the proxy and the cross-kind tests
// drive it through every event shape.
package echoapp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-proxy-bridge/internal/middleware"
	"lambda-proxy-bridge/pkg/ginadapter"
	"lambda-proxy-bridge/pkg/lambda"
)

// ContentTypeJSON is set on every JSON answer
const ContentTypeJSON = "application/json; charset=UTF-8"

// BinaryPayload is served by GET /echo/binary; it is not valid UTF-8
var BinaryPayload = []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0xff, 0xfe, 0x80}

// MessageRequest is the body accepted by POST /echo/message
type MessageRequest struct {
	Message string `json:"message" binding:"required,max=1024"`
}

// New builds the echo engine
func New(logger *logrus.Logger) *gin.Engine {
	if logger == nil {
		logger = logrus.New()
	}

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.StructuredLogger(logger),
		middleware.ErrorTracker(logger),
		middleware.Identity(),
	)

	h := &handlers{logger: logger}

	engine.GET("/health", h.health)

	engine.GET("/echo", h.echoMessage)
	engine.POST("/echo", h.echoBody)
	engine.POST("/echo/message", middleware.ContentTypeValidation("application/json"), h.bindMessage)
	engine.GET("/echo/status-code", h.statusCode)
	engine.GET("/echo/binary", h.binary)
	engine.GET("/echo/panic", h.explode)
	engine.GET("/echo/admin", middleware.RequireScopes("admin"), h.admin)

	engine.GET("/echo-request-info", h.requestInfo)
	engine.POST("/echo-request-info",
		forMode("content-type", middleware.ContentTypeValidation("application/json")),
		h.requestInfo,
	)

	return engine
}

// forMode applies mw only when the mode query parameter equals mode
func forMode(mode string, mw gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("mode") == mode {
			mw(c)
			return
		}
		c.Next()
	}
}

type handlers struct {
	logger *logrus.Logger
}

func (h *handlers) health(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// echoMessage answers the message parameter as a JSON string
func (h *handlers) echoMessage(c *gin.Context) {
	if c.Query("customHeader") == "true" {
		c.Header("XX", "FOO")
	}
	writeJSON(c, http.StatusOK, c.Query("message"))
}

// echoBody answers the raw request body as a JSON string
func (h *handlers) echoBody(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		_ = c.Error(err)
		writeJSON(c, http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	writeJSON(c, http.StatusOK, string(body))
}

func (h *handlers) bindMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BindingFailed(c, err)
		return
	}
	writeJSON(c, http.StatusOK, req.Message)
}

func (h *handlers) statusCode(c *gin.Context) {
	status, err := strconv.Atoi(c.Query("status"))
	if err != nil || status < 100 || status > 599 {
		writeJSON(c, http.StatusBadRequest, gin.H{"error": "status must be a valid HTTP status code"})
		return
	}
	c.Status(status)
}

func (h *handlers) binary(c *gin.Context) {
	c.Data(http.StatusOK, "application/octet-stream", BinaryPayload)
}

func (h *handlers) explode(c *gin.Context) {
	panic("echo handler panic")
}

func (h *handlers) admin(c *gin.Context) {
	userID, scopes, _ := middleware.GetUserFromContext(c)
	writeJSON(c, http.StatusOK, gin.H{"user_id": userID, "scopes": scopes})
}

// requestInfo reflects one aspect of the request selected by the mode parameter
func (h *handlers) requestInfo(c *gin.Context) {
	switch mode := c.Query("mode"); mode {
	case "headers":
		out := make(map[string]string, len(c.Request.Header))
		for k, v := range c.Request.Header {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		writeJSON(c, http.StatusOK, out)

	case "query-string":
		out := make(map[string]string)
		for k, v := range c.Request.URL.Query() {
			if len(v) > 0 {
				out[k] = v[0]
			}
		}
		writeJSON(c, http.StatusOK, out)

	case "scheme":
		writeJSON(c, http.StatusOK, ginadapter.Scheme(c))

	case "principal":
		sc, ok := ginadapter.CurrentPrincipal(c)
		if !ok || sc.IsAnonymous() {
			writeJSON(c, http.StatusOK, nil)
			return
		}
		writeJSON(c, http.StatusOK, sc.Principal)

	case "content-type":
		writeJSON(c, http.StatusOK, c.ContentType())

	case "not-allowed":
		ginadapter.Fail(c, lambda.ErrMethodNotAllowed)

	case "custom-status-code":
		h.statusCode(c)

	case "not-implemented":
		ginadapter.Fail(c, &lambda.NotImplementedError{})

	default:
		h.logger.WithFields(logrus.Fields{
			"mode":       mode,
			"request_id": c.GetString(middleware.RequestIDKey),
		}).Debug("Unknown request info mode")
		ginadapter.Fail(c, lambda.ErrRouteNotFound)
	}
}

func writeJSON(c *gin.Context, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		_ = c.Error(err)
		c.Data(http.StatusInternalServerError, ContentTypeJSON, []byte(`{"error":"Internal server error"}`))
		return
	}
	c.Data(status, ContentTypeJSON, body)
}
