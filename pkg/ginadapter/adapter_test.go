package ginadapter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lambda-proxy-bridge/pkg/lambda"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRequest() *lambda.Request {
	req := &lambda.Request{
		Kind:      lambda.KindAPIGateway,
		Method:    http.MethodPost,
		Path:      "/items",
		Body:      []byte(`{"a":1}`),
		Scheme:    "https",
		RequestID: "req-123",
		SourceIP:  "203.0.113.9",
		Security:  &lambda.SecurityContext{Principal: "user-1", Claims: []string{"read"}},
	}
	req.Query.Add("q", "p/z+3")
	req.Query.Add("q", "a b")
	req.Header.Add("Host", "api.example.com")
	req.Header.Add("content-type", "application/json")
	req.Header.Add("Cookie", "a=1")
	req.Header.Add("Cookie", "b=2")
	return req
}

func TestNewHTTPRequest(t *testing.T) {
	httpReq, err := NewHTTPRequest(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, httpReq.Method)
	assert.Equal(t, "https", httpReq.URL.Scheme)
	assert.Equal(t, "api.example.com", httpReq.Host)
	assert.Equal(t, "/items", httpReq.URL.Path)
	assert.Equal(t, []string{"p/z+3", "a b"}, httpReq.URL.Query()["q"])
	assert.Equal(t, "application/json", httpReq.Header.Get("Content-Type"))
	assert.Equal(t, "req-123", httpReq.Header.Get("X-Request-ID"))
	assert.Equal(t, "203.0.113.9:0", httpReq.RemoteAddr)
	assert.Equal(t, int64(7), httpReq.ContentLength)

	cookies := httpReq.Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "b", cookies[1].Name)

	body, err := io.ReadAll(httpReq.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))

	sc, ok := lambda.SecurityContextFrom(httpReq.Context())
	require.True(t, ok)
	assert.Equal(t, "user-1", sc.Principal)
}

func TestNewHTTPRequestDefaults(t *testing.T) {
	httpReq, err := NewHTTPRequest(context.Background(), &lambda.Request{})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, httpReq.Method)
	assert.Equal(t, "/", httpReq.URL.Path)
	assert.Equal(t, http.NoBody, httpReq.Body)

	_, ok := lambda.SecurityContextFrom(httpReq.Context())
	assert.False(t, ok)
}

func TestAdapterHandle(t *testing.T) {
	engine := gin.New()
	engine.POST("/items", func(c *gin.Context) {
		sc, ok := CurrentPrincipal(c)
		require.True(t, ok)

		c.Header("X-Principal", sc.Principal)
		c.Writer.Header().Add("Set-Cookie", "a=1")
		c.Writer.Header().Add("Set-Cookie", "b=2")
		c.JSON(http.StatusCreated, gin.H{
			"q":      c.QueryArray("q"),
			"scheme": Scheme(c),
			"ip":     c.ClientIP(),
		})
	})
	adapter := New(engine)
	assert.Same(t, engine, adapter.Engine())

	resp, err := adapter.Handle(context.Background(), newRequest())
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "user-1", resp.Header.Get("x-principal"))
	assert.Equal(t, []string{"a=1", "b=2"}, resp.Header.Values("Set-Cookie"))
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"q":["p/z+3","a b"],"scheme":"https","ip":"203.0.113.9"}`, string(resp.Body))
}

func TestAdapterClassifiedFailures(t *testing.T) {
	engine := gin.New()
	engine.GET("/only-get", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	engine.GET("/unsupported", func(c *gin.Context) {
		Fail(c, lambda.ErrUnsupportedMediaType)
	})
	adapter := New(engine)

	tests := []struct {
		name   string
		method string
		path   string
		want   error
	}{
		{name: "no route", method: http.MethodGet, path: "/missing", want: lambda.ErrRouteNotFound},
		{name: "no method", method: http.MethodPut, path: "/only-get", want: lambda.ErrMethodNotAllowed},
		{name: "handler failure", method: http.MethodGet, path: "/unsupported", want: lambda.ErrUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := adapter.Handle(context.Background(), &lambda.Request{Method: tt.method, Path: tt.path})
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	resp, err := adapter.Handle(context.Background(), &lambda.Request{Method: http.MethodGet, Path: "/only-get"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Body)
}

func TestFailOutsideAdapter(t *testing.T) {
	engine := gin.New()
	engine.GET("/todo", func(c *gin.Context) {
		Fail(c, &lambda.NotImplementedError{})
	})
	engine.GET("/gone", func(c *gin.Context) {
		Fail(c, lambda.ErrRouteNotFound)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/todo", nil))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "null", w.Body.String())

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gone", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.String())
}
