package echoapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lambda-proxy-bridge/pkg/ginadapter"
	"lambda-proxy-bridge/pkg/lambda"
)

type call struct {
	method  string
	path    string
	query   map[string]string
	headers map[string]string
	body    string
}

func newProxy(basePath string) *lambda.Proxy {
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	return lambda.NewProxy(ginadapter.New(New(logger)), &lambda.Config{
		BasePath: basePath,
		Logger:   logger,
	})
}

func toEvent(kind lambda.Kind, in call) lambda.InboundEvent {
	switch kind {
	case lambda.KindAPIGateway:
		return lambda.APIGatewayEvent{
			HTTPMethod:            in.method,
			Path:                  in.path,
			QueryStringParameters: in.query,
			Headers:               in.headers,
			Body:                  in.body,
		}
	case lambda.KindALB:
		return lambda.ALBEvent{
			HTTPMethod:            in.method,
			Path:                  in.path,
			QueryStringParameters: in.query,
			Headers:               in.headers,
			Body:                  in.body,
		}
	default:
		keys := make([]string, 0, len(in.query))
		for k := range in.query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var q lambda.Query
		for _, k := range keys {
			q.Add(k, in.query[k])
		}
		return lambda.HTTPAPIV2Event{
			Version:        "2.0",
			RawPath:        in.path,
			RawQueryString: q.Encode(),
			Headers:        in.headers,
			Body:           in.body,
			RequestContext: events.APIGatewayV2HTTPRequestContext{
				HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: in.method, Path: in.path},
			},
		}
	}
}

type result struct {
	status   int
	body     string
	isBase64 bool
	headers  map[string][]string
}

func (r result) header(key string) string {
	for k, v := range r.headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func (r result) hasHeader(key string) bool {
	for k := range r.headers {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func (r result) jsonString(t *testing.T) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal([]byte(r.body), &s), "body %q", r.body)
	return s
}

func toResult(out lambda.OutboundEvent) result {
	res := result{headers: map[string][]string{}}
	merge := func(single map[string]string, multi map[string][]string) {
		for k, v := range single {
			res.headers[k] = append(res.headers[k], v)
		}
		for k, v := range multi {
			res.headers[k] = append(res.headers[k], v...)
		}
	}

	switch r := out.(type) {
	case lambda.APIGatewayResponse:
		res.status, res.body, res.isBase64 = r.StatusCode, r.Body, r.IsBase64Encoded
		merge(r.Headers, r.MultiValueHeaders)
	case lambda.ALBResponse:
		res.status, res.body, res.isBase64 = r.StatusCode, r.Body, r.IsBase64Encoded
		merge(r.Headers, r.MultiValueHeaders)
	case lambda.HTTPAPIV2Response:
		res.status, res.body, res.isBase64 = r.StatusCode, r.Body, r.IsBase64Encoded
		merge(r.Headers, r.MultiValueHeaders)
	}
	return res
}

func run(t *testing.T, p *lambda.Proxy, event lambda.InboundEvent) result {
	t.Helper()
	out, err := p.Proxy(context.Background(), event)
	require.NoError(t, err)
	return toResult(out)
}

func forEachKind(t *testing.T, fn func(t *testing.T, kind lambda.Kind)) {
	for _, kind := range lambda.Kinds {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			fn(t, kind)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{method: "GET", path: "/unknown"}))
		assert.Equal(t, http.StatusNotFound, res.status)
	})
}

func TestEchoMessage(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method:  "GET",
			path:    "/echo",
			query:   map[string]string{"message": "Hello Gin", "customHeader": "true"},
			headers: map[string]string{"Content-Type": "application/json"},
		}))

		assert.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, ContentTypeJSON, res.header("Content-Type"))
		assert.True(t, res.hasHeader("XX"))
		assert.Equal(t, "Hello Gin", res.jsonString(t))
	})
}

func TestEchoBodyRoundTrip(t *testing.T) {
	p := newProxy("")
	payload := `{"message":"my-custom-value","nested":{"list":[1,2,3]}}`

	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method:  "POST",
			path:    "/echo",
			headers: map[string]string{"Content-Type": "application/json"},
			body:    payload,
		}))

		require.Equal(t, http.StatusOK, res.status)
		assert.JSONEq(t, payload, res.jsonString(t))
	})
}

func TestRequestInfoHeaders(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method:  "GET",
			path:    "/echo-request-info",
			query:   map[string]string{"mode": "headers"},
			headers: map[string]string{"x-custom-header": "my-custom-value", "Content-Type": "application/json"},
		}))

		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, ContentTypeJSON, res.header("Content-Type"))

		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(res.body), &got))
		assert.Equal(t, "my-custom-value", got["X-Custom-Header"])
		assert.NotContains(t, got, "x-custom-header")
	})
}

func TestRequestInfoQueryString(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method: "GET",
			path:   "/echo-request-info",
			query:  map[string]string{"mode": "query-string", "x-custom-header": "my-custom-value"},
		}))

		require.Equal(t, http.StatusOK, res.status)
		var got map[string]string
		require.NoError(t, json.Unmarshal([]byte(res.body), &got))
		assert.Equal(t, "my-custom-value", got["x-custom-header"])
	})
}

func TestRequestInfoScheme(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method: "GET",
			path:   "/echo-request-info",
			query:  map[string]string{"mode": "scheme", "message": "p%2Fz%2B3"},
		}))
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "https", res.jsonString(t))

		res = run(t, p, toEvent(kind, call{
			method:  "GET",
			path:    "/echo-request-info",
			query:   map[string]string{"mode": "scheme"},
			headers: map[string]string{"X-Forwarded-Proto": "http"},
		}))
		assert.Equal(t, "http", res.jsonString(t))
	})
}

func TestRequestInfoPrincipal(t *testing.T) {
	p := newProxy("")

	t.Run("api gateway authorizer", func(t *testing.T) {
		res := run(t, p, lambda.APIGatewayEvent{
			HTTPMethod:            "GET",
			Path:                  "/echo-request-info",
			QueryStringParameters: map[string]string{"mode": "principal"},
			RequestContext: events.APIGatewayProxyRequestContext{
				Authorizer: map[string]interface{}{"principalId": "custom-principal"},
			},
		})
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, ContentTypeJSON, res.header("Content-Type"))
		assert.Equal(t, "custom-principal", res.jsonString(t))
	})

	t.Run("http api jwt authorizer", func(t *testing.T) {
		res := run(t, p, lambda.HTTPAPIV2Event{
			RawPath:        "/echo-request-info",
			RawQueryString: "mode=principal",
			RequestContext: events.APIGatewayV2HTTPRequestContext{
				HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: "GET"},
				Authorizer: &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
					JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
						Claims: map[string]string{"sub": "jwt-subject"},
					},
				},
			},
		})
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "jwt-subject", res.jsonString(t))
	})

	t.Run("anonymous", func(t *testing.T) {
		res := run(t, p, lambda.ALBEvent{
			HTTPMethod:            "GET",
			Path:                  "/echo-request-info",
			QueryStringParameters: map[string]string{"mode": "principal"},
		})
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "null", res.body)
	})
}

func TestRequestInfoContentType(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method:  "POST",
			path:    "/echo-request-info",
			query:   map[string]string{"mode": "content-type"},
			headers: map[string]string{"Content-Type": "application/octet-stream"},
			body:    "asdasdasd",
		}))
		assert.Equal(t, http.StatusUnsupportedMediaType, res.status)

		res = run(t, p, toEvent(kind, call{
			method:  "POST",
			path:    "/echo-request-info",
			query:   map[string]string{"mode": "content-type"},
			headers: map[string]string{"Content-Type": "application/json; charset=UTF-8"},
			body:    "{}",
		}))
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "application/json", res.jsonString(t))
	})
}

func TestMethodNotAllowed(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method:  "POST",
			path:    "/echo-request-info",
			query:   map[string]string{"mode": "not-allowed"},
			headers: map[string]string{"Content-Type": "application/json"},
		}))
		assert.Equal(t, http.StatusMethodNotAllowed, res.status)

		res = run(t, p, toEvent(kind, call{method: "DELETE", path: "/echo"}))
		assert.Equal(t, http.StatusMethodNotAllowed, res.status)
	})
}

func TestCustomStatusCode(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method: "GET",
			path:   "/echo-request-info",
			query:  map[string]string{"mode": "custom-status-code", "status": "201"},
		}))
		assert.Equal(t, http.StatusCreated, res.status)
	})
}

func TestNotImplemented(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{
			method: "POST",
			path:   "/echo-request-info",
			query:  map[string]string{"mode": "not-implemented"},
		}))
		assert.Equal(t, http.StatusNotImplemented, res.status)
		assert.Equal(t, "null", res.body)
	})
}

func TestBinaryResponse(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{method: "GET", path: "/echo/binary"}))
		require.Equal(t, http.StatusOK, res.status)
		require.True(t, res.isBase64)

		decoded, err := base64.StdEncoding.DecodeString(res.body)
		require.NoError(t, err)
		assert.Equal(t, BinaryPayload, decoded)
	})
}

func TestStripBasePath(t *testing.T) {
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		p := newProxy("")

		p.SetBasePath("/custompath")
		res := run(t, p, toEvent(kind, call{
			method: "GET",
			path:   "/custompath/echo",
			query:  map[string]string{"message": "stripped"},
		}))
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, `"stripped"`, res.body)

		p.SetBasePath("/custom")
		res = run(t, p, toEvent(kind, call{
			method: "GET",
			path:   "/custompath/echo/status-code",
			query:  map[string]string{"status": "201"},
		}))
		assert.Equal(t, http.StatusNotFound, res.status)

		p.SetBasePath("")
		res = run(t, p, toEvent(kind, call{
			method: "GET",
			path:   "/echo/status-code",
			query:  map[string]string{"status": "201"},
		}))
		assert.Equal(t, http.StatusCreated, res.status)
	})
}

func TestTrailingSlashIsNotRedirected(t *testing.T) {
	tests := []struct {
		name     string
		basePath string
		path     string
		headers  map[string]string
	}{
		{"no base path", "", "/echo/", nil},
		{"base path", "/custompath", "/custompath/echo/", map[string]string{"Host": "api.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProxy(tt.basePath)
			forEachKind(t, func(t *testing.T, kind lambda.Kind) {
				res := run(t, p, toEvent(kind, call{method: "GET", path: tt.path, headers: tt.headers}))
				assert.Equal(t, http.StatusNotFound, res.status)
				assert.False(t, res.hasHeader("Location"))

				res = run(t, p, toEvent(kind, call{
					method:  "GET",
					path:    strings.TrimSuffix(tt.path, "/"),
					query:   map[string]string{"message": "ok"},
					headers: tt.headers,
				}))
				assert.Equal(t, http.StatusOK, res.status)
			})
		})
	}
}

func TestQueryParamEncoding(t *testing.T) {
	p := newProxy("")

	t.Run("encoded value is not decoded again", func(t *testing.T) {
		res := run(t, p, toEvent(lambda.KindAPIGateway, call{
			method: "GET",
			path:   "/echo",
			query:  map[string]string{"message": "p%2Fz%2B3"},
		}))
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "p%2Fz%2B3", res.jsonString(t))
	})

	t.Run("decoded value is kept", func(t *testing.T) {
		res := run(t, p, toEvent(lambda.KindAPIGateway, call{
			method: "GET",
			path:   "/echo",
			query:  map[string]string{"message": "p/z+3"},
		}))
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "p/z+3", res.jsonString(t))
	})

	t.Run("alb raw value is decoded once", func(t *testing.T) {
		res := run(t, p, toEvent(lambda.KindALB, call{
			method: "GET",
			path:   "/echo",
			query:  map[string]string{"message": "p%2Fz%2B3"},
		}))
		require.Equal(t, http.StatusOK, res.status)
		assert.Equal(t, "p/z+3", res.jsonString(t))
	})
}

func TestHandlerPanic(t *testing.T) {
	p := newProxy("")
	forEachKind(t, func(t *testing.T, kind lambda.Kind) {
		res := run(t, p, toEvent(kind, call{method: "GET", path: "/echo/panic"}))
		assert.Equal(t, http.StatusInternalServerError, res.status)
		assert.Equal(t, `{"error":"Internal server error"}`, res.body)
	})
}

func TestAdminScope(t *testing.T) {
	p := newProxy("")

	res := run(t, p, lambda.APIGatewayEvent{HTTPMethod: "GET", Path: "/echo/admin"})
	assert.Equal(t, http.StatusUnauthorized, res.status)

	res = run(t, p, lambda.APIGatewayEvent{
		HTTPMethod: "GET",
		Path:       "/echo/admin",
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{"principalId": "viewer", "scope": "read"},
		},
	})
	assert.Equal(t, http.StatusForbidden, res.status)

	res = run(t, p, lambda.APIGatewayEvent{
		HTTPMethod: "GET",
		Path:       "/echo/admin",
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{"principalId": "root", "scope": "read admin"},
		},
	})
	require.Equal(t, http.StatusOK, res.status)

	var got struct {
		UserID string   `json:"user_id"`
		Scopes []string `json:"scopes"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.body), &got))
	assert.Equal(t, "root", got.UserID)
	assert.Equal(t, []string{"read", "admin"}, got.Scopes)
}

func TestBindMessage(t *testing.T) {
	p := newProxy("")

	res := run(t, p, lambda.APIGatewayEvent{
		HTTPMethod: "POST",
		Path:       "/echo/message",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{"message":"hi"}`,
	})
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, `"hi"`, res.body)

	res = run(t, p, lambda.APIGatewayEvent{
		HTTPMethod: "POST",
		Path:       "/echo/message",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       `{}`,
	})
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.Contains(t, res.body, "Validation failed")
	assert.Contains(t, res.body, `"tag":"required"`)
}

func TestHealth(t *testing.T) {
	p := newProxy("")
	res := run(t, p, lambda.HTTPAPIV2Event{
		RawPath: "/health",
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: "GET"},
		},
	})
	require.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"status":"ok"}`, res.body)
}
