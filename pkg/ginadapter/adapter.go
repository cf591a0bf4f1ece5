// Package ginadapter runs a gin engine as the downstream handler of a lambda.Proxy.
package ginadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"

	"github.com/gin-gonic/gin"

	"lambda-proxy-bridge/pkg/lambda"
)

type outcomeKey struct{}

// outcome carries a classified failure from gin back to the proxy
type outcome struct {
	err error
}

// Adapter implements lambda.Handler on top of a gin engine
type Adapter struct {
	engine *gin.Engine
}

// New wires unmatched routes and methods of engine to the proxy's 404 and
// 405 responses and returns the adapter. Gin's path-fixing redirects are
// turned off since they would be built from the base-path-stripped path.
func New(engine *gin.Engine) *Adapter {
	engine.HandleMethodNotAllowed = true
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false
	engine.NoRoute(func(c *gin.Context) {
		Fail(c, lambda.ErrRouteNotFound)
	})
	engine.NoMethod(func(c *gin.Context) {
		Fail(c, lambda.ErrMethodNotAllowed)
	})
	return &Adapter{engine: engine}
}

// Engine returns the wrapped gin engine
func (a *Adapter) Engine() *gin.Engine {
	return a.engine
}

// Handle dispatches req through the gin engine
func (a *Adapter) Handle(ctx context.Context, req *lambda.Request) (*lambda.Response, error) {
	out := &outcome{}
	httpReq, err := NewHTTPRequest(context.WithValue(ctx, outcomeKey{}, out), req)
	if err != nil {
		return nil, err
	}

	rec := newRecorder()
	a.engine.ServeHTTP(rec, httpReq)

	if out.err != nil {
		return nil, out.err
	}
	return rec.response(), nil
}

// Fail aborts the request with a classified failure. Under the adapter the
// proxy renders the error; otherwise the same response is written directly.
func Fail(c *gin.Context, err error) {
	if out, ok := c.Request.Context().Value(outcomeKey{}).(*outcome); ok {
		out.err = err
		c.Abort()
		return
	}

	_ = c.Error(err)
	resp := lambda.ErrorResponse(err)
	if len(resp.Body) == 0 {
		c.AbortWithStatus(resp.StatusCode)
		return
	}
	c.Abort()
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
}

// NewHTTPRequest builds the net/http request gin sees for req. Query values
// are encoded exactly once so gin's single decode yields the canonical values.
// Header keys are canonicalized the way net/http does, so handlers see
// X-Custom-Header even when the event carried x-custom-header.
func NewHTTPRequest(ctx context.Context, req *lambda.Request) (*http.Request, error) {
	if req.Security != nil {
		ctx = lambda.WithSecurityContext(ctx, req.Security)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, "/", bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s %s: %w", req.Method, req.Path, err)
	}

	path := req.Path
	if path == "" {
		path = "/"
	}
	httpReq.URL = &url.URL{
		Scheme:   req.Scheme,
		Host:     req.Header.Get("Host"),
		Path:     path,
		RawQuery: req.Query.Encode(),
	}
	httpReq.RequestURI = httpReq.URL.RequestURI()
	httpReq.Host = httpReq.URL.Host
	httpReq.ContentLength = int64(len(req.Body))
	if req.Body == nil {
		httpReq.Body = http.NoBody
	}

	req.Header.Each(func(key string, values []string) {
		ck := http.CanonicalHeaderKey(key)
		httpReq.Header[ck] = append(httpReq.Header[ck], values...)
	})

	if req.SourceIP != "" {
		httpReq.RemoteAddr = net.JoinHostPort(req.SourceIP, "0")
	}
	if req.RequestID != "" && httpReq.Header.Get("X-Request-ID") == "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}
	return httpReq, nil
}

// CurrentPrincipal returns the caller identity of the request, if any
func CurrentPrincipal(c *gin.Context) (*lambda.SecurityContext, bool) {
	return lambda.SecurityContextFrom(c.Request.Context())
}

// Scheme returns the scheme the client used
func Scheme(c *gin.Context) string {
	if c.Request.URL.Scheme != "" {
		return c.Request.URL.Scheme
	}
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}

// recorder captures what gin writes
type recorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header)}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	return r.Write([]byte(s))
}

func (r *recorder) ReadFrom(src io.Reader) (int64, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.ReadFrom(src)
}

// Flush is a no-op; the body is delivered once the handler returns
func (r *recorder) Flush() {}

func (r *recorder) response() *lambda.Response {
	status := r.status
	if status == 0 {
		status = http.StatusOK
	}

	resp := lambda.NewResponse(status)
	keys := make([]string, 0, len(r.header))
	for k := range r.header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range r.header[k] {
			resp.Header.Add(k, v)
		}
	}
	if r.body.Len() > 0 {
		resp.Body = append([]byte(nil), r.body.Bytes()...)
	}
	return resp
}
