package lambda

import (
	"context"
	"mime"
	"strings"
	"unicode/utf8"
)

// DefaultContentType is used for non-empty responses that did not declare a Content-Type
const DefaultContentType = "application/json; charset=UTF-8"

// DefaultBinaryContentTypes are always transported base64-encoded
var DefaultBinaryContentTypes = []string{
	"application/octet-stream",
	"application/pdf",
	"application/zip",
	"application/gzip",
	"image/*",
	"audio/*",
	"video/*",
	"font/*",
}

// Request represents the normalized HTTP request handed to the downstream handler
type Request struct {
	Kind      Kind
	Method    string
	Path      string
	Query     Query
	Header    Header
	Body      []byte
	Scheme    string
	RequestID string
	SourceIP  string
	Stage     string
	Security  *SecurityContext
}

// Clone returns a deep copy of the request
func (r *Request) Clone() *Request {
	cp := *r
	cp.Query = *r.Query.Clone()
	cp.Header = *r.Header.Clone()
	if r.Body != nil {
		cp.Body = append([]byte(nil), r.Body...)
	}
	if r.Security != nil {
		cp.Security = r.Security.Clone()
	}
	return &cp
}

// Response represents the normalized HTTP response produced by the downstream handler
type Response struct {
	StatusCode int
	Header     Header
	Body       []byte
	// Base64 marks bodies that must be base64-transported outbound
	Base64 bool
}

// NewResponse creates an empty response with the given status code
func NewResponse(statusCode int) *Response {
	return &Response{StatusCode: statusCode}
}

// ContentType returns the media type of the response without parameters
func (r *Response) ContentType() string {
	return mediaType(r.Header.Get("Content-Type"))
}

// DetectBinary sets Base64 when the body is not valid UTF-8 or the
// content type matches one of binaryTypes.
func (r *Response) DetectBinary(binaryTypes []string) {
	if len(r.Body) == 0 {
		return
	}
	if !utf8.Valid(r.Body) || matchesMediaType(r.ContentType(), binaryTypes) {
		r.Base64 = true
	}
}

// SecurityContext carries the caller identity resolved by an upstream authorizer
type SecurityContext struct {
	Principal string
	// Claims holds the granted scopes, de-duplicated in declaration order
	Claims     []string
	Attributes map[string]string
}

// HasClaim reports whether the caller was granted claim
func (s *SecurityContext) HasClaim(claim string) bool {
	if s == nil {
		return false
	}
	for _, c := range s.Claims {
		if c == claim {
			return true
		}
	}
	return false
}

// IsAnonymous reports whether no identity was established
func (s *SecurityContext) IsAnonymous() bool {
	return s == nil || s.Principal == ""
}

// Clone returns a deep copy of the security context
func (s *SecurityContext) Clone() *SecurityContext {
	if s == nil {
		return nil
	}
	cp := &SecurityContext{
		Principal: s.Principal,
		Claims:    append([]string(nil), s.Claims...),
	}
	if s.Attributes != nil {
		cp.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			cp.Attributes[k] = v
		}
	}
	return cp
}

type securityContextKey struct{}

// WithSecurityContext returns a context carrying sc
func WithSecurityContext(ctx context.Context, sc *SecurityContext) context.Context {
	return context.WithValue(ctx, securityContextKey{}, sc)
}

// SecurityContextFrom returns the security context stored in ctx, if any
func SecurityContextFrom(ctx context.Context) (*SecurityContext, bool) {
	sc, ok := ctx.Value(securityContextKey{}).(*SecurityContext)
	return sc, ok && sc != nil
}

// Handler is the downstream request-handling pipeline.
//
// Handle may return ErrRouteNotFound, ErrMethodNotAllowed,
// ErrUnsupportedMediaType or a *NotImplementedError to request the matching
// status code; any other error is reported as 500.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc is a framework-agnostic handler function
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// Handle calls f(ctx, req)
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.ToLower(mt)
}

func matchesMediaType(mt string, patterns []string) bool {
	if mt == "" {
		return false
	}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "*/*":
			return true
		case strings.HasSuffix(p, "/*"):
			if strings.HasPrefix(mt, strings.TrimSuffix(p, "*")) {
				return true
			}
		case p == mt:
			return true
		}
	}
	return false
}
