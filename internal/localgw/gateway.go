// Package localgw emulates the AWS front ends in front of the bridge so the
// Lambda handler can be exercised over plain HTTP during development.
package localgw

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-proxy-bridge/internal/middleware"
	"lambda-proxy-bridge/pkg/lambda"
)

const (
	defaultStage   = "local"
	localAccountID = "000000000000"
	targetGroupARN = "arn:aws:elasticloadbalancing:local:000000000000:targetgroup/local/0000000000000000"
)

// Invoker runs an inbound event through the bridge
type Invoker interface {
	Proxy(ctx context.Context, event lambda.InboundEvent) (lambda.OutboundEvent, error)
}

// Options configures the emulator
type Options struct {
	// Kind of event to emit; zero means REST API Gateway
	Kind lambda.Kind
	// ALBMultiValue emits ALB events with multi-value headers enabled
	ALBMultiValue bool
	Stage         string
	// Authorizer validates bearer tokens; nil lets every request through anonymously
	Authorizer  *Authorizer
	BinaryTypes []string
	Logger      *logrus.Logger
}

// Gateway converts HTTP requests into Lambda events and back
type Gateway struct {
	invoker Invoker
	opts    Options
	logger  *logrus.Logger
}

// New creates a gateway emulator forwarding to invoker
func New(invoker Invoker, opts Options) *Gateway {
	if opts.Kind == 0 {
		opts.Kind = lambda.KindAPIGateway
	}
	if opts.Stage == "" {
		opts.Stage = defaultStage
	}
	if opts.BinaryTypes == nil {
		opts.BinaryTypes = lambda.DefaultBinaryContentTypes
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gateway{invoker: invoker, opts: opts, logger: logger}
}

// Kind returns the event kind the gateway emits
func (g *Gateway) Kind() lambda.Kind {
	return g.opts.Kind
}

// Serve handles any HTTP request by invoking the bridge
func (g *Gateway) Serve(c *gin.Context) {
	logger := g.logger.WithFields(logrus.Fields{
		"event_kind": g.opts.Kind.String(),
		"request_id": c.GetString(middleware.RequestIDKey),
	})

	var claims *Claims
	if g.opts.Authorizer != nil {
		var err error
		claims, err = g.opts.Authorizer.Authorize(c.GetHeader("Authorization"))
		if err != nil {
			logger.WithError(err).Debug("Rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		logger.WithError(err).Warn("Failed to read request body")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Bad request"})
		return
	}

	event := g.BuildEvent(c.Request, body, RequestMeta{
		RequestID: c.GetString(middleware.RequestIDKey),
		SourceIP:  c.ClientIP(),
		Claims:    claims,
	})

	out, err := g.invoker.Proxy(c.Request.Context(), event)
	if err != nil {
		logger.WithError(err).Error("Invocation failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "Internal server error"})
		return
	}

	if err := WriteOutbound(c.Writer, out); err != nil {
		logger.WithError(err).Error("Malformed Lambda response")
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"message": "Internal server error"})
		return
	}
	c.Writer.WriteHeaderNow()
}

// TokenRequest asks the development authorizer for a bearer token
type TokenRequest struct {
	Subject string   `json:"subject" binding:"required,max=128"`
	Scopes  []string `json:"scopes" binding:"omitempty,dive,required"`
}

// IssueToken handles POST /dev/token
func (g *Gateway) IssueToken(c *gin.Context) {
	if g.opts.Authorizer == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token issuing is disabled"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.BindingFailed(c, err)
		return
	}

	token, err := g.opts.Authorizer.GenerateToken(req.Subject, req.Scopes)
	if err != nil {
		g.logger.WithError(err).Error("Failed to generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(g.opts.Authorizer.ttl / time.Second),
	})
}

// RequestMeta carries per-request data the HTTP request itself does not hold
type RequestMeta struct {
	RequestID string
	SourceIP  string
	Claims    *Claims
}

// BuildEvent converts r into an event of the configured kind
func (g *Gateway) BuildEvent(r *http.Request, body []byte, meta RequestMeta) lambda.InboundEvent {
	encoded, isBase64 := g.encodeBody(r.Header.Get("Content-Type"), body)
	path := r.URL.Path
	if path == "" {
		path = "/"
	}

	switch g.opts.Kind {
	case lambda.KindALB:
		e := lambda.ALBEvent{
			HTTPMethod:      r.Method,
			Path:            path,
			Body:            encoded,
			IsBase64Encoded: isBase64,
			RequestContext: events.ALBTargetGroupRequestContext{
				ELB: events.ELBContext{TargetGroupArn: targetGroupARN},
			},
		}
		headers := lowerHeaders(r.Header, r.Host)
		headers["x-forwarded-for"] = []string{meta.SourceIP}
		headers["x-forwarded-proto"] = []string{requestScheme(r)}
		if g.opts.ALBMultiValue {
			e.MultiValueHeaders = headers
			e.MultiValueQueryStringParameters = rawQuery(r.URL.RawQuery)
		} else {
			e.Headers = lastValues(headers)
			e.QueryStringParameters = lastValues(rawQuery(r.URL.RawQuery))
		}
		return e

	case lambda.KindHTTPAPIV2:
		headers := lowerHeaders(r.Header, r.Host)
		cookies := splitCookies(headers["cookie"])
		delete(headers, "cookie")
		query := r.URL.Query()
		e := lambda.HTTPAPIV2Event{
			Version:               "2.0",
			RouteKey:              "$default",
			RawPath:               path,
			RawQueryString:        r.URL.RawQuery,
			Cookies:               cookies,
			Headers:               joinValues(headers),
			QueryStringParameters: joinValues(query),
			Body:                  encoded,
			IsBase64Encoded:       isBase64,
			RequestContext: events.APIGatewayV2HTTPRequestContext{
				RouteKey:   "$default",
				AccountID:  localAccountID,
				Stage:      "$default",
				RequestID:  meta.RequestID,
				DomainName: r.Host,
				Time:       time.Now().UTC().Format("02/Jan/2006:15:04:05 -0700"),
				TimeEpoch:  time.Now().UnixMilli(),
				HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
					Method:    r.Method,
					Path:      path,
					Protocol:  r.Proto,
					SourceIP:  meta.SourceIP,
					UserAgent: r.UserAgent(),
				},
			},
		}
		if meta.Claims != nil {
			e.RequestContext.Authorizer = &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
				JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
					Claims: claimMap(meta.Claims),
					Scopes: meta.Claims.Scopes(),
				},
			}
		}
		return e

	default:
		headers := r.Header.Clone()
		if headers == nil {
			headers = http.Header{}
		}
		if r.Host != "" {
			headers.Set("Host", r.Host)
		}
		query := r.URL.Query()
		e := lambda.APIGatewayEvent{
			Resource:                        "/{proxy+}",
			Path:                            path,
			HTTPMethod:                      r.Method,
			Headers:                         lastValues(headers),
			MultiValueHeaders:               headers,
			QueryStringParameters:           lastValues(query),
			MultiValueQueryStringParameters: query,
			PathParameters:                  map[string]string{"proxy": strings.TrimPrefix(path, "/")},
			Body:                            encoded,
			IsBase64Encoded:                 isBase64,
			RequestContext: events.APIGatewayProxyRequestContext{
				AccountID:        localAccountID,
				ResourcePath:     "/{proxy+}",
				Stage:            g.opts.Stage,
				RequestID:        meta.RequestID,
				HTTPMethod:       r.Method,
				Path:             "/" + g.opts.Stage + path,
				DomainName:       r.Host,
				RequestTimeEpoch: time.Now().UnixMilli(),
				Identity: events.APIGatewayRequestIdentity{
					SourceIP:  meta.SourceIP,
					UserAgent: r.UserAgent(),
				},
			},
		}
		if meta.Claims != nil {
			claims := claimMap(meta.Claims)
			authorizer := make(map[string]interface{}, len(claims)+1)
			authorizer["principalId"] = meta.Claims.Subject
			nested := make(map[string]interface{}, len(claims))
			for k, v := range claims {
				nested[k] = v
			}
			authorizer["claims"] = nested
			e.RequestContext.Authorizer = authorizer
		}
		return e
	}
}

func (g *Gateway) encodeBody(contentType string, body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	resp := lambda.Response{Body: body}
	resp.Header.Set("Content-Type", contentType)
	resp.DetectBinary(g.opts.BinaryTypes)
	if resp.Base64 || !utf8.Valid(body) {
		return base64.StdEncoding.EncodeToString(body), true
	}
	return string(body), false
}

// WriteOutbound writes a Lambda response event to w the way the matching
// AWS front end would.
func WriteOutbound(w http.ResponseWriter, out lambda.OutboundEvent) error {
	switch r := out.(type) {
	case lambda.APIGatewayResponse:
		return writeResponse(w, r.StatusCode, r.Headers, r.MultiValueHeaders, nil, r.Body, r.IsBase64Encoded)
	case *lambda.APIGatewayResponse:
		return writeResponse(w, r.StatusCode, r.Headers, r.MultiValueHeaders, nil, r.Body, r.IsBase64Encoded)
	case lambda.ALBResponse:
		return writeResponse(w, r.StatusCode, r.Headers, r.MultiValueHeaders, nil, r.Body, r.IsBase64Encoded)
	case *lambda.ALBResponse:
		return writeResponse(w, r.StatusCode, r.Headers, r.MultiValueHeaders, nil, r.Body, r.IsBase64Encoded)
	case lambda.HTTPAPIV2Response:
		return writeResponse(w, r.StatusCode, r.Headers, r.MultiValueHeaders, r.Cookies, r.Body, r.IsBase64Encoded)
	case *lambda.HTTPAPIV2Response:
		return writeResponse(w, r.StatusCode, r.Headers, r.MultiValueHeaders, r.Cookies, r.Body, r.IsBase64Encoded)
	case nil:
		return errors.New("empty response")
	default:
		return fmt.Errorf("%w: %T", lambda.ErrUnknownEvent, out)
	}
}

func writeResponse(w http.ResponseWriter, status int, single map[string]string, multi map[string][]string, cookies []string, body string, isBase64 bool) error {
	if status < 100 || status > 599 {
		return fmt.Errorf("invalid status code %d", status)
	}

	payload := []byte(body)
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return fmt.Errorf("invalid base64 body: %w", err)
		}
		payload = decoded
	}

	header := w.Header()
	for k, v := range single {
		header.Set(k, v)
	}
	// multi-value headers win over single ones with the same name
	for k, vs := range multi {
		header.Del(k)
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	for _, c := range cookies {
		header.Add("Set-Cookie", c)
	}

	w.WriteHeader(status)
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func lowerHeaders(h http.Header, host string) map[string][]string {
	out := make(map[string][]string, len(h)+1)
	for k, vs := range h {
		key := strings.ToLower(k)
		out[key] = append(out[key], vs...)
	}
	if host != "" {
		out["host"] = []string{host}
	}
	return out
}

// rawQuery splits a query string without decoding it
func rawQuery(raw string) map[string][]string {
	out := make(map[string][]string)
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		out[key] = append(out[key], value)
	}
	return out
}

func lastValues(m map[string][]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, vs := range m {
		if len(vs) > 0 {
			out[k] = vs[len(vs)-1]
		}
	}
	return out
}

func joinValues(m map[string][]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, vs := range m {
		out[k] = strings.Join(vs, ",")
	}
	return out
}

func splitCookies(values []string) []string {
	var out []string
	for _, v := range values {
		for _, c := range strings.Split(v, ";") {
			if c = strings.TrimSpace(c); c != "" {
				out = append(out, c)
			}
		}
	}
	return out
}

func claimMap(c *Claims) map[string]string {
	out := map[string]string{
		"sub": c.Subject,
		"iss": c.Issuer,
	}
	if c.Username != "" {
		out["username"] = c.Username
	}
	if c.Scope != "" {
		out["scope"] = c.Scope
	}
	if c.ExpiresAt != nil {
		out["exp"] = fmt.Sprint(c.ExpiresAt.Unix())
	}
	return out
}

