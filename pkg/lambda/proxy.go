package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// Config holds the process-wide settings of a Proxy
type Config struct {
	BasePath string
	// HeaderFolding overrides the outbound header representation per kind
	HeaderFolding      map[Kind]HeaderFolding
	BinaryContentTypes []string
	DefaultContentType string
	Logger             *logrus.Logger
}

type handlerRef struct {
	h Handler
}

// Proxy bridges invocation events to a downstream Handler. It is safe for
// concurrent use; the handler and base path may be replaced at any time and
// apply to invocations that start afterwards.
type Proxy struct {
	handler  atomic.Pointer[handlerRef]
	basePath BasePath
	config   Config
	logger   *logrus.Logger
}

// NewProxy creates a proxy dispatching to handler
func NewProxy(handler Handler, config *Config) *Proxy {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.DefaultContentType == "" {
		cfg.DefaultContentType = DefaultContentType
	}
	if cfg.BinaryContentTypes == nil {
		cfg.BinaryContentTypes = DefaultBinaryContentTypes
	}

	p := &Proxy{config: cfg, logger: cfg.Logger}
	p.basePath.Set(cfg.BasePath)
	p.SetHandler(handler)
	return p
}

// SetHandler replaces the downstream handler
func (p *Proxy) SetHandler(h Handler) {
	p.handler.Store(&handlerRef{h: h})
}

// SetBasePath replaces the prefix stripped from incoming paths; "" disables stripping
func (p *Proxy) SetBasePath(path string) {
	p.basePath.Set(path)
	p.logger.WithField("base_path", p.basePath.Get()).Info("Base path updated")
}

// BasePath returns the current strip prefix
func (p *Proxy) BasePath() string {
	return p.basePath.Get()
}

// HandlerFor returns the normalizer/serializer pair for kind
func (p *Proxy) HandlerFor(kind Kind) (*Codec, error) {
	switch kind {
	case KindAPIGateway, KindALB, KindHTTPAPIV2:
		return &Codec{kind: kind, opts: p.serializeOptions(kind, nil)}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, kind)
	}
}

// Proxy runs one invocation end to end. Every failure after the event is
// recognized becomes a well-formed outbound event; the error result is only
// set for a nil or unknown event.
func (p *Proxy) Proxy(ctx context.Context, event InboundEvent) (OutboundEvent, error) {
	if isNilEvent(event) {
		return nil, ErrUnknownEvent
	}

	start := time.Now()
	kind := event.Kind()
	resp, req := p.respond(ctx, event)

	opts := p.serializeOptions(kind, event)
	out, err := Serialize(resp, kind, opts)
	if err != nil {
		return nil, err
	}
	if dropped := DroppedCookies(resp, kind, opts); dropped > 0 {
		p.logger.WithFields(logrus.Fields{
			"event_kind": kind.String(),
			"dropped":    dropped,
		}).Warn("Target group without multi-value headers keeps only the last Set-Cookie")
	}

	fields := logrus.Fields{
		"event_kind":  kind.String(),
		"status_code": resp.StatusCode,
		"latency_ms":  float64(time.Since(start).Nanoseconds()) / 1000000,
		"base64":      resp.Base64,
	}
	if req != nil {
		fields["method"] = req.Method
		fields["path"] = req.Path
		fields["request_id"] = req.RequestID
	}
	p.logger.WithFields(fields).Debug("Invocation completed")

	return out, nil
}

func (p *Proxy) respond(ctx context.Context, event InboundEvent) (*Response, *Request) {
	req, err := Normalize(event)
	if err != nil {
		p.logger.WithError(err).WithField("event_kind", event.Kind().String()).Warn("Failed to normalize event")
		return ErrorResponse(err), nil
	}

	req = InjectIdentity(event, req)

	path, err := p.basePath.Strip(req.Path)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"path":      req.Path,
			"base_path": p.basePath.Get(),
		}).Debug("Path outside base path")
		return ErrorResponse(err), req
	}
	req.Path = path

	var handler Handler
	if ref := p.handler.Load(); ref != nil {
		handler = ref.h
	}

	invoker := Invoker{Logger: p.logger, BinaryContentTypes: p.config.BinaryContentTypes}
	return invoker.Invoke(ctx, handler, req), req
}

func (p *Proxy) serializeOptions(kind Kind, event InboundEvent) SerializeOptions {
	folding := p.config.HeaderFolding[kind]
	if folding == FoldAuto && kind == KindALB {
		folding = albFolding(event)
	}
	return SerializeOptions{
		Folding:            folding,
		DefaultContentType: p.config.DefaultContentType,
	}
}

func isNilEvent(event InboundEvent) bool {
	switch e := event.(type) {
	case nil:
		return true
	case *APIGatewayEvent:
		return e == nil
	case *ALBEvent:
		return e == nil
	case *HTTPAPIV2Event:
		return e == nil
	default:
		return false
	}
}

// ALB target groups with multi-value headers enabled only send and accept
// the multi-value fields.
func albFolding(event InboundEvent) HeaderFolding {
	var e *ALBEvent
	switch v := event.(type) {
	case ALBEvent:
		e = &v
	case *ALBEvent:
		e = v
	default:
		return FoldSingle
	}
	if len(e.MultiValueHeaders) > 0 || len(e.MultiValueQueryStringParameters) > 0 {
		return FoldMulti
	}
	return FoldSingle
}

// APIGateway is a lambda.Start entrypoint for REST API Gateway proxy events
func (p *Proxy) APIGateway(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	out, err := p.Proxy(ctx, APIGatewayEvent(event))
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	return events.APIGatewayProxyResponse(out.(APIGatewayResponse)), nil
}

// ALB is a lambda.Start entrypoint for ALB target group events
func (p *Proxy) ALB(ctx context.Context, event events.ALBTargetGroupRequest) (events.ALBTargetGroupResponse, error) {
	out, err := p.Proxy(ctx, ALBEvent(event))
	if err != nil {
		return events.ALBTargetGroupResponse{}, err
	}
	return events.ALBTargetGroupResponse(out.(ALBResponse)), nil
}

// HTTPAPIV2 is a lambda.Start entrypoint for HTTP API v2 events
func (p *Proxy) HTTPAPIV2(ctx context.Context, event events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	out, err := p.Proxy(ctx, HTTPAPIV2Event(event))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}
	return events.APIGatewayV2HTTPResponse(out.(HTTPAPIV2Response)), nil
}

// Handle is a lambda.Start entrypoint accepting any supported event; the
// kind is detected from the payload.
func (p *Proxy) Handle(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	event, err := DecodeEvent(payload)
	if err != nil {
		p.logger.WithError(err).Error("Failed to decode invocation event")
		return nil, err
	}
	return p.Proxy(ctx, event)
}

// Codec is the normalizer/serializer pair of one event kind
type Codec struct {
	kind Kind
	opts SerializeOptions
}

// Kind returns the event kind handled by the codec
func (c *Codec) Kind() Kind {
	return c.kind
}

// Normalize converts an event of the codec's kind
func (c *Codec) Normalize(event InboundEvent) (*Request, error) {
	if event == nil || event.Kind() != c.kind {
		return nil, ErrKindMismatch
	}
	return Normalize(event)
}

// Serialize converts a response into the codec's outbound shape
func (c *Codec) Serialize(resp *Response) (OutboundEvent, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}
	return Serialize(resp, c.kind, c.opts)
}
