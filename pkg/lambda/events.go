package lambda

import (
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Kind identifies the trigger that produced an invocation event
type Kind int

const (
	KindAPIGateway Kind = iota + 1
	KindALB
	KindHTTPAPIV2
)

// Kinds lists every supported event kind
var Kinds = []Kind{KindAPIGateway, KindALB, KindHTTPAPIV2}

func (k Kind) String() string {
	switch k {
	case KindAPIGateway:
		return "api_gateway"
	case KindALB:
		return "alb"
	case KindHTTPAPIV2:
		return "http_api"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses the configuration name of an event kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "api_gateway", "apigateway", "rest":
		return KindAPIGateway, nil
	case "alb":
		return KindALB, nil
	case "http_api", "httpapi", "v2":
		return KindHTTPAPIV2, nil
	default:
		return 0, fmt.Errorf("unknown event kind '%s'", s)
	}
}

// InboundEvent is one of APIGatewayEvent, ALBEvent or HTTPAPIV2Event
type InboundEvent interface {
	Kind() Kind
	inbound()
}

// APIGatewayEvent is a REST API Gateway proxy integration event
type APIGatewayEvent events.APIGatewayProxyRequest

// ALBEvent is an Application Load Balancer target group event
type ALBEvent events.ALBTargetGroupRequest

// HTTPAPIV2Event is an HTTP API (payload format 2.0) proxy event
type HTTPAPIV2Event events.APIGatewayV2HTTPRequest

func (APIGatewayEvent) Kind() Kind { return KindAPIGateway }
func (ALBEvent) Kind() Kind        { return KindALB }
func (HTTPAPIV2Event) Kind() Kind  { return KindHTTPAPIV2 }

func (APIGatewayEvent) inbound() {}
func (ALBEvent) inbound()        {}
func (HTTPAPIV2Event) inbound()  {}

// OutboundEvent is one of APIGatewayResponse, ALBResponse or HTTPAPIV2Response
type OutboundEvent interface {
	Kind() Kind
	outbound()
}

// APIGatewayResponse is the REST API Gateway proxy response shape
type APIGatewayResponse events.APIGatewayProxyResponse

// ALBResponse is the ALB target group response shape
type ALBResponse events.ALBTargetGroupResponse

// HTTPAPIV2Response is the HTTP API (payload format 2.0) response shape
type HTTPAPIV2Response events.APIGatewayV2HTTPResponse

func (APIGatewayResponse) Kind() Kind { return KindAPIGateway }
func (ALBResponse) Kind() Kind        { return KindALB }
func (HTTPAPIV2Response) Kind() Kind  { return KindHTTPAPIV2 }

func (APIGatewayResponse) outbound() {}
func (ALBResponse) outbound()        {}
func (HTTPAPIV2Response) outbound()  {}
