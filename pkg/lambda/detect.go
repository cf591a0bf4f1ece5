package lambda

import (
	"encoding/json"
	"fmt"
)

// eventShape holds the fields that tell the event kinds apart
type eventShape struct {
	Version        string `json:"version"`
	HTTPMethod     string `json:"httpMethod"`
	RequestContext struct {
		ELB  json.RawMessage `json:"elb"`
		HTTP json.RawMessage `json:"http"`
	} `json:"requestContext"`
}

// DetectKind inspects a raw invocation payload and reports its event kind
func DetectKind(payload []byte) (Kind, error) {
	var shape eventShape
	if err := json.Unmarshal(payload, &shape); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnknownEvent, err)
	}

	switch {
	case shape.Version == "2.0" || len(shape.RequestContext.HTTP) > 0:
		return KindHTTPAPIV2, nil
	case len(shape.RequestContext.ELB) > 0:
		return KindALB, nil
	case shape.HTTPMethod != "":
		return KindAPIGateway, nil
	default:
		return 0, ErrUnknownEvent
	}
}

// DecodeEvent detects the kind of payload and decodes it
func DecodeEvent(payload []byte) (InboundEvent, error) {
	kind, err := DetectKind(payload)
	if err != nil {
		return nil, err
	}

	var event InboundEvent
	switch kind {
	case KindAPIGateway:
		var e APIGatewayEvent
		err = json.Unmarshal(payload, &e)
		event = e
	case KindALB:
		var e ALBEvent
		err = json.Unmarshal(payload, &e)
		event = e
	default:
		var e HTTPAPIV2Event
		err = json.Unmarshal(payload, &e)
		event = e
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", kind, err)
	}
	return event, nil
}
