package lambda

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
)

// listHeaders are single-valued on the wire but carry several entries
// joined by the given separator.
var listHeaders = map[string]string{
	"cookie": ";",
}

// Normalize converts an inbound event into the canonical request. The only
// failure for a syntactically valid event is a *MalformedBodyError.
func Normalize(event InboundEvent) (*Request, error) {
	switch e := event.(type) {
	case APIGatewayEvent:
		return normalizeAPIGateway(&e)
	case *APIGatewayEvent:
		return normalizeAPIGateway(e)
	case ALBEvent:
		return normalizeALB(&e)
	case *ALBEvent:
		return normalizeALB(e)
	case HTTPAPIV2Event:
		return normalizeHTTPAPIV2(&e)
	case *HTTPAPIV2Event:
		return normalizeHTTPAPIV2(e)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, event)
	}
}

// API Gateway hands over parameters already decoded once; they are kept as is.
func normalizeAPIGateway(e *APIGatewayEvent) (*Request, error) {
	body, err := decodeBody(e.Body, e.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Kind:      KindAPIGateway,
		Method:    e.HTTPMethod,
		Path:      e.Path,
		Body:      body,
		RequestID: e.RequestContext.RequestID,
		SourceIP:  e.RequestContext.Identity.SourceIP,
		Stage:     e.RequestContext.Stage,
	}

	if len(e.MultiValueQueryStringParameters) > 0 {
		addMultiQuery(&req.Query, e.MultiValueQueryStringParameters, false)
	} else {
		addSingleQuery(&req.Query, e.QueryStringParameters, false)
	}

	if len(e.MultiValueHeaders) > 0 {
		addMultiHeaders(&req.Header, e.MultiValueHeaders)
	} else {
		addSingleHeaders(&req.Header, e.Headers)
	}

	req.Scheme = scheme(&req.Header)
	return req, nil
}

// ALB forwards the query string as the client sent it, so values are
// decoded exactly once here.
func normalizeALB(e *ALBEvent) (*Request, error) {
	body, err := decodeBody(e.Body, e.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Kind:   KindALB,
		Method: e.HTTPMethod,
		Path:   e.Path,
		Body:   body,
	}

	if len(e.MultiValueQueryStringParameters) > 0 {
		addMultiQuery(&req.Query, e.MultiValueQueryStringParameters, true)
	} else {
		addSingleQuery(&req.Query, e.QueryStringParameters, true)
	}

	if len(e.MultiValueHeaders) > 0 {
		addMultiHeaders(&req.Header, e.MultiValueHeaders)
	} else {
		addSingleHeaders(&req.Header, e.Headers)
	}

	req.SourceIP = firstForwardedFor(req.Header.Get("X-Forwarded-For"))
	req.Scheme = scheme(&req.Header)
	return req, nil
}

func normalizeHTTPAPIV2(e *HTTPAPIV2Event) (*Request, error) {
	body, err := decodeBody(e.Body, e.IsBase64Encoded)
	if err != nil {
		return nil, err
	}

	path := e.RawPath
	if path == "" {
		path = e.RequestContext.HTTP.Path
	}

	req := &Request{
		Kind:      KindHTTPAPIV2,
		Method:    e.RequestContext.HTTP.Method,
		Path:      path,
		Body:      body,
		RequestID: e.RequestContext.RequestID,
		SourceIP:  e.RequestContext.HTTP.SourceIP,
		Stage:     e.RequestContext.Stage,
	}

	if e.RawQueryString != "" {
		req.Query = parseRawQuery(e.RawQueryString)
	} else {
		addSingleQuery(&req.Query, e.QueryStringParameters, false)
	}

	addSingleHeaders(&req.Header, e.Headers)
	for _, c := range e.Cookies {
		req.Header.Add("Cookie", c)
	}

	req.Scheme = scheme(&req.Header)
	return req, nil
}

func decodeBody(body string, isBase64 bool) ([]byte, error) {
	if !isBase64 {
		return []byte(body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, &MalformedBodyError{Err: err}
	}
	return decoded, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func addSingleQuery(q *Query, params map[string]string, decode bool) {
	for _, k := range sortedKeys(params) {
		v := params[k]
		if decode {
			k, v = unescapeQuery(k), unescapeQuery(v)
		}
		q.Add(k, v)
	}
}

func addMultiQuery(q *Query, params map[string][]string, decode bool) {
	for _, k := range sortedKeys(params) {
		key := k
		if decode {
			key = unescapeQuery(k)
		}
		for _, v := range params[k] {
			if decode {
				v = unescapeQuery(v)
			}
			q.Add(key, v)
		}
	}
}

func addSingleHeaders(h *Header, headers map[string]string) {
	for _, k := range sortedKeys(headers) {
		v := headers[k]
		sep, ok := listHeaders[foldKey(k)]
		if !ok {
			h.Add(k, v)
			continue
		}
		for _, part := range strings.Split(v, sep) {
			if part = strings.TrimSpace(part); part != "" {
				h.Add(k, part)
			}
		}
	}
}

func addMultiHeaders(h *Header, headers map[string][]string) {
	for _, k := range sortedKeys(headers) {
		for _, v := range headers[k] {
			h.Add(k, v)
		}
	}
}

func scheme(h *Header) string {
	if proto := strings.TrimSpace(strings.Split(h.Get("X-Forwarded-Proto"), ",")[0]); proto != "" {
		return strings.ToLower(proto)
	}
	return "https"
}

func firstForwardedFor(v string) string {
	return strings.TrimSpace(strings.Split(v, ",")[0])
}
