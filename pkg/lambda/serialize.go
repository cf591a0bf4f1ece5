package lambda

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// HeaderFolding selects how response headers are represented outbound
type HeaderFolding int

const (
	// FoldAuto uses the kind's natural representation
	FoldAuto HeaderFolding = iota
	// FoldSingle emits one value per key. REST API Gateway keeps every
	// Set-Cookie in the multi-value map; ALB keeps only the last one.
	FoldSingle
	// FoldMulti emits multi-value headers
	FoldMulti
)

func (f HeaderFolding) String() string {
	switch f {
	case FoldSingle:
		return "single"
	case FoldMulti:
		return "multi"
	default:
		return "auto"
	}
}

// ParseHeaderFolding parses "auto", "single" or "multi"
func ParseHeaderFolding(s string) (HeaderFolding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FoldAuto, nil
	case "single":
		return FoldSingle, nil
	case "multi":
		return FoldMulti, nil
	default:
		return FoldAuto, fmt.Errorf("unknown header folding '%s'", s)
	}
}

// SerializeOptions controls the outbound representation
type SerializeOptions struct {
	Folding HeaderFolding
	// DefaultContentType defaults to DefaultContentType
	DefaultContentType string
}

// Serialize converts a canonical response into the outbound shape of kind.
// The response is not modified.
func Serialize(resp *Response, kind Kind, opts SerializeOptions) (OutboundEvent, error) {
	header := resp.Header.Clone()
	if !header.Has("Content-Type") && len(resp.Body) > 0 {
		ct := opts.DefaultContentType
		if ct == "" {
			ct = DefaultContentType
		}
		header.Set("Content-Type", ct)
	}

	body, isBase64 := encodeBody(resp)

	switch kind {
	case KindAPIGateway:
		out := APIGatewayResponse{
			StatusCode:      resp.StatusCode,
			Body:            body,
			IsBase64Encoded: isBase64,
		}
		if opts.Folding == FoldSingle {
			out.Headers, out.MultiValueHeaders = foldSingle(header)
		} else {
			out.MultiValueHeaders = foldMulti(header)
		}
		return out, nil

	case KindALB:
		out := ALBResponse{
			StatusCode:        resp.StatusCode,
			StatusDescription: statusDescription(resp.StatusCode),
			Body:              body,
			IsBase64Encoded:   isBase64,
		}
		if opts.Folding == FoldMulti {
			out.MultiValueHeaders = foldMulti(header)
		} else {
			out.Headers = foldLastCookie(header)
		}
		return out, nil

	case KindHTTPAPIV2:
		out := HTTPAPIV2Response{
			StatusCode:      resp.StatusCode,
			Body:            body,
			IsBase64Encoded: isBase64,
		}
		if opts.Folding == FoldMulti {
			out.MultiValueHeaders = foldMulti(header)
		} else {
			out.Cookies = header.Values("Set-Cookie")
			header.Del("Set-Cookie")
			out.Headers = foldJoined(header)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, kind)
	}
}

func encodeBody(resp *Response) (string, bool) {
	if resp.Base64 {
		return base64.StdEncoding.EncodeToString(resp.Body), true
	}
	return string(resp.Body), false
}

func foldMulti(h *Header) map[string][]string {
	out := make(map[string][]string, h.Len())
	h.Each(func(key string, values []string) {
		out[key] = append([]string(nil), values...)
	})
	return out
}

// foldJoined joins repeated values with a comma, as RFC 9110 allows
func foldJoined(h *Header) map[string]string {
	out := make(map[string]string, h.Len())
	h.Each(func(key string, values []string) {
		out[key] = strings.Join(values, ",")
	})
	return out
}

// foldSingle joins repeated values except Set-Cookie, which cannot be
// comma-joined and goes to the multi-value map when it repeats.
func foldSingle(h *Header) (map[string]string, map[string][]string) {
	var multi map[string][]string
	cookies := h.Values("Set-Cookie")
	if len(cookies) > 1 {
		rest := h.Clone()
		multi = map[string][]string{"Set-Cookie": append([]string(nil), cookies...)}
		rest.Del("Set-Cookie")
		h = rest
	}
	return foldJoined(h), multi
}

// foldLastCookie joins repeated values and keeps only the last Set-Cookie.
// An ALB target group without multi-value headers reads nothing else.
func foldLastCookie(h *Header) map[string]string {
	cookies := h.Values("Set-Cookie")
	if len(cookies) <= 1 {
		return foldJoined(h)
	}
	rest := h.Clone()
	rest.Set("Set-Cookie", cookies[len(cookies)-1])
	return foldJoined(rest)
}

// DroppedCookies reports how many Set-Cookie values Serialize discards for
// kind under opts.
func DroppedCookies(resp *Response, kind Kind, opts SerializeOptions) int {
	if kind != KindALB || opts.Folding == FoldMulti {
		return 0
	}
	if n := len(resp.Header.Values("Set-Cookie")); n > 1 {
		return n - 1
	}
	return 0
}

func statusDescription(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return fmt.Sprintf("%d", code)
}
