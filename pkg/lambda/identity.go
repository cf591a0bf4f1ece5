package lambda

import (
	"fmt"
	"strings"
)

// principalKeys are consulted in order to find the caller's principal id
var principalKeys = []string{"principalId", "username", "cognito:username", "sub"}

// InjectIdentity returns a copy of req carrying the caller identity declared
// by the event's authorizer block. Events without one yield an anonymous
// request (nil Security); req itself is never modified.
func InjectIdentity(event InboundEvent, req *Request) *Request {
	out := req.Clone()
	out.Security = ResolveIdentity(event)
	return out
}

// ResolveIdentity extracts the security context from an inbound event
func ResolveIdentity(event InboundEvent) *SecurityContext {
	switch e := event.(type) {
	case APIGatewayEvent:
		return apiGatewayIdentity(&e)
	case *APIGatewayEvent:
		return apiGatewayIdentity(e)
	case HTTPAPIV2Event:
		return httpAPIV2Identity(&e)
	case *HTTPAPIV2Event:
		return httpAPIV2Identity(e)
	default:
		return nil
	}
}

func apiGatewayIdentity(e *APIGatewayEvent) *SecurityContext {
	authorizer := e.RequestContext.Authorizer
	if len(authorizer) == 0 {
		return nil
	}

	attrs := flatten(authorizer)
	var scopes []string
	if claims, ok := authorizer["claims"].(map[string]interface{}); ok {
		for k, v := range flatten(claims) {
			if _, exists := attrs[k]; !exists {
				attrs[k] = v
			}
		}
		scopes = append(scopes, splitScopes(claims["scope"])...)
	}
	scopes = append(scopes, splitScopes(authorizer["scopes"])...)
	scopes = append(scopes, splitScopes(authorizer["scope"])...)

	return newSecurityContext(attrs, scopes)
}

func httpAPIV2Identity(e *HTTPAPIV2Event) *SecurityContext {
	authorizer := e.RequestContext.Authorizer
	if authorizer == nil {
		return nil
	}

	switch {
	case authorizer.JWT != nil:
		attrs := make(map[string]string, len(authorizer.JWT.Claims))
		for k, v := range authorizer.JWT.Claims {
			attrs[k] = v
		}
		scopes := append([]string(nil), authorizer.JWT.Scopes...)
		if len(scopes) == 0 {
			scopes = splitScopes(attrs["scope"])
		}
		return newSecurityContext(attrs, scopes)

	case len(authorizer.Lambda) > 0:
		var scopes []string
		scopes = append(scopes, splitScopes(authorizer.Lambda["scopes"])...)
		scopes = append(scopes, splitScopes(authorizer.Lambda["scope"])...)
		return newSecurityContext(flatten(authorizer.Lambda), scopes)

	case authorizer.IAM != nil:
		principal := authorizer.IAM.UserARN
		if principal == "" {
			principal = authorizer.IAM.UserID
		}
		return newSecurityContext(map[string]string{
			"principalId": principal,
			"userArn":     authorizer.IAM.UserARN,
			"userId":      authorizer.IAM.UserID,
			"accountId":   authorizer.IAM.AccountID,
		}, nil)
	}
	return nil
}

func newSecurityContext(attrs map[string]string, scopes []string) *SecurityContext {
	sc := &SecurityContext{Attributes: attrs}
	for _, k := range principalKeys {
		if v := attrs[k]; v != "" {
			sc.Principal = v
			break
		}
	}

	seen := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		sc.Claims = append(sc.Claims, s)
	}
	return sc
}

// flatten keeps the scalar entries of an authorizer map as strings
func flatten(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil, map[string]interface{}, []interface{}:
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// splitScopes accepts a space separated string or a list of strings
func splitScopes(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return strings.Fields(val)
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, strings.Fields(s)...)
			}
		}
		return out
	default:
		return nil
	}
}
