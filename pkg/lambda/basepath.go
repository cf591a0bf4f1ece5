package lambda

import (
	"strings"
	"sync/atomic"
)

// StripBasePath removes basePath from the front of path. The prefix must end
// on a segment boundary; a path outside basePath yields a *RouteError that
// matches ErrRouteNotFound.
func StripBasePath(path, basePath string) (string, error) {
	base := cleanBasePath(basePath)
	if base == "" {
		return path, nil
	}

	switch {
	case path == base:
		return "/", nil
	case strings.HasPrefix(path, base+"/"):
		return path[len(base):], nil
	default:
		return "", &RouteError{Path: path, BasePath: base}
	}
}

func cleanBasePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// BasePath holds a process-wide strip prefix. Readers always observe a
// complete value set by one Set call. The zero value strips nothing.
type BasePath struct {
	v atomic.Pointer[string]
}

// Set replaces the prefix; it applies to invocations that start afterwards
func (b *BasePath) Set(path string) {
	p := cleanBasePath(path)
	b.v.Store(&p)
}

// Get returns the current prefix
func (b *BasePath) Get() string {
	if p := b.v.Load(); p != nil {
		return *p
	}
	return ""
}

// Strip applies StripBasePath with a single snapshot of the prefix
func (b *BasePath) Strip(path string) (string, error) {
	return StripBasePath(path, b.Get())
}
