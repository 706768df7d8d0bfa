package server

import (
	"net/http"
	"sort"
	"strings"
)

// RouteHandler is the handler signature the route table uses.
type RouteHandler func(http.ResponseWriter, *http.Request)

// MethodRouter maps HTTP methods to handlers for one path.
type MethodRouter map[string]RouteHandler

// RouteByMethod dispatches on the request method. Unsupported methods
// get a 405 with an Allow header listing what the path accepts.
func RouteByMethod(w http.ResponseWriter, r *http.Request, routes MethodRouter) {
	if handler, ok := routes[r.Method]; ok {
		handler(w, r)
		return
	}

	allowed := make([]string, 0, len(routes))
	for method := range routes {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

// PathSuffixRouter binds one path suffix under a prefix to a handler.
type PathSuffixRouter struct {
	Suffix  string
	Handler RouteHandler
}

// RouteByPathSuffix matches the part of the path after prefix against
// the suffix routes in order. Reports whether a route handled the
// request; a false return leaves the response untouched so the caller
// can fall through to its default handler.
func RouteByPathSuffix(w http.ResponseWriter, r *http.Request, prefix string, routes []PathSuffixRouter) bool {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == r.URL.Path || rest == "" {
		return false
	}

	for _, route := range routes {
		if strings.HasSuffix(rest, route.Suffix) {
			route.Handler(w, r)
			return true
		}
	}
	return false
}
