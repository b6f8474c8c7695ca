package ignis

// Handler processes a matched request and produces a response. Returning
// a non-nil error routes the request to the engine's error translator
// instead of whatever partial response the handler may have started.
type Handler func(req *Request, res *Response) error

// Route is an immutable, process-lifetime registration of a method and
// path pattern to a handler.
type Route struct {
	Method  string
	Pattern string
	Handler Handler

	middleware []*registeredMiddleware

	dependsOn []string

	maxBodyBytes int64
}

// RouteOption configures a Route at registration time.
type RouteOption func(*Route)

// WithMiddleware attaches route-scoped middleware, run after every
// group- and engine-scoped middleware in the pre-route phase, and before
// them (in reverse) in the post-route phase.
func WithMiddleware(mw ...Middleware) RouteOption {
	return func(rt *Route) {
		for _, m := range mw {
			rt.middleware = append(rt.middleware, &registeredMiddleware{mw: m})
		}
	}
}

// WithDependencies records the named services this route's handler
// resolves. The engine does not read the list: nothing is resolved ahead
// of the handler, and dependency-cycle detection covers only the
// container's registered service descriptors.
func WithDependencies(names ...string) RouteOption {
	return func(rt *Route) {
		rt.dependsOn = append(rt.dependsOn, names...)
	}
}

// WithMaxBodyBytes overrides Config.MaxBodyBytes for this route only.
func WithMaxBodyBytes(n int64) RouteOption {
	return func(rt *Route) {
		rt.maxBodyBytes = n
	}
}
