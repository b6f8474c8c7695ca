package ignis

// dispatch routes req to its handler through the middleware chain,
// writing the outcome into res. It is the single entry point used by both
// the production connection loop and by tests that want to exercise
// routing/middleware without a real socket.
func (e *Engine) dispatch(req *Request, res *Response) {
	match := e.router.lookup(req.Method, req.Path)

	switch match.Kind {
	case MatchNotFound:
		e.translateError(errNotFound(), req, res)
		return
	case MatchMethodNotAllowed:
		e.translateError(errMethodNotAllowed(match.Allowed), req, res)
		return
	}

	req.params = match.Params

	maxBody := e.Config.MaxBodyBytes
	if match.Route.maxBodyBytes > 0 {
		maxBody = match.Route.maxBodyBytes
	}
	if cl, ok := contentLength(req); ok && cl > maxBody {
		e.translateError(errBodyTooLarge(), req, res)
		return
	}

	chain := e.buildChain(match.Route)
	e.runChain(chain, match.Route, req, res)
}

func contentLength(req *Request) (int64, bool) {
	v := req.Header.Get("Content-Length")
	if v == "" {
		return 0, false
	}
	var n int64
	for _, c := range []byte(v) {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	return n, true
}
