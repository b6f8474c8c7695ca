package middleware

import "github.com/ignishq/ignis"

// BodyLimit returns a middleware that rejects a request whose
// Content-Length exceeds maxBytes with a 413, for callers that want the
// limit enforced as an explicit pipeline stage rather than route
// configuration. It runs after the engine's own per-route MaxBodyBytes
// check, which dispatch applies before the middleware chain starts.
func BodyLimit(maxBytes int64) ignis.Middleware {
	return ignis.Middleware{
		Name:     "body_limit",
		Priority: -700,
		Pre: func(req *ignis.Request, res *ignis.Response) (bool, error) {
			cl := req.Header.Get("Content-Length")
			if cl == "" {
				return false, nil
			}

			var n int64
			for _, c := range []byte(cl) {
				if c < '0' || c > '9' {
					return false, nil
				}
				n = n*10 + int64(c-'0')
			}

			if n > maxBytes {
				return true, ignis.NewHTTPError(413, ignis.CategoryProtocol, "request body too large")
			}
			return false, nil
		},
	}
}
