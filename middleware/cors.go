package middleware

import (
	"strings"

	"github.com/ignishq/ignis"
)

// CORSConfig configures CORS.
type CORSConfig struct {
	// AllowOrigins lists origins permitted to access the resource.
	// Default ["*"].
	AllowOrigins []string

	// AllowHeaders lists request headers a preflight may allow.
	AllowHeaders []string

	// AllowCredentials reports whether the response may be exposed when
	// the request carries credentials.
	AllowCredentials bool

	// ExposeHeaders lists response headers clients may read.
	ExposeHeaders []string
}

// DefaultCORSConfig allows any origin, matching the teacher framework's own
// default CORS gas config.
var DefaultCORSConfig = CORSConfig{AllowOrigins: []string{"*"}}

// CORS returns a middleware implementing Cross-Origin Resource Sharing.
func CORS() ignis.Middleware {
	return CORSWithConfig(DefaultCORSConfig)
}

// CORSWithConfig returns a CORS middleware from config.
func CORSWithConfig(config CORSConfig) ignis.Middleware {
	if len(config.AllowOrigins) == 0 {
		config.AllowOrigins = DefaultCORSConfig.AllowOrigins
	}
	exposeHeaders := strings.Join(config.ExposeHeaders, ",")
	allowHeaders := strings.Join(config.AllowHeaders, ",")

	return ignis.Middleware{
		Name:     "cors",
		Priority: -500,
		Pre: func(req *ignis.Request, res *ignis.Response) (bool, error) {
			origin := req.Header.Get("Origin")
			_, originSet := req.Header["Origin"]

			res.Header().Add("Vary", "Origin")
			if !originSet {
				return false, nil
			}

			allowed := ""
			for _, o := range config.AllowOrigins {
				if o == "*" || o == origin {
					allowed = o
					break
				}
			}
			if allowed == "" {
				return false, nil
			}

			res.Header().Set("Access-Control-Allow-Origin", allowed)
			if config.AllowCredentials {
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if exposeHeaders != "" {
				res.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
			}

			if req.Method == "OPTIONS" {
				res.Header().Set("Access-Control-Allow-Methods", "GET,HEAD,PUT,PATCH,POST,DELETE")
				if allowHeaders != "" {
					res.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				} else if reqHeaders := req.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					res.Header().Set("Access-Control-Allow-Headers", reqHeaders)
				}
				res.Status = 204
				res.NoContent()
				return true, nil
			}

			return false, nil
		},
	}
}
