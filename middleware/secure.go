package middleware

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ignishq/ignis"
)

// SecureConfig configures Secure.
type SecureConfig struct {
	// XSSProtection sets X-XSS-Protection. Default "1; mode=block".
	XSSProtection string

	// ContentTypeNosniff sets X-Content-Type-Options. Default "nosniff".
	ContentTypeNosniff string

	// XFrameOptions sets X-Frame-Options, case-normalized to upper case
	// (a value loaded from a lowercase config file still resolves to
	// "SAMEORIGIN"/"DENY" as the header expects). Default "SAMEORIGIN".
	XFrameOptions string

	// HSTSMaxAge sets Strict-Transport-Security's max-age in seconds
	// when the request arrived over TLS or a trusted proxy says it did.
	// Zero disables the header.
	HSTSMaxAge int

	// HSTSExcludeSubdomains omits "; includeSubdomains" from the HSTS
	// header.
	HSTSExcludeSubdomains bool

	// ContentSecurityPolicy sets Content-Security-Policy. Empty omits
	// the header.
	ContentSecurityPolicy string
}

// DefaultSecureConfig matches the teacher framework's own default secure
// gas config.
var DefaultSecureConfig = SecureConfig{
	XSSProtection:      "1; mode=block",
	ContentTypeNosniff: "nosniff",
	XFrameOptions:      "SAMEORIGIN",
}

var upper = cases.Upper(language.Und)

// Secure returns a middleware that sets a standard set of defensive
// response headers.
func Secure() ignis.Middleware {
	return SecureWithConfig(DefaultSecureConfig)
}

// SecureWithConfig returns a Secure middleware from config.
func SecureWithConfig(config SecureConfig) ignis.Middleware {
	if config.XFrameOptions != "" {
		config.XFrameOptions = upper.String(config.XFrameOptions)
	}

	return ignis.Middleware{
		Name:     "secure",
		Priority: -800,
		Pre: func(req *ignis.Request, res *ignis.Response) (bool, error) {
			h := res.Header()

			if config.XSSProtection != "" {
				h.Set("X-XSS-Protection", config.XSSProtection)
			}
			if config.ContentTypeNosniff != "" {
				h.Set("X-Content-Type-Options", config.ContentTypeNosniff)
			}
			if config.XFrameOptions != "" {
				h.Set("X-Frame-Options", config.XFrameOptions)
			}
			if config.HSTSMaxAge != 0 && isTLS(req) {
				subdomains := ""
				if !config.HSTSExcludeSubdomains {
					subdomains = "; includeSubdomains"
				}
				h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d%s", config.HSTSMaxAge, subdomains))
			}
			if config.ContentSecurityPolicy != "" {
				h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
			}

			return false, nil
		},
	}
}

func isTLS(req *ignis.Request) bool {
	return req.Header.Get("X-Forwarded-Proto") == "https"
}
