package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/ignishq/ignis"
)

// CSRFConfig configures CSRF.
type CSRFConfig struct {
	// TokenLength is the generated token's length in bytes. Default 32.
	TokenLength uint8

	// TokenLookup is "<source>:<name>" naming where the client echoes the
	// token back: "header:<name>" or "query:<name>". Default
	// "header:X-CSRF-Token".
	TokenLookup string

	// ContextKey is the Request.Set key the active token is stored under.
	// Default "csrf".
	ContextKey string

	// CookieName names the cookie the token is persisted in between
	// requests. Default "_csrf".
	CookieName string

	// CookieMaxAge is the cookie's max age in seconds. Default 86400.
	CookieMaxAge int

	// CookieSecure marks the cookie Secure.
	CookieSecure bool

	// CookieHTTPOnly marks the cookie HttpOnly.
	CookieHTTPOnly bool
}

// DefaultCSRFConfig matches the teacher framework's own default CSRF gas
// config.
var DefaultCSRFConfig = CSRFConfig{
	TokenLength:  32,
	TokenLookup:  "header:X-CSRF-Token",
	ContextKey:   "csrf",
	CookieName:   "_csrf",
	CookieMaxAge: 86400,
}

type csrfExtractor func(req *ignis.Request) (string, error)

const csrfAlphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CSRF returns a middleware implementing double-submit-cookie CSRF
// protection: GET/HEAD/OPTIONS requests mint or renew the cookie; every
// other method must echo the cookie's token back via TokenLookup.
func CSRF() ignis.Middleware {
	return CSRFWithConfig(DefaultCSRFConfig)
}

// CSRFWithConfig returns a CSRF middleware from config.
func CSRFWithConfig(config CSRFConfig) ignis.Middleware {
	if config.TokenLength == 0 {
		config.TokenLength = DefaultCSRFConfig.TokenLength
	}
	if config.TokenLookup == "" {
		config.TokenLookup = DefaultCSRFConfig.TokenLookup
	}
	if config.ContextKey == "" {
		config.ContextKey = DefaultCSRFConfig.ContextKey
	}
	if config.CookieName == "" {
		config.CookieName = DefaultCSRFConfig.CookieName
	}
	if config.CookieMaxAge == 0 {
		config.CookieMaxAge = DefaultCSRFConfig.CookieMaxAge
	}

	parts := strings.SplitN(config.TokenLookup, ":", 2)
	source, name := "header", "X-CSRF-Token"
	if len(parts) == 2 {
		source, name = parts[0], parts[1]
	}

	var extractor csrfExtractor
	if source == "query" {
		extractor = csrfFromQuery(name)
	} else {
		extractor = csrfFromHeader(name)
	}

	return ignis.Middleware{
		Name:     "csrf",
		Priority: -550,
		Pre: func(req *ignis.Request, res *ignis.Response) (bool, error) {
			token := csrfCookieValue(req, config.CookieName)
			if token == "" {
				token = randomCSRFToken(config.TokenLength)
			}

			if req.Method != "GET" && req.Method != "HEAD" && req.Method != "OPTIONS" {
				clientToken, err := extractor(req)
				if err != nil {
					return true, ignis.NewHTTPError(403, ignis.CategoryValidation, "%v", err)
				}
				if !validateCSRFToken(token, clientToken) {
					return true, ignis.NewHTTPError(403, ignis.CategoryValidation, "csrf token is invalid")
				}
			}

			res.Header().Add("Set-Cookie", buildCSRFCookie(config, token))
			res.Header().Add("Vary", "Cookie")
			req.Set(config.ContextKey, token)

			return false, nil
		},
	}
}

func csrfCookieValue(req *ignis.Request, name string) string {
	for _, c := range strings.Split(req.Header.Get("Cookie"), ";") {
		c = strings.TrimSpace(c)
		if strings.HasPrefix(c, name+"=") {
			return strings.TrimPrefix(c, name+"=")
		}
	}
	return ""
}

func buildCSRFCookie(config CSRFConfig, token string) string {
	cookie := fmt.Sprintf("%s=%s; Max-Age=%d; Path=/", config.CookieName, token, config.CookieMaxAge)
	if config.CookieSecure {
		cookie += "; Secure"
	}
	if config.CookieHTTPOnly {
		cookie += "; HttpOnly"
	}
	return cookie
}

func csrfFromHeader(name string) csrfExtractor {
	return func(req *ignis.Request) (string, error) {
		token := req.Header.Get(name)
		if token == "" {
			return "", errors.New("empty csrf token in request header")
		}
		return token, nil
	}
}

func csrfFromQuery(name string) csrfExtractor {
	return func(req *ignis.Request) (string, error) {
		v, ok := req.QueryValue(name)
		if !ok || v == "" {
			return "", errors.New("empty csrf token in query param")
		}
		return v, nil
	}
}

func validateCSRFToken(token, clientToken string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(clientToken)) == 1
}

func randomCSRFToken(length uint8) string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = csrfAlphanumeric[r.Int63()%int64(len(csrfAlphanumeric))]
	}
	return string(b)
}
