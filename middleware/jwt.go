package middleware

import (
	"errors"
	"strings"

	"github.com/dgrijalva/jwt-go"

	"github.com/ignishq/ignis"
)

// JWTConfig configures JWTAuth.
type JWTConfig struct {
	// SigningKey validates the token's signature. Required.
	SigningKey interface{}

	// SigningMethod is the expected algorithm, e.g. jwt.SigningMethodHS256.Alg().
	// Default "HS256".
	SigningMethod string

	// ContextKey is the Request.Set key the parsed token is stored
	// under. Default "user".
	ContextKey string

	// TokenLookup is "<source>:<name>", one of "header:<name>",
	// "query:<name>", "cookie:<name>". Default "header:Authorization".
	TokenLookup string
}

const bearerPrefix = "Bearer"

// DefaultJWTConfig matches the teacher framework's own default JWT gas
// config, minus a signing key (which is always required).
var DefaultJWTConfig = JWTConfig{
	SigningMethod: "HS256",
	ContextKey:    "user",
	TokenLookup:   "header:Authorization",
}

type jwtExtractor func(req *ignis.Request) (string, error)

// JWTAuth returns a middleware validating a bearer token from the
// Authorization header against key, short-circuiting with 400 when the
// token is missing or malformed and with 401 when it fails validation.
func JWTAuth(key []byte) ignis.Middleware {
	config := DefaultJWTConfig
	config.SigningKey = key
	return JWTAuthWithConfig(config)
}

// JWTAuthWithConfig returns a JWTAuth middleware from config.
func JWTAuthWithConfig(config JWTConfig) ignis.Middleware {
	if config.SigningKey == nil {
		panic("ignis/middleware: JWTAuth requires a signing key")
	}
	if config.SigningMethod == "" {
		config.SigningMethod = DefaultJWTConfig.SigningMethod
	}
	if config.ContextKey == "" {
		config.ContextKey = DefaultJWTConfig.ContextKey
	}
	if config.TokenLookup == "" {
		config.TokenLookup = DefaultJWTConfig.TokenLookup
	}

	parts := strings.SplitN(config.TokenLookup, ":", 2)
	source, name := "header", "Authorization"
	if len(parts) == 2 {
		source, name = parts[0], parts[1]
	}

	var extractor jwtExtractor
	switch source {
	case "query":
		extractor = jwtFromQuery(name)
	case "cookie":
		extractor = jwtFromCookie(name)
	default:
		extractor = jwtFromHeader(name)
	}

	return ignis.Middleware{
		Name:     "jwt_auth",
		Priority: -600,
		Pre: func(req *ignis.Request, res *ignis.Response) (bool, error) {
			raw, err := extractor(req)
			if err != nil {
				return true, ignis.NewHTTPError(400, ignis.CategoryValidation, "%v", err)
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if t.Method.Alg() != config.SigningMethod {
					return nil, errors.New("unexpected jwt signing method")
				}
				return config.SigningKey, nil
			})
			if err != nil || !token.Valid {
				return true, ignis.NewHTTPError(401, ignis.CategoryValidation, "invalid or expired token")
			}

			req.Set(config.ContextKey, token)
			return false, nil
		},
	}
}

func jwtFromHeader(header string) jwtExtractor {
	return func(req *ignis.Request) (string, error) {
		auth := req.Header.Get(header)
		l := len(bearerPrefix)
		if len(auth) > l+1 && auth[:l] == bearerPrefix {
			return auth[l+1:], nil
		}
		return "", errors.New("empty or invalid jwt in request header")
	}
}

func jwtFromQuery(param string) jwtExtractor {
	return func(req *ignis.Request) (string, error) {
		v, ok := req.QueryValue(param)
		if !ok || v == "" {
			return "", errors.New("empty jwt in query string")
		}
		return v, nil
	}
}

func jwtFromCookie(name string) jwtExtractor {
	return func(req *ignis.Request) (string, error) {
		for _, c := range strings.Split(req.Header.Get("Cookie"), ";") {
			c = strings.TrimSpace(c)
			if strings.HasPrefix(c, name+"=") {
				return strings.TrimPrefix(c, name+"="), nil
			}
		}
		return "", errors.New("empty jwt in cookie")
	}
}
