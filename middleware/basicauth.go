package middleware

import (
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	"github.com/ignishq/ignis"
)

// BasicAuthValidator validates a username/password pair extracted from an
// Authorization: Basic header.
type BasicAuthValidator func(username, password string) bool

const basicAuthScheme = "Basic"

// BasicAuth returns a middleware validating HTTP Basic credentials against
// validate, short-circuiting with 401 (and WWW-Authenticate, so a browser
// pops its login dialog) on a bad or missing Authorization header.
func BasicAuth(validate BasicAuthValidator) ignis.Middleware {
	if validate == nil {
		panic("ignis/middleware: BasicAuth requires a validator function")
	}

	return ignis.Middleware{
		Name:     "basic_auth",
		Priority: -550,
		Pre: func(req *ignis.Request, res *ignis.Response) (bool, error) {
			auth := req.Header.Get("Authorization")
			l := len(basicAuthScheme)

			if len(auth) > l+1 && auth[:l] == basicAuthScheme {
				b, err := base64.StdEncoding.DecodeString(auth[l+1:])
				if err == nil {
					cred := string(b)
					for i := 0; i < len(cred); i++ {
						if cred[i] == ':' && validate(cred[:i], cred[i+1:]) {
							return false, nil
						}
					}
				}
			}

			res.Header().Set("WWW-Authenticate", basicAuthScheme+` realm="Restricted"`)
			return true, ignis.NewHTTPError(401, ignis.CategoryValidation, "invalid basic auth credentials")
		},
	}
}

// BcryptValidator returns a BasicAuthValidator checking a password against
// its bcrypt hash, looked up by username through lookupHash (nil hash or a
// lookup miss fails the comparison instead of panicking).
func BcryptValidator(lookupHash func(username string) []byte) BasicAuthValidator {
	return func(username, password string) bool {
		hash := lookupHash(username)
		if hash == nil {
			return false
		}
		return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
	}
}
