package middleware

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignishq/ignis"
)

func newTestPair(t *testing.T) (*ignis.Engine, *ignis.Request, *ignis.Response) {
	t.Helper()
	e := ignis.New(ignis.DefaultConfig())
	return e, ignis.NewRequest(e), ignis.NewResponse(e)
}

func TestCORSSetsAllowOriginWhenMatched(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Method, req.Path = "GET", "/test"
	req.Header.Set("Origin", "https://example.com")

	mw := CORSWithConfig(CORSConfig{AllowOrigins: []string{"https://example.com"}})

	shortCircuit, err := mw.Pre(req, res)
	require.NoError(t, err)
	assert.False(t, shortCircuit)
	assert.Equal(t, "https://example.com", res.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSSkipsUnmatchedOrigin(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Method, req.Path = "GET", "/test"
	req.Header.Set("Origin", "https://evil.example")

	mw := CORSWithConfig(CORSConfig{AllowOrigins: []string{"https://example.com"}})

	_, err := mw.Pre(req, res)
	require.NoError(t, err)
	assert.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Method, req.Path = "OPTIONS", "/test"
	req.Header.Set("Origin", "https://example.com")

	mw := CORSWithConfig(CORSConfig{AllowOrigins: []string{"*"}})

	shortCircuit, err := mw.Pre(req, res)
	require.NoError(t, err)
	assert.True(t, shortCircuit)
	assert.Equal(t, 204, res.Status)
}

func TestSecureSetsDefensiveHeaders(t *testing.T) {
	_, req, res := newTestPair(t)

	mw := Secure()
	_, err := mw.Pre(req, res)
	require.NoError(t, err)

	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", res.Header().Get("X-Frame-Options"))
}

func TestSecureNormalizesFrameOptionsCase(t *testing.T) {
	_, req, res := newTestPair(t)

	mw := SecureWithConfig(SecureConfig{XFrameOptions: "sameorigin"})
	_, err := mw.Pre(req, res)
	require.NoError(t, err)

	assert.Equal(t, "SAMEORIGIN", res.Header().Get("X-Frame-Options"))
}

func TestBodyLimitRejectsOversizedContentLength(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Header.Set("Content-Length", "1000")

	mw := BodyLimit(10)
	shortCircuit, err := mw.Pre(req, res)
	require.True(t, shortCircuit)
	require.Error(t, err)
}

func TestBodyLimitAllowsSmallContentLength(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Header.Set("Content-Length", "10")

	mw := BodyLimit(1000)
	shortCircuit, err := mw.Pre(req, res)
	require.False(t, shortCircuit)
	require.NoError(t, err)
}

func TestBodyLimitIgnoresMissingContentLength(t *testing.T) {
	_, req, res := newTestPair(t)

	mw := BodyLimit(10)
	shortCircuit, err := mw.Pre(req, res)
	require.False(t, shortCircuit)
	require.NoError(t, err)
}

func TestGzipCompressesLargeBodyWhenAccepted(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	res.SetBody(make([]byte, 1024))

	mw := GzipWithConfig(GzipConfig{Level: 1, MinLength: 256})
	require.NoError(t, mw.Post(req, res))

	assert.Equal(t, "gzip", res.Header().Get("Content-Encoding"))
	assert.Less(t, len(res.Body()), 1024)
}

func TestGzipSkipsShortBody(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Header.Set("Accept-Encoding", "gzip")
	res.SetBody([]byte("short"))

	mw := GzipWithConfig(GzipConfig{MinLength: 256})
	require.NoError(t, mw.Post(req, res))

	assert.Empty(t, res.Header().Get("Content-Encoding"))
}

func TestRequestLoggerWritesOneLinePerRequest(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Method, req.Path = "GET", "/ping"
	res.Status = 200

	var out bytes.Buffer
	mw := RequestLoggerWithConfig(LoggerConfig{Output: &out})

	_, err := mw.Pre(req, res)
	require.NoError(t, err)
	require.NoError(t, mw.Post(req, res))

	line := out.String()
	assert.Contains(t, line, `"method":"GET"`)
	assert.Contains(t, line, `"path":"/ping"`)
	assert.Contains(t, line, `"status":200`)
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	_, req, res := newTestPair(t)
	key := []byte("secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer "+signed)

	mw := JWTAuth(key)
	shortCircuit, err := mw.Pre(req, res)
	require.NoError(t, err)
	assert.False(t, shortCircuit)

	_, ok := req.Get("user")
	assert.True(t, ok)
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	_, req, res := newTestPair(t)

	mw := JWTAuth([]byte("secret"))
	shortCircuit, err := mw.Pre(req, res)
	require.Error(t, err)
	assert.True(t, shortCircuit)
}

func TestJWTAuthRejectsBadSignature(t *testing.T) {
	_, req, res := newTestPair(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice"})
	signed, err := token.SignedString([]byte("other-key"))
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer "+signed)

	mw := JWTAuth([]byte("secret"))
	shortCircuit, err := mw.Pre(req, res)
	require.Error(t, err)
	assert.True(t, shortCircuit)
}

func TestMinifyCompactsHTML(t *testing.T) {
	_, req, res := newTestPair(t)
	res.Header().Set("Content-Type", "text/html; charset=utf-8")
	res.SetBody([]byte("<html>  <body>   <p>hi</p>   </body>  </html>"))

	mw := Minify()
	require.NoError(t, mw.Post(req, res))

	assert.Less(t, len(res.Body()), len("<html>  <body>   <p>hi</p>   </body>  </html>"))
}

func TestMinifySkipsUnknownContentType(t *testing.T) {
	_, req, res := newTestPair(t)
	res.Header().Set("Content-Type", "application/octet-stream")
	body := []byte{0x01, 0x02, 0x03}
	res.SetBody(body)

	mw := Minify()
	require.NoError(t, mw.Post(req, res))

	assert.Equal(t, body, res.Body())
}

func TestStaticHandlerServesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello static"), 0o644))

	_, req, res := newTestPair(t)
	req.SetParam("path", "hello.txt")

	handler := StaticHandler(dir)
	require.NoError(t, handler(req, res))

	assert.Equal(t, "hello static", string(res.Body()))
}

func TestStaticHandlerServesIndexForDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<p>index</p>"), 0o644))

	_, req, res := newTestPair(t)
	req.SetParam("path", "")

	handler := StaticHandler(dir)
	require.NoError(t, handler(req, res))

	assert.Equal(t, "<p>index</p>", string(res.Body()))
}

func TestStaticHandlerRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()

	_, req, res := newTestPair(t)
	req.SetParam("path", strings.Repeat("../", 6)+"etc/passwd")

	handler := StaticHandler(dir)
	err := handler(req, res)
	require.Error(t, err)
}

func TestStaticHandlerMissingFileReturnsNotFound(t *testing.T) {
	dir := t.TempDir()

	_, req, res := newTestPair(t)
	req.SetParam("path", "missing.txt")

	handler := StaticHandler(dir)
	err := handler(req, res)
	require.Error(t, err)
}

func TestBasicAuthAcceptsValidCredentials(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Header.Set("Authorization", "Basic "+basicAuthHeader("alice", "secret"))

	mw := BasicAuth(func(u, p string) bool { return u == "alice" && p == "secret" })
	shortCircuit, err := mw.Pre(req, res)
	require.NoError(t, err)
	assert.False(t, shortCircuit)
}

func TestBasicAuthRejectsBadCredentials(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Header.Set("Authorization", "Basic "+basicAuthHeader("alice", "wrong"))

	mw := BasicAuth(func(u, p string) bool { return u == "alice" && p == "secret" })
	shortCircuit, err := mw.Pre(req, res)
	require.Error(t, err)
	assert.True(t, shortCircuit)
	assert.Contains(t, res.Header().Get("WWW-Authenticate"), "Basic")
}

func basicAuthHeader(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}

func TestBcryptValidatorAcceptsMatchingHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	validate := BcryptValidator(func(username string) []byte {
		if username == "alice" {
			return hash
		}
		return nil
	})

	assert.True(t, validate("alice", "secret"))
	assert.False(t, validate("alice", "wrong"))
	assert.False(t, validate("bob", "secret"))
}

func TestCSRFSetsCookieOnSafeMethod(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Method = "GET"

	mw := CSRF()
	shortCircuit, err := mw.Pre(req, res)
	require.NoError(t, err)
	assert.False(t, shortCircuit)
	assert.Contains(t, res.Header().Get("Set-Cookie"), "_csrf=")
}

func TestCSRFRejectsUnsafeMethodWithoutToken(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Method = "POST"

	mw := CSRF()
	shortCircuit, err := mw.Pre(req, res)
	require.Error(t, err)
	assert.True(t, shortCircuit)
}

func TestCSRFAcceptsMatchingToken(t *testing.T) {
	_, req, res := newTestPair(t)
	req.Method = "GET"

	mw := CSRF()
	_, err := mw.Pre(req, res)
	require.NoError(t, err)

	token, _ := req.Get("csrf")

	_, req2, res2 := newTestPair(t)
	req2.Method = "POST"
	req2.Header.Set("Cookie", "_csrf="+token.(string))
	req2.Header.Set("X-CSRF-Token", token.(string))

	shortCircuit, err := mw.Pre(req2, res2)
	require.NoError(t, err)
	assert.False(t, shortCircuit)
}

func TestErrorTranslatorReturnsNamedNoopMiddleware(t *testing.T) {
	e, _, _ := newTestPair(t)

	mw := ErrorTranslator(e, func(err error, req *ignis.Request, res *ignis.Response) {})

	assert.Equal(t, "error_translator", mw.Name)
	assert.Nil(t, mw.Pre)
	assert.Nil(t, mw.Post)
}

func TestErrorTranslatorReplacesEngineDefaultHandler(t *testing.T) {
	e, req, res := newTestPair(t)

	var gotErr error
	ErrorTranslator(e, func(err error, req *ignis.Request, res *ignis.Response) {
		gotErr = err
		res.Status = 599
	})

	cause := assert.AnError
	e.HandleError(cause, req, res)

	assert.Equal(t, cause, gotErr)
	assert.Equal(t, 599, res.Status)
}

func TestRecoverConfiguresEngineStackSize(t *testing.T) {
	e, _, _ := newTestPair(t)

	mw := RecoverWithConfig(e, RecoverConfig{StackSize: 8192, DisableStackAll: true})

	assert.Equal(t, "recover", mw.Name)
	assert.Equal(t, 8192, e.Config.RecoverStackSize)
	assert.True(t, e.Config.RecoverDisableStackAll)
}
