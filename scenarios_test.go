package ignis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignishq/ignis/di"
	"github.com/ignishq/ignis/middleware"
)

// These mirror the end-to-end scenarios an application built on the engine
// is expected to satisfy: a handful of concrete request/response pairs
// rather than the property-style tests in router_test.go/dispatch_test.go.

func TestScenarioHealthCheck(t *testing.T) {
	e := New(DefaultConfig())
	e.GET("/health", func(req *Request, res *Response) error {
		return res.WriteJSON(map[string]string{"status": "ok"})
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/health"
	res := newResponse(e)

	e.dispatch(req, res)

	assert.Equal(t, 200, res.Status)
	assert.JSONEq(t, `{"status":"ok"}`, string(res.Body()))
}

func TestScenarioTypedParamsBothMatch(t *testing.T) {
	e := New(DefaultConfig())
	var uid, pid string
	e.GET("/users/{uid:int}/posts/{pid:int}", func(req *Request, res *Response) error {
		uid = req.Param("uid").String()
		pid = req.Param("pid").String()
		return res.NoContent()
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/users/42/posts/7"
	res := newResponse(e)

	e.dispatch(req, res)

	assert.Equal(t, 204, res.Status)
	assert.Equal(t, "42", uid)
	assert.Equal(t, "7", pid)
}

func TestScenarioTypedParamFailureIsNotFound(t *testing.T) {
	e := New(DefaultConfig())
	e.GET("/users/{uid:int}/posts/{pid:int}", func(req *Request, res *Response) error {
		return res.NoContent()
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/users/not-an-int/posts/7"
	res := newResponse(e)

	e.dispatch(req, res)

	assert.Equal(t, 404, res.Status)
}

func TestScenarioMethodNotAllowedListsGET(t *testing.T) {
	e := New(DefaultConfig())
	e.Config.AutoHead = false
	e.Config.AutoOptions = false
	e.GET("/x", func(req *Request, res *Response) error { return res.NoContent() })

	req := newRequest(e)
	req.Method, req.Path = "POST", "/x"
	res := newResponse(e)

	e.dispatch(req, res)

	assert.Equal(t, 405, res.Status)
	assert.Equal(t, "GET", res.Header().Get("Allow"))
}

func TestScenarioUploadExceedsMaxBodyBytes(t *testing.T) {
	cfg := DefaultConfig()
	e := New(cfg)
	e.POST("/upload", func(req *Request, res *Response) error { return res.NoContent() },
		WithMaxBodyBytes(16))

	req := newRequest(e)
	req.Method, req.Path = "POST", "/upload"
	req.Header.Set("Content-Length", "1000")
	res := newResponse(e)

	e.dispatch(req, res)

	assert.Equal(t, 413, res.Status)
}

func TestScenarioDependencyConstructionFailureIsSanitized500(t *testing.T) {
	e := New(DefaultConfig())
	boom := errors.New("datastore unreachable")

	err := e.Container.Register(&di.ServiceDescriptor{
		Name:  "A",
		Scope: di.Singleton,
		Factory: func(c *di.Container) (interface{}, error) {
			return nil, boom
		},
	})
	require.NoError(t, err)

	e.GET("/cycle", func(req *Request, res *Response) error {
		_, err := req.Resolve("A")
		return err
	}, WithDependencies("A"))

	req := newRequest(e)
	req.Method, req.Path = "GET", "/cycle"
	res := newResponse(e)

	e.dispatch(req, res)

	assert.Equal(t, 500, res.Status)
	assert.NotContains(t, string(res.Body()), "datastore unreachable")
}

func TestScenarioErrorTranslatorOverridesDefaultHandling(t *testing.T) {
	e := New(DefaultConfig())

	var translated error
	middleware.ErrorTranslator(e, func(err error, req *Request, res *Response) {
		translated = err
		res.Status = 599
		_ = res.WriteJSON(map[string]string{"custom": "handled"})
	})

	e.GET("/boom", func(req *Request, res *Response) error {
		return errors.New("boom")
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/boom"
	res := newResponse(e)

	e.dispatch(req, res)

	require.Error(t, translated)
	assert.Equal(t, "boom", translated.Error())
	assert.Equal(t, 599, res.Status)
	assert.JSONEq(t, `{"custom":"handled"}`, string(res.Body()))
}
