package ignis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingMiddleware(name string, priority int, trace *[]string) Middleware {
	return Middleware{
		Name:     name,
		Priority: priority,
		Pre: func(req *Request, res *Response) (bool, error) {
			*trace = append(*trace, "pre:"+name)
			return false, nil
		},
		Post: func(req *Request, res *Response) error {
			*trace = append(*trace, "post:"+name)
			return nil
		},
	}
}

func newTestEngine() *Engine {
	return New(DefaultConfig())
}

// TestMiddlewareOrderingOnionStyle reproduces the worked "A, B, C, handler,
// C, B, A" example: ascending priority for Pre, mirrored in reverse for
// Post.
func TestMiddlewareOrderingOnionStyle(t *testing.T) {
	e := newTestEngine()
	var trace []string

	e.Use(recordingMiddleware("A", 1, &trace))
	e.Use(recordingMiddleware("B", 2, &trace))
	e.Use(recordingMiddleware("C", 3, &trace))

	rt := e.GET("/onion", func(req *Request, res *Response) error {
		trace = append(trace, "handler")
		return nil
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/onion"
	res := newResponse(e)

	chain := e.buildChain(rt)
	e.runChain(chain, rt, req, res)

	assert.Equal(t, []string{"pre:A", "pre:B", "pre:C", "handler", "post:C", "post:B", "post:A"}, trace)
}

// TestMiddlewareShortCircuitStopsAtItsOwnPost reproduces the worked example
// where B short-circuits: only B and A's Post run, C's Post never does, and
// the handler never runs.
func TestMiddlewareShortCircuitStopsAtItsOwnPost(t *testing.T) {
	e := newTestEngine()
	var trace []string

	e.Use(recordingMiddleware("A", 1, &trace))
	e.Use(Middleware{
		Name:     "B",
		Priority: 2,
		Pre: func(req *Request, res *Response) (bool, error) {
			trace = append(trace, "pre:B")
			return true, nil
		},
		Post: func(req *Request, res *Response) error {
			trace = append(trace, "post:B")
			return nil
		},
	})
	e.Use(recordingMiddleware("C", 3, &trace))

	rt := e.GET("/short", func(req *Request, res *Response) error {
		trace = append(trace, "handler")
		return nil
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/short"
	res := newResponse(e)

	chain := e.buildChain(rt)
	e.runChain(chain, rt, req, res)

	assert.Equal(t, []string{"pre:A", "pre:B", "post:B", "post:A"}, trace)
}

func TestMiddlewareSamePriorityTieBreaksOnRegistrationOrder(t *testing.T) {
	e := newTestEngine()
	var trace []string

	e.Use(recordingMiddleware("first", 5, &trace))
	e.Use(recordingMiddleware("second", 5, &trace))

	rt := e.GET("/tie", noopHandler)
	req := newRequest(e)
	req.Method, req.Path = "GET", "/tie"
	res := newResponse(e)

	e.runChain(e.buildChain(rt), rt, req, res)

	assert.Equal(t, []string{"pre:first", "pre:second", "post:second", "post:first"}, trace)
}

func TestMiddlewareDuplicateGlobalNamePanics(t *testing.T) {
	e := newTestEngine()
	e.Use(Middleware{Name: "dup"})
	assert.Panics(t, func() {
		e.Use(Middleware{Name: "dup"})
	})
}

func TestMiddlewarePreErrorShortCircuitsAndTranslates(t *testing.T) {
	e := newTestEngine()
	var translated error
	e.SetErrorHandler(func(err error, req *Request, res *Response) {
		translated = err
	})

	e.Use(Middleware{
		Name:     "erroring",
		Priority: 1,
		Pre: func(req *Request, res *Response) (bool, error) {
			return false, errors.New("boom")
		},
	})

	ran := false
	rt := e.GET("/err", func(req *Request, res *Response) error {
		ran = true
		return nil
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/err"
	res := newResponse(e)

	e.runChain(e.buildChain(rt), rt, req, res)

	assert.False(t, ran)
	require.Error(t, translated)
}

func TestMiddlewareRecoversHandlerPanic(t *testing.T) {
	e := newTestEngine()
	var translated error
	e.SetErrorHandler(func(err error, req *Request, res *Response) {
		translated = err
	})

	rt := e.GET("/panic", func(req *Request, res *Response) error {
		panic("kaboom")
	})

	req := newRequest(e)
	req.Method, req.Path = "GET", "/panic"
	res := newResponse(e)

	require.NotPanics(t, func() {
		e.runChain(e.buildChain(rt), rt, req, res)
	})
	require.Error(t, translated)
}
