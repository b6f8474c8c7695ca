package ignis

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ignishq/ignis/arena"
	"github.com/ignishq/ignis/di"
)

// Engine ties together the router, middleware pipeline, dependency
// container, arena pool, configuration and logger into one running server,
// the way the teacher's own top-level type wires its Router, Gases,
// Minifier and Logger together.
type Engine struct {
	Config *Config
	Logger *Logger

	Container *di.Container

	router *router

	globalMiddleware []*registeredMiddleware

	errorTranslator ErrorHandler

	Arenas *arena.Pool

	configWatcher *configWatcher

	dispatchSlots chan struct{}
	queueDepth    int32

	mutex     sync.RWMutex
	listeners []net.Listener
	closing   chan struct{}
	closeOnce sync.Once
}

// ErrorHandler translates an error returned by a handler or middleware into
// a response. The default implementation sanitizes the error per the
// engine's DebugMode setting.
type ErrorHandler func(err error, req *Request, res *Response)

// New builds an Engine from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 64
	}

	e := &Engine{
		Config:        cfg,
		router:        newRouter(),
		Container:     di.NewContainer(),
		closing:       make(chan struct{}),
		dispatchSlots: make(chan struct{}, poolSize),
	}
	e.Logger = newLogger(e)
	e.errorTranslator = e.defaultErrorHandler
	e.Arenas = arena.NewPool(cfg.MemoryProfiling)

	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil {
			e.Logger.Warnf("ignis: failed to load config file %s: %v", cfg.ConfigFile, err)
		}
		if cfg.ConfigHotReload {
			cw, err := newConfigWatcher(e)
			if err != nil {
				e.Logger.Warnf("ignis: config hot reload disabled: %v", err)
			} else {
				e.configWatcher = cw
			}
		}
	}

	return e
}

// defaultErrorHandler is installed as Engine.errorTranslator by New; it
// writes a sanitized ErrorBody and logs the original cause.
func (e *Engine) defaultErrorHandler(err error, req *Request, res *Response) {
	status, body := sanitize(err, e.Config.DebugMode)

	if he, ok := err.(*HTTPError); ok && he.Cause != nil {
		e.Logger.Errorf("ignis: %s %s: %v", req.Method, req.Path, he.Cause)
	} else if status >= 500 {
		e.Logger.Errorf("ignis: %s %s: %v", req.Method, req.Path, err)
	}

	if status == http.StatusMethodNotAllowed {
		if he, ok := err.(*HTTPError); ok {
			res.Header().Set("Allow", joinStrings(methodsFromDetails(he.Details), ", "))
		}
	}

	res.Status = status
	_ = res.WriteJSON(body)
}

// methodsFromDetails recovers the allowed-methods list errMethodNotAllowed
// packed into an HTTPError's Details, so the 405 translator can reconstruct
// the Allow header the same way optionsHandler does.
func methodsFromDetails(details []FieldError) []string {
	methods := make([]string, 0, len(details))
	for _, d := range details {
		if d.Field == "method" {
			if m, ok := d.Value.(string); ok {
				methods = append(methods, m)
			}
		}
	}
	return methods
}

// SetErrorHandler replaces the engine's error translator.
func (e *Engine) SetErrorHandler(h ErrorHandler) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.errorTranslator = h
}

// HandleError runs err through e's currently installed error translator,
// writing its result into res. It is exported so code outside the package
// (a middleware's own tests, in particular) can exercise SetErrorHandler's
// effect without a live connection.
func (e *Engine) HandleError(err error, req *Request, res *Response) {
	e.translateError(err, req, res)
}

// Use registers a middleware at the engine (global) scope.
func (e *Engine) Use(m Middleware) {
	e.registerMiddleware(m, nil)
}

// Group creates a route group mounted at prefix.
func (e *Engine) Group(prefix string) *Group {
	return &Group{engine: e, prefix: prefix}
}

// GET registers a GET route.
func (e *Engine) GET(pattern string, h Handler, opts ...RouteOption) *Route {
	return e.handle("GET", pattern, h, opts...)
}

// POST registers a POST route.
func (e *Engine) POST(pattern string, h Handler, opts ...RouteOption) *Route {
	return e.handle("POST", pattern, h, opts...)
}

// PUT registers a PUT route.
func (e *Engine) PUT(pattern string, h Handler, opts ...RouteOption) *Route {
	return e.handle("PUT", pattern, h, opts...)
}

// PATCH registers a PATCH route.
func (e *Engine) PATCH(pattern string, h Handler, opts ...RouteOption) *Route {
	return e.handle("PATCH", pattern, h, opts...)
}

// DELETE registers a DELETE route.
func (e *Engine) DELETE(pattern string, h Handler, opts ...RouteOption) *Route {
	return e.handle("DELETE", pattern, h, opts...)
}

// HEAD registers a HEAD route explicitly, bypassing AutoHead synthesis.
func (e *Engine) HEAD(pattern string, h Handler, opts ...RouteOption) *Route {
	return e.handle("HEAD", pattern, h, opts...)
}

// OPTIONS registers an OPTIONS route explicitly, bypassing AutoOptions
// synthesis.
func (e *Engine) OPTIONS(pattern string, h Handler, opts ...RouteOption) *Route {
	return e.handle("OPTIONS", pattern, h, opts...)
}

func (e *Engine) handle(method, pattern string, h Handler, opts ...RouteOption) *Route {
	rt := e.router.register(method, pattern, h)
	for _, opt := range opts {
		opt(rt)
	}

	if method == "GET" && e.Config.AutoHead {
		if _, ok := e.router.methodRegistered("HEAD", pattern); !ok {
			e.router.register("HEAD", pattern, headHandler(h))
		}
	}
	if e.Config.AutoOptions {
		if _, ok := e.router.methodRegistered("OPTIONS", pattern); !ok {
			e.router.register("OPTIONS", pattern, e.optionsHandler(pattern))
		}
	}

	return rt
}

func headHandler(h Handler) Handler {
	return func(req *Request, res *Response) error {
		res.suppressBody = true
		return h(req, res)
	}
}

func (e *Engine) optionsHandler(pattern string) Handler {
	return func(req *Request, res *Response) error {
		allowed := e.router.allowedMethods(pattern)
		res.Header().Set("Allow", joinStrings(allowed, ", "))
		res.Status = 204
		return nil
	}
}

// ListenAndServe starts the engine's reactor pool and blocks until the
// listener is closed or an unrecoverable error occurs. It installs a
// SIGINT/SIGTERM handler that drains in-flight connections before
// returning, the way the teacher's own Serve does for its single listener,
// generalized here to the reactor pool.
func (e *Engine) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(e)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.serve()
	}()

	select {
	case <-ctx.Done():
		return e.shutdown(srv)
	case err := <-errCh:
		return err
	}
}

func (e *Engine) shutdown(srv *server) error {
	e.Logger.Infof("ignis: shutting down")

	timeout := e.Config.IdleTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	e.closeOnce.Do(func() { close(e.closing) })

	if e.configWatcher != nil {
		e.configWatcher.Close()
	}

	return srv.shutdown(ctx)
}

// Close shuts the engine's listeners down immediately without draining.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() { close(e.closing) })

	e.mutex.Lock()
	defer e.mutex.Unlock()

	var firstErr error
	for _, l := range e.listeners {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// acquireDispatchSlot reserves one of WorkerPoolSize concurrent dispatch
// slots, queueing the caller (counted against AcceptQueue) if none are free
// immediately. It reports false, rejecting the request with 503, once the
// queue itself is full.
func (e *Engine) acquireDispatchSlot() bool {
	select {
	case e.dispatchSlots <- struct{}{}:
		return true
	default:
	}

	queue := e.Config.AcceptQueue
	if queue <= 0 {
		queue = 1024
	}

	if int(atomic.AddInt32(&e.queueDepth, 1)) > queue {
		atomic.AddInt32(&e.queueDepth, -1)
		return false
	}
	defer atomic.AddInt32(&e.queueDepth, -1)

	e.dispatchSlots <- struct{}{}
	return true
}

func (e *Engine) releaseDispatchSlot() {
	<-e.dispatchSlots
}

func joinStrings(ss []string, sep string) string {
	switch len(ss) {
	case 0:
		return ""
	case 1:
		return ss[0]
	}
	n := len(sep) * (len(ss) - 1)
	for _, s := range ss {
		n += len(s)
	}
	b := make([]byte, 0, n)
	for i, s := range ss {
		if i > 0 {
			b = append(b, sep...)
		}
		b = append(b, s...)
	}
	return string(b)
}
